package models

import (
	"time"

	"github.com/angelmondragon/roomguard/pkg/enums"
)

// RoomMembership is the single current membership record for a (room, user) pair.
type RoomMembership struct {
	RoomID    string                `gorm:"column:room_id;type:text;primaryKey"`
	UserID    string                `gorm:"column:user_id;type:text;primaryKey"`
	SenderID  string                `gorm:"column:sender_id;type:text;not null"`
	State     enums.MembershipState `gorm:"column:state;type:text;not null"`
	Reason    *string               `gorm:"column:reason;type:text"`
	CreatedAt time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
