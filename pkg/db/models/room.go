package models

import (
	"time"

	"github.com/angelmondragon/roomguard/pkg/enums"
)

// Room is the minimal room row the membership core depends on.
type Room struct {
	ID         string               `gorm:"column:id;type:text;primaryKey"`
	CreatorID  string               `gorm:"column:creator_id;type:text;not null"`
	Visibility enums.RoomVisibility `gorm:"column:visibility;type:text;not null"`
	CreatedAt  time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
