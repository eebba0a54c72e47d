package models

import (
	"time"

	"github.com/angelmondragon/roomguard/pkg/types"
)

// RoomPowerLevels stores the per-room level map and action thresholds in one row.
type RoomPowerLevels struct {
	RoomID       string           `gorm:"column:room_id;type:text;primaryKey"`
	Users        types.UserLevels `gorm:"column:users;type:jsonb;not null"`
	UsersDefault int              `gorm:"column:users_default;not null;default:0"`
	Invite       int              `gorm:"column:invite;not null;default:0"`
	Kick         int              `gorm:"column:kick;not null;default:50"`
	Ban          int              `gorm:"column:ban;not null;default:50"`
	UpdatedAt    time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (RoomPowerLevels) TableName() string {
	return "room_power_levels"
}
