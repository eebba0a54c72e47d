package models

import "time"

// RoomAlias maps a human readable alias onto a room id.
type RoomAlias struct {
	Alias     string    `gorm:"column:alias;type:text;primaryKey"`
	RoomID    string    `gorm:"column:room_id;type:text;not null"`
	CreatorID string    `gorm:"column:creator_id;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
