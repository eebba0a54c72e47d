package models

import "time"

// User is a directory entry. Only active users may be invited.
type User struct {
	ID            string     `gorm:"column:id;type:text;primaryKey"`
	DisplayName   *string    `gorm:"column:display_name"`
	IsActive      bool       `gorm:"column:is_active;not null;default:true"`
	DeactivatedAt *time.Time `gorm:"column:deactivated_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
