package users

import (
	"time"

	"github.com/angelmondragon/roomguard/pkg/db/models"
)

// UserDTO is the transport shape of a directory entry.
type UserDTO struct {
	ID            string     `json:"user_id"`
	DisplayName   *string    `json:"display_name,omitempty"`
	IsActive      bool       `json:"is_active"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	ID          string
	DisplayName *string
	IsActive    *bool
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}

	return &UserDTO{
		ID:            u.ID,
		DisplayName:   u.DisplayName,
		IsActive:      u.IsActive,
		DeactivatedAt: u.DeactivatedAt,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

func (c CreateUserDTO) ToModel() *models.User {
	isActive := true
	if c.IsActive != nil {
		isActive = *c.IsActive
	}

	return &models.User{
		ID:          c.ID,
		DisplayName: c.DisplayName,
		IsActive:    isActive,
	}
}
