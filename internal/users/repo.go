package users

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/roomguard/internal/repo"
	"github.com/angelmondragon/roomguard/pkg/db/models"
	"gorm.io/gorm"
)

// Repository is the user directory. It backs the invite existence guard and
// is never cached.
type Repository struct {
	repo.Base
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// Create inserts a new user and returns the persisted model.
func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.DB(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByID loads a user by their fully qualified id.
func (r *Repository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ExistsAndActive reports whether the user is present and not deactivated.
func (r *Repository) ExistsAndActive(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.User{}).
		Where("id = ? AND is_active = ?", id, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Deactivate marks the user inactive. Existing memberships are untouched;
// the user simply can no longer be invited.
func (r *Repository) Deactivate(ctx context.Context, id string, at time.Time) error {
	res := r.DB(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_active": false, "deactivated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// EnsureActive creates the user when missing and reactivates it otherwise.
func (r *Repository) EnsureActive(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	var out *models.User
	err := r.Transaction(ctx, func(ctx context.Context) error {
		existing, err := r.FindByID(ctx, dto.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			out, err = r.Create(ctx, dto)
			return err
		}
		if err != nil {
			return err
		}
		if !existing.IsActive {
			err := r.DB(ctx).
				Model(existing).
				Updates(map[string]any{"is_active": true, "deactivated_at": nil}).Error
			if err != nil {
				return err
			}
			existing.IsActive = true
			existing.DeactivatedAt = nil
		}
		out = existing
		return nil
	})
	return out, err
}
