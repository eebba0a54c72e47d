package rooms

import (
	"context"
	"errors"

	"github.com/angelmondragon/roomguard/internal/repo"
	"github.com/angelmondragon/roomguard/pkg/db/models"
	"github.com/angelmondragon/roomguard/pkg/enums"
	"gorm.io/gorm"
)

// Repository exposes room, alias and power level persistence. It doubles as
// the power-level resolver consumed by the membership engine.
type Repository struct {
	repo.Base
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// RoomExists reports whether the room is known to this server.
func (r *Repository) RoomExists(ctx context.Context, roomID string) (bool, error) {
	var count int64
	if err := r.DB(ctx).Model(&models.Room{}).Where("id = ?", roomID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// IsPublic reports whether anyone may join the room without an invite.
// An unknown room is reported as gorm.ErrRecordNotFound.
func (r *Repository) IsPublic(ctx context.Context, roomID string) (bool, error) {
	room, err := r.FindByID(ctx, roomID)
	if err != nil {
		return false, err
	}
	return room.Visibility == enums.RoomVisibilityPublic, nil
}

// FindByID loads a room row.
func (r *Repository) FindByID(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room
	if err := r.DB(ctx).First(&room, "id = ?", roomID).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// CurrentPowerLevels reads the room's map and thresholds in one SELECT.
func (r *Repository) CurrentPowerLevels(ctx context.Context, roomID string) (*PowerLevels, error) {
	var row models.RoomPowerLevels
	if err := r.DB(ctx).First(&row, "room_id = ?", roomID).Error; err != nil {
		return nil, err
	}
	return powerLevelsFromModel(row), nil
}

// CreateRoom inserts the room and its power levels.
func (r *Repository) CreateRoom(ctx context.Context, room *models.Room, levels PowerLevels) error {
	return r.Transaction(ctx, func(ctx context.Context) error {
		if err := r.DB(ctx).Create(room).Error; err != nil {
			return err
		}
		row := levels.toModel(room.ID)
		return r.DB(ctx).Create(&row).Error
	})
}

// CreateAlias maps alias onto roomID. Duplicate aliases surface as a unique
// violation from the driver.
func (r *Repository) CreateAlias(ctx context.Context, alias *models.RoomAlias) error {
	return r.DB(ctx).Create(alias).Error
}

// ResolveAlias returns the room id an alias points at, or "" when unknown.
func (r *Repository) ResolveAlias(ctx context.Context, alias string) (string, error) {
	var row models.RoomAlias
	err := r.DB(ctx).First(&row, "alias = ?", alias).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.RoomID, nil
}

// ListAliases returns every alias pointing at roomID.
func (r *Repository) ListAliases(ctx context.Context, roomID string) ([]string, error) {
	var aliases []string
	err := r.DB(ctx).
		Model(&models.RoomAlias{}).
		Where("room_id = ?", roomID).
		Order("alias").
		Pluck("alias", &aliases).Error
	if err != nil {
		return nil, err
	}
	return aliases, nil
}
