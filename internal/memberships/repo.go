package memberships

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/roomguard/internal/repo"
	"github.com/angelmondragon/roomguard/pkg/db"
	"github.com/angelmondragon/roomguard/pkg/db/models"
	"github.com/angelmondragon/roomguard/pkg/enums"
	"github.com/angelmondragon/roomguard/pkg/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists memberships through GORM. On Postgres each room's
// transitions are serialized with a transaction-scoped advisory lock and the
// target row is read FOR UPDATE.
type Repository struct {
	repo.Base
	now func() time.Time
}

// NewRepository binds the repo to the provided GORM connection.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{
		Base: repo.NewBase(conn),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithinRoom runs fn in a transaction holding the room's lock.
func (r *Repository) WithinRoom(ctx context.Context, roomID string, fn func(ctx context.Context, store Store) error) error {
	return r.Transaction(ctx, func(ctx context.Context) error {
		if db.IsPostgres(r.Dialect()) {
			if err := r.DB(ctx).Exec("SELECT pg_advisory_xact_lock(hashtext(?))", roomID).Error; err != nil {
				return err
			}
		}
		return fn(ctx, r)
	})
}

func (r *Repository) Find(ctx context.Context, roomID, userID string) (*models.RoomMembership, error) {
	q := r.DB(ctx)
	if _, inTx := repo.TxFrom(ctx); inTx && db.IsPostgres(r.Dialect()) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var record models.RoomMembership
	err := q.Where("room_id = ? AND user_id = ?", roomID, userID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Get reads one membership without locking.
func (r *Repository) Get(ctx context.Context, roomID, userID string) (*models.RoomMembership, error) {
	var record models.RoomMembership
	err := r.DB(ctx).Where("room_id = ? AND user_id = ?", roomID, userID).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *Repository) Upsert(ctx context.Context, roomID, userID, senderID string, state enums.MembershipState, reason *string) (*models.RoomMembership, error) {
	now := r.now()
	record := &models.RoomMembership{
		RoomID:    roomID,
		UserID:    userID,
		SenderID:  senderID,
		State:     state,
		Reason:    reason,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"sender_id", "state", "reason", "updated_at"}),
		}).
		Create(record).Error
	if err != nil {
		return nil, err
	}
	// created_at of an overwritten row is the original one.
	return r.Get(ctx, roomID, userID)
}

func (r *Repository) Update(ctx context.Context, existing *models.RoomMembership, senderID string, state enums.MembershipState, reason *string) (*models.RoomMembership, error) {
	if existing == nil {
		return nil, gorm.ErrRecordNotFound
	}
	now := r.now()
	res := r.DB(ctx).
		Model(&models.RoomMembership{}).
		Where("room_id = ? AND user_id = ?", existing.RoomID, existing.UserID).
		Updates(map[string]any{
			"sender_id":  senderID,
			"state":      state,
			"reason":     reason,
			"updated_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	updated := *existing
	updated.SenderID = senderID
	updated.State = state
	updated.Reason = reason
	updated.UpdatedAt = now
	return &updated, nil
}

// ListMembers pages through a room's records ordered by user id. An empty
// state lists every record.
func (r *Repository) ListMembers(ctx context.Context, roomID string, state enums.MembershipState, params pagination.Params) ([]models.RoomMembership, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	limit := pagination.NormalizeLimit(params.Limit)

	q := r.DB(ctx).Where("room_id = ?", roomID)
	if state != enums.MembershipStateNone {
		q = q.Where("state = ?", state)
	}
	if cursor != nil {
		q = q.Where("user_id > ?", cursor.After)
	}

	var rows []models.RoomMembership
	if err := q.Order("user_id").Limit(pagination.LimitWithBuffer(limit)).Find(&rows).Error; err != nil {
		return nil, "", err
	}
	return pageOf(rows, limit)
}

func pageOf(rows []models.RoomMembership, limit int) ([]models.RoomMembership, string, error) {
	page, next := pagination.Trim(rows, limit, func(m models.RoomMembership) string { return m.UserID })
	return page, next, nil
}
