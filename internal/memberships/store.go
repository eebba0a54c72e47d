package memberships

import (
	"context"

	"github.com/angelmondragon/roomguard/pkg/db/models"
	"github.com/angelmondragon/roomguard/pkg/enums"
	"github.com/angelmondragon/roomguard/pkg/pagination"
)

// Store is the single-row-per-(room, user) membership contract.
type Store interface {
	// Find returns nil, nil when the pair has no record.
	Find(ctx context.Context, roomID, userID string) (*models.RoomMembership, error)
	// Upsert creates the record or overwrites its state, sender and reason.
	Upsert(ctx context.Context, roomID, userID, senderID string, state enums.MembershipState, reason *string) (*models.RoomMembership, error)
	// Update mutates a record previously returned by Find.
	Update(ctx context.Context, existing *models.RoomMembership, senderID string, state enums.MembershipState, reason *string) (*models.RoomMembership, error)
}

// TxStore serializes read-decide-write sequences per room. fn observes a
// Store bound to the transaction; its writes are discarded when it errors.
type TxStore interface {
	WithinRoom(ctx context.Context, roomID string, fn func(ctx context.Context, store Store) error) error
}

// Reader exposes membership reads outside any transition.
type Reader interface {
	Get(ctx context.Context, roomID, userID string) (*models.RoomMembership, error)
	ListMembers(ctx context.Context, roomID string, state enums.MembershipState, params pagination.Params) ([]models.RoomMembership, string, error)
}

// MembershipStore is everything the engine needs from persistence.
type MembershipStore interface {
	TxStore
	Reader
}

func stateOf(record *models.RoomMembership) enums.MembershipState {
	if record == nil {
		return enums.MembershipStateNone
	}
	return record.State
}
