package memberships

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/angelmondragon/roomguard/pkg/db/models"
	"github.com/angelmondragon/roomguard/pkg/enums"
	"github.com/angelmondragon/roomguard/pkg/pagination"
	"gorm.io/gorm"
)

type memberKey struct {
	roomID string
	userID string
}

// MemoryStore keeps memberships in process. Each room has its own lock,
// held for the whole of a WithinRoom call; writes made inside it are staged
// and only become visible when the callback succeeds.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[memberKey]models.RoomMembership

	locksMu sync.RWMutex
	locks   map[string]chan struct{}

	now func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[memberKey]models.RoomMembership),
		locks:   make(map[string]chan struct{}),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) roomLock(roomID string) chan struct{} {
	m.locksMu.RLock()
	lock, ok := m.locks[roomID]
	m.locksMu.RUnlock()
	if ok {
		return lock
	}

	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	if lock, ok = m.locks[roomID]; ok {
		return lock
	}
	lock = make(chan struct{}, 1)
	m.locks[roomID] = lock
	return lock
}

// WithinRoom holds the room lock while fn runs. Waiting for the lock honours
// ctx cancellation.
func (m *MemoryStore) WithinRoom(ctx context.Context, roomID string, fn func(ctx context.Context, store Store) error) error {
	lock := m.roomLock(roomID)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-lock }()

	tx := &memoryTx{parent: m, staged: make(map[memberKey]models.RoomMembership)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	m.mu.Lock()
	for key, record := range tx.staged {
		m.records[key] = record
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Find(ctx context.Context, roomID, userID string) (*models.RoomMembership, error) {
	return m.Get(ctx, roomID, userID)
}

func (m *MemoryStore) Get(_ context.Context, roomID, userID string) (*models.RoomMembership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[memberKey{roomID, userID}]
	if !ok {
		return nil, nil
	}
	return cloneRecord(record), nil
}

// Upsert writes immediately. Callers outside WithinRoom get no isolation
// from concurrent transitions beyond the atomicity of the single write.
func (m *MemoryStore) Upsert(_ context.Context, roomID, userID, senderID string, state enums.MembershipState, reason *string) (*models.RoomMembership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memberKey{roomID, userID}
	var existing *models.RoomMembership
	if record, ok := m.records[key]; ok {
		existing = &record
	}
	record := upserted(existing, roomID, userID, senderID, state, reason, m.now())
	m.records[key] = record
	return cloneRecord(record), nil
}

func (m *MemoryStore) Update(_ context.Context, existing *models.RoomMembership, senderID string, state enums.MembershipState, reason *string) (*models.RoomMembership, error) {
	if existing == nil {
		return nil, gorm.ErrRecordNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memberKey{existing.RoomID, existing.UserID}
	current, ok := m.records[key]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	record := updated(current, senderID, state, reason, m.now())
	m.records[key] = record
	return cloneRecord(record), nil
}

func (m *MemoryStore) ListMembers(_ context.Context, roomID string, state enums.MembershipState, params pagination.Params) ([]models.RoomMembership, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	limit := pagination.NormalizeLimit(params.Limit)

	m.mu.RLock()
	rows := make([]models.RoomMembership, 0)
	for key, record := range m.records {
		if key.roomID != roomID {
			continue
		}
		if state != enums.MembershipStateNone && record.State != state {
			continue
		}
		if cursor != nil && key.userID <= cursor.After {
			continue
		}
		rows = append(rows, *cloneRecord(record))
	}
	m.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].UserID < rows[j].UserID })
	if len(rows) > pagination.LimitWithBuffer(limit) {
		rows = rows[:pagination.LimitWithBuffer(limit)]
	}
	return pageOf(rows, limit)
}

// memoryTx is the Store handed to WithinRoom callbacks.
type memoryTx struct {
	parent *MemoryStore
	staged map[memberKey]models.RoomMembership
}

func (t *memoryTx) current(key memberKey) (*models.RoomMembership, bool) {
	if record, ok := t.staged[key]; ok {
		return &record, true
	}
	t.parent.mu.RLock()
	defer t.parent.mu.RUnlock()
	record, ok := t.parent.records[key]
	if !ok {
		return nil, false
	}
	return &record, true
}

func (t *memoryTx) Find(_ context.Context, roomID, userID string) (*models.RoomMembership, error) {
	record, ok := t.current(memberKey{roomID, userID})
	if !ok {
		return nil, nil
	}
	return cloneRecord(*record), nil
}

func (t *memoryTx) Upsert(_ context.Context, roomID, userID, senderID string, state enums.MembershipState, reason *string) (*models.RoomMembership, error) {
	key := memberKey{roomID, userID}
	existing, _ := t.current(key)
	record := upserted(existing, roomID, userID, senderID, state, reason, t.parent.now())
	t.staged[key] = record
	return cloneRecord(record), nil
}

func (t *memoryTx) Update(_ context.Context, existing *models.RoomMembership, senderID string, state enums.MembershipState, reason *string) (*models.RoomMembership, error) {
	if existing == nil {
		return nil, gorm.ErrRecordNotFound
	}
	key := memberKey{existing.RoomID, existing.UserID}
	current, ok := t.current(key)
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	record := updated(*current, senderID, state, reason, t.parent.now())
	t.staged[key] = record
	return cloneRecord(record), nil
}

func upserted(existing *models.RoomMembership, roomID, userID, senderID string, state enums.MembershipState, reason *string, now time.Time) models.RoomMembership {
	createdAt := now
	if existing != nil {
		createdAt = existing.CreatedAt
	}
	return models.RoomMembership{
		RoomID:    roomID,
		UserID:    userID,
		SenderID:  senderID,
		State:     state,
		Reason:    cloneString(reason),
		CreatedAt: createdAt,
		UpdatedAt: now,
	}
}

func updated(current models.RoomMembership, senderID string, state enums.MembershipState, reason *string, now time.Time) models.RoomMembership {
	current.SenderID = senderID
	current.State = state
	current.Reason = cloneString(reason)
	current.UpdatedAt = now
	return current
}

func cloneRecord(record models.RoomMembership) *models.RoomMembership {
	record.Reason = cloneString(record.Reason)
	return &record
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
