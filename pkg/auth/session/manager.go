// Package session keeps the server-side record of issued access tokens so a
// token can be revoked before its expiry.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/roomguard/pkg/config"
	redisclient "github.com/angelmondragon/roomguard/pkg/redis"
)

var (
	ErrAccessIDRequired = errors.New("session: access id is required")
	ErrUserIDRequired   = errors.New("session: user id is required")
	// ErrNoSession is returned by Owner for a revoked or expired access id.
	ErrNoSession = errors.New("session: no live session")
)

type store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	AccessSessionKey(accessID string) string
}

// AccessSessionChecker exposes the read-only surface needed by middleware.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string) (bool, error)
}

// Manager maps access token ids (jti) to the user that owns them. A token
// whose jti has no entry is rejected by the auth middleware.
type Manager struct {
	kv  store
	ttl time.Duration
}

func NewManager(client *redisclient.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("session: redis client is required")
	}
	return newManager(client, cfg.AccessTTL())
}

func newManager(kv store, ttl time.Duration) (*Manager, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("session: access token ttl must be positive")
	}
	return &Manager{kv: kv, ttl: ttl}, nil
}

func (m *Manager) key(accessID string) (string, error) {
	accessID = strings.TrimSpace(accessID)
	if accessID == "" {
		return "", ErrAccessIDRequired
	}
	return m.kv.AccessSessionKey(accessID), nil
}

// Register records a live session for accessID. It expires with the token.
func (m *Manager) Register(ctx context.Context, accessID, userID string) error {
	key, err := m.key(accessID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return ErrUserIDRequired
	}
	return m.kv.Set(ctx, key, userID, m.ttl)
}

func (m *Manager) Owner(ctx context.Context, accessID string) (string, error) {
	key, err := m.key(accessID)
	if err != nil {
		return "", err
	}
	owner, err := m.kv.Get(ctx, key)
	if errors.Is(err, redislib.Nil) {
		return "", ErrNoSession
	}
	return owner, err
}

// Revoke is idempotent; revoking an unknown id is not an error.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	key, err := m.key(accessID)
	if err != nil {
		return err
	}
	return m.kv.Del(ctx, key)
}

func (m *Manager) HasSession(ctx context.Context, accessID string) (bool, error) {
	switch _, err := m.Owner(ctx, accessID); {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNoSession):
		return false, nil
	default:
		return false, err
	}
}

// NewAccessID returns a fresh token id, used as both the JWT jti and the
// session key suffix.
func NewAccessID() string {
	return uuid.NewString()
}
