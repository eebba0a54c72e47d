// Package pagination implements keyset paging over rows ordered by a unique,
// immutable string key.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCursor is returned for cursors this package did not produce.
var ErrInvalidCursor = errors.New("invalid cursor")

const (
	DefaultLimit = 25
	MaxLimit     = 100

	cursorTag = "k|"
)

type Params struct {
	Limit  int
	Cursor string
}

// Cursor points at the last key returned on the previous page.
type Cursor struct {
	After string
}

// NormalizeLimit clamps limit into [1, MaxLimit], using DefaultLimit for
// non-positive values.
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// LimitWithBuffer is the row count to fetch so that one extra row reveals
// whether another page exists.
func LimitWithBuffer(limit int) int {
	return NormalizeLimit(limit) + 1
}

func EncodeCursor(cursor Cursor) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorTag + cursor.After))
}

// ParseCursor returns nil for a blank value.
func ParseCursor(value string) (*Cursor, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	after, ok := strings.CutPrefix(string(raw), cursorTag)
	if !ok || after == "" {
		return nil, fmt.Errorf("%w: missing key", ErrInvalidCursor)
	}
	return &Cursor{After: after}, nil
}

// Trim cuts rows fetched with LimitWithBuffer down to one page. The returned
// cursor is empty on the last page.
func Trim[T any](rows []T, limit int, keyOf func(T) string) ([]T, string) {
	limit = NormalizeLimit(limit)
	if len(rows) <= limit {
		return rows, ""
	}
	rows = rows[:limit]
	return rows, EncodeCursor(Cursor{After: keyOf(rows[len(rows)-1])})
}
