// Package identifiers parses and mints the Matrix-style identifiers used for
// users (@localpart:server), rooms (!opaque:server) and aliases (#name:server).
package identifiers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"maunium.net/go/mautrix/id"
)

const maxIdentifierLength = 255

var (
	ErrInvalidUserID    = errors.New("invalid user id")
	ErrInvalidRoomID    = errors.New("invalid room id")
	ErrInvalidRoomAlias = errors.New("invalid room alias")
)

// ParseUserID validates raw as a fully qualified user id.
func ParseUserID(raw string) (id.UserID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(raw) > maxIdentifierLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidUserID, raw)
	}
	userID := id.UserID(raw)
	localpart, server, err := userID.Parse()
	if err != nil || localpart == "" || !validServer(server) {
		return "", fmt.Errorf("%w: %q", ErrInvalidUserID, raw)
	}
	return userID, nil
}

// ParseRoomID validates raw as a room id.
func ParseRoomID(raw string) (id.RoomID, error) {
	if !validSigilled(strings.TrimSpace(raw), '!') {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoomID, raw)
	}
	return id.RoomID(strings.TrimSpace(raw)), nil
}

// ParseRoomAlias validates raw as a room alias.
func ParseRoomAlias(raw string) (id.RoomAlias, error) {
	if !validSigilled(strings.TrimSpace(raw), '#') {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoomAlias, raw)
	}
	return id.RoomAlias(strings.TrimSpace(raw)), nil
}

// IsRoomAlias reports whether raw carries the alias sigil.
func IsRoomAlias(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), "#")
}

// NewRoomID mints an opaque room id on the given server.
func NewRoomID(server string) id.RoomID {
	opaque := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id.RoomID(fmt.Sprintf("!%s:%s", opaque[:18], server))
}

// AliasFor builds the fully qualified alias for a local name.
func AliasFor(name, server string) (id.RoomAlias, error) {
	return ParseRoomAlias(fmt.Sprintf("#%s:%s", strings.TrimPrefix(strings.TrimSpace(name), "#"), server))
}

func validSigilled(raw string, sigil byte) bool {
	if len(raw) < 4 || len(raw) > maxIdentifierLength || raw[0] != sigil {
		return false
	}
	localpart, server, ok := strings.Cut(raw[1:], ":")
	if !ok || localpart == "" || strings.ContainsAny(localpart, " \t\n") {
		return false
	}
	return validServer(server)
}

func validServer(server string) bool {
	if server == "" || strings.ContainsAny(server, " /\t\n") {
		return false
	}
	host := server
	if h, port, ok := strings.Cut(server, ":"); ok && !strings.HasPrefix(server, "[") {
		if port == "" {
			return false
		}
		host = h
	}
	return host != ""
}
