package enums

import "fmt"

// RoomVisibility controls whether users may join a room without an invite.
type RoomVisibility string

const (
	RoomVisibilityPublic  RoomVisibility = "public"
	RoomVisibilityPrivate RoomVisibility = "private"
)

var validRoomVisibilities = []RoomVisibility{
	RoomVisibilityPublic,
	RoomVisibilityPrivate,
}

// String implements fmt.Stringer.
func (r RoomVisibility) String() string {
	return string(r)
}

// IsValid reports whether the value matches a known RoomVisibility.
func (r RoomVisibility) IsValid() bool {
	for _, candidate := range validRoomVisibilities {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRoomVisibility converts raw input into a RoomVisibility.
func ParseRoomVisibility(value string) (RoomVisibility, error) {
	for _, candidate := range validRoomVisibilities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid room visibility %q", value)
}
