package enums

import "fmt"

// MembershipState captures a user's relationship to a room.
// MembershipStateNone is never persisted; it stands for "no record".
type MembershipState string

const (
	MembershipStateNone   MembershipState = ""
	MembershipStateInvite MembershipState = "invite"
	MembershipStateJoin   MembershipState = "join"
	MembershipStateLeave  MembershipState = "leave"
	MembershipStateBan    MembershipState = "ban"
)

var validMembershipStates = []MembershipState{
	MembershipStateInvite,
	MembershipStateJoin,
	MembershipStateLeave,
	MembershipStateBan,
}

// String implements fmt.Stringer.
func (m MembershipState) String() string {
	if m == MembershipStateNone {
		return "none"
	}
	return string(m)
}

// IsValid reports whether the value is a persistable MembershipState.
func (m MembershipState) IsValid() bool {
	for _, candidate := range validMembershipStates {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMembershipState converts raw input into a MembershipState.
func ParseMembershipState(value string) (MembershipState, error) {
	for _, candidate := range validMembershipStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid membership state %q", value)
}
