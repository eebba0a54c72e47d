package enums

import "fmt"

// Transition is a requested membership change.
type Transition string

const (
	TransitionJoin   Transition = "join"
	TransitionLeave  Transition = "leave"
	TransitionInvite Transition = "invite"
	TransitionKick   Transition = "kick"
	TransitionBan    Transition = "ban"
)

var validTransitions = []Transition{
	TransitionJoin,
	TransitionLeave,
	TransitionInvite,
	TransitionKick,
	TransitionBan,
}

// String implements fmt.Stringer.
func (t Transition) String() string {
	return string(t)
}

// IsValid reports whether the value matches a known Transition.
func (t Transition) IsValid() bool {
	for _, candidate := range validTransitions {
		if candidate == t {
			return true
		}
	}
	return false
}

// IsSelfService reports whether the actor may only apply the transition to itself.
func (t Transition) IsSelfService() bool {
	return t == TransitionJoin || t == TransitionLeave
}

// ParseTransition converts raw input into a Transition.
func ParseTransition(value string) (Transition, error) {
	for _, candidate := range validTransitions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transition %q", value)
}
