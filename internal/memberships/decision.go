package memberships

import (
	"github.com/angelmondragon/roomguard/pkg/enums"
	pkgerrors "github.com/angelmondragon/roomguard/pkg/errors"
)

// Effect is the store write a decision asks for.
type Effect int

const (
	// EffectNone leaves the record untouched: a no-op success or a rejection.
	EffectNone Effect = iota
	// EffectUpsert inserts the (room, user) row or overwrites it.
	EffectUpsert
	// EffectUpdate mutates the row read under the same lock.
	EffectUpdate
)

func (e Effect) String() string {
	switch e {
	case EffectUpsert:
		return "upsert"
	case EffectUpdate:
		return "update"
	default:
		return "none"
	}
}

// AuthContext carries every input of a decision other than the target's
// current state. ActorLevel and Threshold only matter for gated transitions;
// RoomPublic only for join.
type AuthContext struct {
	ActorID    string
	TargetID   string
	ActorState enums.MembershipState
	RoomPublic bool
	ActorLevel int
	Threshold  int
}

// Outcome is the result of Decide. Err is non-nil for rejections, in which
// case Effect is EffectNone.
type Outcome struct {
	Effect Effect
	State  enums.MembershipState
	Sender string
	Err    error
}

// Applied reports whether the outcome writes to the store.
func (o Outcome) Applied() bool {
	return o.Err == nil && o.Effect != EffectNone
}

// Decide evaluates a transition against the target's current state. It has
// no side effects and reads nothing beyond its arguments.
func Decide(current enums.MembershipState, t enums.Transition, auth AuthContext) Outcome {
	if t.IsSelfService() && auth.ActorID != auth.TargetID {
		return rejected(forbidden(ErrNotSelf))
	}

	switch t {
	case enums.TransitionJoin:
		return decideJoin(current, auth)
	case enums.TransitionLeave:
		return decideLeave(current, auth)
	case enums.TransitionInvite:
		return decideInvite(current, auth)
	case enums.TransitionKick:
		return decideRemoval(current, auth, enums.MembershipStateLeave, "kick")
	case enums.TransitionBan:
		return decideRemoval(current, auth, enums.MembershipStateBan, "ban")
	default:
		return rejected(pkgerrors.New(pkgerrors.CodeValidation, "unknown membership transition"))
	}
}

func decideJoin(current enums.MembershipState, auth AuthContext) Outcome {
	switch current {
	case enums.MembershipStateJoin:
		return noop()
	case enums.MembershipStateBan:
		return rejected(forbidden(ErrBanned))
	case enums.MembershipStateInvite:
		return write(EffectUpsert, enums.MembershipStateJoin, auth.ActorID)
	default:
		// none or leave: only an open room admits a user without an invite.
		if !auth.RoomPublic {
			return rejected(forbidden(ErrPrivateRoom))
		}
		return write(EffectUpsert, enums.MembershipStateJoin, auth.ActorID)
	}
}

func decideLeave(current enums.MembershipState, auth AuthContext) Outcome {
	switch current {
	case enums.MembershipStateNone:
		return rejected(forbidden(ErrNotInRoom))
	case enums.MembershipStateLeave:
		return noop()
	case enums.MembershipStateBan:
		return rejected(forbidden(ErrBanned))
	default:
		return write(EffectUpdate, enums.MembershipStateLeave, auth.ActorID)
	}
}

func decideInvite(current enums.MembershipState, auth AuthContext) Outcome {
	if auth.ActorState != enums.MembershipStateJoin {
		return rejected(forbidden(ErrInviterNotJoined))
	}
	if auth.ActorLevel < auth.Threshold {
		return rejected(rejectf(pkgerrors.CodeForbidden, ErrInsufficientPower, "insufficient power level to invite a user"))
	}
	switch current {
	case enums.MembershipStateInvite:
		return noop()
	case enums.MembershipStateJoin:
		return rejected(conflict(ErrAlreadyJoined))
	case enums.MembershipStateBan:
		return rejected(rejectf(pkgerrors.CodeForbidden, ErrBanned, "the invited user is banned from the room"))
	default:
		return write(EffectUpsert, enums.MembershipStateInvite, auth.ActorID)
	}
}

// decideRemoval covers kick and ban. Both require the actor and the target
// to be joined; ban is terminal, so a banned target is "not in the room".
func decideRemoval(current enums.MembershipState, auth AuthContext, next enums.MembershipState, action string) Outcome {
	if auth.ActorState != enums.MembershipStateJoin {
		return rejected(forbidden(ErrKickerNotJoined))
	}
	if current != enums.MembershipStateJoin {
		return rejected(conflict(ErrTargetNotJoined))
	}
	if auth.ActorLevel < auth.Threshold {
		return rejected(rejectf(pkgerrors.CodeForbidden, ErrInsufficientPower, "insufficient power level to %s a user", action))
	}
	return write(EffectUpdate, next, auth.ActorID)
}

func write(effect Effect, state enums.MembershipState, sender string) Outcome {
	return Outcome{Effect: effect, State: state, Sender: sender}
}

func noop() Outcome {
	return Outcome{Effect: EffectNone}
}

func rejected(err error) Outcome {
	return Outcome{Effect: EffectNone, Err: err}
}
