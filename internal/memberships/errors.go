package memberships

import (
	"errors"
	"fmt"

	pkgerrors "github.com/angelmondragon/roomguard/pkg/errors"
)

// Rejection sentinels. Every rejection returned by Attempt wraps exactly one
// of these inside a *pkgerrors.Error carrying the HTTP-facing code.
var (
	ErrRoomNotFound      = errors.New("the room was not found on this server")
	ErrNotInRoom         = errors.New("user not in room or uninvited")
	ErrInviterNotJoined  = errors.New("the inviter hasn't joined the room yet")
	ErrKickerNotJoined   = errors.New("the kicker is not currently in the room")
	ErrTargetNotJoined   = errors.New("the kickee is not currently in the room")
	ErrInsufficientPower = errors.New("insufficient power level")
	ErrBanned            = errors.New("user is banned from the room")
	ErrAlreadyJoined     = errors.New("the invited user has already joined")
	ErrInviteeNotFound   = errors.New("the invited user was not found on this server")
	ErrPrivateRoom       = errors.New("the room is private and the user has no invite")
	ErrNotSelf           = errors.New("users may only join or leave on their own behalf")
)

func reject(code pkgerrors.Code, sentinel error) error {
	return pkgerrors.Wrap(code, sentinel, sentinel.Error())
}

func rejectf(code pkgerrors.Code, sentinel error, format string, args ...any) error {
	return pkgerrors.Wrap(code, sentinel, fmt.Sprintf(format, args...))
}

func forbidden(sentinel error) error {
	return reject(pkgerrors.CodeForbidden, sentinel)
}

func conflict(sentinel error) error {
	return reject(pkgerrors.CodeConflict, sentinel)
}
