package controllers

import (
	"net/http"

	"github.com/angelmondragon/roomguard/api/middleware"
	"github.com/angelmondragon/roomguard/api/responses"
	"github.com/angelmondragon/roomguard/api/validators"
	"github.com/angelmondragon/roomguard/internal/memberships"
	"github.com/angelmondragon/roomguard/internal/rooms"
	"github.com/angelmondragon/roomguard/pkg/enums"
	pkgerrors "github.com/angelmondragon/roomguard/pkg/errors"
	"github.com/angelmondragon/roomguard/pkg/logger"
	"github.com/angelmondragon/roomguard/pkg/pagination"
)

type inviteRequest struct {
	UserID string `json:"user_id" validate:"required,userid"`
}

type moderationRequest struct {
	UserID string  `json:"user_id" validate:"required,userid"`
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=1024"`
}

type joinResponse struct {
	RoomID string `json:"room_id"`
}

// JoinRoom joins the caller to the room in the path.
func JoinRoom(svc memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "membership service unavailable"))
			return
		}
		join(w, r, svc, logg, pathParam(r, "roomID"))
	}
}

// JoinRoomByRef joins the caller to a room named by id or alias.
func JoinRoomByRef(roomSvc rooms.Service, svc memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if roomSvc == nil || svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "membership service unavailable"))
			return
		}
		ref := pathParam(r, "roomIDOrAlias")
		if !validators.IsRoomRef(ref) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid room id or alias").
				WithDetails(map[string]string{"room_id_or_alias": "must be a room id or alias"}))
			return
		}
		roomID, err := roomSvc.ResolveRoomRef(r.Context(), ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		join(w, r, svc, logg, roomID)
	}
}

func join(w http.ResponseWriter, r *http.Request, svc memberships.Service, logg *logger.Logger, roomID string) {
	record, err := svc.Attempt(r.Context(), memberships.AttemptInput{
		ActorID:    middleware.UserIDFromContext(r.Context()),
		RoomID:     roomID,
		Transition: enums.TransitionJoin,
	})
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, joinResponse{RoomID: record.RoomID})
}

// LeaveRoom removes the caller from the room.
func LeaveRoom(svc memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "membership service unavailable"))
			return
		}
		attempt(w, r, svc, logg, memberships.AttemptInput{
			ActorID:    middleware.UserIDFromContext(r.Context()),
			RoomID:     pathParam(r, "roomID"),
			Transition: enums.TransitionLeave,
		})
	}
}

func InviteUser(svc memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "membership service unavailable"))
			return
		}
		var req inviteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		attempt(w, r, svc, logg, memberships.AttemptInput{
			ActorID:    middleware.UserIDFromContext(r.Context()),
			TargetID:   req.UserID,
			RoomID:     pathParam(r, "roomID"),
			Transition: enums.TransitionInvite,
		})
	}
}

// KickUser and BanUser share one handler shape; only the transition differs.
func KickUser(svc memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return moderate(svc, enums.TransitionKick, logg)
}

func BanUser(svc memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return moderate(svc, enums.TransitionBan, logg)
}

func moderate(svc memberships.Service, transition enums.Transition, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "membership service unavailable"))
			return
		}
		var req moderationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		attempt(w, r, svc, logg, memberships.AttemptInput{
			ActorID:    middleware.UserIDFromContext(r.Context()),
			TargetID:   req.UserID,
			RoomID:     pathParam(r, "roomID"),
			Transition: transition,
			Reason:     req.Reason,
		})
	}
}

func attempt(w http.ResponseWriter, r *http.Request, svc memberships.Service, logg *logger.Logger, input memberships.AttemptInput) {
	record, err := svc.Attempt(r.Context(), input)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, record)
}

// ListMembers pages through the room's member list.
func ListMembers(svc memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "membership service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		state, err := validators.ParseQueryEnum(r, "membership",
			string(enums.MembershipStateJoin),
			string(enums.MembershipStateInvite),
			string(enums.MembershipStateLeave),
			string(enums.MembershipStateBan),
		)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListMembers(r.Context(), memberships.ListMembersInput{
			ActorID:    middleware.UserIDFromContext(r.Context()),
			RoomID:     pathParam(r, "roomID"),
			Membership: state,
			Limit:      limit,
			Cursor:     r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// GetMember returns one user's membership record in the room.
func GetMember(svc memberships.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "membership service unavailable"))
			return
		}
		record, err := svc.Get(r.Context(), middleware.UserIDFromContext(r.Context()), pathParam(r, "roomID"), pathParam(r, "userID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, record)
	}
}
