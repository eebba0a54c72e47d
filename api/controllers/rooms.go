package controllers

import (
	"net/http"

	"github.com/angelmondragon/roomguard/api/middleware"
	"github.com/angelmondragon/roomguard/api/responses"
	"github.com/angelmondragon/roomguard/api/validators"
	"github.com/angelmondragon/roomguard/internal/rooms"
	"github.com/angelmondragon/roomguard/pkg/enums"
	pkgerrors "github.com/angelmondragon/roomguard/pkg/errors"
	"github.com/angelmondragon/roomguard/pkg/logger"
)

type createRoomRequest struct {
	Visibility  string                     `json:"visibility" validate:"omitempty,oneof=public private"`
	Alias       string                     `json:"alias,omitempty" validate:"omitempty,max=255"`
	PowerLevels *rooms.PowerLevelOverrides `json:"power_levels,omitempty"`
}

// CreateRoom provisions a room owned by the caller.
func CreateRoom(svc rooms.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "room service unavailable"))
			return
		}
		var req createRoomRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		room, err := svc.Create(r.Context(), middleware.UserIDFromContext(r.Context()), rooms.CreateRoomInput{
			Visibility:  enums.RoomVisibility(req.Visibility),
			Alias:       req.Alias,
			PowerLevels: req.PowerLevels,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, room)
	}
}

func GetPowerLevels(svc rooms.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "room service unavailable"))
			return
		}
		levels, err := svc.PowerLevels(r.Context(), middleware.UserIDFromContext(r.Context()), pathParam(r, "roomID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, levels)
	}
}

// GetAliases lists the aliases that resolve to the room.
func GetAliases(svc rooms.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "room service unavailable"))
			return
		}
		aliases, err := svc.Aliases(r.Context(), middleware.UserIDFromContext(r.Context()), pathParam(r, "roomID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, aliases)
	}
}
