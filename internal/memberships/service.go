package memberships

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/roomguard/internal/rooms"
	"github.com/angelmondragon/roomguard/pkg/db/models"
	"github.com/angelmondragon/roomguard/pkg/enums"
	pkgerrors "github.com/angelmondragon/roomguard/pkg/errors"
	"github.com/angelmondragon/roomguard/pkg/identifiers"
	"github.com/angelmondragon/roomguard/pkg/logger"
	"github.com/angelmondragon/roomguard/pkg/metrics"
	"github.com/angelmondragon/roomguard/pkg/pagination"
)

type roomResolver interface {
	RoomExists(ctx context.Context, roomID string) (bool, error)
	CurrentPowerLevels(ctx context.Context, roomID string) (*rooms.PowerLevels, error)
	IsPublic(ctx context.Context, roomID string) (bool, error)
}

type userDirectory interface {
	ExistsAndActive(ctx context.Context, userID string) (bool, error)
}

// Service is the membership transition engine.
type Service interface {
	Attempt(ctx context.Context, input AttemptInput) (*MembershipDTO, error)
	// Get reads one record. Callers may always read their own; reading
	// anyone else's requires being joined to the room.
	Get(ctx context.Context, actorID, roomID, userID string) (*MembershipDTO, error)
	ListMembers(ctx context.Context, input ListMembersInput) (*MemberPage, error)
}

type service struct {
	rooms   roomResolver
	users   userDirectory
	store   MembershipStore
	metrics *metrics.MembershipMetrics
	logg    *logger.Logger
}

// NewService wires the engine to its collaborators. Metrics are optional.
func NewService(roomsResolver roomResolver, users userDirectory, store MembershipStore, m *metrics.MembershipMetrics, logg *logger.Logger) (Service, error) {
	if roomsResolver == nil {
		return nil, fmt.Errorf("room resolver required")
	}
	if users == nil {
		return nil, fmt.Errorf("user directory required")
	}
	if store == nil {
		return nil, fmt.Errorf("membership store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		rooms:   roomsResolver,
		users:   users,
		store:   store,
		metrics: m,
		logg:    logg,
	}, nil
}

// Attempt validates, decides and commits one transition. Rejections are
// returned once; the engine never retries.
func (s *service) Attempt(ctx context.Context, input AttemptInput) (*MembershipDTO, error) {
	started := time.Now()
	record, outcome, err := s.attempt(ctx, input)

	result := metrics.OutcomeApplied
	switch {
	case err != nil && pkgerrors.CodeOf(err) == pkgerrors.CodeDependency:
		result = metrics.OutcomeFailed
	case err != nil:
		result = metrics.OutcomeRejected
	case !outcome.Applied():
		result = metrics.OutcomeNoop
	}
	s.metrics.ObserveTransition(string(input.Transition), result, time.Since(started))

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"room_id":    input.RoomID,
		"actor_id":   input.ActorID,
		"target_id":  input.TargetID,
		"transition": string(input.Transition),
		"outcome":    result,
	})
	switch result {
	case metrics.OutcomeFailed:
		s.logg.Error(logCtx, "membership.transition", err)
		return nil, err
	case metrics.OutcomeRejected:
		s.logg.Info(s.logg.WithField(logCtx, "reason", err.Error()), "membership.transition")
		return nil, err
	}
	s.logg.Info(logCtx, "membership.transition")
	return FromModel(record), nil
}

func (s *service) attempt(ctx context.Context, input AttemptInput) (*models.RoomMembership, Outcome, error) {
	transition, actorID, targetID, roomID, err := validateInput(input)
	if err != nil {
		return nil, Outcome{}, err
	}

	exists, err := s.rooms.RoomExists(ctx, roomID)
	if err != nil {
		return nil, Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup room")
	}
	if !exists {
		return nil, Outcome{}, forbidden(ErrRoomNotFound)
	}

	if transition == enums.TransitionInvite {
		active, err := s.users.ExistsAndActive(ctx, targetID)
		if err != nil {
			return nil, Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup invitee")
		}
		if !active {
			return nil, Outcome{}, rejectf(pkgerrors.CodeNotFound, ErrInviteeNotFound,
				"the invited user %s was not found on this server", targetID)
		}
	}

	var (
		result  *models.RoomMembership
		outcome Outcome
	)
	err = s.store.WithinRoom(ctx, roomID, func(ctx context.Context, store Store) error {
		current, err := store.Find(ctx, roomID, targetID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read membership")
		}

		auth, err := s.authContext(ctx, store, transition, roomID, actorID, targetID, current)
		if err != nil {
			return err
		}

		outcome = Decide(stateOf(current), transition, auth)
		if outcome.Err != nil {
			return outcome.Err
		}

		switch outcome.Effect {
		case EffectUpsert:
			result, err = store.Upsert(ctx, roomID, targetID, outcome.Sender, outcome.State, input.Reason)
		case EffectUpdate:
			result, err = store.Update(ctx, current, outcome.Sender, outcome.State, input.Reason)
		default:
			result = current
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write membership")
		}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, "membership transaction")
		}
		return nil, outcome, err
	}
	return result, outcome, nil
}

// authContext gathers only the inputs the transition needs, read under the
// room lock.
func (s *service) authContext(ctx context.Context, store Store, t enums.Transition, roomID, actorID, targetID string, target *models.RoomMembership) (AuthContext, error) {
	auth := AuthContext{ActorID: actorID, TargetID: targetID}

	switch t {
	case enums.TransitionJoin:
		state := stateOf(target)
		if state == enums.MembershipStateNone || state == enums.MembershipStateLeave {
			public, err := s.rooms.IsPublic(ctx, roomID)
			if err != nil {
				return auth, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read join rule")
			}
			auth.RoomPublic = public
		}
		return auth, nil
	case enums.TransitionLeave:
		return auth, nil
	}

	actor := target
	if actorID != targetID {
		var err error
		if actor, err = store.Find(ctx, roomID, actorID); err != nil {
			return auth, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read actor membership")
		}
	}
	auth.ActorState = stateOf(actor)
	if auth.ActorState != enums.MembershipStateJoin {
		// Decide rejects before looking at levels.
		return auth, nil
	}

	levels, err := s.rooms.CurrentPowerLevels(ctx, roomID)
	if err != nil {
		return auth, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read power levels")
	}
	auth.ActorLevel = levels.EffectiveLevel(actorID)
	auth.Threshold, _ = levels.Threshold(t)
	return auth, nil
}

func (s *service) Get(ctx context.Context, actorID, roomID, userID string) (*MembershipDTO, error) {
	room, err := identifiers.ParseRoomID(roomID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid room id")
	}
	actor, err := identifiers.ParseUserID(actorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid actor id")
	}
	user, err := identifiers.ParseUserID(userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}
	if actor != user {
		if err := s.requireJoined(ctx, room.String(), actor.String()); err != nil {
			return nil, err
		}
	}

	record, err := s.store.Get(ctx, room.String(), user.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read membership")
	}
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
	}
	return FromModel(record), nil
}

// ListMembers pages through a room's members. Only joined members may list.
func (s *service) ListMembers(ctx context.Context, input ListMembersInput) (*MemberPage, error) {
	room, err := identifiers.ParseRoomID(input.RoomID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid room id")
	}
	actor, err := identifiers.ParseUserID(input.ActorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid actor id")
	}
	var state enums.MembershipState
	if filter := strings.TrimSpace(input.Membership); filter != "" {
		if state, err = enums.ParseMembershipState(filter); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid membership filter")
		}
	}
	if err := s.requireJoined(ctx, room.String(), actor.String()); err != nil {
		return nil, err
	}

	rows, next, err := s.store.ListMembers(ctx, room.String(), state, pagination.Params{Limit: input.Limit, Cursor: input.Cursor})
	if err != nil {
		if errors.Is(err, pagination.ErrInvalidCursor) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list members")
	}

	page := &MemberPage{Members: make([]MembershipDTO, 0, len(rows)), NextCursor: next}
	for i := range rows {
		page.Members = append(page.Members, *FromModel(&rows[i]))
	}
	return page, nil
}

// requireJoined rejects an unknown room and a non-member with the same code.
func (s *service) requireJoined(ctx context.Context, roomID, actorID string) error {
	exists, err := s.rooms.RoomExists(ctx, roomID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup room")
	}
	if !exists {
		return forbidden(ErrRoomNotFound)
	}
	own, err := s.store.Get(ctx, roomID, actorID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read membership")
	}
	if stateOf(own) != enums.MembershipStateJoin {
		return forbidden(ErrNotInRoom)
	}
	return nil
}

func validateInput(input AttemptInput) (enums.Transition, string, string, string, error) {
	transition, err := enums.ParseTransition(string(input.Transition))
	if err != nil {
		return "", "", "", "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown membership transition")
	}
	actor, err := identifiers.ParseUserID(input.ActorID)
	if err != nil {
		return "", "", "", "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid actor id")
	}
	targetRaw := input.TargetID
	if targetRaw == "" && transition.IsSelfService() {
		targetRaw = actor.String()
	}
	target, err := identifiers.ParseUserID(targetRaw)
	if err != nil {
		return "", "", "", "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target id")
	}
	room, err := identifiers.ParseRoomID(input.RoomID)
	if err != nil {
		return "", "", "", "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid room id")
	}
	if input.Reason != nil && len(*input.Reason) > maxReasonLength {
		return "", "", "", "", pkgerrors.New(pkgerrors.CodeValidation, "reason is too long").
			WithDetails(map[string]any{"max_length": maxReasonLength})
	}
	return transition, actor.String(), target.String(), room.String(), nil
}

const maxReasonLength = 1024
