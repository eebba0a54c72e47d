package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/roomguard/pkg/db"
	"github.com/angelmondragon/roomguard/pkg/db/models"
	"github.com/angelmondragon/roomguard/pkg/enums"
	pkgerrors "github.com/angelmondragon/roomguard/pkg/errors"
	"github.com/angelmondragon/roomguard/pkg/identifiers"
	"github.com/angelmondragon/roomguard/pkg/metrics"
	"gorm.io/gorm"
)

type roomRepository interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
	CreateRoom(ctx context.Context, room *models.Room, levels PowerLevels) error
	CreateAlias(ctx context.Context, alias *models.RoomAlias) error
	ResolveAlias(ctx context.Context, alias string) (string, error)
	FindByID(ctx context.Context, roomID string) (*models.Room, error)
	CurrentPowerLevels(ctx context.Context, roomID string) (*PowerLevels, error)
	ListAliases(ctx context.Context, roomID string) ([]string, error)
}

type membershipStore interface {
	Upsert(ctx context.Context, roomID, userID, senderID string, state enums.MembershipState, reason *string) (*models.RoomMembership, error)
	Get(ctx context.Context, roomID, userID string) (*models.RoomMembership, error)
}

var (
	// ErrRoomNotFound is reported as forbidden so reads do not reveal which rooms exist.
	ErrRoomNotFound = errors.New("the room was not found on this server")
	ErrNotJoined    = errors.New("user not in room or uninvited")
)

type userDirectory interface {
	ExistsAndActive(ctx context.Context, userID string) (bool, error)
}

// Service exposes room provisioning and lookups.
type Service interface {
	Create(ctx context.Context, creatorID string, input CreateRoomInput) (*RoomDTO, error)
	ResolveAlias(ctx context.Context, alias string) (string, error)
	ResolveRoomRef(ctx context.Context, ref string) (string, error)
	// PowerLevels and Aliases are visible to joined members only.
	PowerLevels(ctx context.Context, actorID, roomID string) (*PowerLevelsDTO, error)
	Aliases(ctx context.Context, actorID, roomID string) (*AliasesDTO, error)
}

type service struct {
	repo       roomRepository
	members    membershipStore
	users      userDirectory
	serverName string
	metrics    *metrics.MembershipMetrics
}

// NewService builds a room service. Rooms and aliases are minted on serverName.
func NewService(repo roomRepository, members membershipStore, users userDirectory, serverName string, m *metrics.MembershipMetrics) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("room repository required")
	}
	if members == nil {
		return nil, fmt.Errorf("membership store required")
	}
	if users == nil {
		return nil, fmt.Errorf("user directory required")
	}
	if strings.TrimSpace(serverName) == "" {
		return nil, fmt.Errorf("server name required")
	}
	return &service{
		repo:       repo,
		members:    members,
		users:      users,
		serverName: serverName,
		metrics:    m,
	}, nil
}

func (s *service) Create(ctx context.Context, creatorID string, input CreateRoomInput) (*RoomDTO, error) {
	creator, err := identifiers.ParseUserID(creatorID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid creator id")
	}

	visibility := input.Visibility
	if visibility == "" {
		visibility = enums.RoomVisibilityPrivate
	}
	if !visibility.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid visibility %q", input.Visibility))
	}

	alias, err := s.localAlias(input.Alias)
	if err != nil {
		return nil, err
	}

	if input.PowerLevels != nil {
		for user := range input.PowerLevels.Users {
			if _, err := identifiers.ParseUserID(user); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user in power levels").
					WithDetails(map[string]any{"user_id": user})
			}
		}
	}
	levels := DefaultPowerLevels(creator.String()).Apply(input.PowerLevels, creator.String())

	active, err := s.users.ExistsAndActive(ctx, creator.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup creator")
	}
	if !active {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "the creator is not an active user on this server")
	}

	room := &models.Room{
		ID:         identifiers.NewRoomID(s.serverName).String(),
		CreatorID:  creator.String(),
		Visibility: visibility,
	}

	err = s.repo.Transaction(ctx, func(ctx context.Context) error {
		if err := s.repo.CreateRoom(ctx, room, levels); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create room")
		}
		if alias != "" {
			row := &models.RoomAlias{Alias: alias, RoomID: room.ID, CreatorID: room.CreatorID}
			if err := s.repo.CreateAlias(ctx, row); err != nil {
				if db.IsUniqueViolation(err, "") {
					return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "room alias already in use")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create room alias")
			}
		}
		if _, err := s.members.Upsert(ctx, room.ID, room.CreatorID, room.CreatorID, enums.MembershipStateJoin, nil); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "join creator")
		}
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create room")
	}

	s.metrics.IncRoomsCreated()

	var aliasPtr *string
	if alias != "" {
		aliasPtr = &alias
	}
	dto := roomFromModel(*room, aliasPtr)
	return &dto, nil
}

func (s *service) ResolveAlias(ctx context.Context, alias string) (string, error) {
	parsed, err := identifiers.ParseRoomAlias(alias)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid room alias")
	}
	roomID, err := s.repo.ResolveAlias(ctx, parsed.String())
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve room alias")
	}
	if roomID == "" {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "room alias not found")
	}
	return roomID, nil
}

// ResolveRoomRef accepts either a room id or an alias and returns the room id.
func (s *service) ResolveRoomRef(ctx context.Context, ref string) (string, error) {
	if identifiers.IsRoomAlias(ref) {
		return s.ResolveAlias(ctx, ref)
	}
	roomID, err := identifiers.ParseRoomID(ref)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid room id or alias")
	}
	return roomID.String(), nil
}

func (s *service) PowerLevels(ctx context.Context, actorID, roomID string) (*PowerLevelsDTO, error) {
	room, err := s.requireJoined(ctx, actorID, roomID)
	if err != nil {
		return nil, err
	}
	levels, err := s.repo.CurrentPowerLevels(ctx, room)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeForbidden, ErrRoomNotFound, ErrRoomNotFound.Error())
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read power levels")
	}
	return &PowerLevelsDTO{RoomID: room, PowerLevels: *levels}, nil
}

func (s *service) Aliases(ctx context.Context, actorID, roomID string) (*AliasesDTO, error) {
	room, err := s.requireJoined(ctx, actorID, roomID)
	if err != nil {
		return nil, err
	}
	aliases, err := s.repo.ListAliases(ctx, room)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list room aliases")
	}
	if aliases == nil {
		aliases = []string{}
	}
	return &AliasesDTO{RoomID: room, Aliases: aliases}, nil
}

// requireJoined returns the canonical room id when actorID is joined to it.
// An unknown room and a room the actor is not in fail with the same code.
func (s *service) requireJoined(ctx context.Context, actorID, roomID string) (string, error) {
	room, err := identifiers.ParseRoomID(roomID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid room id")
	}
	actor, err := identifiers.ParseUserID(actorID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid actor id")
	}

	if _, err := s.repo.FindByID(ctx, room.String()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", pkgerrors.Wrap(pkgerrors.CodeForbidden, ErrRoomNotFound, ErrRoomNotFound.Error())
		}
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup room")
	}
	own, err := s.members.Get(ctx, room.String(), actor.String())
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read membership")
	}
	if own == nil || own.State != enums.MembershipStateJoin {
		return "", pkgerrors.Wrap(pkgerrors.CodeForbidden, ErrNotJoined, ErrNotJoined.Error())
	}
	return room.String(), nil
}

// localAlias qualifies a bare name with this server and rejects aliases
// belonging to other servers.
func (s *service) localAlias(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	var (
		alias string
		err   error
	)
	if identifiers.IsRoomAlias(raw) && strings.Contains(raw, ":") {
		parsed, perr := identifiers.ParseRoomAlias(raw)
		alias, err = parsed.String(), perr
	} else {
		parsed, perr := identifiers.AliasFor(raw, s.serverName)
		alias, err = parsed.String(), perr
	}
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid room alias")
	}
	if _, server, _ := strings.Cut(alias, ":"); server != s.serverName {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "room alias must belong to this server").
			WithDetails(map[string]any{"alias": alias})
	}
	return alias, nil
}
