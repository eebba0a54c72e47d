package rooms

import (
	"github.com/angelmondragon/roomguard/pkg/db/models"
	"github.com/angelmondragon/roomguard/pkg/enums"
	"github.com/angelmondragon/roomguard/pkg/types"
)

// Default thresholds applied to new rooms.
const (
	DefaultUsersDefault = 0
	DefaultInvite       = 0
	DefaultKick         = 50
	DefaultBan          = 50
	CreatorLevel        = 100
)

// PowerLevels is one room's level map together with its action thresholds.
// It is always read as a single row.
type PowerLevels struct {
	Users        map[string]int `json:"users"`
	UsersDefault int            `json:"users_default"`
	Invite       int            `json:"invite"`
	Kick         int            `json:"kick"`
	Ban          int            `json:"ban"`
}

// PowerLevelOverrides adjusts the defaults at room creation.
type PowerLevelOverrides struct {
	Users        map[string]int `json:"users,omitempty"`
	UsersDefault *int           `json:"users_default,omitempty"`
	Invite       *int           `json:"invite,omitempty"`
	Kick         *int           `json:"kick,omitempty"`
	Ban          *int           `json:"ban,omitempty"`
}

// DefaultPowerLevels returns the levels of a fresh room owned by creatorID.
func DefaultPowerLevels(creatorID string) PowerLevels {
	return PowerLevels{
		Users:        map[string]int{creatorID: CreatorLevel},
		UsersDefault: DefaultUsersDefault,
		Invite:       DefaultInvite,
		Kick:         DefaultKick,
		Ban:          DefaultBan,
	}
}

// Apply merges overrides into p. The creator entry cannot be lowered below
// CreatorLevel so a room always has someone able to moderate it.
func (p PowerLevels) Apply(o *PowerLevelOverrides, creatorID string) PowerLevels {
	if o == nil {
		return p
	}
	out := p
	out.Users = types.UserLevels(p.Users).Clone()
	for user, level := range o.Users {
		out.Users[user] = level
	}
	if out.Users[creatorID] < CreatorLevel {
		out.Users[creatorID] = CreatorLevel
	}
	if o.UsersDefault != nil {
		out.UsersDefault = *o.UsersDefault
	}
	if o.Invite != nil {
		out.Invite = *o.Invite
	}
	if o.Kick != nil {
		out.Kick = *o.Kick
	}
	if o.Ban != nil {
		out.Ban = *o.Ban
	}
	return out
}

// EffectiveLevel returns the user's explicit level, or UsersDefault.
func (p *PowerLevels) EffectiveLevel(userID string) int {
	if p == nil {
		return 0
	}
	if level, ok := p.Users[userID]; ok {
		return level
	}
	return p.UsersDefault
}

// Threshold returns the minimum level for a gated transition. The boolean is
// false for transitions that carry no threshold.
func (p *PowerLevels) Threshold(t enums.Transition) (int, bool) {
	if p == nil {
		return 0, false
	}
	switch t {
	case enums.TransitionInvite:
		return p.Invite, true
	case enums.TransitionKick:
		return p.Kick, true
	case enums.TransitionBan:
		return p.Ban, true
	default:
		return 0, false
	}
}

func powerLevelsFromModel(m models.RoomPowerLevels) *PowerLevels {
	users := types.UserLevels(m.Users).Clone()
	return &PowerLevels{
		Users:        users,
		UsersDefault: m.UsersDefault,
		Invite:       m.Invite,
		Kick:         m.Kick,
		Ban:          m.Ban,
	}
}

func (p PowerLevels) toModel(roomID string) models.RoomPowerLevels {
	return models.RoomPowerLevels{
		RoomID:       roomID,
		Users:        types.UserLevels(p.Users).Clone(),
		UsersDefault: p.UsersDefault,
		Invite:       p.Invite,
		Kick:         p.Kick,
		Ban:          p.Ban,
	}
}
