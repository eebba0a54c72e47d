package memberships

import (
	"time"

	"github.com/angelmondragon/roomguard/pkg/db/models"
	"github.com/angelmondragon/roomguard/pkg/enums"
)

// AttemptInput is one requested transition. For join and leave TargetID may
// be left empty, in which case the actor is the target.
type AttemptInput struct {
	ActorID    string
	TargetID   string
	RoomID     string
	Transition enums.Transition
	Reason     *string
}

// MembershipDTO is the transport shape for a membership record.
type MembershipDTO struct {
	RoomID     string                `json:"room_id"`
	UserID     string                `json:"user_id"`
	SenderID   string                `json:"sender_id"`
	Membership enums.MembershipState `json:"membership"`
	Reason     *string               `json:"reason,omitempty"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// MemberPage is one page of a room's member list.
type MemberPage struct {
	Members    []MembershipDTO `json:"members"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// ListMembersInput filters a member listing. An empty Membership lists all
// states.
type ListMembersInput struct {
	ActorID    string
	RoomID     string
	Membership string
	Limit      int
	Cursor     string
}

func FromModel(m *models.RoomMembership) *MembershipDTO {
	if m == nil {
		return nil
	}
	return &MembershipDTO{
		RoomID:     m.RoomID,
		UserID:     m.UserID,
		SenderID:   m.SenderID,
		Membership: m.State,
		Reason:     cloneString(m.Reason),
		UpdatedAt:  m.UpdatedAt,
	}
}
