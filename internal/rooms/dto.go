package rooms

import (
	"time"

	"github.com/angelmondragon/roomguard/pkg/db/models"
	"github.com/angelmondragon/roomguard/pkg/enums"
)

// CreateRoomInput describes a room to provision. Alias may be a bare local
// name or a fully qualified #name:server on this server.
type CreateRoomInput struct {
	Visibility  enums.RoomVisibility
	Alias       string
	PowerLevels *PowerLevelOverrides
}

// RoomDTO is the transport shape for a provisioned room.
type RoomDTO struct {
	RoomID     string               `json:"room_id"`
	CreatorID  string               `json:"creator_id"`
	Visibility enums.RoomVisibility `json:"visibility"`
	Alias      *string              `json:"alias,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

// PowerLevelsDTO is returned by the power_levels read.
type PowerLevelsDTO struct {
	RoomID string `json:"room_id"`
	PowerLevels
}

// AliasesDTO lists every alias pointing at a room.
type AliasesDTO struct {
	RoomID  string   `json:"room_id"`
	Aliases []string `json:"aliases"`
}

func roomFromModel(m models.Room, alias *string) RoomDTO {
	return RoomDTO{
		RoomID:     m.ID,
		CreatorID:  m.CreatorID,
		Visibility: m.Visibility,
		Alias:      alias,
		CreatedAt:  m.CreatedAt,
	}
}
