package roominfo

import "roominfo/internal/models"

// Preload describes what the caller already knows about the room.
// It is one of NotPreloaded, Static or Observed.
type Preload interface {
	seed() (models.Room, bool)
}

// NotPreloaded means only the room id and type are known.
type NotPreloaded struct{}

// Static carries a plain room object. The room is still fetched.
type Static struct {
	Room models.Room
}

// Observed carries a room together with a live source of its changes.
// The room is never fetched; changes come from Source.
type Observed struct {
	Room   models.Room
	Source Observable
}

func (NotPreloaded) seed() (models.Room, bool) { return models.Room{}, false }
func (p Static) seed() (models.Room, bool)     { return p.Room, true }
func (p Observed) seed() (models.Room, bool)   { return p.Room, true }

// Navigation is the context a room info view is opened with.
type Navigation struct {
	RoomID  string
	Type    models.RoomType
	Preload Preload
	// Member is the counterpart of a direct room when the caller already has it.
	Member models.User
}

func (n Navigation) seedRoom() models.Room {
	var room models.Room
	if n.Preload != nil {
		room, _ = n.Preload.seed()
	}
	if room.ID == "" {
		room.ID = n.RoomID
	}
	if room.Type == "" {
		room.Type = n.Type
	}
	return room
}
