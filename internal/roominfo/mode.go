package roominfo

import "roominfo/internal/models"

// Mode selects how a room info view is populated.
type Mode string

const (
	ModeDirect   Mode = "direct"
	ModeLivechat Mode = "livechat"
	ModeChannel  Mode = "channel"
)

// Classify maps a room type tag to a Mode. Unknown tags are channels.
func Classify(t models.RoomType) Mode {
	switch t {
	case models.RoomTypeDirect, "direct":
		return ModeDirect
	case models.RoomTypeLivechat, "livechat":
		return ModeLivechat
	default:
		return ModeChannel
	}
}

// EditTarget names the editor that the edit affordance opens. Only channel
// views offer it.
const EditTarget = "room-info-edit"

// IconType returns the icon to show next to a room title.
func IconType(room models.Room) string {
	if room.IsDiscussion() {
		return "discussion"
	}
	return string(room.Type)
}

// RoomTitle returns the display title of a room. Discussions are always
// titled by their full name.
func RoomTitle(room models.Room, useRealName bool) string {
	if (useRealName || room.IsDiscussion()) && room.FName != "" {
		return room.FName
	}
	if room.Name != "" {
		return room.Name
	}
	return room.FName
}

// UserTitle returns the display title of a user.
func UserTitle(user models.User, useRealName bool) string {
	if useRealName && user.Name != "" {
		return user.Name
	}
	if user.UserName != "" {
		return user.UserName
	}
	return user.Name
}
