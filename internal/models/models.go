package models

import "errors"

var (
	ErrNotFound = errors.New("not found")
)

type UserStatus string

const (
	UserStatusActive  UserStatus = "active"
	UserStatusDeleted UserStatus = "deleted"
)

// User is a user profile as returned to other users.
type User struct {
	ID          string     `json:"id,omitempty"`
	UserName    string     `json:"username,omitempty"`
	Name        string     `json:"name,omitempty"`
	StatusText  string     `json:"statusText,omitempty"`
	AvatarURL   string     `json:"avatarUrl,omitempty"`
	Roles       []string   `json:"roles,omitempty"`
	ParsedRoles []*string  `json:"parsedRoles,omitempty"` // aligned with Roles, nil when a role has no description
	Status      UserStatus `json:"status,omitempty"`
}

// IsEmpty reports whether nothing is known about the user yet.
func (u User) IsEmpty() bool {
	return u.ID == "" && u.UserName == "" && u.Name == ""
}

// RoomType is the short type tag of a room.
type RoomType string

const (
	RoomTypeDirect   RoomType = "d"
	RoomTypeChannel  RoomType = "c"
	RoomTypeGroup    RoomType = "p"
	RoomTypeLivechat RoomType = "l"
)

// Room describes a conversation.
type Room struct {
	ID           string   `json:"rid"`
	Type         RoomType `json:"t"`
	PRID         string   `json:"prid,omitempty"` // parent room id, set for discussions
	Name         string   `json:"name,omitempty"`
	FName        string   `json:"fname,omitempty"`
	Description  string   `json:"description,omitempty"`
	Topic        string   `json:"topic,omitempty"`
	Announcement string   `json:"announcement,omitempty"`
	UIDs         []string `json:"uids,omitempty"`
	ReadOnly     bool     `json:"ro,omitempty"`
	Broadcast    bool     `json:"broadcast,omitempty"`
	Archived     bool     `json:"archived,omitempty"`
}

// IsDiscussion reports whether the room is linked to a parent room.
func (r Room) IsDiscussion() bool {
	return r.PRID != ""
}

// Membership holds room scoped roles of a user, e.g. owner or moderator.
type Membership struct {
	RoomID string   `json:"rid"`
	UserID string   `json:"userId"`
	Roles  []string `json:"roles,omitempty"`
}

type Role struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// Permission lists the roles granted a capability.
type Permission struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

const PermissionEditRoom = "edit-room"

type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
