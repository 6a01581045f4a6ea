package models

// RoomInfoView is the rendered room info panel sent to clients.
type RoomInfoView struct {
	Mode       string         `json:"mode"`
	Title      string         `json:"title"`
	Icon       string         `json:"icon"`
	Room       Room           `json:"room"`
	User       *UserView      `json:"user,omitempty"`
	ShowEdit   bool           `json:"showEdit"`
	EditTarget string         `json:"editTarget,omitempty"`
	Actions    *DirectActions `json:"actions,omitempty"`
}

type UserView struct {
	User
	Title      string `json:"title"`
	StatusHTML string `json:"statusHtml,omitempty"`
}

// DirectActions are the conversation shortcuts offered for a direct room.
type DirectActions struct {
	RoomID       string `json:"rid"`
	VideoCallURL string `json:"videoCallUrl,omitempty"`
}

type ClientMessageType string

const (
	// ClientMessageTypeOpen navigates the view to a room.
	ClientMessageTypeOpen  ClientMessageType = "open"
	ClientMessageTypeClose ClientMessageType = "close"
)

type ClientMessage struct {
	Type     ClientMessageType `json:"type"`
	RoomID   string            `json:"rid,omitempty"`
	RoomType RoomType          `json:"t,omitempty"`
}

type ServerMessageType string

const (
	ServerMessageTypeView  ServerMessageType = "view"
	ServerMessageTypeError ServerMessageType = "error"
)

type ServerMessage struct {
	Type    ServerMessageType `json:"type"`
	View    *RoomInfoView     `json:"view,omitempty"`
	Message string            `json:"message,omitempty"`
}
