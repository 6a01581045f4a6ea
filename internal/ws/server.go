package ws

import (
	"log/slog"
	"net/http"

	"roominfo/internal/models"

	"github.com/gorilla/websocket"
)

type tokenVerifier interface {
	GetUserID(token string) (string, error)
}

type Server struct {
	auth     tokenVerifier
	hub      *Hub
	dir      directory
	views    presenter
	upgrader *websocket.Upgrader
}

func NewServer(auth tokenVerifier, hub *Hub, dir directory, views presenter) *Server {
	return &Server{
		auth:  auth,
		hub:   hub,
		dir:   dir,
		views: views,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// HandleConnections upgrades an authenticated request to a live room info
// view. The rid and t query parameters open a room right away.
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("token")
	if token == "" {
		if c, err := r.Cookie("token"); err == nil {
			token = c.Value
		}
	}
	userID, err := s.auth.GetUserID(token)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "user_id", userID, "error", err)
		return
	}

	c := NewConnection(s.hub, s.dir, s.views, conn, userID)
	if rid := r.URL.Query().Get("rid"); rid != "" {
		c.Initial = &models.ClientMessage{
			Type:     models.ClientMessageTypeOpen,
			RoomID:   rid,
			RoomType: models.RoomType(r.URL.Query().Get("t")),
		}
	}

	if err := c.Handle(r.Context()); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		slog.Debug("websocket connection closed", "user_id", userID, "error", err)
	}
}
