package service

import (
	"context"

	"roominfo/internal/chat"
	"roominfo/internal/models"
	"roominfo/internal/roominfo"
)

var (
	_ roominfo.RoomFetcher       = (*Session)(nil)
	_ roominfo.PermissionChecker = (*Session)(nil)
	_ roominfo.UserFetcher       = (*Session)(nil)
	_ roominfo.RoleLookup        = (*Session)(nil)
	_ roominfo.DirectMessenger   = (*Session)(nil)
	_ roominfo.Observable        = (*chat.Observer)(nil)
)

// Session is the directory as seen by one user.
type Session struct {
	*Service
	UserID string
}

func (s *Service) Session(userID string) *Session {
	return &Session{Service: s, UserID: userID}
}

func (s *Session) HasPermission(ctx context.Context, permissions []string, roomID string) (map[string]bool, error) {
	return s.Service.HasPermission(ctx, s.UserID, permissions, roomID)
}

func (s *Session) CreateDirectMessage(ctx context.Context, userName string) (models.Room, error) {
	return s.Service.CreateDirectMessage(ctx, s.UserID, userName)
}

// Resolver returns a room info resolver acting for the session user.
func (s *Session) Resolver(onChange func(roominfo.ViewModel)) *roominfo.Resolver {
	return roominfo.New(roominfo.Config{
		SelfID:          s.UserID,
		Rooms:           s,
		Permissions:     s,
		Users:           s,
		Roles:           s,
		Directs:         s,
		Logger:          s.logger.With("user_id", s.UserID),
		RoleConcurrency: s.config.RoleConcurrency,
		OnChange:        onChange,
	})
}

// Resolver returns a room info resolver acting for userID.
func (s *Service) Resolver(userID string, onChange func(roominfo.ViewModel)) *roominfo.Resolver {
	return s.Session(userID).Resolver(onChange)
}
