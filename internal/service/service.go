package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"roominfo/internal/auth"
	"roominfo/internal/chat"
	"roominfo/internal/content"
	"roominfo/internal/models"
	"roominfo/internal/roominfo"

	"github.com/c-pro/geche"
	"github.com/google/uuid"
)

const DefaultRoomID = "general"

var (
	ErrInvalidRoom = errors.New("invalid room")
	ErrForbidden   = errors.New("forbidden")

	ErrInvalidUsername = errors.New("invalid username")
)

type Store interface {
	GetCredentials(userID string) (auth.UserCredentials, error)
	GetCredentialsByName(userName string) (auth.UserCredentials, error)
	UpsertCredentials(credentials auth.UserCredentials) error
	ListUsers() ([]models.User, error)

	GetRoom(roomID string) (models.Room, error)
	UpsertRoom(room models.Room) error
	ListRooms() ([]models.Room, error)

	GetMembership(roomID, userID string) (models.Membership, error)
	UpsertMembership(m models.Membership) error

	GetRole(roleID string) (models.Role, error)
	UpsertRole(role models.Role) error

	GetPermission(permissionID string) (models.Permission, error)
	UpsertPermission(p models.Permission) error
}

type Config struct {
	// PermissionTTL is how long permission grants are cached.
	PermissionTTL time.Duration
	// RoleConcurrency limits concurrent role lookups of one resolver, 0 is unlimited.
	RoleConcurrency int
}

// Service is the room and user directory behind room info views.
type Service struct {
	config      Config
	store       Store
	hub         *chat.Hub
	permissions geche.Geche[string, []string]
	logger      *slog.Logger

	// serializes direct room creation
	dmMu sync.Mutex
}

func New(ctx context.Context, config Config, store Store, hub *chat.Hub) *Service {
	if config.PermissionTTL <= 0 {
		config.PermissionTTL = time.Minute
	}
	return &Service{
		config:      config,
		store:       store,
		hub:         hub,
		permissions: geche.NewMapTTLCache[string, []string](ctx, config.PermissionTTL, time.Minute),
		logger:      slog.Default().With("component", "service"),
	}
}

// Bootstrap creates the default roles, the edit-room permission and the
// default channel when they are missing.
func (s *Service) Bootstrap(ctx context.Context) error {
	defaults := []models.Role{
		{ID: "admin", Description: "Admin"},
		{ID: "owner", Description: "Owner"},
		{ID: "moderator", Description: "Moderator"},
		{ID: "user", Description: "User"},
		{ID: "bot", Description: "Bot"},
	}
	for _, role := range defaults {
		if _, err := s.store.GetRole(role.ID); errors.Is(err, models.ErrNotFound) {
			if err := s.store.UpsertRole(role); err != nil {
				return fmt.Errorf("failed to create role %s: %w", role.ID, err)
			}
		} else if err != nil {
			return err
		}
	}

	if _, err := s.store.GetPermission(models.PermissionEditRoom); errors.Is(err, models.ErrNotFound) {
		p := models.Permission{ID: models.PermissionEditRoom, Roles: []string{"admin", "owner"}}
		if err := s.store.UpsertPermission(p); err != nil {
			return fmt.Errorf("failed to create permission: %w", err)
		}
	} else if err != nil {
		return err
	}

	if _, err := s.store.GetRoom(DefaultRoomID); errors.Is(err, models.ErrNotFound) {
		room := models.Room{ID: DefaultRoomID, Type: models.RoomTypeChannel, Name: DefaultRoomID, FName: "General"}
		if err := s.store.UpsertRoom(room); err != nil {
			return fmt.Errorf("failed to create default room: %w", err)
		}
	} else if err != nil {
		return err
	}

	return nil
}

func (s *Service) GetRoomInfo(ctx context.Context, roomID string) (models.Room, error) {
	if roomID == "" {
		return models.Room{}, ErrInvalidRoom
	}
	return s.store.GetRoom(roomID)
}

// GetUserInfo returns the public profile of an active user.
func (s *Service) GetUserInfo(ctx context.Context, userID string) (models.User, error) {
	creds, err := s.store.GetCredentials(userID)
	if err != nil {
		return models.User{}, err
	}
	if creds.Status == models.UserStatusDeleted {
		return models.User{}, fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
	}
	return creds.User, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.store.ListUsers()
	if err != nil {
		return nil, err
	}
	active := users[:0]
	for _, u := range users {
		if u.Status == models.UserStatusActive {
			active = append(active, u)
		}
	}
	return active, nil
}

func (s *Service) FindRoleDescription(ctx context.Context, roleID string) (string, error) {
	role, err := s.store.GetRole(roleID)
	if err != nil {
		return "", err
	}
	return role.Description, nil
}

// HasPermission checks each permission against the global roles of the user
// and the roles the user holds in the room.
func (s *Service) HasPermission(ctx context.Context, userID string, permissions []string, roomID string) (map[string]bool, error) {
	user, err := s.store.GetCredentials(userID)
	if err != nil {
		return nil, err
	}

	roles := slices.Clone(user.Roles)
	if roomID != "" {
		m, err := s.store.GetMembership(roomID, userID)
		switch {
		case err == nil:
			roles = append(roles, m.Roles...)
		case !errors.Is(err, models.ErrNotFound):
			return nil, err
		}
	}

	result := make(map[string]bool, len(permissions))
	for _, id := range permissions {
		granted, err := s.permissionRoles(id)
		if err != nil {
			return nil, err
		}
		result[id] = slices.ContainsFunc(roles, func(role string) bool {
			return slices.Contains(granted, role)
		})
	}
	return result, nil
}

func (s *Service) permissionRoles(permissionID string) ([]string, error) {
	if roles, err := s.permissions.Get(permissionID); err == nil {
		return roles, nil
	}

	p, err := s.store.GetPermission(permissionID)
	if errors.Is(err, models.ErrNotFound) {
		s.permissions.Set(permissionID, nil)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.permissions.Set(permissionID, p.Roles)
	return p.Roles, nil
}

// CreateDirectMessage returns the direct room between selfID and userName,
// creating it on first use.
func (s *Service) CreateDirectMessage(ctx context.Context, selfID, userName string) (models.Room, error) {
	if err := content.ValidateUsername(userName); err != nil {
		return models.Room{}, fmt.Errorf("%w: %v", ErrInvalidUsername, err)
	}
	other, err := s.store.GetCredentialsByName(userName)
	if err != nil {
		return models.Room{}, err
	}
	if other.Status != models.UserStatusActive {
		return models.Room{}, fmt.Errorf("user %q: %w", userName, models.ErrNotFound)
	}
	if _, err := s.store.GetCredentials(selfID); err != nil {
		return models.Room{}, err
	}

	s.dmMu.Lock()
	defer s.dmMu.Unlock()

	roomID := models.DirectRoomID(selfID, other.ID)
	room, err := s.store.GetRoom(roomID)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return models.Room{}, err
	}

	uids := []string{selfID, other.ID}
	slices.Sort(uids)
	room = models.Room{
		ID:   roomID,
		Type: models.RoomTypeDirect,
		UIDs: slices.Compact(uids),
	}
	if err := s.store.UpsertRoom(room); err != nil {
		return models.Room{}, fmt.Errorf("failed to create direct room: %w", err)
	}
	for _, uid := range room.UIDs {
		if err := s.store.UpsertMembership(models.Membership{RoomID: roomID, UserID: uid}); err != nil {
			return models.Room{}, fmt.Errorf("failed to add direct room member: %w", err)
		}
	}

	s.logger.Info("direct room created", "rid", roomID)
	return room, nil
}

// CreateRoom creates a channel, group or discussion owned by ownerID.
func (s *Service) CreateRoom(ctx context.Context, ownerID string, room models.Room) (models.Room, error) {
	switch room.Type {
	case models.RoomTypeChannel, models.RoomTypeGroup, models.RoomTypeLivechat:
	default:
		return models.Room{}, fmt.Errorf("%w: type %q", ErrInvalidRoom, room.Type)
	}
	if room.Name == "" {
		return models.Room{}, fmt.Errorf("%w: name is required", ErrInvalidRoom)
	}
	if room.PRID != "" {
		if _, err := s.store.GetRoom(room.PRID); err != nil {
			return models.Room{}, fmt.Errorf("parent room: %w", err)
		}
	}

	room.ID = uuid.NewString()
	room.Name = content.Sanitize(room.Name)
	room.FName = content.Sanitize(room.FName)
	if err := s.store.UpsertRoom(room); err != nil {
		return models.Room{}, err
	}
	if ownerID != "" {
		if err := s.store.UpsertMembership(models.Membership{RoomID: room.ID, UserID: ownerID, Roles: []string{"owner"}}); err != nil {
			return models.Room{}, err
		}
	}
	return room, nil
}

// RoomUpdate holds the editable fields of a room. Nil fields are unchanged.
type RoomUpdate struct {
	Name         *string `json:"name,omitempty"`
	FName        *string `json:"fname,omitempty"`
	Description  *string `json:"description,omitempty"`
	Topic        *string `json:"topic,omitempty"`
	Announcement *string `json:"announcement,omitempty"`
	ReadOnly     *bool   `json:"ro,omitempty"`
	Broadcast    *bool   `json:"broadcast,omitempty"`
	Archived     *bool   `json:"archived,omitempty"`
}

// UpdateRoom applies an update, persists it and publishes the new room to observers.
func (s *Service) UpdateRoom(ctx context.Context, roomID string, update RoomUpdate) (models.Room, error) {
	room, err := s.store.GetRoom(roomID)
	if err != nil {
		return models.Room{}, err
	}

	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = content.Sanitize(*src)
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setString(&room.Name, update.Name)
	setString(&room.FName, update.FName)
	setString(&room.Description, update.Description)
	setString(&room.Topic, update.Topic)
	setString(&room.Announcement, update.Announcement)
	setBool(&room.ReadOnly, update.ReadOnly)
	setBool(&room.Broadcast, update.Broadcast)
	setBool(&room.Archived, update.Archived)

	if err := s.store.UpsertRoom(room); err != nil {
		return models.Room{}, err
	}
	seq := s.hub.Publish(room)
	s.logger.Debug("room updated", "rid", roomID, "seq", seq)
	return room, nil
}

// UpdateRoomAs updates a room on behalf of a user holding edit-room.
func (s *Service) UpdateRoomAs(ctx context.Context, userID, roomID string, update RoomUpdate) (models.Room, error) {
	room, err := s.store.GetRoom(roomID)
	if err != nil {
		return models.Room{}, err
	}
	if room.IsDiscussion() {
		return models.Room{}, ErrForbidden
	}
	granted, err := s.HasPermission(ctx, userID, []string{models.PermissionEditRoom}, roomID)
	if err != nil {
		return models.Room{}, err
	}
	if !granted[models.PermissionEditRoom] {
		return models.Room{}, ErrForbidden
	}
	return s.UpdateRoom(ctx, roomID, update)
}

// ObserveRoom returns a live source of changes of a room.
func (s *Service) ObserveRoom(roomID string) roominfo.Observable {
	return s.hub.Observe(roomID)
}

// Navigation describes how userID's view of the room should be opened.
// Channels are observed live; other rooms are seeded with their stored copy
// when it exists. An empty roomType is taken from the stored room.
func (s *Service) Navigation(ctx context.Context, userID, roomID string, roomType models.RoomType) (roominfo.Navigation, error) {
	if roomID == "" {
		return roominfo.Navigation{}, ErrInvalidRoom
	}

	room, err := s.store.GetRoom(roomID)
	found := err == nil
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return roominfo.Navigation{}, err
	}
	if roomType == "" {
		if !found {
			return roominfo.Navigation{}, err
		}
		roomType = room.Type
	}

	mode := roominfo.Classify(roomType)
	if !found && mode != roominfo.ModeDirect {
		return roominfo.Navigation{}, err
	}
	if err := s.checkAccess(userID, roomID, room, found, mode); err != nil {
		return roominfo.Navigation{}, err
	}

	nav := roominfo.Navigation{RoomID: roomID, Type: roomType, Preload: roominfo.NotPreloaded{}}
	switch {
	case !found:
	case mode == roominfo.ModeChannel:
		nav.Preload = roominfo.Observed{Room: room, Source: s.ObserveRoom(roomID)}
	default:
		nav.Preload = roominfo.Static{Room: room}
	}
	return nav, nil
}

// checkAccess allows anyone into channels, members into private groups and
// livechat rooms, and participants into direct rooms.
func (s *Service) checkAccess(userID, roomID string, room models.Room, found bool, mode roominfo.Mode) error {
	if mode == roominfo.ModeDirect || (found && room.Type == models.RoomTypeDirect) {
		if isDirectParticipant(userID, roomID, room) {
			return nil
		}
		if found {
			return ErrForbidden
		}
		return fmt.Errorf("room %s: %w", roomID, models.ErrNotFound)
	}

	switch room.Type {
	case models.RoomTypeGroup, models.RoomTypeLivechat:
		_, err := s.store.GetMembership(roomID, userID)
		if errors.Is(err, models.ErrNotFound) {
			return ErrForbidden
		}
		return err
	}
	return nil
}

func isDirectParticipant(userID, roomID string, room models.Room) bool {
	if len(room.UIDs) > 0 {
		return slices.Contains(room.UIDs, userID)
	}
	a, b, ok := models.ParseDirectRoomID(roomID)
	return ok && (a == userID || b == userID)
}

func (s *Service) SetMembershipRoles(ctx context.Context, roomID, userID string, roles []string) error {
	if _, err := s.store.GetRoom(roomID); err != nil {
		return err
	}
	if _, err := s.store.GetCredentials(userID); err != nil {
		return err
	}
	return s.store.UpsertMembership(models.Membership{RoomID: roomID, UserID: userID, Roles: roles})
}

func (s *Service) updateUser(userID string, update func(*auth.UserCredentials)) (models.User, error) {
	creds, err := s.store.GetCredentials(userID)
	if err != nil {
		return models.User{}, err
	}
	update(&creds)
	if err := s.store.UpsertCredentials(creds); err != nil {
		return models.User{}, err
	}
	return creds.User, nil
}

func (s *Service) SetUserRoles(ctx context.Context, userID string, roles []string) (models.User, error) {
	return s.updateUser(userID, func(c *auth.UserCredentials) {
		c.Roles = roles
	})
}

func (s *Service) SetStatusText(ctx context.Context, userID, statusText string) (models.User, error) {
	return s.updateUser(userID, func(c *auth.UserCredentials) {
		c.StatusText = statusText
	})
}

func (s *Service) SetName(ctx context.Context, userID, name string) (models.User, error) {
	return s.updateUser(userID, func(c *auth.UserCredentials) {
		c.Name = content.Sanitize(name)
	})
}

func (s *Service) SetAvatarURL(ctx context.Context, userID, avatarURL string) (models.User, error) {
	return s.updateUser(userID, func(c *auth.UserCredentials) {
		c.AvatarURL = avatarURL
	})
}

func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	_, err := s.updateUser(userID, func(c *auth.UserCredentials) {
		c.Status = models.UserStatusDeleted
	})
	return err
}

func (s *Service) UpsertRole(ctx context.Context, role models.Role) error {
	if role.ID == "" {
		return errors.New("role id is required")
	}
	return s.store.UpsertRole(role)
}

// GrantPermission replaces the roles granted a permission.
func (s *Service) GrantPermission(ctx context.Context, p models.Permission) error {
	if p.ID == "" {
		return errors.New("permission id is required")
	}
	if err := s.store.UpsertPermission(p); err != nil {
		return err
	}
	_ = s.permissions.Del(p.ID)
	return nil
}
