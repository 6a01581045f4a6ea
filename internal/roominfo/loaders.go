package roominfo

import (
	"errors"
	"strings"

	"roominfo/internal/models"

	"golang.org/x/sync/errgroup"
)

// observe attaches to a live room source. Every change replaces the room.
// The subscription is released when the activation ends.
func (a *activation) observe(source Observable) {
	changes, unsubscribe := source.Observe(a.ctx)

	a.r.subs.Add(1)
	go func() {
		defer a.r.subs.Done()
		defer unsubscribe()

		for {
			select {
			case room, ok := <-changes:
				if !ok {
					return
				}
				if !a.apply(func(v *ViewModel) {
					v.Room = room
					if room.IsDiscussion() {
						v.ShowEdit = false
					}
				}) {
					return
				}
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

// fetchRoom replaces the room with a fresh copy. Failures keep the previous room.
func (a *activation) fetchRoom() {
	room, err := a.r.cfg.Rooms.GetRoomInfo(a.ctx, a.roomID)
	if err != nil {
		a.logger.ErrorContext(a.ctx, "failed to load room info", "error", err)
		return
	}
	a.apply(func(v *ViewModel) {
		v.Room = room
	})
}

// checkEdit offers the edit affordance when the viewer may edit the room and
// the room is not a discussion. A failed permission check denies.
func (a *activation) checkEdit() {
	view, ok := a.current()
	if !ok {
		return
	}

	roomID := view.Room.ID
	if roomID == "" {
		roomID = a.roomID
	}
	granted, err := a.r.cfg.Permissions.HasPermission(a.ctx, []string{models.PermissionEditRoom}, roomID)
	if err != nil {
		a.logger.WarnContext(a.ctx, "permission check failed", "permission", models.PermissionEditRoom, "error", err)
		return
	}
	if !granted[models.PermissionEditRoom] {
		return
	}

	a.apply(func(v *ViewModel) {
		v.ShowEdit = !v.Room.IsDiscussion()
	})
}

// loadUser resolves the counterpart of a direct room, describes its roles and
// ensures the direct room exists. The result is published in one update or
// not at all.
func (a *activation) loadUser() {
	view, ok := a.current()
	if !ok {
		return
	}

	userID := CounterpartID(view.Room, a.r.cfg.SelfID)
	if userID == "" {
		a.logger.DebugContext(a.ctx, "no counterpart in direct room")
		return
	}

	user, err := a.r.cfg.Users.GetUserInfo(a.ctx, userID)
	if err != nil {
		a.logger.DebugContext(a.ctx, "failed to load user info", "user_id", userID, "error", err)
		return
	}
	if !a.active() {
		return
	}

	if len(user.Roles) > 0 {
		user.ParsedRoles = a.describeRoles(user.Roles)
	}
	if !a.active() {
		return
	}

	room, err := a.r.cfg.Directs.CreateDirectMessage(a.ctx, user.UserName)
	if err != nil {
		a.logger.DebugContext(a.ctx, "failed to ensure direct room", "username", user.UserName, "error", err)
		return
	}

	a.apply(func(v *ViewModel) {
		v.User = user
		v.Room.ID = room.ID
	})
}

// describeRoles looks up role descriptions concurrently. The result is aligned
// with roles; a role without a description is nil.
func (a *activation) describeRoles(roles []string) []*string {
	parsed := make([]*string, len(roles))

	var g errgroup.Group
	if a.r.cfg.RoleConcurrency > 0 {
		g.SetLimit(a.r.cfg.RoleConcurrency)
	}
	for i, role := range roles {
		g.Go(func() error {
			description, err := a.r.cfg.Roles.FindRoleDescription(a.ctx, role)
			if err != nil {
				if !errors.Is(err, models.ErrNotFound) {
					a.logger.DebugContext(a.ctx, "role lookup failed", "role", role, "error", err)
				}
				return nil
			}
			parsed[i] = &description
			return nil
		})
	}
	_ = g.Wait()

	return parsed
}

// CounterpartID returns the id of the other participant of a direct room.
func CounterpartID(room models.Room, selfID string) string {
	if len(room.UIDs) > 0 {
		for _, uid := range room.UIDs {
			if uid != "" && uid != selfID {
				return uid
			}
		}
		return selfID
	}

	if a, b, ok := models.ParseDirectRoomID(room.ID); ok {
		if a == selfID {
			return b
		}
		return a
	}

	if selfID == "" {
		return strings.TrimSpace(room.ID)
	}
	return strings.TrimSpace(strings.Replace(room.ID, selfID, "", 1))
}
