// Package roominfo resolves the data behind a room info view: the room of a
// channel, or the counterpart user of a direct conversation, plus whether the
// viewer may edit the room.
package roominfo

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"roominfo/internal/models"

	"github.com/google/uuid"
)

type RoomFetcher interface {
	GetRoomInfo(ctx context.Context, roomID string) (models.Room, error)
}

type PermissionChecker interface {
	HasPermission(ctx context.Context, permissions []string, roomID string) (map[string]bool, error)
}

type UserFetcher interface {
	GetUserInfo(ctx context.Context, userID string) (models.User, error)
}

// RoleLookup resolves role ids to descriptions. Unknown roles return models.ErrNotFound.
type RoleLookup interface {
	FindRoleDescription(ctx context.Context, roleID string) (string, error)
}

// DirectMessenger creates the direct room with a user, or returns the existing one.
type DirectMessenger interface {
	CreateDirectMessage(ctx context.Context, userName string) (models.Room, error)
}

// Observable is a live source of room changes. Observe returns the change
// stream and a func that releases the subscription.
type Observable interface {
	Observe(ctx context.Context) (<-chan models.Room, func())
}

// ViewModel is what a room info view renders.
type ViewModel struct {
	Mode     Mode        `json:"mode"`
	Room     models.Room `json:"room"`
	User     models.User `json:"roomUser"`
	ShowEdit bool        `json:"showEdit"`
}

func (v ViewModel) clone() ViewModel {
	v.Room.UIDs = slices.Clone(v.Room.UIDs)
	v.User.Roles = slices.Clone(v.User.Roles)
	v.User.ParsedRoles = slices.Clone(v.User.ParsedRoles)
	return v
}

type Config struct {
	// SelfID is the id of the user looking at the view.
	SelfID      string
	Rooms       RoomFetcher
	Permissions PermissionChecker
	Users       UserFetcher
	Roles       RoleLookup
	Directs     DirectMessenger
	Logger      *slog.Logger
	// RoleConcurrency limits parallel role lookups, 0 means unlimited.
	RoleConcurrency int
	// OnChange receives every new view model. It must not call Activate or Deactivate.
	OnChange func(ViewModel)
}

// Resolver populates one room info view. Each Activate starts a new
// activation; results of earlier activations are discarded.
type Resolver struct {
	cfg Config

	lifeMu   sync.Mutex
	mu       sync.Mutex
	notifyMu sync.Mutex

	token   string
	view    ViewModel
	cancel  context.CancelFunc
	loaders sync.WaitGroup
	subs    sync.WaitGroup
}

func New(cfg Config) *Resolver {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver{cfg: cfg}
}

// Activate seeds the view model from the navigation context and starts the
// loader for its mode. It does not wait for the loader.
func (r *Resolver) Activate(ctx context.Context, nav Navigation) {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()

	r.deactivate()

	ctx, cancel := context.WithCancel(ctx)
	mode := Classify(nav.Type)
	a := &activation{
		r:      r,
		ctx:    ctx,
		token:  uuid.NewString(),
		roomID: nav.RoomID,
		logger: r.cfg.Logger.With("rid", nav.RoomID, "mode", string(mode)),
	}

	r.mu.Lock()
	r.token = a.token
	r.cancel = cancel
	r.view = ViewModel{
		Mode: mode,
		Room: nav.seedRoom(),
		User: nav.Member,
	}.clone()
	r.mu.Unlock()
	r.notify(a.token)

	switch mode {
	case ModeChannel:
		observed, ok := nav.Preload.(Observed)
		live := ok && observed.Source != nil
		if live {
			a.observe(observed.Source)
		}
		r.loaders.Add(1)
		go func() {
			defer r.loaders.Done()
			if !live {
				a.fetchRoom()
			}
			a.checkEdit()
		}()
	case ModeDirect:
		if !nav.Member.IsEmpty() {
			return
		}
		r.loaders.Add(1)
		go func() {
			defer r.loaders.Done()
			a.loadUser()
		}()
	}
}

// Deactivate discards the current activation and releases its room
// subscription. No change notification fires after Deactivate returns.
func (r *Resolver) Deactivate() {
	r.lifeMu.Lock()
	defer r.lifeMu.Unlock()
	r.deactivate()
}

func (r *Resolver) deactivate() {
	r.mu.Lock()
	r.token = ""
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()

	// Wait for a notification in progress.
	r.notifyMu.Lock()
	r.notifyMu.Unlock()

	r.subs.Wait()
}

// Current returns a copy of the view model.
func (r *Resolver) Current() ViewModel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view.clone()
}

// Wait blocks until the one-shot loaders started so far have finished.
func (r *Resolver) Wait() {
	r.loaders.Wait()
}

// apply updates the view model if the activation is still current.
func (r *Resolver) apply(token string, update func(*ViewModel)) bool {
	r.mu.Lock()
	if token == "" || token != r.token {
		r.mu.Unlock()
		return false
	}
	update(&r.view)
	r.mu.Unlock()

	r.notify(token)
	return true
}

// notify hands the latest view model to OnChange. Notifications are
// serialized and always carry the newest state.
func (r *Resolver) notify(token string) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	if token != r.token {
		r.mu.Unlock()
		return
	}
	view := r.view.clone()
	r.mu.Unlock()

	if r.cfg.OnChange != nil {
		r.cfg.OnChange(view)
	}
}

type activation struct {
	r      *Resolver
	ctx    context.Context
	token  string
	roomID string
	logger *slog.Logger
}

func (a *activation) active() bool {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	return a.token == a.r.token
}

func (a *activation) apply(update func(*ViewModel)) bool {
	return a.r.apply(a.token, update)
}

func (a *activation) current() (ViewModel, bool) {
	a.r.mu.Lock()
	defer a.r.mu.Unlock()
	return a.r.view.clone(), a.token == a.r.token
}
