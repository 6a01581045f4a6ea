package roominfo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"roominfo/internal/models"

	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	getRoom       func(ctx context.Context, roomID string) (models.Room, error)
	hasPermission func(ctx context.Context, permissions []string, roomID string) (map[string]bool, error)
	getUser       func(ctx context.Context, userID string) (models.User, error)
	findRole      func(ctx context.Context, roleID string) (string, error)
	createDM      func(ctx context.Context, userName string) (models.Room, error)

	roomCalls       atomic.Int32
	permissionCalls atomic.Int32
	userCalls       atomic.Int32
	roleCalls       atomic.Int32
	dmCalls         atomic.Int32
	permissionRoom  atomic.Value
}

func (f *fakeBackend) GetRoomInfo(ctx context.Context, roomID string) (models.Room, error) {
	f.roomCalls.Add(1)
	if f.getRoom == nil {
		return models.Room{}, models.ErrNotFound
	}
	return f.getRoom(ctx, roomID)
}

func (f *fakeBackend) HasPermission(ctx context.Context, permissions []string, roomID string) (map[string]bool, error) {
	f.permissionCalls.Add(1)
	f.permissionRoom.Store(roomID)
	if f.hasPermission == nil {
		return map[string]bool{}, nil
	}
	return f.hasPermission(ctx, permissions, roomID)
}

func (f *fakeBackend) GetUserInfo(ctx context.Context, userID string) (models.User, error) {
	f.userCalls.Add(1)
	if f.getUser == nil {
		return models.User{}, models.ErrNotFound
	}
	return f.getUser(ctx, userID)
}

func (f *fakeBackend) FindRoleDescription(ctx context.Context, roleID string) (string, error) {
	f.roleCalls.Add(1)
	if f.findRole == nil {
		return "", models.ErrNotFound
	}
	return f.findRole(ctx, roleID)
}

func (f *fakeBackend) CreateDirectMessage(ctx context.Context, userName string) (models.Room, error) {
	f.dmCalls.Add(1)
	if f.createDM == nil {
		return models.Room{}, errors.New("not implemented")
	}
	return f.createDM(ctx, userName)
}

type recorder struct {
	mu    sync.Mutex
	views []ViewModel
}

func (r *recorder) record(v ViewModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

func (r *recorder) last() ViewModel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.views[len(r.views)-1]
}

type fakeObservable struct {
	ch       chan models.Room
	released atomic.Bool
}

func newFakeObservable() *fakeObservable {
	return &fakeObservable{ch: make(chan models.Room, 10)}
}

func (o *fakeObservable) Observe(ctx context.Context) (<-chan models.Room, func()) {
	return o.ch, func() { o.released.Store(true) }
}

func newResolver(backend *fakeBackend, rec *recorder) *Resolver {
	return New(Config{
		SelfID:      "me",
		Rooms:       backend,
		Permissions: backend,
		Users:       backend,
		Roles:       backend,
		Directs:     backend,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		OnChange:    rec.record,
	})
}

func grant(granted bool) func(context.Context, []string, string) (map[string]bool, error) {
	return func(context.Context, []string, string) (map[string]bool, error) {
		return map[string]bool{models.PermissionEditRoom: granted}, nil
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		tag  models.RoomType
		want Mode
	}{
		{models.RoomTypeDirect, ModeDirect},
		{"direct", ModeDirect},
		{models.RoomTypeLivechat, ModeLivechat},
		{"livechat", ModeLivechat},
		{models.RoomTypeChannel, ModeChannel},
		{models.RoomTypeGroup, ModeChannel},
		{"channel", ModeChannel},
		{"t", ModeChannel},
		{"", ModeChannel},
		{"whatever", ModeChannel},
	}

	for _, tt := range tests {
		t.Run(string(tt.tag), func(t *testing.T) {
			require.Equal(t, tt.want, Classify(tt.tag))
		})
	}
}

func TestResolver_ChannelFetch(t *testing.T) {
	backend := &fakeBackend{
		getRoom: func(_ context.Context, roomID string) (models.Room, error) {
			return models.Room{ID: "R1", Type: models.RoomTypeChannel, Name: "general"}, nil
		},
		hasPermission: grant(true),
	}
	rec := &recorder{}
	r := newResolver(backend, rec)

	r.Activate(context.Background(), Navigation{RoomID: "R1", Type: "channel"})
	r.Wait()
	defer r.Deactivate()

	view := r.Current()
	require.Equal(t, ModeChannel, view.Mode)
	require.Equal(t, "R1", view.Room.ID)
	require.Equal(t, "general", view.Room.Name)
	require.True(t, view.ShowEdit)
	require.True(t, view.User.IsEmpty())
	require.Equal(t, int32(1), backend.roomCalls.Load())
	require.Equal(t, "R1", backend.permissionRoom.Load())
	require.Equal(t, view, rec.last())
}

func TestResolver_EditNeverOfferedForDiscussions(t *testing.T) {
	permissions := map[string]func(context.Context, []string, string) (map[string]bool, error){
		"granted": grant(true),
		"denied":  grant(false),
		"failed": func(context.Context, []string, string) (map[string]bool, error) {
			return nil, errors.New("boom")
		},
	}

	for name, hasPermission := range permissions {
		t.Run(name, func(t *testing.T) {
			backend := &fakeBackend{
				getRoom: func(context.Context, string) (models.Room, error) {
					return models.Room{ID: "D1", Type: models.RoomTypeGroup, PRID: "R1"}, nil
				},
				hasPermission: hasPermission,
			}
			r := newResolver(backend, &recorder{})
			r.Activate(context.Background(), Navigation{RoomID: "D1", Type: models.RoomTypeGroup})
			r.Wait()
			defer r.Deactivate()

			require.False(t, r.Current().ShowEdit)
			require.Equal(t, "R1", r.Current().Room.PRID)
		})
	}
}

func TestResolver_PermissionFailureDenies(t *testing.T) {
	backend := &fakeBackend{
		getRoom: func(context.Context, string) (models.Room, error) {
			return models.Room{ID: "R1", Type: models.RoomTypeChannel}, nil
		},
		hasPermission: func(context.Context, []string, string) (map[string]bool, error) {
			return nil, errors.New("permission service down")
		},
	}
	r := newResolver(backend, &recorder{})
	r.Activate(context.Background(), Navigation{RoomID: "R1", Type: models.RoomTypeChannel})
	r.Wait()
	defer r.Deactivate()

	require.False(t, r.Current().ShowEdit)
	require.Equal(t, int32(1), backend.permissionCalls.Load())
}

func TestResolver_FetchFailureKeepsRoom(t *testing.T) {
	backend := &fakeBackend{
		getRoom: func(context.Context, string) (models.Room, error) {
			return models.Room{}, errors.New("network down")
		},
		hasPermission: grant(true),
	}
	r := newResolver(backend, &recorder{})

	seed := models.Room{ID: "R1", Type: models.RoomTypeChannel, Name: "seeded"}
	r.Activate(context.Background(), Navigation{RoomID: "R1", Type: models.RoomTypeChannel, Preload: Static{Room: seed}})
	r.Wait()
	defer r.Deactivate()

	view := r.Current()
	require.Equal(t, seed, view.Room)
	require.True(t, view.ShowEdit)
	require.Equal(t, int32(1), backend.roomCalls.Load())
	require.Equal(t, "R1", backend.permissionRoom.Load())
}

func TestResolver_ObservedRoom(t *testing.T) {
	backend := &fakeBackend{hasPermission: grant(true)}
	rec := &recorder{}
	r := newResolver(backend, rec)
	source := newFakeObservable()

	seed := models.Room{ID: "R1", Type: models.RoomTypeChannel, Topic: "old"}
	r.Activate(context.Background(), Navigation{RoomID: "R1", Type: models.RoomTypeChannel, Preload: Observed{Room: seed, Source: source}})
	r.Wait()

	require.True(t, r.Current().ShowEdit)
	require.Equal(t, int32(0), backend.roomCalls.Load(), "observed rooms must not be fetched")

	source.ch <- models.Room{ID: "R1", Type: models.RoomTypeChannel, Topic: "new"}
	eventually(t, func() bool { return r.Current().Room.Topic == "new" })

	// A room turning into a discussion loses the edit affordance
	source.ch <- models.Room{ID: "R1", Type: models.RoomTypeChannel, PRID: "P1"}
	eventually(t, func() bool { return r.Current().Room.PRID == "P1" })
	require.False(t, r.Current().ShowEdit)

	r.Deactivate()
	require.True(t, source.released.Load(), "subscription must be released on deactivate")

	n := rec.count()
	source.ch <- models.Room{ID: "R1", Topic: "after"}
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, n, rec.count())
	require.Equal(t, int32(0), backend.roomCalls.Load())
}

func TestResolver_ObservedStreamClosed(t *testing.T) {
	backend := &fakeBackend{}
	r := newResolver(backend, &recorder{})
	source := newFakeObservable()

	r.Activate(context.Background(), Navigation{RoomID: "R1", Preload: Observed{Room: models.Room{ID: "R1"}, Source: source}})
	close(source.ch)

	eventually(t, source.released.Load)
	r.Deactivate()
}

func TestResolver_DirectUser(t *testing.T) {
	descriptions := map[string]string{
		"admin": "Administrator",
		"bot":   "Bot",
	}
	backend := &fakeBackend{
		getUser: func(_ context.Context, userID string) (models.User, error) {
			if userID != "bob" {
				return models.User{}, fmt.Errorf("unexpected user %s", userID)
			}
			return models.User{ID: "bob", UserName: "bobby", Name: "Bob", Roles: []string{"admin", "broken", "bot"}}, nil
		},
		findRole: func(_ context.Context, roleID string) (string, error) {
			switch roleID {
			case "admin":
				// complete last
				time.Sleep(30 * time.Millisecond)
			case "broken":
				return "", errors.New("lookup backend error")
			}
			return descriptions[roleID], nil
		},
		createDM: func(_ context.Context, userName string) (models.Room, error) {
			if userName != "bobby" {
				return models.Room{}, fmt.Errorf("unexpected username %s", userName)
			}
			return models.Room{ID: "dm_bob_me", Type: models.RoomTypeDirect}, nil
		},
	}
	rec := &recorder{}
	r := newResolver(backend, rec)

	r.Activate(context.Background(), Navigation{
		RoomID:  "",
		Type:    models.RoomTypeDirect,
		Preload: Static{Room: models.Room{Type: models.RoomTypeDirect, UIDs: []string{"me", "bob"}}},
	})
	r.Wait()
	defer r.Deactivate()

	view := r.Current()
	require.Equal(t, ModeDirect, view.Mode)
	require.Equal(t, "dm_bob_me", view.Room.ID)
	require.Equal(t, "Bob", view.User.Name)
	require.Len(t, view.User.ParsedRoles, 3)
	require.Equal(t, "Administrator", *view.User.ParsedRoles[0])
	require.Nil(t, view.User.ParsedRoles[1])
	require.Equal(t, "Bot", *view.User.ParsedRoles[2])
	require.False(t, view.ShowEdit)
	require.Equal(t, int32(0), backend.roomCalls.Load())
	require.Equal(t, int32(0), backend.permissionCalls.Load())

	// seed notification plus one atomic update
	require.Equal(t, 2, rec.count())
}

func TestResolver_DirectProfileFailure(t *testing.T) {
	backend := &fakeBackend{
		getUser: func(context.Context, string) (models.User, error) {
			return models.User{}, errors.New("network down")
		},
	}
	rec := &recorder{}
	r := newResolver(backend, rec)

	r.Activate(context.Background(), Navigation{RoomID: models.DirectRoomID("me", "bob"), Type: "direct"})
	r.Wait()
	defer r.Deactivate()

	view := r.Current()
	require.True(t, view.User.IsEmpty())
	require.Equal(t, models.DirectRoomID("me", "bob"), view.Room.ID)
	require.Equal(t, int32(0), backend.dmCalls.Load())
	require.Equal(t, 1, rec.count())
}

func TestResolver_DirectEnsureFailurePublishesNothing(t *testing.T) {
	backend := &fakeBackend{
		getUser: func(context.Context, string) (models.User, error) {
			return models.User{ID: "bob", UserName: "bob"}, nil
		},
		createDM: func(context.Context, string) (models.Room, error) {
			return models.Room{}, errors.New("cannot create")
		},
	}
	rec := &recorder{}
	r := newResolver(backend, rec)

	r.Activate(context.Background(), Navigation{RoomID: "dm_bob_me", Type: models.RoomTypeDirect})
	r.Wait()
	defer r.Deactivate()

	require.True(t, r.Current().User.IsEmpty())
	require.Equal(t, int32(1), backend.dmCalls.Load())
	require.Equal(t, 1, rec.count())
}

func TestResolver_DirectSeededMember(t *testing.T) {
	backend := &fakeBackend{}
	r := newResolver(backend, &recorder{})

	member := models.User{ID: "bob", UserName: "bob", Name: "Bob", Roles: []string{"user"}}
	r.Activate(context.Background(), Navigation{RoomID: "dm_bob_me", Type: models.RoomTypeDirect, Member: member})
	r.Wait()
	defer r.Deactivate()

	require.Equal(t, member, r.Current().User)
	require.Equal(t, int32(0), backend.userCalls.Load())
	require.Equal(t, int32(0), backend.roleCalls.Load())
	require.Equal(t, int32(0), backend.dmCalls.Load())
}

func TestResolver_Livechat(t *testing.T) {
	backend := &fakeBackend{}
	r := newResolver(backend, &recorder{})

	r.Activate(context.Background(), Navigation{RoomID: "L1", Type: models.RoomTypeLivechat})
	r.Wait()
	defer r.Deactivate()

	view := r.Current()
	require.Equal(t, ModeLivechat, view.Mode)
	require.Equal(t, "L1", view.Room.ID)
	require.True(t, view.User.IsEmpty())
	require.False(t, view.ShowEdit)
	require.Equal(t, int32(0), backend.roomCalls.Load()+backend.userCalls.Load()+backend.permissionCalls.Load())
}

func TestResolver_DeactivateMidFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	backend := &fakeBackend{
		getUser: func(context.Context, string) (models.User, error) {
			close(started)
			<-release
			return models.User{ID: "bob", UserName: "bob"}, nil
		},
		createDM: func(context.Context, string) (models.Room, error) {
			return models.Room{ID: "dm_bob_me"}, nil
		},
	}
	rec := &recorder{}
	r := newResolver(backend, rec)

	r.Activate(context.Background(), Navigation{RoomID: "dm_bob_me", Type: models.RoomTypeDirect})
	<-started
	r.Deactivate()
	n := rec.count()

	close(release)
	r.Wait()

	require.Equal(t, n, rec.count(), "no change notification after deactivate")
	require.Equal(t, int32(0), backend.dmCalls.Load())
	require.True(t, r.Current().User.IsEmpty())
}

func TestResolver_StaleActivationDiscarded(t *testing.T) {
	release := make(chan struct{})
	backend := &fakeBackend{
		getRoom: func(_ context.Context, roomID string) (models.Room, error) {
			if roomID == "OLD" {
				<-release
			}
			return models.Room{ID: roomID, Name: roomID}, nil
		},
	}
	r := newResolver(backend, &recorder{})

	r.Activate(context.Background(), Navigation{RoomID: "OLD", Type: models.RoomTypeChannel})
	r.Activate(context.Background(), Navigation{RoomID: "NEW", Type: models.RoomTypeChannel})
	close(release)
	r.Wait()
	defer r.Deactivate()

	require.Equal(t, "NEW", r.Current().Room.ID)
	require.Equal(t, "NEW", r.Current().Room.Name)
}

func TestCounterpartID(t *testing.T) {
	tests := []struct {
		name string
		room models.Room
		want string
	}{
		{"Uids", models.Room{ID: "x", UIDs: []string{"me", "bob"}}, "bob"},
		{"Uids reversed", models.Room{ID: "x", UIDs: []string{"bob", "me"}}, "bob"},
		{"Self conversation", models.Room{ID: "x", UIDs: []string{"me"}}, "me"},
		{"Direct id", models.Room{ID: models.DirectRoomID("me", "alice")}, "alice"},
		{"Direct id other order", models.Room{ID: models.DirectRoomID("zed", "me")}, "zed"},
		{"Concatenated ids", models.Room{ID: "bobme"}, "bob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, CounterpartID(tt.room, "me"))
		})
	}
}

func TestTitles(t *testing.T) {
	room := models.Room{ID: "r", Type: models.RoomTypeChannel, Name: "dev-team", FName: "Dev Team"}
	require.Equal(t, "dev-team", RoomTitle(room, false))
	require.Equal(t, "Dev Team", RoomTitle(room, true))
	require.Equal(t, "c", IconType(room))

	discussion := models.Room{ID: "d", Type: models.RoomTypeGroup, PRID: "r", Name: "x1y2", FName: "Release plan"}
	require.Equal(t, "Release plan", RoomTitle(discussion, false))
	require.Equal(t, "discussion", IconType(discussion))

	user := models.User{UserName: "bob", Name: "Bob B."}
	require.Equal(t, "bob", UserTitle(user, false))
	require.Equal(t, "Bob B.", UserTitle(user, true))
}
