package ws

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"roominfo/internal/models"
	"roominfo/internal/roominfo"
)

type mockWS struct {
	readCh      chan models.ClientMessage
	writeCh     chan any
	closeCh     chan struct{}
	closeOnce   sync.Once
	errToReturn error
}

func newMockWS() *mockWS {
	return &mockWS{
		readCh:  make(chan models.ClientMessage, 10),
		writeCh: make(chan any, 100),
		closeCh: make(chan struct{}),
	}
}

func (m *mockWS) Close() error {
	m.closeOnce.Do(func() { close(m.closeCh) })
	return nil
}

func (m *mockWS) isClosed() bool {
	select {
	case <-m.closeCh:
		return true
	default:
		return false
	}
}

func (m *mockWS) WriteJSON(v any) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	m.writeCh <- v
	return nil
}

func (m *mockWS) ReadJSON(v any) error {
	if m.errToReturn != nil {
		return m.errToReturn
	}
	select {
	case msg, ok := <-m.readCh:
		if !ok {
			return errors.New("closed")
		}
		if ptr, ok := v.(*models.ClientMessage); ok {
			*ptr = msg
		}
		return nil
	case <-m.closeCh:
		return errors.New("connection closed")
	}
}

var errForbidden = errors.New("forbidden")

// fakeDirectory serves a single channel and grants every permission.
type fakeDirectory struct {
	room models.Room
	// outsider is refused access to the room
	outsider string
}

func (d *fakeDirectory) Navigation(ctx context.Context, userID, roomID string, roomType models.RoomType) (roominfo.Navigation, error) {
	if roomID != d.room.ID {
		return roominfo.Navigation{}, models.ErrNotFound
	}
	if userID == d.outsider {
		return roominfo.Navigation{}, errForbidden
	}
	return roominfo.Navigation{RoomID: roomID, Type: d.room.Type, Preload: roominfo.NotPreloaded{}}, nil
}

func (d *fakeDirectory) Resolver(userID string, onChange func(roominfo.ViewModel)) *roominfo.Resolver {
	return roominfo.New(roominfo.Config{
		SelfID:      userID,
		Rooms:       d,
		Permissions: d,
		Users:       d,
		Roles:       d,
		Directs:     d,
		OnChange:    onChange,
	})
}

func (d *fakeDirectory) GetRoomInfo(ctx context.Context, roomID string) (models.Room, error) {
	return d.room, nil
}

func (d *fakeDirectory) HasPermission(ctx context.Context, permissions []string, roomID string) (map[string]bool, error) {
	granted := make(map[string]bool, len(permissions))
	for _, p := range permissions {
		granted[p] = true
	}
	return granted, nil
}

func (d *fakeDirectory) GetUserInfo(ctx context.Context, userID string) (models.User, error) {
	return models.User{}, models.ErrNotFound
}

func (d *fakeDirectory) FindRoleDescription(ctx context.Context, roleID string) (string, error) {
	return "", models.ErrNotFound
}

func (d *fakeDirectory) CreateDirectMessage(ctx context.Context, userName string) (models.Room, error) {
	return models.Room{}, models.ErrNotFound
}

type fakePresenter struct{}

func (fakePresenter) Present(view roominfo.ViewModel) models.RoomInfoView {
	return models.RoomInfoView{Mode: string(view.Mode), Room: view.Room, ShowEdit: view.ShowEdit}
}

func newTestConnection(ws *mockWS, hub *Hub, userID string) *Connection {
	dir := &fakeDirectory{room: models.Room{ID: "general", Type: models.RoomTypeChannel, Topic: "hello"}}
	return NewConnection(hub, dir, fakePresenter{}, ws, userID)
}

// waitForView reads server messages until one satisfies cond.
func waitForView(t *testing.T, ws *mockWS, cond func(models.ServerMessage) bool) {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case received := <-ws.writeCh:
			msg, ok := received.(models.ServerMessage)
			if !ok {
				t.Fatalf("WS received wrong type: %T", received)
			}
			if cond(msg) {
				return
			}
		case <-timeout:
			t.Fatal("expected server message not received")
		}
	}
}

func TestConnection_Lifecycle(t *testing.T) {
	hub := NewHub()
	ws := newMockWS()
	userID := "user1"

	conn := newTestConnection(ws, hub, userID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error)
	go func() {
		done <- conn.Handle(ctx)
	}()

	ws.readCh <- models.ClientMessage{Type: models.ClientMessageTypeOpen, RoomID: "general"}

	waitForView(t, ws, func(msg models.ServerMessage) bool {
		return msg.Type == models.ServerMessageTypeView &&
			msg.View.Room.Topic == "hello" &&
			msg.View.ShowEdit
	})

	if n := hub.Connections(userID); n != 1 {
		t.Errorf("Expected 1 connection in hub, got %d", n)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Handle returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Handle did not return after cancel")
	}

	if n := hub.Connections(userID); n != 0 {
		t.Errorf("Expected connection to leave hub, got %d", n)
	}
	if !ws.isClosed() {
		t.Error("WS Close not called")
	}
}

func TestConnection_OpenUnknownRoom(t *testing.T) {
	ws := newMockWS()
	conn := newTestConnection(ws, NewHub(), "user1")
	conn.Initial = &models.ClientMessage{Type: models.ClientMessageTypeOpen, RoomID: "missing"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = conn.Handle(ctx) }()

	waitForView(t, ws, func(msg models.ServerMessage) bool {
		return msg.Type == models.ServerMessageTypeError && msg.Message == models.ErrNotFound.Error()
	})
}

func TestConnection_OpenForbiddenRoom(t *testing.T) {
	ws := newMockWS()
	dir := &fakeDirectory{room: models.Room{ID: "general", Type: models.RoomTypeGroup}, outsider: "user2"}
	conn := NewConnection(NewHub(), dir, fakePresenter{}, ws, "user2")
	conn.Initial = &models.ClientMessage{Type: models.ClientMessageTypeOpen, RoomID: "general"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = conn.Handle(ctx) }()

	waitForView(t, ws, func(msg models.ServerMessage) bool {
		if msg.View != nil {
			t.Fatalf("outsider received a view: %+v", msg.View)
		}
		return msg.Type == models.ServerMessageTypeError && msg.Message == errForbidden.Error()
	})
}

func TestConnection_CloseStopsUpdates(t *testing.T) {
	ws := newMockWS()
	conn := newTestConnection(ws, NewHub(), "user1")
	conn.Initial = &models.ClientMessage{Type: models.ClientMessageTypeOpen, RoomID: "general"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = conn.Handle(ctx) }()

	waitForView(t, ws, func(msg models.ServerMessage) bool {
		return msg.View != nil && msg.View.ShowEdit
	})

	ws.readCh <- models.ClientMessage{Type: models.ClientMessageTypeClose}
	ws.readCh <- models.ClientMessage{Type: "bogus"}

	// The error reply proves close was processed; nothing else may follow it.
	waitForView(t, ws, func(msg models.ServerMessage) bool {
		return msg.Type == models.ServerMessageTypeError
	})
	select {
	case received := <-ws.writeCh:
		t.Errorf("unexpected message after close: %+v", received)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnection_DisconnectUser(t *testing.T) {
	hub := NewHub()
	ws := newMockWS()
	conn := newTestConnection(ws, hub, "user1")

	done := make(chan error)
	go func() {
		done <- conn.Handle(context.Background())
	}()

	deadline := time.Now().Add(time.Second)
	for hub.Connections("user1") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if n := hub.DisconnectUser("user1"); n != 1 {
		t.Errorf("Expected 1 closed connection, got %d", n)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Handle did not return after disconnect")
	}
	if n := hub.Connections("user1"); n != 0 {
		t.Errorf("Expected no connections, got %d", n)
	}
}

func TestConnection_WSError(t *testing.T) {
	ws := newMockWS()
	conn := newTestConnection(ws, NewHub(), "user2")

	// Simulate ReadJSON error immediately
	ws.errToReturn = errors.New("read error")

	done := make(chan error)
	go func() {
		done <- conn.Handle(context.Background())
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Expected error from Handle, got nil")
		}
	case <-time.After(time.Second):
		t.Error("Handle did not return on error")
	}

	if !ws.isClosed() {
		t.Error("WS Close not called")
	}
}
