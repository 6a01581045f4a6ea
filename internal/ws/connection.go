package ws

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"roominfo/internal/logger"
	"roominfo/internal/models"
	"roominfo/internal/roominfo"
)

type wsConnection interface {
	Close() error
	WriteJSON(v any) error
	ReadJSON(v any) error
}

type directory interface {
	Navigation(ctx context.Context, userID, roomID string, roomType models.RoomType) (roominfo.Navigation, error)
	Resolver(userID string, onChange func(roominfo.ViewModel)) *roominfo.Resolver
}

type presenter interface {
	Present(view roominfo.ViewModel) models.RoomInfoView
}

// Connection drives one live room info view over a websocket. The client
// navigates with open and close messages and receives every view change.
type Connection struct {
	ws       wsConnection
	hub      *Hub
	dir      directory
	views    presenter
	userID   string
	resolver *roominfo.Resolver

	// Initial, when set, is processed before any client message.
	Initial *models.ClientMessage

	fromClient chan models.ClientMessage
	// holds at most the newest pending view
	updates chan roominfo.ViewModel
	errorCh chan error
}

func NewConnection(
	hub *Hub,
	dir directory,
	views presenter,
	ws wsConnection,
	userID string,
) *Connection {
	c := &Connection{
		ws:         ws,
		hub:        hub,
		dir:        dir,
		views:      views,
		userID:     userID,
		fromClient: make(chan models.ClientMessage),
		updates:    make(chan roominfo.ViewModel, 1),
		errorCh:    make(chan error, 2),
	}
	c.resolver = dir.Resolver(userID, c.push)
	return c
}

// push replaces the pending view with the newest one. It never blocks.
func (c *Connection) push(view roominfo.ViewModel) {
	for {
		select {
		case c.updates <- view:
			return
		default:
		}
		select {
		case <-c.updates:
		default:
		}
	}
}

func (c *Connection) Handle(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	ctx = logger.WithFields(ctx, logger.Fields{UserID: c.userID})
	c.hub.Join(c)
	defer func() {
		c.resolver.Deactivate()
		close(c.fromClient)
		close(c.errorCh)
		c.hub.Leave(c)
	}()

	var wg sync.WaitGroup
	wg.Go(func() {
		c.errorCh <- c.pumpMessages(ctx)
		cancel()
	})

	wg.Go(func() {
		c.errorCh <- c.mainLoop(ctx)
		cancel()
	})

	var err error
	select {
	case err = <-c.errorCh:
	case <-ctx.Done():
	}
	_ = c.ws.Close()
	wg.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (c *Connection) pumpMessages(ctx context.Context) error {
	for {
		var msg models.ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			return err
		}
		select {
		case c.fromClient <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Connection) mainLoop(ctx context.Context) error {
	if c.Initial != nil {
		if err := c.processClientMessage(ctx, *c.Initial); err != nil {
			return err
		}
	}

	for {
		select {
		case msg := <-c.fromClient:
			if err := c.processClientMessage(ctx, msg); err != nil {
				return err
			}
		case view := <-c.updates:
			rendered := c.views.Present(view)
			if err := c.ws.WriteJSON(models.ServerMessage{
				Type: models.ServerMessageTypeView,
				View: &rendered,
			}); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Connection) processClientMessage(ctx context.Context, msg models.ClientMessage) error {
	switch msg.Type {
	case models.ClientMessageTypeOpen:
		nav, err := c.dir.Navigation(ctx, c.userID, msg.RoomID, msg.RoomType)
		if err != nil {
			slog.DebugContext(ctx, "failed to open room info", "rid", msg.RoomID, "error", err)
			return c.ws.WriteJSON(models.ServerMessage{
				Type:    models.ServerMessageTypeError,
				Message: err.Error(),
			})
		}
		c.resolver.Activate(logger.WithFields(ctx, logger.Fields{RoomID: msg.RoomID}), nav)
	case models.ClientMessageTypeClose:
		c.resolver.Deactivate()
		c.drain()
	default:
		return c.ws.WriteJSON(models.ServerMessage{
			Type:    models.ServerMessageTypeError,
			Message: "unknown message type",
		})
	}

	return nil
}

// drain drops a view left pending by a finished activation.
func (c *Connection) drain() {
	select {
	case <-c.updates:
	default:
	}
}
