package chat

import (
	"context"
	"sync"

	"roominfo/internal/models"
)

type Seq int64

// Feed fans out revisions of a single room to its subscribers.
type Feed struct {
	ID         string
	LastSeq    Seq
	BufferSize int

	subscribers map[uint64]chan models.Room
	nextID      uint64

	mux sync.RWMutex
}

type Config struct {
	ID         string
	BufferSize int
}

func New(config Config) *Feed {
	if config.BufferSize <= 0 {
		config.BufferSize = 1
	}
	return &Feed{
		ID:          config.ID,
		BufferSize:  config.BufferSize,
		LastSeq:     -1,
		subscribers: make(map[uint64]chan models.Room),
	}
}

// Publish delivers a new revision of the room to every subscriber.
// A subscriber that is not keeping up loses its oldest pending revision,
// so the newest one is always delivered.
func (f *Feed) Publish(room models.Room) Seq {
	f.mux.Lock()
	defer f.mux.Unlock()

	f.LastSeq++
	for _, ch := range f.subscribers {
		select {
		case ch <- room:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- room:
		default:
		}
	}
	return f.LastSeq
}

// Subscribe registers a subscriber. The returned func removes it and closes
// the channel; calling it more than once is safe.
func (f *Feed) Subscribe() (<-chan models.Room, func()) {
	f.mux.Lock()
	defer f.mux.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan models.Room, f.BufferSize)
	f.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mux.Lock()
			defer f.mux.Unlock()
			delete(f.subscribers, id)
			close(ch)
		})
	}
}

func (f *Feed) Subscribers() int {
	f.mux.RLock()
	defer f.mux.RUnlock()
	return len(f.subscribers)
}

// Hub keeps one feed per observed room id. A feed lives while it has
// subscribers.
type Hub struct {
	feeds      map[string]*Feed
	bufferSize int

	mu sync.Mutex
}

func NewHub(bufferSize int) *Hub {
	return &Hub{
		feeds:      make(map[string]*Feed),
		bufferSize: bufferSize,
	}
}

func (h *Hub) lookup(roomID string) (*Feed, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.feeds[roomID]
	return f, ok
}

// Publish delivers a room revision to its observers. It returns -1 when the
// room has none.
func (h *Hub) Publish(room models.Room) Seq {
	f, ok := h.lookup(room.ID)
	if !ok {
		return -1
	}
	return f.Publish(room)
}

// Subscribers returns the number of live subscriptions to a room.
func (h *Hub) Subscribers(roomID string) int {
	f, ok := h.lookup(roomID)
	if !ok {
		return 0
	}
	return f.Subscribers()
}

// Feeds returns the number of rooms with live subscriptions.
func (h *Hub) Feeds() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.feeds)
}

func (h *Hub) subscribe(roomID string) (<-chan models.Room, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, ok := h.feeds[roomID]
	if !ok {
		f = New(Config{ID: roomID, BufferSize: h.bufferSize})
		h.feeds[roomID] = f
	}
	ch, unsubscribe := f.Subscribe()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			unsubscribe()
			if f.Subscribers() == 0 && h.feeds[roomID] == f {
				delete(h.feeds, roomID)
			}
		})
	}
}

// Observe returns a handle that subscribes to changes of a room on demand.
func (h *Hub) Observe(roomID string) *Observer {
	return &Observer{hub: h, roomID: roomID}
}

type Observer struct {
	hub    *Hub
	roomID string
}

// Observe subscribes to the room. The subscription is also released when ctx is done.
func (o *Observer) Observe(ctx context.Context) (<-chan models.Room, func()) {
	ch, unsubscribe := o.hub.subscribe(o.roomID)
	stop := context.AfterFunc(ctx, unsubscribe)
	return ch, func() {
		stop()
		unsubscribe()
	}
}
