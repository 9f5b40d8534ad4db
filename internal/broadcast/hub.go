// Package broadcast fans table states out to viewers. Delivery is best
// effort: a subscriber that cannot keep up loses frames and never slows the
// table down.
package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog"

	"github.com/lox/handengine/internal/hand"
	"github.com/lox/handengine/internal/sanitize"
)

// Frame is one sanitized table state.
type Frame struct {
	TableID string               `json:"table"`
	Index   int                  `json:"index"`
	State   sanitize.PublicState `json:"state"`
}

// Subscriber receives the frames of one table, or of every table when its
// table id is empty, projected for its viewer.
type Subscriber struct {
	id       uint64
	tableID  string
	viewerID string
	frames   chan Frame

	dropped  atomic.Uint64
	lastWarn time.Time // guarded by Hub.mu
	closed   bool      // guarded by Hub.mu
}

// Frames returns the subscriber's channel. It is closed on unsubscribe.
func (s *Subscriber) Frames() <-chan Frame { return s.frames }

// Viewer returns the player the frames are projected for.
func (s *Subscriber) Viewer() string { return s.viewerID }

// Dropped returns how many frames were dropped because the channel was full.
func (s *Subscriber) Dropped() uint64 { return s.dropped.Load() }

// HubConfig tunes buffering and drop warnings.
type HubConfig struct {
	Buffer       int
	WarnInterval time.Duration
	Clock        quartz.Clock
}

// Hub routes published states to subscribers.
type Hub struct {
	cfg    HubConfig
	logger zerolog.Logger

	mu     sync.Mutex
	next   uint64
	subs   map[uint64]*Subscriber
	closed bool
}

// NewHub returns an empty hub.
func NewHub(logger zerolog.Logger, cfg HubConfig) *Hub {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	if cfg.WarnInterval <= 0 {
		cfg.WarnInterval = 10 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = quartz.NewReal()
	}
	return &Hub{
		cfg:    cfg,
		logger: logger.With().Str("component", "broadcast").Logger(),
		subs:   make(map[uint64]*Subscriber),
	}
}

// Subscribe registers a viewer. An empty viewerID is a spectator and an
// empty tableID follows every table.
func (h *Hub) Subscribe(tableID, viewerID string) *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	s := &Subscriber{
		id:       h.next,
		tableID:  tableID,
		viewerID: viewerID,
		frames:   make(chan Frame, h.cfg.Buffer),
	}
	if h.closed {
		s.closed = true
		close(s.frames)
		return s
	}
	h.subs[s.id] = s
	return s
}

// Unsubscribe removes s and closes its channel.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(s)
}

func (h *Hub) remove(s *Subscriber) {
	if s.closed {
		return
	}
	s.closed = true
	delete(h.subs, s.id)
	close(s.frames)
}

// Publish sends s to every subscriber of tableID, sanitized per viewer. It
// never blocks.
func (h *Hub) Publish(tableID string, index int, s hand.State) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var spectator *sanitize.PublicState
	for _, sub := range h.subs {
		if sub.tableID != "" && sub.tableID != tableID {
			continue
		}
		var view sanitize.PublicState
		if sub.viewerID == "" {
			if spectator == nil {
				v := sanitize.ForSpectator(s)
				spectator = &v
			}
			view = *spectator
		} else {
			view = sanitize.ForViewer(s, sub.viewerID)
		}

		select {
		case sub.frames <- Frame{TableID: tableID, Index: index, State: view}:
		default:
			h.drop(sub, tableID)
		}
	}
}

func (h *Hub) drop(sub *Subscriber, tableID string) {
	n := sub.dropped.Add(1)
	now := h.cfg.Clock.Now()
	if !sub.lastWarn.IsZero() && now.Sub(sub.lastWarn) < h.cfg.WarnInterval {
		return
	}
	sub.lastWarn = now
	h.logger.Warn().
		Str("table_id", tableID).
		Str("viewer", sub.viewerID).
		Uint64("dropped", n).
		Msg("Subscriber too slow, dropping frames")
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close unsubscribes everyone. Later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, s := range h.subs {
		h.remove(s)
	}
}
