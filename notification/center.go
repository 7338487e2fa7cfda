package notification

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/faithboy007/world-conquest-veterinary-home/middleware"
	"github.com/faithboy007/world-conquest-veterinary-home/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

type Phase string

const (
	PhaseVisible Phase = "visible"
	PhaseFading  Phase = "fading"
	PhaseRemoved Phase = "removed"
)

const (
	DefaultDisplay = 4000 * time.Millisecond
	DefaultFade    = 500 * time.Millisecond
)

type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Kind      Kind      `json:"kind"`
	Phase     Phase     `json:"phase"`
	CreatedAt time.Time `json:"created_at"`
}

// Sink receives every notification once, off the caller's goroutine.
type Sink interface {
	Deliver(ctx context.Context, n Notification) error
}

type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Deliver(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

type EventPublisher interface {
	Publish(ctx context.Context, event models.CheckoutEvent) error
}

// EventSink forwards notifications of one session to the event stream.
func EventSink(events EventPublisher, sessionID string) Sink {
	return SinkFunc(func(ctx context.Context, n Notification) error {
		return events.Publish(ctx, models.CheckoutEvent{
			EventType:  models.EventNotificationShown,
			SessionID:  sessionID,
			Message:    n.Message,
			Kind:       string(n.Kind),
			OccurredAt: n.CreatedAt,
		})
	})
}

type entry struct {
	n     Notification
	seq   uint64
	timer *time.Timer
}

// Center owns the transient banners of one session. Each banner has its own
// timer: visible for the display duration, fading for the fade duration, then
// removed. Banners are neither deduplicated nor queued.
type Center struct {
	mu      sync.Mutex
	active  map[string]*entry
	seq     uint64
	closed  bool
	display time.Duration
	fade    time.Duration
	sinks   []Sink
	logger  *zap.Logger
}

func NewCenter(display, fade time.Duration, logger *zap.Logger, sinks ...Sink) *Center {
	return &Center{
		active:  make(map[string]*entry),
		display: display,
		fade:    fade,
		sinks:   sinks,
		logger:  logger,
	}
}

// Show inserts a banner and returns immediately.
func (c *Center) Show(ctx context.Context, message string, kind Kind) Notification {
	n := Notification{
		ID:        uuid.NewString(),
		Message:   message,
		Kind:      kind,
		Phase:     PhaseVisible,
		CreatedAt: time.Now(),
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		n.Phase = PhaseRemoved
		return n
	}
	c.seq++
	e := &entry{n: n, seq: c.seq}
	e.timer = time.AfterFunc(c.display, func() { c.startFade(n.ID) })
	c.active[n.ID] = e
	c.mu.Unlock()

	middleware.RecordNotificationShown(string(kind))
	c.logger.Info("Notification shown",
		zap.String("notification_id", n.ID),
		zap.String("kind", string(kind)),
		zap.String("message", message),
	)

	deliverCtx := context.WithoutCancel(ctx)
	for _, sink := range c.sinks {
		go func(sink Sink) {
			if err := sink.Deliver(deliverCtx, n); err != nil {
				c.logger.Error("Failed to deliver notification", zap.String("notification_id", n.ID), zap.Error(err))
			}
		}(sink)
	}

	return n
}

func (c *Center) startFade(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.active[id]
	if !ok || e.n.Phase != PhaseVisible {
		return
	}
	e.n.Phase = PhaseFading
	e.timer = time.AfterFunc(c.fade, func() { c.remove(id) })
}

func (c *Center) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.active[id]; ok {
		delete(c.active, id)
		middleware.RecordNotificationRemoved()
	}
}

// Active returns the banners that are visible or fading, oldest first.
func (c *Center) Active() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]*entry, 0, len(c.active))
	for _, e := range c.active {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	out := make([]Notification, len(entries))
	for i, e := range entries {
		out[i] = e.n
	}
	return out
}

// Close stops every pending timer and drops all banners. Later calls to Show
// are no-ops.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	for id, e := range c.active {
		e.timer.Stop()
		delete(c.active, id)
		middleware.RecordNotificationRemoved()
	}
}
