// Package broadcast fans events out to connected observers.
//
// Every observer gets its own queue drained by its own goroutine, so a slow
// or dead observer never delays the broadcaster or its peers. Log, result
// and error events are always queued; only screenshot frames are dropped
// when an observer falls behind. An observer whose send fails or times out
// is evicted.
package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/entrhq/webpilot/pkg/logging"
	"github.com/entrhq/webpilot/pkg/metrics"
	"github.com/entrhq/webpilot/pkg/types"
)

const (
	// DefaultQueueSize is the per-observer backlog of screenshot frames
	// beyond which new frames are dropped.
	DefaultQueueSize = 256

	// DefaultSendTimeout bounds one Observer.Send call.
	DefaultSendTimeout = 15 * time.Second
)

// ReasonSendFailed is the eviction reason recorded in metrics and logs.
const ReasonSendFailed = "send_failed"

// skipBacklog is the frame skip reason for an observer that fell behind.
const skipBacklog = "observer_backlog"

// Observer receives events. Send is only ever called from the observer's
// own writer goroutine, never concurrently.
type Observer interface {
	Send(ctx context.Context, event types.Event) error
}

// Broadcaster is the write side of a Hub.
type Broadcaster interface {
	Broadcast(event types.Event)
}

// Options configures a Hub.
type Options struct {
	// QueueSize bounds the screenshot frames waiting for one observer.
	QueueSize   int
	SendTimeout time.Duration
	Logger      *logging.Logger
}

// Hub is the set of connected observers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[Observer]*subscriber
	closed bool

	queueSize   int
	sendTimeout time.Duration
	log         *logging.Logger
}

// Subscription tracks one registered observer.
type Subscription struct {
	done chan struct{}
	err  error
}

// Done is closed once the observer is unregistered or evicted and its writer
// has finished delivering what was queued before that.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the send error that evicted the observer. It is nil while the
// subscription is live and after a plain Unregister.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

type subscriber struct {
	obs Observer
	sub *Subscription

	mu      sync.Mutex
	pending []types.Event
	frames  int // stream events in pending
	closed  bool
	wake    chan struct{}
}

// push queues event. Stream frames beyond maxFrames are dropped; every
// other event is kept.
func (s *subscriber) push(event types.Event, maxFrames int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if event.Type == types.EventTypeStream {
		if s.frames >= maxFrames {
			return false
		}
		s.frames++
	}
	s.pending = append(s.pending, event)
	s.signal()
	return true
}

// next blocks until an event is queued, or returns false once the
// subscriber is closed and drained.
func (s *subscriber) next() (types.Event, bool) {
	for {
		s.mu.Lock()
		if len(s.pending) > 0 {
			event := s.pending[0]
			s.pending[0] = types.Event{}
			s.pending = s.pending[1:]
			if event.Type == types.EventTypeStream {
				s.frames--
			}
			s.mu.Unlock()
			return event, true
		}
		if s.closed {
			s.mu.Unlock()
			return types.Event{}, false
		}
		s.mu.Unlock()
		<-s.wake
	}
}

// close stops new events; already queued ones are still returned by next.
func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.signal()
}

// discard drops everything queued and closes the subscriber.
func (s *subscriber) discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.frames = 0
	s.closed = true
	s.signal()
}

func (s *subscriber) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// NewHub creates a Hub.
func NewHub(opts Options) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.MustLogger("broadcast")
	}
	return &Hub{
		subs:        make(map[Observer]*subscriber),
		queueSize:   opts.QueueSize,
		sendTimeout: opts.SendTimeout,
		log:         opts.Logger,
	}
}

// Register adds an observer and starts its writer. Registering an observer
// twice returns the existing subscription.
func (h *Hub) Register(o Observer) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.subs[o]; ok {
		return s.sub
	}

	sub := &Subscription{done: make(chan struct{})}
	if h.closed {
		close(sub.done)
		return sub
	}

	s := &subscriber{
		obs:  o,
		sub:  sub,
		wake: make(chan struct{}, 1),
	}
	h.subs[o] = s
	metrics.Observers.Set(float64(len(h.subs)))

	go h.writeLoop(s)
	return sub
}

// Unregister removes an observer. Events already queued are still delivered
// before its Subscription is done. Unknown observers are ignored.
func (h *Hub) Unregister(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(o)
}

// Broadcast queues event for every observer. It never blocks.
func (h *Hub) Broadcast(event types.Event) {
	metrics.EventsBroadcast.WithLabelValues(string(event.Type)).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.subs {
		if !s.push(event, h.queueSize) {
			metrics.FramesSkipped.WithLabelValues(skipBacklog).Inc()
		}
	}
}

// Deliver queues event for one observer only. It reports false when the
// observer is not registered or the event was a frame dropped for backlog.
func (h *Hub) Deliver(o Observer, event types.Event) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s, ok := h.subs[o]
	if !ok {
		return false
	}
	if !s.push(event, h.queueSize) {
		metrics.FramesSkipped.WithLabelValues(skipBacklog).Inc()
		return false
	}
	return true
}

// Count returns the number of registered observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close unregisters every observer and rejects later registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for o := range h.subs {
		h.removeLocked(o)
	}
}

func (h *Hub) removeLocked(o Observer) {
	s, ok := h.subs[o]
	if !ok {
		return
	}
	delete(h.subs, o)
	s.close()
	metrics.Observers.Set(float64(len(h.subs)))
}

// evict removes s unless it was already replaced or removed, and drops what
// it still had queued.
func (h *Hub) evict(s *subscriber, cause error) {
	h.mu.Lock()
	if h.subs[s.obs] == s {
		delete(h.subs, s.obs)
		metrics.Observers.Set(float64(len(h.subs)))
	}
	h.mu.Unlock()
	s.discard()

	metrics.ObserverEvictions.WithLabelValues(ReasonSendFailed).Inc()
	h.log.Warnf("Evicting observer (%s): %v", ReasonSendFailed, cause)
}

func (h *Hub) writeLoop(s *subscriber) {
	defer close(s.sub.done)

	for {
		event, ok := s.next()
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.sendTimeout)
		err := s.obs.Send(ctx, event)
		cancel()
		if err != nil {
			s.sub.err = err
			h.evict(s, err)
			return
		}
	}
}
