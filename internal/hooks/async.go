package hooks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// pendingAsync tracks one in-flight asynchronous hook dispatch awaiting a
// late response (e.g. a command hook that forks a background watcher and
// replies once, minutes later, on a side channel).
type pendingAsync struct {
	id      string
	event   *Event
	created time.Time
	resp    chan *Response
	done    chan struct{}
	once    sync.Once
}

// AsyncRegistry tracks hooks dispatched without blocking the engine loop.
// If a deadline passes before a response arrives, the pending entry is
// resolved with a synthetic empty Response marked Delivered=false rather
// than silently vanishing, so the engine can log that the hook never
// actually answered instead of confusing "never replied" with "replied
// with nothing to say".
type AsyncRegistry struct {
	mu      sync.Mutex
	pending map[string]*pendingAsync
	logger  *slog.Logger
}

// NewAsyncRegistry constructs an AsyncRegistry.
func NewAsyncRegistry(logger *slog.Logger) *AsyncRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsyncRegistry{
		pending: make(map[string]*pendingAsync),
		logger:  logger.With("component", "hooks.async"),
	}
}

// Dispatch registers event as pending and returns its tracking ID plus a
// channel that receives exactly one Response: either the real one Resolve
// delivers, or a synthetic empty one if deadline elapses first.
func (r *AsyncRegistry) Dispatch(ctx context.Context, event *Event, deadline time.Duration) (string, <-chan *Response) {
	id := uuid.New().String()
	p := &pendingAsync{
		id:      id,
		event:   event,
		created: time.Now(),
		resp:    make(chan *Response, 1),
		done:    make(chan struct{}),
	}

	r.mu.Lock()
	r.pending[id] = p
	r.mu.Unlock()

	go func() {
		timer := time.NewTimer(deadline)
		defer timer.Stop()
		select {
		case <-timer.C:
			r.resolve(id, &Response{Continue: true, Delivered: false})
		case <-ctx.Done():
			r.resolve(id, &Response{Continue: true, Delivered: false})
		case <-p.done:
			// Resolve already delivered the real response; nothing more to do.
		}
	}()

	return id, p.resp
}

// Resolve delivers resp for the pending dispatch id, if it is still
// outstanding. A second Resolve (or a timeout racing a late Resolve) is a
// no-op: only the first writer wins.
func (r *AsyncRegistry) Resolve(id string, resp *Response) bool {
	r.mu.Lock()
	p, ok := r.pending[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	resp.Delivered = true
	return r.resolve(id, resp)
}

func (r *AsyncRegistry) resolve(id string, resp *Response) bool {
	r.mu.Lock()
	p, ok := r.pending[id]
	if ok {
		delete(r.pending, id)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}

	delivered := resp.Delivered
	p.once.Do(func() {
		p.resp <- resp
		close(p.resp)
		close(p.done)
	})
	if !delivered {
		r.logger.Warn("async hook timed out without a response",
			"dispatch_id", id,
			"event_type", p.event.Type,
			"waited", time.Since(p.created))
	}
	return true
}

// Pending reports how many dispatches are still outstanding.
func (r *AsyncRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
