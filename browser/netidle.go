package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"

	"vkads-report/screenshot"
)

const (
	idleQuiet    = 500 * time.Millisecond
	idleInterval = 100 * time.Millisecond
)

// requestTracker counts in-flight requests from Network domain events
type requestTracker struct {
	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
	now          func() time.Time
}

func newRequestTracker() *requestTracker {
	return &requestTracker{
		inflight:     map[network.RequestID]struct{}{},
		lastActivity: time.Now(),
		now:          time.Now,
	}
}

func (t *requestTracker) observe(ev any) {
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		t.started(ev.RequestID)
	case *network.EventLoadingFinished:
		t.finished(ev.RequestID)
	case *network.EventLoadingFailed:
		t.finished(ev.RequestID)
	}
}

func (t *requestTracker) started(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[id] = struct{}{}
	t.lastActivity = t.now()
}

func (t *requestTracker) finished(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.inflight[id]; !ok {
		return
	}
	delete(t.inflight, id)
	t.lastActivity = t.now()
}

// reset forgets requests of the previous document
func (t *requestTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight = map[network.RequestID]struct{}{}
	t.lastActivity = t.now()
}

// idle reports whether nothing has been in flight for quiet
func (t *requestTracker) idle(quiet time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight) == 0 && t.now().Sub(t.lastActivity) >= quiet
}

func (t *requestTracker) pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}

// wait blocks until the network is idle, timeout passes or ctx is done
func (t *requestTracker) wait(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(idleInterval)
	defer tick.Stop()

	for {
		if t.idle(idleQuiet) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return screenshot.ErrSettleTimeout
		case <-tick.C:
		}
	}
}
