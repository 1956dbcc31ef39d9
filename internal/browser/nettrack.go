package browser

import (
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

// netTracker counts in-flight requests from CDP network events. Long-lived
// streams are ignored so they never hold the page busy.
type netTracker struct {
	mu       sync.Mutex
	pending  map[network.RequestID]struct{}
	lastSeen time.Time
	now      func() time.Time
}

func newNetTracker(now func() time.Time) *netTracker {
	return &netTracker{
		pending:  make(map[network.RequestID]struct{}),
		lastSeen: now(),
		now:      now,
	}
}

func (t *netTracker) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Type == network.ResourceTypeWebSocket || e.Type == network.ResourceTypeEventSource {
			return
		}
		t.start(e.RequestID)
	case *network.EventLoadingFinished:
		t.finish(e.RequestID)
	case *network.EventLoadingFailed:
		t.finish(e.RequestID)
	}
}

func (t *netTracker) start(id network.RequestID) {
	t.mu.Lock()
	t.pending[id] = struct{}{}
	t.lastSeen = t.now()
	t.mu.Unlock()
}

func (t *netTracker) finish(id network.RequestID) {
	t.mu.Lock()
	if _, ok := t.pending[id]; ok {
		delete(t.pending, id)
		t.lastSeen = t.now()
	}
	t.mu.Unlock()
}

func (t *netTracker) inflight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// idleFor returns how long the page has had no requests in flight.
func (t *netTracker) idleFor() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pending) > 0 {
		return 0
	}
	return t.now().Sub(t.lastSeen)
}
