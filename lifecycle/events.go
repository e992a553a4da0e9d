package lifecycle

import (
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/corpora/core"
)

// StatusEvent reports one transition of one document.
type StatusEvent struct {
	DocumentID string              `json:"documentId"`
	From       core.DocumentStatus `json:"from,omitempty"`
	To         core.DocumentStatus `json:"to"`
	Error      string              `json:"error,omitempty"`
	Deleted    bool                `json:"deleted,omitempty"`
	At         time.Time           `json:"at"`
}

// final reports whether no further events will follow for the document
// without an operator action.
func (e StatusEvent) final() bool {
	return e.Deleted || e.To.Terminal()
}

const subscriberBuffer = 16

type subscriber struct {
	ch chan StatusEvent
}

// bus fans status events out to per-document subscribers.
type bus struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	logger *slog.Logger
}

func newBus(logger *slog.Logger) *bus {
	return &bus{subs: make(map[string]map[*subscriber]struct{}), logger: logger}
}

func (b *bus) subscribe(id string) *subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &subscriber{ch: make(chan StatusEvent, subscriberBuffer)}
	if b.subs[id] == nil {
		b.subs[id] = make(map[*subscriber]struct{})
	}
	b.subs[id][s] = struct{}{}
	return s
}

func (b *bus) unsubscribe(id string, s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[id], s)
	if len(b.subs[id]) == 0 {
		delete(b.subs, id)
	}
}

// publish never blocks the transition that produced the event. A subscriber
// that stopped draining loses the event.
func (b *bus) publish(ev StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs[ev.DocumentID] {
		select {
		case s.ch <- ev:
		default:
			b.logger.Warn("dropping status event for slow subscriber", "document", ev.DocumentID, "status", ev.To)
		}
	}
}
