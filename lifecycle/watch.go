package lifecycle

import (
	"context"
	"fmt"
	"slices"

	"github.com/poiesic/corpora/core"
)

// Watch streams the status of a document. The first event carries the
// current status; later events follow each transition. The channel is closed
// when ctx ends, the document reaches ready or error, or it is deleted.
func (m *Manager) Watch(ctx context.Context, id string) (<-chan StatusEvent, error) {
	// Subscribe before reading so no transition falls between the two.
	sub := m.events.subscribe(id)
	doc, err := m.Get(ctx, id)
	if err != nil {
		m.events.unsubscribe(id, sub)
		return nil, err
	}

	out := make(chan StatusEvent)
	go func() {
		defer m.events.unsubscribe(id, sub)
		defer close(out)

		send := func(ev StatusEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		current := StatusEvent{DocumentID: id, To: doc.Status, Error: doc.Error, At: doc.UpdatedAt}
		if !send(current) || current.final() {
			return
		}
		caughtUp := false
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-sub.ch:
				// Transitions published between subscribe and read are
				// already reflected in the first event.
				if !caughtUp && !ev.Deleted && rank(ev.To) <= rank(current.To) {
					continue
				}
				caughtUp = true
				if !send(ev) || ev.final() {
					return
				}
			}
		}
	}()
	return out, nil
}

func rank(s core.DocumentStatus) int {
	return slices.Index(core.AllStatuses, s)
}

// WaitFor blocks until the document reaches one of statuses and returns it.
// It returns ErrUnexpectedTerminal when the document settles elsewhere first.
func (m *Manager) WaitFor(ctx context.Context, id string, statuses ...core.DocumentStatus) (*core.Document, error) {
	events, err := m.Watch(ctx, id)
	if err != nil {
		return nil, err
	}
	var last StatusEvent
	for ev := range events {
		last = ev
		if !ev.Deleted && slices.Contains(statuses, ev.To) {
			return m.Get(ctx, id)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if last.Deleted {
		return nil, fmt.Errorf("%w: deleted", ErrUnexpectedTerminal)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnexpectedTerminal, last.To)
}
