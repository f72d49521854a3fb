package app

import (
	"sync"

	"trivia-service/internal/domain"
)

// broadcaster fans session snapshots out to the subscribers of a game.
// Slow subscribers lose intermediate snapshots, never the latest one.
type broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.SessionSnapshot]struct{}
	last map[string]domain.SessionSnapshot
}

func newBroadcaster() *broadcaster {
	return &broadcaster{
		subs: make(map[string]map[chan domain.SessionSnapshot]struct{}),
		last: make(map[string]domain.SessionSnapshot),
	}
}

func (b *broadcaster) publish(gameID string, snap domain.SessionSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if last, ok := b.last[gameID]; ok && !snap.NewerThan(last) {
		return
	}
	b.last[gameID] = snap

	for ch := range b.subs[gameID] {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

// subscribe registers a channel that first receives current, or a newer published
// snapshot of the same session if one raced ahead of it.
func (b *broadcaster) subscribe(gameID string, current domain.SessionSnapshot) (<-chan domain.SessionSnapshot, func()) {
	ch := make(chan domain.SessionSnapshot, 8)

	b.mu.Lock()
	initial := current
	if last, ok := b.last[gameID]; ok && last.SessionID == current.SessionID && last.Version > current.Version {
		initial = last
	}
	ch <- initial
	if b.subs[gameID] == nil {
		b.subs[gameID] = make(map[chan domain.SessionSnapshot]struct{})
	}
	b.subs[gameID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if subs, ok := b.subs[gameID]; ok {
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}
			if len(subs) == 0 {
				delete(b.subs, gameID)
			}
		}
	}
	return ch, cancel
}

// forget drops a game's history and closes its subscriber channels.
func (b *broadcaster) forget(gameID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.last, gameID)
	for ch := range b.subs[gameID] {
		close(ch)
	}
	delete(b.subs, gameID)
}
