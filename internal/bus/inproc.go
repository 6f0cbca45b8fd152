package bus

import (
	"context"
	"sync"
)

// InProc is a process-local Bus for tests and single-binary runs with
// no broker. Publish never blocks: a subscriber that falls behind its
// buffer loses messages, matching pub/sub semantics.
type InProc struct {
	mu   sync.Mutex
	subs []*inprocSub
}

type inprocSub struct {
	patterns []string
	ch       chan Inbound
}

func NewInProc() *InProc {
	return &InProc{}
}

func (b *InProc) Publish(_ context.Context, channel string, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if !matchAny(sub.patterns, channel) {
			continue
		}
		select {
		case sub.ch <- Inbound{Channel: channel, Message: msg}:
		default:
		}
	}
	return nil
}

func (b *InProc) Subscribe(ctx context.Context, patterns ...string) (<-chan Inbound, error) {
	sub := &inprocSub{
		patterns: patterns,
		ch:       make(chan Inbound, 256),
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(sub)
		// Publish sends only while holding the mutex, so after remove
		// nothing can write to sub.ch and closing is safe.
		close(sub.ch)
	}()
	return sub.ch, nil
}

func (b *InProc) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = nil
	return nil
}

func (b *InProc) remove(sub *inprocSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

func matchAny(patterns []string, channel string) bool {
	for _, p := range patterns {
		if MatchPattern(p, channel) {
			return true
		}
	}
	return false
}
