package pipeline

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/intelforge/reportpipe/pkg/model"
)

// keyedLock serializes pipeline invocations per (company, date). Two
// candidates racing on the same day could both see no incumbent and both
// become canonical; the lock closes that race.
type keyedLock struct {
	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{slots: make(map[string]*lockSlot)}
}

// Acquire blocks until the key's lock is held or the context expires.
// Contention past the deadline surfaces as ErrLockContention, which is
// transient: the caller may retry the whole invocation.
func (l *keyedLock) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				l.put(key, slot)
			})
		}, nil
	case <-ctx.Done():
		l.put(key, slot)
		return nil, goerr.Wrap(model.ErrLockContention, "lock not acquired",
			goerr.V("key", key), goerr.V("cause", ctx.Err()))
	}
}

func (l *keyedLock) put(key string, slot *lockSlot) {
	l.mu.Lock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}
