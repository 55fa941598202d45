// Package lock provides entity-scoped mutual exclusion for state transitions.
// A transition acquires every entity key it touches (one proposal, or one
// mission plus its agents and the treasury) before reading and writing.
package lock

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// ErrNotAcquired is returned when a lock cannot be obtained before the context ends.
var ErrNotAcquired = errors.New("lock: not acquired")

// Locker acquires a set of keys atomically. The returned release func must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, keys ...string) (release func(), err error)
}

// Key helpers keep lock names consistent across engines.
func ProposalKey(id string) string { return "proposal:" + id }
func MissionKey(id string) string  { return "mission:" + id }
func AgentKey(id string) string    { return "agent:" + id }
func MemberKey(id string) string   { return "member:" + id }

// TreasuryKey names the single shared treasury.
const TreasuryKey = "treasury"

// normalize sorts and de-duplicates keys so every caller locks in the same order.
func normalize(keys []string) []string {
	out := slices.Clone(keys)
	slices.Sort(out)
	return slices.Compact(out)
}

// LocalLocker is an in-process Locker backed by one mutex per key.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker creates an empty in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

// Acquire locks the keys in sorted order. It gives up with ErrNotAcquired,
// releasing anything already held, if ctx is done first.
func (l *LocalLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	held := make([]string, 0, len(keys))

	releaseHeld := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
	}

	for _, k := range keys {
		kl := l.ref(k)
		select {
		case kl.ch <- struct{}{}:
			held = append(held, k)
		case <-ctx.Done():
			l.unref(k)
			releaseHeld()
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		}
	}

	var once sync.Once
	return func() { once.Do(releaseHeld) }, nil
}

func (l *LocalLocker) ref(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *LocalLocker) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl := l.locks[key]
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

func (l *LocalLocker) unlock(key string) {
	l.mu.Lock()
	kl := l.locks[key]
	l.mu.Unlock()
	<-kl.ch
	l.unref(key)
}
