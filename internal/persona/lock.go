package persona

import (
	"context"
	"sync"
)

// Locker keeps at most one build in flight per user. TryLock never blocks:
// ok=false means another build holds the user.
type Locker interface {
	TryLock(ctx context.Context, userID uint64) (unlock func(), ok bool, err error)
}

// LocalLocker guards builds inside one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[uint64]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[uint64]struct{})}
}

func (l *LocalLocker) TryLock(ctx context.Context, userID uint64) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[userID]; busy {
		return nil, false, nil
	}
	l.held[userID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, userID)
			l.mu.Unlock()
		})
	}, true, nil
}
