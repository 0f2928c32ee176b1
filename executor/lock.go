package executor

import "sync"

// execLock is the single execution lock of a Runtime. It is owned by a
// Thread rather than a goroutine so ownership can be checked.
type execLock struct {
	mu     sync.Mutex
	cond   sync.Cond
	holder *Thread
}

func newExecLock() *execLock {
	l := &execLock{}
	l.cond.L = &l.mu
	return l
}

// acquire blocks until no thread holds the lock, then hands it to t.
// Wakeup order among waiters is unspecified.
func (l *execLock) acquire(t *Thread) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.holder == t {
		usage("acquire execution lock", t, ErrLockHeld)
	}
	for l.holder != nil {
		l.cond.Wait()
	}
	l.holder = t
}

func (l *execLock) release(t *Thread) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.holder != t {
		usage("release execution lock", t, ErrLockNotHeld)
	}
	l.holder = nil
	l.cond.Signal()
}

func (l *execLock) heldBy(t *Thread) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder == t
}
