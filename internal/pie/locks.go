package pie

import "sync"

// Locks serializes settlement against slice insertion per pie.
// Slice insertions share the read side, so concurrent slices for the same
// pie never block each other; a settlement pass takes the write side.
// An entry lives only while someone holds or waits on it.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*pieLock
}

type pieLock struct {
	sync.RWMutex
	refs int
}

func NewLocks() *Locks {
	return &Locks{locks: make(map[string]*pieLock)}
}

func (l *Locks) acquire(pieID string) *pieLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[pieID]
	if !ok {
		m = &pieLock{}
		l.locks[pieID] = m
	}
	m.refs++
	return m
}

func (l *Locks) release(pieID string, m *pieLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m.refs--
	if m.refs == 0 {
		delete(l.locks, pieID)
	}
}

func (l *Locks) RLock(pieID string) (unlock func()) {
	m := l.acquire(pieID)
	m.RLock()
	return func() {
		m.RUnlock()
		l.release(pieID, m)
	}
}

func (l *Locks) Lock(pieID string) (unlock func()) {
	m := l.acquire(pieID)
	m.Lock()
	return func() {
		m.Unlock()
		l.release(pieID, m)
	}
}

// size reports how many pies currently have a live entry.
func (l *Locks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
