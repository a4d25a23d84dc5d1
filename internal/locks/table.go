package locks

import (
	"sort"
	"sync"
	"time"

	"github.com/DoyleJ11/wavesync/internal/resource"
)

// Lock is a snapshot of one held resource.
type Lock struct {
	Key        resource.Key
	Holder     string
	Username   string
	AcquiredAt time.Time
	// RefreshedAt starts at AcquiredAt and moves forward on Touch. Staleness
	// is measured from it.
	RefreshedAt time.Time
}

// Table holds at most one Lock per resource.Key. Every method takes the table
// mutex once, so check-and-set in Acquire is a single atomic step.
type Table struct {
	mu    sync.Mutex
	locks map[resource.Key]*Lock
	now   func() time.Time
}

func NewTable() *Table {
	return &Table{
		locks: make(map[resource.Key]*Lock),
		now:   time.Now,
	}
}

// Acquire installs a lock for key held by holder if the key is free. When the
// key is already held it returns the current lock and false, leaving it as is.
func (t *Table) Acquire(key resource.Key, holder, username string) (Lock, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.locks[key]; ok {
		return *cur, false
	}
	now := t.now()
	l := &Lock{Key: key, Holder: holder, Username: username, AcquiredAt: now, RefreshedAt: now}
	t.locks[key] = l
	return *l, true
}

// Touch refreshes the staleness clock of key if holder holds it.
func (t *Table) Touch(key resource.Key, holder string) (Lock, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.locks[key]
	if !ok || cur.Holder != holder {
		return Lock{}, false
	}
	cur.RefreshedAt = t.now()
	return *cur, true
}

// Release frees key only if holder is the current holder.
func (t *Table) Release(key resource.Key, holder string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.locks[key]
	if !ok || cur.Holder != holder {
		return false
	}
	delete(t.locks, key)
	return true
}

// ForceRelease frees key regardless of holder. Used for cleanup paths.
func (t *Table) ForceRelease(key resource.Key) (Lock, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.locks[key]
	if !ok {
		return Lock{}, false
	}
	delete(t.locks, key)
	return *cur, true
}

// ReleaseAllHeldBy frees every lock held by holder and returns them.
func (t *Table) ReleaseAllHeldBy(holder string) []Lock {
	t.mu.Lock()
	var out []Lock
	for k, l := range t.locks {
		if l.Holder == holder {
			out = append(out, *l)
			delete(t.locks, k)
		}
	}
	t.mu.Unlock()

	sortLocks(out)
	return out
}

// ExpireOlderThan frees every lock not refreshed within maxAge.
func (t *Table) ExpireOlderThan(maxAge time.Duration) []Lock {
	if maxAge <= 0 {
		return nil
	}

	t.mu.Lock()
	cutoff := t.now().Add(-maxAge)
	var out []Lock
	for k, l := range t.locks {
		if l.RefreshedAt.Before(cutoff) {
			out = append(out, *l)
			delete(t.locks, k)
		}
	}
	t.mu.Unlock()

	sortLocks(out)
	return out
}

func (t *Table) Info(key resource.Key) (Lock, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.locks[key]
	if !ok {
		return Lock{}, false
	}
	return *cur, true
}

// All returns every held lock ordered by resource id.
func (t *Table) All() []Lock {
	t.mu.Lock()
	out := make([]Lock, 0, len(t.locks))
	for _, l := range t.locks {
		out = append(out, *l)
	}
	t.mu.Unlock()

	sortLocks(out)
	return out
}

func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}

func sortLocks(ls []Lock) {
	sort.Slice(ls, func(i, j int) bool { return ls[i].Key.String() < ls[j].Key.String() })
}
