package locks

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/wavesync/internal/resource"
)

var notesT1 = resource.NotesKey("t1")

func TestTable_AcquireRelease(t *testing.T) {
	tbl := NewTable()

	l, ok := tbl.Acquire(notesT1, "c1", "Alice")
	require.True(t, ok)
	assert.Equal(t, "c1", l.Holder)
	assert.Equal(t, "Alice", l.Username)

	cur, ok := tbl.Acquire(notesT1, "c2", "Bob")
	require.False(t, ok)
	assert.Equal(t, "c1", cur.Holder, "denied acquire reports the current holder")

	require.True(t, tbl.Release(notesT1, "c1"))
	_, held := tbl.Info(notesT1)
	assert.False(t, held)

	_, ok = tbl.Acquire(notesT1, "c2", "Bob")
	assert.True(t, ok, "released key can be re-acquired")
}

func TestTable_AcquireByHolderDoesNotRefresh(t *testing.T) {
	tbl := NewTable()
	first, ok := tbl.Acquire(notesT1, "c1", "Alice")
	require.True(t, ok)

	cur, ok := tbl.Acquire(notesT1, "c1", "Alice")
	assert.False(t, ok)
	assert.Equal(t, first, cur)
}

func TestTable_ReleaseIsHolderOnly(t *testing.T) {
	tbl := NewTable()
	_, _ = tbl.Acquire(notesT1, "c1", "Alice")

	assert.False(t, tbl.Release(notesT1, "c2"))
	l, held := tbl.Info(notesT1)
	require.True(t, held)
	assert.Equal(t, "c1", l.Holder)

	assert.False(t, tbl.Release(resource.NotesKey("other"), "c1"), "free key")
}

func TestTable_ForceRelease(t *testing.T) {
	tbl := NewTable()
	_, _ = tbl.Acquire(notesT1, "c1", "Alice")

	l, ok := tbl.ForceRelease(notesT1)
	require.True(t, ok)
	assert.Equal(t, "c1", l.Holder)

	_, ok = tbl.ForceRelease(notesT1)
	assert.False(t, ok)
}

func TestTable_ReleaseAllHeldBy(t *testing.T) {
	tbl := NewTable()
	keys := []resource.Key{
		resource.NotesKey("t1"),
		resource.NotesKey(""),
		{Kind: resource.KindPlaybook, Name: "deploy.md"},
	}
	for _, k := range keys {
		_, ok := tbl.Acquire(k, "c1", "Alice")
		require.True(t, ok)
	}
	other := resource.NotesKey("t2")
	_, _ = tbl.Acquire(other, "c2", "Bob")

	released := tbl.ReleaseAllHeldBy("c1")
	require.Len(t, released, len(keys))
	for _, k := range keys {
		_, held := tbl.Info(k)
		assert.False(t, held, "%s should be free", k)
	}
	_, held := tbl.Info(other)
	assert.True(t, held, "locks of other holders survive")

	assert.Empty(t, tbl.ReleaseAllHeldBy("c1"))
}

func TestTable_MutualExclusion(t *testing.T) {
	const n = 64
	for round := 0; round < 20; round++ {
		tbl := NewTable()
		start := make(chan struct{})
		var wins atomic.Int32
		winner := make(chan string, n)

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				<-start
				if _, ok := tbl.Acquire(notesT1, id, id); ok {
					wins.Add(1)
					winner <- id
				}
			}(fmt.Sprintf("c%d", i))
		}
		close(start)
		wg.Wait()

		require.EqualValues(t, 1, wins.Load())
		l, held := tbl.Info(notesT1)
		require.True(t, held)
		assert.Equal(t, <-winner, l.Holder)
	}
}

func TestTable_TouchAndExpire(t *testing.T) {
	tbl := NewTable()
	now := time.Unix(1_700_000_000, 0)
	tbl.now = func() time.Time { return now }

	_, _ = tbl.Acquire(notesT1, "c1", "Alice")
	stale := resource.NotesKey("t2")
	_, _ = tbl.Acquire(stale, "c2", "Bob")

	now = now.Add(8 * time.Minute)
	_, ok := tbl.Touch(notesT1, "c1")
	require.True(t, ok)
	_, ok = tbl.Touch(stale, "c1")
	assert.False(t, ok, "only the holder can touch")

	now = now.Add(4 * time.Minute)
	expired := tbl.ExpireOlderThan(10 * time.Minute)
	require.Len(t, expired, 1)
	assert.Equal(t, stale, expired[0].Key)

	_, held := tbl.Info(notesT1)
	assert.True(t, held)
	assert.Nil(t, tbl.ExpireOlderThan(0), "zero ttl disables expiry")
}

func TestTable_AllSorted(t *testing.T) {
	tbl := NewTable()
	_, _ = tbl.Acquire(resource.NotesKey("t2"), "c1", "Alice")
	_, _ = tbl.Acquire(resource.NotesKey(""), "c1", "Alice")

	all := tbl.All()
	require.Len(t, all, 2)
	assert.Equal(t, "notes:global", all[0].Key.String())
	assert.Equal(t, "notes:t2", all[1].Key.String())
	assert.Equal(t, 2, tbl.Len())
}
