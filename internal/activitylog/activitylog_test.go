package activitylog

import (
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendOrderAndTail(t *testing.T) {
	a := New(100)
	for i := 0; i < 10; i++ {
		a.Append("svc", slog.LevelInfo, fmt.Sprintf("event %d", i))
	}
	all := a.Snapshot()
	require.Len(t, all, 10)
	for i := 1; i < len(all); i++ {
		assert.Greater(t, all[i].Seq, all[i-1].Seq)
		assert.False(t, all[i].Time.Before(all[i-1].Time), "timestamps must be non-decreasing")
	}

	tail := a.Tail(3)
	require.Len(t, tail, 3)
	assert.Equal(t, "event 7", tail[0].Message)
	assert.Equal(t, "event 9", tail[2].Message)

	assert.Len(t, a.Tail(0), 10)
	assert.Len(t, a.Tail(50), 10)
}

func TestCapDiscardsOldestFirst(t *testing.T) {
	a := New(5)
	for i := 0; i < 12; i++ {
		a.Append("", slog.LevelInfo, fmt.Sprintf("e%d", i))
	}
	got := a.Snapshot()
	require.Len(t, got, 5)
	assert.Equal(t, "e7", got[0].Message)
	assert.Equal(t, "e11", got[4].Message)
}

func TestConcurrentWritersKeepTotalOrder(t *testing.T) {
	a := New(10000)
	const writers = 8
	const perWriter = 200
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				a.Append(fmt.Sprintf("w%d", w), slog.LevelInfo, fmt.Sprintf("msg %d", i))
			}
		}(w)
	}
	wg.Wait()

	got := a.Snapshot()
	require.Len(t, got, writers*perWriter)
	seen := make(map[uint64]bool, len(got))
	for i, e := range got {
		assert.False(t, seen[e.Seq], "sequence numbers must be unique")
		seen[e.Seq] = true
		if i > 0 {
			assert.Greater(t, e.Seq, got[i-1].Seq)
			assert.False(t, e.Time.Before(got[i-1].Time))
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	a := New(10)
	a.Info("svc", "one")
	snap := a.Snapshot()
	snap[0].Message = "mutated"
	assert.Equal(t, "one", a.Snapshot()[0].Message)
}
