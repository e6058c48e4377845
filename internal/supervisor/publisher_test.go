package supervisor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncPublisherDeliversInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []StateChange
	p := NewAsyncPublisher(16, func(c StateChange) {
		mu.Lock()
		got = append(got, c)
		mu.Unlock()
	})

	p.OnStateChanged("auth", StateStopped, StateStarting)
	p.OnStateChanged("auth", StateStarting, StateRunning)
	p.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, StateStarting, got[0].Next)
	assert.Equal(t, StateRunning, got[1].Next)
}

func TestAsyncPublisherNeverBlocksProducer(t *testing.T) {
	release := make(chan struct{})
	p := NewAsyncPublisher(2, func(StateChange) {
		<-release
	})

	done := make(chan struct{})
	go func() {
		// Far more notifications than the buffer holds while the consumer
		// is stuck; the producer must still return promptly.
		for i := 0; i < 100; i++ {
			p.OnStateChanged("auth", StateStopped, StateStarting)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked the producer")
	}
	close(release)
	p.Close()
}
