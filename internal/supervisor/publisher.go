package supervisor

// Publisher observes committed state transitions. The supervisor invokes
// OnStateChanged synchronously after each transition is committed and before
// the operation returns to its caller, so implementations must not block
// indefinitely; slow consumers should wrap themselves in AsyncPublisher.
type Publisher interface {
	OnStateChanged(service string, prev, next State)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(service string, prev, next State)

func (f PublisherFunc) OnStateChanged(service string, prev, next State) { f(service, prev, next) }

// StateChange is one buffered notification delivered by AsyncPublisher.
type StateChange struct {
	Service string
	Prev    State
	Next    State
}

// AsyncPublisher decouples a slow observer from the supervisor: notifications
// are handed to a buffered channel and delivered by a dedicated goroutine.
// When the buffer is full the oldest pending notification is dropped, trading
// completeness for never stalling a transition.
type AsyncPublisher struct {
	ch   chan StateChange
	done chan struct{}
}

// NewAsyncPublisher starts delivery of buffered notifications to fn.
func NewAsyncPublisher(buffer int, fn func(StateChange)) *AsyncPublisher {
	if buffer <= 0 {
		buffer = 64
	}
	p := &AsyncPublisher{
		ch:   make(chan StateChange, buffer),
		done: make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		for c := range p.ch {
			fn(c)
		}
	}()
	return p
}

func (p *AsyncPublisher) OnStateChanged(service string, prev, next State) {
	c := StateChange{Service: service, Prev: prev, Next: next}
	for {
		select {
		case p.ch <- c:
			return
		default:
		}
		// Buffer full: drop the oldest and retry.
		select {
		case <-p.ch:
		default:
		}
	}
}

// Close stops delivery after draining buffered notifications.
func (p *AsyncPublisher) Close() {
	close(p.ch)
	<-p.done
}
