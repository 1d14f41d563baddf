package mqtt

import (
	"log/slog"
	"sync"

	"github.com/sweeney/uselessbox/internal/logic"
)

// Pump hands box events from the control tasks to a Publisher on its own
// goroutine, so a slow broker never delays actuation. When the queue is full
// new events are dropped.
type Pump struct {
	pub Publisher
	log *slog.Logger
	ch  chan logic.Event

	mu      sync.Mutex
	closed  bool
	dropped int
	done    chan struct{}
}

// NewPump starts a pump with a queue of size events.
func NewPump(pub Publisher, size int, log *slog.Logger) *Pump {
	if log == nil {
		log = slog.Default()
	}
	p := &Pump{
		pub:  pub,
		log:  log,
		ch:   make(chan logic.Event, size),
		done: make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Pump) run() {
	defer close(p.done)
	for e := range p.ch {
		if err := p.pub.Publish(e); err != nil {
			p.log.Warn("mqtt publish failed", "event", string(e.Type), "err", err)
		}
	}
}

// Send queues an event without blocking. It reports whether the event was
// queued.
func (p *Pump) Send(e logic.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.ch <- e:
		return true
	default:
		p.dropped++
		p.log.Warn("event queue full, dropping", "event", string(e.Type), "dropped", p.dropped)
		return false
	}
}

// Dropped returns how many events were dropped because the queue was full.
func (p *Pump) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close stops accepting events and waits until the queued ones are published.
func (p *Pump) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()
	<-p.done
}
