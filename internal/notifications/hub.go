package notifications

import "sync"

const defaultSubscriberBuffer = 16

// Hub fans job events out to per-job subscribers. Publishing never blocks:
// a subscriber that cannot keep up has events dropped rather than stalling
// the publisher. Once a terminal event is published the job's stream closes
// and later subscribers receive an already-closed channel.
type Hub struct {
	mu     sync.Mutex
	buffer int
	topics map[string]*topic
	done   map[string]struct{}
	onDrop func()
}

// OnDrop registers a callback invoked whenever a subscriber's buffer is full
// and an event is discarded. Call before publishing begins.
func (h *Hub) OnDrop(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onDrop = fn
}

type topic struct {
	seq  int64
	subs map[chan Event]struct{}
}

// NewHub creates a hub whose subscriber channels buffer up to size events.
func NewHub(size int) *Hub {
	if size <= 0 {
		size = defaultSubscriberBuffer
	}
	return &Hub{
		buffer: size,
		topics: make(map[string]*topic),
		done:   make(map[string]struct{}),
	}
}

// Subscriber receives one job's events in publish order.
type Subscriber struct {
	hub   *Hub
	jobID string
	ch    chan Event
}

// Events returns the subscriber's receive channel. The channel is closed
// after the job's terminal event has been delivered or dropped.
func (s *Subscriber) Events() <-chan Event {
	return s.ch
}

// Close detaches the subscriber from the hub. Safe to call more than once;
// the hub closes the channel on the first detach.
func (s *Subscriber) Close() {
	s.hub.unsubscribe(s.jobID, s.ch)
}

// Subscribe registers a listener for the given job. If the job has already
// reached a terminal state the returned subscriber's channel is closed.
func (h *Hub) Subscribe(jobID string) *Subscriber {
	ch := make(chan Event, h.buffer)
	sub := &Subscriber{hub: h, jobID: jobID, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, finished := h.done[jobID]; finished {
		close(ch)
		return sub
	}
	tp, ok := h.topics[jobID]
	if !ok {
		tp = &topic{subs: make(map[chan Event]struct{})}
		h.topics[jobID] = tp
	}
	tp.subs[ch] = struct{}{}
	return sub
}

// Publish assigns the next sequence number for the job and delivers the event
// to every subscriber with buffer room. A terminal event closes the stream.
func (h *Hub) Publish(jobID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, finished := h.done[jobID]; finished {
		return
	}
	tp, ok := h.topics[jobID]
	if !ok {
		tp = &topic{subs: make(map[chan Event]struct{})}
		h.topics[jobID] = tp
	}

	tp.seq++
	ev.Sequence = tp.seq
	ev.JobID = jobID

	for ch := range tp.subs {
		select {
		case ch <- ev:
		default:
			if h.onDrop != nil {
				h.onDrop()
			}
		}
	}

	if ev.Type.Terminal() {
		for ch := range tp.subs {
			close(ch)
		}
		delete(h.topics, jobID)
		h.done[jobID] = struct{}{}
	}
}

// Forget drops the terminal marker for a job, typically after it is deleted.
func (h *Hub) Forget(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.done, jobID)
}

func (h *Hub) unsubscribe(jobID string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	tp, ok := h.topics[jobID]
	if !ok {
		return
	}
	if _, present := tp.subs[ch]; !present {
		return
	}
	// The topic outlives its last subscriber so the job's sequence counter
	// survives until the terminal event retires it. A topic nothing was ever
	// published to has no counter worth keeping and is reaped here.
	delete(tp.subs, ch)
	close(ch)
	if len(tp.subs) == 0 && tp.seq == 0 {
		delete(h.topics, jobID)
	}
}
