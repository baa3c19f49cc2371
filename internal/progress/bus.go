package progress

import (
	"context"
	"sync"
	"time"

	"clipnote/internal/jobs"
)

// Event is one progress update published for a job. Events are immutable and
// delivered at least once; consumers resynchronize from the job snapshot and
// treat stage plus overall percentage as the merge key.
type Event struct {
	Sequence  uint64     `json:"seq"`
	Timestamp time.Time  `json:"ts"`
	JobID     int64      `json:"job_id"`
	Stage     jobs.Stage `json:"stage"`
	Percent   float64    `json:"percent"`
	Message   string     `json:"message,omitempty"`
	ErrorKind string     `json:"error_kind,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Terminal reports whether the event marks the end of a job's stream.
func (e Event) Terminal() bool {
	return e.Stage.IsTerminal()
}

type jobStream struct {
	events []Event
}

// Bus stores recent progress events per job and wakes long-poll waiters when
// new events arrive. Publish never blocks on consumers: each job keeps a
// bounded ring buffer and slow subscriber channels drop events.
type Bus struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	nextSeq  uint64
	streams  map[int64]*jobStream
	subs     map[int64][]chan Event
}

// NewBus constructs a bus keeping up to capacity events per job.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 256
	}
	b := &Bus{
		capacity: capacity,
		streams:  make(map[int64]*jobStream),
		subs:     make(map[int64][]chan Event),
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Publish appends an event to the job's stream and notifies subscribers.
// It assigns the sequence number and timestamp.
func (b *Bus) Publish(evt Event) Event {
	if b == nil {
		return evt
	}
	b.mu.Lock()
	b.nextSeq++
	evt.Sequence = b.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	stream := b.streams[evt.JobID]
	if stream == nil {
		stream = &jobStream{}
		b.streams[evt.JobID] = stream
	}
	if len(stream.events) == b.capacity {
		copy(stream.events, stream.events[1:])
		stream.events = stream.events[:b.capacity-1]
	}
	stream.events = append(stream.events, evt)

	// Sends stay under the lock so a concurrent Subscribe cancel cannot
	// close a channel between snapshot and send. They never block: a full
	// subscriber drops the event rather than stall the pipeline.
	for _, ch := range b.subs[evt.JobID] {
		select {
		case ch <- evt:
		default:
		}
	}
	b.cond.Broadcast()
	b.mu.Unlock()
	return evt
}

// Since returns buffered events for a job with sequence greater than seq.
func (b *Bus) Since(jobID int64, seq uint64) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sinceLocked(jobID, seq, 0)
}

// Fetch returns events for a job with sequence greater than since. When wait
// is true and no events are buffered, Fetch blocks until an event arrives or
// the context ends.
func (b *Bus) Fetch(ctx context.Context, jobID int64, since uint64, limit int, wait bool) ([]Event, error) {
	if b == nil {
		return nil, nil
	}

	cancelWait := make(chan struct{})
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				b.cond.Broadcast()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	b.mu.Lock()
	defer b.mu.Unlock()

	for {
		events := b.sinceLocked(jobID, since, limit)
		if len(events) > 0 || !wait {
			return events, contextError(ctx)
		}
		if err := contextError(ctx); err != nil {
			return nil, err
		}
		b.cond.Wait()
		if err := contextError(ctx); err != nil {
			return nil, err
		}
	}
}

// Subscribe registers a channel receiving future events for a job. The
// returned cancel function removes the subscription and closes the channel.
func (b *Bus) Subscribe(jobID int64, buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.subs[jobID] = append(b.subs[jobID], ch)
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			subscribers := b.subs[jobID]
			for i, existing := range subscribers {
				if existing == ch {
					b.subs[jobID] = append(subscribers[:i], subscribers[i+1:]...)
					break
				}
			}
			if len(b.subs[jobID]) == 0 {
				delete(b.subs, jobID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Drop discards the buffered stream for a job, used after job removal.
func (b *Bus) Drop(jobID int64) {
	b.mu.Lock()
	delete(b.streams, jobID)
	b.mu.Unlock()
}

func (b *Bus) sinceLocked(jobID int64, seq uint64, limit int) []Event {
	stream := b.streams[jobID]
	if stream == nil {
		return nil
	}
	var out []Event
	for _, evt := range stream.events {
		if evt.Sequence > seq {
			out = append(out, evt)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
