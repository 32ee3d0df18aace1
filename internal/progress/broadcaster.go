// Package progress is a per-task pub/sub channel with history replay. The
// pipeline publishes stage events; observers subscribe at any time and first
// receive every event already recorded for the task, in original order, then
// live events. Delivery never blocks a publisher: a subscriber that cannot
// keep up is dropped alone.
package progress

import (
	"log/slog"
	"sync"

	"github.com/nicheradar/nicheradar/internal/metrics"
)

// liveBuffer is the per-subscriber headroom beyond the replayed history.
const liveBuffer = 64

// Event is one progress update for a task.
type Event struct {
	TaskID   string         `json:"task_id"`
	Step     string         `json:"step"`
	Status   string         `json:"status"`
	Progress int            `json:"progress"`
	Details  map[string]any `json:"details"`
}

// Subscriber receives the event stream for one task.
type Subscriber struct {
	// C delivers replayed history followed by live events. Closed on
	// unsubscribe, task close, or overflow drop.
	C <-chan Event

	taskID string
	ch     chan Event
}

// Broadcaster owns per-task history and subscriber lists. All mutation is
// serialized, which keeps publish-then-replay ordering exact: a subscriber
// sees each event exactly once, either from replay or live.
type Broadcaster struct {
	mu      sync.Mutex
	history map[string][]Event
	subs    map[string]map[*Subscriber]struct{}
	logger  *slog.Logger
}

func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		history: make(map[string][]Event),
		subs:    make(map[string]map[*Subscriber]struct{}),
		logger:  logger,
	}
}

// Subscribe registers an observer for a task and replays all recorded events
// before any live delivery. The replay fits entirely in the channel buffer,
// so it cannot block.
func (b *Broadcaster) Subscribe(taskID string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	history := b.history[taskID]
	sub := &Subscriber{
		taskID: taskID,
		ch:     make(chan Event, len(history)+liveBuffer),
	}
	sub.C = sub.ch

	for _, ev := range history {
		sub.ch <- ev
	}

	if b.subs[taskID] == nil {
		b.subs[taskID] = make(map[*Subscriber]struct{})
	}
	b.subs[taskID][sub] = struct{}{}

	b.logger.Debug("subscriber attached", "task_id", taskID, "replayed", len(history))
	return sub
}

// Publish appends the event to the task history and fans it out to every
// current subscriber. A subscriber whose buffer is full is removed; others
// are unaffected.
func (b *Broadcaster) Publish(taskID string, ev Event) {
	ev.TaskID = taskID

	b.mu.Lock()
	defer b.mu.Unlock()

	b.history[taskID] = append(b.history[taskID], ev)
	metrics.ProgressEventsTotal.Inc()

	for sub := range b.subs[taskID] {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("dropping stalled subscriber", "task_id", taskID)
			b.removeLocked(taskID, sub)
		}
	}
}

// Unsubscribe detaches one observer and closes its stream. Safe to call for
// a subscriber already dropped.
func (b *Broadcaster) Unsubscribe(taskID string, sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(taskID, sub)
}

// Close detaches all subscribers for a task and prunes its history. Intended
// for after job completion; correctness only requires history to outlive the
// task.
func (b *Broadcaster) Close(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subs[taskID] {
		b.removeLocked(taskID, sub)
	}
	delete(b.subs, taskID)
	delete(b.history, taskID)
}

// History returns a copy of the recorded events for a task.
func (b *Broadcaster) History(taskID string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	history := b.history[taskID]
	out := make([]Event, len(history))
	copy(out, history)
	return out
}

func (b *Broadcaster) removeLocked(taskID string, sub *Subscriber) {
	set, ok := b.subs[taskID]
	if !ok {
		return
	}
	if _, present := set[sub]; !present {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(b.subs, taskID)
	}
}
