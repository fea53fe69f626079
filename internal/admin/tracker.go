package admin

import "sync"

// DefaultTrackerCapacity bounds how many request ids a StageTracker remembers.
const DefaultTrackerCapacity = 10000

// StageTracker remembers the most advanced stage written for each request in
// this process. It guards against an extraction write reverting a settlement.
// Oldest entries are evicted once capacity is reached.
type StageTracker struct {
	mu       sync.Mutex
	capacity int
	stages   map[string]Stage
	order    []string
}

// NewStageTracker creates a tracker holding at most capacity request ids.
func NewStageTracker(capacity int) *StageTracker {
	if capacity <= 0 {
		capacity = DefaultTrackerCapacity
	}
	return &StageTracker{
		capacity: capacity,
		stages:   make(map[string]Stage),
	}
}

// Behind reports whether requestID already reached a later stage than stage.
func (t *StageTracker) Behind(requestID string, stage Stage) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.stages[requestID]
	return ok && stage < last
}

// Record notes that stage was written for requestID. Stages never move backwards.
func (t *StageTracker) Record(requestID string, stage Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.stages[requestID]
	if ok {
		if stage > last {
			t.stages[requestID] = stage
		}
		return
	}

	if len(t.order) >= t.capacity {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.stages, oldest)
	}
	t.stages[requestID] = stage
	t.order = append(t.order, requestID)
}

// Len returns how many request ids are tracked.
func (t *StageTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.stages)
}
