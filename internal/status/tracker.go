package status

import (
	"sync"
	"time"

	"dutbench/internal/bench"
	"dutbench/internal/traffic"
)

// RunStatus is the latest known state of one condition run.
type RunStatus struct {
	RunID     string             `json:"run_id"`
	Size      traffic.PacketSize `json:"size"`
	Condition string             `json:"condition"`
	State     bench.State        `json:"state"`
	Failure   bench.FailureKind  `json:"failure,omitempty"`
	Since     time.Time          `json:"since"`
}

// Snapshot is the progress of the whole sweep.
type Snapshot struct {
	TargetID  int               `json:"target_id"`
	Sizes     []string          `json:"sizes"`
	Current   *RunStatus        `json:"current,omitempty"`
	Runs      []RunStatus       `json:"runs"`
	Rows      []bench.RowRecord `json:"rows"`
	Failures  int               `json:"failures"`
	StartedAt time.Time         `json:"started_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Done      bool              `json:"done"`
}

// Tracker records state events and rows for the status server.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	byID map[string]int
}

// NewTracker returns a Tracker for a sweep over sizes.
func NewTracker(targetID int, sizes []traffic.PacketSize) *Tracker {
	names := make([]string, len(sizes))
	for i, s := range sizes {
		names[i] = string(s)
	}
	now := time.Now()
	return &Tracker{
		snap: Snapshot{TargetID: targetID, Sizes: names, StartedAt: now, UpdatedAt: now},
		byID: map[string]int{},
	}
}

// ObserveState implements bench.StateObserver.
func (t *Tracker) ObserveState(ev bench.StateEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rs := RunStatus{
		RunID:     ev.RunID,
		Size:      ev.Condition.Size,
		Condition: ev.Condition.Kind.String(),
		State:     ev.State,
		Failure:   ev.Failure,
		Since:     ev.Time,
	}
	i, ok := t.byID[ev.RunID]
	if !ok {
		i = len(t.snap.Runs)
		t.byID[ev.RunID] = i
		t.snap.Runs = append(t.snap.Runs, rs)
	} else {
		t.snap.Runs[i] = rs
	}
	if ev.State == bench.Failed {
		t.snap.Failures++
	}
	cur := rs
	t.snap.Current = &cur
	t.snap.UpdatedAt = ev.Time
}

// WriteRow implements bench.RowWriter.
func (t *Tracker) WriteRow(rec bench.RowRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Rows = append(t.snap.Rows, rec)
	t.snap.UpdatedAt = rec.Time
	if len(t.snap.Rows) == len(t.snap.Sizes) {
		t.snap.Done = true
		t.snap.Current = nil
	}
	return nil
}

// Snapshot returns a copy of the current progress.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := t.snap
	s.Sizes = append([]string(nil), t.snap.Sizes...)
	s.Runs = append([]RunStatus(nil), t.snap.Runs...)
	s.Rows = append([]bench.RowRecord(nil), t.snap.Rows...)
	if t.snap.Current != nil {
		cur := *t.snap.Current
		s.Current = &cur
	}
	return s
}
