package bench

import (
	"time"

	"dutbench/internal/dutstats"
	"dutbench/internal/latency"
	"dutbench/internal/traffic"
)

// RunResult is the outcome of one condition run.
type RunResult struct {
	RunID     string
	Condition traffic.Condition
	State     State
	Failure   FailureKind
	Err       error
	Stats     dutstats.Measurement
	Latency   latency.Measurement
	// LogArchive is the copy of the generator log, when archiving is enabled.
	LogArchive string
	Started    time.Time
	Finished   time.Time
}

// OK reports whether the run completed and its values may be used.
func (r RunResult) OK() bool { return r.State == Complete }

// RunRecord is the serialisable form of a RunResult.
type RunRecord struct {
	SweepID    string               `json:"sweep_id"`
	RunID      string               `json:"run_id"`
	Size       traffic.PacketSize   `json:"size"`
	Condition  string               `json:"condition"`
	Rate       int                  `json:"rate"`
	Respond    bool                 `json:"respond"`
	TargetID   int                  `json:"target_id"`
	State      State                `json:"state"`
	Failure    FailureKind          `json:"failure,omitempty"`
	Error      string               `json:"error,omitempty"`
	DUT        dutstats.Measurement `json:"dut"`
	Latency    latency.Measurement  `json:"latency"`
	LogArchive string               `json:"log_archive,omitempty"`
	Started    time.Time            `json:"started"`
	Finished   time.Time            `json:"finished"`
}

// Record converts r for the run sinks.
func (r RunResult) Record(sweepID string) RunRecord {
	rec := RunRecord{
		SweepID:    sweepID,
		RunID:      r.RunID,
		Size:       r.Condition.Size,
		Condition:  r.Condition.Kind.String(),
		Rate:       r.Condition.Rate,
		Respond:    r.Condition.Respond,
		TargetID:   r.Condition.TargetID,
		State:      r.State,
		Failure:    r.Failure,
		DUT:        r.Stats,
		Latency:    r.Latency,
		LogArchive: r.LogArchive,
		Started:    r.Started,
		Finished:   r.Finished,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

// RowRecord is one finished packet size.
type RowRecord struct {
	SweepID  string             `json:"sweep_id"`
	Size     traffic.PacketSize `json:"size"`
	TargetID int                `json:"target_id"`
	Values   Row                `json:"values"`
	Failures int                `json:"failures"`
	Time     time.Time          `json:"time"`
}

// StateEvent is emitted on every run state transition.
type StateEvent struct {
	RunID     string
	Condition traffic.Condition
	State     State
	Failure   FailureKind
	Time      time.Time
}

// RowWriter receives each row as soon as it is complete.
type RowWriter interface {
	WriteRow(RowRecord) error
}

// RunWriter receives each finished run.
type RunWriter interface {
	WriteRun(RunRecord) error
}

// StateObserver is notified of run state transitions.
type StateObserver interface {
	ObserveState(StateEvent)
}

// Observers fans state events out to every non-nil observer.
type Observers []StateObserver

// ObserveState implements StateObserver.
func (obs Observers) ObserveState(ev StateEvent) {
	for _, o := range obs {
		if o != nil {
			o.ObserveState(ev)
		}
	}
}
