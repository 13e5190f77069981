package bench

import (
	"context"
	"errors"

	"dutbench/internal/dutstats"
	"dutbench/internal/generator"
	"dutbench/internal/remote"
)

// State is the lifecycle position of a single run.
type State int

const (
	Idle State = iota
	Launching
	AwaitingStart
	CollectingRemote
	TearingDown
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Launching:
		return "launching"
	case AwaitingStart:
		return "awaiting_start"
	case CollectingRemote:
		return "collecting_remote"
	case TearingDown:
		return "tearing_down"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	for st := Idle; st <= Failed; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return errors.New("unknown run state " + string(b))
}

// Terminal reports whether no further transition follows.
func (s State) Terminal() bool { return s == Complete || s == Failed }

// FailureKind names why a run failed.
type FailureKind string

const (
	FailureNone           FailureKind = ""
	FailureLaunch         FailureKind = "launch"
	FailureStartupTimeout FailureKind = "startup_timeout"
	FailureConnection     FailureKind = "connection"
	FailureExec           FailureKind = "exec"
	FailureParse          FailureKind = "parse"
	FailureCancelled      FailureKind = "cancelled"
	FailureOther          FailureKind = "error"
)

// Classify maps a run error onto its FailureKind.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FailureCancelled
	case errors.Is(err, generator.ErrStartupTimeout):
		return FailureStartupTimeout
	case errors.Is(err, generator.ErrLaunch):
		return FailureLaunch
	case errors.Is(err, remote.ErrConnection):
		return FailureConnection
	case errors.Is(err, remote.ErrExec):
		return FailureExec
	case errors.Is(err, dutstats.ErrParse):
		return FailureParse
	}
	return FailureOther
}
