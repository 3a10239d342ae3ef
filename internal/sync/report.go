package sync

import (
	"fmt"
	"time"
)

// Phase is a step of a pass.
type Phase string

const (
	PhasePull Phase = "pull"
	PhasePush Phase = "push"
)

// Kind is the record type an Outcome refers to.
type Kind string

const (
	KindCollection Kind = "collection"
	KindPin        Kind = "pin"
)

// Outcome is the result of handling one record.
type Outcome struct {
	Phase  Phase
	Kind   Kind
	ID     string
	Reason string // set for skipped records
	Err    error  // set for failed records
}

func (o Outcome) String() string {
	switch {
	case o.Err != nil:
		return fmt.Sprintf("%s %s %s: %v", o.Phase, o.Kind, o.ID, o.Err)
	case o.Reason != "":
		return fmt.Sprintf("%s %s %s: %s", o.Phase, o.Kind, o.ID, o.Reason)
	default:
		return fmt.Sprintf("%s %s %s", o.Phase, o.Kind, o.ID)
	}
}

// Report describes one pass.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time

	Pulled  []Outcome
	Pushed  []Outcome
	Skipped []Outcome
	Failed  []Outcome

	// PhaseErrors holds errors that aborted the rest of a phase.
	PhaseErrors []error
}

// Duration is how long the pass took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// OK reports whether the pass finished without any failure.
func (r *Report) OK() bool {
	return len(r.Failed) == 0 && len(r.PhaseErrors) == 0
}

// Count returns the number of outcomes matching phase and kind in list.
func Count(list []Outcome, phase Phase, kind Kind) int {
	n := 0
	for _, o := range list {
		if o.Phase == phase && o.Kind == kind {
			n++
		}
	}
	return n
}

func (r *Report) String() string {
	return fmt.Sprintf("pulled %d, pushed %d, skipped %d, failed %d",
		len(r.Pulled), len(r.Pushed), len(r.Skipped), len(r.Failed)+len(r.PhaseErrors))
}

func (r *Report) errors() []error {
	errs := append([]error(nil), r.PhaseErrors...)
	for _, o := range r.Failed {
		errs = append(errs, fmt.Errorf("%s %s %s: %w", o.Phase, o.Kind, o.ID, o.Err))
	}
	return errs
}
