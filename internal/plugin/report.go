package plugin

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Report summarizes one discovery run against one root.
type Report struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Root       string    `json:"root"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Loaded     []string  `json:"loaded"`
	Skipped    []string  `json:"skipped"`
	Removed    []string  `json:"removed,omitempty"`
	Failures   []Failure `json:"failures"`
}

func newReport(kind Kind, root string) *Report {
	return &Report{
		ID:        uuid.New().String(),
		Kind:      kind,
		Root:      root,
		StartedAt: time.Now().UTC(),
		Loaded:    []string{},
		Skipped:   []string{},
		Failures:  []Failure{},
	}
}

// Err joins every failure, or returns nil when the run was clean.
func (r *Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Duration returns how long the run took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
