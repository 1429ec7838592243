package incidents

import (
	"errors"
	"fmt"
	"time"
)

type Status string

const (
	StatusOpen          Status = "open"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusOpen, StatusInvestigating, StatusResolved:
		return true
	}
	return false
}

// rank orders statuses along the only permitted direction of travel.
func (s Status) rank() int {
	switch s {
	case StatusOpen:
		return 0
	case StatusInvestigating:
		return 1
	case StatusResolved:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether an incident in status s may move to target.
// Staying in place is allowed for every status except resolved, which is terminal.
func (s Status) CanTransitionTo(target Status) bool {
	if !s.IsValid() || !target.IsValid() || s == StatusResolved {
		return false
	}
	return target.rank() >= s.rank()
}

var (
	ErrNotFound        = errors.New("incident not found")
	ErrAlreadyResolved = errors.New("incident already resolved")
	ErrConflict        = errors.New("incident was modified concurrently")
)

// PersistenceError reports a failed read or write of the incident collection.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("incident store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

type AttemptedFix struct {
	Fix       string    `json:"fix"`
	AppliedAt time.Time `json:"applied_at"`
}

type Incident struct {
	ID                  int64          `json:"id"`
	Logs                string         `json:"logs"`
	Metrics             string         `json:"metrics"`
	SuspectedRootCauses []string       `json:"suspected_root_causes"`
	AttemptedFixes      []AttemptedFix `json:"attempted_fixes"`
	Status              Status         `json:"status"`
	ResolutionNotes     string         `json:"resolution_notes"`
	Version             int64          `json:"version"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

// Patch describes a partial update. Zero-valued fields leave the record unchanged.
type Patch struct {
	SuspectedRootCauses []string
	AppendFix           *AttemptedFix
	Status              Status
	ResolutionNotes     *string
	// IfVersion, when non-zero, must equal the stored version or the update fails with ErrConflict.
	IfVersion int64
}

func newIncident(id int64, logs, metrics string, now time.Time) Incident {
	return Incident{
		ID:                  id,
		Logs:                logs,
		Metrics:             metrics,
		SuspectedRootCauses: []string{},
		AttemptedFixes:      []AttemptedFix{},
		Status:              StatusOpen,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// Apply merges p into inc, enforcing the lifecycle invariants. inc is left
// untouched when an error is returned.
func (inc *Incident) Apply(p Patch, now time.Time) error {
	if p.IfVersion != 0 && p.IfVersion != inc.Version {
		return ErrConflict
	}
	if inc.Status == StatusResolved && (p.AppendFix != nil || p.Status != "" || p.ResolutionNotes != nil) {
		return ErrAlreadyResolved
	}
	if p.Status != "" && !inc.Status.CanTransitionTo(p.Status) {
		return fmt.Errorf("cannot transition incident %d from %s to %s", inc.ID, inc.Status, p.Status)
	}
	if p.ResolutionNotes != nil && p.Status != StatusResolved {
		return fmt.Errorf("resolution notes for incident %d require a transition to %s", inc.ID, StatusResolved)
	}

	if p.SuspectedRootCauses != nil {
		inc.SuspectedRootCauses = append([]string{}, p.SuspectedRootCauses...)
	}
	if p.AppendFix != nil {
		inc.AttemptedFixes = append(inc.AttemptedFixes, *p.AppendFix)
	}
	if p.Status != "" {
		inc.Status = p.Status
	}
	if p.ResolutionNotes != nil {
		inc.ResolutionNotes = *p.ResolutionNotes
	}
	inc.Version++
	inc.UpdatedAt = now
	return nil
}

// Clone returns a deep copy so callers never share slices with a store.
func (inc Incident) Clone() Incident {
	out := inc
	out.SuspectedRootCauses = append([]string{}, inc.SuspectedRootCauses...)
	out.AttemptedFixes = append([]AttemptedFix{}, inc.AttemptedFixes...)
	return out
}
