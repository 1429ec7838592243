package events

import "time"

type Kind string

const (
	KindCreated    Kind = "created"
	KindDiagnosed  Kind = "diagnosed"
	KindFixApplied Kind = "fix_applied"
	KindEvaluated  Kind = "evaluated"
	KindResolved   Kind = "resolved"
	KindDeleted    Kind = "deleted"
)

// Event is one entry in an incident's timeline.
type Event struct {
	ID         int64                  `json:"id"`
	IncidentID int64                  `json:"incident_id"`
	Kind       Kind                   `json:"kind"`
	Detail     map[string]interface{} `json:"detail,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

type Filter struct {
	IncidentID int64
	Kind       Kind
	Since      time.Time
	Limit      int
}

func (f Filter) matches(e Event) bool {
	if f.IncidentID != 0 && e.IncidentID != f.IncidentID {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

func (f Filter) limit() int {
	if f.Limit <= 0 || f.Limit > 1000 {
		return 200
	}
	return f.Limit
}
