package incidents

import (
	"context"
	"time"
)

// Store owns the persisted incident collection. All other components read and
// write incidents only through it.
type Store interface {
	// LoadAll returns every incident in a stable order, or an empty slice if
	// nothing has been persisted yet.
	LoadAll(ctx context.Context) ([]Incident, error)
	// SaveAll atomically replaces the whole collection.
	SaveAll(ctx context.Context, incs []Incident) error
	Get(ctx context.Context, id int64) (*Incident, error)
	// Create persists a new open incident with its initial root causes in one write.
	Create(ctx context.Context, logs, metrics string, causes []string) (*Incident, error)
	Update(ctx context.Context, id int64, p Patch) (*Incident, error)
	// Delete removes the record. Deleting an unknown id is a no-op.
	Delete(ctx context.Context, id int64) error
	Close() error
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*SQLStore)(nil)
)

// Clock returns the current time. Stores record timestamps in UTC.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// Resolved filters incs down to resolved incidents, preserving order.
func Resolved(incs []Incident) []Incident {
	out := make([]Incident, 0, len(incs))
	for _, inc := range incs {
		if inc.Status == StatusResolved {
			out = append(out, inc)
		}
	}
	return out
}
