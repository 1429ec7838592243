package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"triagecore/internal/db"
)

// Journal records lifecycle events. Implementations must be safe for
// concurrent use.
type Journal interface {
	Record(ctx context.Context, e *Event) error
	List(ctx context.Context, f Filter) ([]Event, error)
}

var (
	_ Journal = (*Store)(nil)
	_ Journal = (*FileJournal)(nil)
	_ Journal = Discard{}
)

// Store is the SQL-backed journal, sharing the incident database.
type Store struct {
	db      *sql.DB
	dialect db.Dialect
}

func NewStore(conn *sql.DB, dialect db.Dialect) *Store {
	return &Store{db: conn, dialect: dialect}
}

func (s *Store) Record(ctx context.Context, e *Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Detail == nil {
		e.Detail = map[string]interface{}{}
	}
	detailJSON, err := json.Marshal(e.Detail)
	if err != nil {
		return err
	}
	q := s.dialect.Rebind(`
		INSERT INTO incident_events (incident_id, kind, detail, ts)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`)
	row := s.db.QueryRowContext(ctx, q, e.IncidentID, e.Kind, string(detailJSON), e.Timestamp)
	return row.Scan(&e.ID)
}

func (s *Store) List(ctx context.Context, f Filter) ([]Event, error) {
	clauses := []string{"1=1"}
	args := []interface{}{}

	if f.IncidentID != 0 {
		clauses = append(clauses, "incident_id = ?")
		args = append(args, f.IncidentID)
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "ts >= ?")
		args = append(args, f.Since)
	}
	args = append(args, f.limit())

	query := s.dialect.Rebind("SELECT id, incident_id, kind, detail, ts FROM incident_events WHERE " +
		strings.Join(clauses, " AND ") + " ORDER BY ts, id LIMIT ?")

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []Event{}
	for rows.Next() {
		var e Event
		var detail []byte
		if err := rows.Scan(&e.ID, &e.IncidentID, &e.Kind, &detail, &e.Timestamp); err != nil {
			return nil, err
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, err
			}
		}
		e.Timestamp = e.Timestamp.UTC()
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Discard drops every event; used when the journal is disabled.
type Discard struct{}

func (Discard) Record(context.Context, *Event) error { return nil }

func (Discard) List(context.Context, Filter) ([]Event, error) { return []Event{}, nil }
