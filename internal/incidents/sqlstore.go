package incidents

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"

	"triagecore/internal/db"
)

// SQLStore keeps one row per incident. Updates run in a transaction guarded by
// the row version, so concurrent writers fail with ErrConflict instead of
// silently overwriting each other.
type SQLStore struct {
	db      *sql.DB
	dialect db.Dialect
	now     Clock
}

func NewSQLStore(conn *sql.DB, dialect db.Dialect) *SQLStore {
	return &SQLStore{db: conn, dialect: dialect, now: systemClock}
}

func (s *SQLStore) WithClock(c Clock) *SQLStore {
	s.now = c
	return s
}

const incidentColumns = `id, logs, metrics, suspected_root_causes, attempted_fixes, status,
	resolution_notes, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLStore) scan(row rowScanner) (Incident, error) {
	var inc Incident
	err := row.Scan(&inc.ID, &inc.Logs, &inc.Metrics,
		s.dialect.StringList(&inc.SuspectedRootCauses),
		(*fixList)(&inc.AttemptedFixes),
		&inc.Status, &inc.ResolutionNotes, &inc.Version, &inc.CreatedAt, &inc.UpdatedAt)
	if err != nil {
		return Incident{}, err
	}
	normalize(&inc)
	inc.CreatedAt = inc.CreatedAt.UTC()
	inc.UpdatedAt = inc.UpdatedAt.UTC()
	return inc, nil
}

func (s *SQLStore) LoadAll(ctx context.Context) ([]Incident, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+incidentColumns+" FROM incidents ORDER BY id")
	if err != nil {
		return nil, persistErr("load", err)
	}
	defer rows.Close()
	res := []Incident{}
	for rows.Next() {
		inc, err := s.scan(rows)
		if err != nil {
			return nil, persistErr("load", err)
		}
		res = append(res, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("load", err)
	}
	return res, nil
}

func (s *SQLStore) SaveAll(ctx context.Context, incs []Incident) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return persistErr("save", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM incidents"); err != nil {
		return persistErr("save", err)
	}
	q := s.dialect.Rebind(`INSERT INTO incidents (` + incidentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, inc := range incs {
		inc = inc.Clone()
		normalize(&inc)
		if _, err := tx.ExecContext(ctx, q, inc.ID, inc.Logs, inc.Metrics,
			s.dialect.StringList(&inc.SuspectedRootCauses), fixList(inc.AttemptedFixes),
			inc.Status, inc.ResolutionNotes, inc.Version, inc.CreatedAt, inc.UpdatedAt); err != nil {
			return persistErr("save", err)
		}
	}
	if s.dialect == db.Postgres {
		// Explicit ids bypass the sequence; move it past the highest id so it is never reissued.
		const bump = `SELECT setval(pg_get_serial_sequence('incidents', 'id'),
			GREATEST((SELECT COALESCE(MAX(id), 0) FROM incidents), (SELECT last_value FROM incidents_id_seq)))`
		if _, err := tx.ExecContext(ctx, bump); err != nil {
			return persistErr("save", err)
		}
	}
	return persistErr("save", tx.Commit())
}

func (s *SQLStore) Get(ctx context.Context, id int64) (*Incident, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind("SELECT "+incidentColumns+" FROM incidents WHERE id = ?"), id)
	inc, err := s.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistErr("get", err)
	}
	return &inc, nil
}

func (s *SQLStore) Create(ctx context.Context, logs, metrics string, causes []string) (*Incident, error) {
	inc := newIncident(0, logs, metrics, s.now())
	inc.SuspectedRootCauses = append(inc.SuspectedRootCauses, causes...)
	q := s.dialect.Rebind(`INSERT INTO incidents
		(logs, metrics, suspected_root_causes, attempted_fixes, status, resolution_notes, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	row := s.db.QueryRowContext(ctx, q, inc.Logs, inc.Metrics,
		s.dialect.StringList(&inc.SuspectedRootCauses), fixList(inc.AttemptedFixes),
		inc.Status, inc.ResolutionNotes, inc.Version, inc.CreatedAt, inc.UpdatedAt)
	if err := row.Scan(&inc.ID); err != nil {
		return nil, persistErr("create", err)
	}
	return &inc, nil
}

func (s *SQLStore) Update(ctx context.Context, id int64, p Patch) (*Incident, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, persistErr("update", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, s.dialect.Rebind("SELECT "+incidentColumns+" FROM incidents WHERE id = ?"), id)
	inc, err := s.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, persistErr("update", err)
	}
	prev := inc.Version
	if err := inc.Apply(p, s.now()); err != nil {
		return nil, err
	}

	q := s.dialect.Rebind(`UPDATE incidents SET suspected_root_causes = ?, attempted_fixes = ?,
		status = ?, resolution_notes = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`)
	res, err := tx.ExecContext(ctx, q, s.dialect.StringList(&inc.SuspectedRootCauses), fixList(inc.AttemptedFixes),
		inc.Status, inc.ResolutionNotes, inc.Version, inc.UpdatedAt, id, prev)
	if err != nil {
		return nil, persistErr("update", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, persistErr("update", err)
	} else if n == 0 {
		return nil, ErrConflict
	}
	if err := tx.Commit(); err != nil {
		return nil, persistErr("update", err)
	}
	return &inc, nil
}

func (s *SQLStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, s.dialect.Rebind("DELETE FROM incidents WHERE id = ?"), id)
	return persistErr("delete", err)
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// fixList stores attempted fixes as a JSON array.
type fixList []AttemptedFix

func (f *fixList) Scan(src interface{}) error {
	return db.ScanJSON(src, (*[]AttemptedFix)(f))
}

func (f fixList) Value() (driver.Value, error) {
	if f == nil {
		f = fixList{}
	}
	data, err := json.Marshal([]AttemptedFix(f))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
