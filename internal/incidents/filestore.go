package incidents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// collectionFile is the on-disk layout of the file backend.
type collectionFile struct {
	LastID    int64      `json:"last_id"`
	Incidents []Incident `json:"incidents"`
}

// FileStore keeps the whole collection in one JSON document and rewrites it
// atomically on every mutation. The mutex serializes writers within the process.
type FileStore struct {
	path string
	now  Clock
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: systemClock}
}

// WithClock replaces the time source; used by tests.
func (s *FileStore) WithClock(c Clock) *FileStore {
	s.now = c
	return s
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) LoadAll(ctx context.Context) ([]Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cf, err := s.read()
	if err != nil {
		return nil, err
	}
	return cf.Incidents, nil
}

func (s *FileStore) SaveAll(ctx context.Context, incs []Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.read()
	if err != nil {
		return err
	}
	next := collectionFile{LastID: cur.LastID, Incidents: make([]Incident, len(incs))}
	for i, inc := range incs {
		next.Incidents[i] = inc.Clone()
		if inc.ID > next.LastID {
			next.LastID = inc.ID
		}
	}
	return s.write(next)
}

func (s *FileStore) Get(ctx context.Context, id int64) (*Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cf, err := s.read()
	if err != nil {
		return nil, err
	}
	for _, inc := range cf.Incidents {
		if inc.ID == id {
			return &inc, nil
		}
	}
	return nil, ErrNotFound
}

func (s *FileStore) Create(ctx context.Context, logs, metrics string, causes []string) (*Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cf, err := s.read()
	if err != nil {
		return nil, err
	}
	cf.LastID++
	inc := newIncident(cf.LastID, logs, metrics, s.now())
	inc.SuspectedRootCauses = append(inc.SuspectedRootCauses, causes...)
	cf.Incidents = append(cf.Incidents, inc)
	if err := s.write(cf); err != nil {
		return nil, err
	}
	return &inc, nil
}

func (s *FileStore) Update(ctx context.Context, id int64, p Patch) (*Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cf, err := s.read()
	if err != nil {
		return nil, err
	}
	for i := range cf.Incidents {
		if cf.Incidents[i].ID != id {
			continue
		}
		updated := cf.Incidents[i].Clone()
		if err := updated.Apply(p, s.now()); err != nil {
			return nil, err
		}
		cf.Incidents[i] = updated
		if err := s.write(cf); err != nil {
			return nil, err
		}
		out := updated.Clone()
		return &out, nil
	}
	return nil, ErrNotFound
}

func (s *FileStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cf, err := s.read()
	if err != nil {
		return err
	}
	kept := cf.Incidents[:0]
	for _, inc := range cf.Incidents {
		if inc.ID != id {
			kept = append(kept, inc)
		}
	}
	if len(kept) == len(cf.Incidents) {
		return nil
	}
	cf.Incidents = kept
	return s.write(cf)
}

func (s *FileStore) Close() error { return nil }

// read loads the collection. A missing file is an empty collection. Files
// holding a bare JSON array are accepted and their high-water mark derived.
func (s *FileStore) read() (collectionFile, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return collectionFile{Incidents: []Incident{}}, nil
	}
	if err != nil {
		return collectionFile{}, persistErr("read", err)
	}
	var cf collectionFile
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0:
	case trimmed[0] == '[':
		err = json.Unmarshal(trimmed, &cf.Incidents)
	default:
		err = json.Unmarshal(trimmed, &cf)
	}
	if err != nil {
		return collectionFile{}, persistErr("decode", err)
	}
	if cf.Incidents == nil {
		cf.Incidents = []Incident{}
	}
	for i := range cf.Incidents {
		normalize(&cf.Incidents[i])
		if cf.Incidents[i].ID > cf.LastID {
			cf.LastID = cf.Incidents[i].ID
		}
	}
	return cf, nil
}

// write replaces the collection file via a temp file in the same directory,
// so readers see either the old or the new document.
func (s *FileStore) write(cf collectionFile) error {
	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return persistErr("encode", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return persistErr("write", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return persistErr("write", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return persistErr("write", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return persistErr("sync", err)
	}
	if err := tmp.Close(); err != nil {
		return persistErr("write", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return persistErr("rename", fmt.Errorf("replace %s: %w", s.path, err))
	}
	committed = true
	return nil
}

// normalize fills fields absent from older documents.
func normalize(inc *Incident) {
	if inc.SuspectedRootCauses == nil {
		inc.SuspectedRootCauses = []string{}
	}
	if inc.AttemptedFixes == nil {
		inc.AttemptedFixes = []AttemptedFix{}
	}
	if inc.Status == "" {
		inc.Status = StatusOpen
	}
	if inc.Version == 0 {
		inc.Version = 1
	}
}
