package events

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileJournal appends events as JSON lines. It pairs with the file incident store.
type FileJournal struct {
	path   string
	mu     sync.Mutex
	lastID int64
	loaded bool
}

func NewFileJournal(path string) *FileJournal {
	return &FileJournal{path: path}
}

func (j *FileJournal) Record(ctx context.Context, e *Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.loaded {
		evts, err := j.readAll()
		if err != nil {
			return err
		}
		for _, ev := range evts {
			if ev.ID > j.lastID {
				j.lastID = ev.ID
			}
		}
		j.loaded = true
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e.ID = j.lastID + 1

	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	j.lastID = e.ID
	return nil
}

func (j *FileJournal) List(ctx context.Context, f Filter) ([]Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	evts, err := j.readAll()
	if err != nil {
		return nil, err
	}
	out := []Event{}
	for _, e := range evts {
		if !f.matches(e) {
			continue
		}
		out = append(out, e)
		if len(out) == f.limit() {
			break
		}
	}
	return out, nil
}

func (j *FileJournal) readAll() ([]Event, error) {
	fh, err := os.Open(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	var out []Event
	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("journal %s line %d: %w", j.path, lineNo, err)
		}
		out = append(out, e)
	}
	return out, sc.Err()
}
