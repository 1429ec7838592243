package incidents

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triagecore/internal/db"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestClock() *stepClock {
	return &stepClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
}

func newFileStore(t *testing.T) Store {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "incidents.json")).WithClock(newTestClock().Now)
}

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	ctx := context.Background()
	conn, err := db.Open(ctx, db.SQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(ctx, conn, db.SQLite))
	s := NewSQLStore(conn, db.SQLite).WithClock(newTestClock().Now)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var backends = map[string]func(t *testing.T) Store{
	"file":   newFileStore,
	"sqlite": newSQLiteStore,
}

func TestStoreEmpty(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			all, err := s.LoadAll(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, all)
			assert.Empty(t, all)

			_, err = s.Get(context.Background(), 1)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreCreateAssignsSequentialIDs(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			first, err := s.Create(ctx, "OOMKilled", "mem=99%", nil)
			require.NoError(t, err)
			second, err := s.Create(ctx, "connection refused", "", nil)
			require.NoError(t, err)

			assert.Equal(t, int64(1), first.ID)
			assert.Equal(t, int64(2), second.ID)
			assert.Equal(t, StatusOpen, first.Status)
			assert.Empty(t, first.SuspectedRootCauses)
			assert.Empty(t, first.AttemptedFixes)
			assert.Empty(t, first.ResolutionNotes)
			assert.Equal(t, first.CreatedAt, first.UpdatedAt)

			got, err := s.Get(ctx, first.ID)
			require.NoError(t, err)
			if diff := cmp.Diff(*first, *got); diff != "" {
				t.Fatalf("stored incident mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStoreCreateWithCauses(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			causes := []string{"Memory limit exceeded", "Memory leak in application"}

			inc, err := s.Create(ctx, "OOMKilled", "", causes)
			require.NoError(t, err)
			assert.Equal(t, causes, inc.SuspectedRootCauses)
			assert.Equal(t, int64(1), inc.Version)

			causes[0] = "mutated"
			got, err := s.Get(ctx, inc.ID)
			require.NoError(t, err)
			assert.Equal(t, []string{"Memory limit exceeded", "Memory leak in application"}, got.SuspectedRootCauses)
		})
	}
}

func TestStoreIDsNotReusedAfterDelete(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			for i := 0; i < 3; i++ {
				_, err := s.Create(ctx, "logs", "", nil)
				require.NoError(t, err)
			}
			require.NoError(t, s.Delete(ctx, 3))
			require.NoError(t, s.Delete(ctx, 3), "deleting an absent id is a no-op")
			require.NoError(t, s.Delete(ctx, 42))

			next, err := s.Create(ctx, "logs", "", nil)
			require.NoError(t, err)
			assert.Equal(t, int64(4), next.ID)

			all, err := s.LoadAll(ctx)
			require.NoError(t, err)
			ids := []int64{}
			for _, inc := range all {
				ids = append(ids, inc.ID)
			}
			assert.Equal(t, []int64{1, 2, 4}, ids)
		})
	}
}

func TestStoreUpdate(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			inc, err := s.Create(ctx, "OOMKilled", "", nil)
			require.NoError(t, err)

			fix := AttemptedFix{Fix: "increase memory", AppliedAt: time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC)}
			updated, err := s.Update(ctx, inc.ID, Patch{
				SuspectedRootCauses: []string{"Memory limit exceeded"},
				AppendFix:           &fix,
				Status:              StatusInvestigating,
				IfVersion:           inc.Version,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(2), updated.Version)
			assert.True(t, updated.UpdatedAt.After(inc.UpdatedAt))

			got, err := s.Get(ctx, inc.ID)
			require.NoError(t, err)
			assert.Equal(t, []string{"Memory limit exceeded"}, got.SuspectedRootCauses)
			assert.Equal(t, StatusInvestigating, got.Status)
			require.Len(t, got.AttemptedFixes, 1)
			assert.Equal(t, "increase memory", got.AttemptedFixes[0].Fix)
			assert.True(t, fix.AppliedAt.Equal(got.AttemptedFixes[0].AppliedAt))

			_, err = s.Update(ctx, inc.ID, Patch{Status: StatusResolved, IfVersion: inc.Version})
			assert.ErrorIs(t, err, ErrConflict)

			_, err = s.Update(ctx, 99, Patch{Status: StatusResolved})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreResolvedIsTerminal(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			inc, err := s.Create(ctx, "logs", "", nil)
			require.NoError(t, err)
			notes := "bumped limit"
			_, err = s.Update(ctx, inc.ID, Patch{Status: StatusResolved, ResolutionNotes: &notes})
			require.NoError(t, err)

			_, err = s.Update(ctx, inc.ID, Patch{AppendFix: &AttemptedFix{Fix: "late"}})
			assert.ErrorIs(t, err, ErrAlreadyResolved)
			_, err = s.Update(ctx, inc.ID, Patch{Status: StatusOpen})
			assert.ErrorIs(t, err, ErrAlreadyResolved)

			got, err := s.Get(ctx, inc.ID)
			require.NoError(t, err)
			assert.Equal(t, StatusResolved, got.Status)
			assert.Equal(t, notes, got.ResolutionNotes)
			assert.Empty(t, got.AttemptedFixes)
		})
	}
}

func TestStoreSaveAllReplacesCollection(t *testing.T) {
	for name, newStore := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)
			for i := 0; i < 2; i++ {
				_, err := s.Create(ctx, "old", "", nil)
				require.NoError(t, err)
			}
			ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			replacement := []Incident{
				{ID: 5, Logs: "kept", Status: StatusResolved, ResolutionNotes: "done",
					SuspectedRootCauses: []string{"x"}, AttemptedFixes: []AttemptedFix{}, Version: 3,
					CreatedAt: ts, UpdatedAt: ts},
			}
			require.NoError(t, s.SaveAll(ctx, replacement))

			all, err := s.LoadAll(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)
			if diff := cmp.Diff(replacement[0], all[0]); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}

			next, err := s.Create(ctx, "new", "", nil)
			require.NoError(t, err)
			assert.Greater(t, next.ID, int64(5))
		})
	}
}

func TestFileStoreAcceptsBareArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incidents.json")
	legacy := `[
  {"id": 1, "logs": "OOMKilled", "metrics": "", "suspected_root_causes": ["Memory limit exceeded"],
   "attempted_fixes": [], "status": "resolved", "resolution_notes": "bumped limit",
   "created_at": "2024-05-01T10:00:00Z", "updated_at": "2024-05-01T10:05:00Z"},
  {"id": 2, "logs": "timeout", "status": "open",
   "created_at": "2024-05-02T10:00:00Z", "updated_at": "2024-05-02T10:00:00Z"}
]`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	s := NewFileStore(path)
	all, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, StatusResolved, all[0].Status)
	assert.Equal(t, int64(1), all[1].Version)
	assert.NotNil(t, all[1].AttemptedFixes)

	inc, err := s.Create(context.Background(), "new", "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), inc.ID)
}

func TestFileStoreCorruptFileIsPersistenceError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "incidents.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path).LoadAll(context.Background())
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "decode", pe.Op)
}

func TestFileStoreFailedWriteKeepsPriorState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "incidents.json")
	s := NewFileStore(path)
	_, err := s.Create(context.Background(), "first", "", nil)
	require.NoError(t, err)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	// A directory where the temp file would go makes the write fail.
	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })
	if f, err := os.CreateTemp(dir, "probe"); err == nil {
		f.Close()
		os.Remove(f.Name())
		t.Skip("directory permissions not enforced (running as root)")
	}

	_, err = s.Create(context.Background(), "second", "", nil)
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFileStoreConcurrentCreates(t *testing.T) {
	s := newFileStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Create(context.Background(), "logs", "", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	all, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	seen := map[int64]bool{}
	for _, inc := range all {
		assert.False(t, seen[inc.ID], "duplicate id %d", inc.ID)
		seen[inc.ID] = true
	}
	assert.Len(t, all, 20)
}
