package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/sessionsearch-mcp/internal/storage"
	"github.com/dshills/sessionsearch-mcp/pkg/types"
)

// fakeSource implements Source over an in-memory file list
type fakeSource struct {
	mu       sync.Mutex
	files    []string
	sessions map[string]*types.Session
	errs     map[string]error
	parsed   []string
}

func newFakeSource(files ...string) *fakeSource {
	return &fakeSource{
		files:    files,
		sessions: make(map[string]*types.Session),
		errs:     make(map[string]error),
	}
}

func (f *fakeSource) Discover(roots []string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.files...)
}

func (f *fakeSource) ParseFile(path string) (*types.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parsed = append(f.parsed, path)
	if err, ok := f.errs[path]; ok {
		return nil, err
	}
	if s, ok := f.sessions[path]; ok {
		return s, nil
	}
	return &types.Session{
		Path:     path,
		Messages: []types.Message{{Role: types.RoleUser, Text: "hello from " + path}},
	}, nil
}

// fakeState implements SkipState
type fakeState struct {
	indexed map[string]bool
	marked  map[string]time.Time
}

func newFakeState() *fakeState {
	return &fakeState{indexed: make(map[string]bool), marked: make(map[string]time.Time)}
}

func (s *fakeState) NeedsReindex(path string) bool { return !s.indexed[path] }
func (s *fakeState) MarkIndexed(path string, modTime time.Time) {
	s.indexed[path] = true
	s.marked[path] = modTime
}

// recordingWriter implements storage.Writer and logs every call
type recordingWriter struct {
	log      *[]string
	failOn   string // "delete", "insert" or "commit"
	commits  int
	inserted []string
	closed   bool
}

func (w *recordingWriter) DeleteSession(ctx context.Context, path string) error {
	*w.log = append(*w.log, "delete:"+path)
	if w.failOn == "delete" {
		return errors.New("disk full")
	}
	return nil
}

func (w *recordingWriter) InsertSession(ctx context.Context, s *types.Session) error {
	*w.log = append(*w.log, "insert:"+s.Path)
	if w.failOn == "insert" {
		return errors.New("disk full")
	}
	w.inserted = append(w.inserted, s.Path)
	return nil
}

func (w *recordingWriter) Commit() error {
	*w.log = append(*w.log, "commit")
	if w.failOn == "commit" {
		return errors.New("disk full")
	}
	w.commits++
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

// fakeStore implements storage.Store
type fakeStore struct {
	mu          sync.Mutex
	dir         string
	log         []string
	writer      *recordingWriter
	writerCalls int
	writerErr   error
	reloads     int
}

func newFakeStore(t *testing.T) *fakeStore {
	return &fakeStore{dir: filepath.Join(t.TempDir(), "index")}
}

func (s *fakeStore) Writer(ctx context.Context) (storage.Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writerCalls++
	if s.writerErr != nil {
		return nil, s.writerErr
	}
	s.writer = &recordingWriter{log: &s.log}
	return s.writer, nil
}

func (s *fakeStore) ReloadReaders(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloads++
	return nil
}

func (s *fakeStore) Location() string { return s.dir }

func (s *fakeStore) counts() (writerCalls, reloads int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writerCalls, s.reloads
}

func fakePaths(n int) []string {
	files := make([]string, n)
	for i := range files {
		files[i] = fmt.Sprintf("/sessions/%04d.jsonl", i)
	}
	return files
}

const transcript = `{"type":"user","sessionId":"s1","cwd":"/work/app","timestamp":"2025-01-02T10:00:00Z","message":{"role":"user","content":"why is the linker failing"}}
{"type":"assistant","sessionId":"s1","timestamp":"2025-01-02T10:00:05Z","message":{"role":"assistant","content":[{"type":"text","text":"libfoo is missing"}]}}
`

func createSessionFile(t testing.TB, dir, name, content string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestIndexFiles_BatchBoundaries(t *testing.T) {
	var log []string
	w := &recordingWriter{log: &log}
	files := fakePaths(450)

	var progress []types.Progress
	checkpoints := 0
	stats, err := IndexFiles(context.Background(), w, newFakeSource(files...), newFakeState(), files, Options{
		OnProgress:   func(p types.Progress) { progress = append(progress, p) },
		OnCheckpoint: func() { checkpoints++ },
	})
	require.NoError(t, err)

	// Commits at 200, 400 and the final one
	assert.Equal(t, 3, w.commits)
	assert.Equal(t, 3, stats.Commits)
	assert.Equal(t, 2, checkpoints)

	require.Len(t, progress, 9)
	for i, p := range progress {
		assert.Equal(t, (i+1)*ProgressInterval, p.Indexed)
		assert.Equal(t, 450, p.Total)
	}
	assert.True(t, progress[len(progress)-1].Done())

	assert.Equal(t, 450, stats.Indexed)
	assert.Equal(t, 450, stats.Total)
	assert.Equal(t, 0, stats.Failed)
}

func TestIndexFiles_CallbackOrder(t *testing.T) {
	var log []string
	w := &recordingWriter{log: &log}
	files := fakePaths(200)

	_, err := IndexFiles(context.Background(), w, newFakeSource(files...), newFakeState(), files, Options{
		OnProgress:   func(p types.Progress) { log = append(log, fmt.Sprintf("progress:%d", p.Indexed)) },
		OnCheckpoint: func() { log = append(log, "checkpoint") },
	})
	require.NoError(t, err)

	// The 200th file: progress, then commit, then checkpoint, then the final commit
	tail := log[len(log)-4:]
	assert.Equal(t, []string{"progress:200", "commit", "checkpoint", "commit"}, tail)
}

func TestIndexFiles_ProgressOnLastFile(t *testing.T) {
	tests := []struct {
		name  string
		files int
		want  []int
	}{
		{"fewer than interval", 7, []int{7}},
		{"exact interval", 50, []int{50}},
		{"past interval", 51, []int{50, 51}},
		{"no files", 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var log []string
			w := &recordingWriter{log: &log}
			files := fakePaths(tt.files)

			var got []int
			_, err := IndexFiles(context.Background(), w, newFakeSource(files...), newFakeState(), files, Options{
				OnProgress: func(p types.Progress) { got = append(got, p.Indexed) },
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 1, w.commits, "a single final commit")
		})
	}
}

func TestIndexFiles_FailureIsolation(t *testing.T) {
	var log []string
	w := &recordingWriter{log: &log}
	source := newFakeSource("/s/a.jsonl", "/s/b.jsonl", "/s/c.jsonl")
	source.errs["/s/b.jsonl"] = &types.ParseError{File: "/s/b.jsonl", Line: 3, Message: "malformed record"}
	state := newFakeState()

	stats, err := IndexFiles(context.Background(), w, source, state, source.files, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Indexed)
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, stats.FailedFiles, 1)
	assert.Contains(t, stats.FailedFiles[0], "/s/b.jsonl")

	assert.True(t, state.indexed["/s/a.jsonl"])
	assert.False(t, state.indexed["/s/b.jsonl"], "failed file must be retried next run")
	assert.True(t, state.indexed["/s/c.jsonl"])

	// Old content of the failed file is still deleted
	assert.Contains(t, log, "delete:/s/b.jsonl")
	assert.NotContains(t, log, "insert:/s/b.jsonl")
	assert.Equal(t, []string{"/s/a.jsonl", "/s/c.jsonl"}, w.inserted)
}

func TestIndexFiles_FailedSamplesBounded(t *testing.T) {
	var log []string
	w := &recordingWriter{log: &log}
	files := fakePaths(25)
	source := newFakeSource(files...)
	for _, f := range files {
		source.errs[f] = errors.New("truncated")
	}

	stats, err := IndexFiles(context.Background(), w, source, newFakeState(), files, Options{})
	require.NoError(t, err)
	assert.Equal(t, 25, stats.Failed)
	assert.Equal(t, 0, stats.Indexed)
	assert.Len(t, stats.FailedFiles, MaxFailedSamples)
}

func TestIndexFiles_EmptyDocument(t *testing.T) {
	var log []string
	w := &recordingWriter{log: &log}
	source := newFakeSource("/s/empty.jsonl")
	source.sessions["/s/empty.jsonl"] = &types.Session{Path: "/s/empty.jsonl"}
	state := newFakeState()

	stats, err := IndexFiles(context.Background(), w, source, state, source.files, Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"delete:/s/empty.jsonl", "commit"}, log)
	assert.True(t, state.indexed["/s/empty.jsonl"], "empty file must not be reprocessed")
	assert.Equal(t, 1, stats.Indexed)
	assert.Equal(t, 1, stats.Empty)
}

func TestIndexFiles_WriterErrorsAreFatal(t *testing.T) {
	for _, op := range []string{"delete", "insert", "commit"} {
		t.Run(op, func(t *testing.T) {
			var log []string
			w := &recordingWriter{log: &log, failOn: op}
			source := newFakeSource("/s/a.jsonl", "/s/b.jsonl")

			stats, err := IndexFiles(context.Background(), w, source, newFakeState(), source.files, Options{})
			require.Error(t, err)
			assert.Nil(t, stats)
			assert.Contains(t, err.Error(), "disk full")

			if op != "commit" {
				assert.NotContains(t, source.parsed, "/s/b.jsonl", "run must stop at the first failure")
			}
		})
	}
}

func TestIndexFiles_ContextCancellation(t *testing.T) {
	var log []string
	w := &recordingWriter{log: &log}
	files := fakePaths(10)
	state := newFakeState()
	ctx, cancel := context.WithCancel(context.Background())

	_, err := IndexFiles(ctx, w, newFakeSource(files...), state, files, Options{})
	require.NoError(t, err)
	assert.Len(t, state.indexed, 10)

	cancel()
	state = newFakeState()
	log = nil
	_, err = IndexFiles(ctx, w, newFakeSource(files...), state, files, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, state.indexed)
	assert.NotContains(t, log, "commit", "cancelled run must not commit")
}

func TestDiscoverAndSort(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	oldest := createSessionFile(t, dir, "oldest.jsonl", "", base)
	newest := createSessionFile(t, dir, "newest.jsonl", "", base.Add(2*time.Hour))
	tieB := createSessionFile(t, dir, "tie-b.jsonl", "", base.Add(time.Hour))
	tieA := createSessionFile(t, dir, "tie-a.jsonl", "", base.Add(time.Hour))
	missing := filepath.Join(dir, "vanished.jsonl")

	source := newFakeSource(missing, oldest, tieB, newest, tieA)
	got := DiscoverAndSort(source, []string{dir})

	// Unreadable metadata sorts last but is kept
	assert.Equal(t, []string{newest, tieA, tieB, oldest, missing}, got)
}

func TestPending(t *testing.T) {
	source := newFakeSource("/s/a.jsonl", "/s/b.jsonl", "/s/c.jsonl")
	state := newFakeState()
	state.MarkIndexed("/s/b.jsonl", time.Now())

	assert.ElementsMatch(t, []string{"/s/a.jsonl", "/s/c.jsonl"}, Pending(source, state, nil))
}

func TestIndexLock_ConcurrentAcquisition(t *testing.T) {
	t.Run("TryAcquire fails when lock is held", func(t *testing.T) {
		var lock IndexLock
		require.True(t, lock.TryAcquire())
		assert.False(t, lock.TryAcquire())
		lock.Release()
		assert.True(t, lock.TryAcquire(), "Lock should be available after Release")
		lock.Release()
	})

	t.Run("Concurrent goroutines attempting acquisition", func(t *testing.T) {
		var lock IndexLock
		const numGoroutines = 100

		acquired := make([]bool, numGoroutines)
		var wg sync.WaitGroup
		wg.Add(numGoroutines)
		for i := 0; i < numGoroutines; i++ {
			go func(idx int) {
				defer wg.Done()
				acquired[idx] = lock.TryAcquire()
			}(i)
		}
		wg.Wait()

		successCount := 0
		for _, success := range acquired {
			if success {
				successCount++
			}
		}
		assert.Equal(t, 1, successCount, "Exactly one goroutine should acquire the lock")
		lock.Release()
	})
}

// realStore opens a SQLite index under a temp dir
func realStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "data", "index"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}
