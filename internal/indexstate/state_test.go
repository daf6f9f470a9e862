package indexstate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0644))
	}
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestPathFor(t *testing.T) {
	assert.Equal(t, filepath.Join("/home/me/.sessionsearch", FileName), PathFor("/home/me/.sessionsearch/index"))
	assert.Equal(t, filepath.Join("/home/me/.sessionsearch", FileName), PathFor("/home/me/.sessionsearch/index/"))
	assert.Equal(t, FileName, PathFor("index"))
}

func TestModTime_Unreadable(t *testing.T) {
	mt := ModTime(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Equal(t, int64(0), mt.Unix())
}

func TestNeedsReindex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jsonl")
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	touch(t, path, base)

	st := New()
	assert.True(t, st.NeedsReindex(path), "untracked file must be eligible")

	st.MarkIndexed(path, ModTime(path))
	assert.False(t, st.NeedsReindex(path), "unchanged file must be skipped")

	// Older mtime (e.g. restored from backup) is not newer than the record
	touch(t, path, base.Add(-time.Hour))
	assert.False(t, st.NeedsReindex(path))

	touch(t, path, base.Add(time.Second))
	assert.True(t, st.NeedsReindex(path), "modified file must be eligible")

	st.MarkIndexed(path, ModTime(path))
	assert.False(t, st.NeedsReindex(path))
}

func TestNeedsReindex_SubSecondPrecision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jsonl")
	base := time.Date(2025, 1, 1, 12, 0, 0, 100, time.UTC)
	touch(t, path, base)

	st := New()
	st.MarkIndexed(path, ModTime(path))

	touch(t, path, base.Add(time.Millisecond))
	assert.True(t, st.NeedsReindex(path))
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.jsonl")
	touch(t, file, time.Now().Add(-time.Minute))

	st := New()
	st.MarkIndexed(file, ModTime(file))

	statePath := filepath.Join(dir, "nested", FileName)
	require.NoError(t, st.Save(statePath))

	loaded := Load(statePath)
	assert.Equal(t, 1, loaded.Len())
	assert.False(t, loaded.NeedsReindex(file))
	assert.Equal(t, st.Files[file], loaded.Files[file])

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(statePath))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoad_MissingOrCorrupt(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content *string
	}{
		{"missing", nil},
		{"corrupt", strPtr("{not json")},
		{"wrong version", strPtr(`{"version":99,"files":{"x":{"mtime_ns":1}}}`)},
		{"null files", strPtr(`{"version":1,"files":null}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".json")
			if tt.content != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tt.content), 0644))
			}

			st := Load(path)
			require.NotNil(t, st)
			assert.Equal(t, 0, st.Len())
			assert.True(t, st.NeedsReindex("/anything.jsonl"))

			// An empty state must still be usable
			st.MarkIndexed("/anything.jsonl", ModTime("/anything.jsonl"))
			assert.Equal(t, 1, st.Len())
		})
	}
}

func TestSave_Unwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	err := New().Save(filepath.Join(blocker, FileName))
	assert.Error(t, err)
}

func TestForgetAndPaths(t *testing.T) {
	st := New()
	st.Files["/b.jsonl"] = Entry{ModTimeNs: 1}
	st.Files["/a.jsonl"] = Entry{ModTimeNs: 2}

	assert.Equal(t, []string{"/a.jsonl", "/b.jsonl"}, st.Paths())

	st.Forget("/a.jsonl")
	assert.Equal(t, []string{"/b.jsonl"}, st.Paths())
	assert.True(t, st.NeedsReindex("/a.jsonl"))
}

func strPtr(s string) *string { return &s }

func TestMarkIndexed_WriteAfterSnapshotStaysEligible(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jsonl")
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	touch(t, path, base)

	st := New()
	before := ModTime(path)

	// Appended while the earlier content was being indexed
	touch(t, path, base.Add(time.Second))
	st.MarkIndexed(path, before)

	assert.True(t, st.NeedsReindex(path))
}
