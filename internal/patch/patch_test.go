package patch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapdiff/internal/compare"
	"snapdiff/internal/report"
	"snapdiff/internal/walker"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for name, content := range files {
		fullPath := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(fullPath), 0755))
		require.NoError(t, os.WriteFile(fullPath, []byte(content), 0644))
	}
}

func scan(t *testing.T, dir string) *walker.Result {
	t.Helper()

	result, err := (&walker.Scanner{Workers: 2}).Scan(context.Background(), dir)
	require.NoError(t, err)
	return result
}

func TestApply_AddedAndChanged(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	writeFiles(t, src, map[string]string{
		"a.txt":           "new content",
		"dir/nested/b.md": "bee",
	})
	mtime := time.Unix(1_650_000_000, 0)
	require.NoError(t, os.Chtimes(filepath.Join(src, "a.txt"), mtime, mtime))
	require.NoError(t, os.MkdirAll(filepath.Join(src, "emptydir"), 0755))

	records := []compare.Record{
		{Type: compare.Changed, Dir: ".", Name: "a.txt", IsFile: true},
		{Type: compare.Added, Dir: ".", Name: "dir"},
		{Type: compare.Added, Dir: "./dir", Name: "nested"},
		{Type: compare.Added, Dir: "./dir/nested", Name: "b.md", IsFile: true},
		{Type: compare.Added, Dir: ".", Name: "emptydir"},
	}

	stats, err := (&Materializer{}).Apply(records, src, out)
	require.NoError(t, err)
	assert.Equal(t, Stats{Files: 2, Directories: 3}, stats)

	got, err := os.ReadFile(filepath.Join(out, "dir", "nested", "b.md"))
	require.NoError(t, err)
	assert.Equal(t, "bee", string(got))

	info, err := os.Stat(filepath.Join(out, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, mtime.Unix(), info.ModTime().Unix())

	info, err = os.Stat(filepath.Join(out, "emptydir"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestApply_RemoveOnlyLeavesOutputUntouched(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	writeFiles(t, out, map[string]string{"keep.txt": "still here"})

	records := []compare.Record{
		{Type: compare.Removed, Dir: ".", Name: "keep.txt", IsFile: true},
		{Type: compare.Removed, Dir: ".", Name: "gone", IsFile: false},
	}

	stats, err := (&Materializer{}).Apply(records, src, out)
	require.NoError(t, err)
	assert.Equal(t, Stats{Skipped: 2}, stats)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keep.txt", entries[0].Name())

	got, err := os.ReadFile(filepath.Join(out, "keep.txt"))
	require.NoError(t, err)
	assert.Equal(t, "still here", string(got))
}

func TestApply_MissingSourceIsCollected(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	writeFiles(t, src, map[string]string{"ok.txt": "ok"})

	records := []compare.Record{
		{Type: compare.Added, Dir: ".", Name: "vanished.txt", IsFile: true},
		{Type: compare.Added, Dir: ".", Name: "ok.txt", IsFile: true},
	}

	stats, err := (&Materializer{Reporter: report.Nop()}).Apply(records, src, out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to stat source")
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Files)
	assert.FileExists(t, filepath.Join(out, "ok.txt"))
}

func TestApply_RescanMatchesTarget(t *testing.T) {
	base := t.TempDir()
	target := t.TempDir()

	writeFiles(t, base, map[string]string{
		"same.txt":      "same",
		"edit.txt":      "before",
		"dir/old.txt":   "old",
		"only-base.txt": "removed later",
	})
	writeFiles(t, target, map[string]string{
		"same.txt":          "same",
		"edit.txt":          "after",
		"dir/old.txt":       "old",
		"dir/new/fresh.txt": "fresh",
		"added.txt":         "added",
	})

	records := compare.Compare(scan(t, base).Root, scan(t, target).Root)
	require.NotEmpty(t, records)

	// materialize onto the base itself, as a patch would be applied
	_, err := (&Materializer{}).Apply(records, target, base)
	require.NoError(t, err)

	after := compare.Compare(scan(t, base).Root, scan(t, target).Root)

	// removals are never applied, so only they may remain
	for _, r := range after {
		assert.Equal(t, compare.Removed, r.Type, "unexpected %v", r)
	}
	assert.Equal(t, []string{"R: ./only-base.txt"}, strs(after))
}

func strs(records []compare.Record) []string {
	var out []string
	for _, r := range records {
		out = append(out, r.String())
	}
	return out
}

func TestPrepareOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "patch")

	existed, err := PrepareOutput(dir, nil)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.DirExists(t, dir)

	existed, err = PrepareOutput(dir, nil)
	require.NoError(t, err)
	assert.True(t, existed)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = PrepareOutput(file, nil)
	assert.Error(t, err)
}
