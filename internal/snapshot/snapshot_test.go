package snapshot

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapdiff/internal/hash"
	"snapdiff/internal/tree"
)

func sampleTree(t *testing.T) *tree.Directory {
	t.Helper()

	root := tree.NewDirectory("", tree.RootName)

	a := tree.NewFile(".", "a.txt", 1_600_000_000)
	d, err := hash.HashReader(strings.NewReader("alpha"))
	require.NoError(t, err)
	a.SetDigest(d)
	root.Insert(a)

	dir := tree.NewDirectory(".", "dir")
	root.Insert(dir)

	sub := tree.NewDirectory("./dir", "sub")
	dir.Insert(sub)
	sub.Insert(tree.NewFile("./dir/sub", "unhashed.bin", -5))

	b := tree.NewFile("./dir", "b.txt", 42)
	d, err = hash.HashReader(strings.NewReader("bravo"))
	require.NoError(t, err)
	b.SetDigest(d)
	dir.Insert(b)

	root.Insert(tree.NewDirectory(".", "empty"))

	return root
}

func TestSaveRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)

	root := sampleTree(t)
	s := New("/data/src", root)
	require.NoError(t, s.Save(path))

	got, err := Read(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/src", got.SourcePath)
	assert.Equal(t, SchemaVersion, got.Version)
	assert.Equal(t, s.CapturedAt, got.CapturedAt)
	require.NotNil(t, got.Root)

	if diff := cmp.Diff(tree.Describe(root), tree.Describe(got.Root)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	b, ok := got.Root.Lookup("dir")
	require.True(t, ok)
	assert.Equal(t, "./dir", b.FullPath())
}

func TestSaveRead_NilRoot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin.gz")

	require.NoError(t, New("src", nil).Save(path))

	got, err := Read(path)
	require.NoError(t, err)
	assert.True(t, got.Empty())
	assert.Equal(t, "src", got.SourcePath)
}

func TestSave_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.bin.gz")

	require.NoError(t, New("first", nil).Save(path))
	require.NoError(t, New("second", sampleTree(t)).Save(path))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "second", got.SourcePath)
	assert.False(t, got.Empty())
}

func TestRead_Missing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.bin.gz"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrCorruptSnapshot))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestRead_NotGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.bin.gz")
	require.NoError(t, os.WriteFile(path, []byte("this is not a snapshot"), 0644))

	_, err := Read(path)
	assert.True(t, errors.Is(err, ErrCorruptSnapshot), "got %v", err)
}

func TestRead_Truncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New("src", sampleTree(t)).Encode(&buf))

	path := filepath.Join(t.TempDir(), "short.bin.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes()[:buf.Len()/2], 0644))

	_, err := Read(path)
	assert.True(t, errors.Is(err, ErrCorruptSnapshot), "got %v", err)
}

func TestUnmarshal_Corruption(t *testing.T) {
	good := marshal(New("src", sampleTree(t)))

	flipped := append([]byte(nil), good...)
	flipped[len(magic)+2] ^= 0xff

	badMagic := append([]byte("XXXX"), good[len(magic):]...)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", good[:5]},
		{"flipped byte", flipped},
		{"bad magic", badMagic},
		{"truncated", good[:len(good)-10]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := unmarshal(tt.data)
			assert.True(t, errors.Is(err, ErrCorruptSnapshot), "got %v", err)
		})
	}
}

func TestUnmarshal_ValidChecksumBadBody(t *testing.T) {
	// a well-formed trailer over a record with an unknown entry tag
	body := append([]byte(nil), magic...)
	body = appendString(body, "src")
	body = append(body, make([]byte, 16)...)
	body = append(body, 1)
	body = appendString(body, tree.RootName)
	body = append(body, 1, 7)

	data := sealed(body)

	_, err := unmarshal(data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptSnapshot))
	assert.Contains(t, err.Error(), "bad entry tag 7")
}

func sealed(body []byte) []byte {
	sum, _ := hash.XXHashFunc(body)
	return append(body, sum...)
}

func TestLoad_NeverFails(t *testing.T) {
	dir := t.TempDir()

	missing := Load(filepath.Join(dir, "missing.bin.gz"))
	require.NotNil(t, missing)
	assert.Nil(t, missing.Root)
	assert.Equal(t, uint64(0), missing.Version)

	corrupt := filepath.Join(dir, "corrupt.bin.gz")
	require.NoError(t, os.WriteFile(corrupt, []byte{0x1f, 0x8b, 0, 0}, 0644))
	assert.True(t, Load(corrupt).Empty())

	good := filepath.Join(dir, "good.bin.gz")
	require.NoError(t, New("src", sampleTree(t)).Save(good))
	assert.False(t, Load(good).Empty())
}

func TestSummary(t *testing.T) {
	empty, err := Summary(nil)
	require.NoError(t, err)
	emptyDir, err := Summary(tree.NewDirectory("", tree.RootName))
	require.NoError(t, err)
	assert.Equal(t, empty, emptyDir)

	a, err := Summary(sampleTree(t))
	require.NoError(t, err)
	b, err := Summary(sampleTree(t))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.NotEqual(t, empty, a)

	changed := sampleTree(t)
	f, ok := changed.Lookup("a.txt")
	require.True(t, ok)
	d, err := hash.HashReader(strings.NewReader("other"))
	require.NoError(t, err)
	f.(*tree.File).SetDigest(d)

	c, err := Summary(changed)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestSummary_SingleFile(t *testing.T) {
	root := tree.NewDirectory("", tree.RootName)
	root.Insert(tree.NewFile(".", "only", 7))

	s, err := Summary(root)
	require.NoError(t, err)
	assert.Len(t, s, 16)
}
