// Package snapshot persists scanned trees as compressed binary records.
package snapshot

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/natefinch/atomic"
	"github.com/pkg/errors"

	"snapdiff/internal/tree"
)

const (
	// SchemaVersion is written into every saved snapshot.
	SchemaVersion uint64 = 1
	// DefaultFile is the output file used by scan when none is given.
	DefaultFile = "out.bin.gz"
)

// ErrCorruptSnapshot is returned by Read when the file cannot be decoded.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// Snapshot is the persisted form of a scan. A nil Root means there is
// nothing to compare against.
type Snapshot struct {
	SourcePath string
	Version    uint64
	// CapturedAt is in seconds since the epoch.
	CapturedAt int64
	Root       *tree.Directory
}

// New captures root, scanned from source, at the current time.
func New(source string, root *tree.Directory) *Snapshot {
	return &Snapshot{
		SourcePath: source,
		Version:    SchemaVersion,
		CapturedAt: time.Now().Unix(),
		Root:       root,
	}
}

// Empty reports whether the snapshot carries no tree.
func (s *Snapshot) Empty() bool {
	return s == nil || s.Root == nil
}

// Encode writes the compressed record to w.
func (s *Snapshot) Encode(w io.Writer) error {
	zw, err := pgzip.NewWriterLevel(w, pgzip.DefaultCompression)
	if err != nil {
		return errors.Wrap(err, "unable to create compressor")
	}

	if _, err := zw.Write(marshal(s)); err != nil {
		return errors.Wrap(err, "compression error")
	}

	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "compression close error")
	}

	return nil
}

// Decode reads a compressed record from r. Paths are reconstructed before
// the snapshot is returned.
func Decode(r io.Reader) (*Snapshot, error) {
	zr, err := pgzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrapf(ErrCorruptSnapshot, "unable to open gzip stream: %v", err)
	}
	defer zr.Close() //nolint:errcheck

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, zr); err != nil {
		return nil, errors.Wrapf(ErrCorruptSnapshot, "decompression error: %v", err)
	}

	s, err := unmarshal(buf.Bytes())
	if err != nil {
		return nil, err
	}

	if s.Root != nil {
		s.Root.ReconstructPaths("")
	}

	return s, nil
}

// Save writes the snapshot to path, replacing any existing file atomically.
func (s *Snapshot) Save(path string) error {
	var buf bytes.Buffer
	if err := s.Encode(&buf); err != nil {
		return err
	}

	if err := atomic.WriteFile(path, &buf); err != nil {
		return errors.Wrapf(err, "unable to write snapshot %s", path)
	}

	return nil
}

// Read loads the snapshot at path. Decoding failures wrap ErrCorruptSnapshot;
// filesystem failures are returned as they are.
func Read(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open snapshot")
	}
	defer f.Close() //nolint:errcheck

	s, err := Decode(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}

	return s, nil
}

// Load is Read for callers that treat any failure as "no previous snapshot".
// It never fails; a missing or corrupt file yields an empty Snapshot.
func Load(path string) *Snapshot {
	s, err := Read(path)
	if err != nil {
		return &Snapshot{}
	}
	return s
}
