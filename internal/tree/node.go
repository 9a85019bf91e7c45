package tree

import (
	"sync/atomic"

	"snapdiff/internal/hash"
)

// Separator joins path components inside a tree. Paths are kept in slash
// form regardless of the host OS.
const Separator = "/"

// RootName is the name given to the root directory of a scan.
const RootName = "."

// Kind tells files and directories apart.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	if k == KindDirectory {
		return "directory"
	}
	return "file"
}

// Entry is either a *File or a *Directory.
type Entry interface {
	Name() string
	Kind() Kind
	// Path is the full path of the containing directory.
	Path() string
	// FullPath is Path joined with Name.
	FullPath() string

	setPath(p string)
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + Separator + name
}

// File is a leaf entry. Its digest is filled in by a hashing job after the
// file has been placed in its parent, so the slot is written atomically.
type File struct {
	name    string
	path    string
	modTime int64
	digest  atomic.Pointer[hash.Digest]
}

// NewFile creates a file entry without a digest. modTime is in seconds since the epoch.
func NewFile(path, name string, modTime int64) *File {
	return &File{name: name, path: path, modTime: modTime}
}

func (f *File) Name() string     { return f.name }
func (f *File) Kind() Kind       { return KindFile }
func (f *File) Path() string     { return f.path }
func (f *File) FullPath() string { return joinPath(f.path, f.name) }
func (f *File) setPath(p string) { f.path = p }

// ModTime returns the modification time in seconds since the epoch.
func (f *File) ModTime() int64 { return f.modTime }

// Digest returns the content fingerprint, if hashing has completed.
func (f *File) Digest() (hash.Digest, bool) {
	d := f.digest.Load()
	if d == nil {
		return hash.Digest{}, false
	}
	return *d, true
}

// SetDigest stores the content fingerprint.
func (f *File) SetDigest(d hash.Digest) {
	f.digest.Store(&d)
}

func (f *File) HasDigest() bool {
	return f.digest.Load() != nil
}
