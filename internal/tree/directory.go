package tree

import (
	"slices"
	"strings"
)

// Directory holds its children strictly sorted by name. Names are unique
// within a directory whatever their kind, as on a real filesystem.
type Directory struct {
	name     string
	path     string
	children []Entry
}

// NewDirectory creates an empty directory. The root of a tree is
// NewDirectory("", RootName).
func NewDirectory(path, name string) *Directory {
	return &Directory{name: name, path: path}
}

func (d *Directory) Name() string     { return d.name }
func (d *Directory) Kind() Kind       { return KindDirectory }
func (d *Directory) Path() string     { return d.path }
func (d *Directory) FullPath() string { return joinPath(d.path, d.name) }
func (d *Directory) setPath(p string) { d.path = p }

// Children returns the sorted children. The slice must not be modified.
func (d *Directory) Children() []Entry { return d.children }

func (d *Directory) Len() int { return len(d.children) }

func compareName(e Entry, name string) int {
	return strings.Compare(e.Name(), name)
}

func (d *Directory) search(name string) (int, bool) {
	return slices.BinarySearchFunc(d.children, name, compareName)
}

// Insert places e in sorted position. It returns false, leaving the
// directory unchanged, when an entry with the same name already exists.
func (d *Directory) Insert(e Entry) bool {
	i, found := d.search(e.Name())
	if found {
		return false
	}
	d.children = slices.Insert(d.children, i, e)
	return true
}

func (d *Directory) Contains(name string) bool {
	_, found := d.search(name)
	return found
}

// Lookup returns the child with the given name.
func (d *Directory) Lookup(name string) (Entry, bool) {
	i, found := d.search(name)
	if !found {
		return nil, false
	}
	return d.children[i], true
}

// Remove deletes and returns the child with the given name.
func (d *Directory) Remove(name string) (Entry, bool) {
	i, found := d.search(name)
	if !found {
		return nil, false
	}
	e := d.children[i]
	d.children = slices.Delete(d.children, i, i+1)
	return e, true
}

// ReconstructPaths sets the path of d to parentPath and recomputes the path
// of every descendant. Paths are not persisted, so this must run once after
// a tree is decoded.
func (d *Directory) ReconstructPaths(parentPath string) {
	d.path = parentPath
	full := d.FullPath()

	for _, child := range d.children {
		if sub, ok := child.(*Directory); ok {
			sub.ReconstructPaths(full)
			continue
		}
		child.setPath(full)
	}
}

// Walk calls fn for every descendant of d in pre-order, children in sorted
// order. Walking stops at the first error.
func (d *Directory) Walk(fn func(Entry) error) error {
	for _, child := range d.children {
		if err := fn(child); err != nil {
			return err
		}
		if sub, ok := child.(*Directory); ok {
			if err := sub.Walk(fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// CountFiles returns the number of files below d.
func (d *Directory) CountFiles() int {
	n := 0
	_ = d.Walk(func(e Entry) error {
		if e.Kind() == KindFile {
			n++
		}
		return nil
	})
	return n
}

// Info is a flat, comparable description of one entry.
type Info struct {
	Path    string
	Name    string
	Kind    Kind
	ModTime int64
	Digest  string
}

// Describe flattens the tree below d into pre-order Info records.
func Describe(d *Directory) []Info {
	var out []Info
	_ = d.Walk(func(e Entry) error {
		info := Info{Path: e.Path(), Name: e.Name(), Kind: e.Kind()}
		if f, ok := e.(*File); ok {
			info.ModTime = f.ModTime()
			if digest, ok := f.Digest(); ok {
				info.Digest = digest.String()
			}
		}
		out = append(out, info)
		return nil
	})
	return out
}
