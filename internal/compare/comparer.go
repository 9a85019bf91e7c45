package compare

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"snapdiff/internal/report"
	"snapdiff/internal/tree"
)

type ChangeType int

const (
	Added ChangeType = iota
	Changed
	Removed
)

func (c ChangeType) String() string {
	switch c {
	case Added:
		return "A"
	case Changed:
		return "C"
	default:
		return "R"
	}
}

// Record is one difference between two trees.
type Record struct {
	Type ChangeType
	// Dir is the tree path of the directory holding the entry, e.g. "./dir".
	Dir    string
	Name   string
	IsFile bool
}

func (r Record) String() string {
	return fmt.Sprintf("%s: %s%s%s", r.Type, r.Dir, tree.Separator, r.Name)
}

// RelPath returns the entry's path relative to the tree root, in slash form.
func (r Record) RelPath() string {
	return path.Join(r.Dir, r.Name)
}

// Under returns the entry's location below the host directory root.
func (r Record) Under(root string) string {
	return filepath.Join(root, filepath.FromSlash(r.RelPath()))
}

// KindMismatch describes a name that is a file on one side and a directory
// on the other.
type KindMismatch struct {
	Path   string
	Base   tree.Kind
	Target tree.Kind
}

func (m KindMismatch) Error() string {
	return fmt.Sprintf("%s changed from %v to %v", m.Path, m.Base, m.Target)
}

// Differ computes ordered differences between two trees.
type Differ struct {
	Reporter report.Reporter
}

// Compare returns the records turning base into target. A nil side is
// treated as an empty root. The order is a depth-first, per-directory
// sorted merge and is deterministic for a given pair of trees.
func Compare(base, target *tree.Directory) []Record {
	return (&Differ{}).Compare(base, target)
}

// Equal reports whether Compare(base, target) would be empty.
func Equal(base, target *tree.Directory) bool {
	return len(Compare(base, target)) == 0
}

func (d *Differ) Compare(base, target *tree.Directory) []Record {
	r := report.OrNop(d.Reporter)

	if base == nil {
		base = tree.NewDirectory("", tree.RootName)
	}
	if target == nil {
		target = tree.NewDirectory("", tree.RootName)
	}

	m := &merger{reporter: r}
	m.directories(target.FullPath(), base, target)

	return m.records
}

type merger struct {
	reporter report.Reporter
	records  []Record
}

func (m *merger) emit(t ChangeType, dir string, e tree.Entry) {
	m.records = append(m.records, Record{
		Type:   t,
		Dir:    dir,
		Name:   e.Name(),
		IsFile: e.Kind() == tree.KindFile,
	})
}

// subtree emits t for e and, when e is a directory, for all of its
// descendants in pre-order.
func (m *merger) subtree(t ChangeType, dir string, e tree.Entry) {
	m.emit(t, dir, e)

	sub, ok := e.(*tree.Directory)
	if !ok {
		return
	}

	full := joinDir(dir, sub.Name())
	for _, child := range sub.Children() {
		m.subtree(t, full, child)
	}
}

// directories merges the children of base and target, both sorted by name.
// dir is the tree path both directories share.
func (m *merger) directories(dir string, base, target *tree.Directory) {
	m.reporter.Debugf("checking for: %s", dir)

	a, b := base.Children(), target.Children()
	i, j := 0, 0

	for i < len(a) && j < len(b) {
		switch c := strings.Compare(a[i].Name(), b[j].Name()); {
		case c < 0:
			m.subtree(Removed, dir, a[i])
			i++

		case c > 0:
			m.subtree(Added, dir, b[j])
			j++

		default:
			m.entries(dir, a[i], b[j])
			i++
			j++
		}
	}

	for ; i < len(a); i++ {
		m.subtree(Removed, dir, a[i])
	}
	for ; j < len(b); j++ {
		m.subtree(Added, dir, b[j])
	}
}

func (m *merger) entries(dir string, a, b tree.Entry) {
	if a.Kind() != b.Kind() {
		mismatch := KindMismatch{Path: joinDir(dir, a.Name()), Base: a.Kind(), Target: b.Kind()}
		m.reporter.Warnf("%v, replacing it", mismatch)

		m.subtree(Removed, dir, a)
		m.subtree(Added, dir, b)
		return
	}

	switch a := a.(type) {
	case *tree.File:
		if fileChanged(a, b.(*tree.File)) {
			m.emit(Changed, dir, b)
		}
	case *tree.Directory:
		m.directories(joinDir(dir, a.Name()), a, b.(*tree.Directory))
	}
}

// fileChanged compares fingerprints when both sides have one, and falls back
// to the target being newer than the base otherwise.
func fileChanged(base, target *tree.File) bool {
	bd, bok := base.Digest()
	td, tok := target.Digest()

	if bok && tok {
		return bd != td
	}

	return target.ModTime() > base.ModTime()
}

func joinDir(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + tree.Separator + name
}
