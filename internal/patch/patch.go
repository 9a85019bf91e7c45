// Package patch copies the entries named by a diff from a source tree into
// an output directory.
package patch

import (
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"snapdiff/internal/compare"
	"snapdiff/internal/report"
)

// Stats counts what Apply did.
type Stats struct {
	Files       int
	Directories int
	// Skipped counts Removed records, which are never applied.
	Skipped int
	Failed  int
}

// Materializer applies Added and Changed records. It only ever creates or
// overwrites entries below the output root; nothing is deleted.
type Materializer struct {
	Reporter report.Reporter
}

// PrepareOutput creates dir if needed. It reports whether dir already existed.
func PrepareOutput(dir string, r report.Reporter) (bool, error) {
	r = report.OrNop(r)

	switch stat, err := os.Stat(dir); {
	case os.IsNotExist(err):
		r.Infof("creating output directory %s", dir)
		return false, errors.Wrapf(os.MkdirAll(dir, 0755), "unable to create %s", dir)
	case err != nil:
		return false, errors.Wrap(err, "failed to stat path "+dir)
	case stat.IsDir():
		r.Warnf("output directory %s already exists, files may be overwritten", dir)
		return true, nil
	default:
		return false, errors.Errorf("%q already exists and it is not a directory", dir)
	}
}

// Apply materializes records from srcRoot under outRoot. Each record is
// applied independently; failures are collected and returned together.
func (m *Materializer) Apply(records []compare.Record, srcRoot, outRoot string) (Stats, error) {
	r := report.OrNop(m.Reporter)

	var (
		stats Stats
		errs  error
	)

	for _, rec := range records {
		if rec.Type == compare.Removed {
			r.Debugf("not applying %v", rec)
			stats.Skipped++
			continue
		}

		target := rec.Under(outRoot)

		if !rec.IsFile {
			if err := os.MkdirAll(target, 0755); err != nil {
				stats.Failed++
				errs = multierr.Append(errs, errors.Wrapf(err, "unable to create directory %s", target))
				continue
			}
			stats.Directories++
			continue
		}

		if err := copyFile(rec.Under(srcRoot), target); err != nil {
			stats.Failed++
			r.Warnf("unable to copy %s: %v", rec.RelPath(), err)
			errs = multierr.Append(errs, err)
			continue
		}

		r.Debugf("copied %s", rec.RelPath())
		stats.Files++
	}

	return stats, errs
}

// copyFile writes src to dst atomically, creating parent directories, and
// carries over the permission bits and modification time.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return errors.Wrap(err, "unable to stat source")
	}
	if !info.Mode().IsRegular() {
		return errors.Errorf("%s is not a regular file", src)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.Wrap(err, "unable to create parent directory")
	}

	f, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "unable to open source")
	}
	defer f.Close() //nolint:errcheck

	if err := atomic.WriteFile(dst, f); err != nil {
		return errors.Wrap(err, "unable to write "+dst)
	}

	if err := os.Chmod(dst, info.Mode().Perm()); err != nil && !os.IsPermission(err) {
		return errors.Wrap(err, "could not change permissions on "+dst)
	}

	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil && !os.IsPermission(err) {
		return errors.Wrap(err, "could not change mod time on "+dst)
	}

	return nil
}
