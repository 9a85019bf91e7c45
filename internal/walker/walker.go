package walker

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"snapdiff/internal/report"
	"snapdiff/internal/tree"
)

const defaultProgressInterval = 100 * time.Millisecond

var (
	// ErrInvalidInputPath is returned when the scan root is missing or not a directory.
	ErrInvalidInputPath = errors.New("invalid input path")
	// ErrIncomplete matches any *IncompleteError.
	ErrIncomplete = errors.New("scan incomplete")
)

// IncompleteError reports hashing jobs that were still outstanding when the
// completion barrier gave up.
type IncompleteError struct {
	Scheduled int64
	Completed int64
	Cause     error
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("scan incomplete: %d of %d hashing jobs finished: %v", e.Completed, e.Scheduled, e.Cause)
}

func (e *IncompleteError) Is(target error) bool { return target == ErrIncomplete }

func (e *IncompleteError) Unwrap() error { return e.Cause }

// Scanner builds a tree of a live directory and fingerprints every file.
type Scanner struct {
	// Ignore holds relative directory prefixes that are never descended.
	Ignore []string
	// Workers is the number of concurrent hashing jobs.
	Workers int
	// Listers bounds the number of directories being listed at once.
	Listers int
	// Backlog is the number of hashing jobs queued ahead of the workers.
	Backlog int
	// Timeout bounds the wait for hashing jobs; zero waits forever.
	Timeout time.Duration
	// ProgressInterval is how often Reporter.Progress is called while waiting.
	ProgressInterval time.Duration

	Reporter report.Reporter
}

// Result is a completed scan.
type Result struct {
	Root *tree.Directory

	// Files is the number of files found; Hashed of them have a digest.
	Files  int64
	Hashed int64

	// Skipped aggregates subtrees that could not be listed. They are absent from Root.
	Skipped error
	// HashErrors aggregates files that could not be fingerprinted. They are
	// present in Root without a digest.
	HashErrors error
}

type walk struct {
	reporter report.Reporter
	ignore   []string
	pool     *hashPool
	sem      *semaphore.Weighted
	g        *errgroup.Group

	// guards inserts of finished subdirectories into their parent, and skipped
	mu      sync.Mutex
	skipped error
}

// Scan walks root and returns its tree once every scheduled hashing job has
// finished. Unreadable subdirectories and files are reported in the Result;
// only an unusable root or an incomplete barrier fails the scan.
func (s *Scanner) Scan(ctx context.Context, root string) (*Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidInputPath, "%s: %v", root, err)
	}
	if !info.IsDir() {
		return nil, errors.Wrapf(ErrInvalidInputPath, "%s is not a directory", root)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := s.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}
	listers := s.Listers
	if listers <= 0 {
		listers = runtime.NumCPU()
	}
	backlog := s.Backlog
	if backlog <= 0 {
		backlog = workers * 4
	}
	interval := s.ProgressInterval
	if interval <= 0 {
		interval = defaultProgressInterval
	}

	r := report.OrNop(s.Reporter)
	g, gctx := errgroup.WithContext(ctx)

	// the pool outlives g, whose context is canceled once Wait returns
	w := &walk{
		reporter: r,
		ignore:   normalizeIgnore(s.Ignore),
		pool:     newHashPool(ctx, workers, backlog, r),
		sem:      semaphore.NewWeighted(int64(listers)),
		g:        g,
	}

	start := time.Now()
	rootDir := tree.NewDirectory("", tree.RootName)

	rootErr := w.directory(gctx, rootDir, root, "")
	walkErr := g.Wait()

	// no more submits can happen past this point
	w.pool.close()

	if rootErr != nil {
		cancel()
		return nil, errors.Wrapf(rootErr, "unable to list %s", root)
	}
	if walkErr != nil {
		cancel()
		return nil, errors.Wrap(walkErr, "scan aborted")
	}

	r.Debugf("structure of %s scanned in %v, %d files queued", root, time.Since(start), w.pool.scheduled.Load())

	if err := w.pool.wait(ctx, s.Timeout, interval); err != nil {
		return nil, err
	}

	r.Debugf("hashing of %s finished in %v", root, time.Since(start))

	files := w.pool.scheduled.Load()

	return &Result{
		Root:       rootDir,
		Files:      files,
		Hashed:     files - w.pool.failed.Load(),
		Skipped:    w.skipped,
		HashErrors: w.pool.hashErrors(),
	}, nil
}

// directory lists abs into dir. Files are inserted and queued for hashing
// right away; subdirectories are listed concurrently and inserted into dir
// once their own listing succeeded.
func (w *walk) directory(ctx context.Context, dir *tree.Directory, abs, rel string) error {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	entries, err := os.ReadDir(abs)
	w.sem.Release(1)

	if err != nil {
		return err
	}

	w.reporter.Debugf("generate from: %s", abs)

	type subdir struct {
		name, abs, rel string
	}

	var subdirs []subdir

	for _, de := range entries {
		name := de.Name()
		full := filepath.Join(abs, name)
		childRel := joinRel(rel, name)

		mode, modTime, err := entryMode(de, full)
		if err != nil {
			w.reporter.Warnf("unable to stat %s: %v", full, err)
			continue
		}

		switch {
		case mode.IsDir() && de.Type()&fs.ModeSymlink != 0:
			w.reporter.Debugf("not following directory symlink %s", full)

		case mode.IsDir():
			if isIgnored(childRel, w.ignore) {
				w.reporter.Debugf("ignoring %s", childRel)
				continue
			}
			subdirs = append(subdirs, subdir{name: name, abs: full, rel: childRel})

		case mode.IsRegular():
			f := tree.NewFile(dir.FullPath(), name, modTime.Unix())
			dir.Insert(f)

			if err := w.pool.submit(ctx, hashJob{file: f, path: full}); err != nil {
				return err
			}

		default:
			w.reporter.Debugf("skipping %s (%v)", full, mode.Type())
		}
	}

	for _, sd := range subdirs {
		sd := sd
		child := tree.NewDirectory(dir.FullPath(), sd.name)

		w.g.Go(func() error {
			if err := w.directory(ctx, child, sd.abs, sd.rel); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.skip(sd.abs, err)
				return nil
			}

			w.mu.Lock()
			dir.Insert(child)
			w.mu.Unlock()
			return nil
		})
	}

	return nil
}

func (w *walk) skip(path string, err error) {
	w.reporter.Warnf("skipping unreadable directory %s: %v", path, err)

	w.mu.Lock()
	w.skipped = multierr.Append(w.skipped, errors.Wrapf(err, "list %s", path))
	w.mu.Unlock()
}

// entryMode resolves symlinks so that links to regular files are fingerprinted like files.
func entryMode(de fs.DirEntry, full string) (fs.FileMode, time.Time, error) {
	var (
		info fs.FileInfo
		err  error
	)

	if de.Type()&fs.ModeSymlink != 0 {
		info, err = os.Stat(full)
	} else {
		info, err = de.Info()
	}
	if err != nil {
		return 0, time.Time{}, err
	}

	return info.Mode(), info.ModTime(), nil
}
