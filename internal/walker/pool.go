package walker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"snapdiff/internal/hash"
	"snapdiff/internal/report"
	"snapdiff/internal/tree"
)

type hashJob struct {
	file *tree.File
	path string
}

// hashPool fingerprints files with a fixed number of workers fed from a
// bounded backlog. Each job writes into the *tree.File it was given, which is
// already owned by its parent directory.
type hashPool struct {
	jobs     chan hashJob
	wg       sync.WaitGroup
	done     chan struct{}
	reporter report.Reporter

	scheduled atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	mu   sync.Mutex
	errs error
}

func newHashPool(ctx context.Context, workers, backlog int, r report.Reporter) *hashPool {
	if workers <= 0 {
		workers = 1
	}
	if backlog < workers {
		backlog = workers
	}

	p := &hashPool{
		jobs:     make(chan hashJob, backlog),
		done:     make(chan struct{}),
		reporter: r,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.run(ctx, job)
			}
		}()
	}

	return p
}

func (p *hashPool) run(ctx context.Context, job hashJob) {
	defer p.completed.Add(1)

	// drain without hashing once the scan is abandoned
	if ctx.Err() != nil {
		return
	}

	digest, err := hash.HashFile(job.path)
	if err != nil {
		p.failed.Add(1)
		p.reporter.HashFailed(job.path, err)

		p.mu.Lock()
		p.errs = multierr.Append(p.errs, errors.Wrapf(err, "hash %s", job.path))
		p.mu.Unlock()
		return
	}

	job.file.SetDigest(digest)
}

// submit queues a job, blocking while the backlog is full.
func (p *hashPool) submit(ctx context.Context, job hashJob) error {
	p.scheduled.Add(1)

	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		p.scheduled.Add(-1)
		return ctx.Err()
	}
}

// close stops accepting jobs. Must be called once, after the last submit.
func (p *hashPool) close() {
	close(p.jobs)
	go func() {
		p.wg.Wait()
		close(p.done)
	}()
}

// wait is the completion barrier: it returns once every scheduled job has
// completed, or with ErrIncomplete when ctx ends or timeout elapses first.
func (p *hashPool) wait(ctx context.Context, timeout, interval time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			p.reporter.Progress(p.scheduled.Load(), p.completed.Load())
			return nil

		case <-ticker.C:
			p.reporter.Progress(p.scheduled.Load(), p.completed.Load())

		case <-expired:
			return p.incomplete(errors.Errorf("timed out after %v", timeout))

		case <-ctx.Done():
			return p.incomplete(ctx.Err())
		}
	}
}

func (p *hashPool) incomplete(cause error) error {
	scheduled, completed := p.scheduled.Load(), p.completed.Load()
	p.reporter.Warnf("hashing did not finish: %d of %d jobs outstanding", scheduled-completed, scheduled)

	return &IncompleteError{Scheduled: scheduled, Completed: completed, Cause: cause}
}

func (p *hashPool) hashErrors() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errs
}
