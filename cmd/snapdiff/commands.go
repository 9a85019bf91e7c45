package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"snapdiff/internal/compare"
	"snapdiff/internal/patch"
	"snapdiff/internal/snapshot"
	"snapdiff/internal/walker"
)

func newScanCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "scan <path>",
		Short: "Scan a directory and save its snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = a.cfg.OutputFile
			}
			return a.runScan(cmd.Context(), args[0], output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Snapshot file to write (default "+snapshot.DefaultFile+")")

	return cmd
}

func newDiffCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "diff <path> <source>",
		Short: "Compare a directory against a saved snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.runDiff(cmd.Context(), args[0], args[1])
			return err
		},
	}
}

func newPatchCommand(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "patch <path> <source>",
		Short: "Copy entries added or changed since a snapshot into a patch directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = a.cfg.PatchDir
			}

			d, err := a.runDiff(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return a.materialize(d, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Patch directory (default ./patch)")

	return cmd
}

func newReleaseCommand(a *app) *cobra.Command {
	var outputPath, outputFile string

	cmd := &cobra.Command{
		Use:   "release <path> <source>",
		Short: "Patch against a snapshot and save the new snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputPath == "" {
				outputPath = a.cfg.ReleaseDir
			}
			if outputFile == "" {
				outputFile = a.cfg.OutputFile
			}

			d, err := a.runDiff(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if err := a.materialize(d, outputPath); err != nil {
				return err
			}
			return a.save(d.root, d.scan, outputFile)
		},
	}

	cmd.Flags().StringVar(&outputPath, "output-path", "", "Release directory (default ./release)")
	cmd.Flags().StringVar(&outputFile, "output-file", "", "Snapshot file to write (default "+snapshot.DefaultFile+")")

	return cmd
}

// scan runs a Scanner over an already validated absolute directory.
func (a *app) scan(ctx context.Context, abs string) (*walker.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	a.log.Infof("Scanning directory: %s", abs)

	s, bar := a.scanner()
	result, err := s.Scan(ctx, abs)
	bar.Finish()

	if err != nil {
		if errors.Is(err, walker.ErrIncomplete) || errors.Is(err, walker.ErrInvalidInputPath) {
			return nil, err
		}
		return nil, withCode(exitIO, err)
	}

	for _, e := range multierr.Errors(result.Skipped) {
		a.log.Warnf("skipped: %v", e)
	}
	a.log.Infof("Found %d files, %d fingerprinted", result.Files, result.Hashed)

	return result, nil
}

func (a *app) runScan(ctx context.Context, path, output string) error {
	abs, err := checkDir(path)
	if err != nil {
		return err
	}

	result, err := a.scan(ctx, abs)
	if err != nil {
		return err
	}

	return a.save(abs, result, output)
}

func (a *app) save(abs string, result *walker.Result, output string) error {
	s := snapshot.New(abs, result.Root)
	if err := s.Save(output); err != nil {
		return withCode(exitIO, err)
	}

	sum, err := snapshot.Summary(result.Root)
	if err != nil {
		a.log.Warnf("unable to summarize tree: %v", err)
	}

	fmt.Printf("Snapshot saved to %s\n", output)
	fmt.Printf("  Root hash: %s\n", sum)
	fmt.Printf("  Files: %d\n", result.Files)

	return nil
}

// diffRun is a completed diff, kept for the commands that materialize it.
type diffRun struct {
	root    string
	scan    *walker.Result
	records []compare.Record
}

func (a *app) runDiff(ctx context.Context, path, source string) (*diffRun, error) {
	abs, err := checkDir(path)
	if err != nil {
		return nil, err
	}
	if err := checkFile(source); err != nil {
		return nil, err
	}

	base, err := snapshot.Read(source)
	if err != nil {
		a.log.Warnf("unable to read snapshot, comparing against an empty tree: %v", err)
		base = &snapshot.Snapshot{}
	} else {
		a.log.Debugf("loaded snapshot of %s, captured at %d", base.SourcePath, base.CapturedAt)
	}

	result, err := a.scan(ctx, abs)
	if err != nil {
		return nil, err
	}

	records := (&compare.Differ{Reporter: a.reporter()}).Compare(base.Root, result.Root)
	fmt.Print(compare.FormatReport(records))

	return &diffRun{root: abs, scan: result, records: records}, nil
}

func (a *app) materialize(d *diffRun, output string) error {
	if _, err := patch.PrepareOutput(output, a.reporter()); err != nil {
		return withCode(exitIO, err)
	}

	stats, err := (&patch.Materializer{Reporter: a.reporter()}).Apply(d.records, d.root, output)
	a.log.Infof("Wrote %d files and %d directories to %s", stats.Files, stats.Directories, output)

	if err != nil {
		return withCode(exitIO, errors.Wrapf(err, "%d entries could not be materialized", stats.Failed))
	}

	return nil
}
