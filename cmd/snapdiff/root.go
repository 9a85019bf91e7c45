package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"snapdiff/internal/config"
	"snapdiff/internal/progress"
	"snapdiff/internal/report"
	"snapdiff/internal/walker"
)

// app holds what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	debug      bool
	quiet      bool
	workers    int
	ignore     []string

	cfg *config.Config
	log *zap.SugaredLogger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "snapdiff",
		Short: "Snapshot directory trees and compute, patch and release their differences",
		Long: `snapdiff records the shape, modification times and content fingerprints of a
directory tree in a compressed snapshot file, and compares a live directory
against such a snapshot.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", config.DefaultPath, "Config file path")
	flags.BoolVar(&a.debug, "debug", false, "Enable debug logging")
	flags.BoolVarP(&a.quiet, "quiet", "q", false, "Only log warnings and errors")
	flags.IntVarP(&a.workers, "workers", "w", 0, "Number of hashing workers (default from config)")
	flags.StringSliceVar(&a.ignore, "ignore", nil, "Comma-separated directory prefixes to skip")

	root.AddCommand(
		newScanCommand(a),
		newDiffCommand(a),
		newPatchCommand(a),
		newReleaseCommand(a),
	)

	return root
}

func (a *app) setup() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if a.workers > 0 {
		cfg.Workers = a.workers
	}
	cfg.Ignore = append(cfg.Ignore, a.ignore...)

	a.cfg = cfg
	a.log = newLogger(a.level()).Sugar()

	return nil
}

func (a *app) level() zapcore.Level {
	switch {
	case a.debug:
		return zapcore.DebugLevel
	case a.quiet:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

func newLogger(level zapcore.Level) *zap.Logger {
	ec := zapcore.EncoderConfig{
		TimeKey:          "t",
		LevelKey:         "l",
		MessageKey:       "m",
		EncodeTime:       zapcore.TimeEncoderOfLayout("15:04:05.000"),
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}

	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(ec),
		zapcore.AddSync(os.Stderr),
		level,
	))
}

// scanner returns a Scanner configured from the loaded config. The returned
// bar must be finished once the scan returns.
func (a *app) scanner() (*walker.Scanner, *progress.Bar) {
	bar := progress.New("Hashing")
	if a.quiet {
		bar = progress.NewWriter("Hashing", os.Stdout, false)
	}

	return &walker.Scanner{
		Ignore:   a.cfg.Ignore,
		Workers:  a.cfg.Workers,
		Listers:  a.cfg.Listers,
		Timeout:  a.cfg.HashTimeout,
		Reporter: report.NewLogger(a.log, bar),
	}, bar
}

func (a *app) reporter() report.Reporter {
	return report.NewLogger(a.log, nil)
}

// checkDir and checkFile enforce the preconditions shared by all commands.
func checkDir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(walker.ErrInvalidInputPath, "%s: %v", path, err)
	}

	info, err := os.Stat(abs)
	switch {
	case err != nil:
		return "", errors.Wrapf(walker.ErrInvalidInputPath, "%s: %v", path, err)
	case !info.IsDir():
		return "", errors.Wrapf(walker.ErrInvalidInputPath, "%s is not a directory", path)
	}

	return abs, nil
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return errors.Wrapf(walker.ErrInvalidInputPath, "%s: %v", path, err)
	case !info.Mode().IsRegular():
		return errors.Wrapf(walker.ErrInvalidInputPath, "%s is not a snapshot file", path)
	}
	return nil
}
