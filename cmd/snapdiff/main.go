package main

import (
	"errors"
	"fmt"
	"os"

	"snapdiff/internal/walker"
)

// Process exit codes.
const (
	exitOK         = 0
	exitFailure    = 1
	exitInvalidArg = 2
	exitIO         = 3
	exitIncomplete = 4
)

// exitError attaches a process exit code to err.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func exitCode(err error) int {
	var ee *exitError

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, walker.ErrIncomplete):
		return exitIncomplete
	case errors.Is(err, walker.ErrInvalidInputPath):
		return exitInvalidArg
	case errors.As(err, &ee):
		return ee.code
	default:
		return exitFailure
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
