package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted is returned when starting a stage that is running.
	ErrAlreadyStarted = errors.New("stage already started")
	// ErrNotStarted is returned when stopping a stage that is not running.
	ErrNotStarted = errors.New("stage not started")
)

// TransportError reports a failure opening or reading a record source.
type TransportError struct {
	Identity string
	Op       string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s %s: %v", e.Op, e.Identity, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PersistenceError reports a failure creating or writing the session log file.
type PersistenceError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("log file %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
