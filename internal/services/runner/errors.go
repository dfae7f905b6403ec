package runner

import "errors"

// ErrCancelled is returned when a run observes its cancel flag. It is
// distinct from failure: the runner maps it to the cancelled phase instead
// of the failed phase.
var ErrCancelled = errors.New("task cancelled")

// ErrTaskAlreadyRunning is returned when a second execution of the same task
// is requested while one is in flight
var ErrTaskAlreadyRunning = errors.New("task is already running")
