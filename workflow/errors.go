package workflow

import (
	"errors"
)

var (
	// ErrBusy is returned by commands that need an idle workflow.
	ErrBusy = errors.New("workflow: a turn is running")

	// ErrEmptyInput is returned by Message for blank input.
	ErrEmptyInput = errors.New("workflow: empty input")

	// ErrNotInitialized is returned by Message before Initialize.
	ErrNotInitialized = errors.New("workflow: not initialized")

	// ErrUnknownCommand is returned by Run for an unregistered command.
	ErrUnknownCommand = errors.New("workflow: unknown command")

	// errStopped is the cancellation cause recorded by Stop.
	errStopped = errors.New("workflow: stopped")
)
