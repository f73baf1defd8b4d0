// Package prompt routes interactive requests (command confirmation, option
// selection, free-form input) from the engine to the host and back.
//
// Every request suspends the caller until the host responds, the caller's
// context is cancelled, or the broker timeout elapses. A timeout is not an
// error: the request resolves to its default value.
package prompt

import (
	"context"
	"errors"

	ai "github.com/spetersoncode/tandem"
)

// ErrCancelled is returned when the caller's context ends before a response.
var ErrCancelled = errors.New("prompt: request cancelled")

// Prompter is the confirmation/selection/input collaborator.
type Prompter interface {
	// Confirm asks the user to approve a command or patch.
	Confirm(ctx context.Context, req ai.ConfirmRequest) (ai.CommandConfirmation, error)

	// Select asks the user to pick one of options. It returns "" if the user
	// dismissed the prompt.
	Select(ctx context.Context, question string, options []string, defaultOption string) (string, error)

	// Input asks the user for free-form text.
	Input(ctx context.Context, message, placeholder, defaultValue string) (string, error)
}

// Kind specifies the kind of user input expected.
type Kind string

const (
	// KindConfirm requests a review decision on a command or patch.
	KindConfirm Kind = "confirm"

	// KindSelect requests selection from a list of options.
	KindSelect Kind = "select"

	// KindInput requests free-form text input.
	KindInput Kind = "input"
)

// Request is a pending prompt handed to the host.
type Request struct {
	ID          string             `json:"id"`
	Kind        Kind               `json:"kind"`
	Title       string             `json:"title,omitempty"`
	Message     string             `json:"message"`
	Options     []string           `json:"options,omitempty"`
	Default     string             `json:"default,omitempty"`
	Placeholder string             `json:"placeholder,omitempty"`
	Confirm     *ai.ConfirmRequest `json:"confirm,omitempty"`
}

// Response is the host's answer to a Request.
type Response struct {
	RequestID string `json:"requestId"`
	// Decision answers KindConfirm requests.
	Decision          ai.ReviewDecision `json:"decision,omitempty"`
	CustomDenyMessage string            `json:"customDenyMessage,omitempty"`
	Patch             *ai.Patch         `json:"patch,omitempty"`
	// Value answers KindSelect and KindInput requests.
	Value string `json:"value,omitempty"`
	// Cancelled is true if the user dismissed the prompt.
	Cancelled bool `json:"cancelled,omitempty"`
}
