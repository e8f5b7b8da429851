package chat

import "github.com/pkg/errors"

var (
	// ErrEmptyInput is returned for blank submissions; callers drop it silently.
	ErrEmptyInput = errors.New("message text is empty")
	// ErrBusy is returned when a reply is still pending.
	ErrBusy = errors.New("assistant reply is pending")
	// ErrMessageNotFound is returned when no message has the requested id.
	ErrMessageNotFound = errors.New("message not found")

	ErrSessionNotFound      = errors.New("session not found")
	ErrSuggestionNotFound   = errors.New("suggestion not found")
	ErrSuggestionsClosed    = errors.New("suggestions are only offered on an empty conversation")
	ErrConfirmationRequired = errors.New("clearing requires a confirmation")
)
