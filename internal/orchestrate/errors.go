package orchestrate

import "errors"

// ErrInvalidURL is returned when a submitted URL fails classification.
// No network call is made.
var ErrInvalidURL = errors.New("invalid url: must start with http:// or https://")

// ErrChatPending is returned when a chat message arrives while the previous
// turn is still unanswered.
var ErrChatPending = errors.New("previous chat turn still pending")

// StreamFailure is a terminal error record received on a transcript stream.
// Its message is backend-provided and shown to the user as-is.
type StreamFailure struct {
	Message string
}

func (e *StreamFailure) Error() string {
	return e.Message
}
