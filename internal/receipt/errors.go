package receipt

import "errors"

var (
	// ErrUnrecognizedType is returned when the classification reply is not
	// one of the known receipt types
	ErrUnrecognizedType = errors.New("unrecognized receipt type")

	// ErrMalformedReply is returned when the extraction reply is not a JSON
	// receipt even after sanitizing
	ErrMalformedReply = errors.New("malformed model reply")

	// ErrModel is returned when a call to the vision model fails
	ErrModel = errors.New("vision model call failed")

	// ErrTimeout is returned when the vision model does not answer in time
	ErrTimeout = errors.New("vision model timed out")
)
