package scanning

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyResponse is returned when a model answers without any text
var ErrEmptyResponse = errors.New("empty response from model")

// Model defines a vision-language model that answers a prompt about an image
type Model interface {
	// Generate sends the image and the prompt and returns the raw text reply
	Generate(ctx context.Context, image []byte, mimeType string, prompt string) (string, error)
	// Close closes the model client and releases resources
	Close() error
}

// normalizeMimeType lowercases a MIME type and defaults to PNG
func normalizeMimeType(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" {
		return "image/png"
	}
	return mimeType
}
