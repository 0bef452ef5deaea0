package transcribe

import (
	"context"
	"io"
)

// Provider converts one recorded answer into text. Audio is an opaque byte
// stream; the container format is left to the provider.
type Provider interface {
	Transcribe(ctx context.Context, audio io.Reader) (string, error)
	Name() string
}
