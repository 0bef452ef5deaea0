package transcribe

import (
	"context"
	"io"

	"github.com/mitchellbreust/mockwise/internal/apperr"
)

// MockText is what MockProvider returns for any non-empty recording.
const MockText = "simulated voice answer"

// MockProvider is a local stand-in used when no transcription service is
// configured.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Transcribe(ctx context.Context, audio io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n, err := io.Copy(io.Discard, audio)
	if err != nil {
		return "", apperr.Upstream("Transcription failed", 0, "", err)
	}
	if n == 0 {
		return "", nil
	}
	return MockText, nil
}
