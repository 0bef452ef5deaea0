package transcribe

import (
	"fmt"
	"strings"

	"github.com/mitchellbreust/mockwise/internal/config"
)

type Setup struct {
	Provider Provider
	Detail   string
}

// Resolve picks the transcription backend for TRANSCRIBE_PROVIDER.
func Resolve(cfg config.Config) (Setup, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.TranscribeProvider))
	if mode == "" {
		mode = "auto"
	}

	tryAssemblyAI := func() (Setup, bool, error) {
		if strings.TrimSpace(cfg.AssemblyAIAPIKey) == "" {
			return Setup{}, false, nil
		}
		p, err := NewAssemblyAIProvider(AssemblyAIConfig{
			APIKey:      cfg.AssemblyAIAPIKey,
			SpeechModel: cfg.AssemblyAISpeechModel,
		})
		if err != nil {
			return Setup{}, false, fmt.Errorf("assemblyai provider init failed: %w", err)
		}
		return Setup{Provider: p, Detail: "assemblyai (" + string(p.speechModel) + ")"}, true, nil
	}

	switch mode {
	case "assemblyai":
		setup, ok, err := tryAssemblyAI()
		if err != nil {
			return Setup{}, err
		}
		if !ok {
			return Setup{}, fmt.Errorf("TRANSCRIBE_PROVIDER=assemblyai but ASSEMBLYAI_API_KEY is not set")
		}
		return setup, nil
	case "mock":
		return Setup{Provider: NewMockProvider(), Detail: "mock"}, nil
	case "auto":
		setup, ok, err := tryAssemblyAI()
		if err != nil {
			return Setup{}, err
		}
		if ok {
			return setup, nil
		}
		return Setup{Provider: NewMockProvider(), Detail: "mock (no assemblyai key)"}, nil
	default:
		return Setup{}, fmt.Errorf("invalid TRANSCRIBE_PROVIDER: %q (expected auto|assemblyai|mock)", cfg.TranscribeProvider)
	}
}
