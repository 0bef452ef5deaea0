package transcribe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"

	"github.com/mitchellbreust/mockwise/internal/apperr"
)

const DefaultAssemblyAISpeechModel = "nano"

type AssemblyAIConfig struct {
	APIKey      string
	SpeechModel string
	// BaseURL and HTTPClient are optional overrides.
	BaseURL    string
	HTTPClient *http.Client
}

// AssemblyAIProvider uploads the recording and waits for the finished
// transcript.
type AssemblyAIProvider struct {
	client      *aai.Client
	speechModel aai.SpeechModel
}

func NewAssemblyAIProvider(cfg AssemblyAIConfig) (*AssemblyAIProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("assemblyai api key is required")
	}
	model := strings.TrimSpace(cfg.SpeechModel)
	if model == "" {
		model = DefaultAssemblyAISpeechModel
	}

	opts := []aai.ClientOption{aai.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, aai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, aai.WithHTTPClient(cfg.HTTPClient))
	}

	return &AssemblyAIProvider{
		client:      aai.NewClientWithOptions(opts...),
		speechModel: aai.SpeechModel(model),
	}, nil
}

func (p *AssemblyAIProvider) Name() string { return "assemblyai" }

func (p *AssemblyAIProvider) Transcribe(ctx context.Context, audio io.Reader) (string, error) {
	transcript, err := p.client.Transcripts.TranscribeFromReader(ctx, audio, &aai.TranscriptOptionalParams{
		SpeechModel: p.speechModel,
	})
	if err != nil {
		var apiErr aai.APIError
		if errors.As(err, &apiErr) {
			return "", apperr.Upstream("Transcription failed", apiErr.Status, apiErr.Message, err)
		}
		return "", apperr.Upstream("Transcription failed", 0, "", err)
	}
	if transcript.Status == aai.TranscriptStatusError {
		return "", apperr.Upstream("Transcription failed", 0, aai.ToString(transcript.Error), nil)
	}
	return strings.TrimSpace(aai.ToString(transcript.Text)), nil
}
