package credential

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/mitchellbreust/mockwise/internal/apperr"
	"github.com/mitchellbreust/mockwise/internal/config"
	"github.com/mitchellbreust/mockwise/internal/observability"
	"github.com/mitchellbreust/mockwise/internal/session"
)

const upstreamService = "realtime_sessions"

// Credential is what a client needs to open the realtime connection and
// configure the interviewer once the channel is open.
type Credential struct {
	EphemeralToken string `json:"ephemeralToken"`
	BaseURL        string `json:"baseUrl"`
	Model          string `json:"model"`
	Voice          string `json:"voice,omitempty"`
	// Instructions is the persona composed with the candidate's resume and
	// job description.
	Instructions   string `json:"instructions,omitempty"`
}

type Config struct {
	APIKey  string
	AI      config.AIConfig
	Timeout time.Duration
	// HTTPClient is optional; tests point it at a stub upstream.
	HTTPClient *http.Client
}

// Broker exchanges pending-session tokens for one-time realtime credentials.
type Broker struct {
	store   session.Store
	ai      config.AIConfig
	client  openai.Client
	metrics *observability.Metrics
}

type createSessionRequest struct {
	Model string `json:"model"`
	Voice string `json:"voice"`
}

type createSessionResponse struct {
	ClientSecret *struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
}

func NewBroker(store session.Store, cfg Config, metrics *observability.Metrics) *Broker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(strings.TrimRight(cfg.AI.BaseURL, "/") + "/"),
		// Ephemeral secrets are single-use; retries are always user initiated.
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &Broker{
		store:   store,
		ai:      cfg.AI,
		client:  openai.NewClient(opts...),
		metrics: metrics,
	}
}

// IssueCredential claims token and requests a fresh ephemeral secret from
// the realtime service. Concurrent calls with one token cannot both succeed:
// the token is taken before the upstream call and put back only when the
// exchange fails, so a failed attempt can be retried within the TTL.
func (b *Broker) IssueCredential(ctx context.Context, token string) (cred Credential, err error) {
	token = strings.TrimSpace(token)
	if token == "" {
		b.metrics.CredentialResults.WithLabelValues("invalid_token").Inc()
		return Credential{}, apperr.Authentication("Invalid token")
	}
	pending, err := b.store.Take(ctx, token)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			log.Printf("credential: claim session token failed: %v", err)
		}
		b.metrics.CredentialResults.WithLabelValues("invalid_token").Inc()
		return Credential{}, apperr.Authentication("Invalid token")
	}
	defer func() {
		if err == nil {
			return
		}
		// The request context may already be done; the token still goes back.
		restoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if rerr := b.store.Restore(restoreCtx, pending); rerr != nil {
			log.Printf("credential: restore session token failed: %v", rerr)
		}
	}()

	var res createSessionResponse
	started := time.Now()
	err = b.client.Post(ctx, "sessions", createSessionRequest{
		Model: b.ai.Model,
		Voice: b.ai.Voice,
	}, &res)
	b.metrics.ObserveUpstream(upstreamService, time.Since(started))
	if err != nil {
		b.metrics.CredentialResults.WithLabelValues("upstream_error").Inc()
		return Credential{}, upstreamError(b.metrics, err)
	}

	if res.ClientSecret == nil || strings.TrimSpace(res.ClientSecret.Value) == "" {
		b.metrics.CredentialResults.WithLabelValues("upstream_error").Inc()
		b.metrics.UpstreamErrors.WithLabelValues(upstreamService, "malformed_response").Inc()
		return Credential{}, apperr.Upstream("realtime session response missing client_secret.value", 0, "", nil)
	}

	b.metrics.CredentialResults.WithLabelValues("issued").Inc()

	return Credential{
		EphemeralToken: res.ClientSecret.Value,
		BaseURL:        b.ai.BaseURL,
		Model:          b.ai.Model,
		Voice:          b.ai.Voice,
		Instructions:   b.ai.ComposeInstructions(pending.Resume, pending.JobInfo),
	}, nil
}

func upstreamError(metrics *observability.Metrics, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		detail := strings.TrimSpace(apiErr.Message)
		if detail == "" {
			detail = apiErr.Error()
		}
		metrics.UpstreamErrors.WithLabelValues(upstreamService, http.StatusText(apiErr.StatusCode)).Inc()
		return apperr.Upstream("realtime session create failed", apiErr.StatusCode, detail, err)
	}
	metrics.UpstreamErrors.WithLabelValues(upstreamService, "transport").Inc()
	return apperr.Upstream("realtime session create failed", 0, "", err)
}
