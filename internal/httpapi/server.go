package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mitchellbreust/mockwise/internal/apperr"
	"github.com/mitchellbreust/mockwise/internal/config"
	"github.com/mitchellbreust/mockwise/internal/credential"
	"github.com/mitchellbreust/mockwise/internal/observability"
	"github.com/mitchellbreust/mockwise/internal/policy"
	"github.com/mitchellbreust/mockwise/internal/session"
	"github.com/mitchellbreust/mockwise/internal/transcribe"
)

const maxSessionBodyBytes = 1 << 20

// CredentialIssuer exchanges a session token for a realtime credential.
type CredentialIssuer interface {
	IssueCredential(ctx context.Context, token string) (credential.Credential, error)
}

type Server struct {
	cfg         config.Config
	store       session.Store
	issuer      CredentialIssuer
	transcriber transcribe.Provider
	metrics     *observability.Metrics
}

func New(cfg config.Config, store session.Store, issuer CredentialIssuer, transcriber transcribe.Provider, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:         cfg,
		store:       store,
		issuer:      issuer,
		transcriber: transcriber,
		metrics:     metrics,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/session", s.handleCreateSession)
	r.Post("/webrtc/init", s.handleWebRTCInit)
	r.Post("/stream-transcribe", s.handleStreamTranscribe)

	r.Route("/api", func(r chi.Router) {
		r.Post("/session", s.handleCreateSession)
		r.Post("/webrtc/init", s.handleWebRTCInit)
		r.Post("/stream-transcribe", s.handleStreamTranscribe)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":              "ok",
		"session_store_mode":  s.storeMode(),
		"transcribe_provider": s.transcriberName(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	pending, err := s.store.PendingCount(ctx)
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"detail": err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "ready",
		"pending_sessions": pending,
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req session.CreateRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxSessionBodyBytes)
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "Request body too large", "")
			return
		}
		respondError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Resume) == "" || strings.TrimSpace(req.JobInfo) == "" {
		s.metrics.SessionEvents.WithLabelValues("rejected").Inc()
		respondError(w, http.StatusBadRequest, "Resume and job info required", "")
		return
	}

	pending, err := s.store.Create(r.Context(), req.Resume, req.JobInfo)
	if err != nil {
		log.Printf("create session failed: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to create session", "")
		return
	}
	s.metrics.SessionEvents.WithLabelValues("created").Inc()
	s.refreshPendingGauge(r.Context())

	respondJSON(w, http.StatusOK, session.CreateResponse{
		SessionToken: pending.Token,
		Status:       "success",
	})
}

func (s *Server) handleWebRTCInit(w http.ResponseWriter, r *http.Request) {
	token, _ := parseBearer(r)

	cred, err := s.issuer.IssueCredential(r.Context(), token)
	if err != nil {
		if apperr.IsKind(err, apperr.KindAuthentication) {
			respondError(w, http.StatusUnauthorized, "Invalid token", "")
			return
		}
		details := err.Error()
		var ae *apperr.Error
		if errors.As(err, &ae) {
			details = ae.Details()
		}
		log.Printf("webrtc init failed: %v", err)
		respondError(w, http.StatusInternalServerError, "WebRTC initialization failed", details)
		return
	}
	s.metrics.SessionEvents.WithLabelValues("consumed").Inc()
	s.refreshPendingGauge(r.Context())

	respondJSON(w, http.StatusOK, cred)
}

func (s *Server) handleStreamTranscribe(w http.ResponseWriter, r *http.Request) {
	provider := s.transcriberName()
	if s.transcriber == nil {
		respondError(w, http.StatusInternalServerError, "Transcription failed", "no transcription provider configured")
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.maxAudioBytes())
	audio, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.metrics.Transcriptions.WithLabelValues(provider, "too_large").Inc()
			respondError(w, http.StatusRequestEntityTooLarge, "Audio too large", "")
			return
		}
		respondError(w, http.StatusBadRequest, "Error reading audio data", err.Error())
		return
	}
	if len(audio) == 0 {
		s.metrics.Transcriptions.WithLabelValues(provider, "empty").Inc()
		respondError(w, http.StatusBadRequest, "Audio data required", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.upstreamTimeout())
	defer cancel()

	started := time.Now()
	text, err := s.transcriber.Transcribe(ctx, bytes.NewReader(audio))
	s.metrics.ObserveUpstream("transcribe_"+provider, time.Since(started))
	if err != nil {
		s.metrics.Transcriptions.WithLabelValues(provider, "error").Inc()
		details := err.Error()
		var ae *apperr.Error
		if errors.As(err, &ae) {
			details = ae.Details()
		}
		log.Printf("transcription failed provider=%s: %v", provider, err)
		respondError(w, http.StatusInternalServerError, "Transcription failed", details)
		return
	}
	s.metrics.Transcriptions.WithLabelValues(provider, "ok").Inc()
	if s.cfg.LogTranscripts {
		log.Printf("transcribed answer provider=%s bytes=%d text=%q", provider, len(audio), policy.LogSafe(text, 200))
	}

	respondJSON(w, http.StatusOK, transcribe.Result{Success: true, Text: text})
}

func (s *Server) refreshPendingGauge(ctx context.Context) {
	n, err := s.store.PendingCount(ctx)
	if err != nil {
		return
	}
	s.metrics.PendingSessions.Set(float64(n))
}

func (s *Server) storeMode() string {
	if _, ok := s.store.(*session.PostgresStore); ok {
		return "postgres"
	}
	return "in-memory"
}

func (s *Server) transcriberName() string {
	if s.transcriber == nil {
		return "none"
	}
	return s.transcriber.Name()
}

func (s *Server) maxAudioBytes() int64 {
	if s.cfg.MaxAudioBytes > 0 {
		return int64(s.cfg.MaxAudioBytes)
	}
	return 25 << 20
}

func (s *Server) upstreamTimeout() time.Duration {
	if s.cfg.UpstreamTimeout > 0 {
		return s.cfg.UpstreamTimeout
	}
	return 20 * time.Second
}

// parseBearer extracts the token from an "Authorization: Bearer <token>"
// header.
func parseBearer(r *http.Request) (string, bool) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
	return token, token != ""
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message, details string) {
	respondJSON(w, status, errorResponse{Error: message, Details: details})
}
