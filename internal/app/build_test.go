package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mitchellbreust/mockwise/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		MetricsNamespace:       fmt.Sprintf("test_app_%d", time.Now().UnixNano()),
		SessionTokenTTL:        50 * time.Millisecond,
		SessionJanitorInterval: 10 * time.Millisecond,
		UpstreamTimeout:        time.Second,
		TranscribeProvider:     "mock",
		MaxAudioBytes:          1024,
		AI: config.AIConfig{
			Model:   config.DefaultRealtimeModel,
			BaseURL: config.DefaultRealtimeBaseURL,
			Voice:   config.DefaultRealtimeVoice,
		},
	}
}

func TestBuildWiresInMemoryStack(t *testing.T) {
	res, err := Build(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			t.Fatalf("Cleanup() error = %v", err)
		}
	}()

	if res.Transcribe.Provider != "mock" {
		t.Fatalf("transcribe provider = %q, want mock", res.Transcribe.Provider)
	}

	ts := httptest.NewServer(res.API.Router())
	defer ts.Close()
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/healthz status = %d", resp.StatusCode)
	}
}

func TestBuildRejectsUnknownTranscribeProvider(t *testing.T) {
	cfg := testConfig()
	cfg.TranscribeProvider = "whisper"
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatalf("Build() expected error for unknown provider")
	}
}

func TestStartBackgroundExpiresTokens(t *testing.T) {
	res, err := Build(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	defer res.Cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if _, err := res.Store.Create(ctx, "resume", "job"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	res.StartBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := res.Store.PendingCount(ctx)
		if err != nil {
			t.Fatalf("PendingCount() error = %v", err)
		}
		if n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expired token was never swept")
}
