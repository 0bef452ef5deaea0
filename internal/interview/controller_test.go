package interview

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mitchellbreust/mockwise/internal/apperr"
	"github.com/mitchellbreust/mockwise/internal/config"
	"github.com/mitchellbreust/mockwise/internal/credential"
	"github.com/mitchellbreust/mockwise/internal/protocol"
)

type fakeLink struct {
	fakeSender
	closed chan struct{}
	once   sync.Once
}

func newFakeLink() *fakeLink { return &fakeLink{closed: make(chan struct{})} }

func (l *fakeLink) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *fakeLink) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

type trackedAudio struct {
	io.Reader
	closed bool
}

func (a *trackedAudio) Close() error {
	a.closed = true
	return nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	checkErr error
	started  int
	stopped  int
	audio    *trackedAudio
	// When set, Start signals entered and blocks until gate is closed.
	entered  chan struct{}
	gate     chan struct{}
}

func (r *fakeRecorder) Check(context.Context) error { return r.checkErr }

func (r *fakeRecorder) Start(context.Context) error {
	if r.gate != nil {
		close(r.entered)
		<-r.gate
	}
	r.mu.Lock()
	r.started++
	r.mu.Unlock()
	return nil
}

func (r *fakeRecorder) Stop(context.Context) (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped++
	r.audio = &trackedAudio{Reader: bytes.NewReader([]byte("RIFF....WAVE"))}
	return r.audio, nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(_ context.Context, audio io.Reader) (string, error) {
	if _, err := io.ReadAll(audio); err != nil {
		return "", err
	}
	return f.text, f.err
}

type controllerFixture struct {
	ctrl   *Controller
	link   *fakeLink
	events Events
}

func connectController(t *testing.T, cfg ControllerConfig) *controllerFixture {
	t.Helper()
	f := &controllerFixture{ctrl: NewController(cfg), link: newFakeLink()}
	t.Cleanup(func() { _ = f.ctrl.Close() })
	err := f.ctrl.Connect(context.Background(), func(_ context.Context, ev Events) (Link, error) {
		f.events = ev
		// Opening before dial returns must still be handled.
		ev.OnOpen()
		return f.link, nil
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, "session.update", func() bool { return len(f.link.types(t)) == 1 })
	return f
}

func TestControllerProcessesEventsInOrder(t *testing.T) {
	ai := config.AIConfig{Voice: "ash", BaseInstructions: "You are Ash."}
	cred := credential.Credential{Voice: ai.Voice, Instructions: ai.ComposeInstructions("5yr SWE resume", "Senior SWE role")}
	cfg := NewControllerConfig(cred, "5yr SWE resume", "Senior SWE role", 0)
	f := connectController(t, cfg)

	if got := f.link.types(t); got[0] != protocol.TypeSessionUpdate {
		t.Fatalf("first sent = %v, want session.update", got)
	}

	f.events.OnMessage([]byte(`{"type":"session.updated"}`))
	f.events.OnMessage([]byte(`not json`))
	f.events.OnMessage([]byte(`{"type":"response.audio_transcript.delta","delta":"Hello, "}`))
	f.events.OnMessage([]byte(`{"type":"response.audio_transcript.delta","delta":"I'm Ash."}`))

	waitFor(t, "transcript", func() bool {
		last, ok := f.ctrl.Log().Last()
		return ok && last.Text == "Hello, I'm Ash."
	})
	got := f.link.types(t)
	if len(got) != 2 || got[1] != protocol.TypeResponseCreate {
		t.Fatalf("sent = %v, want [session.update response.create]", got)
	}
	if live := f.ctrl.State().LiveTranscript; live != "Hello, I'm Ash." {
		t.Fatalf("LiveTranscript = %q", live)
	}
}

func TestControllerRefusesInputWhileInterviewerSpeaks(t *testing.T) {
	f := connectController(t, ControllerConfig{Voice: "ash"})
	ctx := context.Background()

	f.events.OnMessage([]byte(`{"type":"output_audio_buffer.started"}`))
	waitFor(t, "playing", func() bool { return f.ctrl.State().Playing })

	if err := f.ctrl.SubmitText(ctx, "answer"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("SubmitText() error = %v, want ErrNotReady", err)
	}

	f.events.OnMessage([]byte(`{"type":"output_audio_buffer.stopped"}`))
	waitFor(t, "ready", func() bool { return f.ctrl.State().Ready() })

	if err := f.ctrl.SubmitText(ctx, "I built a queue."); err != nil {
		t.Fatalf("SubmitText() error = %v", err)
	}
	last, _ := f.ctrl.Log().Last()
	if last.Speaker != SpeakerUser || last.Text != "I built a queue." {
		t.Fatalf("last = %+v", last)
	}
}

func TestControllerRecordingLifecycle(t *testing.T) {
	rec := &fakeRecorder{}
	f := connectController(t, ControllerConfig{
		Recorder:    rec,
		Transcriber: fakeTranscriber{text: "My answer."},
	})
	ctx := context.Background()

	if err := f.ctrl.StartRecording(ctx); !errors.Is(err, ErrMicrophoneDenied) {
		t.Fatalf("StartRecording() before microphone check error = %v, want ErrMicrophoneDenied", err)
	}
	if mic := f.ctrl.CheckMicrophone(ctx); mic != MicrophoneGranted {
		t.Fatalf("CheckMicrophone() = %s, want granted", mic)
	}

	f.events.OnMessage([]byte(`{"type":"output_audio_buffer.started"}`))
	waitFor(t, "playing", func() bool { return f.ctrl.State().Playing })
	if err := f.ctrl.StartRecording(ctx); !errors.Is(err, ErrNotReady) {
		t.Fatalf("StartRecording() while playing error = %v, want ErrNotReady", err)
	}
	f.events.OnMessage([]byte(`{"type":"output_audio_buffer.stopped"}`))
	waitFor(t, "ready", func() bool { return f.ctrl.State().Ready() })

	if err := f.ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}
	if err := f.ctrl.StartRecording(ctx); !errors.Is(err, ErrRecording) {
		t.Fatalf("second StartRecording() error = %v, want ErrRecording", err)
	}

	text, err := f.ctrl.StopRecording(ctx)
	if err != nil {
		t.Fatalf("StopRecording() error = %v", err)
	}
	if text != "My answer." {
		t.Fatalf("text = %q", text)
	}
	if !rec.audio.closed {
		t.Fatalf("recorded audio not released")
	}
	last, _ := f.ctrl.Log().Last()
	if last.Text != "My answer." || last.Speaker != SpeakerUser {
		t.Fatalf("last = %+v", last)
	}
	if _, err := f.ctrl.StopRecording(ctx); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("StopRecording() twice error = %v, want ErrNotRecording", err)
	}
}

func TestControllerReleasesAudioWhenTranscriptionFails(t *testing.T) {
	rec := &fakeRecorder{}
	upstream := apperr.Upstream("Transcription failed", 502, "bad gateway", nil)
	f := connectController(t, ControllerConfig{
		Recorder:    rec,
		Transcriber: fakeTranscriber{err: upstream},
	})
	ctx := context.Background()
	f.ctrl.CheckMicrophone(ctx)

	if err := f.ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}
	if _, err := f.ctrl.StopRecording(ctx); !apperr.IsKind(err, apperr.KindUpstream) {
		t.Fatalf("StopRecording() error = %v, want upstream error", err)
	}
	if !rec.audio.closed {
		t.Fatalf("recorded audio not released after failure")
	}
	if f.ctrl.Log().Len() != 0 {
		t.Fatalf("failed transcription should not add a message")
	}
}

func TestControllerMicrophoneDenied(t *testing.T) {
	rec := &fakeRecorder{checkErr: errors.New("no input device")}
	f := connectController(t, ControllerConfig{Recorder: rec})
	ctx := context.Background()

	if mic := f.ctrl.CheckMicrophone(ctx); mic != MicrophoneDenied {
		t.Fatalf("CheckMicrophone() = %s, want denied", mic)
	}
	if err := f.ctrl.StartRecording(ctx); !errors.Is(err, ErrMicrophoneDenied) {
		t.Fatalf("StartRecording() error = %v, want ErrMicrophoneDenied", err)
	}
	// Text answers still work.
	if err := f.ctrl.SubmitText(ctx, "typed answer"); err != nil {
		t.Fatalf("SubmitText() error = %v", err)
	}
}

func TestControllerRefusesRecordingWhileNegotiating(t *testing.T) {
	rec := &fakeRecorder{}
	ctrl := NewController(ControllerConfig{Recorder: rec})
	t.Cleanup(func() { _ = ctrl.Close() })
	ctrl.CheckMicrophone(context.Background())

	dialing := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- ctrl.Connect(context.Background(), func(context.Context, Events) (Link, error) {
			close(dialing)
			<-release
			return nil, apperr.Negotiation("exchange session description", errors.New("401"))
		})
	}()
	<-dialing
	if err := ctrl.StartRecording(context.Background()); !errors.Is(err, ErrNegotiating) {
		t.Fatalf("StartRecording() during negotiation error = %v, want ErrNegotiating", err)
	}
	close(release)
	if err := <-done; !apperr.IsKind(err, apperr.KindNegotiation) {
		t.Fatalf("Connect() error = %v, want negotiation error", err)
	}
	if ctrl.State().Connected {
		t.Fatalf("state connected after failed negotiation")
	}
}

func TestControllerCloseTearsDown(t *testing.T) {
	rec := &fakeRecorder{}
	f := connectController(t, ControllerConfig{Recorder: rec, Pacing: time.Second})
	ctx := context.Background()
	f.ctrl.CheckMicrophone(ctx)
	if err := f.ctrl.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}
	f.events.OnMessage([]byte(`{"type":"response.audio_transcript.delta","delta":"a"}`))
	f.events.OnMessage([]byte(`{"type":"response.audio_transcript.delta","delta":"b"}`))

	if err := f.ctrl.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !f.link.isClosed() {
		t.Fatalf("link not closed")
	}
	if rec.stopped != 1 || !rec.audio.closed {
		t.Fatalf("recording not stopped and released on close")
	}
	if !f.ctrl.assembler.Idle() {
		t.Fatalf("assembler still running after close")
	}
	select {
	case <-f.ctrl.Ended():
	default:
		t.Fatalf("Ended() not closed")
	}
	if err := f.ctrl.SubmitText(ctx, "late"); err == nil {
		t.Fatalf("SubmitText() after Close should fail")
	}
	if err := f.ctrl.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestControllerReportsTransportDrop(t *testing.T) {
	f := connectController(t, ControllerConfig{})
	f.events.OnClose()

	select {
	case <-f.ctrl.Ended():
	case <-time.After(2 * time.Second):
		t.Fatalf("Ended() not closed after transport drop")
	}
	if !apperr.IsKind(f.ctrl.Err(), apperr.KindTransport) {
		t.Fatalf("Err() = %v, want transport error", f.ctrl.Err())
	}
	if f.ctrl.State().Connected {
		t.Fatalf("state still connected after drop")
	}
}

func TestControllerStateReadableFromLogCallback(t *testing.T) {
	f := connectController(t, ControllerConfig{Voice: "ash"})

	seen := make(chan string, 4)
	f.ctrl.Log().OnChange(func(msg Message) {
		if msg.Speaker == SpeakerInterviewer {
			seen <- f.ctrl.State().LiveTranscript
		}
	})
	f.events.OnMessage([]byte(`{"type":"response.audio_transcript.delta","delta":"Hello"}`))

	select {
	case live := <-seen:
		if live != "Hello" {
			t.Fatalf("LiveTranscript in callback = %q, want Hello", live)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("log callback reading controller state never returned")
	}

	done := make(chan struct{})
	go func() {
		_ = f.ctrl.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close() blocked after log callback")
	}
}

func TestControllerSendsIssuedPersona(t *testing.T) {
	cred := credential.Credential{Voice: "verse", Instructions: "You are Verse. Ask about the compiler."}
	f := connectController(t, NewControllerConfig(cred, "resume", "job", 0))

	f.link.mu.Lock()
	first := f.link.sent[0]
	f.link.mu.Unlock()
	var msg protocol.SessionUpdate
	if err := json.Unmarshal([]byte(first), &msg); err != nil {
		t.Fatalf("session.update decode error = %v", err)
	}
	if msg.Session.Voice != "verse" || msg.Session.Instructions != cred.Instructions {
		t.Fatalf("session = %+v, want issued voice and instructions", msg.Session)
	}
}

func TestNewControllerConfigFallsBackWithoutIssuedPersona(t *testing.T) {
	cfg := NewControllerConfig(credential.Credential{}, "5yr SWE resume", "Senior SWE role", time.Second)
	if cfg.Voice != config.DefaultRealtimeVoice {
		t.Fatalf("Voice = %q, want %q", cfg.Voice, config.DefaultRealtimeVoice)
	}
	if cfg.Instructions != (config.AIConfig{}).ComposeInstructions("5yr SWE resume", "Senior SWE role") {
		t.Fatalf("Instructions = %q, want default persona", cfg.Instructions)
	}
	if cfg.Pacing != time.Second {
		t.Fatalf("Pacing = %v", cfg.Pacing)
	}
}

func TestControllerCloseDuringSlowRecorderStart(t *testing.T) {
	rec := &fakeRecorder{entered: make(chan struct{}), gate: make(chan struct{})}
	f := connectController(t, ControllerConfig{Recorder: rec})
	ctx := context.Background()
	f.ctrl.CheckMicrophone(ctx)

	started := make(chan error, 1)
	go func() { started <- f.ctrl.StartRecording(ctx) }()
	<-rec.entered

	if err := f.ctrl.StartRecording(ctx); !errors.Is(err, ErrRecording) {
		t.Fatalf("StartRecording() while starting error = %v, want ErrRecording", err)
	}
	closed := make(chan struct{})
	go func() {
		_ = f.ctrl.Err()
		_ = f.ctrl.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close() blocked behind Recorder.Start")
	}

	close(rec.gate)
	if err := <-started; !errors.Is(err, ErrClosed) {
		t.Fatalf("StartRecording() error = %v, want ErrClosed", err)
	}
	rec.mu.Lock()
	stopped, audio := rec.stopped, rec.audio
	rec.mu.Unlock()
	if stopped != 1 || audio == nil || !audio.closed {
		t.Fatalf("abandoned capture stopped = %d audio = %+v, want stopped and released", stopped, audio)
	}
}
