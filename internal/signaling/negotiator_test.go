package signaling

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mitchellbreust/mockwise/internal/apperr"
	"github.com/mitchellbreust/mockwise/internal/credential"
)

type fakeChannel struct {
	label     string
	onOpen    func()
	onMessage func([]byte)
	onClose   func()
	closed    bool
}

func (c *fakeChannel) Label() string                  { return c.label }
func (c *fakeChannel) SendText(string) error          { return nil }
func (c *fakeChannel) OnOpen(fn func())               { c.onOpen = fn }
func (c *fakeChannel) OnMessage(fn func(data []byte)) { c.onMessage = fn }
func (c *fakeChannel) OnClose(fn func())              { c.onClose = fn }
func (c *fakeChannel) Close() error                   { c.closed = true; return nil }

type fakeTrack struct{ id string }

func (t fakeTrack) ID() string               { return t.id }
func (t fakeTrack) Codec() string            { return "audio/opus" }
func (t fakeTrack) Read([]byte) (int, error) { return 0, io.EOF }

type fakePeer struct {
	mu      sync.Mutex
	calls   []string
	channel *fakeChannel
	onTrack func(AudioTrack)
	closed  bool
	answer  string

	channelAtOffer bool
	offerErr       error
	answerErr      error
}

func (p *fakePeer) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *fakePeer) CreateChannel(label string) (Channel, error) {
	p.record("channel")
	p.channel = &fakeChannel{label: label}
	return p.channel, nil
}

func (p *fakePeer) AddAudioReceiver() error {
	p.record("audio")
	return nil
}

func (p *fakePeer) CreateOffer(context.Context) (string, error) {
	p.record("offer")
	p.channelAtOffer = p.channel != nil
	if p.offerErr != nil {
		return "", p.offerErr
	}
	return "v=0 offer", nil
}

func (p *fakePeer) ApplyAnswer(sdp string) error {
	p.record("answer")
	p.answer = sdp
	return p.answerErr
}

func (p *fakePeer) OnTrack(fn func(AudioTrack)) { p.onTrack = fn }

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

type recordingSink struct {
	tracks []string
}

func (s *recordingSink) Attach(track AudioTrack) { s.tracks = append(s.tracks, track.ID()) }

type sdpStub struct {
	status int
	body   string

	mu          sync.Mutex
	model       string
	auth        string
	contentType string
	offer       string
}

func (s *sdpStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.model = r.URL.Query().Get("model")
	s.auth = r.Header.Get("Authorization")
	s.contentType = r.Header.Get("Content-Type")
	s.offer = string(raw)
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/sdp")
	w.WriteHeader(s.status)
	_, _ = w.Write([]byte(s.body))
}

func newTestNegotiator(t *testing.T, stub *sdpStub, peer *fakePeer) (*Negotiator, credential.Credential) {
	t.Helper()
	ts := httptest.NewServer(stub)
	t.Cleanup(ts.Close)
	n := NewNegotiator(Config{
		ICEURLs:    []string{"stun:stun.l.google.com:19302"},
		Timeout:    5 * time.Second,
		HTTPClient: ts.Client(),
		NewPeer: func(urls []string) (Peer, error) {
			if len(urls) == 0 {
				t.Fatalf("peer created without ice servers")
			}
			return peer, nil
		},
	})
	cred := credential.Credential{
		EphemeralToken: "ek_123",
		BaseURL:        ts.URL + "/v1/realtime",
		Model:          "gpt-4o-realtime-preview-2024-12-17",
	}
	return n, cred
}

func TestNegotiateCreatesChannelBeforeOffer(t *testing.T) {
	stub := &sdpStub{status: http.StatusCreated, body: "v=0 answer"}
	peer := &fakePeer{}
	n, cred := newTestNegotiator(t, stub, peer)

	if n.State() != StateIdle {
		t.Fatalf("initial state = %s, want idle", n.State())
	}
	conn, err := n.Negotiate(context.Background(), cred, Handlers{OnMessage: func([]byte) {}})
	if err != nil {
		t.Fatalf("Negotiate() error = %v", err)
	}
	if !peer.channelAtOffer {
		t.Fatalf("data channel did not exist when the offer was created")
	}
	want := []string{"channel", "audio", "offer", "answer"}
	if len(peer.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", peer.calls, want)
	}
	for i := range want {
		if peer.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", peer.calls, want)
		}
	}
	if peer.channel.label != ChannelLabel {
		t.Fatalf("channel label = %q, want %q", peer.channel.label, ChannelLabel)
	}
	if peer.channel.onMessage == nil {
		t.Fatalf("message handler not registered on channel")
	}
	if peer.answer != "v=0 answer" {
		t.Fatalf("applied answer = %q", peer.answer)
	}
	if n.State() != StateConnected {
		t.Fatalf("state = %s, want connected", n.State())
	}
	if conn.Channel != peer.channel {
		t.Fatalf("connection channel mismatch")
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	if stub.model != cred.Model {
		t.Fatalf("model query = %q, want %q", stub.model, cred.Model)
	}
	if stub.auth != "Bearer ek_123" {
		t.Fatalf("Authorization = %q", stub.auth)
	}
	if stub.contentType != "application/sdp" {
		t.Fatalf("Content-Type = %q", stub.contentType)
	}
	if stub.offer != "v=0 offer" {
		t.Fatalf("offer body = %q", stub.offer)
	}
}

func TestNegotiateAttachesInboundAudio(t *testing.T) {
	stub := &sdpStub{status: http.StatusOK, body: "v=0 answer"}
	peer := &fakePeer{}
	n, cred := newTestNegotiator(t, stub, peer)
	sink := &recordingSink{}

	if _, err := n.Negotiate(context.Background(), cred, Handlers{Audio: sink}); err != nil {
		t.Fatalf("Negotiate() error = %v", err)
	}
	if peer.onTrack == nil {
		t.Fatalf("track handler not registered")
	}
	peer.onTrack(fakeTrack{id: "remote-audio"})
	if len(sink.tracks) != 1 || sink.tracks[0] != "remote-audio" {
		t.Fatalf("sink tracks = %v", sink.tracks)
	}
}

func TestNegotiateFailureTearsDownPeer(t *testing.T) {
	cases := []struct {
		name string
		stub *sdpStub
		peer *fakePeer
	}{
		{"upstream rejects offer", &sdpStub{status: http.StatusUnauthorized, body: "bad token"}, &fakePeer{}},
		{"empty answer", &sdpStub{status: http.StatusOK, body: "  "}, &fakePeer{}},
		{"offer fails", &sdpStub{status: http.StatusOK, body: "v=0"}, &fakePeer{offerErr: errors.New("ice failed")}},
		{"answer rejected", &sdpStub{status: http.StatusOK, body: "garbage"}, &fakePeer{answerErr: errors.New("bad sdp")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n, cred := newTestNegotiator(t, tc.stub, tc.peer)
			conn, err := n.Negotiate(context.Background(), cred, Handlers{})
			if conn != nil {
				t.Fatalf("expected nil connection on failure")
			}
			if !apperr.IsKind(err, apperr.KindNegotiation) {
				t.Fatalf("error = %v, want negotiation error", err)
			}
			if !tc.peer.closed {
				t.Fatalf("peer not closed after failure")
			}
			if n.State() != StateFailed {
				t.Fatalf("state = %s, want failed", n.State())
			}
		})
	}
}

func TestNegotiatorIsSingleAttempt(t *testing.T) {
	stub := &sdpStub{status: http.StatusOK, body: "v=0 answer"}
	peer := &fakePeer{}
	n, cred := newTestNegotiator(t, stub, peer)

	if _, err := n.Negotiate(context.Background(), cred, Handlers{}); err != nil {
		t.Fatalf("Negotiate() error = %v", err)
	}
	_, err := n.Negotiate(context.Background(), cred, Handlers{})
	if !errors.Is(err, ErrAlreadyUsed) {
		t.Fatalf("second Negotiate() error = %v, want ErrAlreadyUsed", err)
	}
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	peer := &fakePeer{}
	ch := &fakeChannel{}
	conn := &Connection{Peer: peer, Channel: ch}
	_ = conn.Close()
	_ = conn.Close()
	if !peer.closed || !ch.closed {
		t.Fatalf("Close() did not release peer and channel")
	}
}
