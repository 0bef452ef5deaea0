package signaling

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mitchellbreust/mockwise/internal/apperr"
	"github.com/mitchellbreust/mockwise/internal/credential"
	"github.com/mitchellbreust/mockwise/internal/reliability"
)

// State is the negotiation progress of a single attempt.
type State int

const (
	StateIdle State = iota
	StateOfferCreated
	StateAnswerPending
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateOfferCreated:
		return "offer_created"
	case StateAnswerPending:
		return "answer_pending"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const maxAnswerBytes = 1 << 20

var ErrAlreadyUsed = errors.New("negotiator already used")

type Config struct {
	ICEURLs    []string
	Timeout    time.Duration
	HTTPClient *http.Client
	NewPeer    PeerFactory
}

// Handlers are registered on the channel before the offer is created so no
// early event is missed.
type Handlers struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnClose   func()
	Audio     AudioSink
}

// Connection is an established realtime transport.
type Connection struct {
	Peer    Peer
	Channel Channel

	closeOnce sync.Once
	closeErr  error
}

func (c *Connection) SendText(text string) error {
	return c.Channel.SendText(text)
}

// Close releases the channel and the peer. Safe to call more than once.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		if c.Channel != nil {
			_ = c.Channel.Close()
		}
		if c.Peer != nil {
			c.closeErr = c.Peer.Close()
		}
	})
	return c.closeErr
}

// Negotiator performs one signaling handshake. A failed negotiation is not
// retried: every attempt needs a fresh ephemeral credential.
type Negotiator struct {
	cfg    Config
	client *http.Client

	mu    sync.Mutex
	state State
	used  bool
}

func NewNegotiator(cfg Config) *Negotiator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.NewPeer == nil {
		cfg.NewPeer = NewPionPeer
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Negotiator{cfg: cfg, client: client}
}

func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

func (n *Negotiator) setState(s State) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
}

// Negotiate creates the peer, the event channel and the offer, exchanges the
// offer for an answer with the realtime service and applies it. On failure all
// acquired resources are released before the error is returned.
func (n *Negotiator) Negotiate(ctx context.Context, cred credential.Credential, h Handlers) (conn *Connection, err error) {
	n.mu.Lock()
	if n.used {
		n.mu.Unlock()
		return nil, apperr.Negotiation("negotiation failed", ErrAlreadyUsed)
	}
	n.used = true
	n.mu.Unlock()

	if strings.TrimSpace(cred.EphemeralToken) == "" {
		n.setState(StateFailed)
		return nil, apperr.Negotiation("negotiation failed", errors.New("missing ephemeral token"))
	}

	peer, err := n.cfg.NewPeer(n.cfg.ICEURLs)
	if err != nil {
		n.setState(StateFailed)
		return nil, apperr.Negotiation("create peer connection", err)
	}
	defer func() {
		if err != nil {
			_ = peer.Close()
			n.setState(StateFailed)
		}
	}()

	if h.Audio != nil {
		peer.OnTrack(h.Audio.Attach)
	}

	// The channel must exist before the offer, otherwise the offer carries
	// no application section.
	channel, err := peer.CreateChannel(ChannelLabel)
	if err != nil {
		return nil, apperr.Negotiation("create data channel", err)
	}
	if h.OnOpen != nil {
		channel.OnOpen(h.OnOpen)
	}
	if h.OnMessage != nil {
		channel.OnMessage(h.OnMessage)
	}
	if h.OnClose != nil {
		channel.OnClose(h.OnClose)
	}

	if err := peer.AddAudioReceiver(); err != nil {
		return nil, apperr.Negotiation("add audio transceiver", err)
	}

	offerCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()
	offer, err := peer.CreateOffer(offerCtx)
	if err != nil {
		return nil, apperr.Negotiation("create offer", err)
	}
	n.setState(StateOfferCreated)

	n.setState(StateAnswerPending)
	answer, err := n.exchange(offerCtx, cred, offer)
	if err != nil {
		return nil, apperr.Negotiation("exchange session description", err)
	}

	if err := peer.ApplyAnswer(answer); err != nil {
		return nil, apperr.Negotiation("apply answer", err)
	}
	n.setState(StateConnected)

	return &Connection{Peer: peer, Channel: channel}, nil
}

func (n *Negotiator) exchange(ctx context.Context, cred credential.Credential, offer string) (string, error) {
	endpoint := strings.TrimRight(cred.BaseURL, "/") + "?model=" + url.QueryEscape(cred.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(offer))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+cred.EphemeralToken)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := n.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAnswerBytes))
	if err != nil {
		return "", err
	}
	if !reliability.IsSuccessStatus(resp.StatusCode) {
		return "", apperr.Upstream("sdp exchange rejected", resp.StatusCode, strings.TrimSpace(string(body)), nil)
	}
	answer := string(body)
	if strings.TrimSpace(answer) == "" {
		return "", errors.New("empty answer")
	}
	return answer, nil
}
