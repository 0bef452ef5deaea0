package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mitchellbreust/mockwise/internal/apperr"
	"github.com/mitchellbreust/mockwise/internal/credential"
)

type Handlers struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnClose   func()
}

type Config struct {
	HandshakeTimeout time.Duration
	// Dialer is optional; tests use the httptest server's default.
	Dialer *websocket.Dialer
}

// Conn is a text-only realtime event channel over a websocket. It carries the
// same JSON events as the WebRTC data channel, without audio.
type Conn struct {
	conn      *websocket.Conn
	handlers  Handlers
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

// WebSocketURL maps the realtime base URL onto its websocket endpoint.
func WebSocketURL(baseURL, model string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported realtime url scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("model", model)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial opens the websocket using the ephemeral credential. OnOpen fires from
// the read goroutine before the first message is delivered.
func Dial(ctx context.Context, cfg Config, cred credential.Credential, h Handlers) (*Conn, error) {
	if strings.TrimSpace(cred.EphemeralToken) == "" {
		return nil, apperr.Transport("dial realtime websocket", errors.New("missing ephemeral token"))
	}
	endpoint, err := WebSocketURL(cred.BaseURL, cred.Model)
	if err != nil {
		return nil, apperr.Transport("dial realtime websocket", err)
	}

	dialer := cfg.Dialer
	if dialer == nil {
		d := *websocket.DefaultDialer
		if cfg.HandshakeTimeout > 0 {
			d.HandshakeTimeout = cfg.HandshakeTimeout
		}
		dialer = &d
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cred.EphemeralToken)
	headers.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := dialer.DialContext(ctx, endpoint, headers)
	if err != nil {
		if resp != nil {
			return nil, apperr.Transport("dial realtime websocket", fmt.Errorf("status %d: %w", resp.StatusCode, err))
		}
		return nil, apperr.Transport("dial realtime websocket", err)
	}

	c := &Conn{conn: conn, handlers: h, closed: make(chan struct{})}
	go c.readLoop()
	return c, nil
}

func (c *Conn) SendText(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closed:
		return websocket.ErrCloseSent
	default:
	}
	return c.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

func (c *Conn) readLoop() {
	defer func() {
		c.shutdown()
		if c.handlers.OnClose != nil {
			c.handlers.OnClose()
		}
	}()
	if c.handlers.OnOpen != nil {
		c.handlers.OnOpen()
	}
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(data)
		}
	}
}

// Close sends a close frame and releases the socket.
func (c *Conn) Close() error {
	var retErr error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		close(c.closed)
		retErr = c.conn.Close()
	})
	return retErr
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}
