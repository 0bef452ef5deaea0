package interview

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mitchellbreust/mockwise/internal/apperr"
	"github.com/mitchellbreust/mockwise/internal/config"
	"github.com/mitchellbreust/mockwise/internal/credential"
)

var (
	ErrNotConnected     = errors.New("interview is not connected")
	ErrNotReady         = errors.New("interviewer is speaking")
	ErrNegotiating      = errors.New("connection is still being negotiated")
	ErrMicrophoneDenied = errors.New("microphone access is not available")
	ErrRecording        = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
	ErrClosed           = errors.New("interview closed")
)

// Recorder captures one spoken answer at a time.
type Recorder interface {
	// Check verifies that audio capture is permitted.
	Check(ctx context.Context) error
	Start(ctx context.Context) error
	// Stop ends capture and returns the recorded audio. The caller closes it.
	Stop(ctx context.Context) (io.ReadCloser, error)
}

// Transcriber turns a recorded answer into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader) (string, error)
}

// Link is an established event channel.
type Link interface {
	Sender
	Close() error
}

// Events are the callbacks a transport invokes. They only enqueue work for
// the controller loop and never block on it for long.
type Events struct {
	OnOpen    func()
	OnMessage func(data []byte)
	OnClose   func()
}

// DialFunc establishes the realtime transport and returns its event channel.
type DialFunc func(ctx context.Context, ev Events) (Link, error)

type ControllerConfig struct {
	Voice        string
	Instructions string
	Pacing       time.Duration
	// InboundBuffer bounds how many undelivered channel events may queue.
	InboundBuffer int
	Player        Player
	Recorder      Recorder
	Transcriber   Transcriber
}

// NewControllerConfig builds the controller configuration for one candidate
// from the persona and voice the server issued with cred. A server that sends
// neither gets the default persona composed with resume and jobInfo.
func NewControllerConfig(cred credential.Credential, resume, jobInfo string, pacing time.Duration) ControllerConfig {
	cfg := ControllerConfig{
		Voice:        strings.TrimSpace(cred.Voice),
		Instructions: cred.Instructions,
		Pacing:       pacing,
	}
	if cfg.Voice == "" {
		cfg.Voice = config.DefaultRealtimeVoice
	}
	if strings.TrimSpace(cfg.Instructions) == "" {
		cfg.Instructions = config.AIConfig{}.ComposeInstructions(resume, jobInfo)
	}
	return cfg
}

type itemKind int

const (
	itemOpen itemKind = iota
	itemMessage
	itemClose
	itemSubmit
)

type item struct {
	kind  itemKind
	data  []byte
	text  string
	reply chan error
}

// Controller owns one interview session: its connection state, conversation
// log and transcript assembler. Inbound events and candidate submissions are
// handled one at a time on a single goroutine, in delivery order.
type Controller struct {
	cfg       ControllerConfig
	convo     *ConversationLog
	assembler *Assembler
	state     *stateBox
	interp    *Interpreter

	inbound chan item
	done    chan struct{}
	ended   chan struct{}
	wg      sync.WaitGroup

	mu          sync.Mutex
	link        Link
	negotiating bool
	// starting is set while Recorder.Start runs outside mu.
	starting    bool
	recording   bool
	closed      bool
	err         error

	closeOnce sync.Once
	endOnce   sync.Once
}

func NewController(cfg ControllerConfig) *Controller {
	if cfg.InboundBuffer <= 0 {
		cfg.InboundBuffer = 256
	}
	convo := NewConversationLog()
	assembler := NewAssembler(convo, cfg.Pacing)
	state := newStateBox()
	c := &Controller{
		cfg:       cfg,
		convo:     convo,
		assembler: assembler,
		state:     state,
		inbound:   make(chan item, cfg.InboundBuffer),
		done:      make(chan struct{}),
		ended:     make(chan struct{}),
	}
	c.interp = newInterpreter(InterpreterConfig{
		Voice:        cfg.Voice,
		Instructions: cfg.Instructions,
	}, nil, convo, assembler, state, cfg.Player)
	return c
}

func (c *Controller) Log() *ConversationLog { return c.convo }

func (c *Controller) State() ConnectionState {
	s := c.state.get()
	s.LiveTranscript = c.assembler.Live()
	return s
}

// Ended is closed when the session ends, either locally or because the
// transport dropped.
func (c *Controller) Ended() <-chan struct{} { return c.ended }

// Err reports why the session ended, if the transport dropped unexpectedly.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Connect runs dial and starts processing events. Events delivered by the
// transport before dial returns are buffered and handled afterwards.
func (c *Controller) Connect(ctx context.Context, dial DialFunc) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.link != nil || c.negotiating {
		c.mu.Unlock()
		return errors.New("interview already connected")
	}
	c.negotiating = true
	c.mu.Unlock()

	link, err := dial(ctx, Events{
		OnOpen:    func() { c.push(item{kind: itemOpen}) },
		OnMessage: c.pushMessage,
		OnClose:   func() { c.push(item{kind: itemClose}) },
	})

	c.mu.Lock()
	c.negotiating = false
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if c.closed {
		c.mu.Unlock()
		_ = link.Close()
		return ErrClosed
	}
	c.link = link
	c.interp.sender = link
	c.mu.Unlock()

	c.wg.Add(1)
	go c.run()
	return nil
}

func (c *Controller) pushMessage(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	c.push(item{kind: itemMessage, data: buf})
}

func (c *Controller) push(it item) bool {
	select {
	case c.inbound <- it:
		return true
	case <-c.done:
		return false
	}
}

func (c *Controller) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case it := <-c.inbound:
			c.handle(it)
		}
	}
}

func (c *Controller) handle(it item) {
	switch it.kind {
	case itemOpen:
		if err := c.interp.Open(); err != nil {
			log.Printf("interview: configure session failed: %v", err)
		}
	case itemMessage:
		c.interp.HandleInbound(it.data)
	case itemClose:
		c.state.update(func(s *ConnectionState) {
			s.Connected = false
			s.Accepting = false
			s.Playing = false
		})
		c.mu.Lock()
		if !c.closed && c.err == nil {
			c.err = apperr.Transport("realtime channel closed", nil)
		}
		c.mu.Unlock()
		c.endOnce.Do(func() { close(c.ended) })
	case itemSubmit:
		var err error
		if !c.state.get().Ready() {
			err = ErrNotReady
			if !c.state.get().Connected {
				err = ErrNotConnected
			}
		} else {
			err = c.interp.SubmitText(it.text)
		}
		it.reply <- err
	}
}

// SubmitText sends a typed answer. It is refused while the interviewer is
// speaking.
func (c *Controller) SubmitText(ctx context.Context, text string) error {
	c.mu.Lock()
	running := c.link != nil && !c.closed
	c.mu.Unlock()
	if !running {
		return ErrNotConnected
	}
	reply := make(chan error, 1)
	if !c.push(item{kind: itemSubmit, text: text, reply: reply}) {
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// CheckMicrophone checks the recorder once and records the outcome. Denied
// access only disables voice answers.
func (c *Controller) CheckMicrophone(ctx context.Context) Microphone {
	mic := MicrophoneDenied
	if c.cfg.Recorder != nil {
		if err := c.cfg.Recorder.Check(ctx); err == nil {
			mic = MicrophoneGranted
		} else {
			log.Printf("interview: microphone unavailable: %v", err)
		}
	}
	c.state.update(func(s *ConnectionState) { s.Microphone = mic })
	return mic
}

// StartRecording begins capturing a spoken answer. The recorder is started
// without holding the controller lock; a Close that lands meanwhile stops the
// capture again and StartRecording reports ErrClosed.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.negotiating:
		c.mu.Unlock()
		return ErrNegotiating
	case c.recording, c.starting:
		c.mu.Unlock()
		return ErrRecording
	}
	st := c.state.get()
	var err error
	switch {
	case st.Microphone != MicrophoneGranted || c.cfg.Recorder == nil:
		err = ErrMicrophoneDenied
	case !st.Connected:
		err = ErrNotConnected
	case st.Playing:
		err = ErrNotReady
	}
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.starting = true
	c.mu.Unlock()

	startErr := c.cfg.Recorder.Start(ctx)

	c.mu.Lock()
	c.starting = false
	closed := c.closed
	if startErr == nil && !closed {
		c.recording = true
	}
	c.mu.Unlock()

	if startErr != nil {
		return startErr
	}
	if closed {
		c.discardRecording()
		return ErrClosed
	}
	return nil
}

// discardRecording stops an abandoned capture and releases its audio.
func (c *Controller) discardRecording() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if audio, err := c.cfg.Recorder.Stop(ctx); err == nil {
		_ = audio.Close()
	}
}

// StopRecording ends capture, transcribes the answer and submits it. The
// recorded audio is released whether or not transcription succeeds.
func (c *Controller) StopRecording(ctx context.Context) (string, error) {
	c.mu.Lock()
	if !c.recording {
		c.mu.Unlock()
		return "", ErrNotRecording
	}
	c.recording = false
	c.mu.Unlock()

	audio, err := c.cfg.Recorder.Stop(ctx)
	if err != nil {
		return "", err
	}
	defer audio.Close()

	if c.cfg.Transcriber == nil {
		return "", apperr.Upstream("transcription unavailable", 0, "no transcriber configured", nil)
	}
	text, err := c.cfg.Transcriber.Transcribe(ctx, audio)
	if err != nil {
		return "", err
	}
	if err := c.SubmitText(ctx, text); err != nil {
		return text, err
	}
	return text, nil
}

// Close tears the session down: stops any capture in progress, closes the
// transport and stops transcript assembly. It is safe to call more than once
// and after a failed Connect.
func (c *Controller) Close() error {
	var retErr error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		recording := c.recording
		c.recording = false
		link := c.link
		c.mu.Unlock()

		close(c.done)

		if recording && c.cfg.Recorder != nil {
			c.discardRecording()
		}
		if link != nil {
			retErr = link.Close()
		}
		c.wg.Wait()
		c.assembler.Close()
		c.state.update(func(s *ConnectionState) {
			s.Connected = false
			s.Accepting = false
			s.Playing = false
		})
		c.endOnce.Do(func() { close(c.ended) })
	})
	return retErr
}
