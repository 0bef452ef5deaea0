package interview

import (
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/mitchellbreust/mockwise/internal/apperr"
	"github.com/mitchellbreust/mockwise/internal/protocol"
	"github.com/mitchellbreust/mockwise/internal/reliability"
)

// Sender writes one text frame to the realtime event channel.
type Sender interface {
	SendText(text string) error
}

// Player controls playback of the interviewer's audio.
type Player interface {
	Play() error
	Pause() error
}

type nopPlayer struct{}

func (nopPlayer) Play() error  { return nil }
func (nopPlayer) Pause() error { return nil }

type InterpreterConfig struct {
	Voice string
	// Instructions is the composed persona plus candidate context sent in
	// session.update when the channel opens.
	Instructions string
}

// Interpreter reacts to inbound realtime events and emits the outbound
// control messages that drive the interviewer. It is not safe for concurrent
// use; Controller serializes calls onto one goroutine.
type Interpreter struct {
	cfg       InterpreterConfig
	sender    Sender
	log       *ConversationLog
	assembler *Assembler
	state     *stateBox
	player    Player

	mu      sync.Mutex
	unknown map[protocol.EventType]int
}

func newInterpreter(cfg InterpreterConfig, sender Sender, convo *ConversationLog, assembler *Assembler, state *stateBox, player Player) *Interpreter {
	if player == nil {
		player = nopPlayer{}
	}
	return &Interpreter{
		cfg:       cfg,
		sender:    sender,
		log:       convo,
		assembler: assembler,
		state:     state,
		player:    player,
		unknown:   map[protocol.EventType]int{},
	}
}

// Open configures the remote session. Called once the event channel opens.
func (i *Interpreter) Open() error {
	i.state.update(func(s *ConnectionState) {
		s.Connected = true
		s.Accepting = true
	})
	return i.send(protocol.NewSessionUpdate(i.cfg.Voice, i.cfg.Instructions))
}

// HandleInbound decodes and dispatches one raw channel message. Malformed
// messages are logged and dropped.
func (i *Interpreter) HandleInbound(raw []byte) {
	ev, err := protocol.ParseServerEvent(raw)
	if err != nil {
		log.Printf("interview: discarding malformed event: %v", err)
		return
	}
	i.Dispatch(ev)
}

func (i *Interpreter) Dispatch(ev protocol.ServerEvent) {
	switch e := ev.(type) {
	case protocol.SessionUpdated, protocol.ConversationItemCreated:
		if err := i.send(protocol.NewResponseCreate()); err != nil {
			log.Printf("interview: request response after %s failed: %v", ev.EventType(), err)
		}
	case protocol.OutputAudioStarted:
		i.assembler.Reset()
		i.state.update(func(s *ConnectionState) {
			s.Playing = true
			s.Accepting = false
		})
		if err := i.player.Play(); err != nil {
			log.Printf("interview: start playback failed: %v", err)
		}
	case protocol.OutputAudioStopped:
		i.state.update(func(s *ConnectionState) {
			s.Playing = false
			s.Accepting = true
		})
		if err := i.player.Pause(); err != nil {
			log.Printf("interview: pause playback failed: %v", err)
		}
	case protocol.TranscriptDelta:
		if e.Delta != "" {
			i.assembler.Enqueue(e.Delta)
		}
	case protocol.ServerError:
		log.Printf("interview: realtime error type=%s code=%s transient=%t: %s",
			e.Error.Type, e.Error.Code, reliability.IsTransientRealtimeError(e.Error.Type, e.Error.Code), e.Error.Message)
	case protocol.Unknown:
		i.mu.Lock()
		i.unknown[e.Type]++
		i.mu.Unlock()
	}
}

// SubmitText sends the candidate's answer and records it in the log. The
// interviewer's next turn is requested when the item is acknowledged.
func (i *Interpreter) SubmitText(text string) error {
	if strings.TrimSpace(text) == "" {
		return apperr.Validation("answer text is empty")
	}
	if err := i.send(protocol.NewUserMessage(text)); err != nil {
		return err
	}
	i.log.AppendUser(text)
	return nil
}

// UnknownEvents returns how many events of each unhandled type were seen.
func (i *Interpreter) UnknownEvents() map[protocol.EventType]int {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make(map[protocol.EventType]int, len(i.unknown))
	for k, v := range i.unknown {
		out[k] = v
	}
	return out
}

func (i *Interpreter) send(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := i.sender.SendText(string(raw)); err != nil {
		return apperr.Transport("send event", err)
	}
	return nil
}
