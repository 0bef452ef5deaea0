package interview

import "sync"

// Microphone is the outcome of the audio capture permission request.
type Microphone string

const (
	MicrophoneUnknown Microphone = "unknown"
	MicrophoneGranted Microphone = "granted"
	MicrophoneDenied  Microphone = "denied"
)

// ConnectionState is the session-scoped view of the realtime connection.
type ConnectionState struct {
	Connected bool `json:"connected"`
	// Accepting is false while the interviewer is speaking.
	Accepting  bool       `json:"accepting"`
	Playing    bool       `json:"playing"`
	Microphone Microphone `json:"microphone"`
	// LiveTranscript is the display text of the response currently streaming.
	LiveTranscript string `json:"liveTranscript"`
}

// Ready reports whether new candidate input is accepted.
func (s ConnectionState) Ready() bool {
	return s.Connected && s.Accepting
}

type stateBox struct {
	mu    sync.Mutex
	state ConnectionState
}

func newStateBox() *stateBox {
	return &stateBox{state: ConnectionState{Microphone: MicrophoneUnknown}}
}

func (b *stateBox) get() ConnectionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *stateBox) update(fn func(*ConnectionState)) ConnectionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.state)
	return b.state
}
