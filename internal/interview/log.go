package interview

import "sync"

type Speaker string

const (
	SpeakerUser        Speaker = "user"
	SpeakerInterviewer Speaker = "interviewer"
)

type Message struct {
	Text    string  `json:"text"`
	Speaker Speaker `json:"speaker"`
}

// ConversationLog is the ordered transcript of one interview. Only the last
// interviewer message grows while a response is streaming.
type ConversationLog struct {
	mu       sync.Mutex
	messages []Message
	onChange func(Message)
}

func NewConversationLog() *ConversationLog {
	return &ConversationLog{}
}

// OnChange registers fn to be called with the affected message after every
// append or extension. fn runs with the log unlocked; interviewer fragments
// are reported from the transcript assembler's goroutine.
func (l *ConversationLog) OnChange(fn func(Message)) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

func (l *ConversationLog) AppendUser(text string) {
	l.append(Message{Text: text, Speaker: SpeakerUser})
}

func (l *ConversationLog) append(msg Message) {
	l.mu.Lock()
	l.messages = append(l.messages, msg)
	fn := l.onChange
	l.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

// ExtendInterviewer appends fragment to the trailing interviewer message or
// starts a new one when the log is empty or ends with a user message.
func (l *ConversationLog) ExtendInterviewer(fragment string) {
	l.mu.Lock()
	n := len(l.messages)
	if n > 0 && l.messages[n-1].Speaker == SpeakerInterviewer {
		l.messages[n-1].Text += fragment
	} else {
		l.messages = append(l.messages, Message{Text: fragment, Speaker: SpeakerInterviewer})
		n++
	}
	msg := l.messages[n-1]
	fn := l.onChange
	l.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

// Messages returns a snapshot.
func (l *ConversationLog) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *ConversationLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

func (l *ConversationLog) Last() (Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.messages) == 0 {
		return Message{}, false
	}
	return l.messages[len(l.messages)-1], true
}
