package interview

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Assembler drains transcript fragments into the conversation log one at a
// time with a fixed delay between fragments. At most one drain loop applies
// fragments at any moment.
type Assembler struct {
	log    *ConversationLog
	pacing time.Duration

	// applyMu is held while a fragment reaches the log, including the log's
	// change callback. It is taken before mu. The callback may read the
	// assembler but must not Reset or Close it.
	applyMu sync.Mutex
	mu      sync.Mutex
	queue   []string
	running bool
	gen     uint64
	stop    chan struct{}
	idle    chan struct{}
	live    strings.Builder
	closed  bool
	started int

	wg sync.WaitGroup
}

func NewAssembler(log *ConversationLog, pacing time.Duration) *Assembler {
	if pacing < 0 {
		pacing = 0
	}
	idle := make(chan struct{})
	close(idle)
	return &Assembler{log: log, pacing: pacing, idle: idle}
}

// Enqueue appends fragment and starts a drain loop unless one is running.
// Empty fragments are ignored.
func (a *Assembler) Enqueue(fragment string) {
	if fragment == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.queue = append(a.queue, fragment)
	if a.running {
		return
	}
	a.running = true
	a.started++
	a.stop = make(chan struct{})
	a.idle = make(chan struct{})
	a.wg.Add(1)
	go a.drain(a.gen, a.stop)
}

func (a *Assembler) drain(gen uint64, stop <-chan struct{}) {
	defer a.wg.Done()
	for {
		a.applyMu.Lock()
		a.mu.Lock()
		if a.gen != gen {
			a.mu.Unlock()
			a.applyMu.Unlock()
			return
		}
		if len(a.queue) == 0 {
			a.running = false
			close(a.idle)
			a.mu.Unlock()
			a.applyMu.Unlock()
			return
		}
		fragment := a.queue[0]
		a.queue[0] = ""
		a.queue = a.queue[1:]
		a.live.WriteString(fragment)
		a.mu.Unlock()
		a.log.ExtendInterviewer(fragment)
		a.applyMu.Unlock()

		if a.pacing == 0 {
			select {
			case <-stop:
				return
			default:
			}
			continue
		}
		timer := time.NewTimer(a.pacing)
		select {
		case <-timer.C:
		case <-stop:
			timer.Stop()
			return
		}
	}
}

// Reset drops pending fragments and the live transcript text, and stops the
// in-flight loop before it applies anything else.
func (a *Assembler) Reset() {
	a.applyMu.Lock()
	defer a.applyMu.Unlock()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
}

func (a *Assembler) resetLocked() {
	a.queue = nil
	a.live.Reset()
	a.gen++
	if a.running {
		a.running = false
		close(a.stop)
		close(a.idle)
	}
}

// Live returns the text applied since the last Reset.
func (a *Assembler) Live() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live.String()
}

func (a *Assembler) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

func (a *Assembler) Idle() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.running
}

// Wait blocks until the current drain loop finishes or ctx is done.
func (a *Assembler) Wait(ctx context.Context) error {
	a.mu.Lock()
	idle := a.idle
	a.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops draining and waits for the loop goroutine to exit. Fragments
// enqueued afterwards are dropped.
func (a *Assembler) Close() {
	a.applyMu.Lock()
	a.mu.Lock()
	a.closed = true
	a.resetLocked()
	a.mu.Unlock()
	a.applyMu.Unlock()
	a.wg.Wait()
}
