package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mitchellbreust/mockwise/internal/audio"
	"github.com/mitchellbreust/mockwise/internal/interview"
	"github.com/mitchellbreust/mockwise/internal/signaling"
)

var errNoAnswers = errors.New("no answer audio files configured")

// fileRecorder plays back pre-recorded answer files in order, one per
// recording.
type fileRecorder struct {
	paths   []string
	pcmRate int

	mu      sync.Mutex
	next    int
	current []byte
	active  bool
}

func newFileRecorder(paths []string, pcmRate int) *fileRecorder {
	return &fileRecorder{paths: paths, pcmRate: pcmRate}
}

func (r *fileRecorder) Check(_ context.Context) error {
	if len(r.paths) == 0 {
		return errNoAnswers
	}
	for _, p := range r.paths {
		if _, err := os.Stat(p); err != nil {
			return err
		}
	}
	return nil
}

func (r *fileRecorder) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return interview.ErrRecording
	}
	if r.next >= len(r.paths) {
		return fmt.Errorf("all %d answer files have been used", len(r.paths))
	}
	data, err := loadAnswer(r.paths[r.next], r.pcmRate)
	if err != nil {
		return err
	}
	r.next++
	r.current = data
	r.active = true
	return nil
}

func (r *fileRecorder) Stop(_ context.Context) (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return nil, interview.ErrNotRecording
	}
	data := r.current
	r.current = nil
	r.active = false
	return io.NopCloser(bytes.NewReader(data)), nil
}

// loadAnswer returns a WAV container for path. Files that are not WAV are
// treated as raw mono PCM16LE at pcmRate.
func loadAnswer(path string, pcmRate int) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pcm, rate, err := audio.DecodeWAV(data)
	switch {
	case errors.Is(err, audio.ErrNotWAV):
		if len(data) < 2 {
			return nil, fmt.Errorf("%s: no audio", path)
		}
		return audio.EncodeWAV(data, pcmRate), nil
	case err != nil:
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return audio.EncodeWAV(pcm, rate), nil
}

// consolePlayer stands in for the speaker: it reports when the interviewer
// starts and stops talking.
type consolePlayer struct {
	printer *transcriptPrinter
}

func (p *consolePlayer) Play() error {
	p.printer.note("* interviewer speaking")
	return nil
}

func (p *consolePlayer) Pause() error {
	p.printer.note("* your turn")
	return nil
}

// trackDrain reads remote audio so the peer connection keeps flowing. The
// samples are discarded.
type trackDrain struct {
	out   io.Writer
	bytes atomic.Int64
}

func (d *trackDrain) Attach(track signaling.AudioTrack) {
	fmt.Fprintf(d.out, "* receiving interviewer audio (%s)\n", track.Codec())
	go func() {
		buf := make([]byte, 1500)
		for {
			n, err := track.Read(buf)
			d.bytes.Add(int64(n))
			if err != nil {
				return
			}
		}
	}()
}

// transcriptPrinter writes conversation log changes incrementally, so a
// streaming interviewer message prints as it grows.
type transcriptPrinter struct {
	out io.Writer

	mu      sync.Mutex
	speaker interview.Speaker
	printed string
	open    bool
}

func newTranscriptPrinter(out io.Writer) *transcriptPrinter {
	return &transcriptPrinter{out: out}
}

func (p *transcriptPrinter) onChange(msg interview.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	growing := msg.Speaker == interview.SpeakerInterviewer && p.speaker == interview.SpeakerInterviewer
	if p.open && growing && strings.HasPrefix(msg.Text, p.printed) {
		fmt.Fprint(p.out, msg.Text[len(p.printed):])
		p.printed = msg.Text
		return
	}
	if p.open {
		fmt.Fprintln(p.out)
	}
	label := "interviewer"
	if msg.Speaker == interview.SpeakerUser {
		label = "you"
	}
	fmt.Fprintf(p.out, "%s: %s", label, msg.Text)
	p.speaker = msg.Speaker
	p.printed = msg.Text
	p.open = true
}

// note prints a status line between transcript lines. A message that keeps
// growing afterwards is printed again in full.
func (p *transcriptPrinter) note(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		fmt.Fprintln(p.out)
		p.open = false
	}
	fmt.Fprintln(p.out, line)
}

func (p *transcriptPrinter) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.open {
		fmt.Fprintln(p.out)
		p.open = false
	}
}

// lockedWriter serializes output from the event loop, the transcript
// assembler and the input loop.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(b)
}
