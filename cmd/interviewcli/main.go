// Command interviewcli runs a practice interview against a MockWise server
// from the terminal. Typed lines are submitted as answers; pre-recorded audio
// files can stand in for spoken answers.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mitchellbreust/mockwise/internal/config"
	"github.com/mitchellbreust/mockwise/internal/credential"
	"github.com/mitchellbreust/mockwise/internal/interview"
	"github.com/mitchellbreust/mockwise/internal/session"
	"github.com/mitchellbreust/mockwise/internal/signaling"
	"github.com/mitchellbreust/mockwise/internal/transcribe"
	"github.com/mitchellbreust/mockwise/internal/transport"
)

type options struct {
	serverURL   string
	resume      string
	jobInfo     string
	transport   string
	answers     []string
	pcmRate     int
	pacing      time.Duration
	timeout     time.Duration
	stunURLs    []string
	connectWait time.Duration
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "interviewcli: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "interviewcli: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var (
		opts      options
		resumeRaw string
		jobRaw    string
		answerRaw string
		stunRaw   string
	)
	fs := flag.NewFlagSet("interviewcli", flag.ContinueOnError)
	fs.StringVar(&opts.serverURL, "server", "http://127.0.0.1:8080", "MockWise server base URL")
	fs.StringVar(&resumeRaw, "resume", "", "resume text, or @path to read it from a file")
	fs.StringVar(&jobRaw, "job", "", "job description text, or @path to read it from a file")
	fs.StringVar(&opts.transport, "transport", "webrtc", "realtime transport: webrtc|websocket")
	fs.StringVar(&answerRaw, "answer-audio", "", "comma separated WAV (or raw PCM16) files used as spoken answers, in order")
	fs.IntVar(&opts.pcmRate, "pcm-rate", 16000, "sample rate of raw PCM16 answer files")
	fs.DurationVar(&opts.pacing, "pacing", config.DefaultTranscriptPacing, "delay between transcript fragments")
	fs.DurationVar(&opts.timeout, "timeout", 20*time.Second, "timeout for each server request")
	fs.DurationVar(&opts.connectWait, "connect-wait", 10*time.Second, "how long to wait for the realtime channel to open")
	fs.StringVar(&stunRaw, "stun", config.DefaultSTUNURL, "comma separated STUN server URLs")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.serverURL = strings.TrimRight(strings.TrimSpace(opts.serverURL), "/")
	if opts.serverURL == "" {
		return options{}, fmt.Errorf("server is required")
	}
	var err error
	if opts.resume, err = readText(resumeRaw); err != nil {
		return options{}, fmt.Errorf("resume: %w", err)
	}
	if opts.jobInfo, err = readText(jobRaw); err != nil {
		return options{}, fmt.Errorf("job: %w", err)
	}
	if opts.resume == "" || opts.jobInfo == "" {
		return options{}, fmt.Errorf("resume and job are required")
	}
	opts.transport = strings.ToLower(strings.TrimSpace(opts.transport))
	switch opts.transport {
	case "webrtc", "websocket":
	default:
		return options{}, fmt.Errorf("invalid transport %q (expected webrtc|websocket)", opts.transport)
	}
	opts.answers = splitList(answerRaw)
	opts.stunURLs = splitList(stunRaw)
	if opts.transport == "webrtc" && len(opts.stunURLs) == 0 {
		return options{}, fmt.Errorf("webrtc transport needs at least one stun url")
	}
	if opts.pacing < 0 {
		return options{}, fmt.Errorf("pacing must be >= 0")
	}
	return opts, nil
}

// readText returns raw trimmed, or the contents of the file when raw starts
// with "@".
func readText(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "@") {
		return raw, nil
	}
	data, err := os.ReadFile(strings.TrimPrefix(raw, "@"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func run(ctx context.Context, opts options, stdin io.Reader, stdout io.Writer) error {
	stdout = &lockedWriter{w: stdout}
	api := &serverClient{baseURL: opts.serverURL, http: &http.Client{Timeout: opts.timeout}}

	token, err := api.createSession(ctx, opts.resume, opts.jobInfo)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	cred, err := api.initCredential(ctx, token)
	if err != nil {
		return fmt.Errorf("init realtime credential: %w", err)
	}

	cfg := interview.NewControllerConfig(cred, opts.resume, opts.jobInfo, opts.pacing)
	printer := newTranscriptPrinter(stdout)
	cfg.Player = &consolePlayer{printer: printer}
	cfg.Recorder = newFileRecorder(opts.answers, opts.pcmRate)
	cfg.Transcriber = transcribe.NewClient(opts.serverURL, "audio/wav", opts.timeout, nil)

	ctrl := interview.NewController(cfg)
	ctrl.Log().OnChange(printer.onChange)
	defer ctrl.Close()

	var dial interview.DialFunc
	switch opts.transport {
	case "websocket":
		dial = interview.WebSocket(transport.Config{HandshakeTimeout: opts.timeout}, cred)
	default:
		neg := signaling.NewNegotiator(signaling.Config{
			ICEURLs: opts.stunURLs,
			Timeout: opts.timeout,
			NewPeer: signaling.NewPionPeer,
		})
		dial = interview.WebRTC(neg, cred, &trackDrain{out: stdout})
	}
	if err := ctrl.Connect(ctx, dial); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := waitConnected(ctx, ctrl, opts.connectWait); err != nil {
		return err
	}
	if ctrl.CheckMicrophone(ctx) == interview.MicrophoneGranted {
		fmt.Fprintln(stdout, "commands: /record, /stop, /quit (anything else is sent as a typed answer)")
	} else {
		fmt.Fprintln(stdout, "commands: /quit (no answer audio, typed answers only)")
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(stdin)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ctrl.Ended():
			printer.flush()
			return ctrl.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, ctrl, strings.TrimSpace(line), stdout); quit {
				return nil
			}
		}
	}
}

func waitConnected(ctx context.Context, ctrl *interview.Controller, wait time.Duration) error {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for !ctrl.State().Connected {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ctrl.Ended():
			return fmt.Errorf("realtime channel closed before opening: %v", ctrl.Err())
		case <-deadline.C:
			return fmt.Errorf("realtime channel did not open within %s", wait)
		case <-tick.C:
		}
	}
	return nil
}

func handleLine(ctx context.Context, ctrl *interview.Controller, line string, out io.Writer) bool {
	switch line {
	case "":
		return false
	case "/quit":
		return true
	case "/record":
		if err := ctrl.StartRecording(ctx); err != nil {
			fmt.Fprintf(out, "! cannot record: %v\n", err)
			return false
		}
		fmt.Fprintln(out, "* recording, /stop to send")
	case "/stop":
		if _, err := ctrl.StopRecording(ctx); err != nil {
			fmt.Fprintf(out, "! answer not sent: %v\n", err)
		}
	default:
		if err := ctrl.SubmitText(ctx, line); err != nil {
			if errors.Is(err, interview.ErrNotReady) {
				fmt.Fprintln(out, "! wait for the interviewer to finish")
				return false
			}
			fmt.Fprintf(out, "! answer not sent: %v\n", err)
		}
	}
	return false
}

type serverClient struct {
	baseURL string
	http    *http.Client
}

type serverError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (c *serverClient) createSession(ctx context.Context, resume, jobInfo string) (string, error) {
	payload, err := json.Marshal(session.CreateRequest{Resume: resume, JobInfo: jobInfo})
	if err != nil {
		return "", err
	}
	var out session.CreateResponse
	if err := c.post(ctx, "/session", "", bytes.NewReader(payload), &out); err != nil {
		return "", err
	}
	if out.SessionToken == "" {
		return "", fmt.Errorf("missing sessionToken in response")
	}
	return out.SessionToken, nil
}

func (c *serverClient) initCredential(ctx context.Context, token string) (credential.Credential, error) {
	var out credential.Credential
	if err := c.post(ctx, "/webrtc/init", token, nil, &out); err != nil {
		return credential.Credential{}, err
	}
	if out.EphemeralToken == "" {
		return credential.Credential{}, fmt.Errorf("missing ephemeralToken in response")
	}
	return out, nil
}

func (c *serverClient) post(ctx context.Context, path, token string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		var se serverError
		if json.Unmarshal(raw, &se) == nil && se.Error != "" {
			if se.Details != "" {
				return fmt.Errorf("HTTP %d: %s: %s", res.StatusCode, se.Error, se.Details)
			}
			return fmt.Errorf("HTTP %d: %s", res.StatusCode, se.Error)
		}
		return fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.Unmarshal(raw, out)
}
