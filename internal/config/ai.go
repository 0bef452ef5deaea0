package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultRealtimeModel    = "gpt-4o-realtime-preview-2024-12-17"
	DefaultRealtimeBaseURL  = "https://api.openai.com/v1/realtime"
	DefaultRealtimeVoice    = "alloy"
	DefaultSTUNURL          = "stun:stun.l.google.com:19302"
	DefaultSessionTokenTTL  = 5 * time.Minute
	DefaultTranscriptPacing = 250 * time.Millisecond
)

// DefaultBaseInstructions is the interviewer persona sent to the realtime agent.
const DefaultBaseInstructions = `You are a technical interviewer conducting a job interview. Follow these guidelines:
1. Ask relevant technical questions based on the candidate's background
2. Start with easier questions and gradually increase difficulty
3. Ask follow-up questions when answers are incomplete
4. Be professional but friendly
5. Focus on practical problem-solving abilities
6. Avoid theoretical questions unless specifically relevant
7. Give the candidate time to think and respond
8. One question at a time
Do not break character or acknowledge that you are an AI.`

// AIConfig is the process-wide realtime agent configuration. It is built once
// at startup and never mutated afterwards.
type AIConfig struct {
	Model            string
	BaseURL          string
	Voice            string
	BaseInstructions string
}

func (c AIConfig) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("REALTIME_MODEL must not be empty")
	}
	if strings.TrimSpace(c.Voice) == "" {
		return fmt.Errorf("REALTIME_VOICE must not be empty")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("REALTIME_BASE_URL parse error: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("REALTIME_BASE_URL must be http(s), got %q", c.BaseURL)
	}
	return nil
}

// ComposeInstructions substitutes the candidate context into the persona
// template. Resume and job text are inserted verbatim.
func (c AIConfig) ComposeInstructions(resume, jobInfo string) string {
	base := c.BaseInstructions
	if strings.TrimSpace(base) == "" {
		base = DefaultBaseInstructions
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nCandidate's Resume:\n")
	b.WriteString(resume)
	b.WriteString("\n\nJob Description:\n")
	b.WriteString(jobInfo)
	b.WriteString(`

Use this context to:
1. Focus questions on skills mentioned in both the resume and job description
2. Validate the candidate's claimed experience
3. Assess their suitability for the specific role
4. Identify any gaps between their experience and job requirements

Format: Natural conversational language, no prefixes or labels.`)
	return b.String()
}
