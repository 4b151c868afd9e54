package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	openai "github.com/sashabaranov/go-openai"
)

// Known text-processing actions and the instructions sent for each.
const (
	ActionSummary = "summary"
	ActionMinutes = "minutes"
	ActionTodos   = "todos"
)

var actionPrompts = map[string]string{
	ActionSummary: `Summarize the key points from this transcript in 3-5 bullet points.
Be concise - each point should be one line.
Focus on the most important information.`,

	ActionMinutes: `Convert this transcript into formal meeting minutes with the following sections:
- **Attendees** (if mentioned)
- **Discussion Points**
- **Decisions Made**
- **Action Items**

Be concise and professional. Format for easy reading on a small screen.`,

	ActionTodos: `Extract actionable to-do items from this transcript.
Format as a checklist with [ ] for each item.
Include who is responsible if mentioned.
Only include clear, actionable tasks.`,
}

const systemPrompt = "You are a concise note-taking assistant for a tiny screen device."

var (
	ErrUnknownAction = errors.New("unknown processing action")
	ErrEmptyResponse = errors.New("empty response from model")
)

// KnownAction reports whether action names a supported processing mode.
func KnownAction(action string) bool {
	_, ok := actionPrompts[action]
	return ok
}

// Config contains transcription client configuration.
type Config struct {
	APIKey          string
	TranscribeModel string // defaults to whisper-1
	ProcessModel    string // defaults to gpt-4o-mini
	Language        string
	MaxTokens       int
	MaxConcurrent   int
}

// backend is the slice of the OpenAI client the Client needs; tests swap it.
type backend interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client provides speech-to-text and transcript post-processing over the
// OpenAI API. Safe for concurrent use.
type Client struct {
	config    Config
	api       backend
	semaphore chan struct{}

	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64

	mu sync.RWMutex
}

// NewClient creates a transcription client.
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}
	if config.TranscribeModel == "" {
		config.TranscribeModel = openai.Whisper1
	}
	if config.ProcessModel == "" {
		config.ProcessModel = openai.GPT4oMini
	}
	if config.Language == "" {
		config.Language = "en"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 500
	}
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}

	return &Client{
		config:    config,
		api:       openai.NewClient(config.APIKey),
		semaphore: make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Transcribe sends a WAV container to the speech-to-text model and returns
// the plain transcript.
func (c *Client) Transcribe(ctx context.Context, wav []byte) (string, error) {
	if err := c.acquire(ctx); err != nil {
		return "", err
	}
	defer c.release()

	c.countRequest()

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.config.TranscribeModel,
		FilePath: "session.wav",
		Reader:   bytes.NewReader(wav),
		Format:   openai.AudioResponseFormatText,
		Language: c.config.Language,
	})
	if err != nil {
		c.countFailure()
		return "", fmt.Errorf("transcription request failed: %w", err)
	}

	c.countSuccess()
	return resp.Text, nil
}

// Process runs one of the known actions over a transcript and returns the
// derived text.
func (c *Client) Process(ctx context.Context, action, text string) (string, error) {
	prompt, ok := actionPrompts[action]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	if err := c.acquire(ctx); err != nil {
		return "", err
	}
	defer c.release()

	c.countRequest()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.config.ProcessModel,
		MaxTokens: c.config.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt + "\n\nTranscript:\n" + text},
		},
	})
	if err != nil {
		c.countFailure()
		return "", fmt.Errorf("processing request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		c.countFailure()
		return "", ErrEmptyResponse
	}

	c.countSuccess()
	return resp.Choices[0].Message.Content, nil
}

// ClientStats represents client statistics.
type ClientStats struct {
	TotalRequests   uint64  `json:"total_requests"`
	SuccessRequests uint64  `json:"success_requests"`
	FailedRequests  uint64  `json:"failed_requests"`
	SuccessRate     float64 `json:"success_rate"`
}

// GetStats returns current client statistics.
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
	}
	if c.totalRequests > 0 {
		stats.SuccessRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}
	return stats
}

func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.semaphore <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() {
	<-c.semaphore
}

func (c *Client) countRequest() {
	c.mu.Lock()
	c.totalRequests++
	c.mu.Unlock()
}

func (c *Client) countSuccess() {
	c.mu.Lock()
	c.successRequests++
	c.mu.Unlock()
}

func (c *Client) countFailure() {
	c.mu.Lock()
	c.failedRequests++
	c.mu.Unlock()
}
