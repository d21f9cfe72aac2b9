package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PullRequestInc/go-gpt3"
	"github.com/igolaizola/igotutor/pkg/memory"
)

const (
	DefaultBaseURL     = "https://api.openai.com/v1"
	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 800
	DefaultTopP        = 1
)

// Options tunes a single completion. Empty model, zero max tokens and nil
// sampling parameters are replaced by the client defaults.
type Options struct {
	Model       string
	Temperature *float32
	MaxTokens   int
	TopP        *float32
}

// Float32 returns a pointer to v, for the sampling fields of Options.
func Float32(v float32) *float32 {
	return &v
}

func (o Options) merge(def Options) Options {
	if o.Model == "" {
		o.Model = def.Model
	}
	if o.Temperature == nil {
		o.Temperature = def.Temperature
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = def.MaxTokens
	}
	if o.TopP == nil {
		o.TopP = def.TopP
	}
	return o
}

// APIError is returned when the completion API answers with a non-success status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai: api error (status %d): %s", e.StatusCode, e.Body)
}

type Client struct {
	key        string
	baseURL    string
	httpClient *http.Client
	defaults   Options
}

type Option func(*Client)

// WithBaseURL points the client to an OpenAI compatible server.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets the http client used for requests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithTimeout sets the timeout of the default http client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithDefaults overrides the default completion options.
func WithDefaults(o Options) Option {
	return func(c *Client) {
		c.defaults = o.merge(c.defaults)
	}
}

// New returns a new Client.
func New(key string, opts ...Option) *Client {
	c := &Client{
		key:        key,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
		defaults: Options{
			Model:       DefaultModel,
			Temperature: Float32(DefaultTemperature),
			MaxTokens:   DefaultMaxTokens,
			TopP:        Float32(DefaultTopP),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the default model.
func (c *Client) Model() string {
	return c.defaults.Model
}

type chatRequest struct {
	Model       string                              `json:"model"`
	Messages    []gpt3.ChatCompletionRequestMessage `json:"messages"`
	Temperature float32                             `json:"temperature"`
	MaxTokens   int                                 `json:"max_tokens,omitempty"`
	TopP        float32                             `json:"top_p"`
	Stream      bool                                `json:"stream"`
}

// Completion is the result of a buffered completion.
type Completion struct {
	Text        string
	Raw         json.RawMessage
	TotalTokens int
}

// Complete sends the messages and waits for the whole reply.
func (c *Client) Complete(ctx context.Context, msgs []memory.Message, opts Options) (*Completion, error) {
	resp, err := c.do(ctx, msgs, opts, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: couldn't read response: %w", err)
	}
	var completion gpt3.ChatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, fmt.Errorf("openai: couldn't decode response: %w", err)
	}
	text := "No response"
	if len(completion.Choices) > 0 && completion.Choices[0].Message.Content != "" {
		text = completion.Choices[0].Message.Content
	}
	return &Completion{
		Text:        text,
		Raw:         json.RawMessage(body),
		TotalTokens: completion.Usage.TotalTokens,
	}, nil
}

// Stream sends the messages asking for an incremental reply. The returned
// stream must be closed by the caller.
func (c *Client) Stream(ctx context.Context, msgs []memory.Message, opts Options) (*Stream, error) {
	resp, err := c.do(ctx, msgs, opts, true)
	if err != nil {
		return nil, err
	}
	return NewStream(resp.Body), nil
}

func (c *Client) do(ctx context.Context, msgs []memory.Message, opts Options, stream bool) (*http.Response, error) {
	opts = opts.merge(c.defaults)
	js, err := json.Marshal(&chatRequest{
		Model:       opts.Model,
		Messages:    toRequest(msgs),
		Temperature: deref(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
		TopP:        deref(opts.TopP),
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: couldn't marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(js))
	if err != nil {
		return nil, fmt.Errorf("openai: couldn't create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.key)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai: couldn't send request: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}
	return resp, nil
}

func deref(v *float32) float32 {
	if v == nil {
		return 0
	}
	return *v
}

func toRequest(input []memory.Message) []gpt3.ChatCompletionRequestMessage {
	output := make([]gpt3.ChatCompletionRequestMessage, 0, len(input))
	for _, m := range input {
		output = append(output, gpt3.ChatCompletionRequestMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return output
}

// Stream reads text chunks from a server-sent events completion body.
type Stream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	done   bool
}

// NewStream wraps a completion event stream body. The body may be delivered
// in fragments of any size; events are reassembled line by line before
// decoding so multi-byte characters are never split.
func NewStream(body io.ReadCloser) *Stream {
	return &Stream{
		body:   body,
		reader: bufio.NewReader(body),
	}
}

// Recv returns the next text chunk, or io.EOF once the stream is over.
func (s *Stream) Recv() (string, error) {
	for !s.done {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return "", fmt.Errorf("openai: couldn't read stream: %w", err)
			}
			s.done = true
		}
		chunk, end := parseLine(line)
		if end {
			s.done = true
			break
		}
		if chunk != "" {
			return chunk, nil
		}
	}
	return "", io.EOF
}

// Close releases the underlying body.
func (s *Stream) Close() error {
	return s.body.Close()
}

func parseLine(line string) (chunk string, end bool) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" || strings.HasPrefix(line, ":") {
		return "", false
	}
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "[DONE]" {
		return "", true
	}
	var resp gpt3.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		return "", false
	}
	if len(resp.Choices) == 0 {
		return "", false
	}
	return resp.Choices[0].Delta.Content, false
}
