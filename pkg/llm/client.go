// Package llm is the platform's single point of contact with the internal
// LLM proxy. Every agent, thinking tool, and the goal planner call through
// this client rather than talking to a model provider directly, so retry
// policy, error taxonomy, and token accounting logging live in one place.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
)

// Role is the speaker of a Message, mirroring the OpenAI/Anthropic chat
// message shape the rest of the ecosystem expects.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat-style completion request.
type Message struct {
	Role    Role
	Content string
}

// Request is a completion request. Model falls back to the client's default
// when empty.
type Request struct {
	Messages    []Message
	Model       string
	Temperature float64
	MaxTokens   int
}

// TokenUsage reports the tokens billed for one completion call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the result of a completion call.
type Response struct {
	Content    string
	Model      string
	StopReason string
	Usage      TokenUsage
}

// messagesClient captures the subset of the Anthropic SDK used here so
// tests can substitute a fake without standing up an HTTP server.
type messagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Client wraps the LLM proxy with retry/backoff and structured logging.
// The proxy (reachable at BaseURL) presents an Anthropic-compatible
// completions surface regardless of which upstream model actually serves
// the request, so model routing and fallback live entirely in proxy
// configuration, never in application code.
type Client struct {
	msg          messagesClient
	httpClient   *http.Client
	baseURL      string
	defaultModel string
}

// Config configures a new Client.
type Config struct {
	// BaseURL is the internal proxy's base URL (spec's single
	// "litellm_base_url"). The proxy performs upstream provider auth, so no
	// real per-provider API key is required here.
	BaseURL string
	// DefaultModel is used when a Request does not specify one.
	DefaultModel string
	// HTTPClient is used for the embeddings call, which goes directly over
	// HTTP since the embeddings surface has no equivalent in
	// anthropic-sdk-go. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// NewClient constructs a Client pointed at the internal proxy.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	sdkClient := sdk.NewClient(
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey("proxy-managed"),
		option.WithHTTPClient(httpClient),
	)
	return &Client{
		msg:          &sdkClient.Messages,
		httpClient:   httpClient,
		baseURL:      cfg.BaseURL,
		defaultModel: cfg.DefaultModel,
	}
}

// retrySchedule is the 1s-initial, 10s-cap, factor-1, max-3-attempt backoff.
// Multiplier 1 keeps the interval at InitialInterval, so every wait between
// attempts is about 1s (jittered by the library's default randomization);
// the 10s MaxInterval cap is never reached.
func retrySchedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 10 * time.Second
	b.Multiplier = 1
	b.MaxElapsedTime = 0
	return b
}

const maxAttempts = 3

// Complete sends a chat completion request, retrying transient failures up
// to maxAttempts times on the documented schedule.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	params, err := buildParams(req, model)
	if err != nil {
		return nil, &Error{Err: err}
	}

	slog.Debug("llm.completion_request", "model", model, "message_count", len(req.Messages))

	var resp *Response
	attempt := 0
	operation := func() (*sdk.Message, error) {
		attempt++
		msg, err := c.msg.New(ctx, *params)
		if err != nil {
			classified := classifyError(err)
			if !isTransient(classified) {
				return nil, backoff.Permanent(classified)
			}
			return nil, classified
		}
		return msg, nil
	}

	msg, err := backoff.RetryWithData(operation, backoff.WithMaxRetries(retrySchedule(), maxAttempts-1))
	if err != nil {
		slog.Warn("llm.completion_failed", "model", model, "attempts", attempt, "error", err)
		return nil, err
	}

	resp = translateResponse(msg, model)
	slog.Info("llm.completion_done",
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"total_tokens", resp.Usage.TotalTokens,
	)
	return resp, nil
}

// ExtractText returns the assistant content from a Response, or "" if empty
// — callers should never have to nil-check or recover from a panic to read
// a completion result.
func ExtractText(resp *Response) string {
	if resp == nil {
		return ""
	}
	return resp.Content
}

func buildParams(req Request, model string) (*sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("llm: at least one message is required")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	var conversation []sdk.MessageParam
	var system []sdk.TextBlockParam
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case RoleUser:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			return nil, fmt.Errorf("llm: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, errors.New("llm: at least one user/assistant message is required")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  conversation,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(req.Temperature)
	}
	return &params, nil
}

func translateResponse(msg *sdk.Message, requestedModel string) *Response {
	resp := &Response{Model: requestedModel, StopReason: string(msg.StopReason)}
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			resp.Content += block.Text
		}
	}
	if string(msg.Model) != "" {
		resp.Model = string(msg.Model)
	}
	resp.Usage = TokenUsage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
		TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	return resp
}

// classifyError maps a raw SDK/transport error to the typed taxonomy.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return err
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return &RateLimitError{Err: err}
		case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
			return &UnavailableError{Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &ConnectionError{Err: err}
	}
	return &Error{Err: err}
}

// Embed creates embeddings for the given texts. Anthropic's Messages API
// has no embeddings endpoint, so this calls the proxy's OpenAI-compatible
// /embeddings route directly over HTTP instead of going through
// anthropic-sdk-go.
func (c *Client) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody, err := json.Marshal(map[string]any{"model": model, "input": texts})
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("marshal embed request: %w", err)}
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}

	operation := func() (struct{}, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(reqBody))
		if err != nil {
			return struct{}{}, backoff.Permanent(&Error{Err: err})
		}
		httpReq.Header.Set("Content-Type", "application/json")

		httpResp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return struct{}{}, &ConnectionError{Err: err}
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(httpResp.Body)
		if err != nil {
			return struct{}{}, &Error{Err: fmt.Errorf("read embed response: %w", err)}
		}

		switch httpResp.StatusCode {
		case http.StatusTooManyRequests:
			return struct{}{}, &RateLimitError{Err: fmt.Errorf("status %d: %s", httpResp.StatusCode, body)}
		case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
			return struct{}{}, &UnavailableError{Err: fmt.Errorf("status %d: %s", httpResp.StatusCode, body)}
		}
		if httpResp.StatusCode >= 400 {
			return struct{}{}, backoff.Permanent(&Error{Err: fmt.Errorf("status %d: %s", httpResp.StatusCode, body)})
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return struct{}{}, backoff.Permanent(&Error{Err: fmt.Errorf("unmarshal embed response: %w", err)})
		}
		return struct{}{}, nil
	}

	if _, err := backoff.RetryWithData(operation, backoff.WithMaxRetries(retrySchedule(), maxAttempts-1)); err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(result.Data))
	for i, d := range result.Data {
		embeddings[i] = d.Embedding
	}
	return embeddings, nil
}
