// Package llm implements the two collaborators of the refinement loop on top
// of an OpenAI-compatible chat completions endpoint. The Architect generates
// and refines artifacts; the Judge evaluates them and parses the verdict.
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
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-promptloop/internal/configuration"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a single completion call.
type ChatRequest struct {
	Messages    []Message
	Temperature float64
}

// Client calls the chat completions endpoint. Calls are rate limited on the
// client side and bounded by the configured timeout. Safe for concurrent use.
type Client struct {
	http    *http.Client
	cfg     configuration.LLMConfig
	limiter *rate.Limiter
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient returns a client for cfg.
func NewClient(cfg configuration.LLMConfig, opts ...ClientOption) *Client {
	c := &Client{
		http:    &http.Client{},
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1)),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "llm_client", "model", cfg.Model)
	return c
}

// Complete sends req and returns the trimmed content of the first choice.
func (c *Client) Complete(ctx context.Context, req ChatRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return "", c.transportError(ctx, err)
	}

	httpReq, err := c.build(ctx, req)
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	content, err := parseResponse(resp)
	c.logger.DebugContext(ctx, "chat completion",
		"status", resp.StatusCode,
		"latency", time.Since(start),
		"error", err)
	return content, err
}

func (c *Client) build(ctx context.Context, req ChatRequest) (*http.Request, error) {
	body := map[string]any{
		"model":       c.cfg.Model,
		"messages":    req.Messages,
		"max_tokens":  c.cfg.MaxTokens,
		"temperature": req.Temperature,
		"stream":      false,
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.Endpoint, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	return httpReq, nil
}

// transportError classifies failures that happened before a response
// arrived. Caller cancellation is returned unwrapped so it is never retried.
func (c *Client) transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
		return err
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &ProviderError{Type: ErrorTypeTimeout, Message: "request exceeded " + c.cfg.Timeout.String(), Cause: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &ProviderError{Type: ErrorTypeTimeout, Message: netErr.Error(), Cause: err}
	default:
		return &ProviderError{Type: ErrorTypeNetwork, Message: err.Error(), Cause: err}
	}
}

func parseResponse(resp *http.Response) (string, error) {
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", parseErrorResponse(resp, body)
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(out.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

func parseErrorResponse(resp *http.Response, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
	}
	perr := &ProviderError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		perr.Message = errResp.Error.Message
		code := errResp.Error.Type
		if s, ok := errResp.Error.Code.(string); ok && s != "" {
			code = s
		}
		perr.Code = code
	} else {
		perr.Message = strings.TrimSpace(string(body))
		if perr.Message == "" {
			perr.Message = http.StatusText(resp.StatusCode)
		}
	}
	perr.Type = classifyErrorType(resp.StatusCode, perr.Code)

	if s := resp.Header.Get("Retry-After"); s != "" {
		if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
			perr.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return perr
}
