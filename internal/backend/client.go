// Package backend is the client side of the chat request boundary.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/kiki/internal/chat"
	"github.com/harunnryd/kiki/internal/config"
	kerrors "github.com/harunnryd/kiki/internal/errors"
	"github.com/harunnryd/kiki/internal/logger"
)

const maxBodyBytes = 4 << 20

// Request is the body posted to the chat endpoint.
type Request struct {
	Messages    []chat.Message `json:"messages"`
	MaxTokens   int            `json:"maxTokens"`
	Temperature float64        `json:"temperature"`
}

// Response is the success body of the chat endpoint.
type Response struct {
	Output     string `json:"output,omitempty"`
	Content    string `json:"content,omitempty"`
	IsFallback bool   `json:"isFallback,omitempty"`
}

// Text returns output, falling back to content.
func (r Response) Text() string {
	if r.Output != "" {
		return r.Output
	}
	return r.Content
}

// Chatter is what the orchestrator needs from the backend.
type Chatter interface {
	Chat(ctx context.Context, messages []chat.Message) (*Response, error)
}

type Options struct {
	URL         string
	MaxTokens   int
	Temperature float64
	HTTPClient  *http.Client
}

type Client struct {
	url         string
	maxTokens   int
	temperature float64
	http        *http.Client
}

func NewClient(opts Options) (*Client, error) {
	url := strings.TrimSpace(opts.URL)
	if url == "" {
		return nil, kerrors.InvalidInput("backend url is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		url:         url,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		http:        httpClient,
	}, nil
}

// NewClientFromConfig builds a client from the backend config section.
// A zero timeout leaves requests unbounded.
func NewClientFromConfig(cfg config.BackendConfig) (*Client, error) {
	timeout, err := config.DurationOrDefault(cfg.Timeout, config.DefaultBackendTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse backend.timeout: %w", err)
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultBackendMaxTokens
	}

	return NewClient(Options{
		URL:         cfg.URL,
		MaxTokens:   maxTokens,
		Temperature: cfg.Temperature,
		HTTPClient:  &http.Client{Timeout: timeout},
	})
}

// Chat posts the full transcript and decodes the reply. Failures carry one of
// ErrServer, ErrNetwork, ErrMalformedResponse or ErrStatus.
func (c *Client) Chat(ctx context.Context, messages []chat.Message) (*Response, error) {
	if messages == nil {
		messages = []chat.Message{}
	}
	body, err := json.Marshal(Request{
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return nil, kerrors.WrapWithCategory(err, "encode chat request", kerrors.ErrInternal)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, kerrors.WrapWithCategory(err, "build chat request", kerrors.ErrInternal)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, kerrors.WrapWithCategory(err, "chat request", kerrors.ErrNetwork)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, kerrors.WrapWithCategory(err, "read chat response", kerrors.ErrNetwork)
	}

	slog.Debug("Chat backend responded",
		append(logger.Attrs(ctx), "status", resp.StatusCode, "duration", time.Since(start), "bytes", len(raw))...)

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("chat backend returned %s: %w", resp.Status, kerrors.ErrServer)
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return nil, fmt.Errorf("chat backend returned %s: %w", resp.Status, kerrors.ErrStatus)
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, kerrors.WrapWithCategory(err, "decode chat response", kerrors.ErrMalformedResponse)
	}
	return &out, nil
}
