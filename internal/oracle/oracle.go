// Package oracle abstracts the generative model behind a minimal
// completion interface so the generation and repair loops never depend
// on a concrete SDK.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// ErrEmptyCompletion marks a model response with no usable text.
var ErrEmptyCompletion = errors.New("oracle: empty completion")

// Oracle produces one completion for a system plus user prompt pair.
type Oracle interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Config configures the Gemini-backed oracle.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32

	// BaseURL overrides the API endpoint, e.g. for a proxy.
	BaseURL string

	// Timeout bounds each completion call; zero means no bound beyond
	// the caller's context.
	Timeout time.Duration
}

// Client is the Gemini-backed oracle.
type Client struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
	log         zerolog.Logger
}

// NewClient dials the Gemini API. The context bounds only the initial
// handshake; each completion carries its own context.
func NewClient(ctx context.Context, cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.Model == "" {
		return nil, errors.New("oracle: model is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("oracle: create client: %w", err)
	}
	return &Client{
		client:      gc,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		log:         log,
	}, nil
}

// Complete runs one generation call and returns the raw response text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if c.temperature > 0 {
		cfg.Temperature = genai.Ptr(c.temperature)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(user), cfg)
	if err != nil {
		return "", fmt.Errorf("oracle: generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyCompletion
	}

	c.log.Debug().
		Str("model", c.model).
		Int("prompt_chars", len(system)+len(user)).
		Int("completion_chars", len(text)).
		Msg("oracle completion")
	return text, nil
}
