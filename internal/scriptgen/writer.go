// Package scriptgen asks an OpenAI-compatible chat endpoint (LM Studio by
// default) to turn source material into a narration script.
package scriptgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"shorteezy/internal/script"
)

const DefaultRequestTimeout = 60 * time.Second

type Options struct {
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	MaxRetries   int
	HTTPClient   *http.Client
	Logger       *log.Logger

	// RequestTimeout bounds one chat request attempt. Zero means
	// DefaultRequestTimeout.
	RequestTimeout time.Duration
}

type Writer struct {
	client openai.Client
	opts   Options
}

func NewWriter(opts Options) (*Writer, error) {
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("scriptgen: model is required")
	}
	if strings.TrimSpace(opts.SystemPrompt) == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 2
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}

	reqOpts := []option.RequestOption{
		option.WithMaxRetries(opts.MaxRetries),
		option.WithRequestTimeout(opts.RequestTimeout),
	}
	if strings.TrimSpace(opts.BaseURL) != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if strings.TrimSpace(opts.APIKey) != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	return &Writer{client: openai.NewClient(reqOpts...), opts: opts}, nil
}

// Write returns the normalized script for source.
func (w *Writer) Write(ctx context.Context, source string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(w.opts.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(w.opts.SystemPrompt),
			openai.UserMessage(userPromptPrefix + source),
		},
		Temperature: openai.Float(w.opts.Temperature),
	}
	if w.opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(w.opts.MaxTokens))
	}

	w.opts.Logger.Info("requesting script", "model", w.opts.Model, "source_chars", len(source))
	completion, err := w.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	text := script.Normalize(completion.Choices[0].Message.Content)
	if strings.TrimSpace(text) == "" {
		return "", errors.New("chat completion returned an empty script")
	}
	return text, nil
}
