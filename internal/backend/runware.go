package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"shorteezy/internal/retry"
)

const (
	DefaultRunwareEndpoint = "https://api.runware.ai/v1"
	DefaultRunwareModel    = "runware:100@1"
)

type RunwareOptions struct {
	APIKey         string
	Endpoint       string
	Model          string
	NegativePrompt string
	// Format is one of webp, png or jpg.
	Format     string
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Runware generates images through the Runware REST API and downloads the
// resulting image URL.
type Runware struct {
	opts RunwareOptions
}

func NewRunware(opts RunwareOptions) (*Runware, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("runware: API key is required")
	}
	if strings.TrimSpace(opts.Endpoint) == "" {
		opts.Endpoint = DefaultRunwareEndpoint
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = DefaultRunwareModel
	}
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "webp":
		opts.Format = "webp"
	case "png", "jpg":
		opts.Format = strings.ToLower(strings.TrimSpace(opts.Format))
	case "jpeg":
		opts.Format = "jpg"
	default:
		return nil, fmt.Errorf("runware: unsupported output format %q", opts.Format)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = defaultHTTPClient()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Runware{opts: opts}, nil
}

func (r *Runware) ImageFormat() string { return r.opts.Format }

type runwareTask struct {
	TaskType       string `json:"taskType"`
	TaskUUID       string `json:"taskUUID"`
	PositivePrompt string `json:"positivePrompt"`
	NegativePrompt string `json:"negativePrompt,omitempty"`
	Model          string `json:"model"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	NumberResults  int    `json:"numberResults"`
	OutputType     string `json:"outputType"`
	OutputFormat   string `json:"outputFormat"`
	UseCache       bool   `json:"useCache"`
}

type runwareResponse struct {
	Data []struct {
		TaskUUID string `json:"taskUUID"`
		ImageURL string `json:"imageURL"`
	} `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (r *Runware) GenerateImage(ctx context.Context, prompt, targetPath string, size Size) error {
	task := runwareTask{
		TaskType:       "imageInference",
		TaskUUID:       uuid.NewString(),
		PositivePrompt: prompt,
		NegativePrompt: r.opts.NegativePrompt,
		Model:          r.opts.Model,
		Width:          size.Width,
		Height:         size.Height,
		NumberResults:  1,
		OutputType:     "URL",
		OutputFormat:   strings.ToUpper(outputFormatName(r.opts.Format)),
		UseCache:       false,
	}
	body, err := json.Marshal([]runwareTask{task})
	if err != nil {
		return retry.Permanent(fmt.Errorf("runware: encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.opts.Endpoint, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("runware: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.opts.APIKey)
	req.Header.Set("User-Agent", userAgent)

	r.opts.Logger.Debug("runware inference", "task", task.TaskUUID, "size", size.String())
	resp, err := r.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("runware: inference request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return statusError("runware", resp)
	}

	var out runwareResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("runware: decode response: %w", err)
	}
	if len(out.Errors) > 0 {
		return fmt.Errorf("runware: %s: %s", out.Errors[0].Code, out.Errors[0].Message)
	}

	imageURL := ""
	for _, d := range out.Data {
		if d.TaskUUID == task.TaskUUID || d.TaskUUID == "" {
			imageURL = strings.TrimSpace(d.ImageURL)
			break
		}
	}
	if imageURL == "" {
		return errors.New("runware: no image was generated")
	}
	return downloadImage(ctx, r.opts.HTTPClient, "runware", imageURL, targetPath)
}

func outputFormatName(ext string) string {
	if ext == "jpg" {
		return "jpeg"
	}
	return ext
}
