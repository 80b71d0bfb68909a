package backend

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/url"
	"strings"
)

const DefaultPollinationsEndpoint = "https://image.pollinations.ai/prompt/"

// Pollinations generates images through the keyless Pollinations endpoint.
// The seed is derived from the prompt so reruns reproduce the same image.
type Pollinations struct {
	Endpoint   string
	Model      string
	HTTPClient *http.Client
}

func NewPollinations(endpoint, model string) *Pollinations {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultPollinationsEndpoint
	}
	if strings.TrimSpace(model) == "" {
		model = "flux"
	}
	return &Pollinations{Endpoint: endpoint, Model: model, HTTPClient: defaultHTTPClient()}
}

func (p *Pollinations) ImageFormat() string { return "jpg" }

func (p *Pollinations) GenerateImage(ctx context.Context, prompt, targetPath string, size Size) error {
	return downloadImage(ctx, p.HTTPClient, "pollinations", p.imageURL(prompt, size), targetPath)
}

func (p *Pollinations) imageURL(prompt string, size Size) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(prompt))
	q := url.Values{}
	q.Set("width", fmt.Sprint(size.Width))
	q.Set("height", fmt.Sprint(size.Height))
	q.Set("nologo", "true")
	q.Set("model", p.Model)
	q.Set("seed", fmt.Sprint(h.Sum32()%1_000_000))
	base := p.Endpoint
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + url.PathEscape(prompt) + "?" + q.Encode()
}
