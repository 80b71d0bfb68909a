package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"shorteezy/internal/retry"
	"shorteezy/internal/runstore"
)

const (
	userAgent     = "shorteezy/1.0"
	maxImageBytes = 20 * 1024 * 1024
	minImageBytes = 100
)

func defaultHTTPClient() *http.Client {
	// Per-call deadlines come from the caller's context.
	return &http.Client{Timeout: 5 * time.Minute}
}

// statusError classifies an HTTP failure. 408 and 429 and any 5xx are worth
// retrying; other 4xx responses will not get better on their own.
func statusError(service string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("%s: HTTP %d: %s", service, resp.StatusCode, strings.TrimSpace(string(body)))
	switch {
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return err
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return retry.Permanent(err)
	default:
		return err
	}
}

// downloadImage fetches url and writes it to targetPath only if the payload
// sniffs as an image. Providers sometimes answer 200 with an HTML error page.
func downloadImage(ctx context.Context, client *http.Client, service, url, targetPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("%s: build download request: %w", service, err))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: download image: %w", service, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(service, resp)
	}

	lr := &io.LimitedReader{R: resp.Body, N: maxImageBytes + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return fmt.Errorf("%s: read image body: %w", service, err)
	}
	if lr.N <= 0 {
		return fmt.Errorf("%s: image larger than %d bytes", service, maxImageBytes)
	}
	if len(data) < minImageBytes {
		return fmt.Errorf("%s: response too small (%d bytes)", service, len(data))
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return fmt.Errorf("%s: expected an image, got %s", service, mt.String())
	}
	return runstore.WriteStream(targetPath, bytes.NewReader(data))
}
