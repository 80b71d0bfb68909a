// Package source reads the material a short is written from: a local file
// or an http(s) URL, decoded to UTF-8 whatever its original encoding.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

const (
	DefaultMaxBytes = 8 << 20
	userAgent       = "shorteezy/1.0"
)

type Document struct {
	Origin  string
	Text    string
	Charset string
}

type Reader struct {
	Client   *http.Client
	MaxBytes int64
}

func NewReader() *Reader {
	return &Reader{Client: &http.Client{Timeout: 60 * time.Second}, MaxBytes: DefaultMaxBytes}
}

// IsURL reports whether input should be fetched rather than opened.
func IsURL(input string) bool {
	u, err := url.Parse(strings.TrimSpace(input))
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

func (r *Reader) Read(ctx context.Context, input string) (Document, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Document{}, errors.New("source is empty")
	}
	if IsURL(input) {
		return r.fetch(ctx, input)
	}
	return r.readFile(input)
}

func (r *Reader) readFile(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()
	raw, err := r.readLimited(f)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	text, charset, err := Decode(raw, "")
	if err != nil {
		return Document{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return Document{Origin: path, Text: text, Charset: charset}, nil
}

func (r *Reader) fetch(ctx context.Context, rawURL string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Document{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Document{}, fmt.Errorf("fetch %s: HTTP %d", rawURL, resp.StatusCode)
	}

	raw, err := r.readLimited(resp.Body)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", rawURL, err)
	}
	text, charset, err := Decode(raw, headerCharset(resp.Header.Get("Content-Type")))
	if err != nil {
		return Document{}, fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return Document{Origin: rawURL, Text: text, Charset: charset}, nil
}

func (r *Reader) readLimited(src io.Reader) ([]byte, error) {
	max := r.MaxBytes
	if max <= 0 {
		max = DefaultMaxBytes
	}
	lr := &io.LimitedReader{R: src, N: max + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("source larger than %d bytes", max)
	}
	return data, nil
}

func headerCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

// Decode converts raw to UTF-8. A byte order mark wins, then a declared
// charset, then valid UTF-8 as-is, then statistical detection. It returns
// the decoded text and the charset it settled on.
func Decode(raw []byte, declared string) (string, string, error) {
	switch {
	case bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}):
		return string(raw[3:]), "utf-8", nil
	case bytes.HasPrefix(raw, []byte{0xFF, 0xFE}):
		return decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), raw, "utf-16le")
	case bytes.HasPrefix(raw, []byte{0xFE, 0xFF}):
		return decodeWith(unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), raw, "utf-16be")
	}

	if declared != "" {
		if enc, name, ok := lookup(declared); ok {
			return decodeWith(enc, raw, name)
		}
	}
	if utf8.Valid(raw) {
		return string(raw), "utf-8", nil
	}

	res, err := chardet.NewTextDetector().DetectBest(raw)
	if err == nil && res != nil {
		if enc, name, ok := lookup(res.Charset); ok {
			return decodeWith(enc, raw, name)
		}
	}
	// Last resort: keep what is readable.
	return strings.ToValidUTF8(string(raw), "�"), "utf-8", nil
}

func lookup(charset string) (encoding.Encoding, string, bool) {
	name := strings.ToLower(strings.TrimSpace(charset))
	switch name {
	case "gb-18030":
		name = "gb18030"
	case "iso-8859-8-i":
		name = "iso-8859-8"
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, "", false
	}
	canonical, err := htmlindex.Name(enc)
	if err != nil {
		canonical = name
	}
	return enc, canonical, true
}

func decodeWith(enc encoding.Encoding, raw []byte, name string) (string, string, error) {
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", "", fmt.Errorf("decode as %s: %w", name, err)
	}
	return string(out), name, nil
}
