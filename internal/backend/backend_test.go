package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorteezy/internal/retry"
)

func fakePNG() []byte {
	data := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	return append(data, make([]byte, 256)...)
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries, "expected no files in %s", dir)
}

func TestRunwareGeneratesAndDownloads(t *testing.T) {
	var got []map[string]any
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/v1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		task := got[0]
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"taskUUID": task["taskUUID"], "imageURL": srv.URL + "/img/out.webp"}},
		})
	})
	mux.HandleFunc("/img/out.webp", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(fakePNG())
	})

	rw, err := NewRunware(RunwareOptions{APIKey: "key-123", Endpoint: srv.URL + "/v1", NegativePrompt: "low quality, blurry"})
	require.NoError(t, err)
	assert.Equal(t, "webp", rw.ImageFormat())

	target := filepath.Join(t.TempDir(), "images", "image_1.webp")
	err = rw.GenerateImage(context.Background(), "A desert.", target, Size{Width: 1024, Height: 1792})
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, fakePNG(), data)

	require.Len(t, got, 1)
	assert.Equal(t, "imageInference", got[0]["taskType"])
	assert.Equal(t, "A desert.", got[0]["positivePrompt"])
	assert.Equal(t, "low quality, blurry", got[0]["negativePrompt"])
	assert.EqualValues(t, 1024, got[0]["width"])
	assert.EqualValues(t, 1792, got[0]["height"])
	assert.Equal(t, "WEBP", got[0]["outputFormat"])
	assert.NotEmpty(t, got[0]["taskUUID"])
}

func TestRunwareRejectsBadKeyPermanently(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"code":"invalidApiKey","message":"bad key"}]}`))
	}))
	defer srv.Close()

	rw, err := NewRunware(RunwareOptions{APIKey: "nope", Endpoint: srv.URL})
	require.NoError(t, err)

	dir := t.TempDir()
	err = rw.GenerateImage(context.Background(), "x", filepath.Join(dir, "image_1.webp"), Size{Width: 512, Height: 512})
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
	assertDirEmpty(t, dir)
}

func TestRunwareServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rw, err := NewRunware(RunwareOptions{APIKey: "k", Endpoint: srv.URL})
	require.NoError(t, err)
	err = rw.GenerateImage(context.Background(), "x", filepath.Join(t.TempDir(), "a.webp"), Size{Width: 64, Height: 64})
	require.Error(t, err)
	assert.False(t, retry.IsPermanent(err))
}

func TestNewRunwareRequiresKey(t *testing.T) {
	_, err := NewRunware(RunwareOptions{})
	require.Error(t, err)
	_, err = NewRunware(RunwareOptions{APIKey: "k", Format: "gif"})
	require.Error(t, err)
}

func TestDownloadRejectsNonImagePayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>" + strings.Repeat("rate limited ", 20) + "</body></html>"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	p := NewPollinations(srv.URL, "")
	err := p.GenerateImage(context.Background(), "a city", filepath.Join(dir, "image_2.jpg"), Size{Width: 64, Height: 64})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected an image")
	assertDirEmpty(t, dir)
}

func TestPollinationsBuildsDeterministicURL(t *testing.T) {
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/prompt/"))
		queries = append(queries, r.URL.RawQuery)
		_, _ = w.Write(fakePNG())
	}))
	defer srv.Close()

	p := NewPollinations(srv.URL+"/prompt", "")
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		require.NoError(t, p.GenerateImage(context.Background(), "A city at night", filepath.Join(dir, "image_1.jpg"), Size{Width: 1024, Height: 1792}))
	}
	require.Len(t, queries, 2)
	assert.Equal(t, queries[0], queries[1])
	assert.Contains(t, queries[0], "width=1024")
	assert.Contains(t, queries[0], "height=1792")
	assert.Contains(t, queries[0], "model=flux")
}

func writeFakeTTS(t *testing.T, script string) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bin, "fake-tts"), []byte(script), 0o755))
	t.Setenv("PATH", bin+":"+os.Getenv("PATH"))
	return "fake-tts"
}

func TestCommandSpeechWritesTarget(t *testing.T) {
	prog := writeFakeTTS(t, `#!/usr/bin/env bash
set -euo pipefail
text=""
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --text) text="$2"; shift 2;;
    --output) out="$2"; shift 2;;
    *) shift;;
  esac
done
printf 'RIFF%s' "$text" > "$out"
`)
	speech, err := ParseSpeechCommand(prog, "wav")
	require.NoError(t, err)
	_, err = speech.Check()
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "narrations")
	target := filepath.Join(dir, "narration_1.wav")
	require.NoError(t, speech.GenerateSpeech(context.Background(), "Hello.", target))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "RIFFHello.", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should have been renamed into place")
}

func TestCommandSpeechFailureLeavesNoPartialFile(t *testing.T) {
	prog := writeFakeTTS(t, `#!/usr/bin/env bash
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output) out="$2"; shift 2;;
    *) shift;;
  esac
done
printf 'partial' > "$out"
echo "model crashed" >&2
exit 3
`)
	speech, err := ParseSpeechCommand(prog, "wav")
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "narrations")
	err = speech.GenerateSpeech(context.Background(), "Hello.", filepath.Join(dir, "narration_1.wav"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model crashed")
	assertDirEmpty(t, dir)
}

func TestCommandSpeechCancelLeavesNoPartialFile(t *testing.T) {
	prog := writeFakeTTS(t, `#!/usr/bin/env bash
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output) out="$2"; shift 2;;
    *) shift;;
  esac
done
printf 'partial' > "$out"
exec sleep 30
`)
	speech, err := ParseSpeechCommand(prog, "wav")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	dir := filepath.Join(t.TempDir(), "narrations")
	err = speech.GenerateSpeech(ctx, "Hello.", filepath.Join(dir, "narration_1.wav"))
	require.Error(t, err)
	assertDirEmpty(t, dir)
}

func TestCommandSpeechMissingProgramIsPermanent(t *testing.T) {
	speech := &CommandSpeech{Program: "definitely-not-a-tts-binary", Args: []string{"{output}"}, Format: "wav"}
	_, err := speech.Check()
	require.Error(t, err)

	dir := t.TempDir()
	err = speech.GenerateSpeech(context.Background(), "x", filepath.Join(dir, "narration_1.wav"))
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
	assertDirEmpty(t, dir)
}

func TestSpeechPresets(t *testing.T) {
	coqui := CoquiSpeech("")
	assert.Equal(t, "tts", coqui.Program)
	assert.Equal(t, "wav", coqui.SpeechFormat())
	assert.Contains(t, coqui.Args, DefaultCoquiModel)

	edge := EdgeSpeech("")
	assert.Equal(t, "mp3", edge.SpeechFormat())
	assert.Contains(t, edge.Args, DefaultEdgeVoice)

	py, err := ParseSpeechCommand("voice.py --speaker p1", "")
	require.NoError(t, err)
	assert.Equal(t, "python3", py.Program)
	assert.Equal(t, []string{"voice.py", "--speaker", "p1", "--text", "{text}", "--output", "{output}"}, py.Args)

	_, err = ParseSpeechCommand("   ", "wav")
	require.Error(t, err)
}

func TestCombine(t *testing.T) {
	b := Combine(NewPollinations("", ""), EdgeSpeech(""))
	assert.Equal(t, "jpg", b.ImageFormat())
	assert.Equal(t, "mp3", b.SpeechFormat())
}
