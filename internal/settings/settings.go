// Package settings loads the run configuration: defaults, an optional
// JSON or YAML settings file, a .env file and environment overrides.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderRunware      = "runware"
	ProviderPollinations = "pollinations"

	EngineCoqui   = "coqui"
	EngineEdgeTTS = "edge-tts"
	EngineCommand = "command"

	DefaultRunsDir       = "shorts"
	DefaultScriptBaseURL = "http://localhost:1234/v1"
	DefaultScriptAPIKey  = "lm-studio"
	DefaultScriptModel   = "lmstudio-community/Meta-Llama-3.1-8B-Instruct-GGUF"
	DefaultPromptSuffix  = ". Vertical image, fully filling the canvas."
	DefaultNegative      = "low quality, blurry"
)

// Environment variables that override the settings file.
const (
	EnvRunwareKey    = "RUNWARE_API_KEY"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	EnvScriptModel   = "SHORTEEZY_SCRIPT_MODEL"
	EnvImageProvider = "SHORTEEZY_IMAGE_PROVIDER"
	EnvTTSCommand    = "TTS_COMMAND"
)

type Settings struct {
	RunsDir    string             `yaml:"runs_dir" json:"runs_dir"`
	Script     ScriptSettings     `yaml:"script" json:"script"`
	Image      ImageSettings      `yaml:"image" json:"image"`
	Speech     SpeechSettings     `yaml:"speech" json:"speech"`
	Generation GenerationSettings `yaml:"generation" json:"generation"`

	// Captions keeps every key this program does not know about. Settings
	// files usually carry caption styling for the video assembler, which is
	// forwarded untouched in handoff.json.
	Captions map[string]any `yaml:",inline" json:"captions,omitempty"`
}

type ScriptSettings struct {
	BaseURL      string  `yaml:"base_url" json:"base_url"`
	APIKey       string  `yaml:"-" json:"-"`
	Model        string  `yaml:"model" json:"model"`
	Temperature  float64 `yaml:"temperature" json:"temperature"`
	MaxTokens    int     `yaml:"max_tokens" json:"max_tokens,omitempty"`
	SystemPrompt string  `yaml:"system_prompt" json:"system_prompt,omitempty"`

	// TimeoutSeconds bounds each chat request attempt.
	TimeoutSeconds float64 `yaml:"timeout_seconds" json:"timeout_seconds"`
}

type ImageSettings struct {
	Provider       string `yaml:"provider" json:"provider"`
	APIKey         string `yaml:"-" json:"-"`
	Endpoint       string `yaml:"endpoint" json:"endpoint,omitempty"`
	Model          string `yaml:"model" json:"model,omitempty"`
	NegativePrompt string `yaml:"negative_prompt" json:"negative_prompt,omitempty"`
	Format         string `yaml:"format" json:"format,omitempty"`
	Width          int    `yaml:"width" json:"width"`
	Height         int    `yaml:"height" json:"height"`
	PromptSuffix   string `yaml:"prompt_suffix" json:"prompt_suffix"`
}

type SpeechSettings struct {
	Engine string `yaml:"engine" json:"engine"`
	Model  string `yaml:"model" json:"model,omitempty"`
	Voice  string `yaml:"voice" json:"voice,omitempty"`
	// Command is used with the "command" engine, e.g.
	// "piper --model en.onnx --output_file {output}".
	Command string `yaml:"command" json:"command,omitempty"`
	Format  string `yaml:"format" json:"format,omitempty"`
}

type GenerationSettings struct {
	MaxConcurrencyImage   int     `yaml:"max_concurrency_image" json:"max_concurrency_image"`
	MaxConcurrencySpeech  int     `yaml:"max_concurrency_speech" json:"max_concurrency_speech"`
	MaxRetries            int     `yaml:"max_retries" json:"max_retries"`
	InitialBackoffSeconds float64 `yaml:"initial_backoff_seconds" json:"initial_backoff_seconds"`
	JitterSeconds         float64 `yaml:"jitter_seconds" json:"jitter_seconds"`
	CallTimeoutSeconds    float64 `yaml:"call_timeout_seconds" json:"call_timeout_seconds"`
	Checkpoint            *bool   `yaml:"checkpoint" json:"checkpoint,omitempty"`
}

func Default() Settings {
	checkpoint := true
	return Settings{
		RunsDir: DefaultRunsDir,
		Script: ScriptSettings{
			BaseURL:        DefaultScriptBaseURL,
			APIKey:         DefaultScriptAPIKey,
			Model:          DefaultScriptModel,
			Temperature:    0.7,
			TimeoutSeconds: 60,
		},
		Image: ImageSettings{
			Provider:       ProviderRunware,
			NegativePrompt: DefaultNegative,
			Format:         "webp",
			Width:          1024,
			Height:         1792,
			PromptSuffix:   DefaultPromptSuffix,
		},
		Speech: SpeechSettings{
			Engine: EngineCoqui,
		},
		Generation: GenerationSettings{
			MaxConcurrencyImage:   2,
			MaxConcurrencySpeech:  1,
			MaxRetries:            3,
			InitialBackoffSeconds: 1,
			JitterSeconds:         1,
			CallTimeoutSeconds:    60,
			Checkpoint:            &checkpoint,
		},
	}
}

// Load returns defaults overlaid with the settings file at path (if any)
// and then with the environment. A .env file in the working directory is
// read first; variables already set in the process win over it.
func Load(path string) (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Settings{}, fmt.Errorf("read .env: %w", err)
	}

	s := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("read settings file: %w", err)
		}
		if err := Decode(data, &s); err != nil {
			return Settings{}, fmt.Errorf("parse settings file %s: %w", path, err)
		}
	}
	s.applyEnv(os.Getenv)
	s.normalize()
	return s, nil
}

// Decode overlays a JSON or YAML document onto s. Fields absent from the
// document keep their current values.
func Decode(data []byte, s *Settings) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(s); err != nil {
		return err
	}
	return nil
}

func (s *Settings) applyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvRunwareKey)); v != "" {
		s.Image.APIKey = v
	}
	if v := strings.TrimSpace(getenv(EnvImageProvider)); v != "" {
		s.Image.Provider = v
	}
	if v := strings.TrimSpace(getenv(EnvOpenAIKey)); v != "" {
		s.Script.APIKey = v
	}
	if v := strings.TrimSpace(getenv(EnvOpenAIBaseURL)); v != "" {
		s.Script.BaseURL = v
	}
	if v := strings.TrimSpace(getenv(EnvScriptModel)); v != "" {
		s.Script.Model = v
	}
	if v := strings.TrimSpace(getenv(EnvTTSCommand)); v != "" {
		s.Speech.Engine = EngineCommand
		s.Speech.Command = v
	}
}

func (s *Settings) normalize() {
	s.RunsDir = strings.TrimSpace(s.RunsDir)
	if s.RunsDir == "" {
		s.RunsDir = DefaultRunsDir
	}
	s.Image.Provider = strings.ToLower(strings.TrimSpace(s.Image.Provider))
	s.Image.Format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s.Image.Format), "."))
	s.Speech.Engine = strings.ToLower(strings.TrimSpace(s.Speech.Engine))
	if s.Speech.Engine == "edge" || s.Speech.Engine == "edgetts" {
		s.Speech.Engine = EngineEdgeTTS
	}
	if s.Generation.Checkpoint == nil {
		checkpoint := true
		s.Generation.Checkpoint = &checkpoint
	}
}

// ConfigError reports a setting that prevents any generation from starting.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
}

func configErr(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks everything that can be checked without touching the
// network or PATH.
func (s Settings) Validate() error {
	switch s.Image.Provider {
	case ProviderRunware:
		if strings.TrimSpace(s.Image.APIKey) == "" {
			return configErr("image.api_key", "%s is required for the runware provider (or set %s=%s)", EnvRunwareKey, EnvImageProvider, ProviderPollinations)
		}
		switch s.Image.Format {
		case "", "webp", "png", "jpg", "jpeg":
		default:
			return configErr("image.format", "unsupported format %q (use webp, png or jpg)", s.Image.Format)
		}
	case ProviderPollinations:
	default:
		return configErr("image.provider", "unknown provider %q (use %s or %s)", s.Image.Provider, ProviderRunware, ProviderPollinations)
	}

	if s.Image.Width <= 0 || s.Image.Height <= 0 {
		return configErr("image.size", "width and height must be positive, got %dx%d", s.Image.Width, s.Image.Height)
	}
	if s.Image.Width%64 != 0 || s.Image.Height%64 != 0 {
		return configErr("image.size", "width and height must be multiples of 64, got %dx%d", s.Image.Width, s.Image.Height)
	}

	switch s.Speech.Engine {
	case EngineCoqui, EngineEdgeTTS:
	case EngineCommand:
		if strings.TrimSpace(s.Speech.Command) == "" {
			return configErr("speech.command", "required when speech.engine is %q", EngineCommand)
		}
	default:
		return configErr("speech.engine", "unknown engine %q (use %s, %s or %s)", s.Speech.Engine, EngineCoqui, EngineEdgeTTS, EngineCommand)
	}

	if s.Script.TimeoutSeconds <= 0 {
		return configErr("script.timeout_seconds", "must be positive, got %s", formatFloat(s.Script.TimeoutSeconds))
	}

	g := s.Generation
	if g.MaxConcurrencyImage <= 0 {
		return configErr("generation.max_concurrency_image", "must be positive, got %d", g.MaxConcurrencyImage)
	}
	if g.MaxConcurrencySpeech <= 0 {
		return configErr("generation.max_concurrency_speech", "must be positive, got %d", g.MaxConcurrencySpeech)
	}
	if g.MaxRetries <= 0 {
		return configErr("generation.max_retries", "must be positive, got %d", g.MaxRetries)
	}
	if g.InitialBackoffSeconds < 0 {
		return configErr("generation.initial_backoff_seconds", "must not be negative, got %s", formatFloat(g.InitialBackoffSeconds))
	}
	if g.JitterSeconds < 0 {
		return configErr("generation.jitter_seconds", "must not be negative, got %s", formatFloat(g.JitterSeconds))
	}
	if g.CallTimeoutSeconds <= 0 {
		return configErr("generation.call_timeout_seconds", "must be positive, got %s", formatFloat(g.CallTimeoutSeconds))
	}
	return nil
}

func (sc ScriptSettings) Timeout() time.Duration {
	return seconds(sc.TimeoutSeconds)
}

func (g GenerationSettings) InitialBackoff() time.Duration {
	return seconds(g.InitialBackoffSeconds)
}

func (g GenerationSettings) Jitter() time.Duration {
	return seconds(g.JitterSeconds)
}

func (g GenerationSettings) CallTimeout() time.Duration {
	return seconds(g.CallTimeoutSeconds)
}

func (g GenerationSettings) CheckpointEnabled() bool {
	return g.Checkpoint == nil || *g.Checkpoint
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
