package settings

import (
	"fmt"

	"github.com/charmbracelet/log"

	"shorteezy/internal/backend"
)

// ImageGenerator builds the adapter for the configured image provider.
func (s Settings) ImageGenerator(logger *log.Logger) (backend.ImageGenerator, error) {
	switch s.Image.Provider {
	case ProviderRunware:
		return backend.NewRunware(backend.RunwareOptions{
			APIKey:         s.Image.APIKey,
			Endpoint:       s.Image.Endpoint,
			Model:          s.Image.Model,
			NegativePrompt: s.Image.NegativePrompt,
			Format:         s.Image.Format,
			Logger:         logger,
		})
	case ProviderPollinations:
		return backend.NewPollinations(s.Image.Endpoint, s.Image.Model), nil
	default:
		return nil, configErr("image.provider", "unknown provider %q", s.Image.Provider)
	}
}

// SpeechCommand builds the command-line speech adapter for the configured
// engine. Every supported engine is a local program.
func (s Settings) SpeechCommand(logger *log.Logger) (*backend.CommandSpeech, error) {
	var speech *backend.CommandSpeech
	switch s.Speech.Engine {
	case EngineCoqui:
		speech = backend.CoquiSpeech(s.Speech.Model)
	case EngineEdgeTTS:
		speech = backend.EdgeSpeech(s.Speech.Voice)
	case EngineCommand:
		var err error
		speech, err = backend.ParseSpeechCommand(s.Speech.Command, s.Speech.Format)
		if err != nil {
			return nil, &ConfigError{Field: "speech.command", Message: err.Error()}
		}
	default:
		return nil, configErr("speech.engine", "unknown engine %q", s.Speech.Engine)
	}
	if s.Speech.Format != "" {
		speech.Format = s.Speech.Format
	}
	speech.Logger = logger
	return speech, nil
}

// BuildBackend validates the settings and assembles both adapters.
func (s Settings) BuildBackend(logger *log.Logger) (backend.Backend, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	images, err := s.ImageGenerator(logger)
	if err != nil {
		return nil, fmt.Errorf("image backend: %w", err)
	}
	speech, err := s.SpeechCommand(logger)
	if err != nil {
		return nil, err
	}
	return backend.Combine(images, speech), nil
}

func (s Settings) ImageSize() backend.Size {
	return backend.Size{Width: s.Image.Width, Height: s.Image.Height}
}
