package cli

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"shorteezy/internal/settings"
)

// runSettings prints the effective settings after the file, .env and
// environment overrides are applied. Credentials are reported as set or
// missing, never printed.
func runSettings(args []string) error {
	fs := flag.NewFlagSet("settings", flag.ContinueOnError)
	settingsPath := fs.String("settings", "", "settings file (JSON or YAML); also accepted as positional argument")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if rest := fs.Args(); len(rest) > 0 {
		*settingsPath = rest[0]
	}

	s, err := settings.Load(strings.TrimSpace(*settingsPath))
	if err != nil {
		return err
	}
	validation := "ok"
	if err := s.Validate(); err != nil {
		validation = err.Error()
	}

	if *jsonOut {
		return printJSON(map[string]any{
			"settings_path": strings.TrimSpace(*settingsPath),
			"settings":      s,
			"credentials": map[string]bool{
				"image":  strings.TrimSpace(s.Image.APIKey) != "",
				"script": strings.TrimSpace(s.Script.APIKey) != "",
			},
			"validation": validation,
		})
	}

	if p := strings.TrimSpace(*settingsPath); p != "" {
		fmt.Printf("settings: %s\n", p)
	} else {
		fmt.Println("settings: (defaults)")
	}
	fmt.Printf("runs_dir: %s\n", s.RunsDir)
	fmt.Printf("script.base_url: %s\n", s.Script.BaseURL)
	fmt.Printf("script.model: %s\n", s.Script.Model)
	fmt.Printf("script.api_key: %s\n", presence(s.Script.APIKey))
	fmt.Printf("script.timeout_seconds: %s\n", formatSeconds(s.Script.TimeoutSeconds))
	fmt.Printf("image.provider: %s\n", s.Image.Provider)
	fmt.Printf("image.api_key: %s\n", presence(s.Image.APIKey))
	fmt.Printf("image.size: %dx%d\n", s.Image.Width, s.Image.Height)
	fmt.Printf("speech.engine: %s\n", s.Speech.Engine)
	if s.Speech.Command != "" {
		fmt.Printf("speech.command: %s\n", s.Speech.Command)
	}
	g := s.Generation
	fmt.Printf("generation.max_concurrency_image: %d\n", g.MaxConcurrencyImage)
	fmt.Printf("generation.max_concurrency_speech: %d\n", g.MaxConcurrencySpeech)
	fmt.Printf("generation.max_retries: %d\n", g.MaxRetries)
	fmt.Printf("generation.initial_backoff_seconds: %s\n", formatSeconds(g.InitialBackoffSeconds))
	fmt.Printf("generation.call_timeout_seconds: %s\n", formatSeconds(g.CallTimeoutSeconds))
	fmt.Printf("generation.checkpoint: %t\n", g.CheckpointEnabled())
	if len(s.Captions) > 0 {
		fmt.Printf("caption_keys: %d (forwarded to handoff.json)\n", len(s.Captions))
	}
	fmt.Printf("validation: %s\n", validation)
	return nil
}

func presence(v string) string {
	if strings.TrimSpace(v) == "" {
		return "missing"
	}
	return "set"
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
