package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"shorteezy/internal/model"
	"shorteezy/internal/runstore"
	"shorteezy/internal/script"
	"shorteezy/internal/scriptgen"
	"shorteezy/internal/settings"
	"shorteezy/internal/source"
)

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	runsDir := fs.String("runs-dir", "", "runs directory (default from settings, shorts)")
	settingsPath := fs.String("settings", "", "settings file (JSON or YAML); also accepted as second positional argument")
	scriptPath := fs.String("script", "", "use this script file instead of generating one")
	review := fs.Bool("review", true, "pause after writing response.txt so the script can be edited")
	noReview := fs.Bool("no-review", false, "skip the review pause")
	progress := fs.Bool("progress", true, "show the live dashboard when stdout is a terminal")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 || len(rest) > 2 {
		fs.Usage()
		return errors.New("usage: shorteezy [flags] <source_file_or_url> [settings_file]")
	}
	input := rest[0]
	if len(rest) == 2 {
		*settingsPath = rest[1]
	}

	s, err := settings.Load(strings.TrimSpace(*settingsPath))
	if err != nil {
		return err
	}
	if strings.TrimSpace(*runsDir) != "" {
		s.RunsDir = strings.TrimSpace(*runsDir)
	}
	if err := checkStartup(s); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	doc, err := source.NewReader().Read(ctx, input)
	if err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}

	runID, baseDir, err := newRunDir(s.RunsDir, time.Now())
	if err != nil {
		return err
	}
	layout := runstore.NewLayout(baseDir)
	if err := layout.EnsureDirs(); err != nil {
		return err
	}

	showDashboard := *progress && !*jsonOut && stdoutIsTTY()
	logger, closeLog, err := openRunLogger(layout, !showDashboard)
	if err != nil {
		return err
	}
	defer closeLog()
	logger.Info("run created", "run", runID, "source", doc.Origin, "charset", doc.Charset)

	text, err := obtainScript(ctx, s, strings.TrimSpace(*scriptPath), doc.Text, logger)
	if err != nil {
		return err
	}
	if err := layout.SaveScript(text); err != nil {
		return err
	}
	if !*jsonOut {
		fmt.Printf("script saved to %s\n", layout.ScriptPath())
	}

	if *review && !*noReview && stdinIsTTY() {
		fmt.Println("Please review and edit the script if needed.")
		if err := waitForEnter("Press Enter to continue when you're done editing...", os.Stdin); err != nil {
			return err
		}
		if text, err = layout.LoadScript(); err != nil {
			return err
		}
	}

	segs, _ := script.Parse(text)
	if len(segs) == 0 {
		logger.Warn("script has no narration or image lines", "path", layout.ScriptPath())
	}
	run := model.NewRun(runID, baseDir, segs)
	run.Source = doc.Origin
	if err := layout.Persist(run); err != nil {
		return err
	}

	return executeRun(ctx, "generate", s, layout, run, logger, runFlags{progress: showDashboard, jsonOut: *jsonOut})
}

func obtainScript(ctx context.Context, s settings.Settings, scriptPath, sourceText string, logger *log.Logger) (string, error) {
	if scriptPath != "" {
		data, err := os.ReadFile(scriptPath)
		if err != nil {
			return "", fmt.Errorf("read script: %w", err)
		}
		return script.Normalize(string(data)), nil
	}

	writer, err := scriptgen.NewWriter(scriptgen.Options{
		BaseURL:        s.Script.BaseURL,
		APIKey:         s.Script.APIKey,
		Model:          s.Script.Model,
		Temperature:    s.Script.Temperature,
		MaxTokens:      s.Script.MaxTokens,
		SystemPrompt:   s.Script.SystemPrompt,
		RequestTimeout: s.Script.Timeout(),
		Logger:         logger,
	})
	if err != nil {
		return "", err
	}
	logger.Info("generating script", "model", s.Script.Model, "endpoint", s.Script.BaseURL)
	text, err := writer.Write(ctx, sourceText)
	if err != nil {
		return "", fmt.Errorf("generate script: %w", err)
	}
	return text, nil
}
