package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"shorteezy/internal/dashboard"
	"shorteezy/internal/handoff"
	"shorteezy/internal/model"
	"shorteezy/internal/pipeline"
	"shorteezy/internal/preflight"
	"shorteezy/internal/runstore"
	"shorteezy/internal/settings"
)

// RunResult is what generate and resume print with --json.
type RunResult struct {
	RunID       string        `json:"run_id"`
	RunDir      string        `json:"run_dir"`
	Manifest    string        `json:"manifest"`
	Handoff     string        `json:"handoff"`
	Summary     model.Summary `json:"summary"`
	Pairs       int           `json:"pairs"`
	Gaps        int           `json:"gaps"`
	CompletedAt string        `json:"completed_at,omitempty"`
}

type runFlags struct {
	progress bool
	jsonOut  bool
}

// checkStartup fails with a ConfigError-style message before any work is
// done when the settings cannot possibly produce assets.
func checkStartup(s settings.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if c := preflight.SpeechReady(s); !c.OK {
		return &settings.ConfigError{Field: "speech", Message: c.Message}
	}
	return nil
}

// newRunDir creates <runsDir>/<unix time>. When two runs start within the
// same second the later one gets a short random suffix.
func newRunDir(runsDir string, now time.Time) (string, string, error) {
	if err := runstore.Mkdir(runsDir); err != nil {
		return "", "", err
	}
	id := strconv.FormatInt(now.Unix(), 10)
	dir := filepath.Join(runsDir, id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if !os.IsExist(err) {
			return "", "", fmt.Errorf("create run directory: %w", err)
		}
		id = id + "-" + uuid.NewString()[:8]
		dir = filepath.Join(runsDir, id)
		if err := runstore.Mkdir(dir); err != nil {
			return "", "", err
		}
	}
	return id, dir, nil
}

// openRunLogger writes to <run>/run.log and, unless the dashboard owns
// the terminal, to stderr as well.
func openRunLogger(layout runstore.Layout, toStderr bool) (*log.Logger, func(), error) {
	f, err := os.OpenFile(layout.LogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open run log: %w", err)
	}
	var w io.Writer = f
	if toStderr {
		w = io.MultiWriter(f, os.Stderr)
	}
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Prefix:          "shorteezy",
	})
	return logger, func() { _ = f.Close() }, nil
}

func pipelineOptions(s settings.Settings) pipeline.Options {
	opts := pipeline.DefaultOptions()
	opts.MaxConcurrencyImage = s.Generation.MaxConcurrencyImage
	opts.MaxConcurrencySpeech = s.Generation.MaxConcurrencySpeech
	opts.MaxRetries = s.Generation.MaxRetries
	opts.InitialBackoff = s.Generation.InitialBackoff()
	opts.JitterMax = s.Generation.Jitter()
	opts.CallTimeout = s.Generation.CallTimeout()
	opts.ImageSize = s.ImageSize()
	opts.PromptSuffix = s.Image.PromptSuffix
	opts.Checkpoint = s.Generation.CheckpointEnabled()
	return opts
}

// executeRun generates the run's assets under the run lock, then writes
// handoff.json and reports the outcome.
func executeRun(ctx context.Context, command string, s settings.Settings, layout runstore.Layout, run *model.Run, logger *log.Logger, flags runFlags) error {
	lock, err := runstore.AcquireRunLock(layout.BaseDir, command)
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Release()
	}()

	b, err := s.BuildBackend(logger)
	if err != nil {
		return err
	}
	orch, err := pipeline.New(b, layout, logger, pipelineOptions(s))
	if err != nil {
		return err
	}

	var runErr error
	if flags.progress {
		runErr = dashboard.Run(ctx, run.ID, run.Summary, func(ctx context.Context, obs pipeline.Observer) error {
			o := orch.WithObserver(obs)
			return o.Run(ctx, run)
		})
	} else {
		runErr = orch.Run(ctx, run)
	}

	h := handoff.Build(run, layout, s.Captions)
	if err := handoff.Save(layout, h); err != nil {
		logger.Error("write handoff", "err", err)
		if runErr == nil {
			runErr = err
		}
	}

	if flags.jsonOut {
		if err := printJSON(RunResult{
			RunID:       run.ID,
			RunDir:      layout.BaseDir,
			Manifest:    layout.ManifestPath(),
			Handoff:     layout.HandoffPath(),
			Summary:     run.Summary,
			Pairs:       len(h.Pairs),
			Gaps:        len(h.Gaps),
			CompletedAt: run.CompletedAt,
		}); err != nil {
			return err
		}
	} else {
		fmt.Print(dashboard.RenderSummary(run))
		fmt.Printf("run_dir: %s\n", layout.BaseDir)
		fmt.Printf("handoff: %s (%d pairs, %d gaps)\n", layout.HandoffPath(), len(h.Pairs), len(h.Gaps))
	}
	return runErr
}
