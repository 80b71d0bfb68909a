package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"shorteezy/internal/model"
	"shorteezy/internal/runstore"
	"shorteezy/internal/script"
	"shorteezy/internal/settings"
)

type runTarget struct {
	runDir  string
	runsDir string
	latest  bool
}

func (t runTarget) resolve() (string, error) {
	if strings.TrimSpace(t.runDir) != "" {
		return strings.TrimSpace(t.runDir), nil
	}
	runsDir := strings.TrimSpace(t.runsDir)
	if runsDir == "" {
		runsDir = settings.DefaultRunsDir
	}
	if t.latest {
		return runstore.LatestRunDir(runsDir)
	}
	return "", errors.New("run target required: set --run-dir or --latest")
}

func addTargetFlags(fs *flag.FlagSet) *runTarget {
	t := &runTarget{}
	fs.StringVar(&t.runDir, "run-dir", "", "explicit run directory path")
	fs.StringVar(&t.runsDir, "runs-dir", "", "runs directory used with --latest (default shorts)")
	fs.BoolVar(&t.latest, "latest", false, "use the most recent run")
	return t
}

func runResume(args []string) error {
	fs := flag.NewFlagSet("resume", flag.ContinueOnError)
	target := addTargetFlags(fs)
	settingsPath := fs.String("settings", "", "settings file (JSON or YAML)")
	progress := fs.Bool("progress", true, "show the live dashboard when stdout is a terminal")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := settings.Load(strings.TrimSpace(*settingsPath))
	if err != nil {
		return err
	}
	if target.runsDir == "" {
		target.runsDir = s.RunsDir
	}
	runDir, err := target.resolve()
	if err != nil {
		return err
	}
	if err := checkStartup(s); err != nil {
		return err
	}

	layout := runstore.NewLayout(runDir)
	lock, err := runstore.AcquireRunLock(layout.BaseDir, "resume")
	if err != nil {
		return err
	}
	run, discarded, err := prepareResume(layout)
	_ = lock.Release()
	if err != nil {
		return err
	}

	showDashboard := *progress && !*jsonOut && stdoutIsTTY()
	logger, closeLog, err := openRunLogger(layout, !showDashboard)
	if err != nil {
		return err
	}
	defer closeLog()
	logger.Info("resuming run", "run", run.ID, "segments", len(run.Segments))
	if discarded > 0 {
		logger.Info("script edited since last run, discarded stale assets", "count", discarded)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return executeRun(ctx, "resume", s, layout, run, logger, runFlags{progress: showDashboard, jsonOut: *jsonOut})
}

// prepareResume prefers response.txt, since the user may have edited it
// after the last run, and carries over the state recorded in data.json for
// segments that did not change. Assets stored for edited or shifted lines
// are deleted so they are generated again from the new text. Without a
// script, data.json alone is used.
func prepareResume(layout runstore.Layout) (*model.Run, int, error) {
	prev, manifestErr := layout.LoadRun()
	if manifestErr != nil && !errors.Is(manifestErr, os.ErrNotExist) {
		return nil, 0, manifestErr
	}

	text, scriptErr := layout.LoadScript()
	switch {
	case scriptErr == nil:
		segs, _ := script.Parse(text)
		if prev == nil {
			return model.NewRun(filepath.Base(layout.BaseDir), layout.BaseDir, segs), 0, nil
		}
		discarded := 0
		for _, seg := range model.ChangedSegments(prev.Segments, segs) {
			n, err := layout.RemoveAssets(seg.Kind, seg.TypeIndex)
			if err != nil {
				return nil, discarded, err
			}
			discarded += n
		}
		prev.Segments = model.MergeState(prev.Segments, segs)
		prev.CompletedAt = ""
		prev.RecomputeSummary()
		if err := layout.Persist(prev); err != nil {
			return nil, discarded, err
		}
		return prev, discarded, nil
	case prev != nil:
		prev.CompletedAt = ""
		return prev, 0, nil
	default:
		return nil, 0, fmt.Errorf("nothing to resume in %s: neither %s nor %s exists", layout.BaseDir, runstore.ScriptFileName, runstore.ManifestFileName)
	}
}
