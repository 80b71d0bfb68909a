package cli

import (
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"shorteezy/internal/model"
	"shorteezy/internal/runstore"
	"shorteezy/internal/settings"
)

const (
	runStateComplete   = "complete"
	runStateAttention  = "attention"
	runStateIncomplete = "incomplete"
	runStateUnreadable = "unreadable"
)

type RunStatusRow struct {
	RunID     string        `json:"run_id"`
	RunDir    string        `json:"run_dir"`
	State     string        `json:"state"`
	Source    string        `json:"source,omitempty"`
	CreatedAt string        `json:"created_at,omitempty"`
	Summary   model.Summary `json:"summary"`
	Error     string        `json:"error,omitempty"`
}

type RunStatusTotals struct {
	Runs       int `json:"runs"`
	Complete   int `json:"complete"`
	Attention  int `json:"attention"`
	Incomplete int `json:"incomplete"`
}

type RunStatusResult struct {
	RunsDir string          `json:"runs_dir"`
	Rows    []RunStatusRow  `json:"rows"`
	Totals  RunStatusTotals `json:"totals"`
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	runsDir := fs.String("runs-dir", "", "runs directory (default from settings, shorts)")
	settingsPath := fs.String("settings", "", "settings file (JSON or YAML)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	dir := strings.TrimSpace(*runsDir)
	if dir == "" {
		s, err := settings.Load(strings.TrimSpace(*settingsPath))
		if err != nil {
			return err
		}
		dir = s.RunsDir
	}

	res, err := collectRunStatus(dir)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(res)
	}

	if len(res.Rows) == 0 {
		fmt.Printf("no runs in %s\n", res.RunsDir)
		fmt.Println("start here:")
		fmt.Println("  shorteezy <source_file_or_url> [settings_file]")
		return nil
	}
	for _, row := range res.Rows {
		fmt.Printf("%s [%s]\n", row.RunID, row.State)
		if row.Error != "" {
			fmt.Printf("  error: %s\n", row.Error)
			continue
		}
		if row.Source != "" {
			fmt.Printf("  source: %s\n", row.Source)
		}
		fmt.Printf("  images ok/pending/fail: %d/%d/%d\n", row.Summary.Image.Succeeded, row.Summary.Image.Pending, row.Summary.Image.Failed)
		fmt.Printf("  narrations ok/pending/fail: %d/%d/%d\n", row.Summary.Narration.Succeeded, row.Summary.Narration.Pending, row.Summary.Narration.Failed)
	}
	fmt.Println("totals")
	fmt.Printf("  runs: %d\n", res.Totals.Runs)
	fmt.Printf("  complete: %d\n", res.Totals.Complete)
	fmt.Printf("  attention: %d\n", res.Totals.Attention)
	fmt.Printf("  incomplete: %d\n", res.Totals.Incomplete)
	if res.Totals.Attention+res.Totals.Incomplete > 0 {
		fmt.Println("next: shorteezy resume --run-dir <run_dir>")
	}
	return nil
}

// collectRunStatus reads every run under runsDir, newest first. A run whose
// manifest cannot be read is reported as a row instead of failing the listing.
func collectRunStatus(runsDir string) (RunStatusResult, error) {
	res := RunStatusResult{RunsDir: runsDir, Rows: []RunStatusRow{}}
	dirs, err := runstore.ListRunDirs(runsDir)
	if err != nil {
		return res, err
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		row := RunStatusRow{RunID: filepath.Base(dirs[i]), RunDir: dirs[i]}
		run, err := runstore.NewLayout(dirs[i]).LoadRun()
		if err != nil {
			row.State = runStateUnreadable
			row.Error = err.Error()
		} else {
			if strings.TrimSpace(run.ID) != "" {
				row.RunID = run.ID
			}
			row.Source = run.Source
			row.CreatedAt = run.CreatedAt
			row.Summary = run.Summary
			row.State = runState(run.Summary)
		}
		res.Rows = append(res.Rows, row)

		res.Totals.Runs++
		switch row.State {
		case runStateComplete:
			res.Totals.Complete++
		case runStateIncomplete:
			res.Totals.Incomplete++
		default:
			res.Totals.Attention++
		}
	}
	return res, nil
}

func runState(sum model.Summary) string {
	switch {
	case sum.Failed() > 0:
		return runStateAttention
	case sum.Image.Pending+sum.Narration.Pending > 0:
		return runStateIncomplete
	default:
		return runStateComplete
	}
}
