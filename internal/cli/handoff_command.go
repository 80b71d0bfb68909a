package cli

import (
	"flag"
	"fmt"
	"strings"

	"shorteezy/internal/handoff"
	"shorteezy/internal/runstore"
	"shorteezy/internal/settings"
)

func runHandoff(args []string) error {
	fs := flag.NewFlagSet("handoff", flag.ContinueOnError)
	target := addTargetFlags(fs)
	rebuild := fs.Bool("rebuild", false, "rebuild handoff.json from data.json before printing")
	settingsPath := fs.String("settings", "", "settings file (runs_dir for --latest, caption keys for --rebuild)")
	jsonOut := fs.Bool("json", false, "print the full handoff document as JSON")
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
	layout := runstore.NewLayout(runDir)

	var h handoff.Handoff
	if *rebuild {
		run, err := layout.LoadRun()
		if err != nil {
			return err
		}
		h = handoff.Build(run, layout, s.Captions)
		if err := handoff.Save(layout, h); err != nil {
			return err
		}
	} else if h, err = handoff.Load(layout); err != nil {
		return fmt.Errorf("%w (run with --rebuild to create it)", err)
	}

	if *jsonOut {
		return printJSON(h)
	}
	fmt.Printf("run_id: %s\n", h.RunID)
	fmt.Printf("run_dir: %s\n", h.BaseDir)
	for _, p := range h.Pairs {
		fmt.Printf("%3d  %s  %s  %q\n", p.Ordinal, p.ImagePath, p.NarrationPath, p.Text)
	}
	for _, g := range h.Gaps {
		fmt.Printf("gap  %s_%d  %s %s\n", g.Kind, g.Index, g.Reason, g.Detail)
	}
	return nil
}
