package cli

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"shorteezy/internal/preflight"
	"shorteezy/internal/settings"
)

func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	runsDir := fs.String("runs-dir", "", "runs directory (default from settings, shorts)")
	settingsPath := fs.String("settings", "", "settings file (JSON or YAML)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := settings.Load(strings.TrimSpace(*settingsPath))
	if err != nil {
		return err
	}
	if strings.TrimSpace(*runsDir) != "" {
		s.RunsDir = strings.TrimSpace(*runsDir)
	}

	res := preflight.Doctor(s)
	if *jsonOut {
		if err := printJSON(res); err != nil {
			return err
		}
	} else {
		for _, c := range res.Checks {
			status := "ok"
			if !c.OK {
				status = "fail"
			}
			fmt.Printf("%s: %s (%s)\n", c.Name, status, c.Message)
		}
	}
	if !res.OK {
		return errors.New("doctor checks failed")
	}
	if !*jsonOut {
		fmt.Println("doctor: all checks passed")
	}
	return nil
}
