package cli

import (
	"errors"
	"fmt"
	"strings"
)

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return errors.New("missing source: pass a file path or URL")
	}

	switch args[0] {
	case "generate":
		return runGenerate(args[1:])
	case "resume":
		return runResume(args[1:])
	case "handoff":
		return runHandoff(args[1:])
	case "doctor":
		return runDoctor(args[1:])
	case "schema":
		return runSchema(args[1:])
	case "status":
		return runStatus(args[1:])
	case "settings":
		return runSettings(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	}

	// Anything else is the source itself: `shorteezy <file_or_url> [settings]`.
	if strings.TrimSpace(args[0]) == "" {
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
	return runGenerate(args)
}

func printRootUsage() {
	fmt.Println("shorteezy: turn source material into narrated image sequences for YouTube Shorts")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  shorteezy [flags] <source_file_or_url> [settings_file]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  generate  write a script from the source and generate images + narration (default)")
	fmt.Println("  resume    regenerate missing or failed assets of an existing run")
	fmt.Println("  handoff   print (or rebuild) the image/narration pairs for the video assembler")
	fmt.Println("  doctor    run dependency, credential and filesystem preflight checks")
	fmt.Println("  schema    print JSON schemas of data.json entries and handoff.json")
	fmt.Println("  status    list runs with image and narration counts")
	fmt.Println("  settings  show the effective settings (file, .env and environment)")
	fmt.Println()
	fmt.Println("Notes:")
	fmt.Println("  - Runs are written to shorts/<run_id>/ (images/, narrations/, data.json, response.txt)")
	fmt.Println("  - Use --json on commands for machine-readable output")
	fmt.Println("  - Target existing runs with --run-dir <path> or --latest")
}
