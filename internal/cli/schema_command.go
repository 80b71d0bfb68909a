package cli

import (
	"flag"
	"fmt"

	"github.com/invopop/jsonschema"

	"shorteezy/internal/handoff"
	"shorteezy/internal/runstore"
)

func documentSchemas() map[string]*jsonschema.Schema {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	manifest := &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       runstore.ManifestFileName,
		Description: "Ordered segments of one run, in script order",
		Type:        "array",
		Items:       r.Reflect(&runstore.ManifestEntry{}),
	}
	manifest.Items.Version = ""
	return map[string]*jsonschema.Schema{
		"manifest": manifest,
		"handoff":  r.Reflect(&handoff.Handoff{}),
	}
}

func runSchema(args []string) error {
	fs := flag.NewFlagSet("schema", flag.ContinueOnError)
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	schemas := documentSchemas()
	if fs.NArg() == 0 {
		return printJSON(schemas)
	}
	s, ok := schemas[fs.Arg(0)]
	if !ok {
		return fmt.Errorf("unknown document %q (use manifest or handoff)", fs.Arg(0))
	}
	return printJSON(s)
}
