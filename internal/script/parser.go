// Package script turns raw script text into an ordered segment timeline.
package script

import (
	"strings"
	"unicode"

	"shorteezy/internal/model"
)

const NarratorMarker = "Narrator: "

// Parse reads text line by line. Lines starting with NarratorMarker become
// narration segments, lines starting with '[' become image prompts, and
// everything else is ignored. TypeIndex is assigned here, once, as a
// running 1-based counter per kind.
func Parse(text string) ([]model.Segment, []string) {
	segments := make([]model.Segment, 0)
	narrations := make([]string, 0)
	counts := map[model.Kind]int{}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSuffix(raw, "\r")

		var seg model.Segment
		switch {
		case strings.HasPrefix(line, NarratorMarker):
			content := stripNarration(strings.TrimPrefix(line, NarratorMarker))
			seg = model.Narration(content)
			narrations = append(narrations, content)
		case strings.HasPrefix(line, "["):
			seg = model.ImagePrompt(stripImagePrompt(line))
		default:
			continue
		}

		counts[seg.Kind]++
		seg.TypeIndex = counts[seg.Kind]
		seg.Ordinal = len(segments)
		segments = append(segments, seg)
	}
	return segments, narrations
}

func stripNarration(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '"' || r == '“' || r == '”'
	})
}

// stripImagePrompt tolerates a missing closing bracket.
func stripImagePrompt(line string) string {
	s := strings.TrimLeft(strings.TrimSpace(line), "[")
	s = strings.TrimRight(s, "]")
	return strings.TrimSpace(s)
}

var typographic = strings.NewReplacer(
	"’", "'",
	"‘", "'",
	"`", "'",
	"â€¦", "...",
	"…", "...",
	"“", `"`,
	"”", `"`,
)

// Normalize replaces typographic quotes and ellipses that language models
// like to emit with their plain ASCII forms.
func Normalize(text string) string {
	return typographic.Replace(text)
}
