package runstore

import (
	"fmt"
	"path/filepath"
	"strings"

	"shorteezy/internal/model"
)

const (
	EntryTypeText  = "text"
	EntryTypeImage = "image"
)

// ManifestEntry is one element of data.json. The type/content/description
// trio is the shape downstream tools already read; the remaining fields
// are optional extensions.
type ManifestEntry struct {
	Type        string  `json:"type" jsonschema:"enum=text,enum=image"`
	Content     *string `json:"content,omitempty" jsonschema_description:"Narration text (type=text)"`
	Description *string `json:"description,omitempty" jsonschema_description:"Image prompt (type=image)"`
	Index       int     `json:"index,omitempty" jsonschema_description:"1-based rank among entries of the same type"`
	Status      string  `json:"status,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	Path        string  `json:"path,omitempty" jsonschema_description:"Asset path relative to the run directory"`
	Attempts    int     `json:"attempts,omitempty"`
	Error       string  `json:"error,omitempty"`
}

func (l Layout) ManifestEntries(segs []model.Segment) []ManifestEntry {
	out := make([]ManifestEntry, 0, len(segs))
	for _, seg := range segs {
		text := seg.Text
		entry := ManifestEntry{
			Index:    seg.TypeIndex,
			Status:   seg.Status,
			Reason:   seg.Reason,
			Attempts: seg.Attempts,
			Error:    seg.LastError,
		}
		if seg.Kind == model.KindImagePrompt {
			entry.Type = EntryTypeImage
			entry.Description = &text
		} else {
			entry.Type = EntryTypeText
			entry.Content = &text
		}
		if seg.OutputPath != "" {
			entry.Path = l.Relative(seg.OutputPath)
		}
		out = append(out, entry)
	}
	return out
}

func (l Layout) SaveManifest(segs []model.Segment) error {
	return WriteJSON(l.ManifestPath(), l.ManifestEntries(segs))
}

// LoadManifest rebuilds segments from data.json. Entries without an index
// get one from their position among same-type entries, which is what the
// parser would have assigned. Unknown entry types are skipped.
func (l Layout) LoadManifest() ([]model.Segment, error) {
	var entries []ManifestEntry
	if err := ReadJSON(l.ManifestPath(), &entries); err != nil {
		return nil, err
	}
	return l.segmentsFromEntries(entries)
}

func (l Layout) segmentsFromEntries(entries []ManifestEntry) ([]model.Segment, error) {
	segs := make([]model.Segment, 0, len(entries))
	counts := map[model.Kind]int{}
	for _, e := range entries {
		var seg model.Segment
		switch strings.TrimSpace(e.Type) {
		case EntryTypeText:
			seg = model.Narration(deref(e.Content))
		case EntryTypeImage:
			seg = model.ImagePrompt(deref(e.Description))
		default:
			continue
		}
		counts[seg.Kind]++
		seg.TypeIndex = counts[seg.Kind]
		if e.Index > 0 {
			seg.TypeIndex = e.Index
		}
		seg.Ordinal = len(segs)
		if e.Status != "" {
			if !model.IsKnownStatus(e.Status) {
				return nil, fmt.Errorf("manifest %s: unknown status %q for %s", l.ManifestPath(), e.Status, seg.Label())
			}
			seg.Status = e.Status
		}
		seg.Reason = e.Reason
		seg.Attempts = e.Attempts
		seg.LastError = e.Error
		if e.Path != "" {
			seg.OutputPath = l.Absolute(e.Path)
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// Relative returns path relative to the run directory, slash separated.
func (l Layout) Relative(path string) string {
	rel, err := filepath.Rel(l.BaseDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (l Layout) Absolute(path string) string {
	p := filepath.FromSlash(path)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(l.BaseDir, p)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
