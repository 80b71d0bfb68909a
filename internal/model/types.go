package model

import (
	"strconv"
	"strings"
	"time"
)

// Kind tags a segment as either spoken narration or an image prompt.
type Kind string

const (
	KindNarration   Kind = "narration"
	KindImagePrompt Kind = "image"
)

// Segment is one line of the script timeline. Text holds the narration
// content for KindNarration and the image description for KindImagePrompt.
type Segment struct {
	Kind       Kind   `json:"kind"`
	Text       string `json:"text"`
	Ordinal    int    `json:"ordinal"`
	TypeIndex  int    `json:"type_index"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	OutputPath string `json:"output_path,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

func Narration(text string) Segment {
	return Segment{Kind: KindNarration, Text: text, Status: StatusPending}
}

func ImagePrompt(description string) Segment {
	return Segment{Kind: KindImagePrompt, Text: description, Status: StatusPending}
}

// Content returns the narration text, or "" for image segments.
func (s Segment) Content() string {
	if s.Kind != KindNarration {
		return ""
	}
	return s.Text
}

// Description returns the image prompt, or "" for narration segments.
func (s Segment) Description() string {
	if s.Kind != KindImagePrompt {
		return ""
	}
	return s.Text
}

func (s Segment) Label() string {
	return string(s.Kind) + "_" + strconv.Itoa(s.TypeIndex)
}

type KindSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
}

type Summary struct {
	Narration KindSummary `json:"narration"`
	Image     KindSummary `json:"image"`
}

func (s Summary) For(kind Kind) KindSummary {
	if kind == KindImagePrompt {
		return s.Image
	}
	return s.Narration
}

func (s Summary) Failed() int {
	return s.Narration.Failed + s.Image.Failed
}

// Run is one pipeline execution rooted at BaseDir.
type Run struct {
	ID          string    `json:"run_id"`
	BaseDir     string    `json:"base_dir"`
	Source      string    `json:"source,omitempty"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at,omitempty"`
	CompletedAt string    `json:"completed_at,omitempty"`
	Summary     Summary   `json:"summary"`
	Segments    []Segment `json:"-"`
}

func NewRun(id, baseDir string, segments []Segment) *Run {
	run := &Run{
		ID:        strings.TrimSpace(id),
		BaseDir:   baseDir,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Segments:  segments,
	}
	run.RecomputeSummary()
	return run
}

func (r *Run) RecomputeSummary() {
	var sum Summary
	for _, seg := range r.Segments {
		ks := &sum.Narration
		if seg.Kind == KindImagePrompt {
			ks = &sum.Image
		}
		ks.Total++
		switch seg.Status {
		case StatusSucceeded:
			ks.Succeeded++
		case StatusFailed:
			ks.Failed++
		default:
			ks.Pending++
		}
	}
	r.Summary = sum
}

// MergeState copies generation state from prev onto next wherever the
// segment at the same script position still has the same kind and text.
// Segments that were edited since prev was recorded start over as pending.
func MergeState(prev, next []Segment) []Segment {
	out := make([]Segment, len(next))
	copy(out, next)
	for i := range out {
		if i >= len(prev) || !sameContent(prev[i], out[i]) {
			continue
		}
		old := prev[i]
		out[i].Status = old.Status
		out[i].Reason = old.Reason
		out[i].Attempts = old.Attempts
		out[i].LastError = old.LastError
		out[i].OutputPath = old.OutputPath
	}
	return out
}

// ChangedSegments returns the segments of next that MergeState starts over.
// Any asset already stored under their type index was made from other text.
func ChangedSegments(prev, next []Segment) []Segment {
	var changed []Segment
	for i, seg := range next {
		if i < len(prev) && sameContent(prev[i], seg) {
			continue
		}
		changed = append(changed, seg)
	}
	return changed
}

func sameContent(a, b Segment) bool {
	return a.Kind == b.Kind && a.Text == b.Text && a.TypeIndex == b.TypeIndex
}
