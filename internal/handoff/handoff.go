// Package handoff projects a finished run into the ordered list of
// (image, narration) pairs the video assembler consumes.
//
// Failed segments are skipped, never padded: a narration whose own audio
// or whose associated image is missing is reported as a gap and left out
// of Pairs, so the assembler only ever sees complete pairs.
package handoff

import (
	"time"

	"shorteezy/internal/model"
	"shorteezy/internal/runstore"
)

const (
	GapSegmentFailed    = "segment_failed"
	GapSegmentPending   = "segment_pending"
	GapImageUnavailable = "image_unavailable"
	GapNoImage          = "no_image"
)

type Pair struct {
	Ordinal        int    `json:"ordinal" jsonschema_description:"Script position of the narration"`
	NarrationIndex int    `json:"narration_index"`
	ImageIndex     int    `json:"image_index"`
	Text           string `json:"text"`
	ImagePath      string `json:"image_path" jsonschema_description:"Relative to the run directory"`
	NarrationPath  string `json:"narration_path" jsonschema_description:"Relative to the run directory"`
}

type Gap struct {
	Kind    model.Kind `json:"kind" jsonschema:"enum=narration,enum=image"`
	Index   int        `json:"index"`
	Ordinal int        `json:"ordinal"`
	Reason  string     `json:"reason"`
	Detail  string     `json:"detail,omitempty"`
}

type Handoff struct {
	RunID       string         `json:"run_id"`
	BaseDir     string         `json:"base_dir"`
	GeneratedAt string         `json:"generated_at"`
	Summary     model.Summary  `json:"summary"`
	Pairs       []Pair         `json:"pairs"`
	Gaps        []Gap          `json:"gaps"`
	Captions    map[string]any `json:"captions,omitempty" jsonschema_description:"Assembler settings passed through from the settings file"`
}

// Build pairs every narration with the nearest preceding image segment, or
// the nearest following one when no image comes before it. Pairs come out
// in script order.
func Build(run *model.Run, layout runstore.Layout, captions map[string]any) Handoff {
	h := Handoff{
		RunID:       run.ID,
		BaseDir:     layout.BaseDir,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Summary:     run.Summary,
		Pairs:       []Pair{},
		Gaps:        []Gap{},
		Captions:    captions,
	}

	segs := run.Segments
	for i, seg := range segs {
		if seg.Status != model.StatusSucceeded {
			h.Gaps = append(h.Gaps, segmentGap(seg))
			continue
		}
		if seg.Kind != model.KindNarration {
			continue
		}

		img := associatedImage(segs, i)
		switch {
		case img < 0:
			h.Gaps = append(h.Gaps, Gap{Kind: seg.Kind, Index: seg.TypeIndex, Ordinal: seg.Ordinal, Reason: GapNoImage})
		case segs[img].Status != model.StatusSucceeded:
			h.Gaps = append(h.Gaps, Gap{
				Kind: seg.Kind, Index: seg.TypeIndex, Ordinal: seg.Ordinal,
				Reason: GapImageUnavailable, Detail: segs[img].Label(),
			})
		default:
			h.Pairs = append(h.Pairs, Pair{
				Ordinal:        seg.Ordinal,
				NarrationIndex: seg.TypeIndex,
				ImageIndex:     segs[img].TypeIndex,
				Text:           seg.Text,
				ImagePath:      layout.Relative(segs[img].OutputPath),
				NarrationPath:  layout.Relative(seg.OutputPath),
			})
		}
	}
	return h
}

func associatedImage(segs []model.Segment, at int) int {
	for j := at - 1; j >= 0; j-- {
		if segs[j].Kind == model.KindImagePrompt {
			return j
		}
	}
	for j := at + 1; j < len(segs); j++ {
		if segs[j].Kind == model.KindImagePrompt {
			return j
		}
	}
	return -1
}

func segmentGap(seg model.Segment) Gap {
	g := Gap{Kind: seg.Kind, Index: seg.TypeIndex, Ordinal: seg.Ordinal, Reason: GapSegmentPending, Detail: seg.Reason}
	if seg.Status == model.StatusFailed {
		g.Reason = GapSegmentFailed
	}
	return g
}

func Save(layout runstore.Layout, h Handoff) error {
	return runstore.WriteJSON(layout.HandoffPath(), h)
}

func Load(layout runstore.Layout) (Handoff, error) {
	var h Handoff
	if err := runstore.ReadJSON(layout.HandoffPath(), &h); err != nil {
		return Handoff{}, err
	}
	return h, nil
}
