package script

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shorteezy/internal/model"
)

func TestParseInterleavedScript(t *testing.T) {
	text := strings.Join([]string{
		"[A desert.]",
		`Narrator: "Hello."`,
		"[A city.]",
		`Narrator: "World."`,
	}, "\n")

	segs, narrations := Parse(text)
	require.Len(t, segs, 4)

	want := []struct {
		kind      model.Kind
		text      string
		typeIndex int
	}{
		{model.KindImagePrompt, "A desert.", 1},
		{model.KindNarration, "Hello.", 1},
		{model.KindImagePrompt, "A city.", 2},
		{model.KindNarration, "World.", 2},
	}
	for i, w := range want {
		assert.Equal(t, w.kind, segs[i].Kind, "segment %d kind", i)
		assert.Equal(t, w.text, segs[i].Text, "segment %d text", i)
		assert.Equal(t, w.typeIndex, segs[i].TypeIndex, "segment %d typeIndex", i)
		assert.Equal(t, i, segs[i].Ordinal, "segment %d ordinal", i)
		assert.Equal(t, model.StatusPending, segs[i].Status)
	}
	assert.Equal(t, []string{"Hello.", "World."}, narrations)
}

func TestParseIgnoresUnrecognizedLines(t *testing.T) {
	text := "###\n\nSome preamble\n[An image]\n  Narrator: indented is ignored\n\"bare quote\"\n###\n"
	segs, narrations := Parse(text)
	require.Len(t, segs, 1)
	assert.Equal(t, model.KindImagePrompt, segs[0].Kind)
	assert.Empty(t, narrations)
}

func TestParseKeepsEmptyNarration(t *testing.T) {
	segs, narrations := Parse("Narrator: \"\"\nNarrator:   \nNarrator:\n")
	require.Len(t, segs, 2, "only lines with the full marker count")
	assert.Equal(t, "", segs[0].Text)
	assert.Equal(t, "", segs[1].Text)
	assert.Equal(t, []string{"", ""}, narrations)

	segs, _ = Parse("Narrator: \"\"\r\nNarrator: \"next\"\r\n")
	require.Len(t, segs, 2)
	assert.Equal(t, "", segs[0].Text)
	assert.Equal(t, 2, segs[1].TypeIndex)
}

func TestParseMalformedBracketIsBestEffort(t *testing.T) {
	segs, _ := Parse("[A forest at dawn\nNarrator: \"Still parsed.\"")
	require.Len(t, segs, 2)
	assert.Equal(t, "A forest at dawn", segs[0].Text)
	assert.Equal(t, "Still parsed.", segs[1].Text)
}

func TestParseHandlesCRLFAndCurlyQuotes(t *testing.T) {
	segs, _ := Parse("[Sky.]\r\nNarrator: “Curly.”\r\n")
	require.Len(t, segs, 2)
	assert.Equal(t, "Sky.", segs[0].Text)
	assert.Equal(t, "Curly.", segs[1].Text)
}

func TestParseIsDeterministic(t *testing.T) {
	text := "[a]\nNarrator: \"b\"\n[c]\n[d]\nNarrator: \"e\"\nnoise\nNarrator: \"f\""
	first, firstN := Parse(text)
	for i := 0; i < 5; i++ {
		again, againN := Parse(text)
		require.Equal(t, first, again)
		require.Equal(t, firstN, againN)
	}

	var imageIdx, narrIdx []int
	for _, s := range first {
		if s.Kind == model.KindImagePrompt {
			imageIdx = append(imageIdx, s.TypeIndex)
		} else {
			narrIdx = append(narrIdx, s.TypeIndex)
		}
	}
	assert.Equal(t, []int{1, 2, 3}, imageIdx)
	assert.Equal(t, []int{1, 2, 3}, narrIdx)
}

func TestNormalize(t *testing.T) {
	in := "It’s `fine` “quoted” and â€¦ more…"
	assert.Equal(t, `It's 'fine' "quoted" and ... more...`, Normalize(in))
}
