package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStandard(t *testing.T) {
	got, err := Parse("INSIGHT: A\nQUESTION: B\nREMINDER: C", StandardSections)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		SlotNewsInsight:         "A",
		SlotIntelligenceExample: "B",
		SlotContentReminder:     "C",
	}, got)
}

func TestParseMultilineAndFences(t *testing.T) {
	reply := "Here you go.\n\n```\nINSIGHT: Rates held again.\nMarkets shrugged.\n\nQUESTION:   Why now?  \n  REMINDER: Remember how rates stayed put?\n```\n"
	got, err := Parse(reply, StandardSections)
	require.NoError(t, err)
	assert.Equal(t, "Rates held again.\nMarkets shrugged.", got[SlotNewsInsight])
	assert.Equal(t, "Why now?", got[SlotIntelligenceExample])
	assert.Equal(t, "Remember how rates stayed put?", got[SlotContentReminder])
}

func TestParseLabelsMustStartLine(t *testing.T) {
	// "INSIGHT:" inside a sentence does not count.
	_, err := Parse("Our INSIGHT: none\nQUESTION: b\nREMINDER: c", StandardSections)
	assert.ErrorIs(t, err, ErrParse)
}

func TestParseFailures(t *testing.T) {
	cases := map[string]string{
		"missing label":  "INSIGHT: a\nREMINDER: c",
		"out of order":   "QUESTION: b\nINSIGHT: a\nREMINDER: c",
		"empty section":  "INSIGHT:\nQUESTION: b\nREMINDER: c",
		"only fences":    "INSIGHT: ```\nQUESTION: b\nREMINDER: c",
		"empty reply":    "",
		"lowercase":      "insight: a\nquestion: b\nreminder: c",
		"no colon":       "INSIGHT a\nQUESTION b\nREMINDER c",
		"trailing empty": "INSIGHT: a\nQUESTION: b\nREMINDER:   \n",
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(reply, StandardSections)
			assert.ErrorIs(t, err, ErrParse)
		})
	}
}

func TestParseExtended(t *testing.T) {
	reply := ""
	for _, s := range ExtendedSections {
		reply += s.Label + ": value for " + s.Slot + "\n"
	}
	got, err := Parse(reply, ExtendedSections)
	require.NoError(t, err)
	require.Len(t, got, len(ExtendedSections))
	for _, s := range ExtendedSections {
		assert.Equal(t, "value for "+s.Slot, got[s.Slot])
	}
}

func TestSectionsFor(t *testing.T) {
	s, err := SectionsFor("")
	require.NoError(t, err)
	assert.Equal(t, StandardSections, s)

	s, err = SectionsFor(PresetExtended)
	require.NoError(t, err)
	assert.Len(t, s, 12)

	_, err = SectionsFor("everything")
	assert.Error(t, err)
}
