package content

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrParse is returned when a reply does not contain every expected section.
var ErrParse = errors.New("parse reply")

// Section maps a reply label to the slot it fills.
type Section struct {
	Label string
	Slot  string
}

// StandardSections is the three-field reply the default prompt asks for.
var StandardSections = []Section{
	{Label: "INSIGHT", Slot: SlotNewsInsight},
	{Label: "QUESTION", Slot: SlotIntelligenceExample},
	{Label: "REMINDER", Slot: SlotContentReminder},
}

// ExtendedSections asks the model for every generated slot on the site.
var ExtendedSections = []Section{
	{Label: "INSIGHT", Slot: SlotNewsInsight},
	{Label: "QUESTION", Slot: SlotIntelligenceExample},
	{Label: "CONSULTING", Slot: SlotConsultingInsight},
	{Label: "REMINDER", Slot: SlotContentReminder},
	{Label: "OBSERVATION", Slot: SlotMarketObservation},
	{Label: "PURPOSE", Slot: SlotPurposeContext},
	{Label: "SERVICE", Slot: SlotServiceDescription},
	{Label: "ESI", Slot: SlotESIDescription},
	{Label: "AGENCY", Slot: SlotAgencyDescription},
	{Label: "KSO", Slot: SlotKSODescription},
	{Label: "TRANSACTION", Slot: SlotTransactionDescription},
	{Label: "TRIPTYCH", Slot: SlotTriptychDescription},
}

// Preset names accepted by SectionsFor.
const (
	PresetStandard = "standard"
	PresetExtended = "extended"
)

// SectionsFor resolves a named section preset.
func SectionsFor(preset string) ([]Section, error) {
	switch preset {
	case "", PresetStandard:
		return StandardSections, nil
	case PresetExtended:
		return ExtendedSections, nil
	default:
		return nil, fmt.Errorf("unknown sections preset %q", preset)
	}
}

// Parse extracts the labeled sections from reply. Labels must appear in
// order, each at the start of a line and followed by a colon. A section
// runs until the next expected label or the end of the reply.
func Parse(reply string, sections []Section) (map[string]string, error) {
	type span struct{ labelAt, valueAt int }
	spans := make([]span, len(sections))

	cursor := 0
	for i, s := range sections {
		re := labelPattern(s.Label)
		loc := re.FindStringIndex(reply[cursor:])
		if loc == nil {
			return nil, fmt.Errorf("%w: missing %s", ErrParse, s.Label)
		}
		spans[i] = span{labelAt: cursor + loc[0], valueAt: cursor + loc[1]}
		cursor = cursor + loc[1]
	}

	out := make(map[string]string, len(sections))
	for i, s := range sections {
		end := len(reply)
		if i+1 < len(spans) {
			end = spans[i+1].labelAt
		}
		v := cleanValue(reply[spans[i].valueAt:end])
		if v == "" {
			return nil, fmt.Errorf("%w: empty %s", ErrParse, s.Label)
		}
		out[s.Slot] = v
	}
	return out, nil
}

func labelPattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?m)^[ \t]*` + regexp.QuoteMeta(label) + `:`)
}

func cleanValue(s string) string {
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
