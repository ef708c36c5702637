// Package content generates, caches and serves the dynamic marketing copy.
//
// The write side (Generator, Store.Write) runs on a schedule and always
// produces a complete file, falling back to static copy when anything goes
// wrong. The read side (Store.Load) never fails: it returns the cached slots
// when they are young enough for the caller's Policy and the static copy
// otherwise.
package content

import (
	"maps"
	"time"
)

// Slot names shared by the writer, the reader and the HTTP layer.
const (
	SlotNewsInsight            = "newsInsight"
	SlotPatternInsight         = "patternInsight"
	SlotIntelligenceExample    = "intelligenceExample"
	SlotConsultingInsight      = "consultingInsight"
	SlotContentReminder        = "contentReminder"
	SlotMarketObservation      = "marketObservation"
	SlotPurposeContext         = "purposeContext"
	SlotServiceDescription     = "serviceDescription"
	SlotESIDescription         = "esiDescription"
	SlotAgencyDescription      = "agencyDescription"
	SlotKSODescription         = "ksoDescription"
	SlotTransactionDescription = "transactionDescription"
	SlotTriptychDescription    = "triptychDescription"
)

// Slots lists every recognized slot in display order.
var Slots = []string{
	SlotNewsInsight,
	SlotPatternInsight,
	SlotIntelligenceExample,
	SlotConsultingInsight,
	SlotContentReminder,
	SlotMarketObservation,
	SlotPurposeContext,
	SlotServiceDescription,
	SlotESIDescription,
	SlotAgencyDescription,
	SlotKSODescription,
	SlotTransactionDescription,
	SlotTriptychDescription,
}

var defaults = map[string]string{
	SlotNewsInsight:            "Notice how every CEO says they want innovation but hires for predictability? That's not contradiction. That's institutional self-preservation disguised as strategy.",
	SlotPatternInsight:         "You're still reading. That already puts you ahead.",
	SlotIntelligenceExample:    "Unemployment hitting 5%, for example. We read that and our mind goes to: what industries are hardest hit, and what does that tell us about which skills are becoming obsolete?",
	SlotConsultingInsight:      "We were just reading about how the big consulting firms built something remarkable. World class thinking, rigorous frameworks, proven methodologies. But what if that caliber of strategic insight wasn't locked behind day rates? What if the mental models that transform Fortune 500 companies could be infrastructure instead of scarcity?",
	SlotContentReminder:        "Remember how the landing page showed CEOs hiring for predictability, and the What We Do page wondered which skills are becoming obsolete?",
	SlotMarketObservation:      "Right now we're watching companies panic about efficiency while missing the real pattern: their best people are solving the wrong problems brilliantly.",
	SlotPurposeContext:         "The companies surviving best are the ones whose teams already knew the answer to 'why do we exist beyond making money?'",
	SlotServiceDescription:     "Dissect your business from its root reason to exist. Then cascade that purpose through every system and touchpoint. Inside-out authenticity that strengthens both internal culture and external message. Purpose as operating system, not marketing tagline.",
	SlotESIDescription:         "Explore, Synthesize, Ignite. Our operating system for transformation. Explore uncovers truth. Synthesize turns discovery into clarity. Ignite makes clarity executable. Research, strategy, and execution as a continuous loop.",
	SlotAgencyDescription:      "For high-performers who realize their 70-hour weeks produce 40 hours of value. Secret Agency: where executives learn to optimize for impact, not inbox zero. Because busy and effective stopped being the same thing years ago.",
	SlotKSODescription:         "The future of discoverability isn't about links. It's about ideas. In a world where AI systems index knowledge instead of URLs, authority belongs to those who own the narrative. We dissect your business DNA and rebuild it as a knowledge graph of authority.",
	SlotTransactionDescription: "Vision to transaction to validation. Map how value exchanges actually happen across three dimensions: spiritual (emotional resonance), cognitive (understanding shifts), and tangible (measurable actions). Then design every touchpoint to trigger those transactions. Conversion through understanding, not manipulation.",
	SlotTriptychDescription:    "We examine your business through three lenses simultaneously: how you market, how you compete, how you build. Most problems live in the gaps between these. Most opportunities too.",
}

// Defaults returns a fresh copy of the static fallback copy, one entry per
// slot. Callers may modify the result.
func Defaults() map[string]string {
	return maps.Clone(defaults)
}

// CachedContent is the on-disk cache document.
type CachedContent struct {
	Generated    time.Time         `json:"generated"`
	Expires      time.Time         `json:"expires"`
	Content      map[string]string `json:"content"`
	Metadata     Metadata          `json:"metadata"`
	FallbackUsed bool              `json:"fallbackUsed"`
}

// Metadata is diagnostic only; nothing on the serving path reads it.
type Metadata struct {
	RunID             string         `json:"runId,omitempty"`
	Model             string         `json:"model,omitempty"`
	GenerationTimeMs  int64          `json:"generationTimeMs"`
	HeadlinesAnalyzed int            `json:"headlinesAnalyzed"`
	Sources           map[string]int `json:"sources,omitempty"`
	PromptFile        string         `json:"promptFile,omitempty"`
	ContentDigest     string         `json:"contentDigest,omitempty"`
	Error             string         `json:"error,omitempty"`
	ErrorTime         *time.Time     `json:"errorTime,omitempty"`
}

// merge overlays recognized, non-empty slots from cached onto the defaults.
func merge(cached map[string]string) map[string]string {
	out := Defaults()
	for slot, v := range cached {
		if _, ok := defaults[slot]; ok && v != "" {
			out[slot] = v
		}
	}
	return out
}
