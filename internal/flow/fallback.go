package flow

import (
	"strings"

	"github.com/BTreeMap/CravingCompanion/internal/models"
)

// Fixed fallback lines.
const (
	DefaultPrimaryLine = "Let's take this one moment at a time."
	PlaceholderLine    = "We are still configuring the live Freedom Coach. This message was generated from the static script so you can continue the flow."
)

// IntensityLine acknowledges a craving rating.
func IntensityLine(v float64) string {
	return "You rated this craving a " + models.FormatIntensity(v) + ". Each rating helps us track how the waves are shrinking."
}

// FallbackMessages builds the scripted reply: the primary line, the intensity
// acknowledgement for relief turns that carry a rating, then the placeholder.
func FallbackMessages(req models.TurnRequest, sc models.StageScript) []string {
	primary := sc.FirstCoachMessage()
	if primary == "" {
		primary = DefaultPrimaryLine
	}

	messages := make([]string, 0, 3)
	messages = append(messages, primary)
	if v, ok := req.Intensity(); ok && req.Stage.Family() == models.StageRelief {
		messages = append(messages, IntensityLine(v))
	}
	return append(messages, PlaceholderLine)
}

func sanitize(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
