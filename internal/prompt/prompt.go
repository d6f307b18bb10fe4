// Package prompt renders the instruction and per-turn context prompts sent to a
// generation provider. Output is a pure function of its inputs.
package prompt

import (
	"strings"

	"github.com/BTreeMap/CravingCompanion/internal/models"
)

// Persona is the fixed voice directive that opens every system prompt.
const Persona = `You are the Ascend Freedom Coach, an empathetic guide who helps people ride out nicotine cravings and glimpse life without them. You improvise around a static script, tailoring language to the user's craving intensity, affect, and stage.

Guiding principles:
- Keep responses short (1-3 sentences) and emotionally warm.
- Never mention willpower, shame, or punishment.
- Celebrate progress and reinforce that cravings are temporary waves.
- Use the stage metadata and script hints to stay aligned with the experience philosophy.
- When capturing intensity, echo the rating back and acknowledge the shift.
- If the user declines a branch, gracefully move to the next stage without judgment.

Always speak in first person as the Ascend Freedom Coach. Do not prefix responses with your name, and keep the conversation focused on calm, freedom-oriented support.`

const unknown = "unknown"

// Preview returns at most n characters of the persona directive.
func Preview(n int) string {
	r := []rune(Persona)
	if n < 0 || n >= len(r) {
		return Persona
	}
	return string(r[:n])
}

// BuildSystemPrompt joins the persona with the stage's intent, tone, coach hints,
// follow-up suggestions and improv notes. Empty sections are left out.
func BuildSystemPrompt(sc models.StageScript) string {
	sections := []string{Persona}
	if s := strings.TrimSpace(sc.Intent); s != "" {
		sections = append(sections, "Intent: "+s)
	}
	if s := strings.TrimSpace(sc.Tone); s != "" {
		sections = append(sections, "Tone: "+s)
	}
	if s := bulleted("Coach hints:", "• ", sc.CoachMessages); s != "" {
		sections = append(sections, s)
	}
	if s := bulleted("Follow-up suggestions:", "- ", sc.UserPrompts); s != "" {
		sections = append(sections, s)
	}
	if s := bulleted("Improv notes:", "- ", sc.ImprovNotes); s != "" {
		sections = append(sections, s)
	}
	return strings.Join(sections, "\n\n")
}

// BuildUserPrompt renders the live turn context.
func BuildUserPrompt(req models.TurnRequest) string {
	intensity := unknown
	if v, ok := req.Intensity(); ok {
		intensity = models.FormatIntensity(v)
	}
	mode := unknown
	if m := req.Mode(); m != "" {
		mode = string(m)
	}

	var b strings.Builder
	b.WriteString("Stage: ")
	b.WriteString(string(req.Stage))
	b.WriteString("\nCraving intensity: ")
	b.WriteString(intensity)
	b.WriteString("\nInteraction mode: ")
	b.WriteString(mode)
	b.WriteString("\nUser input: ")
	b.WriteString(req.UserInput)
	return b.String()
}

func bulleted(heading, bullet string, items []string) string {
	var lines []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			lines = append(lines, bullet+it)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return heading + "\n" + strings.Join(lines, "\n")
}
