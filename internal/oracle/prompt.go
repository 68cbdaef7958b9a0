package oracle

import (
	"fmt"
	"strings"

	"github.com/ruyi-tarot/tarot-service/internal/models"
)

const systemPrompt = `You are a master tarot reader fluent in both the Waite and Thoth ` +
	`traditions and in modern psychology. Your style is professional, calm, empathic and ` +
	`neutral. You analyze card symbolism, elemental interaction and numeric progression ` +
	`rather than offering vague platitudes. You answer strictly in valid JSON.`

func modeDescription(mode models.InterpretationMode) string {
	if mode == models.ModeKabbalah {
		return "Kabbalah Tree of Life: trace the descent of energy from Kether to Malkuth and locate the blockage"
	}
	return "Heaven-Earth-Man (Sancai): analyze the flow between the heaven (destiny), earth (circumstance) and man (strategy) positions"
}

// buildReadingPrompt renders the structured reading request as a user
// prompt. One line per card, in spread order.
func buildReadingPrompt(req models.ReadingRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Question: %s\n", req.Question)
	fmt.Fprintf(&b, "Deck system: %s\n", req.Deck)
	fmt.Fprintf(&b, "Interpretation mode: %s\n", modeDescription(req.Mode))
	fmt.Fprintf(&b, "Cards drawn (%d, in order):\n", len(req.Cards))

	for _, card := range req.Cards {
		orientation := "upright"
		if !card.IsUpright {
			orientation = "reversed"
		}
		fmt.Fprintf(&b, "  Position %d: %s (%s) - %s - %s", card.PositionIndex+1,
			card.Name, card.NameZh, orientation, card.Arcana)
		if card.Suit != "" {
			fmt.Fprintf(&b, " - %s", card.Suit)
		}
		b.WriteString("\n")
	}

	b.WriteString(`
Respond with ONLY a JSON object matching this exact schema:
{
  "summary": "<one or two sentences naming the core message of the spread>",
  "cardInterpretations": [
    {"cardId": "<id>", "coreMeaning": "...", "contextAnalysis": "...", "actionAdvice": "..."}
  ],
  "synthesis": "<overall synthesis following the interpretation mode>"
}
Include exactly one cardInterpretations entry per drawn card, keyed by cardId:
`)
	for _, card := range req.Cards {
		fmt.Fprintf(&b, "  %s\n", card.ID)
	}

	return b.String()
}
