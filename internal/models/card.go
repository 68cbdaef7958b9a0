package models

// DeckSystem selects which tarot tradition frames the interpretation.
// Both systems draw from the same catalog; the difference lives in the
// prompt sent to the oracle, not in the draw.
type DeckSystem string

const (
	DeckWaite DeckSystem = "Waite"
	DeckThoth DeckSystem = "Thoth"
)

// InterpretationMode selects the synthesis framework for a reading.
type InterpretationMode string

const (
	ModeSancai   InterpretationMode = "SANCIA"   // Heaven, Earth, Man
	ModeKabbalah InterpretationMode = "KABBALAH" // Tree of Life
)

// Arcana classifies a card as Major or Minor.
type Arcana string

const (
	ArcanaMajor Arcana = "Major"
	ArcanaMinor Arcana = "Minor"
)

// Card is a static catalog entry, loaded once at process start.
type Card struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	NameZh   string   `json:"nameZh"`
	Arcana   Arcana   `json:"arcana"`
	Suit     string   `json:"suit,omitempty"`
	Number   int      `json:"number"`
	Keywords []string `json:"keywords"`
}

// DrawnCard is a Card bound to one reading. It is owned by the session
// that drew it and discarded when the session resets.
type DrawnCard struct {
	Card
	IsUpright     bool `json:"isUpright"`
	PositionIndex int  `json:"positionIndex"`
}
