package models

// ReadingRequest is the structured request sent to the interpretation oracle.
type ReadingRequest struct {
	Question string             `json:"question"`
	Deck     DeckSystem         `json:"deck"`
	Mode     InterpretationMode `json:"mode"`
	Cards    []DrawnCard        `json:"cards"`
}

// CardInterpretation is the oracle's per-card analysis, matched to a
// drawn card by CardID.
type CardInterpretation struct {
	CardID          string `json:"cardId"`
	CoreMeaning     string `json:"coreMeaning"`
	ContextAnalysis string `json:"contextAnalysis"`
	ActionAdvice    string `json:"actionAdvice"`
}

// FullReadingResponse is the oracle's complete answer for one spread.
type FullReadingResponse struct {
	Summary             string               `json:"summary"`
	CardInterpretations []CardInterpretation `json:"cardInterpretations"`
	Synthesis           string               `json:"synthesis"`
}
