package draw

import (
	"github.com/ruyi-tarot/tarot-service/internal/catalog"
	"github.com/ruyi-tarot/tarot-service/internal/models"
	"github.com/ruyi-tarot/tarot-service/internal/random"
)

// uprightThreshold gives a 60/40 upright/reversed split: each card's
// orientation is an independent trial, not a per-spread quota.
const uprightThreshold = 0.4

// Engine selects distinct cards from a catalog and assigns orientations.
// It holds no state between draws.
type Engine struct {
	catalog *catalog.Catalog
	rng     random.Source
}

// NewEngine initializes a draw engine over the given catalog and
// randomness source.
func NewEngine(cat *catalog.Catalog, rng random.Source) *Engine {
	return &Engine{catalog: cat, rng: rng}
}

// Draw selects count distinct cards from the deck without replacement.
// If count exceeds the catalog size the full catalog is returned;
// count <= 0 yields an empty spread. Neither case is an error.
func (e *Engine) Draw(count int, deck models.DeckSystem) ([]models.DrawnCard, error) {
	cards, err := e.catalog.Cards(deck)
	if err != nil {
		return nil, err
	}

	// Working pool is a copy; removing the chosen index is what
	// guarantees no duplicates.
	pool := make([]models.Card, len(cards))
	copy(pool, cards)

	drawn := make([]models.DrawnCard, 0, max(count, 0))
	for i := 0; i < count; i++ {
		if len(pool) == 0 {
			break
		}

		idx := int(e.rng.Float64() * float64(len(pool)))
		if idx >= len(pool) {
			idx = len(pool) - 1
		}
		card := pool[idx]
		pool = append(pool[:idx], pool[idx+1:]...)

		drawn = append(drawn, models.DrawnCard{
			Card:          card,
			IsUpright:     e.rng.Float64() > uprightThreshold,
			PositionIndex: i,
		})
	}

	return drawn, nil
}
