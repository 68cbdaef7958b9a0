package catalog

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ruyi-tarot/tarot-service/internal/models"
)

//go:embed data/*.json
var catalogFS embed.FS

// Both deck systems read the same 78-card catalog; the system only
// changes how the oracle is prompted.
var registry = map[models.DeckSystem]string{
	models.DeckWaite: "data/waite.json",
	models.DeckThoth: "data/waite.json",
}

// Catalog serves immutable card lists loaded from embedded JSON.
type Catalog struct {
	once  sync.Once
	decks map[models.DeckSystem][]models.Card
	err   error
}

// New returns a Catalog backed by the embedded deck files.
func New() *Catalog {
	return &Catalog{}
}

func (c *Catalog) init() {
	c.decks = make(map[models.DeckSystem][]models.Card, len(registry))
	for system, filename := range registry {
		raw, err := catalogFS.ReadFile(filename)
		if err != nil {
			c.err = fmt.Errorf("failed to read embedded catalog %s: %w", system, err)
			return
		}
		var cards []models.Card
		if err := json.Unmarshal(raw, &cards); err != nil {
			c.err = fmt.Errorf("failed to parse embedded catalog %s: %w", system, err)
			return
		}
		c.decks[system] = cards
	}
}

// Cards returns the full card list for the given deck system. Unknown
// systems fall back to the Waite catalog.
func (c *Catalog) Cards(system models.DeckSystem) ([]models.Card, error) {
	c.once.Do(c.init)
	if c.err != nil {
		return nil, c.err
	}
	cards, ok := c.decks[system]
	if !ok {
		cards = c.decks[models.DeckWaite]
	}
	return cards, nil
}
