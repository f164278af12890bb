package generate

import (
	"math"

	"github.com/fluxchat/backend/internal/model/catalog"
)

// Meter derives token counts and cost from text and the catalog cost table.
type Meter struct {
	catalog *catalog.Catalog
}

// NewMeter builds a meter over the given catalog.
func NewMeter(c *catalog.Catalog) *Meter {
	return &Meter{catalog: c}
}

// EstimateTokens approximates the token count of text. The length/4 proxy is
// deterministic and monotonic, which metering and tests rely on.
func (m *Meter) EstimateTokens(text string) int {
	return len(text) / 4
}

// Cost prices a token count against a backend's cost table, rounded to six
// fractional digits. Unknown backends cost zero; metering never fails a
// request.
func (m *Meter) Cost(tokens int, backendID string) float64 {
	cfg, ok := m.catalog.Resolve(backendID)
	if !ok {
		return 0
	}
	return roundCost(float64(tokens) * cfg.CostPerToken)
}

func roundCost(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
