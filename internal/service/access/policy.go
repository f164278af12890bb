// Package access gates backend usage by entitlement tier. The per-backend
// minimum tier lives in the catalog, so there is exactly one table to
// maintain and the check is a numeric rank comparison.
package access

import (
	"github.com/fluxchat/backend/internal/apperrors"
	"github.com/fluxchat/backend/internal/model/catalog"
)

// Policy answers tier questions against a fixed catalog.
type Policy struct {
	catalog *catalog.Catalog
}

// NewPolicy builds a policy over the given catalog.
func NewPolicy(c *catalog.Catalog) *Policy {
	return &Policy{catalog: c}
}

// Allows reports whether a caller at tier may invoke backendID. Unknown
// backends are never allowed.
func (p *Policy) Allows(tier catalog.Tier, backendID string) bool {
	cfg, ok := p.catalog.Resolve(backendID)
	if !ok {
		return false
	}
	return tier.Rank() >= cfg.MinTier.Rank()
}

// MinimumTierFor returns the lowest tier that may invoke backendID.
func (p *Policy) MinimumTierFor(backendID string) (catalog.Tier, error) {
	cfg, ok := p.catalog.Resolve(backendID)
	if !ok {
		return "", apperrors.ErrUnknownBackend
	}
	return cfg.MinTier, nil
}
