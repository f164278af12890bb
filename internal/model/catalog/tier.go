package catalog

// Tier is the entitlement rank gating backend access.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// tierRanks orders tiers so access checks compare numbers instead of
// maintaining per-plan allow lists.
var tierRanks = map[Tier]int{
	TierFree:       0,
	TierPro:        1,
	TierEnterprise: 2,
}

// Rank returns the numeric rank of a tier. Unknown tiers rank below free.
func (t Tier) Rank() int {
	rank, ok := tierRanks[t]
	if !ok {
		return -1
	}
	return rank
}

// Valid reports whether the tier is one of the known ranks.
func (t Tier) Valid() bool {
	_, ok := tierRanks[t]
	return ok
}
