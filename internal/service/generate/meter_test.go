package generate_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxchat/backend/internal/model/catalog"
	"github.com/fluxchat/backend/internal/service/generate"
)

func meterCatalog() *catalog.Catalog {
	return catalog.New(map[string]catalog.Config{
		"scripted": {Name: "scripted", CostPerToken: 0.00001, MinTier: catalog.TierFree},
		"pricey":   {Name: "pricey", CostPerToken: 0.00003, MinTier: catalog.TierPro},
	}, "scripted")
}

func TestEstimateTokens(t *testing.T) {
	meter := generate.NewMeter(meterCatalog())

	require.Equal(t, 0, meter.EstimateTokens(""))
	require.Equal(t, 0, meter.EstimateTokens("abc"))
	require.Equal(t, 1, meter.EstimateTokens("abcd"))
	// "hello" plus "Hello" is ten bytes, two tokens.
	require.Equal(t, 2, meter.EstimateTokens("hello"+"Hello"))
}

func TestEstimateTokensMonotonic(t *testing.T) {
	meter := generate.NewMeter(meterCatalog())

	prev := 0
	text := ""
	for i := 0; i < 64; i++ {
		text += "x"
		got := meter.EstimateTokens(text)
		require.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestCostRoundsToSixDigits(t *testing.T) {
	meter := generate.NewMeter(meterCatalog())

	require.Equal(t, 0.00002, meter.Cost(2, "scripted"))
	require.Equal(t, 0.00009, meter.Cost(3, "pricey"))
	// 7 * 0.00003 = 0.00021 exactly after rounding.
	require.Equal(t, 0.00021, meter.Cost(7, "pricey"))
}

func TestCostUnknownBackendIsZero(t *testing.T) {
	meter := generate.NewMeter(meterCatalog())
	require.Zero(t, meter.Cost(100, "missing"))
}
