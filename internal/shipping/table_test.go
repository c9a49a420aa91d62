package shipping

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCostStandardWithinAllowance(t *testing.T) {
	cost, method := DefaultTable().Cost("standard", 3)
	require.Equal(t, MethodStandard, method)
	require.Equal(t, "5.99", cost.StringFixed(2))
}

func TestCostPerItemAboveAllowance(t *testing.T) {
	table := DefaultTable()

	cost, _ := table.Cost("standard", 8)
	require.Equal(t, "8.24", cost.StringFixed(2))

	cost, method := table.Cost("EXPRESS", 7)
	require.Equal(t, MethodExpress, method)
	require.Equal(t, "15.99", cost.StringFixed(2))
}

func TestUnknownMethodFallsBackToStandard(t *testing.T) {
	cost, method := DefaultTable().Cost("overnight-drone", 1)
	require.Equal(t, MethodStandard, method)
	require.Equal(t, "5.99", cost.StringFixed(2))
	require.Equal(t, MethodStandard, NormalizeMethod(""))
	require.Equal(t, MethodExpress, NormalizeMethod(" Express "))
}

func TestMethodsQuotesBoth(t *testing.T) {
	quotes := DefaultTable().Methods(6)
	require.Equal(t, "6.74", quotes[MethodStandard].StringFixed(2))
	require.Equal(t, "14.49", quotes[MethodExpress].StringFixed(2))
}
