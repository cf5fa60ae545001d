package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUSDValue_Token(t *testing.T) {
	amount := decimal.RequireFromString("10.1234567")
	got, err := USDValue(amount, ValueToken, "", nil)
	require.NoError(t, err)
	assert.Equal(t, "10.123457", got.StringFixed(6))
}

func TestUSDValue_Fiat(t *testing.T) {
	rates := map[string]decimal.Decimal{
		"EUR": decimal.RequireFromString("0.92"),
	}

	// 92 EUR at 0.92 EUR/USD -> 100 USDC
	got, err := USDValue(decimal.RequireFromString("92"), ValueFiat, "EUR", rates)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.RequireFromString("100")))

	// Same rounding for an amount that does not divide evenly.
	got, err = USDValue(decimal.RequireFromString("10"), ValueFiat, "EUR", rates)
	require.NoError(t, err)
	assert.Equal(t, "10.869565", got.StringFixed(6))
}

func TestUSDValue_FiatRequiresReferenceCurrency(t *testing.T) {
	_, err := USDValue(decimal.RequireFromString("10"), ValueFiat, "", nil)
	require.Error(t, err)
}

func TestUSDValue_UnknownRate(t *testing.T) {
	_, err := USDValue(decimal.RequireFromString("10"), ValueFiat, "XXX", map[string]decimal.Decimal{})
	require.Error(t, err)
}

func TestTokenUnits(t *testing.T) {
	assert.Equal(t, "10500000", TokenUnits(decimal.RequireFromString("10.5")))
	assert.Equal(t, "1", TokenUnits(decimal.RequireFromString("0.000001")))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "10", FormatAmount(decimal.RequireFromString("10")))
	assert.Equal(t, "10.50", FormatAmount(decimal.RequireFromString("10.5")))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StageInitiated, StageComplete))
	assert.True(t, CanTransition(StageInitiated, StageApprovalSubmitted))
	assert.True(t, CanTransition(StageBurnSubmitted, StageBurnConfirmed))
	assert.True(t, CanTransition(StageMintSubmitted, StageComplete))

	// No skipping, no going backward, nothing out of a terminal stage.
	assert.False(t, CanTransition(StageInitiated, StageBurnSubmitted))
	assert.False(t, CanTransition(StageBurnConfirmed, StageApprovalSubmitted))
	assert.False(t, CanTransition(StageComplete, StageFailed))
	assert.False(t, CanTransition(StageFailed, StageInitiated))
}

func TestStageTerminal(t *testing.T) {
	assert.True(t, StageComplete.Terminal())
	assert.True(t, StageFailed.Terminal())
	assert.False(t, StageAttestationPending.Terminal())
}
