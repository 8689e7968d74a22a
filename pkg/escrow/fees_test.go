package escrow

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartialRefundFullCompletionNoFee(t *testing.T) {
	refund, fee, err := PartialRefund(1_000_000, 100, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), refund)
	assert.Equal(t, uint64(0), fee)
}

func TestPartialRefundPartialCompletionWithFee(t *testing.T) {
	// 50% of 1,000,000 = 500,000; 1% fee = 5,000; refund = 495,000.
	refund, fee, err := PartialRefund(1_000_000, 50, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(495_000), refund)
	assert.Equal(t, uint64(5_000), fee)
}

func TestPartialRefundZeroCompletion(t *testing.T) {
	refund, fee, err := PartialRefund(1_000_000, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), refund)
	assert.Equal(t, uint64(0), fee)
}

func TestPartialRefund75Percent(t *testing.T) {
	refund, fee, err := PartialRefund(1_000_000, 75, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(742_500), refund)
	assert.Equal(t, uint64(7_500), fee)
}

func TestPartialRefundRejectsPercentAbove100(t *testing.T) {
	_, _, err := PartialRefund(1_000_000, 101, 100)
	require.ErrorIs(t, err, ErrInvalidPercentage)
}

func TestPartialRefundOverflow(t *testing.T) {
	_, _, err := PartialRefund(math.MaxUint64, 99, 100)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestPartialRefundProperties(t *testing.T) {
	stakes := []uint64{1, 7, 99, 100, 10_001, 1_000_000, 123_456_789}
	feeBps := []uint16{0, 1, 100, 999, 1000}
	for _, stake := range stakes {
		for pct := uint8(0); pct <= 100; pct++ {
			for _, bps := range feeBps {
				refund, fee, err := PartialRefund(stake, pct, bps)
				require.NoError(t, err)
				proportional := stake * uint64(pct) / 100
				assert.Equal(t, proportional, refund+fee, "refund+fee must equal the proportional share")
				assert.LessOrEqual(t, fee, proportional)
				if pct == 100 {
					assert.Zero(t, fee, "full completion never pays a fee")
				}
			}
		}
	}
}

func TestSplit7030(t *testing.T) {
	treasury, charity, err := Split(1_000_000, 7000)
	require.NoError(t, err)
	assert.Equal(t, uint64(700_000), treasury)
	assert.Equal(t, uint64(300_000), charity)
}

func TestSplit5050(t *testing.T) {
	treasury, charity, err := Split(1_000_000, 5000)
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000), treasury)
	assert.Equal(t, uint64(500_000), charity)
}

func TestSplitConservesExactly(t *testing.T) {
	amounts := []uint64{0, 1, 3, 9_999, 10_000, 10_001, 1_000_001, math.MaxUint64 / BpsDenominator}
	for _, amount := range amounts {
		for bps := uint16(0); bps <= 10_000; bps += 7 {
			treasury, charity, err := Split(amount, bps)
			require.NoError(t, err)
			assert.Equal(t, amount, treasury+charity, "split must conserve amount=%d bps=%d", amount, bps)
		}
	}
}

func TestSplitOverflow(t *testing.T) {
	_, _, err := Split(math.MaxUint64, 7000)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestEditPenalty(t *testing.T) {
	penalty, err := EditPenalty(1_000_000, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000), penalty)
}

func TestEditPenaltyNeverExceedsRemaining(t *testing.T) {
	remainings := []uint64{0, 1, 9, 10_000, 999_999_999}
	for _, remaining := range remainings {
		for bps := uint16(0); bps <= 1000; bps += 13 {
			penalty, err := EditPenalty(remaining, bps)
			require.NoError(t, err)
			assert.LessOrEqual(t, penalty, remaining)
		}
	}
}

func TestEditPenaltyOverflow(t *testing.T) {
	_, err := EditPenalty(math.MaxUint64, 1000)
	require.ErrorIs(t, err, ErrOverflow)
}
