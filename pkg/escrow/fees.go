// Package escrow implements the pledge escrow domain: deterministic fee
// arithmetic, the pledge lifecycle state machine and the config rules that
// gate it. Everything here is pure; persistence, custody movement and event
// publication are the service layer's job.
package escrow

import "math/bits"

const (
	// BpsDenominator is the basis-point scale: 10000 bps = 100%.
	BpsDenominator = 10000

	MaxTreasurySplitBps = 10000
	MaxPartialFeeBps    = 1000
	MaxEditPenaltyBps   = 1000

	DefaultTreasurySplitBps   = 7000
	DefaultPartialFeeBps      = 100
	DefaultEditPenaltyBps     = 1000
	DefaultGracePeriodSeconds = 86400
)

// checkedMul multiplies two uint64 values and fails on overflow instead of
// wrapping. Any overflow aborts the whole calling operation.
func checkedMul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, ErrOverflow
	}
	return lo, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

// PartialRefund computes the refund and protocol fee for settling a stake at
// the given completion percentage. The fee applies to the proportional share
// only, and never at 100% completion. fee <= proportional always holds
// because feeBps <= 1000 < BpsDenominator.
func PartialRefund(stake uint64, pct uint8, feeBps uint16) (refund, fee uint64, err error) {
	if pct > 100 {
		return 0, 0, ErrInvalidPercentage
	}
	proportional, err := checkedMul(stake, uint64(pct))
	if err != nil {
		return 0, 0, err
	}
	proportional /= 100

	if pct != 100 {
		fee, err = checkedMul(proportional, uint64(feeBps))
		if err != nil {
			return 0, 0, err
		}
		fee /= BpsDenominator
	}

	refund, err = checkedSub(proportional, fee)
	if err != nil {
		return 0, 0, err
	}
	return refund, fee, nil
}

// Split divides an amount between treasury and charity. The two shares sum
// to the input exactly: charity takes the remainder after the floored
// treasury share.
func Split(amount uint64, treasurySplitBps uint16) (treasury, charity uint64, err error) {
	treasury, err = checkedMul(amount, uint64(treasurySplitBps))
	if err != nil {
		return 0, 0, err
	}
	treasury /= BpsDenominator

	charity, err = checkedSub(amount, treasury)
	if err != nil {
		return 0, 0, err
	}
	return treasury, charity, nil
}

// EditPenalty computes the penalty charged against the remaining stake when
// a pledge is edited. penalty <= remaining since penaltyBps <= 1000.
func EditPenalty(remaining uint64, penaltyBps uint16) (uint64, error) {
	penalty, err := checkedMul(remaining, uint64(penaltyBps))
	if err != nil {
		return 0, err
	}
	return penalty / BpsDenominator, nil
}
