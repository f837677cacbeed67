package market

import (
	"fmt"
	"math/bits"
)

// Fee limits.
const (
	MaxFeeBps         = 10_000
	MaxNameLength     = 32
	basisPointDivisor = 10_000
)

// DefaultRewardPerPurchase is one reward token at six decimals.
const DefaultRewardPerPurchase = 1_000_000

// ComputeFee splits price into the treasury fee and the maker's proceeds.
// fee = floor(price * feeBps / 10000); the remainder stays with the maker.
func ComputeFee(price uint64, feeBps uint16) (fee, proceeds uint64, err error) {
	if feeBps > MaxFeeBps {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidFee, feeBps)
	}

	hi, lo := bits.Mul64(price, uint64(feeBps))
	if hi != 0 {
		return 0, 0, fmt.Errorf("%w: %d * %d bps", ErrFeeOverflow, price, feeBps)
	}
	fee = lo / basisPointDivisor

	proceeds, borrow := bits.Sub64(price, fee, 0)
	if borrow != 0 {
		return 0, 0, fmt.Errorf("%w: fee %d exceeds price %d", ErrPriceOverflow, fee, price)
	}
	return fee, proceeds, nil
}

func validateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(name))
	}
	return nil
}

func validateFee(feeBps uint16) error {
	if feeBps > MaxFeeBps {
		return fmt.Errorf("%w: %d", ErrInvalidFee, feeBps)
	}
	return nil
}
