package chain

import (
	"math/big"
)

const (
	// GasLimitBoundDivisor bounds how far a block's gas limit may move
	// from its parent's.
	GasLimitBoundDivisor uint64 = 1024

	MinGasLimit uint64 = 5000

	// EIP-1559 base fee derivation constants.
	ElasticityMultiplier     uint64 = 2
	BaseFeeChangeDenominator uint64 = 8
)

// CalcGasLimit moves the parent gas limit towards the desired one, bounded
// by parent/GasLimitBoundDivisor per block.
func CalcGasLimit(parentGasLimit, desiredLimit uint64) uint64 {
	delta := parentGasLimit/GasLimitBoundDivisor - 1

	if desiredLimit < MinGasLimit {
		desiredLimit = MinGasLimit
	}

	limit := parentGasLimit

	if limit < desiredLimit {
		limit = parentGasLimit + delta
		if limit > desiredLimit {
			limit = desiredLimit
		}

		return limit
	}

	if limit > desiredLimit {
		limit = parentGasLimit - delta
		if limit < desiredLimit {
			limit = desiredLimit
		}
	}

	return limit
}

// CalcBaseFee derives the next block's base fee from the parent's gas
// usage (EIP-1559).
func CalcBaseFee(parentGasLimit, parentGasUsed, parentBaseFee uint64) uint64 {
	gasTarget := parentGasLimit / ElasticityMultiplier

	if parentGasUsed == gasTarget {
		return parentBaseFee
	}

	baseFee := new(big.Int).SetUint64(parentBaseFee)
	target := new(big.Int).SetUint64(gasTarget)
	denom := new(big.Int).SetUint64(BaseFeeChangeDenominator)

	if parentGasUsed > gasTarget {
		// the parent exceeded its target, base fee increases
		delta := new(big.Int).SetUint64(parentGasUsed - gasTarget)
		delta.Mul(delta, baseFee)
		delta.Div(delta, target)
		delta.Div(delta, denom)

		if delta.Sign() == 0 {
			delta.SetInt64(1)
		}

		return baseFee.Add(baseFee, delta).Uint64()
	}

	// the parent stayed under target, base fee decreases
	delta := new(big.Int).SetUint64(gasTarget - parentGasUsed)
	delta.Mul(delta, baseFee)
	delta.Div(delta, target)
	delta.Div(delta, denom)

	if delta.Cmp(baseFee) >= 0 {
		return 0
	}

	return baseFee.Sub(baseFee, delta).Uint64()
}
