package state

import (
	"github.com/attestra-network/attestra-executor/state/runtime"
)

// GasMeter tracks gas consumption and refund accrual for one transaction.
// Pure counters, no I/O; the refund cap is only applied at Finalize.
type GasMeter struct {
	limit     uint64
	remaining uint64
	refunded  uint64

	// refundQuotient caps the applied refund at gasUsed/refundQuotient,
	// a protocol constant that differs between forks.
	refundQuotient uint64
}

func NewGasMeter(limit, refundQuotient uint64) *GasMeter {
	return &GasMeter{
		limit:          limit,
		remaining:      limit,
		refundQuotient: refundQuotient,
	}
}

// Charge consumes gas. On failure the meter is left untouched: the
// operation that triggered the charge is wholly aborted.
func (g *GasMeter) Charge(amount uint64) error {
	if g.remaining < amount {
		return runtime.ErrOutOfGas
	}

	g.remaining -= amount

	return nil
}

// Refund accrues refundable gas. Uncapped here; Finalize applies the cap.
func (g *GasMeter) Refund(amount uint64) {
	g.refunded += amount
}

func (g *GasMeter) Remaining() uint64 {
	return g.remaining
}

func (g *GasMeter) Limit() uint64 {
	return g.limit
}

func (g *GasMeter) Refunded() uint64 {
	return g.refunded
}

// Finalize returns the refund actually applied for a transaction that
// consumed gasUsed, capped at gasUsed / refundQuotient.
func (g *GasMeter) Finalize(gasUsed uint64) uint64 {
	applied := g.refunded

	if cap := gasUsed / g.refundQuotient; applied > cap {
		applied = cap
	}

	return applied
}
