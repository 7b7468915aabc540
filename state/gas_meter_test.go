package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attestra-network/attestra-executor/state/runtime"
)

func TestGasMeter_Charge(t *testing.T) {
	meter := NewGasMeter(100, 2)

	require.NoError(t, meter.Charge(60))
	assert.Equal(t, uint64(40), meter.Remaining())
	assert.Equal(t, uint64(100), meter.Limit())

	require.NoError(t, meter.Charge(40))
	assert.Equal(t, uint64(0), meter.Remaining())
}

func TestGasMeter_ChargeOutOfGas(t *testing.T) {
	meter := NewGasMeter(50, 2)

	require.NoError(t, meter.Charge(30))

	err := meter.Charge(21)
	require.ErrorIs(t, err, runtime.ErrOutOfGas)

	// a failed charge must not consume anything
	assert.Equal(t, uint64(20), meter.Remaining())
}

func TestGasMeter_RefundAccrualIsUncapped(t *testing.T) {
	meter := NewGasMeter(100000, 2)

	meter.Refund(40000)
	meter.Refund(40000)

	assert.Equal(t, uint64(80000), meter.Refunded())
}

func TestGasMeter_FinalizeCapsRefund(t *testing.T) {
	cases := []struct {
		name     string
		quotient uint64
		refunded uint64
		gasUsed  uint64
		applied  uint64
	}{
		{"below cap", 2, 100, 10000, 100},
		{"at cap", 2, 5000, 10000, 5000},
		{"above cap pre-eip3529", 2, 9000, 10000, 5000},
		{"above cap post-eip3529", 5, 9000, 10000, 2000},
		{"zero usage", 5, 9000, 0, 0},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			meter := NewGasMeter(1000000, c.quotient)
			meter.Refund(c.refunded)

			assert.Equal(t, c.applied, meter.Finalize(c.gasUsed))
		})
	}
}
