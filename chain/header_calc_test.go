package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalcGasLimit(t *testing.T) {
	cases := []struct {
		name     string
		parent   uint64
		desired  uint64
		expected uint64
	}{
		{"at desired", 30000000, 30000000, 30000000},
		{"step up bounded", 20000000, 30000000, 20000000 + 20000000/1024 - 1},
		{"step down bounded", 30000000, 20000000, 30000000 - (30000000/1024 - 1)},
		{"small step up reaches target", 30000000, 30000100, 30000100},
		{"desired below minimum clamps", 6000, 100, 6000 - (6000/1024 - 1)},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, CalcGasLimit(c.parent, c.desired))
		})
	}
}

func TestCalcBaseFee(t *testing.T) {
	cases := []struct {
		name     string
		gasLimit uint64
		gasUsed  uint64
		baseFee  uint64
		expected uint64
	}{
		{"at target unchanged", 20000000, 10000000, 1000000000, 1000000000},
		{"above target increases", 20000000, 20000000, 1000000000, 1000000000 + 1000000000/8},
		{"below target decreases", 20000000, 5000000, 1000000000, 1000000000 - 1000000000/16},
		{"empty parent decreases by eighth", 20000000, 0, 1000000000, 1000000000 - 1000000000/8},
		{"increase is at least one", 20000000, 10000001, 10, 11},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.expected, CalcBaseFee(c.gasLimit, c.gasUsed, c.baseFee))
		})
	}
}

func TestForks_RefundQuotient(t *testing.T) {
	forks := &Forks{EIP3529: NewFork(10)}

	assert.Equal(t, uint64(2), forks.At(9).RefundQuotient())
	assert.Equal(t, uint64(5), forks.At(10).RefundQuotient())
}

func TestForks_Activation(t *testing.T) {
	forks := &Forks{
		Homestead: NewFork(0),
		London:    NewFork(100),
	}

	pre := forks.At(99)
	assert.True(t, pre.Homestead)
	assert.False(t, pre.London)
	assert.False(t, pre.Berlin) // never scheduled

	post := forks.At(100)
	assert.True(t, post.London)
}
