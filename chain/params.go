package chain

import (
	"math/big"

	"github.com/attestra-network/attestra-executor/types"
)

// Params is the immutable protocol configuration threaded through the
// executor. Fork and version differences are expressed here, never as
// process-wide state, so alternative rule sets are testable by
// substituting a Params value.
type Params struct {
	ChainID int64
	Forks   *Forks

	// BurnAddress receives the base-fee share of transaction fees once
	// London is active. Zero address means the share is destroyed.
	BurnAddress types.Address

	// MaxCallDepth is the hard bound on nested call frames,
	// enforced independently of gas.
	MaxCallDepth int

	// ForwardDenominator configures the gas forwarding rule: a frame
	// may hand a child at most gas - gas/ForwardDenominator.
	ForwardDenominator uint64

	// AbortOnBlockGasOverflow selects the block gas policy: when a
	// transaction's gas limit exceeds the remaining block budget,
	// either the whole batch aborts (true) or the transaction is
	// excluded and execution continues (false).
	AbortOnBlockGasOverflow bool
}

const (
	DefaultMaxCallDepth       = 1024
	DefaultForwardDenominator = 64
)

// DefaultParams returns a Params with every fork active from genesis.
func DefaultParams(chainID int64) *Params {
	return &Params{
		ChainID:            chainID,
		Forks:              AllForks(),
		MaxCallDepth:       DefaultMaxCallDepth,
		ForwardDenominator: DefaultForwardDenominator,
	}
}

// GenesisAccount is one pre-state allocation entry.
type GenesisAccount struct {
	Code    []byte
	Storage map[types.Hash]types.Hash
	Balance *big.Int
	Nonce   uint64
}

// Fork activates at a block number; nil means never.
type Fork uint64

func NewFork(n uint64) *Fork {
	f := Fork(n)

	return &f
}

func (f *Fork) Active(block uint64) bool {
	return f != nil && block >= uint64(*f)
}

// Forks lists the activation heights of the protocol rule changes the
// executor distinguishes.
type Forks struct {
	Homestead *Fork
	EIP150    *Fork
	EIP158    *Fork
	Istanbul  *Fork
	Berlin    *Fork
	London    *Fork
	EIP3529   *Fork
	EIP3860   *Fork
}

// AllForks enables everything at genesis.
func AllForks() *Forks {
	return &Forks{
		Homestead: NewFork(0),
		EIP150:    NewFork(0),
		EIP158:    NewFork(0),
		Istanbul:  NewFork(0),
		Berlin:    NewFork(0),
		London:    NewFork(0),
		EIP3529:   NewFork(0),
		EIP3860:   NewFork(0),
	}
}

// At resolves the rule set active at the given block height.
func (f *Forks) At(block uint64) ForksInTime {
	return ForksInTime{
		Homestead: f.Homestead.Active(block),
		EIP150:    f.EIP150.Active(block),
		EIP158:    f.EIP158.Active(block),
		Istanbul:  f.Istanbul.Active(block),
		Berlin:    f.Berlin.Active(block),
		London:    f.London.Active(block),
		EIP3529:   f.EIP3529.Active(block),
		EIP3860:   f.EIP3860.Active(block),
	}
}

// ForksInTime is the resolved rule set for one block height.
type ForksInTime struct {
	Homestead bool
	EIP150    bool
	EIP158    bool
	Istanbul  bool
	Berlin    bool
	London    bool
	EIP3529   bool
	EIP3860   bool
}

// RefundQuotient is the divisor capping gas refunds: the applied refund
// never exceeds gasUsed / quotient.
func (f ForksInTime) RefundQuotient() uint64 {
	if f.EIP3529 {
		return 5
	}

	return 2
}
