package types

import (
	"math/big"
	"sync/atomic"
)

// Transaction is an already-decoded, signature-verified transaction. The
// sender is recovered upstream; the executor trusts From. Immutable once
// constructed, Copy for local mutation.
type Transaction struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *Address // nil for contract creation
	Value    *big.Int
	Input    []byte
	From     Address

	AccessList AccessList

	// cached keccak of the RLP payload
	hash atomic.Value
}

// AccessList is the EIP-2930 warm-up declaration carried by a transaction.
type AccessList []AccessTuple

type AccessTuple struct {
	Address     Address
	StorageKeys []Hash
}

// StorageKeys returns the total number of declared storage slots.
func (al AccessList) StorageKeys() int {
	count := 0
	for _, tuple := range al {
		count += len(tuple.StorageKeys)
	}

	return count
}

func (al AccessList) Copy() AccessList {
	if al == nil {
		return nil
	}

	cp := make(AccessList, len(al))
	for i, tuple := range al {
		cp[i].Address = tuple.Address
		cp[i].StorageKeys = append([]Hash{}, tuple.StorageKeys...)
	}

	return cp
}

func (t *Transaction) IsContractCreation() bool {
	return t.To == nil
}

// Cost returns gas * gasPrice + value, the maximum the sender may be
// charged for this transaction.
func (t *Transaction) Cost() *big.Int {
	total := new(big.Int).Mul(t.GasPrice, new(big.Int).SetUint64(t.Gas))
	total.Add(total, t.Value)

	return total
}

func (t *Transaction) Copy() *Transaction {
	tt := &Transaction{
		Nonce: t.Nonce,
		Gas:   t.Gas,
		To:    t.To,
		From:  t.From,
	}

	if t.GasPrice != nil {
		tt.GasPrice = new(big.Int).Set(t.GasPrice)
	}

	if t.Value != nil {
		tt.Value = new(big.Int).Set(t.Value)
	}

	tt.Input = append(tt.Input, t.Input...)
	tt.AccessList = t.AccessList.Copy()

	return tt
}

// Hash returns the keccak of the RLP payload, computed once.
func (t *Transaction) Hash() Hash {
	if h := t.hash.Load(); h != nil {
		return h.(Hash)
	}

	h := t.computeHash()
	t.hash.Store(h)

	return h
}
