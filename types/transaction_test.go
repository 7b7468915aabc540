package types

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransaction_Cost(t *testing.T) {
	tx := &Transaction{
		GasPrice: big.NewInt(10),
		Gas:      21000,
		Value:    big.NewInt(5),
	}

	assert.Equal(t, big.NewInt(210005), tx.Cost())
}

func TestTransaction_HashIsStableAndCached(t *testing.T) {
	to := StringToAddress("0x2")

	tx := &Transaction{
		Nonce:    3,
		GasPrice: big.NewInt(1),
		Gas:      21000,
		To:       &to,
		Value:    big.NewInt(100),
		From:     StringToAddress("0x1"),
	}

	h1 := tx.Hash()
	assert.NotEqual(t, ZeroHash, h1)
	assert.Equal(t, h1, tx.Hash())

	// an identical payload hashes the same on a fresh value
	assert.Equal(t, h1, tx.Copy().Hash())

	// any field change produces a different identity
	other := tx.Copy()
	other.Nonce = 4
	assert.NotEqual(t, h1, other.Hash())
}

func TestTransaction_CreationHashDiffersFromCall(t *testing.T) {
	zero := ZeroAddress

	create := &Transaction{GasPrice: big.NewInt(1), Value: big.NewInt(0)}
	call := &Transaction{GasPrice: big.NewInt(1), Value: big.NewInt(0), To: &zero}

	assert.True(t, create.IsContractCreation())
	assert.False(t, call.IsContractCreation())
	assert.NotEqual(t, create.Hash(), call.Hash())
}

func TestTransaction_CopyIsDeep(t *testing.T) {
	to := StringToAddress("0x2")

	tx := &Transaction{
		GasPrice: big.NewInt(1),
		Value:    big.NewInt(2),
		To:       &to,
		Input:    []byte{1, 2, 3},
		AccessList: AccessList{
			{Address: StringToAddress("0x3"), StorageKeys: []Hash{ZeroHash}},
		},
	}

	cp := tx.Copy()
	cp.GasPrice.SetInt64(99)
	cp.Input[0] = 0xff
	cp.AccessList[0].StorageKeys[0] = EmptyRootHash

	assert.Equal(t, big.NewInt(1), tx.GasPrice)
	assert.EqualValues(t, 1, tx.Input[0])
	assert.Equal(t, ZeroHash, tx.AccessList[0].StorageKeys[0])
}

func TestAccessList_StorageKeys(t *testing.T) {
	al := AccessList{
		{Address: StringToAddress("0x1"), StorageKeys: []Hash{ZeroHash, EmptyRootHash}},
		{Address: StringToAddress("0x2")},
	}

	assert.Equal(t, 2, al.StorageKeys())
	assert.Nil(t, AccessList(nil).Copy())
}

func TestReceiptsRoot_Deterministic(t *testing.T) {
	receipts := []*Receipt{
		{Status: ReceiptSuccess, CumulativeGasUsed: 21000},
		{
			Status:            ReceiptFailed,
			CumulativeGasUsed: 63000,
			Logs: []*Log{
				{Address: StringToAddress("0x1"), Topics: []Hash{ZeroHash}, Data: []byte{1}},
			},
		},
	}

	root := ReceiptsRoot(receipts)
	require.NotEqual(t, ZeroHash, root)
	assert.Equal(t, root, ReceiptsRoot(receipts))

	// order matters
	assert.NotEqual(t, root, ReceiptsRoot([]*Receipt{receipts[1], receipts[0]}))
}

func TestWithdrawalsRoot(t *testing.T) {
	withdrawals := []*Withdrawal{
		{Index: 0, Validator: 7, Address: StringToAddress("0x1"), Amount: 1},
		{Index: 1, Validator: 8, Address: StringToAddress("0x2"), Amount: 2},
	}

	root := WithdrawalsRoot(withdrawals)
	assert.Equal(t, root, WithdrawalsRoot(withdrawals))
	assert.NotEqual(t, root, WithdrawalsRoot(withdrawals[:1]))
}
