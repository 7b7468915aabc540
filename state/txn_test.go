package state

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attestra-network/attestra-executor/types"
)

func TestTxn_ReadYourWrites(t *testing.T) {
	snap := newMockSnapshot()
	snap.addAccount(addr1, big.NewInt(100), 0)

	txn := NewTxn(snap)

	assert.Equal(t, big.NewInt(100), txn.GetBalance(addr1))

	txn.AddBalance(addr1, big.NewInt(50))
	assert.Equal(t, big.NewInt(150), txn.GetBalance(addr1))

	txn.SetState(addr1, hash1, hash2)
	assert.Equal(t, hash2, txn.GetState(addr1, hash1))

	// nothing reached the backing store
	committed, err := snap.GetAccount(addr1)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), committed.Balance)
}

func TestTxn_SubBalanceInsufficient(t *testing.T) {
	snap := newMockSnapshot()
	snap.addAccount(addr1, big.NewInt(10), 0)

	txn := NewTxn(snap)

	err := txn.SubBalance(addr1, big.NewInt(11))
	require.Error(t, err)
	assert.Equal(t, big.NewInt(10), txn.GetBalance(addr1))

	// a missing account cannot pay either
	assert.Error(t, txn.SubBalance(addr2, big.NewInt(1)))
}

func TestTxn_FaultLatchesFirstError(t *testing.T) {
	backingErr := errors.New("disk gone")

	snap := newMockSnapshot()
	snap.accountErr = backingErr

	txn := NewTxn(snap)

	assert.Equal(t, big.NewInt(0), txn.GetBalance(addr1))
	require.ErrorIs(t, txn.Fault(), backingErr)

	// a later, different failure does not overwrite the first
	txn.SubRefund(5)
	assert.ErrorIs(t, txn.Fault(), backingErr)
}

func TestTxn_SubRefundUnderflowFaults(t *testing.T) {
	txn := NewTxn(newMockSnapshot())

	txn.AddRefund(3)
	txn.SubRefund(5)

	assert.Error(t, txn.Fault())
	assert.EqualValues(t, 3, txn.GetRefund())
}

func TestTxn_CreateAccountKeepsBalance(t *testing.T) {
	snap := newMockSnapshot()
	snap.addContract(addr1, []byte{0x1})
	snap.accounts[addr1].Balance = big.NewInt(77)

	txn := NewTxn(snap)
	txn.SetState(addr1, hash1, hash2)

	txn.CreateAccount(addr1)

	assert.Equal(t, big.NewInt(77), txn.GetBalance(addr1))
	assert.Nil(t, txn.GetCode(addr1))
	assert.Equal(t, types.ZeroHash, txn.GetState(addr1, hash1))
}

func TestTxn_LogsDrainOnce(t *testing.T) {
	txn := NewTxn(newMockSnapshot())

	txn.EmitLog(addr1, []types.Hash{hash1}, []byte{1})
	txn.EmitLog(addr2, nil, nil)

	logs := txn.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, addr1, logs[0].Address)

	assert.Empty(t, txn.Logs())
}

func TestTxn_FinalizeSkipsCleanReads(t *testing.T) {
	snap := newMockSnapshot()
	snap.addAccount(addr1, big.NewInt(1), 0)
	snap.addAccount(addr2, big.NewInt(2), 0)

	txn := NewTxn(snap)

	// addr1 is only read, addr2 is written
	txn.GetBalance(addr1)
	txn.AddBalance(addr2, big.NewInt(1))

	objs := txn.Finalize(true)
	require.Len(t, objs, 1)
	assert.Equal(t, addr2, objs[0].Address)
	assert.Equal(t, big.NewInt(3), objs[0].Balance)
}

func TestTxn_FinalizeDeletesTouchedEmptyAccounts(t *testing.T) {
	txn := NewTxn(newMockSnapshot())

	txn.TouchAccount(addr1)

	objs := txn.Finalize(true)
	require.Len(t, objs, 1)
	assert.True(t, objs[0].Deleted)

	// pre-EIP-158 rules keep the empty account
	txn2 := NewTxn(newMockSnapshot())
	txn2.TouchAccount(addr1)

	objs = txn2.Finalize(false)
	require.Len(t, objs, 1)
	assert.False(t, objs[0].Deleted)
}

func TestTxn_FinalizeSuicidedAccount(t *testing.T) {
	snap := newMockSnapshot()
	snap.addContract(addr1, []byte{0x1})
	snap.accounts[addr1].Balance = big.NewInt(100)

	txn := NewTxn(snap)
	require.True(t, txn.Suicide(addr1))
	assert.Equal(t, big.NewInt(0), txn.GetBalance(addr1))

	objs := txn.Finalize(true)
	require.Len(t, objs, 1)
	assert.True(t, objs[0].Deleted)
}

func TestTxn_FinalizeZeroSlotIsDeletion(t *testing.T) {
	txn := NewTxn(newMockSnapshot())

	txn.SetState(addr1, hash1, hash2)
	txn.SetState(addr1, hash2, types.ZeroHash)

	objs := txn.Finalize(false)
	require.Len(t, objs, 1)
	require.Len(t, objs[0].Storage, 2)

	for _, entry := range objs[0].Storage {
		if entry.Key == hash2 {
			assert.True(t, entry.Deleted)
		} else {
			assert.False(t, entry.Deleted)
		}
	}
}

func TestTxn_SetCodeUpdatesHash(t *testing.T) {
	txn := NewTxn(newMockSnapshot())

	code := []byte{0x60, 0x00}
	txn.SetCode(addr1, code)

	assert.Equal(t, code, txn.GetCode(addr1))
	assert.Equal(t, 2, txn.GetCodeSize(addr1))
	assert.NotEqual(t, types.EmptyCodeHash, txn.GetCodeHash(addr1))

	objs := txn.Finalize(false)
	require.Len(t, objs, 1)
	assert.True(t, objs[0].DirtyCode)
	assert.Equal(t, code, objs[0].Code)
}
