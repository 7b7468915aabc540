package memdb

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attestra-network/attestra-executor/crypto"
	"github.com/attestra-network/attestra-executor/state"
	"github.com/attestra-network/attestra-executor/storage"
	"github.com/attestra-network/attestra-executor/types"
)

var (
	addr1 = types.StringToAddress("0x1")
	addr2 = types.StringToAddress("0x2")

	slot1 = types.StringToHash("0x1")
	slot2 = types.StringToHash("0x2")

	val1 = types.StringToHash("0xaa")
	val2 = types.StringToHash("0xbb")
)

func newTestState(t *testing.T) *State {
	t.Helper()

	return NewState(storage.NewMemoryStorage())
}

func accountObject(addr types.Address, nonce uint64, balance int64) *state.Object {
	return &state.Object{
		Address:  addr,
		Nonce:    nonce,
		Balance:  big.NewInt(balance),
		CodeHash: types.EmptyCodeHash,
	}
}

func TestState_CommitAndReadBack(t *testing.T) {
	st := newTestState(t)

	snap, root, err := st.NewSnapshot().Commit([]*state.Object{
		accountObject(addr1, 1, 100),
		accountObject(addr2, 0, 250),
	})
	require.NoError(t, err)
	require.NotEqual(t, types.EmptyRootHash, root)

	acc, err := snap.GetAccount(addr1)
	require.NoError(t, err)
	require.NotNil(t, acc)

	assert.EqualValues(t, 1, acc.Nonce)
	assert.Equal(t, big.NewInt(100), acc.Balance)
	assert.Equal(t, types.EmptyCodeHash, acc.CodeHash)
	assert.Equal(t, types.EmptyRootHash, acc.Root)

	// unknown addresses read back as nil, not as an error
	missing, err := snap.GetAccount(types.StringToAddress("0xff"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestState_CommitStorage(t *testing.T) {
	st := newTestState(t)

	obj := accountObject(addr1, 0, 0)
	obj.Storage = []*state.StorageObject{
		{Key: slot1, Val: val1},
		{Key: slot2, Val: val2},
	}

	snap, _, err := st.NewSnapshot().Commit([]*state.Object{obj})
	require.NoError(t, err)

	acc, err := snap.GetAccount(addr1)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.NotEqual(t, types.EmptyRootHash, acc.Root)

	got, err := snap.GetStorage(addr1, acc.Root, slot1)
	require.NoError(t, err)
	assert.Equal(t, val1, got)

	// deleting one slot changes the account's storage root
	del := accountObject(addr1, 0, 0)
	del.Storage = []*state.StorageObject{{Key: slot1, Deleted: true}}

	snap2, _, err := snap.Commit([]*state.Object{del})
	require.NoError(t, err)

	acc2, err := snap2.GetAccount(addr1)
	require.NoError(t, err)
	assert.NotEqual(t, acc.Root, acc2.Root)

	got, err = snap2.GetStorage(addr1, acc2.Root, slot1)
	require.NoError(t, err)
	assert.Equal(t, types.ZeroHash, got)

	got, err = snap2.GetStorage(addr1, acc2.Root, slot2)
	require.NoError(t, err)
	assert.Equal(t, val2, got)
}

func TestState_RootIsInsertionOrderIndependent(t *testing.T) {
	st1 := newTestState(t)
	st2 := newTestState(t)

	objs := []*state.Object{
		accountObject(addr1, 1, 100),
		accountObject(addr2, 2, 200),
	}
	reversed := []*state.Object{objs[1], objs[0]}

	_, root1, err := st1.NewSnapshot().Commit(objs)
	require.NoError(t, err)

	_, root2, err := st2.NewSnapshot().Commit(reversed)
	require.NoError(t, err)

	assert.Equal(t, root1, root2)
}

func TestState_SnapshotAt(t *testing.T) {
	st := newTestState(t)

	_, root, err := st.NewSnapshot().Commit([]*state.Object{accountObject(addr1, 0, 10)})
	require.NoError(t, err)

	snap, err := st.NewSnapshotAt(root)
	require.NoError(t, err)

	acc, err := snap.GetAccount(addr1)
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, big.NewInt(10), acc.Balance)

	// the empty root is always available
	_, err = st.NewSnapshotAt(types.EmptyRootHash)
	assert.NoError(t, err)

	// the zero hash means "fresh state"
	_, err = st.NewSnapshotAt(types.ZeroHash)
	assert.NoError(t, err)

	_, err = st.NewSnapshotAt(crypto.Keccak256Hash([]byte("never committed")))
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestState_OldRootsStayReadable(t *testing.T) {
	st := newTestState(t)

	snap1, root1, err := st.NewSnapshot().Commit([]*state.Object{accountObject(addr1, 0, 10)})
	require.NoError(t, err)

	_, root2, err := snap1.Commit([]*state.Object{accountObject(addr1, 1, 20)})
	require.NoError(t, err)
	require.NotEqual(t, root1, root2)

	old, err := st.NewSnapshotAt(root1)
	require.NoError(t, err)

	acc, err := old.GetAccount(addr1)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(10), acc.Balance)
}

func TestState_DeleteAccountRemovesStorage(t *testing.T) {
	st := newTestState(t)

	obj := accountObject(addr1, 0, 0)
	obj.Storage = []*state.StorageObject{{Key: slot1, Val: val1}}

	snap, _, err := st.NewSnapshot().Commit([]*state.Object{obj})
	require.NoError(t, err)

	snap2, root, err := snap.Commit([]*state.Object{{Address: addr1, Deleted: true}})
	require.NoError(t, err)
	assert.Equal(t, types.EmptyRootHash, root)

	acc, err := snap2.GetAccount(addr1)
	require.NoError(t, err)
	assert.Nil(t, acc)

	got, err := snap2.GetStorage(addr1, types.EmptyRootHash, slot1)
	require.NoError(t, err)
	assert.Equal(t, types.ZeroHash, got)
}

func TestState_CodeRoundTrip(t *testing.T) {
	st := newTestState(t)

	code := []byte{0x60, 0x00, 0x60, 0x00, 0xf3}
	codeHash := crypto.Keccak256Hash(code)

	obj := accountObject(addr1, 1, 0)
	obj.CodeHash = codeHash
	obj.Code = code
	obj.DirtyCode = true

	snap, _, err := st.NewSnapshot().Commit([]*state.Object{obj})
	require.NoError(t, err)

	got, err := snap.GetCode(codeHash)
	require.NoError(t, err)
	assert.Equal(t, code, got)

	// the empty code hash short-circuits without touching storage
	got, err = snap.GetCode(types.EmptyCodeHash)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = snap.GetCode(crypto.Keccak256Hash([]byte("unknown")))
	assert.Error(t, err)
}

func TestState_CodeSurvivesCacheMiss(t *testing.T) {
	backing := storage.NewMemoryStorage()

	code := []byte{0xfe}
	codeHash := crypto.Keccak256Hash(code)

	obj := accountObject(addr1, 0, 0)
	obj.CodeHash = codeHash
	obj.Code = code
	obj.DirtyCode = true

	_, _, err := NewState(backing).NewSnapshot().Commit([]*state.Object{obj})
	require.NoError(t, err)

	// a fresh State over the same storage has a cold cache and must
	// fall through to the persistent store
	snap := NewState(backing).NewSnapshot()

	got, err := snap.GetCode(codeHash)
	require.NoError(t, err)
	assert.Equal(t, code, got)
}
