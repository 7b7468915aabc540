package state

import (
	"errors"
	"math/big"

	"github.com/attestra-network/attestra-executor/chain"
	"github.com/attestra-network/attestra-executor/crypto"
	"github.com/attestra-network/attestra-executor/state/runtime"
	"github.com/attestra-network/attestra-executor/types"
)

// mockSnapshot is an in-memory Snapshot for tests. Commit applies the
// records to a copy, so the parent stays usable.
type mockSnapshot struct {
	accounts map[types.Address]*Account
	storage  map[string]types.Hash
	code     map[types.Hash][]byte

	// injected failures
	accountErr error
	storageErr error
}

func newMockSnapshot() *mockSnapshot {
	return &mockSnapshot{
		accounts: map[types.Address]*Account{},
		storage:  map[string]types.Hash{},
		code:     map[types.Hash][]byte{},
	}
}

func storageKey(addr types.Address, key types.Hash) string {
	return string(addr.Bytes()) + string(key.Bytes())
}

func (m *mockSnapshot) addAccount(addr types.Address, balance *big.Int, nonce uint64) {
	m.accounts[addr] = &Account{
		Nonce:    nonce,
		Balance:  balance,
		Root:     types.EmptyRootHash,
		CodeHash: types.EmptyCodeHash,
	}
}

func (m *mockSnapshot) addContract(addr types.Address, code []byte) {
	hash := crypto.Keccak256Hash(code)

	m.accounts[addr] = &Account{
		Balance:  new(big.Int),
		Root:     types.EmptyRootHash,
		CodeHash: hash,
	}
	m.code[hash] = code
}

func (m *mockSnapshot) GetAccount(addr types.Address) (*Account, error) {
	if m.accountErr != nil {
		return nil, m.accountErr
	}

	account, ok := m.accounts[addr]
	if !ok {
		return nil, nil
	}

	return account.Copy(), nil
}

func (m *mockSnapshot) GetStorage(addr types.Address, root types.Hash, key types.Hash) (types.Hash, error) {
	if m.storageErr != nil {
		return types.ZeroHash, m.storageErr
	}

	return m.storage[storageKey(addr, key)], nil
}

func (m *mockSnapshot) GetCode(hash types.Hash) ([]byte, error) {
	code, ok := m.code[hash]
	if !ok {
		return nil, errors.New("code not found")
	}

	return code, nil
}

func (m *mockSnapshot) Commit(objs []*Object) (Snapshot, types.Hash, error) {
	next := newMockSnapshot()

	for addr, account := range m.accounts {
		next.accounts[addr] = account.Copy()
	}

	for k, v := range m.storage {
		next.storage[k] = v
	}

	for k, v := range m.code {
		next.code[k] = v
	}

	for _, obj := range objs {
		if obj.Deleted {
			delete(next.accounts, obj.Address)

			continue
		}

		next.accounts[obj.Address] = &Account{
			Nonce:    obj.Nonce,
			Balance:  new(big.Int).Set(obj.Balance),
			Root:     obj.Root,
			CodeHash: obj.CodeHash,
		}

		if obj.DirtyCode {
			next.code[obj.CodeHash] = obj.Code
		}

		for _, entry := range obj.Storage {
			if entry.Deleted {
				delete(next.storage, storageKey(obj.Address, entry.Key))
			} else {
				next.storage[storageKey(obj.Address, entry.Key)] = entry.Val
			}
		}
	}

	// a content-dependent pseudo root is enough for the tests
	root := crypto.Keccak256Hash([]byte{byte(len(next.accounts)), byte(len(next.storage))})

	return next, root, nil
}

// mockState wraps one mockSnapshot as a State.
type mockState struct {
	snapshot *mockSnapshot
}

func (m *mockState) NewSnapshot() Snapshot {
	return m.snapshot
}

func (m *mockState) NewSnapshotAt(root types.Hash) (Snapshot, error) {
	return m.snapshot, nil
}

// funcRuntime adapts a function to the runtime interface.
type funcRuntime struct {
	run func(c *runtime.Contract, host runtime.Host) *runtime.ExecutionResult
}

func (f *funcRuntime) Run(c *runtime.Contract, host runtime.Host, _ *chain.ForksInTime) *runtime.ExecutionResult {
	return f.run(c, host)
}

func (f *funcRuntime) CanRun(*runtime.Contract, runtime.Host, *chain.ForksInTime) bool {
	return true
}

func (f *funcRuntime) Name() string {
	return "mock"
}
