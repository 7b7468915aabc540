package state

import (
	"fmt"
	"math"
	"math/big"

	"github.com/attestra-network/attestra-executor/crypto"
	"github.com/attestra-network/attestra-executor/state/runtime"
	"github.com/attestra-network/attestra-executor/types"
)

// Txn is the journaled in-memory overlay over a backing Snapshot. All
// reads check the overlay first (read-your-writes); nothing reaches the
// backing store before Finalize hands the dirty set to Snapshot.Commit.
//
// A Txn is owned by a single executing goroutine for the duration of a
// batch. Independent batches need independent Txns over independent
// snapshots.
type Txn struct {
	snapshot Snapshot
	accounts map[types.Address]*stateObject
	journal  *journal

	logs   []*types.Log
	refund uint64

	// fault latches the first backing-store failure. Once set, the
	// batch is poisoned and must surface as an execution abort.
	fault error
}

type stateObject struct {
	account *Account
	code    []byte
	storage map[types.Hash]types.Hash

	dirty     bool
	dirtyCode bool
	suicided  bool
	created   bool
	touched   bool
}

func (s *stateObject) empty() bool {
	return s.account.Nonce == 0 &&
		s.account.Balance.Sign() == 0 &&
		s.account.CodeHash == types.EmptyCodeHash
}

func NewTxn(snapshot Snapshot) *Txn {
	return &Txn{
		snapshot: snapshot,
		accounts: map[types.Address]*stateObject{},
		journal:  &journal{},
	}
}

// Fault returns the first backing-store error observed, if any.
func (t *Txn) Fault() error {
	return t.fault
}

func (t *Txn) setFault(err error) {
	if t.fault == nil {
		t.fault = err
	}
}

// Checkpoint opens a nested undo scope and returns its handle.
func (t *Txn) Checkpoint() int {
	return t.journal.checkpoint()
}

// Commit merges the scope into its parent without touching the backing
// store.
func (t *Txn) Commit(scope int) error {
	return t.journal.commit(scope)
}

// Rollback restores every value touched within the scope.
func (t *Txn) Rollback(scope int) error {
	return t.journal.rollback(scope, t)
}

func (t *Txn) ScopeDepth() int {
	return t.journal.depth()
}

// getObject returns the overlay object for addr, loading it lazily from
// the backing snapshot. A clean lazy load is not journaled: its values
// equal the backing store's, so rollback has nothing to undo.
func (t *Txn) getObject(addr types.Address) (*stateObject, bool) {
	if obj, ok := t.accounts[addr]; ok {
		return obj, true
	}

	account, err := t.snapshot.GetAccount(addr)
	if err != nil {
		t.setFault(fmt.Errorf("get account %s: %w", addr, err))

		return nil, false
	}

	if account == nil {
		return nil, false
	}

	obj := &stateObject{
		account: account.Copy(),
		storage: map[types.Hash]types.Hash{},
	}
	t.accounts[addr] = obj

	return obj, true
}

// upsertObject returns the overlay object for addr, creating an empty one
// (journaled) when the account does not exist yet.
func (t *Txn) upsertObject(addr types.Address) *stateObject {
	if obj, ok := t.getObject(addr); ok {
		obj.dirty = true

		return obj
	}

	obj := &stateObject{
		account: &Account{
			Balance:  new(big.Int),
			CodeHash: types.EmptyCodeHash,
			Root:     types.EmptyRootHash,
		},
		storage: map[types.Hash]types.Hash{},
		created: true,
		dirty:   true,
	}

	t.journal.append(createObjectChange{addr: addr})
	t.accounts[addr] = obj

	return obj
}

// CreateAccount installs a fresh account at addr, carrying over the
// balance of any previous occupant (contract creation semantics).
func (t *Txn) CreateAccount(addr types.Address) {
	prev, existed := t.getObject(addr)

	obj := &stateObject{
		account: &Account{
			Balance:  new(big.Int),
			CodeHash: types.EmptyCodeHash,
			Root:     types.EmptyRootHash,
		},
		storage: map[types.Hash]types.Hash{},
		created: true,
		dirty:   true,
	}

	if existed {
		obj.account.Balance.Set(prev.account.Balance)
		t.journal.append(createObjectChange{addr: addr, prev: prev})
	} else {
		t.journal.append(createObjectChange{addr: addr})
	}

	t.accounts[addr] = obj
}

func (t *Txn) Exist(addr types.Address) bool {
	_, ok := t.getObject(addr)

	return ok
}

func (t *Txn) Empty(addr types.Address) bool {
	obj, ok := t.getObject(addr)
	if !ok {
		return true
	}

	return obj.empty()
}

// TouchAccount marks addr for the EIP-158 empty-account sweep.
func (t *Txn) TouchAccount(addr types.Address) {
	obj := t.upsertObject(addr)

	if !obj.touched {
		obj.touched = true
		t.journal.append(touchChange{addr: addr})
	}
}

func (t *Txn) GetAccount(addr types.Address) (*Account, bool) {
	obj, ok := t.getObject(addr)
	if !ok {
		return nil, false
	}

	return obj.account, true
}

func (t *Txn) GetBalance(addr types.Address) *big.Int {
	obj, ok := t.getObject(addr)
	if !ok {
		return big.NewInt(0)
	}

	return new(big.Int).Set(obj.account.Balance)
}

func (t *Txn) AddBalance(addr types.Address, amount *big.Int) {
	if amount == nil {
		return
	}

	obj := t.upsertObject(addr)

	t.journal.append(balanceChange{addr: addr, prev: obj.account.Balance})
	obj.account.Balance = new(big.Int).Add(obj.account.Balance, amount)
}

// SubBalance debits amount, failing with runtime.ErrNotEnoughFunds when
// the balance does not cover it. Nothing is written on failure.
func (t *Txn) SubBalance(addr types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}

	obj, ok := t.getObject(addr)
	if !ok || obj.account.Balance.Cmp(amount) < 0 {
		return runtime.ErrNotEnoughFunds
	}

	obj.dirty = true

	t.journal.append(balanceChange{addr: addr, prev: obj.account.Balance})
	obj.account.Balance = new(big.Int).Sub(obj.account.Balance, amount)

	return nil
}

func (t *Txn) SetBalance(addr types.Address, balance *big.Int) {
	obj := t.upsertObject(addr)

	t.journal.append(balanceChange{addr: addr, prev: obj.account.Balance})
	obj.account.Balance = new(big.Int).Set(balance)
}

func (t *Txn) GetNonce(addr types.Address) uint64 {
	obj, ok := t.getObject(addr)
	if !ok {
		return 0
	}

	return obj.account.Nonce
}

func (t *Txn) SetNonce(addr types.Address, nonce uint64) {
	obj := t.upsertObject(addr)

	t.journal.append(nonceChange{addr: addr, prev: obj.account.Nonce})
	obj.account.Nonce = nonce
}

// IncrNonce bumps the account nonce by exactly one.
func (t *Txn) IncrNonce(addr types.Address) error {
	obj := t.upsertObject(addr)

	if obj.account.Nonce == math.MaxUint64 {
		return runtime.ErrNonceOverflow
	}

	t.journal.append(nonceChange{addr: addr, prev: obj.account.Nonce})
	obj.account.Nonce++

	return nil
}

func (t *Txn) GetCode(addr types.Address) []byte {
	obj, ok := t.getObject(addr)
	if !ok {
		return nil
	}

	if obj.code != nil || obj.dirtyCode {
		return obj.code
	}

	if obj.account.CodeHash == types.EmptyCodeHash {
		return nil
	}

	code, err := t.snapshot.GetCode(obj.account.CodeHash)
	if err != nil {
		t.setFault(fmt.Errorf("get code %s: %w", obj.account.CodeHash, err))

		return nil
	}

	obj.code = code

	return code
}

func (t *Txn) GetCodeSize(addr types.Address) int {
	return len(t.GetCode(addr))
}

func (t *Txn) GetCodeHash(addr types.Address) types.Hash {
	obj, ok := t.getObject(addr)
	if !ok {
		return types.ZeroHash
	}

	return obj.account.CodeHash
}

func (t *Txn) SetCode(addr types.Address, code []byte) {
	obj := t.upsertObject(addr)

	t.journal.append(codeChange{
		addr:      addr,
		prevCode:  obj.code,
		prevHash:  obj.account.CodeHash,
		prevDirty: obj.dirtyCode,
	})

	obj.code = append([]byte{}, code...)
	obj.account.CodeHash = crypto.Keccak256Hash(code)
	obj.dirtyCode = true
}

// GetState reads one storage slot, overlay first.
func (t *Txn) GetState(addr types.Address, key types.Hash) types.Hash {
	obj, ok := t.getObject(addr)
	if !ok {
		return types.ZeroHash
	}

	if val, ok := obj.storage[key]; ok {
		return val
	}

	// freshly created accounts start with empty storage
	if obj.created {
		return types.ZeroHash
	}

	val, err := t.snapshot.GetStorage(addr, obj.account.Root, key)
	if err != nil {
		t.setFault(fmt.Errorf("get storage %s %s: %w", addr, key, err))

		return types.ZeroHash
	}

	return val
}

func (t *Txn) SetState(addr types.Address, key, value types.Hash) {
	obj := t.upsertObject(addr)

	prev, hadPrev := obj.storage[key]
	t.journal.append(storageChange{addr: addr, key: key, prev: prev, hadPrev: hadPrev})

	obj.storage[key] = value
}

func (t *Txn) AddRefund(gas uint64) {
	t.journal.append(refundChange{prev: t.refund})
	t.refund += gas
}

func (t *Txn) SubRefund(gas uint64) {
	if gas > t.refund {
		t.setFault(fmt.Errorf("refund counter below zero (gas: %d > refund: %d)", gas, t.refund))

		return
	}

	t.journal.append(refundChange{prev: t.refund})
	t.refund -= gas
}

func (t *Txn) GetRefund() uint64 {
	return t.refund
}

func (t *Txn) EmitLog(addr types.Address, topics []types.Hash, data []byte) {
	t.journal.append(addLogChange{})

	t.logs = append(t.logs, &types.Log{
		Address: addr,
		Topics:  append([]types.Hash{}, topics...),
		Data:    append([]byte{}, data...),
	})
}

// Logs drains the logs collected since the last call. Called once per
// transaction when the receipt is assembled.
func (t *Txn) Logs() []*types.Log {
	logs := t.logs
	t.logs = nil

	return logs
}

func (t *Txn) HasSuicided(addr types.Address) bool {
	obj, ok := t.getObject(addr)

	return ok && obj.suicided
}

// Suicide marks the account destroyed and drains its balance. The
// deletion itself is applied at Finalize.
func (t *Txn) Suicide(addr types.Address) bool {
	obj, ok := t.getObject(addr)
	if !ok {
		return false
	}

	obj.dirty = true

	t.journal.append(suicideChange{
		addr:        addr,
		prev:        obj.suicided,
		prevBalance: obj.account.Balance,
	})

	obj.suicided = true
	obj.account.Balance = new(big.Int)

	return true
}

// ResetRefund clears the refund counter between transactions.
func (t *Txn) ResetRefund() {
	t.refund = 0
}

// ResetJournal discards all undo records. Called once per transaction
// after its top-level scope has been resolved: the transaction's effects
// are final from the journal's point of view.
func (t *Txn) ResetJournal() {
	t.journal.reset()
}

// Finalize flattens the overlay into commit records for Snapshot.Commit.
// With deleteEmptyObjects (EIP-158), touched empty accounts are removed.
func (t *Txn) Finalize(deleteEmptyObjects bool) []*Object {
	objs := make([]*Object, 0, len(t.accounts))

	for addr, obj := range t.accounts {
		if !obj.dirty && !obj.suicided && !obj.touched {
			continue
		}

		if obj.suicided || (deleteEmptyObjects && obj.touched && obj.empty()) {
			objs = append(objs, &Object{
				Address: addr,
				Deleted: true,
			})

			continue
		}

		record := &Object{
			Address:   addr,
			Nonce:     obj.account.Nonce,
			Balance:   new(big.Int).Set(obj.account.Balance),
			Root:      obj.account.Root,
			CodeHash:  obj.account.CodeHash,
			DirtyCode: obj.dirtyCode,
		}

		if obj.dirtyCode {
			record.Code = obj.code
		}

		if obj.created {
			record.Root = types.EmptyRootHash
		}

		for key, val := range obj.storage {
			entry := &StorageObject{Key: key, Val: val}
			if val == types.ZeroHash {
				entry.Deleted = true
			}

			record.Storage = append(record.Storage, entry)
		}

		objs = append(objs, record)
	}

	return objs
}
