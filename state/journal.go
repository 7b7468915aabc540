package state

import (
	"errors"
	"math/big"

	"github.com/attestra-network/attestra-executor/types"
)

var ErrUnknownScope = errors.New("unknown journal scope")

// journalEntry records one overlay mutation with enough information to
// undo it. Entries are appended in mutation order and replayed in
// reverse on rollback.
type journalEntry interface {
	revert(txn *Txn)
}

type scopeMarker struct {
	id  int
	idx int // journal length when the scope opened
}

// journal is the stack of undo records behind a Txn. Scopes nest
// strictly (LIFO): resolving scope S implicitly resolves every scope
// opened after it. Committing a scope merges its records into the
// parent; records are only discarded once the whole journal resets.
type journal struct {
	entries []journalEntry
	scopes  []scopeMarker
	nextID  int
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

// checkpoint opens a nested undo boundary and returns its opaque handle.
func (j *journal) checkpoint() int {
	j.nextID++
	j.scopes = append(j.scopes, scopeMarker{id: j.nextID, idx: len(j.entries)})

	return j.nextID
}

func (j *journal) find(id int) int {
	for i := len(j.scopes) - 1; i >= 0; i-- {
		if j.scopes[i].id == id {
			return i
		}
	}

	return -1
}

// commit merges the scope (and any scope opened after it) into its
// parent. The undo records stay: an enclosing rollback still unwinds
// them.
func (j *journal) commit(id int) error {
	at := j.find(id)
	if at < 0 {
		return ErrUnknownScope
	}

	j.scopes = j.scopes[:at]

	return nil
}

// rollback replays the scope's undo records in reverse order against the
// overlay, then discards them together with every scope opened after it.
func (j *journal) rollback(id int, txn *Txn) error {
	at := j.find(id)
	if at < 0 {
		return ErrUnknownScope
	}

	idx := j.scopes[at].idx

	for i := len(j.entries) - 1; i >= idx; i-- {
		j.entries[i].revert(txn)
	}

	j.entries = j.entries[:idx]
	j.scopes = j.scopes[:at]

	return nil
}

func (j *journal) depth() int {
	return len(j.scopes)
}

func (j *journal) reset() {
	j.entries = j.entries[:0]
	j.scopes = j.scopes[:0]
}

// balanceChange restores the previous balance of an account.
type balanceChange struct {
	addr types.Address
	prev *big.Int
}

func (ch balanceChange) revert(txn *Txn) {
	txn.accounts[ch.addr].account.Balance = ch.prev
}

// nonceChange restores the previous nonce. Only validation failures ever
// unwind a nonce; intentional reverts keep the increment by scoping it
// outside the reverted frame.
type nonceChange struct {
	addr types.Address
	prev uint64
}

func (ch nonceChange) revert(txn *Txn) {
	txn.accounts[ch.addr].account.Nonce = ch.prev
}

// storageChange restores one overlay slot. When the slot had no overlay
// value before the write, the entry is removed so reads fall through to
// the backing snapshot again.
type storageChange struct {
	addr    types.Address
	key     types.Hash
	prev    types.Hash
	hadPrev bool
}

func (ch storageChange) revert(txn *Txn) {
	obj := txn.accounts[ch.addr]

	if ch.hadPrev {
		obj.storage[ch.key] = ch.prev
	} else {
		delete(obj.storage, ch.key)
	}
}

// codeChange restores the previous code and code hash.
type codeChange struct {
	addr      types.Address
	prevCode  []byte
	prevHash  types.Hash
	prevDirty bool
}

func (ch codeChange) revert(txn *Txn) {
	obj := txn.accounts[ch.addr]
	obj.code = ch.prevCode
	obj.account.CodeHash = ch.prevHash
	obj.dirtyCode = ch.prevDirty
}

// createObjectChange restores whatever occupied the address before an
// account was created in the overlay (possibly nothing).
type createObjectChange struct {
	addr types.Address
	prev *stateObject
}

func (ch createObjectChange) revert(txn *Txn) {
	if ch.prev == nil {
		delete(txn.accounts, ch.addr)
	} else {
		txn.accounts[ch.addr] = ch.prev
	}
}

// suicideChange restores the destroy flag and the balance drained by
// selfdestruct.
type suicideChange struct {
	addr        types.Address
	prev        bool
	prevBalance *big.Int
}

func (ch suicideChange) revert(txn *Txn) {
	obj := txn.accounts[ch.addr]
	obj.suicided = ch.prev
	obj.account.Balance = ch.prevBalance
}

// refundChange restores the transaction refund counter.
type refundChange struct {
	prev uint64
}

func (ch refundChange) revert(txn *Txn) {
	txn.refund = ch.prev
}

// addLogChange drops the most recently emitted log.
type addLogChange struct{}

func (ch addLogChange) revert(txn *Txn) {
	txn.logs = txn.logs[:len(txn.logs)-1]
}

// touchChange undoes the empty-account touch marker (EIP-158 deletion
// bookkeeping).
type touchChange struct {
	addr types.Address
}

func (ch touchChange) revert(txn *Txn) {
	if obj, ok := txn.accounts[ch.addr]; ok {
		obj.touched = false
	}
}
