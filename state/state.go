package state

import (
	"fmt"
	"math/big"

	"github.com/umbracle/fastrlp"

	"github.com/attestra-network/attestra-executor/types"
)

// State is the trie-backed store capability the executor consumes. The
// commitment scheme (how roots are derived) belongs to the implementation;
// the executor only requires that equal inputs produce equal roots.
type State interface {
	NewSnapshot() Snapshot
	NewSnapshotAt(root types.Hash) (Snapshot, error)
}

// Snapshot is a read view over one state root, plus the Commit operation
// producing the successor snapshot. Reads are synchronous from the
// executor's perspective; any I/O underneath is the store's concern.
type Snapshot interface {
	GetAccount(addr types.Address) (*Account, error)
	GetStorage(addr types.Address, root types.Hash, key types.Hash) (types.Hash, error)
	GetCode(hash types.Hash) ([]byte, error)

	Commit(objs []*Object) (Snapshot, types.Hash, error)
}

// Account is the ledger entry stored per address.
type Account struct {
	Nonce    uint64
	Balance  *big.Int
	Root     types.Hash
	CodeHash types.Hash
}

func (a *Account) MarshalWith(ar *fastrlp.Arena) *fastrlp.Value {
	vv := ar.NewArray()
	vv.Set(ar.NewUint(a.Nonce))
	vv.Set(ar.NewBigInt(a.Balance))
	vv.Set(ar.NewCopyBytes(a.Root.Bytes()))
	vv.Set(ar.NewCopyBytes(a.CodeHash.Bytes()))

	return vv
}

func (a *Account) MarshalRLP() []byte {
	ar := &fastrlp.Arena{}

	return a.MarshalWith(ar).MarshalTo(nil)
}

func (a *Account) UnmarshalRLP(b []byte) error {
	p := &fastrlp.Parser{}

	v, err := p.Parse(b)
	if err != nil {
		return err
	}

	elems, err := v.GetElems()
	if err != nil {
		return err
	}

	if len(elems) != 4 {
		return fmt.Errorf("account: expected 4 elements, got %d", len(elems))
	}

	if a.Nonce, err = elems[0].GetUint64(); err != nil {
		return err
	}

	a.Balance = new(big.Int)
	if err = elems[1].GetBigInt(a.Balance); err != nil {
		return err
	}

	buf := make([]byte, 0, 32)

	if buf, err = elems[2].GetBytes(buf[:0]); err != nil {
		return err
	}

	a.Root = types.BytesToHash(buf)

	if buf, err = elems[3].GetBytes(buf[:0]); err != nil {
		return err
	}

	a.CodeHash = types.BytesToHash(buf)

	return nil
}

func (a *Account) Copy() *Account {
	aa := &Account{
		Nonce:    a.Nonce,
		Root:     a.Root,
		CodeHash: a.CodeHash,
		Balance:  new(big.Int),
	}

	if a.Balance != nil {
		aa.Balance.Set(a.Balance)
	}

	return aa
}

func (a *Account) String() string {
	return fmt.Sprintf("%d %s", a.Nonce, a.Balance.String())
}

// Object is one dirty account handed to Snapshot.Commit after the
// top-level journal scope resolves.
type Object struct {
	Address  types.Address
	Nonce    uint64
	Balance  *big.Int
	Root     types.Hash
	CodeHash types.Hash

	DirtyCode bool
	Code      []byte

	// Deleted marks accounts removed by selfdestruct or the
	// empty-account rule.
	Deleted bool

	Storage []*StorageObject
}

// StorageObject is one dirty storage slot inside an Object.
type StorageObject struct {
	Key     types.Hash
	Val     types.Hash
	Deleted bool
}
