// Package memdb implements the backing state over immutable radix
// trees. Every committed batch produces a new persistent snapshot that
// shares structure with its parent; old roots stay readable, which is
// what lets an aborted batch be retried from its committed prefix.
package memdb

import (
	"errors"
	"fmt"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"
	lru "github.com/hashicorp/golang-lru"

	"github.com/attestra-network/attestra-executor/crypto"
	"github.com/attestra-network/attestra-executor/state"
	"github.com/attestra-network/attestra-executor/storage"
	"github.com/attestra-network/attestra-executor/types"
)

// ErrStateNotFound is returned when a snapshot is requested at a root
// this store never committed.
var ErrStateNotFound = errors.New("state not found at given root")

const codeCacheSize = 1024

// State holds every committed snapshot, keyed by state root. Contract
// code is content-addressed in the persistent store behind an LRU.
type State struct {
	storage storage.Storage
	code    *lru.Cache

	mu    sync.RWMutex
	roots map[types.Hash]*iradix.Tree
}

func NewState(st storage.Storage) *State {
	cache, _ := lru.New(codeCacheSize)

	s := &State{
		storage: st,
		code:    cache,
		roots:   map[types.Hash]*iradix.Tree{},
	}

	s.roots[types.EmptyRootHash] = iradix.New()

	return s
}

func (s *State) NewSnapshot() state.Snapshot {
	return &snapshot{state: s, trie: iradix.New()}
}

func (s *State) NewSnapshotAt(root types.Hash) (state.Snapshot, error) {
	if root == types.ZeroHash {
		return s.NewSnapshot(), nil
	}

	s.mu.RLock()
	tree, ok := s.roots[root]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStateNotFound, root)
	}

	return &snapshot{state: s, trie: tree}, nil
}

func (s *State) setCode(hash types.Hash, code []byte) error {
	s.code.Add(hash, code)

	return s.storage.Set(storage.CodeKey(hash.Bytes()), code)
}

func (s *State) getCode(hash types.Hash) ([]byte, error) {
	if hash == types.EmptyCodeHash {
		return nil, nil
	}

	if cached, ok := s.code.Get(hash); ok {
		code, _ := cached.([]byte)

		return code, nil
	}

	code, ok, err := s.storage.Get(storage.CodeKey(hash.Bytes()))
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, fmt.Errorf("code not found for hash %s", hash)
	}

	s.code.Add(hash, code)

	return code, nil
}

// snapshot is one committed state, immutable once built.
//
// Key layout inside the tree: an account lives at its 20-byte address,
// a storage slot at address||slot (52 bytes). The state root is the
// keccak fold of every entry in lexicographic key order.
type snapshot struct {
	state *State
	trie  *iradix.Tree
}

func (s *snapshot) GetAccount(addr types.Address) (*state.Account, error) {
	raw, ok := s.trie.Get(addr.Bytes())
	if !ok {
		return nil, nil
	}

	blob, _ := raw.([]byte)

	account := new(state.Account)
	if err := account.UnmarshalRLP(blob); err != nil {
		return nil, err
	}

	return account, nil
}

func (s *snapshot) GetStorage(addr types.Address, root types.Hash, key types.Hash) (types.Hash, error) {
	raw, ok := s.trie.Get(slotKey(addr, key))
	if !ok {
		return types.ZeroHash, nil
	}

	blob, _ := raw.([]byte)

	return types.BytesToHash(blob), nil
}

func (s *snapshot) GetCode(hash types.Hash) ([]byte, error) {
	return s.state.getCode(hash)
}

// Commit folds the finalized objects of a batch into a new snapshot and
// registers it under its root. The parent snapshot is untouched.
func (s *snapshot) Commit(objs []*state.Object) (state.Snapshot, types.Hash, error) {
	txn := s.trie.Txn()

	for _, obj := range objs {
		if obj.Deleted {
			txn.DeletePrefix(obj.Address.Bytes())

			continue
		}

		for _, entry := range obj.Storage {
			k := slotKey(obj.Address, entry.Key)

			if entry.Deleted {
				txn.Delete(k)
			} else {
				txn.Insert(k, entry.Val.Bytes())
			}
		}

		account := &state.Account{
			Nonce:    obj.Nonce,
			Balance:  obj.Balance,
			CodeHash: obj.CodeHash,
			Root:     storageRoot(txn, obj.Address),
		}

		txn.Insert(obj.Address.Bytes(), account.MarshalRLP())

		if obj.DirtyCode {
			if err := s.state.setCode(obj.CodeHash, obj.Code); err != nil {
				return nil, types.ZeroHash, err
			}
		}
	}

	tree := txn.Commit()
	root := treeRoot(tree)

	s.state.mu.Lock()
	s.state.roots[root] = tree
	s.state.mu.Unlock()

	return &snapshot{state: s.state, trie: tree}, root, nil
}

func slotKey(addr types.Address, key types.Hash) []byte {
	k := make([]byte, 0, types.AddressLength+types.HashLength)
	k = append(k, addr.Bytes()...)
	k = append(k, key.Bytes()...)

	return k
}

// storageRoot folds the slots of one account, in key order, into its
// storage commitment.
func storageRoot(txn *iradix.Txn, addr types.Address) types.Hash {
	root := types.EmptyRootHash
	found := false

	it := txn.Root().Iterator()
	it.SeekPrefix(addr.Bytes())

	for k, v, ok := it.Next(); ok; k, v, ok = it.Next() {
		if len(k) == types.AddressLength {
			// the account record itself
			continue
		}

		blob, _ := v.([]byte)
		root = crypto.Keccak256Hash(root.Bytes(), k, blob)
		found = true
	}

	if !found {
		return types.EmptyRootHash
	}

	return root
}

// treeRoot folds the whole tree, in key order, into the state root.
func treeRoot(tree *iradix.Tree) types.Hash {
	if tree.Len() == 0 {
		return types.EmptyRootHash
	}

	root := types.EmptyRootHash

	it := tree.Root().Iterator()
	for k, v, ok := it.Next(); ok; k, v, ok = it.Next() {
		blob, _ := v.([]byte)
		root = crypto.Keccak256Hash(root.Bytes(), k, blob)
	}

	return root
}
