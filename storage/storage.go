package storage

import "errors"

// ErrNotFound is returned when a key is absent from the store.
var ErrNotFound = errors.New("key not found")

// Batch groups writes for one atomic commit.
type Batch interface {
	Delete(key []byte)
	Put(k []byte, v []byte)
	Write() error
}

// Storage is the persistence surface of the executor: contract code and
// committed trie snapshots live here. Implementations must be safe for
// concurrent readers.
type Storage interface {
	Get(k []byte) ([]byte, bool, error)
	Set(k []byte, v []byte) error
	NewBatch() Batch
	Close() error
}

// Key prefixes of the executor's keyspace.
var (
	CodePrefix = []byte("c")
	RootPrefix = []byte("r")
)

// CodeKey builds the storage key of a code blob addressed by hash.
func CodeKey(hash []byte) []byte {
	return append(append(make([]byte, 0, len(CodePrefix)+len(hash)), CodePrefix...), hash...)
}
