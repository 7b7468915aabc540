package leveldb

import (
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/attestra-network/attestra-executor/storage"
)

var _ storage.Batch = (*levelDBBatch)(nil)

// levelDBBatch buffers writes and lands them in one atomic Write. The
// batch is reusable after Write, matching the in-memory batch.
type levelDBBatch struct {
	db  *leveldb.DB
	ops *leveldb.Batch
}

func newBatch(db *leveldb.DB) *levelDBBatch {
	return &levelDBBatch{
		db:  db,
		ops: new(leveldb.Batch),
	}
}

func (b *levelDBBatch) Delete(key []byte) {
	b.ops.Delete(key)
}

func (b *levelDBBatch) Put(k []byte, v []byte) {
	b.ops.Put(k, v)
}

func (b *levelDBBatch) Write() error {
	if err := b.db.Write(b.ops, nil); err != nil {
		return err
	}

	b.ops.Reset()

	return nil
}
