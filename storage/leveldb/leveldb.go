package leveldb

import (
	"github.com/hashicorp/go-hclog"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/attestra-network/attestra-executor/storage"
)

var _ storage.Storage = (*levelDBStorage)(nil)

type levelDBStorage struct {
	db     *leveldb.DB
	logger hclog.Logger
}

// NewLevelDBStorage opens the on-disk store at the given path.
func NewLevelDBStorage(path string, logger hclog.Logger) (storage.Storage, error) {
	options := &opt.Options{
		BlockCacheCapacity: 64 * opt.MiB,
		WriteBuffer:        32 * opt.MiB,
	}

	db, err := leveldb.OpenFile(path, options)
	if err != nil {
		return nil, err
	}

	return &levelDBStorage{
		db:     db,
		logger: logger.Named("leveldb"),
	}, nil
}

func (l *levelDBStorage) Get(k []byte) ([]byte, bool, error) {
	data, err := l.db.Get(k, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, false, nil
		}

		return nil, false, err
	}

	return data, true, nil
}

func (l *levelDBStorage) Set(k []byte, v []byte) error {
	return l.db.Put(k, v, nil)
}

func (l *levelDBStorage) NewBatch() storage.Batch {
	return newBatch(l.db)
}

func (l *levelDBStorage) Close() error {
	return l.db.Close()
}
