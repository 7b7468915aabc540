package storage

import "sync"

// memoryStorage is the in-process implementation, used for tests and
// ephemeral enclave runs where nothing survives the process.
type memoryStorage struct {
	mu sync.RWMutex
	kv map[string][]byte
}

func NewMemoryStorage() Storage {
	return &memoryStorage{
		kv: map[string][]byte{},
	}
}

func (m *memoryStorage) Get(k []byte) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.kv[string(k)]
	if !ok {
		return nil, false, nil
	}

	buf := make([]byte, len(v))
	copy(buf, v)

	return buf, true, nil
}

func (m *memoryStorage) Set(k []byte, v []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, len(v))
	copy(buf, v)
	m.kv[string(k)] = buf

	return nil
}

func (m *memoryStorage) NewBatch() Batch {
	return &memoryBatch{storage: m}
}

func (m *memoryStorage) Close() error {
	return nil
}

type memoryOp struct {
	del bool
	k   []byte
	v   []byte
}

type memoryBatch struct {
	storage *memoryStorage
	ops     []memoryOp
}

func (b *memoryBatch) Delete(key []byte) {
	b.ops = append(b.ops, memoryOp{del: true, k: key})
}

func (b *memoryBatch) Put(k []byte, v []byte) {
	b.ops = append(b.ops, memoryOp{k: k, v: v})
}

func (b *memoryBatch) Write() error {
	b.storage.mu.Lock()
	defer b.storage.mu.Unlock()

	for _, op := range b.ops {
		if op.del {
			delete(b.storage.kv, string(op.k))

			continue
		}

		buf := make([]byte, len(op.v))
		copy(buf, op.v)
		b.storage.kv[string(op.k)] = buf
	}

	b.ops = b.ops[:0]

	return nil
}
