package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage_SetAndGet(t *testing.T) {
	s := NewMemoryStorage()

	require.NoError(t, s.Set([]byte("k"), []byte("v")))

	v, ok, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	_, ok, err = s.Get([]byte("missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStorage_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStorage()

	require.NoError(t, s.Set([]byte("k"), []byte{1, 2, 3}))

	v, _, err := s.Get([]byte("k"))
	require.NoError(t, err)

	v[0] = 0xff

	again, _, err := s.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, again)
}

func TestMemoryStorage_BatchIsAtomicUntilWrite(t *testing.T) {
	s := NewMemoryStorage()

	require.NoError(t, s.Set([]byte("old"), []byte("x")))

	b := s.NewBatch()
	b.Put([]byte("a"), []byte("1"))
	b.Put([]byte("b"), []byte("2"))
	b.Delete([]byte("old"))

	// nothing lands before Write
	_, ok, err := s.Get([]byte("a"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Write())

	v, ok, err := s.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	_, ok, err = s.Get([]byte("old"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStorage_BatchReplayOrder(t *testing.T) {
	s := NewMemoryStorage()

	b := s.NewBatch()
	b.Put([]byte("k"), []byte("first"))
	b.Delete([]byte("k"))
	b.Put([]byte("k"), []byte("last"))

	require.NoError(t, b.Write())

	v, ok, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("last"), v)
}

func TestCodeKey(t *testing.T) {
	assert.Equal(t, []byte("cab"), CodeKey([]byte("ab")))
}
