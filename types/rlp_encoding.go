package types

import (
	"golang.org/x/crypto/sha3"

	"github.com/umbracle/fastrlp"
)

// RLP here is a hashing-only concern: transaction identity, receipt
// commitments and the receipts root are derived from these encodings.
// Wire codecs for network formats live outside this module.

var arenaPool fastrlp.ArenaPool

func (t *Transaction) computeHash() Hash {
	ar := arenaPool.Get()
	defer arenaPool.Put(ar)

	h := sha3.NewLegacyKeccak256()
	h.Write(t.MarshalRLPTo(ar, nil))

	return BytesToHash(h.Sum(nil))
}

// MarshalRLPTo encodes the transaction payload:
// [nonce, gasPrice, gas, to, value, input, accessList, from].
func (t *Transaction) MarshalRLPTo(ar *fastrlp.Arena, dst []byte) []byte {
	vv := ar.NewArray()
	vv.Set(ar.NewUint(t.Nonce))
	vv.Set(ar.NewBigInt(t.GasPrice))
	vv.Set(ar.NewUint(t.Gas))

	if t.To == nil {
		vv.Set(ar.NewNull())
	} else {
		vv.Set(ar.NewCopyBytes(t.To.Bytes()))
	}

	vv.Set(ar.NewBigInt(t.Value))
	vv.Set(ar.NewCopyBytes(t.Input))
	vv.Set(t.AccessList.marshalRLPWith(ar))
	vv.Set(ar.NewCopyBytes(t.From.Bytes()))

	return vv.MarshalTo(dst)
}

func (al AccessList) marshalRLPWith(ar *fastrlp.Arena) *fastrlp.Value {
	vv := ar.NewArray()

	for _, tuple := range al {
		entry := ar.NewArray()
		entry.Set(ar.NewCopyBytes(tuple.Address.Bytes()))

		keys := ar.NewArray()
		for _, key := range tuple.StorageKeys {
			keys.Set(ar.NewCopyBytes(key.Bytes()))
		}

		entry.Set(keys)
		vv.Set(entry)
	}

	return vv
}

// MarshalRLPTo encodes the receipt payload:
// [status, cumulativeGasUsed, bloom, logs].
func (r *Receipt) MarshalRLPTo(ar *fastrlp.Arena, dst []byte) []byte {
	vv := ar.NewArray()
	vv.Set(ar.NewUint(uint64(r.Status)))
	vv.Set(ar.NewUint(r.CumulativeGasUsed))
	vv.Set(ar.NewCopyBytes(r.LogsBloom[:]))

	logs := ar.NewArray()
	for _, log := range r.Logs {
		entry := ar.NewArray()
		entry.Set(ar.NewCopyBytes(log.Address.Bytes()))

		topics := ar.NewArray()
		for _, topic := range log.Topics {
			topics.Set(ar.NewCopyBytes(topic.Bytes()))
		}

		entry.Set(topics)
		entry.Set(ar.NewCopyBytes(log.Data))
		logs.Set(entry)
	}

	vv.Set(logs)

	return vv.MarshalTo(dst)
}

// ReceiptsRoot folds the ordered receipts into one commitment: the keccak
// of every receipt's RLP keccak, in transaction order. Deterministic by
// construction, recomputable without the trie engine.
func ReceiptsRoot(receipts []*Receipt) Hash {
	ar := arenaPool.Get()
	defer arenaPool.Put(ar)

	inner := sha3.NewLegacyKeccak256()
	outer := sha3.NewLegacyKeccak256()

	buf := make([]byte, 0, 512)

	for _, receipt := range receipts {
		ar.Reset()

		buf = receipt.MarshalRLPTo(ar, buf[:0])

		inner.Reset()
		inner.Write(buf)
		outer.Write(inner.Sum(nil))
	}

	return BytesToHash(outer.Sum(nil))
}

// MarshalRLPTo encodes the header payload used for the block hash.
func (h *Header) MarshalRLPTo(ar *fastrlp.Arena, dst []byte) []byte {
	vv := ar.NewArray()
	vv.Set(ar.NewCopyBytes(h.ParentHash.Bytes()))
	vv.Set(ar.NewCopyBytes(h.StateRoot.Bytes()))
	vv.Set(ar.NewCopyBytes(h.ReceiptsRoot.Bytes()))
	vv.Set(ar.NewCopyBytes(h.LogsBloom[:]))
	vv.Set(ar.NewUint(h.Difficulty))
	vv.Set(ar.NewUint(h.Number))
	vv.Set(ar.NewUint(h.GasLimit))
	vv.Set(ar.NewUint(h.GasUsed))
	vv.Set(ar.NewUint(h.Timestamp))
	vv.Set(ar.NewCopyBytes(h.ExtraData))
	vv.Set(ar.NewCopyBytes(h.MixHash.Bytes()))
	vv.Set(ar.NewCopyBytes(h.Miner.Bytes()))
	vv.Set(ar.NewUint(h.BaseFee))

	return vv.MarshalTo(dst)
}

// Hash computes the keccak of the header encoding.
func (h *Header) Hash() Hash {
	ar := arenaPool.Get()
	defer arenaPool.Put(ar)

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(h.MarshalRLPTo(ar, nil))

	return BytesToHash(hasher.Sum(nil))
}

// WithdrawalsRoot folds the ordered withdrawals into one commitment.
func WithdrawalsRoot(withdrawals []*Withdrawal) Hash {
	ar := arenaPool.Get()
	defer arenaPool.Put(ar)

	h := sha3.NewLegacyKeccak256()
	buf := make([]byte, 0, 64)

	for _, w := range withdrawals {
		ar.Reset()

		vv := ar.NewArray()
		vv.Set(ar.NewUint(w.Index))
		vv.Set(ar.NewUint(w.Validator))
		vv.Set(ar.NewCopyBytes(w.Address.Bytes()))
		vv.Set(ar.NewUint(w.Amount))

		buf = vv.MarshalTo(buf[:0])
		h.Write(buf)
	}

	return BytesToHash(h.Sum(nil))
}

// TxRoot folds the ordered transaction hashes the same way.
func TxRoot(txs []*Transaction) Hash {
	h := sha3.NewLegacyKeccak256()

	for _, tx := range txs {
		hash := tx.Hash()
		h.Write(hash[:])
	}

	return BytesToHash(h.Sum(nil))
}
