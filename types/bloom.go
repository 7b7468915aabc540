package types

import (
	"hash"

	"golang.org/x/crypto/sha3"
)

const BloomByteLength = 256

// Bloom is the 2048-bit log filter aggregated per receipt and per block.
type Bloom [BloomByteLength]byte

// CreateBloom folds the logs of the given receipts into one filter.
func CreateBloom(receipts []*Receipt) (b Bloom) {
	h := sha3.NewLegacyKeccak256()

	for _, receipt := range receipts {
		for _, log := range receipt.Logs {
			b.setEncode(h, log.Address[:])

			for _, topic := range log.Topics {
				b.setEncode(h, topic[:])
			}
		}
	}

	return
}

// Or merges another filter into this one in place.
func (b *Bloom) Or(other *Bloom) {
	for i := 0; i < BloomByteLength; i++ {
		b[i] |= other[i]
	}
}

func (b *Bloom) setEncode(hasher hash.Hash, item []byte) {
	hasher.Reset()
	hasher.Write(item)
	buf := hasher.Sum(nil)

	// three low-order 11-bit indexes out of the first six digest bytes
	for i := 0; i < 6; i += 2 {
		bit := (uint(buf[i+1]) + (uint(buf[i]) << 8)) & 2047
		b[BloomByteLength-1-bit/8] |= byte(1 << (bit % 8))
	}
}

// IsLogInBloom reports whether the log's address is possibly present.
func (b *Bloom) IsLogInBloom(log *Log) bool {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(log.Address[:])
	buf := hasher.Sum(nil)

	for i := 0; i < 6; i += 2 {
		bit := (uint(buf[i+1]) + (uint(buf[i]) << 8)) & 2047
		if b[BloomByteLength-1-bit/8]&byte(1<<(bit%8)) == 0 {
			return false
		}
	}

	return true
}
