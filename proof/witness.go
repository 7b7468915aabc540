package proof

import (
	"bytes"
	"sort"

	"github.com/attestra-network/attestra-executor/crypto"
	"github.com/attestra-network/attestra-executor/types"
)

// StorageProof is the merkle path of one storage slot.
type StorageProof struct {
	Key   types.Hash `json:"key"`
	Proof [][]byte   `json:"proof"`
}

// AccountProof is the eth_getProof result of one account touched by a
// block: its merkle path plus the paths of every read slot.
type AccountProof struct {
	Address      types.Address  `json:"address"`
	AccountProof [][]byte       `json:"accountProof"`
	StorageProof []StorageProof `json:"storageProof"`
}

// WitnessData is the self-contained replay input of one block.
type WitnessData struct {
	ChainID       uint64                `json:"chainId"`
	PrevStateRoot types.Hash            `json:"prevStateRoot"`
	BlockHashes   map[uint64]types.Hash `json:"blockHashes"`
	TrieNodes     [][]byte              `json:"trieNodes"`
	Codes         [][]byte              `json:"codes"`
}

// BlockWitness packages a block with the witness data needed to execute
// it without any external state. Its StateHash is the commitment the
// execution proof refers to.
type BlockWitness struct {
	Block *types.Block `json:"block"`
	Data  WitnessData  `json:"data"`

	stateHash *types.Hash
}

func NewBlockWitness(block *types.Block, data WitnessData) *BlockWitness {
	return &BlockWitness{
		Block: block,
		Data:  data,
	}
}

// FromProofs assembles a witness from fetched account proofs. Trie
// nodes are deduplicated by their keccak hash; contract code is ordered
// by code hash so equal inputs always produce the same witness.
func FromProofs(
	chainID uint64,
	block *types.Block,
	prevStateRoot types.Hash,
	blockHashes map[uint64]types.Hash,
	codes map[types.Hash][]byte,
	accounts []*AccountProof,
) *BlockWitness {
	seen := map[types.Hash][]byte{}

	collect := func(nodes [][]byte) {
		for _, node := range nodes {
			h := crypto.Keccak256Hash(node)
			if _, ok := seen[h]; !ok {
				seen[h] = node
			}
		}
	}

	for _, acc := range accounts {
		collect(acc.AccountProof)

		for _, storage := range acc.StorageProof {
			collect(storage.Proof)
		}
	}

	trieNodes := make([][]byte, 0, len(seen))
	for _, node := range seen {
		trieNodes = append(trieNodes, node)
	}

	codeHashes := make([]types.Hash, 0, len(codes))
	for h := range codes {
		codeHashes = append(codeHashes, h)
	}

	sort.Slice(codeHashes, func(i, j int) bool {
		return bytes.Compare(codeHashes[i].Bytes(), codeHashes[j].Bytes()) < 0
	})

	orderedCodes := make([][]byte, 0, len(codeHashes))
	for _, h := range codeHashes {
		orderedCodes = append(orderedCodes, codes[h])
	}

	return NewBlockWitness(block, WitnessData{
		ChainID:       chainID,
		PrevStateRoot: prevStateRoot,
		BlockHashes:   blockHashes,
		TrieNodes:     trieNodes,
		Codes:         orderedCodes,
	})
}

// StateHash sorts the trie nodes and folds them into the witness
// commitment. The sort makes the hash independent of fetch order; the
// result is cached.
func (w *BlockWitness) StateHash() types.Hash {
	if w.stateHash != nil {
		return *w.stateHash
	}

	sort.Slice(w.Data.TrieNodes, func(i, j int) bool {
		return bytes.Compare(w.Data.TrieNodes[i], w.Data.TrieNodes[j]) < 0
	})

	var preimage []byte
	for _, node := range w.Data.TrieNodes {
		preimage = append(preimage, node...)
	}

	h := crypto.Keccak256Hash(preimage)
	w.stateHash = &h

	return h
}

// BlockHash returns the hash of the carried block header.
func (w *BlockWitness) BlockHash() types.Hash {
	return w.Block.Header.Hash()
}
