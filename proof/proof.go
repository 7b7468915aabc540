// Package proof builds the attestation artifacts of executed batches:
// the execution proof that commits to a state transition, and the block
// witness carrying everything needed to replay one block in isolation.
package proof

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/attestra-network/attestra-executor/crypto"
	"github.com/attestra-network/attestra-executor/types"
)

// SignatureLength is the size of a recoverable secp256k1 signature.
const SignatureLength = 65

var (
	ErrEmptyBatch        = errors.New("batch contains no block proofs")
	ErrBadSignatureSize  = errors.New("signature must be 65 bytes")
	ErrStateRootMismatch = errors.New("state root chain broken")
)

// ExecutionProof commits to one state transition: the pre and post
// roots, the witness hash the transition was replayed from, and the
// withdrawal commitment. The signature binds all of it to the chain id.
type ExecutionProof struct {
	BatchHash      types.Hash `json:"batchHash"`
	StateHash      types.Hash `json:"stateHash"`
	PrevStateRoot  types.Hash `json:"prevStateRoot"`
	NewStateRoot   types.Hash `json:"newStateRoot"`
	WithdrawalRoot types.Hash `json:"withdrawalRoot"`
	Signature      []byte     `json:"signature"`
}

// NewSingleBlockProof builds the unsigned proof of one executed block.
func NewSingleBlockProof(stateHash, prevStateRoot, newStateRoot, withdrawalRoot types.Hash) *ExecutionProof {
	return &ExecutionProof{
		StateHash:      stateHash,
		PrevStateRoot:  prevStateRoot,
		NewStateRoot:   newStateRoot,
		WithdrawalRoot: withdrawalRoot,
		Signature:      make([]byte, SignatureLength),
	}
}

// AggregateProofs folds the per-block proofs of a batch into one proof.
// The blocks must chain: each proof's previous root has to equal its
// predecessor's new root.
func AggregateProofs(batchHash types.Hash, blocks []*ExecutionProof) (*ExecutionProof, error) {
	if len(blocks) == 0 {
		return nil, ErrEmptyBatch
	}

	stateHashes := make([]byte, 0, len(blocks)*types.HashLength)

	for i, p := range blocks {
		if i > 0 && blocks[i-1].NewStateRoot != p.PrevStateRoot {
			return nil, fmt.Errorf("%w: proof %d expects prev root %s, previous block produced %s",
				ErrStateRootMismatch, i, p.PrevStateRoot, blocks[i-1].NewStateRoot)
		}

		stateHashes = append(stateHashes, p.StateHash.Bytes()...)
	}

	return &ExecutionProof{
		BatchHash:      batchHash,
		StateHash:      crypto.Keccak256Hash(stateHashes),
		PrevStateRoot:  blocks[0].PrevStateRoot,
		NewStateRoot:   blocks[len(blocks)-1].NewStateRoot,
		WithdrawalRoot: blocks[len(blocks)-1].WithdrawalRoot,
		Signature:      make([]byte, SignatureLength),
	}, nil
}

// signMessage is the solidity abi.encode of the proof fields prefixed
// with the chain id. The signature slot is always the zeroed
// placeholder, so signing and recovery hash the same preimage.
func (p *ExecutionProof) signMessage(chainID int64) []byte {
	return abiEncode(
		new(big.Int).SetInt64(chainID),
		p.BatchHash,
		p.StateHash,
		p.PrevStateRoot,
		p.NewStateRoot,
		p.WithdrawalRoot,
		make([]byte, SignatureLength),
	)
}

// Encode returns the abi-encoded proof for on-chain submission.
func (p *ExecutionProof) Encode() []byte {
	return abiEncode(
		p.BatchHash,
		p.StateHash,
		p.PrevStateRoot,
		p.NewStateRoot,
		p.WithdrawalRoot,
		p.Signature,
	)
}

// Sign computes the recoverable signature over the proof digest.
func (p *ExecutionProof) Sign(chainID int64, key *ecdsa.PrivateKey) error {
	digest := crypto.Keccak256(p.signMessage(chainID))

	sig, err := crypto.Sign(key, digest)
	if err != nil {
		return err
	}

	p.Signature = sig

	return nil
}

// RecoverSigner returns the address that signed the proof.
func (p *ExecutionProof) RecoverSigner(chainID int64) (types.Address, error) {
	if len(p.Signature) != SignatureLength {
		return types.ZeroAddress, ErrBadSignatureSize
	}

	digest := crypto.Keccak256(p.signMessage(chainID))

	return crypto.RecoverAddress(p.Signature, digest)
}

// Copy returns a deep copy.
func (p *ExecutionProof) Copy() *ExecutionProof {
	pp := *p
	pp.Signature = make([]byte, len(p.Signature))
	copy(pp.Signature, p.Signature)

	return &pp
}

// abiEncode implements abi.encode for the argument kinds the proof
// uses: *big.Int and types.Hash as static 32-byte words, []byte as a
// dynamic tail entry.
func abiEncode(args ...interface{}) []byte {
	head := make([]byte, 0, len(args)*32)
	tail := make([]byte, 0)
	headSize := len(args) * 32

	for _, arg := range args {
		switch v := arg.(type) {
		case *big.Int:
			head = append(head, leftPad32(v.Bytes())...)
		case types.Hash:
			head = append(head, v.Bytes()...)
		case []byte:
			head = append(head, leftPad32(new(big.Int).SetInt64(int64(headSize+len(tail))).Bytes())...)
			tail = append(tail, leftPad32(new(big.Int).SetInt64(int64(len(v))).Bytes())...)
			tail = append(tail, rightPadMul32(v)...)
		default:
			panic(fmt.Sprintf("unsupported abi argument type %T", arg))
		}
	}

	return append(head, tail...)
}

func leftPad32(b []byte) []byte {
	if len(b) >= 32 {
		return b[len(b)-32:]
	}

	out := make([]byte, 32)
	copy(out[32-len(b):], b)

	return out
}

func rightPadMul32(b []byte) []byte {
	size := (len(b) + 31) / 32 * 32
	out := make([]byte, size)
	copy(out, b)

	return out
}
