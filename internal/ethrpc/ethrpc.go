// Package ethrpc fetches witness material from an upstream JSON-RPC
// node: account and storage proofs, contract code, and block hashes.
// It is the only place the executor talks to the outside world.
package ethrpc

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/attestra-network/attestra-executor/proof"
	"github.com/attestra-network/attestra-executor/types"
)

// Client wraps one upstream RPC connection.
type Client struct {
	rpc *rpc.Client
}

func Dial(ctx context.Context, url string) (*Client, error) {
	cl, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	return &Client{rpc: cl}, nil
}

func (c *Client) Close() {
	c.rpc.Close()
}

// proofResult mirrors the eth_getProof response shape.
type proofResult struct {
	Address      string               `json:"address"`
	AccountProof []hexutil.Bytes      `json:"accountProof"`
	StorageProof []storageProofResult `json:"storageProof"`
}

type storageProofResult struct {
	Key   string          `json:"key"`
	Proof []hexutil.Bytes `json:"proof"`
}

// GetProof fetches the merkle paths of one account and the given
// storage slots at a block height.
func (c *Client) GetProof(
	ctx context.Context,
	addr types.Address,
	slots []types.Hash,
	blockNumber uint64,
) (*proof.AccountProof, error) {
	keys := make([]string, len(slots))
	for i, slot := range slots {
		keys[i] = slot.String()
	}

	var out proofResult
	if err := c.rpc.CallContext(ctx, &out, "eth_getProof",
		addr.String(), keys, hexutil.EncodeUint64(blockNumber)); err != nil {
		return nil, fmt.Errorf("eth_getProof %s: %w", addr, err)
	}

	result := &proof.AccountProof{
		Address:      addr,
		AccountProof: hexSlices(out.AccountProof),
	}

	for _, sp := range out.StorageProof {
		key, err := types.ParseHash(sp.Key)
		if err != nil {
			return nil, err
		}

		result.StorageProof = append(result.StorageProof, proof.StorageProof{
			Key:   key,
			Proof: hexSlices(sp.Proof),
		})
	}

	return result, nil
}

// GetCode fetches the deployed code of an account at a block height.
func (c *Client) GetCode(ctx context.Context, addr types.Address, blockNumber uint64) ([]byte, error) {
	var out hexutil.Bytes
	if err := c.rpc.CallContext(ctx, &out, "eth_getCode",
		addr.String(), hexutil.EncodeUint64(blockNumber)); err != nil {
		return nil, fmt.Errorf("eth_getCode %s: %w", addr, err)
	}

	return out, nil
}

// GetBlockHash fetches the hash of a block by number.
func (c *Client) GetBlockHash(ctx context.Context, blockNumber uint64) (types.Hash, error) {
	var out struct {
		Hash string `json:"hash"`
	}

	if err := c.rpc.CallContext(ctx, &out, "eth_getBlockByNumber",
		hexutil.EncodeUint64(blockNumber), false); err != nil {
		return types.ZeroHash, fmt.Errorf("eth_getBlockByNumber %d: %w", blockNumber, err)
	}

	return types.ParseHash(out.Hash)
}

func hexSlices(in []hexutil.Bytes) [][]byte {
	out := make([][]byte, len(in))
	for i, b := range in {
		out[i] = b
	}

	return out
}
