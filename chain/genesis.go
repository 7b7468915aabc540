package chain

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/attestra-network/attestra-executor/types"
)

// Genesis describes the initial allocation and the block-level defaults
// of a chain. It is the on-disk input of WriteGenesis.
type Genesis struct {
	Name      string                            `json:"name"`
	ChainID   int64                             `json:"chainID"`
	GasLimit  uint64                            `json:"gasLimit"`
	BaseFee   uint64                            `json:"baseFee"`
	Timestamp uint64                            `json:"timestamp"`
	Alloc     map[types.Address]*GenesisAccount `json:"alloc"`
	Forks     map[string]uint64                 `json:"forks,omitempty"`
}

type genesisAccountEncoder struct {
	Code    *hexutil.Bytes            `json:"code,omitempty"`
	Storage map[types.Hash]types.Hash `json:"storage,omitempty"`
	Balance *hexutil.Big              `json:"balance"`
	Nonce   *hexutil.Uint64           `json:"nonce,omitempty"`
}

func (g *GenesisAccount) MarshalJSON() ([]byte, error) {
	enc := genesisAccountEncoder{
		Storage: g.Storage,
		Balance: (*hexutil.Big)(g.Balance),
	}

	if len(g.Code) > 0 {
		code := hexutil.Bytes(g.Code)
		enc.Code = &code
	}

	if g.Nonce != 0 {
		nonce := hexutil.Uint64(g.Nonce)
		enc.Nonce = &nonce
	}

	return json.Marshal(&enc)
}

func (g *GenesisAccount) UnmarshalJSON(data []byte) error {
	var dec genesisAccountEncoder
	if err := json.Unmarshal(data, &dec); err != nil {
		return err
	}

	if dec.Code != nil {
		g.Code = *dec.Code
	}

	g.Storage = dec.Storage

	if dec.Balance != nil {
		g.Balance = (*big.Int)(dec.Balance)
	} else {
		g.Balance = new(big.Int)
	}

	if dec.Nonce != nil {
		g.Nonce = uint64(*dec.Nonce)
	}

	return nil
}

// ImportFromFile loads a genesis document from disk.
func ImportFromFile(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis file: %w", err)
	}

	genesis := new(Genesis)
	if err := json.Unmarshal(data, genesis); err != nil {
		return nil, fmt.Errorf("parse genesis file %s: %w", path, err)
	}

	if genesis.GasLimit == 0 {
		return nil, fmt.Errorf("genesis file %s: gas limit must be set", path)
	}

	return genesis, nil
}

// Params builds the protocol configuration of this genesis: default
// rules, forks overridden by name when the document lists any.
func (g *Genesis) Params() *Params {
	params := DefaultParams(g.ChainID)

	if len(g.Forks) > 0 {
		forks := &Forks{}

		set := func(target **Fork, name string) {
			if height, ok := g.Forks[name]; ok {
				*target = NewFork(height)
			}
		}

		set(&forks.Homestead, "homestead")
		set(&forks.EIP150, "eip150")
		set(&forks.EIP158, "eip158")
		set(&forks.Istanbul, "istanbul")
		set(&forks.Berlin, "berlin")
		set(&forks.London, "london")
		set(&forks.EIP3529, "eip3529")
		set(&forks.EIP3860, "eip3860")

		params.Forks = forks
	}

	return params
}
