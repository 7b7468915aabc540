package execute

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/attestra-network/attestra-executor/chain"
	"github.com/attestra-network/attestra-executor/command"
	"github.com/attestra-network/attestra-executor/crypto"
	"github.com/attestra-network/attestra-executor/proof"
	"github.com/attestra-network/attestra-executor/state"
	"github.com/attestra-network/attestra-executor/state/memdb"
	"github.com/attestra-network/attestra-executor/storage"
	storageleveldb "github.com/attestra-network/attestra-executor/storage/leveldb"
	"github.com/attestra-network/attestra-executor/types"
)

type executeParams struct {
	genesisPath string
	blockPath   string
	dataDir     string
	coinbase    string
	signKeyHex  string
	logLevel    string
	jsonOutput  bool
}

var params = &executeParams{}

func GetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Executes a block over the genesis state and prints the attested result",
		RunE:  runCommand,
	}

	setFlags(cmd)

	return cmd
}

func setFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&params.genesisPath, "genesis", command.DefaultGenesisFileName,
		"path to the genesis file")
	cmd.Flags().StringVar(&params.blockPath, "block", "",
		"path to the block file to execute")
	cmd.Flags().StringVar(&params.dataDir, "data-dir", "",
		"directory of the persistent store (in-memory when empty)")
	cmd.Flags().StringVar(&params.coinbase, "coinbase", types.ZeroAddress.String(),
		"fee recipient address")
	cmd.Flags().StringVar(&params.signKeyHex, "sign-key", "",
		"hex-encoded secp256k1 key for signing the execution proof")
	cmd.Flags().StringVar(&params.logLevel, command.LogLevelFlag, "INFO",
		"minimum log level")
	cmd.Flags().BoolVar(&params.jsonOutput, command.JSONOutputFlag, false,
		"print the result as JSON")

	_ = cmd.MarkFlagRequired("block")
}

// blockDocument is the on-disk block input.
type blockDocument struct {
	Header struct {
		ParentHash types.Hash    `json:"parentHash"`
		Number     uint64        `json:"number"`
		Timestamp  uint64        `json:"timestamp"`
		GasLimit   uint64        `json:"gasLimit"`
		BaseFee    uint64        `json:"baseFee"`
		ExtraData  hexutil.Bytes `json:"extraData"`
	} `json:"header"`
	Transactions []txDocument         `json:"transactions"`
	Withdrawals  []withdrawalDocument `json:"withdrawals"`
}

type txDocument struct {
	From     types.Address  `json:"from"`
	To       *types.Address `json:"to"`
	Nonce    uint64         `json:"nonce"`
	Gas      uint64         `json:"gas"`
	GasPrice *hexutil.Big   `json:"gasPrice"`
	Value    *hexutil.Big   `json:"value"`
	Input    hexutil.Bytes  `json:"input"`
}

type withdrawalDocument struct {
	Index     uint64        `json:"index"`
	Validator uint64        `json:"validator"`
	Address   types.Address `json:"address"`
	Amount    uint64        `json:"amount"`
}

type executionOutput struct {
	RunID        string     `json:"runId"`
	StateRoot    types.Hash `json:"stateRoot"`
	ReceiptsRoot types.Hash `json:"receiptsRoot"`
	GasUsed      uint64     `json:"gasUsed"`
	Receipts     int        `json:"receipts"`
	ProofSigner  string     `json:"proofSigner,omitempty"`
	Proof        string     `json:"proof,omitempty"`
}

func runCommand(cmd *cobra.Command, _ []string) error {
	runID := uuid.New().String()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "attestra",
		Level: hclog.LevelFromString(params.logLevel),
	}).With("run", runID)

	genesis, err := chain.ImportFromFile(params.genesisPath)
	if err != nil {
		return err
	}

	block, err := loadBlock(params.blockPath, genesis)
	if err != nil {
		return err
	}

	coinbase, err := types.ParseAddress(params.coinbase)
	if err != nil {
		return err
	}

	store, err := openStorage(logger)
	if err != nil {
		return err
	}
	defer store.Close()

	st := memdb.NewState(store)
	executor := state.NewExecutor(genesis.Params(), st, nil, logger)

	genesisRoot, err := executor.WriteGenesis(genesis.Alloc, types.ZeroHash)
	if err != nil {
		return fmt.Errorf("write genesis: %w", err)
	}

	logger.Info("genesis written", "root", genesisRoot)

	result, err := executor.ExecuteBlock(genesisRoot, block, coinbase)
	if err != nil {
		return fmt.Errorf("execute block: %w", err)
	}

	logger.Info("block executed",
		"number", block.Header.Number,
		"txs", len(result.Receipts),
		"gasUsed", result.TotalGas,
		"root", result.Root,
	)

	output := &executionOutput{
		RunID:        runID,
		StateRoot:    result.Root,
		ReceiptsRoot: result.ReceiptsRoot,
		GasUsed:      result.TotalGas,
		Receipts:     len(result.Receipts),
	}

	if params.signKeyHex != "" {
		if err := attachProof(output, genesis, genesisRoot, block, result); err != nil {
			return err
		}
	}

	return printOutput(cmd, output)
}

func openStorage(logger hclog.Logger) (storage.Storage, error) {
	if params.dataDir == "" {
		return storage.NewMemoryStorage(), nil
	}

	return storageleveldb.NewLevelDBStorage(params.dataDir, logger)
}

func loadBlock(path string, genesis *chain.Genesis) (*types.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read block file: %w", err)
	}

	doc := new(blockDocument)
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse block file %s: %w", path, err)
	}

	header := &types.Header{
		ParentHash: doc.Header.ParentHash,
		Number:     doc.Header.Number,
		Timestamp:  doc.Header.Timestamp,
		GasLimit:   doc.Header.GasLimit,
		BaseFee:    doc.Header.BaseFee,
		ExtraData:  doc.Header.ExtraData,
	}

	if header.GasLimit == 0 {
		header.GasLimit = genesis.GasLimit
	}

	block := &types.Block{Header: header}

	for _, tx := range doc.Transactions {
		gasPrice := new(big.Int)
		if tx.GasPrice != nil {
			gasPrice = (*big.Int)(tx.GasPrice)
		}

		value := new(big.Int)
		if tx.Value != nil {
			value = (*big.Int)(tx.Value)
		}

		block.Transactions = append(block.Transactions, &types.Transaction{
			From:     tx.From,
			To:       tx.To,
			Nonce:    tx.Nonce,
			Gas:      tx.Gas,
			GasPrice: gasPrice,
			Value:    value,
			Input:    tx.Input,
		})
	}

	for _, w := range doc.Withdrawals {
		block.Withdrawals = append(block.Withdrawals, &types.Withdrawal{
			Index:     w.Index,
			Validator: w.Validator,
			Address:   w.Address,
			Amount:    w.Amount,
		})
	}

	return block, nil
}

func attachProof(
	output *executionOutput,
	genesis *chain.Genesis,
	prevRoot types.Hash,
	block *types.Block,
	result *state.BlockResult,
) error {
	keyBytes, err := hex.DecodeString(strings.TrimPrefix(params.signKeyHex, "0x"))
	if err != nil {
		return fmt.Errorf("parse sign key: %w", err)
	}

	key, err := crypto.ParseECDSAKey(keyBytes)
	if err != nil {
		return fmt.Errorf("parse sign key: %w", err)
	}

	witness := proof.NewBlockWitness(block, proof.WitnessData{
		ChainID:       uint64(genesis.ChainID),
		PrevStateRoot: prevRoot,
	})

	p := proof.NewSingleBlockProof(
		witness.StateHash(),
		prevRoot,
		result.Root,
		types.WithdrawalsRoot(block.Withdrawals),
	)
	if err := p.Sign(genesis.ChainID, key); err != nil {
		return fmt.Errorf("sign proof: %w", err)
	}

	signer, err := p.RecoverSigner(genesis.ChainID)
	if err != nil {
		return fmt.Errorf("verify proof signature: %w", err)
	}

	output.ProofSigner = signer.String()
	output.Proof = "0x" + hex.EncodeToString(p.Encode())

	return nil
}

func printOutput(cmd *cobra.Command, output *executionOutput) error {
	if params.jsonOutput {
		data, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(data))

		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Run ID       %s\n", output.RunID)
	fmt.Fprintf(cmd.OutOrStdout(), "State root   %s\n", output.StateRoot)
	fmt.Fprintf(cmd.OutOrStdout(), "Receipts     %d (root %s)\n", output.Receipts, output.ReceiptsRoot)
	fmt.Fprintf(cmd.OutOrStdout(), "Gas used     %d\n", output.GasUsed)

	if output.Proof != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Proof signer %s\n", output.ProofSigner)
		fmt.Fprintf(cmd.OutOrStdout(), "Proof        %s\n", output.Proof)
	}

	return nil
}
