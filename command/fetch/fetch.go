package fetch

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/attestra-network/attestra-executor/command"
	"github.com/attestra-network/attestra-executor/crypto"
	"github.com/attestra-network/attestra-executor/internal/ethrpc"
	"github.com/attestra-network/attestra-executor/proof"
	"github.com/attestra-network/attestra-executor/types"
)

type fetchParams struct {
	rpcURL      string
	blockNumber uint64
	chainID     uint64
	prevRoot    string
	accounts    []string
	outPath     string
	logLevel    string
}

var params = &fetchParams{}

func GetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetches the witness material of a block from an upstream node",
		RunE:  runCommand,
	}

	setFlags(cmd)

	return cmd
}

func setFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&params.rpcURL, "rpc", "",
		"url of the upstream JSON-RPC node")
	cmd.Flags().Uint64Var(&params.blockNumber, "block", 0,
		"block height of the pre-state")
	cmd.Flags().Uint64Var(&params.chainID, "chain-id", command.DefaultChainID,
		"chain id recorded in the witness")
	cmd.Flags().StringVar(&params.prevRoot, "prev-root", "",
		"state root of the pre-state")
	cmd.Flags().StringArrayVar(&params.accounts, "account", nil,
		"account to fetch, as addr or addr:slot[,slot...]")
	cmd.Flags().StringVar(&params.outPath, "out", "witness.json",
		"output path of the witness document")
	cmd.Flags().StringVar(&params.logLevel, command.LogLevelFlag, "INFO",
		"minimum log level")

	_ = cmd.MarkFlagRequired("rpc")
	_ = cmd.MarkFlagRequired("account")
}

func runCommand(cmd *cobra.Command, _ []string) error {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "attestra",
		Level: hclog.LevelFromString(params.logLevel),
	})

	ctx := cmd.Context()

	client, err := ethrpc.Dial(ctx, params.rpcURL)
	if err != nil {
		return err
	}
	defer client.Close()

	prevRoot := types.ZeroHash

	if params.prevRoot != "" {
		if prevRoot, err = types.ParseHash(params.prevRoot); err != nil {
			return err
		}
	}

	codes := map[types.Hash][]byte{}
	accounts := make([]*proof.AccountProof, 0, len(params.accounts))

	for _, entry := range params.accounts {
		addr, slots, err := parseAccountEntry(entry)
		if err != nil {
			return err
		}

		acc, err := client.GetProof(ctx, addr, slots, params.blockNumber)
		if err != nil {
			return err
		}

		accounts = append(accounts, acc)

		code, err := client.GetCode(ctx, addr, params.blockNumber)
		if err != nil {
			return err
		}

		if len(code) > 0 {
			codes[crypto.Keccak256Hash(code)] = code
		}
	}

	blockHash, err := client.GetBlockHash(ctx, params.blockNumber)
	if err != nil {
		return err
	}

	witness := proof.FromProofs(
		params.chainID,
		nil,
		prevRoot,
		map[uint64]types.Hash{params.blockNumber: blockHash},
		codes,
		accounts,
	)

	data, err := json.MarshalIndent(witness, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(params.outPath, data, 0o644); err != nil {
		return err
	}

	logger.Info("witness written",
		"accounts", len(accounts),
		"trieNodes", len(witness.Data.TrieNodes),
		"codes", len(witness.Data.Codes),
		"path", params.outPath,
	)

	fmt.Fprintf(cmd.OutOrStdout(), "Witness      %s\n", params.outPath)
	fmt.Fprintf(cmd.OutOrStdout(), "State hash   %s\n", witness.StateHash())

	return nil
}

// parseAccountEntry splits one --account value into an address and its
// storage slots.
func parseAccountEntry(entry string) (types.Address, []types.Hash, error) {
	addrPart, slotPart, hasSlots := strings.Cut(entry, ":")

	addr, err := types.ParseAddress(addrPart)
	if err != nil {
		return types.ZeroAddress, nil, err
	}

	if !hasSlots || slotPart == "" {
		return addr, nil, nil
	}

	var slots []types.Hash

	for _, raw := range strings.Split(slotPart, ",") {
		slot, err := types.ParseHash(raw)
		if err != nil {
			return types.ZeroAddress, nil, err
		}

		slots = append(slots, slot)
	}

	return addr, slots, nil
}
