package command

const (
	DefaultChainID        = 100
	DefaultBlockGasLimit  = 30000000
	DefaultGenesisBaseFee = 1000000000

	DefaultGenesisFileName = "genesis.json"
	DefaultDataDirName     = "executor-data"
)

const (
	JSONOutputFlag = "json"
	LogLevelFlag   = "log-level"
)
