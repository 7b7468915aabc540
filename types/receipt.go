package types

// ReceiptStatus is the outcome flag of an executed transaction.
type ReceiptStatus uint64

const (
	ReceiptFailed ReceiptStatus = iota
	ReceiptSuccess
)

// Receipt is the durable record of one transaction's outcome. It is
// created once by the executor and never mutated afterwards.
type Receipt struct {
	Status            ReceiptStatus
	CumulativeGasUsed uint64
	GasUsed           uint64
	LogsBloom         Bloom
	Logs              []*Log
	TxHash            Hash
	TransactionIndex  uint64

	// ContractAddress is set only for contract-creation transactions.
	ContractAddress *Address

	// Output holds the return data, or the revert reason for failed
	// transactions when the interpreter supplied one.
	Output []byte
}

func (r *Receipt) SetStatus(s ReceiptStatus) {
	r.Status = s
}

func (r *Receipt) Succeeded() bool {
	return r.Status == ReceiptSuccess
}

// Log is a single event emitted during execution, in emission order.
type Log struct {
	Address Address
	Topics  []Hash
	Data    []byte
}

func (l *Log) Copy() *Log {
	return &Log{
		Address: l.Address,
		Topics:  append([]Hash{}, l.Topics...),
		Data:    append([]byte{}, l.Data...),
	}
}
