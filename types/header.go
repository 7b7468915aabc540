package types

// Header carries the block-level inputs and outputs of execution. The
// executor fills StateRoot, ReceiptsRoot, GasUsed and LogsBloom; every
// other field is a protocol input chosen upstream.
type Header struct {
	ParentHash   Hash
	Number       uint64
	Timestamp    uint64
	Miner        Address
	GasLimit     uint64
	GasUsed      uint64
	BaseFee      uint64
	Difficulty   uint64
	MixHash      Hash
	ExtraData    []byte
	StateRoot    Hash
	ReceiptsRoot Hash
	LogsBloom    Bloom
}

func (h *Header) Copy() *Header {
	hh := new(Header)
	*hh = *h
	hh.ExtraData = append([]byte{}, h.ExtraData...)

	return hh
}

// Block is an ordered transaction batch plus its header. Ordering is a
// consensus input, never chosen here.
type Block struct {
	Header       *Header
	Transactions []*Transaction
	Withdrawals  []*Withdrawal
}

// Withdrawal credits a validator balance at block finalization.
// Amount is denominated in gwei, per the consensus-layer convention.
type Withdrawal struct {
	Index     uint64
	Validator uint64
	Address   Address
	Amount    uint64
}
