package runtime

import (
	"errors"
	"math/big"

	"github.com/attestra-network/attestra-executor/chain"
	"github.com/attestra-network/attestra-executor/types"
)

// TxContext is the blockchain-level input of one transaction execution.
type TxContext struct {
	Number     uint64
	Timestamp  uint64
	GasLimit   uint64
	ChainID    int64
	Coinbase   types.Address
	Difficulty types.Hash
	BaseFee    *big.Int
	GasPrice   *big.Int
	Origin     types.Address

	// NonPayable disables the balance check for gas purchase; used for
	// read-only simulation, never for consensus execution.
	NonPayable bool
}

// CallType distinguishes the frame kinds the executor tracks.
type CallType int

const (
	Call CallType = iota
	CallCode
	DelegateCall
	StaticCall
	Create
	Create2
)

func (t CallType) String() string {
	switch t {
	case Call:
		return "CALL"
	case CallCode:
		return "CALLCODE"
	case DelegateCall:
		return "DELEGATECALL"
	case StaticCall:
		return "STATICCALL"
	case Create:
		return "CREATE"
	case Create2:
		return "CREATE2"
	}

	return "UNKNOWN"
}

// Execution outcomes. Reverts and failures yield failure receipts; they
// are never batch-level errors.
var (
	ErrOutOfGas                 = errors.New("out of gas")
	ErrNotEnoughFunds           = errors.New("not enough funds")
	ErrInsufficientBalance      = errors.New("insufficient balance for transfer")
	ErrStackOverflow            = errors.New("stack overflow")
	ErrStackUnderflow           = errors.New("stack underflow")
	ErrDepth                    = errors.New("max call depth exceeded")
	ErrOpcodeNotFound           = errors.New("opcode not found")
	ErrExecutionReverted        = errors.New("execution was reverted")
	ErrCodeStoreOutOfGas        = errors.New("contract creation code storage out of gas")
	ErrMaxCodeSizeExceeded      = errors.New("evm: max code size exceeded")
	ErrContractAddressCollision = errors.New("contract address collision")
	ErrInvalidCode              = errors.New("invalid code: must not begin with 0xef")
	ErrStaticCallViolation      = errors.New("state modification in static call")
	ErrNonceOverflow            = errors.New("nonce uint64 overflow")
	ErrRuntimeNotFound          = errors.New("runtime not found")
)

// ExecutionResult is the normalized outcome of one message frame, exactly
// one of three shapes: success (Err == nil), revert (Err ==
// ErrExecutionReverted, gas left preserved, state discarded), or failure
// (any other Err, all gas consumed).
type ExecutionResult struct {
	ReturnValue []byte
	GasLeft     uint64
	GasUsed     uint64
	Err         error

	// Address is the created contract address for CREATE frames.
	Address types.Address
}

func (r *ExecutionResult) Succeeded() bool { return r.Err == nil }
func (r *ExecutionResult) Failed() bool    { return r.Err != nil }

func (r *ExecutionResult) Reverted() bool {
	return errors.Is(r.Err, ErrExecutionReverted)
}

// Contract is one call frame handed to the interpreter.
type Contract struct {
	Code        []byte
	Type        CallType
	CodeAddress types.Address
	Address     types.Address
	Origin      types.Address
	Caller      types.Address
	Depth       int
	Value       *big.Int
	Input       []byte
	Static      bool

	// Gas is the caller's gas made available at the call site;
	// RequestedGas is what the call asked to forward. The executor
	// clamps the forwarded amount for nested frames.
	Gas          uint64
	RequestedGas uint64
}

func NewContractCall(
	depth int,
	origin types.Address,
	caller types.Address,
	to types.Address,
	value *big.Int,
	gas uint64,
	code []byte,
	input []byte,
) *Contract {
	return &Contract{
		Type:         Call,
		Caller:       caller,
		Origin:       origin,
		CodeAddress:  to,
		Address:      to,
		Value:        value,
		Gas:          gas,
		RequestedGas: gas,
		Code:         code,
		Input:        input,
		Depth:        depth,
	}
}

func NewContractCreation(
	depth int,
	origin types.Address,
	caller types.Address,
	to types.Address,
	value *big.Int,
	gas uint64,
	code []byte,
) *Contract {
	return &Contract{
		Type:         Create,
		Caller:       caller,
		Origin:       origin,
		CodeAddress:  to,
		Address:      to,
		Value:        value,
		Gas:          gas,
		RequestedGas: gas,
		Code:         code,
		Depth:        depth,
	}
}

// Host is the state and environment surface the executor exposes to the
// interpreter. Every write requested through it lands in the journal and
// is committed or discarded with the requesting frame.
type Host interface {
	AccountExists(addr types.Address) bool
	Empty(addr types.Address) bool

	GetBalance(addr types.Address) *big.Int
	GetNonce(addr types.Address) uint64
	GetCode(addr types.Address) []byte
	GetCodeSize(addr types.Address) int
	GetCodeHash(addr types.Address) types.Hash

	GetStorage(addr types.Address, key types.Hash) types.Hash
	SetStorage(addr types.Address, key types.Hash, value types.Hash) error

	AddRefund(gas uint64)
	SubRefund(gas uint64)
	GetRefund() uint64

	EmitLog(addr types.Address, topics []types.Hash, data []byte)

	Selfdestruct(addr types.Address, beneficiary types.Address)

	GetTxContext() TxContext
	GetBlockHash(number uint64) types.Hash

	// Callx runs a nested CALL/CREATE frame: new journal scope,
	// depth and forwarding rules applied by the executor.
	Callx(c *Contract, host Host) *ExecutionResult

	// AccessList warm-set tracking (Berlin).
	AddressInAccessList(addr types.Address) bool
	SlotInAccessList(addr types.Address, slot types.Hash) bool
	AddAddressToAccessList(addr types.Address)
	AddSlotToAccessList(addr types.Address, slot types.Hash)
}

// Runtime is the opaque interpreter capability. The executor never looks
// inside it; it forwards one frame and consumes the normalized result.
type Runtime interface {
	Run(c *Contract, host Host, config *chain.ForksInTime) *ExecutionResult
	CanRun(c *Contract, host Host, config *chain.ForksInTime) bool
	Name() string
}
