package state

import (
	"math/big"

	"github.com/attestra-network/attestra-executor/chain"
	"github.com/attestra-network/attestra-executor/crypto"
	"github.com/attestra-network/attestra-executor/state/runtime"
	"github.com/attestra-network/attestra-executor/types"
)

// Gas costs of the transaction envelope. Frame-internal costs belong to
// the interpreter; these cover what the executor itself charges.
const (
	TxGas                    uint64 = 21000
	TxGasContractCreation    uint64 = 53000
	TxDataZeroGas            uint64 = 4
	TxDataNonZeroGasFrontier uint64 = 68
	TxDataNonZeroGasEIP2028  uint64 = 16
	TxAccessListAddressGas   uint64 = 2400
	TxAccessListStorageGas   uint64 = 1900
	TxInitCodeWordGas        uint64 = 2

	// TxMaxInitCodeSize caps the initcode of a creation transaction
	// (EIP-3860).
	TxMaxInitCodeSize uint64 = 2 * 24576

	// MaxCodeSize caps deployed contract code (EIP-170).
	MaxCodeSize = 24576

	selfdestructRefundGas uint64 = 24000
	codeDepositGasPerByte uint64 = 200
)

// TransactionGasCost calculates the intrinsic gas of the message: the
// base cost, the calldata cost, and the declared access list cost.
func TransactionGasCost(msg *types.Transaction, config chain.ForksInTime) (uint64, error) {
	cost := uint64(0)

	if msg.IsContractCreation() && config.Homestead {
		cost += TxGasContractCreation
	} else {
		cost += TxGas
	}

	payload := msg.Input
	if len(payload) > 0 {
		zeros := uint64(0)

		for i := 0; i < len(payload); i++ {
			if payload[i] == 0 {
				zeros++
			}
		}

		nonZeros := uint64(len(payload)) - zeros
		nonZeroCost := TxDataNonZeroGasFrontier

		if config.Istanbul {
			nonZeroCost = TxDataNonZeroGasEIP2028
		}

		if (^uint64(0)-cost)/nonZeroCost < nonZeros {
			return 0, ErrIntrinsicGasOverflow
		}

		cost += nonZeros * nonZeroCost

		if (^uint64(0)-cost)/TxDataZeroGas < zeros {
			return 0, ErrIntrinsicGasOverflow
		}

		cost += zeros * TxDataZeroGas
	}

	if config.Berlin && len(msg.AccessList) > 0 {
		cost += uint64(len(msg.AccessList)) * TxAccessListAddressGas
		cost += uint64(msg.AccessList.StorageKeys()) * TxAccessListStorageGas
	}

	if config.EIP3860 && msg.IsContractCreation() {
		words := (uint64(len(payload)) + 31) / 32

		if (^uint64(0)-cost)/TxInitCodeWordGas < words {
			return 0, ErrIntrinsicGasOverflow
		}

		cost += words * TxInitCodeWordGas
	}

	return cost, nil
}

// Call2 runs the top-level frame of a message call.
func (t *Transition) Call2(
	caller types.Address,
	to types.Address,
	input []byte,
	value *big.Int,
	gas uint64,
) *runtime.ExecutionResult {
	c := runtime.NewContractCall(1, t.ctx.Origin, caller, to, value, gas, t.state.GetCode(to), input)

	return t.applyCall(c, runtime.Call, t)
}

// Create2 runs the top-level frame of a contract creation.
func (t *Transition) Create2(
	caller types.Address,
	code []byte,
	value *big.Int,
	gas uint64,
) *runtime.ExecutionResult {
	address := crypto.CreateAddress(caller, t.state.GetNonce(caller))
	contract := runtime.NewContractCreation(1, t.ctx.Origin, caller, address, value, gas, code)

	return t.applyCreate(contract, t)
}

// Callx dispatches a nested frame requested by the interpreter. The
// executor owns the depth limit, the gas forwarding rule, and the
// journal scope of the frame; the interpreter only sees the result.
func (t *Transition) Callx(c *runtime.Contract, host runtime.Host) *runtime.ExecutionResult {
	if c.Type == runtime.Create || c.Type == runtime.Create2 {
		return t.applyCreate(c, host)
	}

	return t.applyCall(c, c.Type, host)
}

func (t *Transition) maxCallDepth() int {
	if t.params == nil || t.params.MaxCallDepth == 0 {
		return chain.DefaultMaxCallDepth
	}

	return t.params.MaxCallDepth
}

// forwardedGas clamps the gas handed to a nested frame: the caller
// always keeps 1/ForwardDenominator of its available gas (EIP-150). The
// top-level frame receives the full purchased budget.
func (t *Transition) forwardedGas(c *runtime.Contract) uint64 {
	if c.Depth <= 1 || !t.config.EIP150 {
		return c.Gas
	}

	denom := t.params.ForwardDenominator
	if denom == 0 {
		denom = chain.DefaultForwardDenominator
	}

	limit := c.Gas - c.Gas/denom
	if c.RequestedGas < limit {
		return c.RequestedGas
	}

	return limit
}

func (t *Transition) isInsideStatic() bool {
	return t.staticDepth > 0
}

func (t *Transition) enterFrame(c *runtime.Contract) {
	if c.Static {
		t.staticDepth++
	}
}

func (t *Transition) exitFrame(c *runtime.Contract) {
	if c.Static {
		t.staticDepth--
	}
}

// Transfer moves value between accounts; both sides are journaled so a
// frame rollback undoes the pair.
func (t *Transition) Transfer(from, to types.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}

	if err := t.state.SubBalance(from, amount); err != nil {
		return runtime.ErrInsufficientBalance
	}

	t.state.AddBalance(to, amount)

	return nil
}

func allGasConsumed(err error) *runtime.ExecutionResult {
	return &runtime.ExecutionResult{
		GasLeft: 0,
		Err:     err,
	}
}

func (t *Transition) applyCall(
	c *runtime.Contract,
	callType runtime.CallType,
	host runtime.Host,
) *runtime.ExecutionResult {
	if c.Depth > t.maxCallDepth() {
		return allGasConsumed(runtime.ErrDepth)
	}

	c.Gas = t.forwardedGas(c)

	scope := t.state.Checkpoint()

	var accessListSnap *runtime.AccessList
	if t.accessList != nil {
		accessListSnap = t.accessList.Copy()
		t.accessList.AddAddress(c.Address)
	}

	t.captureCallStart(c, callType)
	t.enterFrame(c)

	if callType == runtime.Call {
		if err := t.Transfer(c.Caller, c.Address, c.Value); err != nil {
			t.exitFrame(c)

			if rollbackErr := t.state.Rollback(scope); rollbackErr != nil {
				t.state.setFault(rollbackErr)
			}

			if t.accessList != nil {
				t.accessList.RevertTo(accessListSnap)
			}

			return &runtime.ExecutionResult{
				GasLeft: c.Gas,
				Err:     err,
			}
		}
	}

	result := t.run(c, host)

	t.exitFrame(c)

	if result.Failed() {
		if err := t.state.Rollback(scope); err != nil {
			t.state.setFault(err)
		}

		if t.accessList != nil {
			t.accessList.RevertTo(accessListSnap)
		}
	} else {
		if err := t.state.Commit(scope); err != nil {
			t.state.setFault(err)
		}
	}

	t.captureCallEnd(c, result)

	return result
}

func (t *Transition) applyCreate(c *runtime.Contract, host runtime.Host) *runtime.ExecutionResult {
	gasLimit := c.Gas

	if c.Depth > t.maxCallDepth() {
		return allGasConsumed(runtime.ErrDepth)
	}

	if t.config.EIP3860 && uint64(len(c.Code)) > TxMaxInitCodeSize {
		return allGasConsumed(runtime.ErrMaxCodeSizeExceeded)
	}

	// the creator's nonce moves regardless of the frame outcome
	if err := t.state.IncrNonce(c.Caller); err != nil {
		return allGasConsumed(err)
	}

	c.Gas = t.forwardedGas(c)

	// an occupied address is a consensus failure that burns the frame gas
	if t.hasCodeOrNonce(c.Address) {
		return allGasConsumed(runtime.ErrContractAddressCollision)
	}

	scope := t.state.Checkpoint()

	var accessListSnap *runtime.AccessList
	if t.accessList != nil {
		accessListSnap = t.accessList.Copy()
		t.accessList.AddAddress(c.Address)
	}

	t.captureCallStart(c, c.Type)

	t.state.CreateAccount(c.Address)

	if t.config.EIP158 {
		if err := t.state.IncrNonce(c.Address); err != nil {
			return allGasConsumed(err)
		}
	}

	if err := t.Transfer(c.Caller, c.Address, c.Value); err != nil {
		if rollbackErr := t.state.Rollback(scope); rollbackErr != nil {
			t.state.setFault(rollbackErr)
		}

		if t.accessList != nil {
			t.accessList.RevertTo(accessListSnap)
		}

		return &runtime.ExecutionResult{
			GasLeft: gasLimit,
			Err:     err,
		}
	}

	result := t.run(c, host)

	rollback := func() {
		if err := t.state.Rollback(scope); err != nil {
			t.state.setFault(err)
		}

		if t.accessList != nil {
			t.accessList.RevertTo(accessListSnap)
		}
	}

	if result.Failed() {
		rollback()
		t.captureCallEnd(c, result)

		return result
	}

	if t.config.EIP158 && len(result.ReturnValue) > MaxCodeSize {
		rollback()

		result = allGasConsumed(runtime.ErrMaxCodeSizeExceeded)
		t.captureCallEnd(c, result)

		return result
	}

	// deployed code must not begin with 0xEF (EIP-3541)
	if t.config.London && len(result.ReturnValue) > 0 && result.ReturnValue[0] == 0xEF {
		rollback()

		result = allGasConsumed(runtime.ErrInvalidCode)
		t.captureCallEnd(c, result)

		return result
	}

	gasCost := uint64(len(result.ReturnValue)) * codeDepositGasPerByte

	if result.GasLeft < gasCost {
		result.Err = runtime.ErrCodeStoreOutOfGas
		result.ReturnValue = nil

		// after homestead the deposit failure consumes the frame;
		// before it the empty contract survives
		if t.config.Homestead {
			rollback()

			result.GasLeft = 0
			t.captureCallEnd(c, result)

			return result
		}
	} else {
		result.GasLeft -= gasCost
		result.Address = c.Address
		t.state.SetCode(c.Address, result.ReturnValue)
	}

	if err := t.state.Commit(scope); err != nil {
		t.state.setFault(err)
	}

	t.captureCallEnd(c, result)

	return result
}

func (t *Transition) hasCodeOrNonce(addr types.Address) bool {
	if t.state.GetNonce(addr) != 0 {
		return true
	}

	codeHash := t.state.GetCodeHash(addr)

	return codeHash != types.EmptyCodeHash && codeHash != types.ZeroHash
}

// run hands the frame to the interpreter. A frame no runtime accepts is
// a hard failure; this executor never interprets bytecode itself.
func (t *Transition) run(contract *runtime.Contract, host runtime.Host) *runtime.ExecutionResult {
	if fault := t.state.Fault(); fault != nil {
		return allGasConsumed(fault)
	}

	// codeless frames (plain transfers, empty initcode) complete
	// without an interpreter
	if len(contract.Code) == 0 {
		return &runtime.ExecutionResult{
			GasLeft: contract.Gas,
		}
	}

	if t.runtime == nil || !t.runtime.CanRun(contract, host, &t.config) {
		return allGasConsumed(runtime.ErrRuntimeNotFound)
	}

	return t.runtime.Run(contract, host, &t.config)
}

func (t *Transition) captureCallStart(c *runtime.Contract, callType runtime.CallType) {
	t.logger.Trace("frame start",
		"type", callType.String(),
		"depth", c.Depth,
		"from", c.Caller.String(),
		"to", c.Address.String(),
		"gas", c.Gas,
	)
}

func (t *Transition) captureCallEnd(c *runtime.Contract, result *runtime.ExecutionResult) {
	t.logger.Trace("frame end",
		"depth", c.Depth,
		"gasLeft", result.GasLeft,
		"err", result.Err,
	)
}

// runtime.Host implementation. Every method funnels into the journaled
// overlay so interpreter-requested writes revert with their frame.

func (t *Transition) AccountExists(addr types.Address) bool {
	return t.state.Exist(addr)
}

func (t *Transition) Empty(addr types.Address) bool {
	return t.state.Empty(addr)
}

func (t *Transition) GetBalance(addr types.Address) *big.Int {
	return t.state.GetBalance(addr)
}

func (t *Transition) GetNonce(addr types.Address) uint64 {
	return t.state.GetNonce(addr)
}

func (t *Transition) GetCode(addr types.Address) []byte {
	return t.state.GetCode(addr)
}

func (t *Transition) GetCodeSize(addr types.Address) int {
	return t.state.GetCodeSize(addr)
}

func (t *Transition) GetCodeHash(addr types.Address) types.Hash {
	return t.state.GetCodeHash(addr)
}

func (t *Transition) GetStorage(addr types.Address, key types.Hash) types.Hash {
	return t.state.GetState(addr, key)
}

// SetStorage rejects writes issued inside a read-only frame; the
// interpreter surfaces the error as a frame failure.
func (t *Transition) SetStorage(addr types.Address, key types.Hash, value types.Hash) error {
	if t.isInsideStatic() {
		return runtime.ErrStaticCallViolation
	}

	t.state.SetState(addr, key, value)

	return nil
}

func (t *Transition) AddRefund(gas uint64) {
	t.state.AddRefund(gas)
}

func (t *Transition) SubRefund(gas uint64) {
	t.state.SubRefund(gas)
}

func (t *Transition) GetRefund() uint64 {
	return t.state.GetRefund()
}

func (t *Transition) EmitLog(addr types.Address, topics []types.Hash, data []byte) {
	if t.isInsideStatic() {
		return
	}

	t.state.EmitLog(addr, topics, data)
}

func (t *Transition) Selfdestruct(addr types.Address, beneficiary types.Address) {
	if t.isInsideStatic() {
		return
	}

	if !t.config.EIP3529 && !t.state.HasSuicided(addr) {
		t.state.AddRefund(selfdestructRefundGas)
	}

	t.state.AddBalance(beneficiary, t.state.GetBalance(addr))
	t.state.Suicide(addr)
}

func (t *Transition) GetTxContext() runtime.TxContext {
	return t.ctx
}

func (t *Transition) GetBlockHash(number uint64) types.Hash {
	if t.getHash == nil {
		return types.ZeroHash
	}

	return t.getHash(number)
}

func (t *Transition) AddressInAccessList(addr types.Address) bool {
	if t.accessList == nil {
		return true
	}

	return t.accessList.ContainsAddress(addr)
}

func (t *Transition) SlotInAccessList(addr types.Address, slot types.Hash) bool {
	if t.accessList == nil {
		return true
	}

	return t.accessList.ContainsSlot(addr, slot)
}

func (t *Transition) AddAddressToAccessList(addr types.Address) {
	if t.accessList != nil {
		t.accessList.AddAddress(addr)
	}
}

func (t *Transition) AddSlotToAccessList(addr types.Address, slot types.Hash) {
	if t.accessList != nil {
		t.accessList.AddSlot(addr, slot)
	}
}
