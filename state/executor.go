package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/attestra-network/attestra-executor/chain"
	"github.com/attestra-network/attestra-executor/crypto"
	"github.com/attestra-network/attestra-executor/state/runtime"
	"github.com/attestra-network/attestra-executor/types"
)

// GetHashByNumber returns the hash function of a block number
type GetHashByNumber = func(i uint64) types.Hash

type GetHashByNumberHelper = func(*types.Header) GetHashByNumber

// Executor drives deterministic batch execution: it sequences the
// transactions of one block over a snapshot of the pre-state and folds
// the per-transaction results into a BlockResult whose roots are the
// attestable commitment of the run.
type Executor struct {
	logger  hclog.Logger
	config  *chain.Params
	state   State
	runtime runtime.Runtime
	metrics *Metrics

	GetHash GetHashByNumberHelper

	PostHook        func(txn *Transition)
	GenesisPostHook func(*Transition) error
}

// NewExecutor creates a new executor over the given backing state. The
// runtime is the opaque interpreter capability; the executor never looks
// inside it.
func NewExecutor(config *chain.Params, s State, rt runtime.Runtime, logger hclog.Logger) *Executor {
	return &Executor{
		logger:  logger.Named("executor"),
		config:  config,
		state:   s,
		runtime: rt,
		metrics: NilMetrics(),
	}
}

// SetMetrics installs prometheus instrumentation; without it the
// executor stays silent.
func (e *Executor) SetMetrics(m *Metrics) {
	e.metrics = m
}

// WriteGenesis materializes the initial allocation and returns the
// genesis state root.
func (e *Executor) WriteGenesis(
	alloc map[types.Address]*chain.GenesisAccount,
	initialStateRoot types.Hash) (types.Hash, error) {
	var (
		snap Snapshot
		err  error
	)

	if initialStateRoot == types.ZeroHash {
		snap = e.state.NewSnapshot()
	} else {
		snap, err = e.state.NewSnapshotAt(initialStateRoot)
	}

	if err != nil {
		return types.Hash{}, err
	}

	txn := NewTxn(snap)

	transition := &Transition{
		logger: e.logger,
		ctx: runtime.TxContext{
			ChainID: e.config.ChainID,
		},
		state:   txn,
		snap:    snap,
		params:  e.config,
		config:  e.config.Forks.At(0),
		runtime: e.runtime,
		metrics: e.metrics,
	}

	for addr, account := range alloc {
		if account.Balance != nil {
			txn.AddBalance(addr, account.Balance)
		}

		if account.Nonce != 0 {
			txn.SetNonce(addr, account.Nonce)
		}

		if len(account.Code) != 0 {
			txn.SetCode(addr, account.Code)
		}

		for key, value := range account.Storage {
			txn.SetState(addr, key, value)
		}
	}

	if e.GenesisPostHook != nil {
		if err := e.GenesisPostHook(transition); err != nil {
			return types.Hash{}, fmt.Errorf("error writing genesis: %w", err)
		}
	}

	_, root, err := snap.Commit(txn.Finalize(false))
	if err != nil {
		return types.Hash{}, err
	}

	return root, nil
}

// BlockResult is the attestable outcome of one executed batch, produced
// exactly once after the last transaction commits.
type BlockResult struct {
	Root         types.Hash
	ReceiptsRoot types.Hash
	LogsBloom    types.Bloom
	TotalGas     uint64
	Receipts     []*types.Receipt
}

// ExecutionAbortedError is a fatal batch failure. Transactions with
// index < Index were applied and remain observable in the overlay; the
// caller decides whether to retry the suffix or discard the batch.
type ExecutionAbortedError struct {
	Index int
	Err   error
}

func (e *ExecutionAbortedError) Error() string {
	return fmt.Sprintf("execution aborted at transaction %d: %v", e.Index, e.Err)
}

func (e *ExecutionAbortedError) Unwrap() error {
	return e.Err
}

// ExecuteBlock runs the whole batch and commits the final state,
// assembling the BlockResult. Ordering is a protocol input; execution is
// strictly sequential.
func (e *Executor) ExecuteBlock(
	parentRoot types.Hash,
	block *types.Block,
	coinbase types.Address,
) (*BlockResult, error) {
	txn, err := e.BeginTxn(parentRoot, block.Header, coinbase)
	if err != nil {
		return nil, err
	}

	done := e.metrics.BlockTimer()

	for i, tx := range block.Transactions {
		// a transaction the remaining block budget cannot fit is
		// excluded before execution
		if tx.Gas > txn.gasPool {
			if e.config.AbortOnBlockGasOverflow {
				return nil, &ExecutionAbortedError{Index: i, Err: ErrBlockLimitReached}
			}

			e.logger.Debug("transaction exceeds remaining block gas, skipped",
				"index", i, "gas", tx.Gas, "remaining", txn.gasPool)

			continue
		}

		if err := txn.Write(tx); err != nil {
			if txn.state.Fault() != nil {
				return nil, &ExecutionAbortedError{Index: i, Err: txn.state.Fault()}
			}

			return nil, fmt.Errorf("transaction %d rejected: %w", i, err)
		}
	}

	if err := txn.ProcessWithdrawals(block.Withdrawals); err != nil {
		return nil, &ExecutionAbortedError{Index: len(block.Transactions), Err: err}
	}

	_, root, err := txn.Commit()
	if err != nil {
		return nil, &ExecutionAbortedError{Index: len(block.Transactions), Err: err}
	}

	result := &BlockResult{
		Root:         root,
		ReceiptsRoot: types.ReceiptsRoot(txn.receipts),
		LogsBloom:    txn.bloom,
		TotalGas:     txn.totalGas,
		Receipts:     txn.receipts,
	}

	done()
	e.metrics.ObserveBlock(result)

	return result, nil
}

// ProcessBlock applies all transactions of a block and returns the open
// transition; the caller commits. Callers that only need the result
// should use ExecuteBlock.
func (e *Executor) ProcessBlock(
	parentRoot types.Hash,
	block *types.Block,
	blockCreator types.Address,
) (*Transition, error) {
	txn, err := e.BeginTxn(parentRoot, block.Header, blockCreator)
	if err != nil {
		return nil, err
	}

	for i, t := range block.Transactions {
		if t.Gas > block.Header.GasLimit {
			continue
		}

		if err = txn.Write(t); err != nil {
			return nil, fmt.Errorf("transaction %d rejected: %w", i, err)
		}
	}

	return txn, nil
}

// State returns the backing state.
func (e *Executor) State() State {
	return e.state
}

// StateAt returns the snapshot at the given root.
func (e *Executor) StateAt(root types.Hash) (Snapshot, error) {
	return e.state.NewSnapshotAt(root)
}

// GetForksInTime returns the active forks at the given block height.
func (e *Executor) GetForksInTime(blockNumber uint64) chain.ForksInTime {
	return e.config.Forks.At(blockNumber)
}

func (e *Executor) BeginTxn(
	parentRoot types.Hash,
	header *types.Header,
	coinbaseReceiver types.Address,
) (*Transition, error) {
	forkConfig := e.config.Forks.At(header.Number)

	snap, err := e.state.NewSnapshotAt(parentRoot)
	if err != nil {
		return nil, err
	}

	newTxn := NewTxn(snap)

	txCtx := runtime.TxContext{
		Coinbase:   coinbaseReceiver,
		Timestamp:  header.Timestamp,
		Number:     header.Number,
		Difficulty: types.BytesToHash(new(big.Int).SetUint64(header.Difficulty).Bytes()),
		BaseFee:    new(big.Int).SetUint64(header.BaseFee),
		GasLimit:   header.GasLimit,
		ChainID:    e.config.ChainID,
	}

	var getHash GetHashByNumber
	if e.GetHash != nil {
		getHash = e.GetHash(header)
	}

	txn := &Transition{
		logger:  e.logger,
		ctx:     txCtx,
		state:   newTxn,
		snap:    snap,
		getHash: getHash,
		params:  e.config,
		config:  forkConfig,
		gasPool: txCtx.GasLimit,

		receipts: []*types.Receipt{},
		totalGas: 0,

		runtime: e.runtime,
		metrics: e.metrics,

		PostHook: e.PostHook,
	}

	return txn, nil
}

// Transition is the per-block execution state: the journaled overlay,
// the gas pool, and the accumulating receipts. It also implements
// runtime.Host, the surface the interpreter calls back into.
type Transition struct {
	logger hclog.Logger

	params  *chain.Params
	config  chain.ForksInTime
	state   *Txn
	snap    Snapshot
	getHash GetHashByNumber
	ctx     runtime.TxContext
	gasPool uint64

	// result
	receipts []*types.Receipt
	totalGas uint64
	bloom    types.Bloom

	runtime runtime.Runtime
	metrics *Metrics

	// per-transaction
	meter      *GasMeter
	accessList *runtime.AccessList
	// staticDepth counts enclosing read-only frames
	staticDepth int

	PostHook func(t *Transition)
}

// NewTransition builds a bare transition over an existing overlay, used
// for simulation and tests.
func NewTransition(params *chain.Params, config chain.ForksInTime, snap Snapshot, radix *Txn) *Transition {
	return &Transition{
		logger:  hclog.NewNullLogger(),
		params:  params,
		config:  config,
		state:   radix,
		snap:    snap,
		gasPool: frameUnlimitedGasPool,
		metrics: NilMetrics(),
	}
}

const frameUnlimitedGasPool = ^uint64(0)

func (t *Transition) TotalGas() uint64 {
	return t.totalGas
}

func (t *Transition) Receipts() []*types.Receipt {
	return t.receipts
}

// LogsBloom is the OR-fold of every applied receipt's bloom.
func (t *Transition) LogsBloom() types.Bloom {
	return t.bloom
}

func (t *Transition) Txn() *Txn {
	return t.state
}

// Write validates and applies one transaction, appending its receipt.
// Senders are recovered upstream; tx.From is trusted here.
func (t *Transition) Write(txn *types.Transaction) error {
	msg := txn.Copy()

	result, err := t.Apply(msg)
	if err != nil {
		t.logger.Error("failed to apply tx", "err", err)

		return err
	}

	t.totalGas += result.GasUsed
	t.metrics.ObserveTx(result)

	receipt := &types.Receipt{
		CumulativeGasUsed: t.totalGas,
		GasUsed:           result.GasUsed,
		TxHash:            txn.Hash(),
		TransactionIndex:  uint64(len(t.receipts)),
	}

	if result.Failed() {
		receipt.SetStatus(types.ReceiptFailed)
		// the state effects of a failed transaction were rolled back;
		// no logs survive
	} else {
		receipt.SetStatus(types.ReceiptSuccess)
		receipt.Logs = t.state.Logs()
		receipt.Output = result.ReturnValue
	}

	if result.Reverted() {
		receipt.Output = result.ReturnValue
	}

	// a contract-creation transaction records the created address even
	// when it failed
	if msg.To == nil {
		receipt.ContractAddress = crypto.CreateAddress(msg.From, txn.Nonce).Ptr()
	}

	receipt.LogsBloom = types.CreateBloom([]*types.Receipt{receipt})
	t.bloom.Or(&receipt.LogsBloom)
	t.receipts = append(t.receipts, receipt)

	return nil
}

// Commit flattens the overlay into the backing snapshot and returns the
// new state root.
func (t *Transition) Commit() (Snapshot, types.Hash, error) {
	if err := t.state.Fault(); err != nil {
		return nil, types.ZeroHash, err
	}

	s2, root, err := t.snap.Commit(t.state.Finalize(t.config.EIP158))
	if err != nil {
		return nil, types.ZeroHash, err
	}

	return s2, root, nil
}

// ProcessWithdrawals credits consensus-layer withdrawals (amounts are in
// gwei) at block finalization.
func (t *Transition) ProcessWithdrawals(withdrawals []*types.Withdrawal) error {
	for _, w := range withdrawals {
		amount := new(big.Int).SetUint64(w.Amount)
		amount.Mul(amount, big.NewInt(1e9))

		t.state.AddBalance(w.Address, amount)
	}

	return t.state.Fault()
}

func (t *Transition) subGasPool(amount uint64) error {
	if t.gasPool < amount {
		return ErrBlockLimitReached
	}

	t.gasPool -= amount

	return nil
}

func (t *Transition) addGasPool(amount uint64) {
	t.gasPool += amount
}

// GasPool returns the remaining block gas budget.
func (t *Transition) GasPool() uint64 {
	return t.gasPool
}

// Apply runs one transaction under a fresh journal scope. Validation
// failures leave no trace; execution failures keep only the nonce
// increment and the gas fee.
func (t *Transition) Apply(msg *types.Transaction) (*runtime.ExecutionResult, error) {
	s := t.state.Checkpoint()

	result, err := t.apply(msg)
	if err != nil {
		if revertErr := t.state.Rollback(s); revertErr != nil {
			return nil, revertErr
		}
	} else {
		if commitErr := t.state.Commit(s); commitErr != nil {
			return nil, commitErr
		}
	}

	// the transaction is resolved; its undo records are dead weight
	t.state.ResetJournal()
	t.state.ResetRefund()

	if fault := t.state.Fault(); fault != nil {
		return nil, fault
	}

	if t.PostHook != nil {
		t.PostHook(t)
	}

	return result, err
}

// ContextPtr returns reference of context
// This method is called only by test
func (t *Transition) ContextPtr() *runtime.TxContext {
	return &t.ctx
}

func (t *Transition) subGasLimitPrice(msg *types.Transaction) error {
	upfront := new(big.Int).Mul(new(big.Int).SetUint64(msg.Gas), msg.GasPrice)

	if err := t.state.SubBalance(msg.From, upfront); err != nil {
		if errors.Is(err, runtime.ErrNotEnoughFunds) {
			return ErrNotEnoughFundsForGas
		}

		return err
	}

	return nil
}

func (t *Transition) nonceCheck(msg *types.Transaction) error {
	nonce := t.state.GetNonce(msg.From)

	if nonce < msg.Nonce {
		return ErrNonceTooHigh
	} else if nonce > msg.Nonce {
		return ErrNonceTooLow
	}

	return nil
}

// errors that can originate in the consensus checks of the apply method
// below; surfacing one rejects the transaction without touching state
var (
	ErrNonceTooLow           = errors.New("nonce too low")
	ErrNonceTooHigh          = errors.New("nonce too high")
	ErrNotEnoughFunds        = errors.New("not enough funds to cover transaction cost")
	ErrNotEnoughFundsForGas  = errors.New("not enough funds to cover gas costs")
	ErrBlockLimitReached     = errors.New("gas limit reached in the pool")
	ErrIntrinsicGasOverflow  = errors.New("overflow in intrinsic gas calculation")
	ErrNotEnoughIntrinsicGas = errors.New("not enough gas supplied for intrinsic gas costs")
	ErrMaxInitCodeSize       = errors.New("max initcode size exceeded")
	ErrGasPriceNotSet        = errors.New("gas price is not set")
	ErrValueNotSet           = errors.New("value is not set")

	// ErrFeeCapTooLow is returned if the transaction gas price is less
	// than the base fee of the block
	ErrFeeCapTooLow = errors.New("gas price less than block base fee")
)

// TransitionApplicationError wraps a validation failure with a
// recoverability flag: recoverable transactions may become valid later
// (nonce gap, temporary underfunding), unrecoverable ones never will.
type TransitionApplicationError struct {
	Err           error
	IsRecoverable bool
}

func (e *TransitionApplicationError) Error() string {
	return e.Err.Error()
}

func (e *TransitionApplicationError) Unwrap() error {
	return e.Err
}

func NewTransitionApplicationError(err error, isRecoverable bool) *TransitionApplicationError {
	return &TransitionApplicationError{
		Err:           err,
		IsRecoverable: isRecoverable,
	}
}

type GasLimitReachedTransitionApplicationError struct {
	TransitionApplicationError
}

func NewGasLimitReachedTransitionApplicationError(err error) *GasLimitReachedTransitionApplicationError {
	return &GasLimitReachedTransitionApplicationError{
		*NewTransitionApplicationError(err, true),
	}
}

func (t *Transition) apply(msg *types.Transaction) (*runtime.ExecutionResult, error) {
	if err := t.preCheckTx(msg); err != nil {
		return nil, err
	}

	// the amount of gas required must be available in the block pool
	if err := t.subGasPool(msg.Gas); err != nil {
		return nil, NewGasLimitReachedTransitionApplicationError(err)
	}

	meter := NewGasMeter(msg.Gas, t.config.RefundQuotient())
	t.meter = meter

	intrinsicGasCost, err := TransactionGasCost(msg, t.config)
	if err != nil {
		return nil, NewTransitionApplicationError(err, false)
	}

	// the purchased gas must cover intrinsic usage
	if err := meter.Charge(intrinsicGasCost); err != nil {
		return nil, NewTransitionApplicationError(ErrNotEnoughIntrinsicGas, false)
	}

	t.ctx.GasPrice = new(big.Int).Set(msg.GasPrice)
	t.ctx.Origin = msg.From

	t.initAccessList(msg)

	value := new(big.Int).Set(msg.Value)

	var result *runtime.ExecutionResult

	if msg.IsContractCreation() {
		result = t.Create2(msg.From, msg.Input, value, meter.Remaining())
	} else {
		// the nonce increment survives an intentional revert: it is
		// journaled outside the call frame's scope
		if err := t.state.IncrNonce(msg.From); err != nil {
			return nil, err
		}

		result = t.Call2(msg.From, *msg.To, msg.Input, value, meter.Remaining())
	}

	// fold the interpreter leftover back into the meter and settle the
	// capped refund
	meter.Refund(t.state.GetRefund())

	gasUsed := msg.Gas - result.GasLeft
	refund := meter.Finalize(gasUsed)

	result.GasUsed = gasUsed - refund
	result.GasLeft = msg.Gas - result.GasUsed

	// unused gas goes back to the sender
	remaining := new(big.Int).Mul(new(big.Int).SetUint64(result.GasLeft), t.ctx.GasPrice)
	t.state.AddBalance(msg.From, remaining)

	t.payFee(result.GasUsed)

	// return leftover gas to the block pool
	t.addGasPool(result.GasLeft)

	return result, nil
}

// preCheckTx enforces the consensus validity rules: nonce continuity,
// sane fee fields, and a sender balance that covers the whole cost. The
// upfront gas purchase is the one write and happens last.
func (t *Transition) preCheckTx(msg *types.Transaction) error {
	if msg.GasPrice == nil {
		return NewTransitionApplicationError(ErrGasPriceNotSet, false)
	}

	if msg.Value == nil {
		return NewTransitionApplicationError(ErrValueNotSet, false)
	}

	// contract-creation transactions with oversized initcode are
	// rejected before execution (EIP-3860)
	if t.config.EIP3860 && msg.IsContractCreation() && uint64(len(msg.Input)) > TxMaxInitCodeSize {
		return NewTransitionApplicationError(ErrMaxInitCodeSize, false)
	}

	if err := t.nonceCheck(msg); err != nil {
		return NewTransitionApplicationError(err, errors.Is(err, ErrNonceTooHigh))
	}

	if t.config.London && t.ctx.BaseFee != nil && msg.GasPrice.Cmp(t.ctx.BaseFee) < 0 {
		return NewTransitionApplicationError(ErrFeeCapTooLow, true)
	}

	if !t.ctx.NonPayable {
		// the balance must cover gas_limit*gas_price + value
		if t.state.GetBalance(msg.From).Cmp(msg.Cost()) < 0 {
			return NewTransitionApplicationError(ErrNotEnoughFunds, true)
		}

		if err := t.subGasLimitPrice(msg); err != nil {
			return NewTransitionApplicationError(err, true)
		}
	}

	return nil
}

// initAccessList seeds the per-transaction warm set (EIP-2929) from the
// protocol-warm addresses plus the transaction's declared access list.
func (t *Transition) initAccessList(msg *types.Transaction) {
	if !t.config.Berlin {
		t.accessList = nil

		return
	}

	init := []types.Address{msg.From, t.ctx.Coinbase}

	if msg.IsContractCreation() {
		init = append(init, crypto.CreateAddress(msg.From, msg.Nonce))
	} else if msg.To != nil {
		init = append(init, *msg.To)
	}

	t.accessList = runtime.NewAccessList(init...)

	for _, tuple := range msg.AccessList {
		t.accessList.AddAddress(tuple.Address)

		for _, key := range tuple.StorageKeys {
			t.accessList.AddSlot(tuple.Address, key)
		}
	}
}

// payFee routes the fee of an executed transaction: once London is
// active the base-fee share is burned (credited to the configured burn
// address, or destroyed when none is set) and only the tip reaches the
// coinbase; before London the coinbase keeps everything.
func (t *Transition) payFee(gasUsed uint64) {
	fee := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), t.ctx.GasPrice)

	if !t.config.London || t.ctx.BaseFee == nil || t.ctx.BaseFee.Sign() == 0 {
		t.state.AddBalance(t.ctx.Coinbase, fee)

		return
	}

	burned := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), t.ctx.BaseFee)
	if burned.Cmp(fee) > 0 {
		burned.Set(fee)
	}

	tip := new(big.Int).Sub(fee, burned)

	if tip.Sign() > 0 {
		t.state.AddBalance(t.ctx.Coinbase, tip)
	}

	if burned.Sign() > 0 && t.params.BurnAddress != types.ZeroAddress {
		t.state.AddBalance(t.params.BurnAddress, burned)
	}
}

// PreCheck statically validates a batch against the block limits without
// executing anything, reporting every offending transaction at once.
func (t *Transition) PreCheck(txs []*types.Transaction) error {
	var result *multierror.Error

	for i, tx := range txs {
		if tx.GasPrice == nil {
			result = multierror.Append(result, fmt.Errorf("transaction %d: %w", i, ErrGasPriceNotSet))

			continue
		}

		if tx.Gas > t.ctx.GasLimit {
			result = multierror.Append(result, fmt.Errorf("transaction %d: %w", i, ErrBlockLimitReached))
		}

		intrinsic, err := TransactionGasCost(tx, t.config)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("transaction %d: %w", i, err))

			continue
		}

		if tx.Gas < intrinsic {
			result = multierror.Append(result, fmt.Errorf("transaction %d: %w", i, ErrNotEnoughIntrinsicGas))
		}
	}

	return result.ErrorOrNil()
}

// SetNonPayable deactivates the check of tx cost against the sender
// balance; used for read-only simulation.
func (t *Transition) SetNonPayable(nonPayable bool) {
	t.ctx.NonPayable = nonPayable
}
