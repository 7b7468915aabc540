package runtime

import (
	"github.com/attestra-network/attestra-executor/types"
)

// precompileWarmSet lists the protocol precompiles, warm from the start
// of every transaction (EIP-2929).
var precompileWarmSet = func() []types.Address {
	addrs := make([]types.Address, 0, 9)
	for i := byte(1); i <= 9; i++ {
		addrs = append(addrs, types.BytesToAddress([]byte{i}))
	}

	return addrs
}()

// AccessList is the per-transaction warm set of addresses and storage
// slots. Frames snapshot it with Copy and restore it with RevertTo, so
// warm-ups made inside a reverted frame are discarded with the frame.
type AccessList struct {
	addresses map[types.Address]struct{}
	slots     map[types.Address]map[types.Hash]struct{}
}

// NewAccessList seeds the warm set with the given addresses plus the
// precompiles.
func NewAccessList(init ...types.Address) *AccessList {
	al := &AccessList{
		addresses: make(map[types.Address]struct{}, len(init)+len(precompileWarmSet)),
		slots:     make(map[types.Address]map[types.Hash]struct{}),
	}

	for _, addr := range init {
		al.addresses[addr] = struct{}{}
	}

	for _, addr := range precompileWarmSet {
		al.addresses[addr] = struct{}{}
	}

	return al
}

func (al *AccessList) Copy() *AccessList {
	cp := &AccessList{
		addresses: make(map[types.Address]struct{}, len(al.addresses)),
		slots:     make(map[types.Address]map[types.Hash]struct{}, len(al.slots)),
	}

	for addr := range al.addresses {
		cp.addresses[addr] = struct{}{}
	}

	for addr, slots := range al.slots {
		entry := make(map[types.Hash]struct{}, len(slots))
		for slot := range slots {
			entry[slot] = struct{}{}
		}

		cp.slots[addr] = entry
	}

	return cp
}

// RevertTo swaps the content back to a snapshot taken with Copy. The
// AccessList value itself stays stable, so frames holding a reference
// observe the restored state.
func (al *AccessList) RevertTo(snapshot *AccessList) {
	al.addresses = snapshot.addresses
	al.slots = snapshot.slots
}

func (al *AccessList) ContainsAddress(addr types.Address) bool {
	_, ok := al.addresses[addr]

	return ok
}

// AddAddress warms an address, reporting whether it was cold before.
func (al *AccessList) AddAddress(addr types.Address) bool {
	if al.ContainsAddress(addr) {
		return false
	}

	al.addresses[addr] = struct{}{}

	return true
}

func (al *AccessList) ContainsSlot(addr types.Address, slot types.Hash) bool {
	slots, ok := al.slots[addr]
	if !ok {
		return false
	}

	_, ok = slots[slot]

	return ok
}

// AddSlot warms an (address, slot) pair, reporting separately whether
// the address and the slot were cold before.
func (al *AccessList) AddSlot(addr types.Address, slot types.Hash) (addrAdded, slotAdded bool) {
	addrAdded = al.AddAddress(addr)

	slots, ok := al.slots[addr]
	if !ok {
		slots = make(map[types.Hash]struct{})
		al.slots[addr] = slots
	}

	if _, exists := slots[slot]; exists {
		return addrAdded, false
	}

	slots[slot] = struct{}{}

	return addrAdded, true
}
