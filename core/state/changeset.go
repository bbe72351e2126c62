package state

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shardnode/txcore/core/types"
)

// changeset is a set of staged modifications on top of a parent layer. A nil
// storage value marks a deleted key; reset marks an account whose whole
// parent storage is hidden.
type changeset struct {
	accounts map[common.Address]*types.Account
	storage  map[common.Address]map[string][]byte
	reset    map[common.Address]struct{}
	updated  mapset.Set[common.Address]
}

func newChangeset() changeset {
	return changeset{
		accounts: make(map[common.Address]*types.Account),
		storage:  make(map[common.Address]map[string][]byte),
		reset:    make(map[common.Address]struct{}),
		updated:  mapset.NewThreadUnsafeSet[common.Address](),
	}
}

func (c *changeset) empty() bool {
	return len(c.accounts) == 0 && len(c.storage) == 0 && len(c.reset) == 0 && c.updated.Cardinality() == 0
}

func (c *changeset) clear() {
	*c = newChangeset()
}

// lookupStorage returns the staged value of key. decided is false when the
// parent layer has to be consulted.
func (c *changeset) lookupStorage(addr common.Address, key string) (value []byte, decided bool) {
	if slots, ok := c.storage[addr]; ok {
		if v, ok := slots[key]; ok {
			return v, true
		}
	}
	if _, ok := c.reset[addr]; ok {
		return nil, true
	}
	return nil, false
}

// rangeStorage applies the staged storage of addr on top of base.
func (c *changeset) rangeStorage(base map[string][]byte, addr common.Address, prefix string) map[string][]byte {
	if _, ok := c.reset[addr]; ok {
		base = make(map[string][]byte)
	}
	for k, v := range c.storage[addr] {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if v == nil {
			delete(base, k)
		} else {
			base[k] = v
		}
	}
	return base
}

func (c *changeset) setStorage(addr common.Address, key string, value []byte) {
	slots, ok := c.storage[addr]
	if !ok {
		slots = make(map[string][]byte)
		c.storage[addr] = slots
	}
	slots[key] = value
}

func (c *changeset) resetStorage(addr common.Address) {
	c.reset[addr] = struct{}{}
	delete(c.storage, addr)
}

// merge moves every change of o into c. o must not be used afterwards.
func (c *changeset) merge(o *changeset) {
	for addr := range o.reset {
		c.resetStorage(addr)
	}
	for addr, slots := range o.storage {
		for k, v := range slots {
			c.setStorage(addr, k, v)
		}
	}
	for addr, acc := range o.accounts {
		c.accounts[addr] = acc
		c.updated.Add(addr)
	}
	for _, addr := range o.updated.ToSlice() {
		c.updated.Add(addr)
	}
}
