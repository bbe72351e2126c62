package state

import (
	"github.com/ethereum/go-ethereum/common"
)

// BatchKey identifies an account, and optionally one of its storage keys,
// to be loaded into the store caches. An empty Key primes only the account.
type BatchKey struct {
	Address common.Address
	Key     string
}

// Prefetch warms the caches for the provided keys so that the execution
// that follows does not hit the database. It is best-effort: unknown
// accounts and keys are ignored.
func (s *StateDB) Prefetch(keys []BatchKey) {
	if len(keys) == 0 {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, k := range keys {
		if s.account(k.Address) == nil {
			continue
		}
		if k.Key != "" {
			s.storage(k.Address, k.Key)
		}
	}
}
