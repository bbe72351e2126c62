package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru"
	"github.com/shardnode/txcore/core/types"
	"github.com/shardnode/txcore/tracing"
)

// StateDB is the durable account store. Accounts live in a key-value
// database; changes finished by an Attempt are kept in a dirty layer until
// Commit flushes them and recomputes the state root.
//
// Read methods take the shared side of the lock and may be called from any
// goroutine. An Attempt holds the exclusive side from Begin to Release.
type StateDB struct {
	db ethdb.KeyValueStore

	accountCache *lru.Cache       // common.Address -> *types.Account
	storageCache *fastcache.Cache // storageKey -> value
	codeCache    *lru.Cache       // common.Hash -> []byte

	dirty changeset
	root  common.Hash
	hooks *tracing.Hooks
	dbErr error
	errMu sync.Mutex

	mu  sync.RWMutex
	log log.Logger
}

// New opens the state stored in db.
func New(db ethdb.KeyValueStore, config *Config) (*StateDB, error) {
	if config == nil {
		config = &DefaultConfig
	}
	cfg := config.sanitize()

	accounts, err := lru.New(cfg.AccountCacheSize)
	if err != nil {
		return nil, err
	}
	codes, err := lru.New(cfg.CodeCacheSize)
	if err != nil {
		return nil, err
	}
	s := &StateDB{
		db:           db,
		accountCache: accounts,
		storageCache: fastcache.New(cfg.StorageCache * 1024 * 1024),
		codeCache:    codes,
		dirty:        newChangeset(),
		log:          log.New("module", "state"),
	}
	if blob, err := db.Get(stateRootKey); err == nil {
		s.root = common.BytesToHash(blob)
	}
	return s, nil
}

// SetHooks installs observers for balance and nonce changes.
func (s *StateDB) SetHooks(hooks *tracing.Hooks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = hooks
}

// setError remembers the first database error. Reads may run under the
// shared lock, so the error has its own mutex.
func (s *StateDB) setError(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.dbErr == nil {
		s.dbErr = err
	}
}

// Error returns the first database error seen by the store.
func (s *StateDB) Error() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.dbErr
}

func (s *StateDB) account(addr common.Address) *types.Account {
	if acc, ok := s.dirty.accounts[addr]; ok {
		return acc
	}
	if v, ok := s.accountCache.Get(addr); ok {
		return v.(*types.Account)
	}
	markAccountMiss()
	blob, err := s.db.Get(accountKey(addr))
	if err != nil || len(blob) == 0 {
		return nil
	}
	acc, err := decodeAccount(blob)
	if err != nil {
		s.setError(fmt.Errorf("decode account %x: %w", addr, err))
		return nil
	}
	if acc.CodeHash != types.EmptyCodeHash && acc.CodeHash != (common.Hash{}) {
		acc.Code = s.code(acc.CodeHash)
	}
	s.accountCache.Add(addr, acc)
	return acc
}

func (s *StateDB) code(hash common.Hash) []byte {
	if v, ok := s.codeCache.Get(hash); ok {
		return v.([]byte)
	}
	code, err := s.db.Get(codeKey(hash))
	if err != nil {
		s.setError(fmt.Errorf("missing code %x: %w", hash, err))
		return nil
	}
	s.codeCache.Add(hash, code)
	return code
}

func (s *StateDB) storage(addr common.Address, key string) ([]byte, bool) {
	if v, decided := s.dirty.lookupStorage(addr, key); decided {
		return v, v != nil
	}
	dbKey := storageKey(addr, key)
	if v, ok := s.storageCache.HasGet(nil, dbKey); ok {
		return v, true
	}
	markStorageMiss()
	v, err := s.db.Get(dbKey)
	if err != nil {
		return nil, false
	}
	s.storageCache.Set(dbKey, v)
	return v, true
}

func (s *StateDB) storageRange(addr common.Address, prefix string) map[string][]byte {
	base, err := readStorageRange(s.db, addr, prefix)
	if err != nil {
		s.setError(err)
	}
	return s.dirty.rangeStorage(base, addr, prefix)
}

// merge receives the fee layer of a finished Attempt. The caller holds the
// write lock.
func (s *StateDB) merge(c *changeset) {
	s.dirty.merge(c)
}

func (s *StateDB) GetBalance(addr common.Address) types.Amount {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readBalance(s, addr)
}

func (s *StateDB) GetNonce(addr common.Address) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readNonce(s, addr)
}

func (s *StateDB) Exists(addr common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account(addr) != nil
}

// AccountExists reports whether addr exists in the durable store.
func (s *StateDB) AccountExists(addr common.Address) bool {
	return s.Exists(addr)
}

func (s *StateDB) GetCode(addr common.Address) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readCode(s, addr)
}

func (s *StateDB) GetCodeHash(addr common.Address) common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readCodeHash(s, addr)
}

func (s *StateDB) GetInitData(addr common.Address) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readInitData(s, addr)
}

func (s *StateDB) GetState(addr common.Address, key string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return readState(s, addr, key)
}

func (s *StateDB) FetchStateDataForContract(addr common.Address, prefix string, excludeMeta bool) map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fetchStateData(s, addr, prefix, excludeMeta)
}

func (s *StateDB) GetAddressForContract(addr common.Address, version types.TxVersion) common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return contractAddress(s, addr, version)
}

// GetAccount returns a copy of the account, or nil if it does not exist.
func (s *StateDB) GetAccount(addr common.Address) *types.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if acc := s.account(addr); acc != nil {
		return acc.Copy()
	}
	return nil
}

// Root returns the state root of the last commit.
func (s *StateDB) Root() common.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

// HasPendingChanges reports whether finished attempts are waiting for Commit.
func (s *StateDB) HasPendingChanges() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.dirty.empty()
}

// UpdatedAccounts returns the update buffer: every address changed since the
// last commit.
func (s *StateDB) UpdatedAccounts() []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty.updated.ToSlice()
}

// Commit writes the dirty layer to the database, recomputes the storage roots
// of updated accounts and returns the new state root.
func (s *StateDB) Commit() (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Error(); err != nil {
		return common.Hash{}, err
	}
	if s.dirty.empty() {
		return s.root, nil
	}
	start := time.Now()
	batch := s.db.NewBatch()

	// Storage roots are computed from the merged view before it is written.
	var (
		addrs   = s.dirty.updated.ToSlice()
		written = make(map[common.Address]*types.Account, len(addrs))
	)
	for _, addr := range addrs {
		acc := s.account(addr)
		if acc == nil {
			continue
		}
		cpy := acc.Copy()
		cpy.StorageRoot = storageRoot(s.storageRange(addr, ""))
		blob, err := encodeAccount(cpy)
		if err != nil {
			return common.Hash{}, fmt.Errorf("encode account %x: %w", addr, err)
		}
		if err := batch.Put(accountKey(addr), blob); err != nil {
			return common.Hash{}, err
		}
		if len(cpy.Code) > 0 {
			if err := batch.Put(codeKey(cpy.CodeHash), cpy.Code); err != nil {
				return common.Hash{}, err
			}
		}
		written[addr] = cpy
	}
	if err := s.Error(); err != nil {
		return common.Hash{}, err
	}
	for addr := range s.dirty.reset {
		stale, err := readStorageRange(s.db, addr, "")
		if err != nil {
			return common.Hash{}, err
		}
		for k := range stale {
			if err := batch.Delete(storageKey(addr, k)); err != nil {
				return common.Hash{}, err
			}
		}
	}
	for addr, slots := range s.dirty.storage {
		for k, v := range slots {
			var err error
			if v == nil {
				err = batch.Delete(storageKey(addr, k))
			} else {
				err = batch.Put(storageKey(addr, k), v)
			}
			if err != nil {
				return common.Hash{}, err
			}
		}
	}
	if err := batch.Write(); err != nil {
		return common.Hash{}, fmt.Errorf("write state batch: %w", err)
	}
	root, err := stateRoot(s.db)
	if err != nil {
		return common.Hash{}, err
	}
	if err := s.db.Put(stateRootKey, root.Bytes()); err != nil {
		return common.Hash{}, err
	}

	if len(s.dirty.reset) > 0 {
		s.storageCache.Reset()
	}
	for addr, slots := range s.dirty.storage {
		for k := range slots {
			s.storageCache.Del(storageKey(addr, k))
		}
	}
	for addr, acc := range written {
		s.accountCache.Add(addr, acc)
	}
	s.log.Debug("Committed state", "accounts", len(written), "root", root, "elapsed", common.PrettyDuration(time.Since(start)))

	s.root = root
	s.dirty.clear()
	commitTimer.UpdateSince(start)
	return root, nil
}

// GenesisAccount is one entry of a genesis allocation.
type GenesisAccount struct {
	Balance types.Amount             `json:"balance"`
	Nonce   uint64                   `json:"nonce,omitempty"`
	Code    hexutil.Bytes            `json:"code,omitempty"`
	Storage map[string]hexutil.Bytes `json:"storage,omitempty"`
}

// GenesisAlloc is the initial account set of a store.
type GenesisAlloc map[common.Address]GenesisAccount

var errNotEmpty = errors.New("state is not empty")

// Genesis writes alloc into an empty store and commits it.
func (s *StateDB) Genesis(alloc GenesisAlloc) (common.Hash, error) {
	s.mu.Lock()
	if s.root != (common.Hash{}) || !s.dirty.empty() {
		s.mu.Unlock()
		return common.Hash{}, errNotEmpty
	}
	fee := newOverlay(s, s.hooks)
	for addr, ga := range alloc {
		fee.AddAccountAtomic(addr)
		fee.IncreaseBalance(addr, ga.Balance, tracing.BalanceChangeGenesis)
		if ga.Nonce > 0 {
			fee.SetNonceAtomic(addr, ga.Nonce)
		}
		if len(ga.Code) > 0 {
			if err := fee.SetImmutableAtomic(addr, ga.Code, nil); err != nil {
				s.mu.Unlock()
				return common.Hash{}, err
			}
		}
		if len(ga.Storage) > 0 {
			entries := make(map[string][]byte, len(ga.Storage))
			for k, v := range ga.Storage {
				entries[k] = v
			}
			fee.UpdateStates(addr, entries, nil, false)
		}
	}
	fee.CommitAtomics()
	s.mu.Unlock()

	return s.Commit()
}
