package vm

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shardnode/txcore/core/types"
)

// ErrUnknownSession is returned for state reads with a correlation id that
// is not (or no longer) registered.
var ErrUnknownSession = errors.New("unknown or closed session")

// StateReader is the view of state an interpreter may read while a call is
// in flight.
type StateReader interface {
	GetBalance(addr common.Address) types.Amount
	GetNonce(addr common.Address) uint64
	Exists(addr common.Address) bool
	GetCode(addr common.Address) []byte
	GetCodeHash(addr common.Address) common.Hash
	GetState(addr common.Address, key string) []byte
	FetchStateDataForContract(addr common.Address, prefix string, excludeMeta bool) map[string][]byte
}

// Session binds a correlation id to the state view of one execution. Reads
// after Close fail, so an interpreter that answers late can never observe
// the state of the attempt that follows.
type Session struct {
	id string

	mu     sync.RWMutex
	reader StateReader
	closed bool
}

func (s *Session) ID() string { return s.id }

// View runs fn with the session's reader.
func (s *Session) View(fn func(StateReader) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrUnknownSession
	}
	return fn(s.reader)
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.reader = nil
}

// Sessions keeps a registry of the sessions that interpreters can reference
// through the StateService.
type Sessions struct {
	byID sync.Map // string -> *Session
}

func NewSessions() *Sessions {
	return &Sessions{}
}

// Open registers reader under a fresh, non-empty correlation id.
func (r *Sessions) Open(reader StateReader) *Session {
	s := &Session{
		id:     uuid.NewString(),
		reader: reader,
	}
	r.byID.Store(s.id, s)
	sessionsGauge.Inc(1)
	return s
}

// Close unregisters the session and waits for in-flight reads to finish.
func (r *Sessions) Close(s *Session) {
	if s == nil {
		return
	}
	if _, loaded := r.byID.LoadAndDelete(s.id); loaded {
		sessionsGauge.Dec(1)
	}
	s.close()
}

// Lookup returns the session registered under id.
func (r *Sessions) Lookup(id string) (*Session, bool) {
	if v, ok := r.byID.Load(id); ok {
		return v.(*Session), true
	}
	return nil, false
}
