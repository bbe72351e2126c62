package vm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// AccountInfo is the answer to state_basic.
type AccountInfo struct {
	Exists     bool           `json:"exists"`
	Balance    *hexutil.Big   `json:"balance"`     // Qa
	BalanceWei *hexutil.Big   `json:"balance_wei"` // Wei
	Nonce      hexutil.Uint64 `json:"nonce"`
	CodeHash   common.Hash    `json:"code_hash"`
}

// StateService answers state reads issued by an interpreter during a call.
// Every method takes the correlation id sent in CallArgs.Context.
type StateService struct {
	sessions *Sessions
}

func NewStateService(sessions *Sessions) *StateService {
	return &StateService{sessions: sessions}
}

func (s *StateService) session(id string) (*Session, error) {
	sess, ok := s.sessions.Lookup(id)
	if !ok {
		return nil, ErrUnknownSession
	}
	return sess, nil
}

// Basic returns balance, nonce and code hash of addr.
func (s *StateService) Basic(session string, addr common.Address) (*AccountInfo, error) {
	sess, err := s.session(session)
	if err != nil {
		return nil, err
	}
	var info AccountInfo
	err = sess.View(func(r StateReader) error {
		bal := r.GetBalance(addr)
		info = AccountInfo{
			Exists:     r.Exists(addr),
			Balance:    (*hexutil.Big)(bal.ToQa().ToBig()),
			BalanceWei: (*hexutil.Big)(bal.ToWei().ToBig()),
			Nonce:      hexutil.Uint64(r.GetNonce(addr)),
			CodeHash:   r.GetCodeHash(addr),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// Storage returns one storage value of addr, or null.
func (s *StateService) Storage(session string, addr common.Address, key string) (hexutil.Bytes, error) {
	sess, err := s.session(session)
	if err != nil {
		return nil, err
	}
	var out hexutil.Bytes
	err = sess.View(func(r StateReader) error {
		out = r.GetState(addr, key)
		return nil
	})
	return out, err
}

// Code returns the executable code of addr, without the EVM marker.
func (s *StateService) Code(session string, addr common.Address) (hexutil.Bytes, error) {
	sess, err := s.session(session)
	if err != nil {
		return nil, err
	}
	var out hexutil.Bytes
	err = sess.View(func(r StateReader) error {
		out = StripEvmPrefix(r.GetCode(addr))
		return nil
	})
	return out, err
}

// Range returns every storage entry of addr under prefix.
func (s *StateService) Range(session string, addr common.Address, prefix string, excludeMeta bool) (map[string]hexutil.Bytes, error) {
	sess, err := s.session(session)
	if err != nil {
		return nil, err
	}
	out := make(map[string]hexutil.Bytes)
	err = sess.View(func(r StateReader) error {
		for k, v := range r.FetchStateDataForContract(addr, prefix, excludeMeta) {
			out[k] = v
		}
		return nil
	})
	return out, err
}

// NewStateServer returns an RPC server exposing the service under the
// "state" namespace.
func NewStateServer(sessions *Sessions) (*rpc.Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName("state", NewStateService(sessions)); err != nil {
		return nil, err
	}
	return srv, nil
}
