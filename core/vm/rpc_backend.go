package vm

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

// RPCBackend talks JSON-RPC to an interpreter process. The interpreter
// serves "<kind>_run" and reads state back through the StateService.
type RPCBackend struct {
	kind     Kind
	endpoint string // empty for a fixed client

	mu     sync.Mutex
	client *rpc.Client
}

// NewRPCBackend returns a backend dialing endpoint lazily, on first call and
// after every Reset.
func NewRPCBackend(kind Kind, endpoint string) *RPCBackend {
	return &RPCBackend{kind: kind, endpoint: endpoint}
}

// NewRPCBackendWithClient returns a backend using an already connected
// client, typically an in-process one. Reset keeps the client.
func NewRPCBackendWithClient(kind Kind, client *rpc.Client) *RPCBackend {
	return &RPCBackend{kind: kind, client: client}
}

func (b *RPCBackend) Kind() Kind   { return b.kind }
func (b *RPCBackend) Name() string { return b.kind.String() + "-rpc" }

func (b *RPCBackend) method() string { return b.kind.String() + "_run" }

func (b *RPCBackend) conn(ctx context.Context) (*rpc.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		return b.client, nil
	}
	if b.endpoint == "" {
		return nil, fmt.Errorf("%s: no endpoint", b.Name())
	}
	client, err := rpc.DialContext(ctx, b.endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", b.endpoint, err)
	}
	b.client = client
	return client, nil
}

func (b *RPCBackend) Call(ctx context.Context, args *CallArgs) (*Result, error) {
	client, err := b.conn(ctx)
	if err != nil {
		return nil, err
	}
	var res Result
	if err := client.CallContext(ctx, &res, b.method(), args); err != nil {
		return nil, err
	}
	return &res, nil
}

func (b *RPCBackend) Reset() error {
	if b.endpoint == "" {
		return nil
	}
	b.mu.Lock()
	client := b.client
	b.client = nil
	b.mu.Unlock()

	if client != nil {
		log.Info("Resetting interpreter connection", "backend", b.Name(), "endpoint", b.endpoint)
		client.Close()
	}
	return nil
}

// Close releases the connection.
func (b *RPCBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		b.client.Close()
		b.client = nil
	}
}
