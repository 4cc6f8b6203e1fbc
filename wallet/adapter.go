// Package wallet normalizes chain-specific browser wallet extensions into
// one connect/balance/send surface.
package wallet

import (
	"context"
	"math/big"
	"sync"

	"github.com/kaspay/kaspay/types"
)

// Adapter is the uniform capability surface over an injected wallet.
type Adapter interface {
	Method() types.Method
	Connect(ctx context.Context) (address string, err error)
	Balance(ctx context.Context) (*big.Int, error)

	// SendPayment submits a value transfer and returns the wallet's raw,
	// unnormalized response. Callers must pass it through txref.Normalize.
	SendPayment(ctx context.Context, recipient string, amount *big.Int) (any, error)
}

// NetworkDetector is implemented by adapters whose chain has more than one
// network. The Kaspa adapter has a single network and does not implement it.
type NetworkDetector interface {
	DetectNetwork(ctx context.Context) (types.Network, error)
}

// SessionObserver receives every wallet session change, e.g. for a
// cross-feature wallet-status display.
type SessionObserver func(types.WalletSession)

// Sessions tracks the live wallet session per method and notifies
// observers on every change. Adapters own the writes.
type Sessions struct {
	mu        sync.Mutex
	byMethod  map[types.Method]types.WalletSession
	observers map[int]SessionObserver
	nextID    int
}

func NewSessions() *Sessions {
	return &Sessions{
		byMethod:  make(map[types.Method]types.WalletSession),
		observers: make(map[int]SessionObserver),
	}
}

// Get returns the current session for a method, if any.
func (s *Sessions) Get(m types.Method) (types.WalletSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byMethod[m]
	return sess, ok
}

// Observe registers an observer and returns its remover.
func (s *Sessions) Observe(fn SessionObserver) (unobserve func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

func (s *Sessions) put(sess types.WalletSession) {
	s.mu.Lock()
	s.byMethod[sess.Method] = sess
	observers := make([]SessionObserver, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(sess)
	}
}

// Disconnect clears a method's session, e.g. when the provider reports an
// empty account list.
func (s *Sessions) Disconnect(m types.Method) {
	s.put(types.WalletSession{Method: m})
}
