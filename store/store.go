// Package store persists the entitlement record and fans change events out
// to subscribers, so UI consumers react to one notification channel instead
// of polling storage on their own timers.
package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kaspay/kaspay/logger"
	"github.com/kaspay/kaspay/types"
)

// DefaultKey is the fixed storage key holding the JSON-encoded entitlement.
const DefaultKey = "kaspay.entitlement"

// Listener receives the entitlement after every committed write.
type Listener func(types.Entitlement)

// EntitlementStore is the single write path for the entitlement record.
// Every write is a compare-and-swap against the version the writer read.
type EntitlementStore struct {
	kv  KV
	key string
	log logger.Logger

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int
}

func New(kv KV, log logger.Logger) *EntitlementStore {
	log = logger.OrNoop(log)
	return &EntitlementStore{
		kv:        kv,
		key:       DefaultKey,
		log:       log,
		listeners: make(map[int]Listener),
	}
}

// Load reads the current record. A missing key yields the zero, inactive
// record at version 0.
func (s *EntitlementStore) Load() (types.Entitlement, error) {
	raw, ok, err := s.kv.Get(s.key)
	if err != nil {
		return types.Entitlement{}, &types.Error{
			Code:    types.ErrPersistence,
			Message: "reading entitlement",
			Err:     err,
		}
	}
	if !ok || raw == "" {
		return types.Entitlement{}, nil
	}

	var ent types.Entitlement
	if err := json.Unmarshal([]byte(raw), &ent); err != nil {
		return types.Entitlement{}, &types.Error{
			Code:    types.ErrPersistence,
			Message: "decoding entitlement",
			Err:     err,
		}
	}
	return ent, nil
}

// Save writes ent if the stored version still equals expectedVersion,
// bumping the version by one. ExpiresAt may only grow, except for the
// explicit reset to zero performed on expiry.
func (s *EntitlementStore) Save(ent types.Entitlement, expectedVersion int64) (types.Entitlement, error) {
	s.mu.Lock()

	current, err := s.Load()
	if err != nil {
		s.mu.Unlock()
		return types.Entitlement{}, err
	}
	if current.Version != expectedVersion {
		s.mu.Unlock()
		return types.Entitlement{}, &types.Error{
			Code:    types.ErrVersionConflict,
			Message: fmt.Sprintf("entitlement version moved from %d to %d", expectedVersion, current.Version),
		}
	}
	if ent.ExpiresAt != 0 && ent.ExpiresAt < current.ExpiresAt {
		s.mu.Unlock()
		return types.Entitlement{}, &types.Error{
			Code:    types.ErrPersistence,
			Message: fmt.Sprintf("expiresAt may not shrink (%d -> %d)", current.ExpiresAt, ent.ExpiresAt),
		}
	}

	ent.Version = expectedVersion + 1
	raw, err := json.Marshal(ent)
	if err != nil {
		s.mu.Unlock()
		return types.Entitlement{}, &types.Error{
			Code:    types.ErrPersistence,
			Message: "encoding entitlement",
			Err:     err,
		}
	}
	if err := s.kv.Set(s.key, string(raw)); err != nil {
		s.mu.Unlock()
		return types.Entitlement{}, &types.Error{
			Code:    types.ErrPersistence,
			Message: "writing entitlement",
			Err:     err,
		}
	}

	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	s.log.Debug("entitlement saved", map[string]any{
		"version":   ent.Version,
		"isActive":  ent.IsActive,
		"expiresAt": ent.ExpiresAt,
	})
	for _, l := range listeners {
		l(ent)
	}
	return ent, nil
}

// Update loads the record, applies mutate, and saves with the loaded
// version. Callers that need the single write path (orchestrator commit,
// expiry flip) go through here.
func (s *EntitlementStore) Update(mutate func(*types.Entitlement) error) (types.Entitlement, error) {
	current, err := s.Load()
	if err != nil {
		return types.Entitlement{}, err
	}
	version := current.Version
	if err := mutate(&current); err != nil {
		return types.Entitlement{}, err
	}
	return s.Save(current, version)
}

// Expire resets the record to the inactive shape. It is idempotent:
// changed reports whether this call performed the flip, so callers can
// raise the expiry notification exactly once.
func (s *EntitlementStore) Expire() (ent types.Entitlement, changed bool, err error) {
	current, err := s.Load()
	if err != nil {
		return types.Entitlement{}, false, err
	}
	if !current.IsActive && current.ExpiresAt == 0 {
		return current, false, nil
	}

	version := current.Version
	current.Expire()
	saved, err := s.Save(current, version)
	if err != nil {
		return types.Entitlement{}, false, err
	}
	return saved, true, nil
}

// Subscribe registers a change listener and returns its remover.
func (s *EntitlementStore) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}
