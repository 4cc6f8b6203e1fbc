package store

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/kaspay/kaspay/types"
)

// KV is the synchronous key-value surface the host environment provides
// (browser storage shaped: get/set strings under fixed keys).
type KV interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
}

// MemoryKV is an in-process KV, used in tests and ephemeral sessions.
type MemoryKV struct {
	mu   sync.Mutex
	data map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// FileKV persists the key space as one JSON file, written atomically.
type FileKV struct {
	mu   sync.Mutex
	path string
	data map[string]string
}

func NewFileKV(path string) (*FileKV, error) {
	kv := &FileKV{path: path, data: make(map[string]string)}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return kv, nil
	}
	if err != nil {
		return nil, &types.Error{Code: types.ErrPersistence, Message: "reading store file", Err: err}
	}
	if err := json.Unmarshal(raw, &kv.data); err != nil {
		return nil, &types.Error{Code: types.ErrPersistence, Message: "decoding store file", Err: err}
	}
	return kv, nil
}

func (f *FileKV) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *FileKV) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.data[key] = value
	raw, err := json.Marshal(f.data)
	if err != nil {
		return &types.Error{Code: types.ErrPersistence, Message: "encoding store file", Err: err}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return &types.Error{Code: types.ErrPersistence, Message: "writing store file", Err: err}
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return &types.Error{Code: types.ErrPersistence, Message: "replacing store file", Err: err}
	}
	return nil
}
