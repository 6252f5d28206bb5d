package state

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"buildledger/storage"
)

// Manager persists ledger state in a key-value backend and exposes the
// narrow views consumed by the escrow engine, the reputation ledger and the
// staking pool. Records are RLP encoded under prefixed keys; every read
// returns a decoded copy, so callers can mutate results freely.
type Manager struct {
	db storage.Database

	accountsMu sync.Mutex
	locks      lockTable
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) load(key []byte, out interface{}) (bool, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) write(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// lockTable hands out one mutex per key so mutations on distinct entities
// proceed in parallel while same-entity mutations are linearized.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (t *lockTable) lock(key string) func() {
	t.mu.Lock()
	if t.locks == nil {
		t.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := t.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[key] = lock
	}
	t.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

func clampUnix(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}
