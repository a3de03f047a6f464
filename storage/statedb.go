package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tolelom/cookiepool/core"
)

const (
	keyExchange   = "exchange"
	keyPoolStates = "pool:states"

	prefixGamer     = "gamer:"
	prefixPrincipal = "principal:"
)

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements core.State on top of a DB with an in-memory write
// buffer and snapshot/rollback. Nothing reaches the DB until Commit.
type StateDB struct {
	db        DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	if s.deleted[key] {
		return nil, core.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	delete(s.deleted, key)
	s.dirty[key] = val
}

func (s *StateDB) del(key string) {
	delete(s.dirty, key)
	s.deleted[key] = true
}

func (s *StateDB) getJSON(key string, v any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

// ---- Exchange ----

func (s *StateDB) GetExchange() (*core.Exchange, error) {
	var ex core.Exchange
	if err := s.getJSON(keyExchange, &ex); err != nil {
		return nil, err
	}
	return &ex, nil
}

func (s *StateDB) SetExchange(ex *core.Exchange) error {
	return s.setJSON(keyExchange, ex)
}

// ---- Pool states ----

// GetPoolStates returns an empty slice before the pool is funded.
func (s *StateDB) GetPoolStates() ([]core.PoolState, error) {
	var states []core.PoolState
	err := s.getJSON(keyPoolStates, &states)
	if errors.Is(err, core.ErrNotFound) {
		return []core.PoolState{}, nil
	}
	if err != nil {
		return nil, err
	}
	return states, nil
}

func (s *StateDB) SetPoolStates(states []core.PoolState) error {
	return s.setJSON(keyPoolStates, states)
}

// ---- Gamers ----

func (s *StateDB) GetGamer(address string) (*core.Gamer, error) {
	var g core.Gamer
	if err := s.getJSON(prefixGamer+address, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *StateDB) SetGamer(g *core.Gamer) error {
	return s.setJSON(prefixGamer+g.Address, g)
}

func (s *StateDB) DeleteGamer(address string) error {
	s.del(prefixGamer + address)
	return nil
}

// CountGamers merges persisted entries with the write buffer.
func (s *StateDB) CountGamers() (int, error) {
	seen := make(map[string]bool)
	it := s.db.NewIterator([]byte(prefixGamer))
	for it.Next() {
		seen[string(it.Key())] = true
	}
	it.Release()
	if err := it.Error(); err != nil {
		return 0, err
	}
	for k := range s.dirty {
		if strings.HasPrefix(k, prefixGamer) {
			seen[k] = true
		}
	}
	for k := range s.deleted {
		delete(seen, k)
	}
	return len(seen), nil
}

// ---- Identity map ----

func (s *StateDB) GetGamerAddress(principal string) (string, error) {
	data, err := s.get(prefixPrincipal + principal)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *StateDB) SetGamerAddress(principal, address string) error {
	s.set(prefixPrincipal+principal, []byte(address))
	return nil
}

func (s *StateDB) DeleteGamerAddress(principal string) error {
	s.del(prefixPrincipal + principal)
	return nil
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	snap := stateSnapshot{
		dirty:   make(map[string][]byte, len(s.dirty)),
		deleted: make(map[string]bool, len(s.deleted)),
	}
	for k, v := range s.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		snap.dirty[k] = cp
	}
	for k, v := range s.deleted {
		snap.deleted[k] = v
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot
// and discards it together with every later one.
func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]

	dirty := make(map[string][]byte, len(snap.dirty))
	for k, v := range snap.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		dirty[k] = cp
	}
	deleted := make(map[string]bool, len(snap.deleted))
	for k, v := range snap.deleted {
		deleted[k] = v
	}

	s.dirty = dirty
	s.deleted = deleted
	s.snapshots = s.snapshots[:id]
	return nil
}

// Commit atomically flushes the write buffer to the underlying DB via a
// batch and then clears it together with all snapshots.
func (s *StateDB) Commit() error {
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}
