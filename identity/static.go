package identity

import (
	"context"
	"fmt"
	"sync"
)

// Static resolves from a fixed address to principal table.
type Static struct {
	mu    sync.RWMutex
	table map[string]string
}

// NewStatic copies table into a new resolver.
func NewStatic(table map[string]string) *Static {
	s := &Static{table: make(map[string]string, len(table))}
	for addr, p := range table {
		s.table[addr] = p
	}
	return s
}

// Set adds or replaces a mapping.
func (s *Static) Set(address, principal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table[address] = principal
}

// Resolve returns the principal for address.
func (s *Static) Resolve(ctx context.Context, address string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.table[address]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAddress, address)
	}
	return p, nil
}
