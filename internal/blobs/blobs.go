// Package blobs is the content-addressed store drawings are saved in. A
// blob's hash is the hex SHA-256 of its bytes.
package blobs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrMalformedHash = errors.New("malformed blob hash")
	ErrNotFound      = errors.New("blob not found")
)

type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, hash string) ([]byte, error)
}

func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ValidateHash checks that s is 64 lowercase hex digits.
func ValidateHash(s string) error {
	if len(s) != sha256.Size*2 {
		return fmt.Errorf("%w: %q", ErrMalformedHash, s)
	}
	for _, c := range s {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return fmt.Errorf("%w: %q", ErrMalformedHash, s)
		}
	}
	return nil
}

type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, data []byte) (string, error) {
	h := Hash(data)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[h] = append([]byte(nil), data...)
	return h, nil
}

func (m *Memory) Get(_ context.Context, hash string) ([]byte, error) {
	if err := ValidateHash(hash); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	return append([]byte(nil), b...), nil
}
