// Package tokenstore persists the single bearer token of the local user so
// that a session survives process restarts.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Store holds at most one opaque token. Read returns "" with a nil error when
// no token is stored.
type Store interface {
	Save(ctx context.Context, token string) error
	Read(ctx context.Context) (string, error)
	Clear(ctx context.Context) error
}

// FileStore keeps the token in a single file with 0600 permissions.
type FileStore struct {
	path   string
	cipher *Cipher
	mu     sync.Mutex
}

// NewFileStore creates a FileStore at path. cipher may be nil.
func NewFileStore(path string, cipher *Cipher) *FileStore {
	return &FileStore{path: path, cipher: cipher}
}

func (s *FileStore) Save(_ context.Context, token string) error {
	sealed, err := s.cipher.Seal(token, s.path)
	if err != nil {
		return fmt.Errorf("sealing token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	// Write to a sibling file and rename so a crash never leaves half a token.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sealed), 0o600); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("writing token: %w", err)
	}
	return nil
}

func (s *FileStore) Read(_ context.Context) (string, error) {
	s.mu.Lock()
	data, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading token: %w", err)
	}

	stored := string(data)
	if stored == "" {
		return "", nil
	}
	token, err := s.cipher.Open(stored, s.path)
	if err != nil {
		return "", fmt.Errorf("opening token: %w", err)
	}
	return token, nil
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token: %w", err)
	}
	return nil
}

// RedisStore keeps the token under a single key.
type RedisStore struct {
	client *redis.Client
	key    string
	cipher *Cipher
}

// NewRedisStore creates a RedisStore. cipher may be nil.
func NewRedisStore(client *redis.Client, key string, cipher *Cipher) *RedisStore {
	return &RedisStore{client: client, key: key, cipher: cipher}
}

func (s *RedisStore) Save(ctx context.Context, token string) error {
	sealed, err := s.cipher.Seal(token, s.key)
	if err != nil {
		return fmt.Errorf("sealing token: %w", err)
	}
	if err := s.client.Set(ctx, s.key, sealed, 0).Err(); err != nil {
		return fmt.Errorf("writing token: %w", err)
	}
	return nil
}

func (s *RedisStore) Read(ctx context.Context) (string, error) {
	stored, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("reading token: %w", err)
	}
	if stored == "" {
		return "", nil
	}
	token, err := s.cipher.Open(stored, s.key)
	if err != nil {
		return "", fmt.Errorf("opening token: %w", err)
	}
	return token, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("removing token: %w", err)
	}
	return nil
}

// Memory is an in-process Store, used by tests and one-shot commands.
type Memory struct {
	mu    sync.Mutex
	token string
}

func (m *Memory) Save(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *Memory) Read(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}
