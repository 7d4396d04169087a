package tokenstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/edusync/edusync/internal/config"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Read(ctx)
	if err != nil {
		t.Fatalf("Read on empty store: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}

	if err := s.Save(ctx, "tok-1"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got, _ := s.Read(ctx); got != "tok-1" {
		t.Fatalf("expected tok-1, got %q", got)
	}

	// A second save replaces the first; there is only one slot.
	if err := s.Save(ctx, "tok-2"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got, _ := s.Read(ctx); got != "tok-2" {
		t.Fatalf("expected tok-2, got %q", got)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if got, _ := s.Read(ctx); got != "" {
		t.Fatalf("expected empty token after clear, got %q", got)
	}

	// Clearing twice is fine.
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token")
	exerciseStore(t, NewFileStore(path, nil))
}

func TestFileStore_Encrypted(t *testing.T) {
	c, err := NewCipher(testKey)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "token")
	s := NewFileStore(path, c)
	exerciseStore(t, s)

	if err := s.Save(context.Background(), "secret-token"); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "secret-token") {
		t.Error("token stored in plaintext despite encryption key")
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	ctx := context.Background()

	if err := NewFileStore(path, nil).Save(ctx, "persisted"); err != nil {
		t.Fatal(err)
	}
	got, err := NewFileStore(path, nil).Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != "persisted" {
		t.Errorf("expected persisted token, got %q", got)
	}
}

func TestFileStore_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	if err := NewFileStore(path, nil).Save(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected 0600 permissions, got %o", perm)
	}
}

func TestFileStore_WrongKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	c1, _ := NewCipher(testKey)
	c2, _ := NewCipher(strings.Repeat("ff", 32))

	if err := NewFileStore(path, c1).Save(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path, c2).Read(context.Background()); err == nil {
		t.Error("expected error reading with a different key")
	}
}

func TestFileStore_KeyAddedAfterSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	c, _ := NewCipher(testKey)

	if err := NewFileStore(path, nil).Save(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path, c).Read(context.Background()); !errors.Is(err, ErrPlainToken) {
		t.Errorf("expected ErrPlainToken, got %v", err)
	}
}

func TestFileStore_MovedFileDoesNotOpen(t *testing.T) {
	dir := t.TempDir()
	c, _ := NewCipher(testKey)
	src, dst := filepath.Join(dir, "token"), filepath.Join(dir, "copy")

	if err := NewFileStore(src, c).Save(context.Background(), "tok"); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(src, dst); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(dst, c).Read(context.Background()); err == nil {
		t.Error("expected a token sealed for another path to be rejected")
	}
}

func TestFileStore_KeepsTokenVerbatim(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"padded", " padded "},
		{"trailing newline", "tok\n"},
		{"whitespace only", "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range []string{"", testKey} {
				c, _ := NewCipher(key)
				s := NewFileStore(filepath.Join(t.TempDir(), "token"), c)
				if err := s.Save(context.Background(), tt.token); err != nil {
					t.Fatal(err)
				}
				got, err := s.Read(context.Background())
				if err != nil {
					t.Fatal(err)
				}
				if got != tt.token {
					t.Errorf("encrypted=%v: got %q, want %q", key != "", got, tt.token)
				}
			}
		})
	}
}

func TestMemory(t *testing.T) {
	exerciseStore(t, &Memory{})
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("EDUSYNC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("EDUSYNC_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	key := "edusync:test:" + t.Name()
	t.Cleanup(func() { client.Del(context.Background(), key) })

	exerciseStore(t, NewRedisStore(client, key, nil))
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")

	s, closeFn, err := Open(config.TokenStoreConfig{Driver: "file", Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer closeFn()
	if _, ok := s.(*FileStore); !ok {
		t.Errorf("expected *FileStore, got %T", s)
	}

	if _, _, err := Open(config.TokenStoreConfig{Driver: "cookie"}); err == nil {
		t.Error("expected error for unknown driver")
	}
	if _, _, err := Open(config.TokenStoreConfig{Driver: "file", Path: path, EncryptionKey: "abc"}); err == nil {
		t.Error("expected error for bad encryption key")
	}
}
