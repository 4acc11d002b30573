package wallet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Hint is the only wallet state that survives a restart.  It is read once
// by AutoReconnect and written on connect and disconnect.
type Hint struct {
	ProviderID    string `yaml:"preferred_wallet"`
	AutoReconnect bool   `yaml:"should_auto_reconnect"`
}

type HintStore interface {
	Load(ctx context.Context) (Hint, error)
	Save(ctx context.Context, h Hint) error
}

// MemoryHintStore keeps the hint in process.
type MemoryHintStore struct {
	mu sync.Mutex
	h  Hint
}

func NewMemoryHintStore(h Hint) *MemoryHintStore { return &MemoryHintStore{h: h} }

func (m *MemoryHintStore) Load(context.Context) (Hint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.h, nil
}

func (m *MemoryHintStore) Save(_ context.Context, h Hint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.h = h
	return nil
}

// FileHintStore persists the hint as a small yaml document.  A missing file
// is an empty hint.
type FileHintStore struct {
	path string
}

func NewFileHintStore(path string) *FileHintStore { return &FileHintStore{path: path} }

func (f *FileHintStore) Load(context.Context) (Hint, error) {
	var h Hint
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return h, nil
	}
	if err != nil {
		return h, fmt.Errorf("read wallet hint: %w", err)
	}
	if err := yaml.Unmarshal(b, &h); err != nil {
		return Hint{}, fmt.Errorf("parse wallet hint %s: %w", f.path, err)
	}
	return h, nil
}

func (f *FileHintStore) Save(_ context.Context, h Hint) error {
	b, err := yaml.Marshal(h)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create hint dir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write wallet hint: %w", err)
	}
	return os.Rename(tmp, f.path)
}

// RedisHintStore keeps the hint in a redis hash so several CLI hosts can
// share it.
type RedisHintStore struct {
	rdb *redis.Client
	key string
}

func NewRedisHintStore(rdb *redis.Client, key string) *RedisHintStore {
	return &RedisHintStore{rdb: rdb, key: key}
}

func (r *RedisHintStore) Load(ctx context.Context) (Hint, error) {
	vals, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil {
		return Hint{}, fmt.Errorf("load wallet hint: %w", err)
	}
	auto, _ := strconv.ParseBool(vals["should_auto_reconnect"])
	return Hint{ProviderID: vals["preferred_wallet"], AutoReconnect: auto}, nil
}

func (r *RedisHintStore) Save(ctx context.Context, h Hint) error {
	return r.rdb.HSet(ctx, r.key,
		"preferred_wallet", h.ProviderID,
		"should_auto_reconnect", strconv.FormatBool(h.AutoReconnect),
	).Err()
}
