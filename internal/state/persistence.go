// Package state persists the open trades of the registry so a restarted bot can
// resume managing them.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ducminhle1904/crypto-futures-bot/internal/registry"
)

const stateVersion = "1"

// Store saves and loads the open trades.
type Store interface {
	Save(ctx context.Context, trades []registry.Trade) error
	Load(ctx context.Context) ([]registry.Trade, error)
	Close() error
}

// SystemState is the persisted document.
type SystemState struct {
	Version     string           `json:"version"`
	LastUpdated time.Time        `json:"last_updated"`
	Trades      []registry.Trade `json:"trades"`
}

func encode(trades []registry.Trade) ([]byte, error) {
	if trades == nil {
		trades = []registry.Trade{}
	}
	return json.MarshalIndent(SystemState{
		Version:     stateVersion,
		LastUpdated: time.Now().UTC(),
		Trades:      trades,
	}, "", "  ")
}

func decode(data []byte) ([]registry.Trade, error) {
	var st SystemState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	if st.Version != stateVersion {
		return nil, fmt.Errorf("unsupported state version %q", st.Version)
	}
	return st.Trades, nil
}

// Options selects and configures a backend.
type Options struct {
	Backend  string // file | redis | none
	Path     string
	RedisURL string
	Key      string
	TTL      time.Duration
}

// Open builds the store named by opts.Backend.
func Open(opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", "file":
		return NewFileStore(opts.Path), nil
	case "redis":
		o, err := redis.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return NewRedisStore(redis.NewClient(o), opts.Key, opts.TTL), nil
	case "none":
		return NopStore{}, nil
	}
	return nil, fmt.Errorf("unknown state backend %q", opts.Backend)
}

// FileStore writes a JSON document, replacing it atomically.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Save(_ context.Context, trades []registry.Trade) error {
	data, err := encode(trades)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Load returns no trades when the file does not exist yet.
func (s *FileStore) Load(_ context.Context) ([]registry.Trade, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	return decode(data)
}

func (s *FileStore) Close() error { return nil }

// KV is the subset of the go-redis client the store needs.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisStore keeps the document under one key with a TTL refreshed on every save.
type RedisStore struct {
	client KV
	key    string
	ttl    time.Duration
}

func NewRedisStore(client KV, key string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, key: key, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, trades []registry.Trade) error {
	data, err := encode(trades)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context) ([]registry.Trade, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	return decode(data)
}

func (s *RedisStore) Close() error { return s.client.Close() }

// NopStore persists nothing.
type NopStore struct{}

func (NopStore) Save(context.Context, []registry.Trade) error   { return nil }
func (NopStore) Load(context.Context) ([]registry.Trade, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }
