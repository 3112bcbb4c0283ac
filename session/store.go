package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"vkads-report/config"
)

// ErrNoState is returned by Load when nothing has been saved yet
var ErrNoState = errors.New("no saved session state")

// Store persists State so a login survives process restarts
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, s *State) error
	Close() error
}

// Open returns a Redis store when an address is configured, a file store
// otherwise
func Open(cfg config.SessionConfig) (Store, error) {
	if cfg.Redis.Addr != "" {
		return NewRedisStore(cfg.Redis), nil
	}
	if cfg.File == "" {
		return nil, errors.New("session file is required")
	}
	return &FileStore{Path: cfg.File}, nil
}

// FileStore keeps the state in a JSON file
type FileStore struct {
	Path string
}

func (f *FileStore) Load(_ context.Context) (*State, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, err
	}
	return decode(data, f.Path)
}

// Save writes atomically so a crash never leaves a truncated state file
func (f *FileStore) Save(_ context.Context, s *State) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(f.Path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, f.Path)
}

func (f *FileStore) Close() error { return nil }

// RedisStore keeps the state under one key, for runners sharing a login
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore creates a store backed by Redis
func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	key := cfg.Key
	if key == "" {
		key = "vkads:storage_state"
	}
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		key: key,
	}
}

func (r *RedisStore) Load(ctx context.Context) (*State, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return decode(data, r.key)
}

func (r *RedisStore) Save(ctx context.Context, s *State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

func (r *RedisStore) Close() error { return r.client.Close() }

func decode(data []byte, source string) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session state %s: %w", source, err)
	}
	if s.Empty() {
		return nil, ErrNoState
	}
	return &s, nil
}
