package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vsinha/fruitalloc/pkg/domain/repositories"
)

// DefaultKey is the redis key used when none is configured
const DefaultKey = "fruitalloc:ledger"

// LedgerStore persists the ledger envelope under a single redis key
type LedgerStore struct {
	client *goredis.Client
	key    string
	logger zerolog.Logger
}

// Connect parses a redis URL, checks the connection and returns a store
// writing under key
func Connect(ctx context.Context, redisURL, key string, logger zerolog.Logger) (*LedgerStore, error) {
	opt, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opt.MaxRetries = 3

	client := goredis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info().Str("addr", opt.Addr).Str("key", key).Msg("redis ledger store connected")
	return NewLedgerStore(client, key, logger), nil
}

// NewLedgerStore wraps an existing client
func NewLedgerStore(client *goredis.Client, key string, logger zerolog.Logger) *LedgerStore {
	if key == "" {
		key = DefaultKey
	}
	return &LedgerStore{client: client, key: key, logger: logger}
}

// Verify interface compliance
var _ repositories.LedgerStore = (*LedgerStore)(nil)

// Save writes the envelope without expiry
func (s *LedgerStore) Save(ctx context.Context, envelope *repositories.LedgerEnvelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode ledger envelope: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("write %s: %w", s.key, err)
	}
	return nil
}

// Load reads the envelope, returning nil when the key does not exist
func (s *LedgerStore) Load(ctx context.Context) (*repositories.LedgerEnvelope, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.key, err)
	}

	var envelope repositories.LedgerEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode ledger envelope: %w", err)
	}
	return &envelope, nil
}

// Close closes the underlying client
func (s *LedgerStore) Close() error {
	return s.client.Close()
}
