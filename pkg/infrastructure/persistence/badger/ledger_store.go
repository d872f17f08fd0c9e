package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/vsinha/fruitalloc/pkg/domain/repositories"
)

// envelopeKey is the badger key holding the serialized ledger
var envelopeKey = []byte("ledger:envelope")

// LedgerStore persists the ledger envelope in an embedded badger database
type LedgerStore struct {
	db     *badger.DB
	logger zerolog.Logger
}

// Open opens (or creates) a badger database at path. An empty path opens an
// in-memory database.
func Open(path string, logger zerolog.Logger) (*LedgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	logger.Info().Str("path", path).Bool("in_memory", path == "").Msg("badger ledger store opened")
	return &LedgerStore{db: db, logger: logger}, nil
}

// Verify interface compliance
var _ repositories.LedgerStore = (*LedgerStore)(nil)

// Save writes the envelope in a single badger transaction
func (s *LedgerStore) Save(ctx context.Context, envelope *repositories.LedgerEnvelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode ledger envelope: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(envelopeKey, data)
	})
}

// Load reads the envelope, returning nil when the database holds none
func (s *LedgerStore) Load(ctx context.Context) (*repositories.LedgerEnvelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(envelopeKey)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger envelope: %w", err)
	}

	var envelope repositories.LedgerEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode ledger envelope: %w", err)
	}
	return &envelope, nil
}

// Close releases the database
func (s *LedgerStore) Close() error {
	return s.db.Close()
}
