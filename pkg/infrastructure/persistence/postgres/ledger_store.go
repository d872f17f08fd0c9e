package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vsinha/fruitalloc/pkg/domain/repositories"
)

// DefaultLedgerName identifies the ledger row when none is configured
const DefaultLedgerName = "default"

// LedgerEnvelopeModel is the table row holding one serialized ledger
type LedgerEnvelopeModel struct {
	Name          string `gorm:"primaryKey;size:64"`
	SchemaVersion string `gorm:"size:32;not null"`
	LastUpdated   time.Time
	Records       []byte `gorm:"type:jsonb;not null"`
	UpdatedAt     time.Time
}

// TableName sets the table name
func (LedgerEnvelopeModel) TableName() string {
	return "ledger_envelopes"
}

// LedgerStore persists the ledger envelope in PostgreSQL through gorm
type LedgerStore struct {
	db     *gorm.DB
	name   string
	logger zerolog.Logger
}

// Connect opens a PostgreSQL connection and migrates the envelope table
func Connect(dsn, name string, logger zerolog.Logger) (*LedgerStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewLedgerStore(db, name, logger)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("ledger", store.name).Msg("postgres ledger store connected")
	return store, nil
}

// NewLedgerStore wraps an open gorm connection and migrates the envelope table
func NewLedgerStore(db *gorm.DB, name string, logger zerolog.Logger) (*LedgerStore, error) {
	if name == "" {
		name = DefaultLedgerName
	}
	if err := db.AutoMigrate(&LedgerEnvelopeModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger table: %w", err)
	}
	return &LedgerStore{db: db, name: name, logger: logger}, nil
}

// Verify interface compliance
var _ repositories.LedgerStore = (*LedgerStore)(nil)

// Save upserts the envelope row
func (s *LedgerStore) Save(ctx context.Context, envelope *repositories.LedgerEnvelope) error {
	records, err := json.Marshal(envelope.Records)
	if err != nil {
		return fmt.Errorf("encode ledger records: %w", err)
	}

	row := LedgerEnvelopeModel{
		Name:          s.name,
		SchemaVersion: envelope.SchemaVersion,
		LastUpdated:   envelope.LastUpdated,
		Records:       records,
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"schema_version", "last_updated", "records", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert ledger %s: %w", s.name, err)
	}
	return nil
}

// Load reads the envelope row, returning nil when it does not exist
func (s *LedgerStore) Load(ctx context.Context) (*repositories.LedgerEnvelope, error) {
	var row LedgerEnvelopeModel
	err := s.db.WithContext(ctx).Where("name = ?", s.name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", s.name, err)
	}

	envelope := &repositories.LedgerEnvelope{
		SchemaVersion: row.SchemaVersion,
		LastUpdated:   row.LastUpdated.UTC(),
	}
	if err := json.Unmarshal(row.Records, &envelope.Records); err != nil {
		return nil, fmt.Errorf("decode ledger records: %w", err)
	}
	return envelope, nil
}

// Close closes the underlying connection pool
func (s *LedgerStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
