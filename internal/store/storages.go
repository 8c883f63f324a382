package store

import (
	"context"
	"fmt"

	"github.com/MKhiriev/go-note-keeper/internal/config"
	"github.com/MKhiriev/go-note-keeper/internal/logger"
)

// Storages groups every client-side storage so it can be handed to the
// database orchestrator as one value.
type Storages struct {
	// DB runs multi-repository writes atomically.
	DB *DB

	KeyValue KeyValueStorage
	Items    ItemRepository
	Outbox   OutboxRepository
	Files    FileStorage

	// RemoteFiles is nil unless an S3 bucket is configured.
	RemoteFiles RemoteFileStorage
}

// NewStorages initialises the client storage layer:
//  1. Opens the SQLite file named by cfg.Storage.DB.DSN.
//  2. Runs pending schema migrations via [DB.Migrate].
//  3. Prepares the local blob directory and, when configured, the S3 bucket.
func NewStorages(ctx context.Context, cfg *config.ClientConfig, log *logger.Logger) (*Storages, error) {
	log.Info().Msg("creating new storages...")

	db, err := NewConnectSQLite(ctx, cfg.Storage.DB, log)
	if err != nil {
		return nil, fmt.Errorf("sqlite connection error: %w", err)
	}

	if err = db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	files, err := NewLocalFileStorage(cfg.Storage.Files.Dir, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	storages := &Storages{
		DB:       db,
		KeyValue: NewKeyValueRepository(db, log),
		Items:    NewItemRepository(db, log),
		Outbox:   NewOutboxRepository(db, log),
		Files:    files,
	}

	if cfg.RemoteFilesEnabled() {
		if storages.RemoteFiles, err = NewS3FileStorage(ctx, cfg.Storage.S3, log); err != nil {
			db.Close()
			return nil, err
		}
	}

	return storages, nil
}

// Clear wipes all user data: kv, items, outbox and local blobs.
func (s *Storages) Clear(ctx context.Context) error {
	err := s.DB.InTx(ctx, func(ctx context.Context) error {
		if err := s.Outbox.Clear(ctx); err != nil {
			return err
		}
		if err := s.Items.Clear(ctx); err != nil {
			return err
		}
		return s.KeyValue.Clear(ctx)
	})
	if err != nil {
		return fmt.Errorf("error clearing database: %w", err)
	}

	return s.Files.Clear(ctx)
}

// Close releases the database handle.
func (s *Storages) Close() error {
	return s.DB.Close()
}
