package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MKhiriev/go-note-keeper/internal/logger"
)

type keyValueRepository struct {
	*DB
	logger *logger.Logger
}

// NewKeyValueRepository returns the kv table repository.
func NewKeyValueRepository(db *DB, logger *logger.Logger) KeyValueStorage {
	return &keyValueRepository{
		DB:     db,
		logger: logger,
	}
}

func (r *keyValueRepository) Read(ctx context.Context, key string, dst any) (bool, error) {
	log := logger.FromContext(ctx)

	query, args, err := psql.Select("value").From("kv").Where("key = ?", key).ToSql()
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	var raw []byte
	err = r.runner(ctx).QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		log.Err(err).Str("func", "keyValueRepository.Read").Str("key", key).Msg("failed to read value")
		return false, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}

	if err = json.Unmarshal(raw, dst); err != nil {
		log.Err(err).Str("func", "keyValueRepository.Read").Str("key", key).Msg("failed to decode value")
		return false, fmt.Errorf("%w (key=%s): %w", ErrEncodingValue, key, err)
	}

	return true, nil
}

func (r *keyValueRepository) Write(ctx context.Context, key string, value any) error {
	log := logger.FromContext(ctx)

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w (key=%s): %w", ErrEncodingValue, key, err)
	}

	query, args, err := psql.Insert("kv").
		Columns("key", "value").
		Values(key, raw).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value").
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	if _, err = r.runner(ctx).ExecContext(ctx, query, args...); err != nil {
		log.Err(err).Str("func", "keyValueRepository.Write").Str("key", key).Msg("failed to write value")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	return nil
}

func (r *keyValueRepository) Remove(ctx context.Context, key string) error {
	query, args, err := psql.Delete("kv").Where("key = ?", key).ToSql()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	if _, err = r.runner(ctx).ExecContext(ctx, query, args...); err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "keyValueRepository.Remove").Str("key", key).Msg("failed to remove value")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	return nil
}

func (r *keyValueRepository) Clear(ctx context.Context) error {
	if _, err := r.runner(ctx).ExecContext(ctx, "DELETE FROM kv"); err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "keyValueRepository.Clear").Msg("failed to clear kv")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	return nil
}
