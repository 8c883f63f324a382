package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/MKhiriev/go-note-keeper/internal/logger"
	"github.com/MKhiriev/go-note-keeper/models"
)

var outboxColumns = []string{
	"seq", "collection", "item_id", "operation", "payload",
	"attempts", "created_at", "next_attempt_at", "parked", "last_error",
}

type outboxRepository struct {
	*DB
	logger *logger.Logger
}

// NewOutboxRepository returns the outbox table repository.
func NewOutboxRepository(db *DB, logger *logger.Logger) OutboxRepository {
	return &outboxRepository{
		DB:     db,
		logger: logger,
	}
}

func scanOutboxEntry(row rowScanner) (models.OutboxEntry, error) {
	var (
		entry     models.OutboxEntry
		operation string
		payload   []byte
		parked    bool
	)

	err := row.Scan(
		&entry.Seq,
		&entry.Collection,
		&entry.ItemID,
		&operation,
		&payload,
		&entry.Attempts,
		&entry.CreatedAt,
		&entry.NextAttemptAt,
		&parked,
		&entry.LastError,
	)
	if err != nil {
		return models.OutboxEntry{}, err
	}

	if err = json.Unmarshal(payload, &entry.Payload); err != nil {
		return models.OutboxEntry{}, fmt.Errorf("%w: %w", ErrEncodingValue, err)
	}
	entry.Operation = models.Operation(operation)
	entry.Parked = parked

	return entry, nil
}

func (r *outboxRepository) Enqueue(ctx context.Context, entry models.OutboxEntry) error {
	log := logger.FromContext(ctx)

	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncodingValue, err)
	}

	query, args, err := psql.Insert("outbox").
		Columns("collection", "item_id", "operation", "payload", "date_edited", "created_at").
		Values(entry.Collection, entry.ItemID, string(entry.Operation), payload, entry.Payload.DateEdited, entry.CreatedAt).
		Suffix(`ON CONFLICT(collection, item_id) DO UPDATE SET
			operation = excluded.operation,
			payload = excluded.payload,
			date_edited = excluded.date_edited,
			attempts = 0,
			next_attempt_at = 0,
			parked = 0,
			last_error = ''`).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	if _, err = r.runner(ctx).ExecContext(ctx, query, args...); err != nil {
		log.Err(err).
			Str("func", "outboxRepository.Enqueue").
			Str("collection", entry.Collection).
			Str("item_id", entry.ItemID).
			Msg("failed to enqueue outbox entry")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	return nil
}

func (r *outboxRepository) Due(ctx context.Context, now int64, limit uint64) ([]models.OutboxEntry, error) {
	builder := psql.Select(outboxColumns...).
		From("outbox").
		Where(sq.Eq{"parked": 0}).
		Where(sq.LtOrEq{"next_attempt_at": now}).
		OrderBy("seq")
	if limit > 0 {
		builder = builder.Limit(limit)
	}

	return r.list(ctx, "outboxRepository.Due", builder)
}

func (r *outboxRepository) List(ctx context.Context, parked bool) ([]models.OutboxEntry, error) {
	builder := psql.Select(outboxColumns...).
		From("outbox").
		Where(sq.Eq{"parked": boolToInt(parked)}).
		OrderBy("seq")

	return r.list(ctx, "outboxRepository.List", builder)
}

func (r *outboxRepository) list(ctx context.Context, fn string, builder sq.SelectBuilder) ([]models.OutboxEntry, error) {
	log := logger.FromContext(ctx)

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	rows, err := r.runner(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		log.Err(err).Str("func", fn).Msg("failed to query outbox")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	var entries []models.OutboxEntry
	for rows.Next() {
		entry, scanErr := scanOutboxEntry(rows)
		if scanErr != nil {
			log.Err(scanErr).Str("func", fn).Msg("failed to scan outbox row")
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, scanErr)
		}
		entries = append(entries, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		log.Err(rowsErr).Str("func", fn).Msg("error occurred during rows iteration")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, rowsErr)
	}

	return entries, nil
}

func (r *outboxRepository) Get(ctx context.Context, collection, itemID string) (models.OutboxEntry, error) {
	query, args, err := psql.Select(outboxColumns...).
		From("outbox").
		Where(sq.Eq{"collection": collection, "item_id": itemID}).
		ToSql()
	if err != nil {
		return models.OutboxEntry{}, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	entry, err := scanOutboxEntry(r.runner(ctx).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.OutboxEntry{}, ErrNotFound
	}
	if err != nil {
		logger.FromContext(ctx).Err(err).
			Str("func", "outboxRepository.Get").
			Str("collection", collection).
			Str("item_id", itemID).
			Msg("failed to scan outbox row")
		return models.OutboxEntry{}, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	return entry, nil
}

func (r *outboxRepository) Ack(ctx context.Context, seq int64, dateEdited int64) error {
	query, args, err := psql.Delete("outbox").
		Where(sq.Eq{"seq": seq, "date_edited": dateEdited}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	return r.execAffecting(ctx, "outboxRepository.Ack", ErrStaleVersion, query, args...)
}

func (r *outboxRepository) Fail(ctx context.Context, entry models.OutboxEntry) error {
	query, args, err := psql.Update("outbox").
		SetMap(map[string]any{
			"attempts":        entry.Attempts,
			"next_attempt_at": entry.NextAttemptAt,
			"parked":          boolToInt(entry.Parked),
			"last_error":      entry.LastError,
		}).
		Where(sq.Eq{"seq": entry.Seq, "date_edited": entry.Payload.DateEdited}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	return r.execAffecting(ctx, "outboxRepository.Fail", ErrStaleVersion, query, args...)
}

func (r *outboxRepository) Delete(ctx context.Context, collection, itemID string) error {
	query, args, err := psql.Delete("outbox").
		Where(sq.Eq{"collection": collection, "item_id": itemID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	if _, err = r.runner(ctx).ExecContext(ctx, query, args...); err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "outboxRepository.Delete").Str("item_id", itemID).Msg("failed to delete outbox entry")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	return nil
}

func (r *outboxRepository) Remove(ctx context.Context, seq int64) error {
	query, args, err := psql.Delete("outbox").Where(sq.Eq{"seq": seq}).ToSql()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	return r.execAffecting(ctx, "outboxRepository.Remove", ErrNotFound, query, args...)
}

func (r *outboxRepository) Requeue(ctx context.Context, seq int64, now int64) error {
	query, args, err := psql.Update("outbox").
		SetMap(map[string]any{
			"attempts":        0,
			"next_attempt_at": now,
			"parked":          0,
			"last_error":      "",
		}).
		Where(sq.Eq{"seq": seq}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	return r.execAffecting(ctx, "outboxRepository.Requeue", ErrNotFound, query, args...)
}

func (r *outboxRepository) Clear(ctx context.Context) error {
	if _, err := r.runner(ctx).ExecContext(ctx, "DELETE FROM outbox"); err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "outboxRepository.Clear").Msg("failed to clear outbox")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	return nil
}

// execAffecting runs a statement expected to touch one row and returns
// missing when it touched none.
func (r *outboxRepository) execAffecting(ctx context.Context, fn string, missing error, query string, args ...any) error {
	res, err := r.runner(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		logger.FromContext(ctx).Err(err).Str("func", fn).Msg("failed to execute outbox statement")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return missing
	}

	return nil
}
