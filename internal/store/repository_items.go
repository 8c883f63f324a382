package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/MKhiriev/go-note-keeper/internal/logger"
	"github.com/MKhiriev/go-note-keeper/models"
)

const defaultPageSize = 256

var itemColumns = []string{
	"id", "type", "date_created", "date_edited", "deleted",
	"remote", "locked", "device_id", "conflict_of", "data",
}

type itemRepository struct {
	*DB
	logger *logger.Logger
}

// NewItemRepository returns the items table repository.
func NewItemRepository(db *DB, logger *logger.Logger) ItemRepository {
	return &itemRepository{
		DB:     db,
		logger: logger,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (models.Item, error) {
	var (
		item                    models.Item
		itemType                string
		deleted, remote, locked bool
		data                    []byte
	)

	err := row.Scan(
		&item.ID,
		&itemType,
		&item.DateCreated,
		&item.DateEdited,
		&deleted,
		&remote,
		&locked,
		&item.DeviceID,
		&item.ConflictOf,
		&data,
	)
	if err != nil {
		return models.Item{}, err
	}

	item.Type = models.ItemType(itemType)
	item.Deleted = deleted
	item.Remote = remote
	item.Locked = locked
	item.Data = data

	return item, nil
}

func (r *itemRepository) Get(ctx context.Context, id string) (models.Item, error) {
	log := logger.FromContext(ctx)

	query, args, err := psql.Select(itemColumns...).From("items").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return models.Item{}, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	item, err := scanItem(r.runner(ctx).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Item{}, ErrNotFound
	}
	if err != nil {
		log.Err(err).Str("func", "itemRepository.Get").Str("id", id).Msg("failed to scan item row")
		return models.Item{}, fmt.Errorf("%w: %w", ErrScanningRow, err)
	}

	return item, nil
}

func (r *itemRepository) Put(ctx context.Context, item models.Item) error {
	log := logger.FromContext(ctx)

	query, args, err := psql.Insert("items").
		Columns(itemColumns...).
		Values(
			item.ID,
			string(item.Type),
			item.DateCreated,
			item.DateEdited,
			boolToInt(item.Deleted),
			boolToInt(item.Remote),
			boolToInt(item.Locked),
			item.DeviceID,
			item.ConflictOf,
			[]byte(item.Data),
		).
		Suffix(`ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			date_created = excluded.date_created,
			date_edited = excluded.date_edited,
			deleted = excluded.deleted,
			remote = excluded.remote,
			locked = excluded.locked,
			device_id = excluded.device_id,
			conflict_of = excluded.conflict_of,
			data = excluded.data`).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	if _, err = r.runner(ctx).ExecContext(ctx, query, args...); err != nil {
		log.Err(err).
			Str("func", "itemRepository.Put").
			Str("id", item.ID).
			Str("type", string(item.Type)).
			Msg("failed to upsert item")
		return fmt.Errorf("%w (id=%s): %w", ErrExecutingStatement, item.ID, err)
	}

	return nil
}

func (r *itemRepository) List(ctx context.Context, filter ItemFilter) ([]models.Item, error) {
	log := logger.FromContext(ctx)

	limit := filter.Limit
	if limit == 0 {
		limit = defaultPageSize
	}

	builder := psql.Select(itemColumns...).From("items").OrderBy("id").Limit(limit)
	if filter.Type != "" {
		builder = builder.Where(sq.Eq{"type": string(filter.Type)})
	}
	if filter.AfterID != "" {
		builder = builder.Where(sq.Gt{"id": filter.AfterID})
	}
	if !filter.IncludeDeleted {
		builder = builder.Where(sq.Eq{"deleted": 0})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	rows, err := r.runner(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		log.Err(err).Str("func", "itemRepository.List").Str("type", string(filter.Type)).Msg("failed to query items")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, err)
	}
	defer rows.Close()

	items := make([]models.Item, 0, limit)
	for rows.Next() {
		item, scanErr := scanItem(rows)
		if scanErr != nil {
			log.Err(scanErr).Str("func", "itemRepository.List").Msg("failed to scan item row")
			return nil, fmt.Errorf("%w: %w", ErrScanningRow, scanErr)
		}
		items = append(items, item)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		log.Err(rowsErr).Str("func", "itemRepository.List").Msg("error occurred during rows iteration")
		return nil, fmt.Errorf("%w: %w", ErrExecutingQuery, rowsErr)
	}

	return items, nil
}

func (r *itemRepository) MarkRemote(ctx context.Context, id string, dateEdited int64) error {
	query, args, err := psql.Update("items").
		Set("remote", 1).
		Where(sq.Eq{"id": id, "date_edited": dateEdited}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	res, err := r.runner(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "itemRepository.MarkRemote").Str("id", id).Msg("failed to mark item remote")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleVersion
	}

	return nil
}

func (r *itemRepository) PurgeTombstones(ctx context.Context, t models.ItemType) (int64, error) {
	query, args, err := psql.Delete("items").
		Where(sq.Eq{"type": string(t), "deleted": 1, "remote": 1}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrBuildingSQLQuery, err)
	}

	res, err := r.runner(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "itemRepository.PurgeTombstones").Str("type", string(t)).Msg("failed to purge tombstones")
		return 0, fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}

	n, _ := res.RowsAffected()
	return n, nil
}

func (r *itemRepository) Clear(ctx context.Context) error {
	if _, err := r.runner(ctx).ExecContext(ctx, "DELETE FROM items"); err != nil {
		logger.FromContext(ctx).Err(err).Str("func", "itemRepository.Clear").Msg("failed to clear items")
		return fmt.Errorf("%w: %w", ErrExecutingStatement, err)
	}
	return nil
}
