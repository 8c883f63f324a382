package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MKhiriev/go-note-keeper/internal/collection"
	"github.com/MKhiriev/go-note-keeper/internal/store"
	"github.com/MKhiriev/go-note-keeper/models"
)

// StepDeps is what the built-in steps read and rewrite.
type StepDeps struct {
	Items    store.ItemRepository
	Outbox   store.OutboxRepository
	Clock    collection.Clock
	DeviceID string
}

// Steps returns the built-in data migrations.
func Steps(deps StepDeps) []Step {
	return []Step{
		{Version: 1, Name: "backfill device ids", Apply: deps.backfillDeviceIDs},
		{Version: 2, Name: "split inline note bodies", Apply: deps.splitNoteBodies},
		{Version: 3, Name: "normalize tag titles", Apply: deps.normalizeTagTitles},
	}
}

// forEach visits every item of type t, tombstones included, page by page.
func (d StepDeps) forEach(ctx context.Context, t models.ItemType, fn func(models.Item) error) error {
	filter := store.ItemFilter{Type: t, IncludeDeleted: true, Limit: 200}
	for {
		page, err := d.Items.List(ctx, filter)
		if err != nil {
			return err
		}
		for _, item := range page {
			if err = fn(item); err != nil {
				return err
			}
		}
		if uint64(len(page)) < filter.Limit {
			return nil
		}
		filter.AfterID = page[len(page)-1].ID
	}
}

// save stores a rewritten item as a new local version and queues it.
func (d StepDeps) save(ctx context.Context, item models.Item) error {
	now := d.Clock.Now()
	item.DateEdited = max(now, item.DateEdited+1)
	item.Remote = false

	if err := d.Items.Put(ctx, item); err != nil {
		return err
	}
	return d.Outbox.Enqueue(ctx, models.NewOutboxEntry(item, now))
}

// backfillDeviceIDs stamps items written before device ids existed. The
// device id is local bookkeeping, so the items are not re-pushed.
func (d StepDeps) backfillDeviceIDs(ctx context.Context) error {
	for _, t := range models.ItemTypes {
		err := d.forEach(ctx, t, func(item models.Item) error {
			if item.DeviceID != "" {
				return nil
			}
			item.DeviceID = d.DeviceID
			return d.Items.Put(ctx, item)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// legacyNote is the note layout that carried its body inline.
type legacyNote struct {
	models.Note
	Body   *string              `json:"body,omitempty"`
	Format models.ContentFormat `json:"format,omitempty"`
}

// LegacyContentID is the id the body of a legacy note is moved to. It is
// derived from the note id so a rerun finds the item it already created.
func LegacyContentID(noteID string) string {
	return noteID + "_content"
}

func (d StepDeps) splitNoteBodies(ctx context.Context) error {
	return d.forEach(ctx, models.TypeNote, func(note models.Item) error {
		if note.Locked || len(note.Data) == 0 {
			return nil
		}

		var legacy legacyNote
		if err := json.Unmarshal(note.Data, &legacy); err != nil {
			return fmt.Errorf("note %s: %w", note.ID, err)
		}
		if legacy.Body == nil {
			return nil
		}

		format := legacy.Format
		if format == "" {
			format = models.FormatHTML
		}
		contentID := LegacyContentID(note.ID)

		if _, err := d.Items.Get(ctx, contentID); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			data, err := json.Marshal(models.Content{NoteID: note.ID, Format: format, Body: *legacy.Body})
			if err != nil {
				return err
			}
			content := models.Item{
				ID:          contentID,
				Type:        models.TypeContent,
				DateCreated: note.DateCreated,
				DateEdited:  note.DateEdited,
				Deleted:     note.Deleted,
				DeviceID:    note.DeviceID,
				Data:        data,
			}
			if err = d.save(ctx, content); err != nil {
				return err
			}
		}

		meta := legacy.Note
		meta.ContentID = contentID
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		note.Data = data
		return d.save(ctx, note)
	})
}

func (d StepDeps) normalizeTagTitles(ctx context.Context) error {
	return d.forEach(ctx, models.TypeTag, func(item models.Item) error {
		if item.Locked || len(item.Data) == 0 {
			return nil
		}

		var tag models.Tag
		if err := json.Unmarshal(item.Data, &tag); err != nil {
			return fmt.Errorf("tag %s: %w", item.ID, err)
		}

		normalized := collection.NormalizeTagTitle(tag.Title)
		if normalized == tag.Title {
			return nil
		}

		tag.Title = normalized
		data, err := json.Marshal(tag)
		if err != nil {
			return err
		}
		item.Data = data
		return d.save(ctx, item)
	})
}
