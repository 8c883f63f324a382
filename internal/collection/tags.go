package collection

import (
	"context"
	"slices"
	"strings"

	"github.com/MKhiriev/go-note-keeper/models"
)

// NormalizeTagTitle is the canonical form tags are matched and stored by.
func NormalizeTagTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}

// Tags stores labels and the ids of the notes they label.
type Tags struct {
	*Collection[models.Tag]
	deps Deps
}

func NewTags(deps Deps) *Tags {
	return newLabels(models.TypeTag, deps)
}

// NewColors returns the color labels. A color is a tag kept in its own
// collection; titles are matched the same way.
func NewColors(deps Deps) *Tags {
	return newLabels(models.TypeColor, deps)
}

func newLabels(t models.ItemType, deps Deps) *Tags {
	return &Tags{
		Collection: New[models.Tag](t, deps),
		deps:       deps,
	}
}

// Find returns the live tag whose normalized title equals title's.
func (t *Tags) Find(ctx context.Context, title string) (Document[models.Tag], bool, error) {
	want := NormalizeTagTitle(title)
	for doc, err := range t.Query(ctx, func(d Document[models.Tag]) bool { return d.Payload.Title == want }) {
		if err != nil {
			return Document[models.Tag]{}, false, err
		}
		return doc, true, nil
	}
	return Document[models.Tag]{}, false, nil
}

// Add returns the tag titled title, creating it when missing.
func (t *Tags) Add(ctx context.Context, title string) (Document[models.Tag], error) {
	var tag Document[models.Tag]
	err := t.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		found, ok, err := t.Find(ctx, title)
		if err != nil || ok {
			tag = found
			return err
		}

		tag, err = t.Upsert(ctx, Document[models.Tag]{Payload: models.Tag{Title: NormalizeTagTitle(title)}})
		return err
	})
	return tag, err
}

// Tag labels noteID with the tag. Tagging twice is a no-op.
func (t *Tags) Tag(ctx context.Context, tagID, noteID string) error {
	return t.update(ctx, tagID, func(tag *models.Tag) bool {
		if slices.Contains(tag.NoteIDs, noteID) {
			return false
		}
		tag.NoteIDs = append(tag.NoteIDs, noteID)
		return true
	})
}

// Untag removes the label. Untagging an unlabeled note is a no-op.
func (t *Tags) Untag(ctx context.Context, tagID, noteID string) error {
	return t.update(ctx, tagID, func(tag *models.Tag) bool {
		n := len(tag.NoteIDs)
		tag.NoteIDs = slices.DeleteFunc(tag.NoteIDs, func(s string) bool { return s == noteID })
		return len(tag.NoteIDs) != n
	})
}

func (t *Tags) update(ctx context.Context, tagID string, mutate func(*models.Tag) bool) error {
	return t.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		tag, err := t.Get(ctx, tagID)
		if err != nil {
			return err
		}
		if !mutate(&tag.Payload) {
			return nil
		}
		_, err = t.Upsert(ctx, tag)
		return err
	})
}
