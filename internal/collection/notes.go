package collection

import (
	"context"
	"slices"

	"github.com/MKhiriev/go-note-keeper/models"
)

// Notes stores note metadata and keeps each note linked to its body in
// the content collection.
type Notes struct {
	*Collection[models.Note]
	content *Collection[models.Content]
	deps    Deps
}

func NewNotes(deps Deps, content *Collection[models.Content]) *Notes {
	return &Notes{
		Collection: New[models.Note](models.TypeNote, deps),
		content:    content,
		deps:       deps,
	}
}

// Create stores a new note and its body. The body inherits the note's
// locked flag.
func (n *Notes) Create(ctx context.Context, note Document[models.Note], body models.Content) (Document[models.Note], error) {
	if note.ID == "" {
		note.ID = n.deps.IDs.Generate()
	}

	var stored Document[models.Note]
	err := n.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		body.NoteID = note.ID
		content, err := n.content.Upsert(ctx, Document[models.Content]{
			Item:    models.Item{ID: note.Payload.ContentID, Locked: note.Locked},
			Payload: body,
		})
		if err != nil {
			return err
		}

		note.Payload.ContentID = content.ID
		stored, err = n.Upsert(ctx, note)
		return err
	})
	if err != nil {
		return Document[models.Note]{}, err
	}

	return stored, nil
}

// Content returns the body of the note with id.
func (n *Notes) Content(ctx context.Context, id string) (Document[models.Content], error) {
	note, err := n.Get(ctx, id)
	if err != nil {
		return Document[models.Content]{}, err
	}
	return n.content.Get(ctx, note.Payload.ContentID)
}

// SetContent replaces the body of the note with id. Note metadata is left
// untouched.
func (n *Notes) SetContent(ctx context.Context, id string, body models.Content) (Document[models.Content], error) {
	note, err := n.Get(ctx, id)
	if err != nil {
		return Document[models.Content]{}, err
	}

	body.NoteID = note.ID
	return n.content.Upsert(ctx, Document[models.Content]{
		Item:    models.Item{ID: note.Payload.ContentID, Locked: note.Locked},
		Payload: body,
	})
}

// Remove tombstones the note and its body.
func (n *Notes) Remove(ctx context.Context, id string) error {
	return n.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		note, err := n.Get(ctx, id)
		if err != nil {
			return err
		}
		if err = n.Collection.Remove(ctx, id); err != nil {
			return err
		}
		if note.Payload.ContentID == "" {
			return nil
		}
		return n.content.Remove(ctx, note.Payload.ContentID)
	})
}

// ContentConflicts returns the copies of the note body that sync kept when
// the body was edited on two replicas at once. Each copy points back at
// the body through ConflictOf.
func (n *Notes) ContentConflicts(ctx context.Context, id string) ([]Document[models.Content], error) {
	note, err := n.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if note.Payload.ContentID == "" {
		return nil, nil
	}

	return Collect(n.content.Query(ctx, func(d Document[models.Content]) bool {
		return d.ConflictOf == note.Payload.ContentID
	}))
}

// InNotebook returns the live notes filed in notebookID.
func (n *Notes) InNotebook(ctx context.Context, notebookID string) ([]Document[models.Note], error) {
	return Collect(n.Query(ctx, func(d Document[models.Note]) bool {
		return slices.Contains(d.Payload.NotebookIDs, notebookID)
	}))
}
