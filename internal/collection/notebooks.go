package collection

import (
	"context"
	"fmt"
	"slices"

	"github.com/MKhiriev/go-note-keeper/internal/store"
	"github.com/MKhiriev/go-note-keeper/models"
)

// Notebooks stores notebooks and their topics.
type Notebooks struct {
	*Collection[models.Notebook]
	notes *Notes
	deps  Deps
}

func NewNotebooks(deps Deps, notes *Notes) *Notebooks {
	return &Notebooks{
		Collection: New[models.Notebook](models.TypeNotebook, deps),
		notes:      notes,
		deps:       deps,
	}
}

// AddTopic appends a topic with a generated id to the notebook.
func (n *Notebooks) AddTopic(ctx context.Context, notebookID, title string) (models.Topic, error) {
	topic := models.Topic{ID: n.deps.IDs.Generate(), Title: title}

	err := n.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		notebook, err := n.Get(ctx, notebookID)
		if err != nil {
			return err
		}

		notebook.Payload.Topics = append(notebook.Payload.Topics, topic)
		_, err = n.Upsert(ctx, notebook)
		return err
	})
	if err != nil {
		return models.Topic{}, err
	}

	return topic, nil
}

// RemoveTopic drops the topic from the notebook.
func (n *Notebooks) RemoveTopic(ctx context.Context, notebookID, topicID string) error {
	return n.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		notebook, err := n.Get(ctx, notebookID)
		if err != nil {
			return err
		}

		idx := slices.IndexFunc(notebook.Payload.Topics, func(t models.Topic) bool { return t.ID == topicID })
		if idx < 0 {
			return fmt.Errorf("%w: topic %s", store.ErrNotFound, topicID)
		}

		notebook.Payload.Topics = slices.Delete(notebook.Payload.Topics, idx, idx+1)
		_, err = n.Upsert(ctx, notebook)
		return err
	})
}

// Remove tombstones the notebook and unfiles its notes.
func (n *Notebooks) Remove(ctx context.Context, id string) error {
	return n.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		if err := n.Collection.Remove(ctx, id); err != nil {
			return err
		}

		notes, err := n.notes.InNotebook(ctx, id)
		if err != nil {
			return err
		}
		for _, note := range notes {
			note.Payload.NotebookIDs = slices.DeleteFunc(note.Payload.NotebookIDs, func(s string) bool { return s == id })
			if _, err = n.notes.Upsert(ctx, note); err != nil {
				return err
			}
		}
		return nil
	})
}
