// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package collection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/MKhiriev/go-note-keeper/internal/events"
	"github.com/MKhiriev/go-note-keeper/internal/logger"
	"github.com/MKhiriev/go-note-keeper/internal/store"
	"github.com/MKhiriev/go-note-keeper/models"
)

// Attachments stores attachment metadata keyed by content hash. The bytes
// live in the blob store.
type Attachments struct {
	*Collection[models.Attachment]
	files BlobStore
	notes *Notes
	deps  Deps
}

func NewAttachments(deps Deps, files BlobStore, notes *Notes) *Attachments {
	return &Attachments{
		Collection: New[models.Attachment](models.TypeAttachment, deps),
		files:      files,
		notes:      notes,
		deps:       deps,
	}
}

// Add stores the bytes read from r and records the attachment. When noteID
// is set the note is updated to reference the attachment. Adding the same
// bytes twice yields one attachment.
func (a *Attachments) Add(ctx context.Context, r io.Reader, filename, mimeType, noteID string) (Document[models.Attachment], error) {
	log := logger.FromContext(ctx)

	hash, size, err := a.files.Write(ctx, r)
	if err != nil {
		log.Err(err).Str("func", "Attachments.Add").Str("filename", filename).Msg("failed to store blob")
		return Document[models.Attachment]{}, err
	}

	var stored Document[models.Attachment]
	err = a.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		doc, err := a.Get(ctx, hash, WithDeleted())
		switch {
		case errors.Is(err, store.ErrNotFound):
			doc = Document[models.Attachment]{
				Item:    models.Item{ID: hash},
				Payload: models.Attachment{Hash: hash, Filename: filename, MimeType: mimeType, Size: size},
			}
		case err != nil:
			return err
		}

		if noteID != "" && !slices.Contains(doc.Payload.NoteIDs, noteID) {
			doc.Payload.NoteIDs = append(doc.Payload.NoteIDs, noteID)
		}
		if stored, err = a.Upsert(ctx, doc); err != nil {
			return err
		}

		if noteID == "" {
			return nil
		}
		return a.reference(ctx, noteID, hash)
	})
	if err != nil {
		return Document[models.Attachment]{}, err
	}

	return stored, nil
}

func (a *Attachments) reference(ctx context.Context, noteID, hash string) error {
	note, err := a.notes.Get(ctx, noteID)
	if err != nil {
		return err
	}
	if slices.Contains(note.Payload.Attachments, hash) {
		return nil
	}

	note.Payload.Attachments = append(note.Payload.Attachments, hash)
	_, err = a.notes.Upsert(ctx, note)
	return err
}

// Open returns the bytes of the attachment with hash.
func (a *Attachments) Open(ctx context.Context, hash string) (io.ReadCloser, error) {
	if _, err := a.Get(ctx, hash); err != nil {
		return nil, err
	}
	return a.files.Read(ctx, hash)
}

// MarkUploaded records that the blob reached the remote blob store.
func (a *Attachments) MarkUploaded(ctx context.Context, hash string) error {
	return a.deps.Tx.InTx(ctx, func(ctx context.Context) error {
		doc, err := a.Get(ctx, hash)
		if err != nil {
			return err
		}
		if doc.Payload.Uploaded {
			return nil
		}
		doc.Payload.Uploaded = true
		_, err = a.Upsert(ctx, doc)
		return err
	})
}

// Pending returns the live attachments whose blob has not been uploaded.
func (a *Attachments) Pending(ctx context.Context) ([]Document[models.Attachment], error) {
	return Collect(a.Query(ctx, func(d Document[models.Attachment]) bool { return !d.Payload.Uploaded }))
}

// Cleanup tombstones every attachment no live note references and
// publishes [events.AttachmentDeleted] for each. It refuses to run while
// some note cannot be read, since its references are unknown.
func (a *Attachments) Cleanup(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)

	referenced := make(map[string]struct{})
	for note, err := range a.notes.All(ctx) {
		if err != nil {
			return 0, fmt.Errorf("error collecting attachment references: %w", err)
		}
		for _, hash := range note.Payload.Attachments {
			referenced[hash] = struct{}{}
		}
	}

	orphans, err := Collect(a.Query(ctx, func(d Document[models.Attachment]) bool {
		_, ok := referenced[d.ID]
		return !ok
	}))
	if err != nil {
		return 0, err
	}

	for i, orphan := range orphans {
		if err = a.Remove(ctx, orphan.ID); err != nil {
			return i, err
		}
		log.Info().Str("func", "Attachments.Cleanup").Str("hash", orphan.ID).Msg("attachment unreferenced, removed")
		if a.deps.Bus != nil {
			events.Publish(ctx, a.deps.Bus, events.AttachmentDeleted{Hash: orphan.ID})
		}
	}

	return len(orphans), nil
}
