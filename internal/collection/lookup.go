package collection

import (
	"context"
	"strings"

	"github.com/MKhiriev/go-note-keeper/models"
)

// Lookup runs text searches over the notes and their bodies. Locked notes
// and bodies are never searched.
type Lookup struct {
	notes *Notes
}

func NewLookup(notes *Notes) *Lookup {
	return &Lookup{notes: notes}
}

// Notes returns the live notes whose title or body contains query, ignoring
// case, ordered by id. A blank query matches nothing.
func (l *Lookup) Notes(ctx context.Context, query string) ([]Document[models.Note], error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, nil
	}

	inBody := make(map[string]struct{})
	for doc, err := range l.notes.content.Query(ctx, func(d Document[models.Content]) bool {
		return !d.Locked && contains(d.Payload.Body, needle)
	}) {
		if err != nil {
			if doc.Locked {
				continue
			}
			return nil, err
		}
		inBody[doc.Payload.NoteID] = struct{}{}
	}

	var found []Document[models.Note]
	for doc, err := range l.notes.Query(ctx, func(d Document[models.Note]) bool {
		if d.Locked {
			return false
		}
		_, ok := inBody[d.ID]
		return ok || contains(d.Payload.Title, needle)
	}) {
		if err != nil {
			if doc.Locked {
				continue
			}
			return nil, err
		}
		found = append(found, doc)
	}

	return found, nil
}

func contains(s, lowered string) bool {
	return strings.Contains(strings.ToLower(s), lowered)
}
