package validators

import (
	"context"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"github.com/MKhiriev/go-note-keeper/models"
)

// Field name constants used to scope validation to a subset of fields.
const (
	FieldID        = "id"
	FieldType      = "type"
	FieldData      = "data"
	FieldDates     = "dates"
	FieldTitle     = "title"
	FieldContentID = "content_id"
	FieldNoteID    = "note_id"
	FieldFormat    = "format"
	FieldTopics    = "topics"
	FieldHash      = "hash"
	FieldFilename  = "filename"
	FieldSize      = "size"
)

const maxTitleLength = 1000

var allowedFormats = []models.ContentFormat{
	models.FormatHTML,
	models.FormatMarkdown,
	models.FormatText,
}

// ItemValidator validates base items and every entity payload.
type ItemValidator struct {
}

// NewItemValidator returns the validator used by all collections.
func NewItemValidator() Validator {
	return &ItemValidator{}
}

func (v *ItemValidator) Validate(ctx context.Context, obj any, fields ...string) error {
	switch value := obj.(type) {
	case models.Item:
		return v.validateItem(ctx, value, fields...)
	case *models.Item:
		return v.validateItem(ctx, *value, fields...)

	case models.Note:
		return v.validateNote(ctx, value, fields...)
	case *models.Note:
		return v.validateNote(ctx, *value, fields...)

	case models.Content:
		return v.validateContent(ctx, value, fields...)
	case *models.Content:
		return v.validateContent(ctx, *value, fields...)

	case models.Notebook:
		return v.validateNotebook(ctx, value, fields...)
	case *models.Notebook:
		return v.validateNotebook(ctx, *value, fields...)

	case models.Tag:
		return v.validateTag(ctx, value, fields...)
	case *models.Tag:
		return v.validateTag(ctx, *value, fields...)

	case models.Attachment:
		return v.validateAttachment(ctx, value, fields...)
	case *models.Attachment:
		return v.validateAttachment(ctx, *value, fields...)

	default:
		return ErrUnsupportedType
	}
}

func (v *ItemValidator) validateItem(_ context.Context, item models.Item, fields ...string) error {
	if len(fields) == 0 {
		fields = []string{FieldID, FieldType, FieldDates, FieldData}
	}

	for _, f := range fields {
		switch f {
		case FieldID:
			if strings.TrimSpace(item.ID) == "" {
				return NewValidationError(f, ErrInvalidID)
			}
		case FieldType:
			if !item.Type.Valid() {
				return NewValidationError(f, ErrInvalidType)
			}
		case FieldDates:
			if item.DateCreated < 0 || item.DateEdited < item.DateCreated {
				return NewValidationError(f, ErrInvalidTimestamp)
			}
		case FieldData:
			// tombstones may drop their payload
			if !item.Deleted && len(item.Data) == 0 {
				return NewValidationError(f, ErrEmptyData)
			}
		default:
			return ErrUnknownField
		}
	}

	return nil
}

func (v *ItemValidator) validateNote(_ context.Context, note models.Note, fields ...string) error {
	if len(fields) == 0 {
		fields = []string{FieldTitle, FieldContentID}
	}

	for _, f := range fields {
		switch f {
		case FieldTitle:
			if utf8.RuneCountInString(note.Title) > maxTitleLength {
				return NewValidationError(f, ErrTitleTooLong)
			}
		case FieldContentID:
			if note.ContentID == "" {
				return NewValidationError(f, ErrEmptyContentID)
			}
		default:
			return ErrUnknownField
		}
	}

	return nil
}

func (v *ItemValidator) validateContent(_ context.Context, content models.Content, fields ...string) error {
	if len(fields) == 0 {
		fields = []string{FieldNoteID, FieldFormat}
	}

	for _, f := range fields {
		switch f {
		case FieldNoteID:
			if content.NoteID == "" {
				return NewValidationError(f, ErrEmptyNoteID)
			}
		case FieldFormat:
			if !isAllowedFormat(content.Format) {
				return NewValidationError(f, ErrInvalidFormat)
			}
		default:
			return ErrUnknownField
		}
	}

	return nil
}

func (v *ItemValidator) validateNotebook(_ context.Context, notebook models.Notebook, fields ...string) error {
	if len(fields) == 0 {
		fields = []string{FieldTitle, FieldTopics}
	}

	for _, f := range fields {
		switch f {
		case FieldTitle:
			if err := checkTitle(notebook.Title); err != nil {
				return NewValidationError(f, err)
			}
		case FieldTopics:
			seen := make(map[string]struct{}, len(notebook.Topics))
			for _, topic := range notebook.Topics {
				if _, dup := seen[topic.ID]; dup || topic.ID == "" || strings.TrimSpace(topic.Title) == "" {
					return NewValidationError(f, ErrInvalidTopics)
				}
				seen[topic.ID] = struct{}{}
			}
		default:
			return ErrUnknownField
		}
	}

	return nil
}

func (v *ItemValidator) validateTag(_ context.Context, tag models.Tag, fields ...string) error {
	if len(fields) == 0 {
		fields = []string{FieldTitle}
	}

	for _, f := range fields {
		switch f {
		case FieldTitle:
			if err := checkTitle(tag.Title); err != nil {
				return NewValidationError(f, err)
			}
		default:
			return ErrUnknownField
		}
	}

	return nil
}

func (v *ItemValidator) validateAttachment(_ context.Context, attachment models.Attachment, fields ...string) error {
	if len(fields) == 0 {
		fields = []string{FieldHash, FieldFilename, FieldSize}
	}

	for _, f := range fields {
		switch f {
		case FieldHash:
			if !IsContentHash(attachment.Hash) {
				return NewValidationError(f, ErrInvalidHash)
			}
		case FieldFilename:
			if strings.TrimSpace(attachment.Filename) == "" {
				return NewValidationError(f, ErrEmptyFilename)
			}
		case FieldSize:
			if attachment.Size < 0 {
				return NewValidationError(f, ErrInvalidSize)
			}
		default:
			return ErrUnknownField
		}
	}

	return nil
}

// IsContentHash reports whether s is a lowercase hex SHA-256.
func IsContentHash(s string) bool {
	if len(s) != 64 || strings.ToLower(s) != s {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func checkTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return ErrTitleTooLong
	}
	return nil
}

func isAllowedFormat(f models.ContentFormat) bool {
	for _, allowed := range allowedFormats {
		if f == allowed {
			return true
		}
	}
	return false
}
