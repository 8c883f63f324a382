package models

// Note is the metadata part of a note. The body lives in a separate
// [Content] item referenced by ContentID.
type Note struct {
	Title       string   `json:"title"`
	ContentID   string   `json:"contentId"`
	NotebookIDs []string `json:"notebookIds,omitempty"`
	Pinned      bool     `json:"pinned,omitempty"`
	Favorite    bool     `json:"favorite,omitempty"`
	// Attachments holds the content hashes of embedded attachments.
	Attachments []string `json:"attachments,omitempty"`
}

// ContentFormat is the markup used by a note body.
type ContentFormat string

const (
	FormatHTML     ContentFormat = "html"
	FormatMarkdown ContentFormat = "markdown"
	FormatText     ContentFormat = "text"
)

// Content is the note body, versioned independently from note metadata.
type Content struct {
	NoteID string        `json:"noteId"`
	Format ContentFormat `json:"format"`
	Body   string        `json:"body"`
}

// Topic is a named section inside a notebook.
type Topic struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Notebook struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Topics      []Topic `json:"topics,omitempty"`
}

// Tag is a label on notes. Color labels share this payload under their own
// item type.
type Tag struct {
	Title   string   `json:"title"`
	NoteIDs []string `json:"noteIds,omitempty"`
}

// Attachment describes a blob stored in file storage under its content hash.
// The attachment item id equals Hash.
type Attachment struct {
	Hash     string   `json:"hash"`
	Filename string   `json:"filename"`
	MimeType string   `json:"mimeType,omitempty"`
	Size     int64    `json:"size"`
	NoteIDs  []string `json:"noteIds,omitempty"`
	Uploaded bool     `json:"uploaded,omitempty"`
}
