package models

// Operation is the kind of mutation captured by an [OutboxEntry].
type Operation string

const (
	OperationUpsert Operation = "upsert"
	OperationDelete Operation = "delete"
)

// OutboxEntry is a local mutation not yet acknowledged by the server.
// Payload is the snapshot of the item at enqueue time.
type OutboxEntry struct {
	Seq        int64     `json:"-"`
	Collection string    `json:"collection"`
	ItemID     string    `json:"itemId"`
	Operation  Operation `json:"operation"`
	Payload    Item      `json:"payload"`

	Attempts      int    `json:"-"`
	CreatedAt     int64  `json:"-"`
	NextAttemptAt int64  `json:"-"`
	Parked        bool   `json:"-"`
	LastError     string `json:"-"`
}

// NewOutboxEntry builds the entry for a local mutation of item.
func NewOutboxEntry(item Item, createdAt int64) OutboxEntry {
	op := OperationUpsert
	if item.Deleted {
		op = OperationDelete
	}

	return OutboxEntry{
		Collection: item.Type.Collection(),
		ItemID:     item.ID,
		Operation:  op,
		Payload:    item,
		CreatedAt:  createdAt,
	}
}
