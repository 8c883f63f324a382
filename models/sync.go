package models

// SyncCursor tracks sync progress of a single collection.
// LastSyncedAt is a clock reading taken at the start of the last
// successful cycle; LastSyncedToken is the server's opaque pull cursor.
type SyncCursor struct {
	LastSyncedAt    int64  `json:"lastSyncedAt"`
	LastSyncedToken string `json:"lastSyncedToken"`
}

// PullResponse is the server reply to a pull of one collection.
type PullResponse struct {
	Items           []Item `json:"items"`
	NextCursorToken string `json:"nextCursorToken"`
}

// PushRequest carries outbox entries of one collection to the server.
// Hash is the transport integrity HMAC over Entries.
type PushRequest struct {
	Entries []OutboxEntry `json:"entries"`
	Length  int           `json:"length"`
	Hash    string        `json:"hash"`
}

// Rejection explains why the server refused a pushed entry.
type Rejection struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// PushResponse is the server reply to a push.
type PushResponse struct {
	Accepted []string    `json:"accepted"`
	Rejected []Rejection `json:"rejected"`
}

// Conflict pairs two divergent versions of the same item.
// LocalPending is set when the local version still has an outbox entry.
type Conflict struct {
	Local        Item
	Remote       Item
	LocalPending bool
}
