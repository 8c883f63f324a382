package events

import "github.com/MKhiriev/go-note-keeper/models"

// ConflictDetected is raised when two versions of a content-bearing item
// were both kept: the remote under ID and the local copy under CloneID.
type ConflictDetected struct {
	Collection string
	ID         string
	CloneID    string
}

// OutboxEntryParked is raised when an entry exhausts its retry budget.
type OutboxEntryParked struct {
	Entry  models.OutboxEntry
	Reason string
}

// AttachmentDeleted is raised after an unreferenced attachment is removed.
type AttachmentDeleted struct {
	Hash string
}

// SyncCompleted is raised after a successful sync cycle.
type SyncCompleted struct {
	Full       bool
	FinishedAt int64
}

type UserLoggedIn struct {
	Token string
}

// UserLoggedOut carries the user-facing reason; empty means user initiated.
type UserLoggedOut struct {
	Reason string
}

type TokenRefreshed struct {
	Token string
}

type UserFetched struct {
	User models.User
}

// SubscriptionUpdated is raised when the server pushes a new subscription.
type SubscriptionUpdated struct {
	Subscription models.Subscription
}

type EmailConfirmed struct{}

// SessionExpired is raised when the server rejected the session token.
// The session it belongs to is ended asynchronously.
type SessionExpired struct {
	Err error
}

// Logout reasons.
const (
	ReasonAccountDeleted  = "Account Deleted"
	ReasonPasswordChanged = "Password Changed"
	ReasonSessionExpired  = "Session Expired"
)
