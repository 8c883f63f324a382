package models

// Realtime message types.
const (
	MessageUpgrade             = "upgrade"
	MessageUserDeleted         = "userDeleted"
	MessageUserPasswordChanged = "userPasswordChanged"
	MessageEmailConfirmed      = "emailConfirmed"
	MessageSync                = "sync"
)

// Envelope is the inbound realtime frame. Data is itself JSON encoded.
type Envelope struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// SyncRequest is the payload of a "sync" message. An empty Collections
// list means every collection.
type SyncRequest struct {
	Collections []string `json:"collections,omitempty"`
	Full        bool     `json:"full,omitempty"`
}
