package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/MKhiriev/go-note-keeper/models"
)

// ParseEnvelope decodes a raw frame. The data field is a JSON document
// encoded as a string and must itself be valid JSON, for every type.
func ParseEnvelope(raw []byte) (models.Envelope, error) {
	var env models.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return models.Envelope{}, fmt.Errorf("%w: %w", models.ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return models.Envelope{}, fmt.Errorf("%w: missing type", models.ErrMalformedMessage)
	}
	if !json.Valid([]byte(env.Data)) {
		return models.Envelope{}, fmt.Errorf("%w: data of %q is not JSON", models.ErrMalformedMessage, env.Type)
	}
	return env, nil
}

// ParseSyncRequest decodes the data of a sync message.
func ParseSyncRequest(env models.Envelope) (models.SyncRequest, error) {
	var req models.SyncRequest
	if err := json.Unmarshal([]byte(env.Data), &req); err != nil {
		return models.SyncRequest{}, fmt.Errorf("%w: %w", models.ErrMalformedMessage, err)
	}
	return req, nil
}

// ParseSubscription decodes the data of an upgrade message, the new
// subscription of the user.
func ParseSubscription(env models.Envelope) (models.Subscription, error) {
	var sub models.Subscription
	if err := json.Unmarshal([]byte(env.Data), &sub); err != nil {
		return models.Subscription{}, fmt.Errorf("%w: %w", models.ErrMalformedMessage, err)
	}
	return sub, nil
}
