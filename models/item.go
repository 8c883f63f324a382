// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ItemType tags the entity kind an [Item] belongs to.
type ItemType string

const (
	TypeNote       ItemType = "note"
	TypeNotebook   ItemType = "notebook"
	TypeTag        ItemType = "tag"
	TypeColor      ItemType = "color"
	TypeContent    ItemType = "content"
	TypeAttachment ItemType = "attachment"
)

// ItemTypes lists every known item type in collection sync order.
var ItemTypes = []ItemType{TypeNotebook, TypeTag, TypeColor, TypeContent, TypeNote, TypeAttachment}

// Collection returns the name of the collection that stores items of this type.
func (t ItemType) Collection() string {
	switch t {
	case TypeNote:
		return "notes"
	case TypeNotebook:
		return "notebooks"
	case TypeTag:
		return "tags"
	case TypeColor:
		return "colors"
	case TypeContent:
		return "content"
	case TypeAttachment:
		return "attachments"
	default:
		return ""
	}
}

// Valid reports whether t is one of the known item types.
func (t ItemType) Valid() bool {
	return t.Collection() != ""
}

// TypeForCollection is the inverse of [ItemType.Collection].
func TypeForCollection(collection string) (ItemType, bool) {
	for _, t := range ItemTypes {
		if t.Collection() == collection {
			return t, true
		}
	}
	return "", false
}

// Item is the base record shared by every entity kind. Data holds the
// JSON-encoded payload of the concrete entity or, when Locked is set, the
// vault ciphertext of that payload.
type Item struct {
	ID          string   `json:"id"`
	Type        ItemType `json:"type"`
	DateCreated int64    `json:"dateCreated"`
	// DateEdited is a hybrid logical clock reading in milliseconds.
	DateEdited int64 `json:"dateEdited"`
	Deleted    bool  `json:"deleted,omitempty"`
	// Remote is local bookkeeping: the server acknowledged this exact version.
	Remote     bool            `json:"-"`
	Locked     bool            `json:"locked,omitempty"`
	DeviceID   string          `json:"deviceId,omitempty"`
	ConflictOf string          `json:"conflictOf,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// ContentHash returns the hex SHA-256 of the item payload.
func (i Item) ContentHash() string {
	sum := sha256.Sum256(i.Data)
	return hex.EncodeToString(sum[:])
}

// ContentBearing reports whether the item carries opaque user content that
// must never be merged automatically.
func (i Item) ContentBearing() bool {
	return i.Locked || i.Type == TypeNote || i.Type == TypeContent
}
