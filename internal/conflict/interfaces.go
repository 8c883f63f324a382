// Package conflict decides between two versions of one item.
package conflict

import "github.com/MKhiriev/go-note-keeper/models"

//go:generate mockgen -source=interfaces.go -destination=../mock/resolver_mock.go -package=mock

// Resolver is pure: it inspects a conflict and reports which version
// survives. Applying the outcome is up to the caller.
type Resolver interface {
	Resolve(c models.Conflict) Resolution
}
