// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package validators holds the typed validation applied by collections
// before a write is accepted.
//
// A Validator checks a value and can be restricted to specific named fields.
// Failures are returned as *ValidationError so callers can match either
// the generic ErrValidation or the specific reason.
package validators

import "context"

// Validator defines a generic validation interface for arbitrary input values.
type Validator interface {

	// Validate validates the provided input and optionally
	// restricts validation to specific named fields.
	Validate(context.Context, any, ...string) error
}
