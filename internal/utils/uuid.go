package utils

import "github.com/google/uuid"

// UUIDGenerator issues time-ordered UUIDv7 identifiers, falling back to v4
// when the v7 generator cannot read randomness.
type UUIDGenerator struct{}

func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

func (g *UUIDGenerator) Generate() string {
	v7, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return v7.String()
}

// IDFunc adapts a plain function to the Generate contract.
type IDFunc func() string

func (f IDFunc) Generate() string { return f() }
