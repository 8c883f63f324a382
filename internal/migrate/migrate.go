// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package migrate upgrades stored user data to the current layout.
//
// Table DDL is handled by goose in the migrations package; the steps here
// rewrite records. Each step runs in its own transaction together with the
// write of its version number, so an interrupted run resumes at the first
// step that did not complete.
package migrate

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/MKhiriev/go-note-keeper/internal/logger"
	"github.com/MKhiriev/go-note-keeper/internal/store"
)

// VersionKey stores the version of the last completed step.
const VersionKey = "v"

// Step is one data migration. Apply must tolerate data already partially
// migrated by an interrupted earlier run.
type Step struct {
	Version int
	Name    string
	Apply   func(ctx context.Context) error
}

type Migrator struct {
	kv    store.KeyValueStorage
	tx    store.Transactor
	steps []Step
}

// New returns a Migrator over steps, sorted by version.
func New(kv store.KeyValueStorage, tx store.Transactor, steps ...Step) (*Migrator, error) {
	sorted := slices.Clone(steps)
	slices.SortFunc(sorted, func(a, b Step) int { return cmp.Compare(a.Version, b.Version) })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Version == sorted[i-1].Version {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateVersion, sorted[i].Version)
		}
	}

	return &Migrator{kv: kv, tx: tx, steps: sorted}, nil
}

// Latest is the version reached after every step has run.
func (m *Migrator) Latest() int {
	if len(m.steps) == 0 {
		return 0
	}
	return m.steps[len(m.steps)-1].Version
}

// Current returns the stored version, 0 when none is stored.
func (m *Migrator) Current(ctx context.Context) (int, error) {
	var version int
	if _, err := m.kv.Read(ctx, VersionKey, &version); err != nil {
		return 0, fmt.Errorf("error reading schema version: %w", err)
	}
	return version, nil
}

// Run applies every step newer than the stored version in ascending order.
// It stops at the first failing step and returns a *MigrationError.
func (m *Migrator) Run(ctx context.Context) error {
	log := logger.FromContext(ctx)

	current, err := m.Current(ctx)
	if err != nil {
		return err
	}

	for _, step := range m.steps {
		if step.Version <= current {
			continue
		}

		err = m.tx.InTx(ctx, func(ctx context.Context) error {
			if err := step.Apply(ctx); err != nil {
				return err
			}
			return m.kv.Write(ctx, VersionKey, step.Version)
		})
		if err != nil {
			log.Err(err).Str("func", "Migrator.Run").Int("version", step.Version).Str("step", step.Name).Msg("migration step failed")
			return &MigrationError{Version: step.Version, Name: step.Name, Err: err}
		}

		log.Info().Int("version", step.Version).Str("step", step.Name).Msg("migration step applied")
	}

	return nil
}
