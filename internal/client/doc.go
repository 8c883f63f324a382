// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package client implements the headless client runtime.
//
// It initializes the note database, runs the maintenance workers next to
// the automatic sync job of the database and shuts everything down when
// the run context ends.
package client
