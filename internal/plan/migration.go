// SPDX-License-Identifier: Apache-2.0

// Package plan resolves deployment stages for whole migrations and
// partitions a dependency-ordered migration plan into the subset that may
// run during a requested deployment phase.
//
// Migrations and their ordering are owned by the external migration
// executor; this package only reads them and returns staging decisions.
package plan

import (
	"fmt"

	"github.com/hashgraph/solo-stager/internal/schema"
)

// Direction indicates whether a migration is being applied or reverted.
type Direction string

const (
	DirectionForward  Direction = "forward"
	DirectionBackward Direction = "backward"
)

// MigrationID identifies a migration as "<app_label>.<name>".
type MigrationID string

// Migration is a single migration as exported by the executor. Read-only
// for this package.
type Migration struct {
	AppLabel   string
	Name       string
	Operations []schema.Operation

	// ExplicitStage is a migration-level override taking precedence over
	// operation inference.
	ExplicitStage schema.Stage

	// Dependencies lists migrations that must be fully applied first,
	// regardless of stage.
	Dependencies []MigrationID
}

// ID returns the migration's identity.
func (m Migration) ID() MigrationID {
	return MigrationID(fmt.Sprintf("%s.%s", m.AppLabel, m.Name))
}

// Node is one entry of an ordered migration plan.
type Node struct {
	Migration Migration
	Direction Direction

	// Applied reports whether the executor's history already contains this
	// migration.
	Applied bool

	// Stage is the resolved stage, filled in by Resolver.ResolvePlan.
	Stage schema.Stage
}

// ID returns the underlying migration's identity.
func (n Node) ID() MigrationID { return n.Migration.ID() }
