// SPDX-License-Identifier: Apache-2.0

// Package schema models individual schema-change operations and decides how
// they interact with rolling deployments.
//
// Every operation is assigned a Stage: PRE_DEPLOY operations are safe to run
// while the previous application version is still serving traffic, and
// POST_DEPLOY operations must wait until no old writer remains. Operations
// that are unsafe to run in a single stage are rewritten by Split into an
// ordered pre/post pair.
package schema

import (
	"fmt"

	"github.com/hashgraph/solo-stager/internal/core"
	"github.com/joomcode/errorx"
)

// Stage identifies when an operation or migration must run relative to the
// application code rollout.
type Stage string

const (
	// StagePreDeploy runs before the new application code is deployed.
	StagePreDeploy Stage = "pre-deploy"
	// StagePostDeploy runs after every deployment agent has finished.
	StagePostDeploy Stage = "post-deploy"
)

// ParseStage converts a configuration string into a Stage.
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StagePreDeploy, StagePostDeploy:
		return Stage(s), nil
	}
	return "", errorx.IllegalArgument.New("unknown stage %q, expected %q or %q", s, StagePreDeploy, StagePostDeploy)
}

// Invert flips the stage, used when a migration is reverted.
func (s Stage) Invert() Stage {
	if s == StagePreDeploy {
		return StagePostDeploy
	}
	return StagePreDeploy
}

func (s Stage) String() string { return string(s) }

// Kind enumerates the operation kinds the classifier knows about.
type Kind string

const (
	// KindAddField adds a column to a table.
	KindAddField Kind = "add_field"
	// KindRemoveField drops a column from a table.
	KindRemoveField Kind = "remove_field"
	// KindAlterField changes a column in place.
	KindAlterField Kind = "alter_field"
	// KindAddManyToMany creates an auxiliary association table.
	KindAddManyToMany Kind = "add_many_to_many"
	// KindRemoveManyToMany drops an auxiliary association table.
	KindRemoveManyToMany Kind = "remove_many_to_many"
	// KindRunRaw executes caller-provided SQL or data migration code. Raw
	// operations carry no schema metadata, so staging them requires either an
	// explicit stage or the Safe marker.
	KindRunRaw Kind = "run_raw"
	// KindOther covers operations with no known write-compatibility hazard,
	// such as model creation or index changes.
	KindOther Kind = "other"
)

// Field carries the column metadata the splitter needs to reason about
// write compatibility. Default is opaque to this package; only its presence
// matters.
type Field struct {
	Nullable   bool   `yaml:"nullable"`
	HasDefault bool   `yaml:"hasDefault"`
	Default    string `yaml:"default,omitempty"`
}

// Operation is a single schema change. Values are immutable once
// constructed; Split produces new Operation values and never mutates its
// input.
type Operation struct {
	Kind  Kind   `yaml:"kind"`
	Model string `yaml:"model"`
	Name  string `yaml:"name,omitempty"`
	Field *Field `yaml:"field,omitempty"`

	// ExplicitStage overrides classification entirely when set.
	ExplicitStage Stage `yaml:"stage,omitempty"`

	// Safe marks a raw operation as having no write-compatibility hazard,
	// staging it pre-deploy without an explicit stage.
	Safe bool `yaml:"safe,omitempty"`

	// Reversible reports whether the executor can undo this operation.
	Reversible bool `yaml:"reversible,omitempty"`

	// DependsOnPrevious marks the second half of a split pair: it must not
	// be applied until the first half has been.
	DependsOnPrevious bool `yaml:"dependsOnPrevious,omitempty"`

	// Fragment is a short machine-friendly name for generated operations,
	// e.g. "set_db_default_order_total".
	Fragment string `yaml:"fragment,omitempty"`

	description string
}

// Describe returns a human readable summary of the operation.
func (op Operation) Describe() string {
	if op.description != "" {
		return op.description
	}
	switch op.Kind {
	case KindAddField:
		return fmt.Sprintf("Add field %s to %s", op.Name, op.Model)
	case KindRemoveField:
		return fmt.Sprintf("Remove field %s from %s", op.Name, op.Model)
	case KindAlterField:
		return fmt.Sprintf("Alter field %s on %s", op.Name, op.Model)
	case KindAddManyToMany:
		return fmt.Sprintf("Add many-to-many field %s to %s", op.Name, op.Model)
	case KindRemoveManyToMany:
		return fmt.Sprintf("Remove many-to-many field %s from %s", op.Name, op.Model)
	case KindRunRaw:
		return fmt.Sprintf("Run raw operation on %s", op.Model)
	default:
		return fmt.Sprintf("Apply %s on %s", op.Kind, op.Model)
	}
}

func (op Operation) withDescription(fragment, description string) Operation {
	op.Fragment = fragment
	op.description = description
	return op
}

// Classify returns the Stage of a single operation.
//
// An explicit stage wins unconditionally. Otherwise additive kinds are
// staged pre-deploy and destructive kinds post-deploy. Raw operations
// without an explicit stage or the Safe marker fail fast: silently
// misclassifying them is how production outages happen.
func Classify(op Operation) (Stage, error) {
	if op.ExplicitStage != "" {
		return op.ExplicitStage, nil
	}
	switch op.Kind {
	case KindAddField, KindAddManyToMany, KindAlterField, KindOther:
		return StagePreDeploy, nil
	case KindRemoveField, KindRemoveManyToMany:
		return StagePostDeploy, nil
	case KindRunRaw:
		if op.Safe {
			return StagePreDeploy, nil
		}
		return "", core.AmbiguousStage.New(
			"raw operation on %q carries no schema metadata; mark it safe or assign an explicit stage", op.Model)
	default:
		return "", core.UnrecognizedKind.New("operation kind %q is not in the classification table", op.Kind)
	}
}
