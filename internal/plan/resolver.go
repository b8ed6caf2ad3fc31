// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hashgraph/solo-stager/internal/core"
	"github.com/hashgraph/solo-stager/internal/schema"
)

// Resolver determines the single deployment stage of a migration.
//
// Resolution precedence is fixed and must not be reordered: configured
// per-migration override, then the migration's own explicit stage, then
// operation inference, then the configured fallback for migrations the
// caller does not own. Only when all of those are exhausted does ambiguity
// become an error.
type Resolver struct {
	logger             *zerolog.Logger
	overrides          map[MigrationID]schema.Stage
	fallback           map[string]schema.Stage
	thirdPartyFallback schema.Stage
	ownedApps          map[string]struct{}
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the logger for the resolver.
func WithLogger(logger *zerolog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithStageOverrides forces a stage for named migrations, bypassing
// inspection entirely.
func WithStageOverrides(overrides map[MigrationID]schema.Stage) ResolverOption {
	return func(r *Resolver) {
		for id, stage := range overrides {
			r.overrides[id] = stage
		}
	}
}

// WithStageFallback substitutes a stage for migrations of the given app
// labels, but only when inference is ambiguous.
func WithStageFallback(fallback map[string]schema.Stage) ResolverOption {
	return func(r *Resolver) {
		for label, stage := range fallback {
			r.fallback[label] = stage
		}
	}
}

// WithThirdPartyFallback sets the stage substituted on ambiguity for
// migrations whose app label is not owned. Pass the empty stage to disable,
// making ambiguity an error for third-party migrations too.
func WithThirdPartyFallback(stage schema.Stage) ResolverOption {
	return func(r *Resolver) {
		r.thirdPartyFallback = stage
	}
}

// WithOwnedApps declares which app labels belong to the caller's own
// project. Ownership is supplied explicitly, never sniffed from the
// environment.
func WithOwnedApps(labels []string) ResolverOption {
	return func(r *Resolver) {
		for _, label := range labels {
			r.ownedApps[label] = struct{}{}
		}
	}
}

// NewResolver creates a resolver with the given options. By default no
// overrides are configured and third-party ambiguity falls back to
// pre-deploy.
func NewResolver(opts ...ResolverOption) *Resolver {
	nop := zerolog.Nop()
	r := &Resolver{
		logger:             &nop,
		overrides:          make(map[MigrationID]schema.Stage),
		fallback:           make(map[string]schema.Stage),
		thirdPartyFallback: schema.StagePreDeploy,
		ownedApps:          make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns the stage of a migration for the given direction.
//
// The ambiguity determination is always made on the forward operation set so
// diagnostics stay stable; a backward direction only inverts the result.
func (r *Resolver) Resolve(m Migration, direction Direction) (schema.Stage, error) {
	stage, err := r.resolveForward(m)
	if err != nil {
		return "", err
	}
	if direction == DirectionBackward {
		stage = stage.Invert()
	}
	return stage, nil
}

func (r *Resolver) resolveForward(m Migration) (schema.Stage, error) {
	if stage, ok := r.overrides[m.ID()]; ok {
		r.logger.Debug().
			Str("migration", string(m.ID())).
			Str("stage", stage.String()).
			Msg("Stage forced by configured override")
		return stage, nil
	}

	if m.ExplicitStage != "" {
		return m.ExplicitStage, nil
	}

	return r.inferStage(m)
}

// inferStage classifies every operation after splitting and requires them to
// agree on a single stage.
func (r *Resolver) inferStage(m Migration) (schema.Stage, error) {
	ops, err := schema.SplitAll(m.Operations)
	if err != nil {
		return "", err
	}

	// No operations implies no hazard.
	if len(ops) == 0 {
		return schema.StagePreDeploy, nil
	}

	var stage schema.Stage
	var conflict bool
	stages := make([]schema.Stage, 0, len(ops))
	for _, op := range ops {
		opStage, err := schema.Classify(op)
		if err != nil {
			return "", err
		}
		stages = append(stages, opStage)
		if stage == "" {
			stage = opStage
		} else if opStage != stage {
			conflict = true
		}
	}

	if !conflict {
		return stage, nil
	}

	if fallbackStage, ok := r.fallbackFor(m.AppLabel); ok {
		r.logger.Warn().
			Str("migration", string(m.ID())).
			Str("stage", fallbackStage.String()).
			Msg("Migration stage is ambiguous, using configured fallback")
		return fallbackStage, nil
	}

	return "", core.AmbiguousStage.New(
		"cannot determine stage of migration %s:\n%s", m.ID(), describeConflict(ops, stages))
}

func (r *Resolver) fallbackFor(appLabel string) (schema.Stage, bool) {
	if stage, ok := r.fallback[appLabel]; ok {
		return stage, true
	}
	if _, owned := r.ownedApps[appLabel]; !owned && r.thirdPartyFallback != "" {
		return r.thirdPartyFallback, true
	}
	return "", false
}

func describeConflict(ops []schema.Operation, stages []schema.Stage) string {
	lines := make([]string, 0, len(ops))
	for i, op := range ops {
		lines = append(lines, fmt.Sprintf("  - %s (%s)", op.Describe(), stages[i]))
	}
	return strings.Join(lines, "\n")
}

// ResolvePlan resolves every node of a plan in place.
func (r *Resolver) ResolvePlan(p *Plan) error {
	for i := range p.Nodes {
		stage, err := r.Resolve(p.Nodes[i].Migration, p.Nodes[i].Direction)
		if err != nil {
			return err
		}
		p.Nodes[i].Stage = stage
	}
	return nil
}
