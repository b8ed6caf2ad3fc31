// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"testing"

	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashgraph/solo-stager/internal/core"
	"github.com/hashgraph/solo-stager/internal/schema"
)

func addField(model, name string) schema.Operation {
	return schema.Operation{Kind: schema.KindAddField, Model: model, Name: name}
}

func removeField(model, name string) schema.Operation {
	return schema.Operation{
		Kind:  schema.KindRemoveField,
		Model: model,
		Name:  name,
		Field: &schema.Field{Nullable: true},
	}
}

// ownedResolver resolves with "shop" as a first-party app and no fallback,
// so ambiguity is always an error.
func ownedResolver(opts ...ResolverOption) *Resolver {
	base := []ResolverOption{
		WithOwnedApps([]string{"shop"}),
		WithThirdPartyFallback(""),
	}
	return NewResolver(append(base, opts...)...)
}

func TestResolver_ExplicitStageWins(t *testing.T) {
	// Operations alone would be ambiguous; the migration-level stage
	// bypasses inspection entirely.
	m := Migration{
		AppLabel:      "shop",
		Name:          "0002_cleanup",
		ExplicitStage: schema.StagePostDeploy,
		Operations: []schema.Operation{
			addField("order", "total"),
			removeField("order", "legacy"),
		},
	}

	stage, err := ownedResolver().Resolve(m, DirectionForward)
	require.NoError(t, err)
	assert.Equal(t, schema.StagePostDeploy, stage)
}

func TestResolver_ConfiguredOverrideWinsOverExplicitStage(t *testing.T) {
	m := Migration{
		AppLabel:      "shop",
		Name:          "0002_cleanup",
		ExplicitStage: schema.StagePostDeploy,
	}

	r := ownedResolver(WithStageOverrides(map[MigrationID]schema.Stage{
		"shop.0002_cleanup": schema.StagePreDeploy,
	}))

	stage, err := r.Resolve(m, DirectionForward)
	require.NoError(t, err)
	assert.Equal(t, schema.StagePreDeploy, stage)
}

func TestResolver_InfersFromOperations(t *testing.T) {
	tests := []struct {
		name        string
		operations  []schema.Operation
		expectStage schema.Stage
	}{
		{
			name:        "no operations implies no hazard",
			operations:  nil,
			expectStage: schema.StagePreDeploy,
		},
		{
			name:        "additive operations",
			operations:  []schema.Operation{addField("order", "total"), addField("order", "note")},
			expectStage: schema.StagePreDeploy,
		},
		{
			name:        "destructive operations",
			operations:  []schema.Operation{removeField("order", "legacy"), removeField("order", "note")},
			expectStage: schema.StagePostDeploy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Migration{AppLabel: "shop", Name: "0001_initial", Operations: tt.operations}

			stage, err := ownedResolver().Resolve(m, DirectionForward)
			require.NoError(t, err)
			assert.Equal(t, tt.expectStage, stage)
		})
	}
}

func TestResolver_AmbiguousOperations(t *testing.T) {
	m := Migration{
		AppLabel: "shop",
		Name:     "0003_mixed",
		Operations: []schema.Operation{
			addField("order", "total"),
			removeField("order", "legacy"),
		},
	}

	_, err := ownedResolver().Resolve(m, DirectionForward)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, core.AmbiguousStage))

	// Both conflicting operations are named with their inferred stages.
	assert.Contains(t, err.Error(), "shop.0003_mixed")
	assert.Contains(t, err.Error(), "Add field total to order (pre-deploy)")
	assert.Contains(t, err.Error(), "Remove field legacy from order (post-deploy)")
}

func TestResolver_FallbackOnlyAppliesToAmbiguity(t *testing.T) {
	r := ownedResolver(WithStageFallback(map[string]schema.Stage{
		"shop": schema.StagePostDeploy,
	}))

	// Unambiguous migrations keep their inferred stage.
	unambiguous := Migration{
		AppLabel:   "shop",
		Name:       "0001_initial",
		Operations: []schema.Operation{addField("order", "total")},
	}
	stage, err := r.Resolve(unambiguous, DirectionForward)
	require.NoError(t, err)
	assert.Equal(t, schema.StagePreDeploy, stage)

	// Ambiguous migrations take the fallback instead of failing.
	ambiguous := Migration{
		AppLabel: "shop",
		Name:     "0003_mixed",
		Operations: []schema.Operation{
			addField("order", "total"),
			removeField("order", "legacy"),
		},
	}
	stage, err = r.Resolve(ambiguous, DirectionForward)
	require.NoError(t, err)
	assert.Equal(t, schema.StagePostDeploy, stage)
}

func TestResolver_ThirdPartyFallback(t *testing.T) {
	ambiguous := Migration{
		AppLabel: "vendored",
		Name:     "0007_mixed",
		Operations: []schema.Operation{
			addField("thing", "a"),
			removeField("thing", "b"),
		},
	}

	t.Run("applies to apps the caller does not own", func(t *testing.T) {
		r := NewResolver(
			WithOwnedApps([]string{"shop"}),
			WithThirdPartyFallback(schema.StagePreDeploy),
		)
		stage, err := r.Resolve(ambiguous, DirectionForward)
		require.NoError(t, err)
		assert.Equal(t, schema.StagePreDeploy, stage)
	})

	t.Run("never applies to owned apps", func(t *testing.T) {
		r := NewResolver(
			WithOwnedApps([]string{"vendored"}),
			WithThirdPartyFallback(schema.StagePreDeploy),
		)
		_, err := r.Resolve(ambiguous, DirectionForward)
		require.Error(t, err)
		assert.True(t, errorx.IsOfType(err, core.AmbiguousStage))
	})

	t.Run("disabled means ambiguity still fails", func(t *testing.T) {
		r := NewResolver(
			WithOwnedApps([]string{"shop"}),
			WithThirdPartyFallback(""),
		)
		_, err := r.Resolve(ambiguous, DirectionForward)
		require.Error(t, err)
		assert.True(t, errorx.IsOfType(err, core.AmbiguousStage))
	})
}

func TestResolver_BackwardInvertsStage(t *testing.T) {
	pre := Migration{
		AppLabel:   "shop",
		Name:       "0001_initial",
		Operations: []schema.Operation{addField("order", "total")},
	}
	post := Migration{
		AppLabel:   "shop",
		Name:       "0002_cleanup",
		Operations: []schema.Operation{removeField("order", "legacy")},
	}

	r := ownedResolver()

	stage, err := r.Resolve(pre, DirectionBackward)
	require.NoError(t, err)
	assert.Equal(t, schema.StagePostDeploy, stage)

	stage, err = r.Resolve(post, DirectionBackward)
	require.NoError(t, err)
	assert.Equal(t, schema.StagePreDeploy, stage)
}

func TestResolver_SplitsBeforeClassifying(t *testing.T) {
	// A lone non-nullable default addition splits into a pre/post pair, so
	// inference on the migration as authored is ambiguous.
	m := Migration{
		AppLabel: "shop",
		Name:     "0004_total",
		Operations: []schema.Operation{
			{
				Kind:  schema.KindAddField,
				Model: "order",
				Name:  "total",
				Field: &schema.Field{Nullable: false, HasDefault: true, Default: "0"},
			},
		},
	}

	_, err := ownedResolver().Resolve(m, DirectionForward)
	require.Error(t, err)
	assert.True(t, errorx.IsOfType(err, core.AmbiguousStage))
}

func TestResolver_ResolvePlan(t *testing.T) {
	p := &Plan{Nodes: []Node{
		{Migration: Migration{AppLabel: "shop", Name: "0001_initial", Operations: []schema.Operation{addField("order", "total")}}, Direction: DirectionForward},
		{Migration: Migration{AppLabel: "shop", Name: "0002_cleanup", Operations: []schema.Operation{removeField("order", "legacy")}}, Direction: DirectionForward},
	}}

	require.NoError(t, ownedResolver().ResolvePlan(p))
	assert.Equal(t, schema.StagePreDeploy, p.Nodes[0].Stage)
	assert.Equal(t, schema.StagePostDeploy, p.Nodes[1].Stage)
}
