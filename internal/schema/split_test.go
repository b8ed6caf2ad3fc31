// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stagesOf classifies each operation of a split result.
func stagesOf(t *testing.T, ops []Operation) []Stage {
	t.Helper()
	stages := make([]Stage, 0, len(ops))
	for _, op := range ops {
		stage, err := Classify(op)
		require.NoError(t, err)
		stages = append(stages, stage)
	}
	return stages
}

func TestSplit_AddFieldWithDefaultOnNonNullColumn(t *testing.T) {
	op := Operation{
		Kind:  KindAddField,
		Model: "order",
		Name:  "total",
		Field: &Field{Nullable: false, HasDefault: true, Default: "0"},
	}

	split, err := Split(op)
	require.NoError(t, err)
	require.Len(t, split, 2)
	assert.Equal(t, []Stage{StagePreDeploy, StagePostDeploy}, stagesOf(t, split))

	// First half adds the column keeping its database DEFAULT, second half
	// drops the DEFAULT once every writer knows the field.
	assert.Equal(t, KindAddField, split[0].Kind)
	assert.False(t, split[0].DependsOnPrevious)
	assert.Equal(t, KindAlterField, split[1].Kind)
	assert.True(t, split[1].DependsOnPrevious)
	assert.Equal(t, "drop_db_default_order_total", split[1].Fragment)
	assert.Equal(t, "Drop database DEFAULT of field total on order", split[1].Describe())

	// Input operation is never mutated.
	assert.Empty(t, op.ExplicitStage)
}

func TestSplit_NullableAdditionIsNotSplit(t *testing.T) {
	op := Operation{
		Kind:  KindAddField,
		Model: "order",
		Name:  "note",
		Field: &Field{Nullable: true},
	}

	split, err := Split(op)
	require.NoError(t, err)
	require.Len(t, split, 1)
	assert.Equal(t, []Stage{StagePreDeploy}, stagesOf(t, split))
}

func TestSplit_RemoveFieldWithDefault(t *testing.T) {
	op := Operation{
		Kind:  KindRemoveField,
		Model: "order",
		Name:  "legacy",
		Field: &Field{Nullable: false, HasDefault: true, Default: "''"},
	}

	split, err := Split(op)
	require.NoError(t, err)
	require.Len(t, split, 2)
	assert.Equal(t, []Stage{StagePreDeploy, StagePostDeploy}, stagesOf(t, split))

	assert.Equal(t, "set_db_default_order_legacy", split[0].Fragment)
	assert.Equal(t, "Set database DEFAULT of field legacy on order", split[0].Describe())
	assert.Equal(t, KindRemoveField, split[1].Kind)
	assert.True(t, split[1].DependsOnPrevious)
}

func TestSplit_RemoveFieldWithoutDefault(t *testing.T) {
	op := Operation{
		Kind:  KindRemoveField,
		Model: "order",
		Name:  "legacy",
		Field: &Field{Nullable: false},
	}

	split, err := Split(op)
	require.NoError(t, err)
	require.Len(t, split, 2)
	assert.Equal(t, []Stage{StagePreDeploy, StagePostDeploy}, stagesOf(t, split))
	assert.Equal(t, "set_nullable_order_legacy", split[0].Fragment)
	assert.Equal(t, "Set field legacy of order NULLable", split[0].Describe())
}

func TestSplit_NullableRemovalIsNotSplit(t *testing.T) {
	op := Operation{
		Kind:  KindRemoveField,
		Model: "order",
		Name:  "note",
		Field: &Field{Nullable: true},
	}

	split, err := Split(op)
	require.NoError(t, err)
	require.Len(t, split, 1)
	assert.Equal(t, []Stage{StagePostDeploy}, stagesOf(t, split))
}

func TestSplit_ManyToManyNeverSplit(t *testing.T) {
	add := Operation{Kind: KindAddManyToMany, Model: "order", Name: "tags"}
	remove := Operation{Kind: KindRemoveManyToMany, Model: "order", Name: "tags"}

	split, err := Split(add)
	require.NoError(t, err)
	require.Len(t, split, 1)
	assert.Equal(t, []Stage{StagePreDeploy}, stagesOf(t, split))

	split, err = Split(remove)
	require.NoError(t, err)
	require.Len(t, split, 1)
	assert.Equal(t, []Stage{StagePostDeploy}, stagesOf(t, split))
}

func TestSplit_Idempotent(t *testing.T) {
	op := Operation{
		Kind:  KindAddField,
		Model: "order",
		Name:  "total",
		Field: &Field{Nullable: false, HasDefault: true, Default: "0"},
	}

	first, err := Split(op)
	require.NoError(t, err)
	require.Len(t, first, 2)

	// Re-splitting the produced halves is a no-op.
	for _, half := range first {
		again, err := Split(half)
		require.NoError(t, err)
		require.Len(t, again, 1)
		assert.Equal(t, half, again[0])
	}
}

func TestSplit_UnknownKindSurfacesClassifierError(t *testing.T) {
	_, err := Split(Operation{Kind: Kind("rename_universe"), Model: "order"})
	require.Error(t, err)
}

func TestSplitAll(t *testing.T) {
	ops := []Operation{
		{Kind: KindAddField, Model: "order", Name: "total", Field: &Field{HasDefault: true, Default: "0"}},
		{Kind: KindAddManyToMany, Model: "order", Name: "tags"},
	}

	out, err := SplitAll(ops)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []Stage{StagePreDeploy, StagePostDeploy, StagePreDeploy}, stagesOf(t, out))
}
