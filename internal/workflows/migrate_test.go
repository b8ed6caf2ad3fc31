// SPDX-License-Identifier: Apache-2.0

package workflows

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/automa-saga/automa"
	"github.com/joomcode/errorx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashgraph/solo-stager/internal/config"
	"github.com/hashgraph/solo-stager/internal/core"
	"github.com/hashgraph/solo-stager/internal/plan"
	"github.com/hashgraph/solo-stager/internal/quorum"
	"github.com/hashgraph/solo-stager/internal/state"
)

const testPlan = `
migrations:
  - app: shop
    name: 0001_initial
    applied: true
  - app: shop
    name: 0002_add_total
    dependencies:
      - shop.0001_initial
    operations:
      - kind: add_field
        model: order
        name: total
        field:
          nullable: true
  - app: shop
    name: 0003_cleanup
    stage: post-deploy
    dependencies:
      - shop.0002_add_total
    operations:
      - kind: remove_field
        model: order
        name: legacy
        field:
          nullable: true
`

func writePlan(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig() config.Config {
	return config.Config{
		Stages: config.StagesConfig{
			ThirdPartyFallback: "pre-deploy",
			OwnedApps:          []string{"shop"},
		},
		Quorum: config.QuorumConfig{
			Backend:         config.QuorumBackendMemory,
			Timeout:         2 * time.Second,
			TTL:             time.Hour,
			PollInterval:    5 * time.Millisecond,
			MaxPollInterval: 20 * time.Millisecond,
		},
	}
}

// countingExecutor records applied nodes.
type countingExecutor struct {
	applied []plan.Node
}

func (e *countingExecutor) Apply(ctx context.Context, nodes []plan.Node) error {
	e.applied = append(e.applied, nodes...)
	return nil
}

func runWorkflow(t *testing.T, b *automa.WorkflowBuilder) *automa.Report {
	t.Helper()
	wf, err := b.Build()
	require.NoError(t, err)
	return wf.Execute(context.Background())
}

func TestMigrateWorkflow_PreDeployPhase(t *testing.T) {
	dir := t.TempDir()
	planPath := writePlan(t, dir, testPlan)
	executor := &countingExecutor{}
	history := state.NewManager(state.WithHistoryFile(filepath.Join(dir, "rounds.yaml")))

	opts := MigrateOptions{
		PlanPath: planPath,
		Phase:    plan.PhasePreDeploy,
		Target:   1,
		LockPath: filepath.Join(dir, "stager.lock"),
	}
	report := runWorkflow(t, NewMigrateWorkflow(testConfig(), opts, quorum.NewMemoryBackend(), executor, history))
	require.NoError(t, report.Error)

	// Only the unapplied pre-deploy migration is selected.
	require.Len(t, executor.applied, 1)
	assert.Equal(t, plan.MigrationID("shop.0002_add_total"), executor.applied[0].ID())

	rounds, err := history.List()
	require.NoError(t, err)
	require.Len(t, rounds, 1)
	assert.Equal(t, string(plan.PhasePreDeploy), rounds[0].Phase)
	assert.Equal(t, []string{"shop.0002_add_total"}, rounds[0].Migrations)
	assert.Equal(t, state.OutcomeReleased, rounds[0].Outcome)
}

func TestMigrateWorkflow_PostDeployPhase(t *testing.T) {
	dir := t.TempDir()
	planPath := writePlan(t, dir, testPlan)
	executor := &countingExecutor{}
	history := state.NewManager(state.WithHistoryFile(filepath.Join(dir, "rounds.yaml")))

	opts := MigrateOptions{
		PlanPath: planPath,
		Phase:    plan.PhasePostDeploy,
		Target:   1,
		LockPath: filepath.Join(dir, "stager.lock"),
	}
	report := runWorkflow(t, NewMigrateWorkflow(testConfig(), opts, quorum.NewMemoryBackend(), executor, history))
	require.NoError(t, report.Error)

	require.Len(t, executor.applied, 2)
	assert.Equal(t, plan.MigrationID("shop.0002_add_total"), executor.applied[0].ID())
	assert.Equal(t, plan.MigrationID("shop.0003_cleanup"), executor.applied[1].ID())
}

func TestMigrateWorkflow_MissingPlanFails(t *testing.T) {
	dir := t.TempDir()
	executor := &countingExecutor{}
	history := state.NewManager(state.WithHistoryFile(filepath.Join(dir, "rounds.yaml")))

	opts := MigrateOptions{
		PlanPath: filepath.Join(dir, "nope.yaml"),
		Phase:    plan.PhasePreDeploy,
		Target:   1,
		LockPath: filepath.Join(dir, "stager.lock"),
	}
	report := runWorkflow(t, NewMigrateWorkflow(testConfig(), opts, quorum.NewMemoryBackend(), executor, history))
	require.Error(t, report.Error)
	assert.Empty(t, executor.applied)
}

func TestMigrateWorkflow_AmbiguousPlanFails(t *testing.T) {
	// The pre-deploy addition depends on an unapplied post-deploy cleanup.
	ambiguous := `
migrations:
  - app: shop
    name: 0001_cleanup
    stage: post-deploy
    operations:
      - kind: remove_field
        model: order
        name: legacy
        field:
          nullable: true
  - app: shop
    name: 0002_add_total
    dependencies:
      - shop.0001_cleanup
    operations:
      - kind: add_field
        model: order
        name: total
        field:
          nullable: true
`
	dir := t.TempDir()
	planPath := writePlan(t, dir, ambiguous)
	executor := &countingExecutor{}
	history := state.NewManager(state.WithHistoryFile(filepath.Join(dir, "rounds.yaml")))

	opts := MigrateOptions{
		PlanPath: planPath,
		Phase:    plan.PhasePreDeploy,
		Target:   1,
		LockPath: filepath.Join(dir, "stager.lock"),
	}
	report := runWorkflow(t, NewMigrateWorkflow(testConfig(), opts, quorum.NewMemoryBackend(), executor, history))
	require.Error(t, report.Error)
	assert.True(t, errorx.IsOfType(report.Error, core.AmbiguousPlan))
	assert.Empty(t, executor.applied)
}

func TestMigrateWorkflow_EmptySelectionSkipsQuorum(t *testing.T) {
	applied := `
migrations:
  - app: shop
    name: 0001_initial
    applied: true
`
	dir := t.TempDir()
	planPath := writePlan(t, dir, applied)
	executor := &countingExecutor{}
	history := state.NewManager(state.WithHistoryFile(filepath.Join(dir, "rounds.yaml")))

	opts := MigrateOptions{
		PlanPath: planPath,
		Phase:    plan.PhasePreDeploy,
		// Nobody else will arrive; an empty selection must not block on
		// the barrier.
		Target:   3,
		LockPath: filepath.Join(dir, "stager.lock"),
	}
	report := runWorkflow(t, NewMigrateWorkflow(testConfig(), opts, quorum.NewMemoryBackend(), executor, history))
	require.NoError(t, report.Error)
	assert.Empty(t, executor.applied)

	rounds, err := history.List()
	require.NoError(t, err)
	assert.Empty(t, rounds)
}

func TestCheckWorkflow(t *testing.T) {
	dir := t.TempDir()
	planPath := writePlan(t, dir, testPlan)

	wb, st := NewCheckWorkflow(testConfig(), planPath)
	report := runWorkflow(t, wb)
	require.NoError(t, report.Error)

	require.Len(t, st.Nodes, 1)
	assert.Equal(t, plan.MigrationID("shop.0002_add_total"), st.Nodes[0].ID())
	assert.NotEmpty(t, st.Fingerprint)
}
