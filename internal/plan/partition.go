// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/hashgraph/solo-stager/internal/core"
	"github.com/hashgraph/solo-stager/internal/schema"
)

// Phase selects which part of a plan to apply.
type Phase string

const (
	// PhasePreDeploy applies only pre-deploy migrations.
	PhasePreDeploy Phase = "pre-deploy"
	// PhasePostDeploy applies everything still unapplied, run after the
	// code rollout.
	PhasePostDeploy Phase = "post-deploy"
)

// Plan is an ordered sequence of migrations with dependency edges, as
// produced by the executor's topological sort. Consumed read-only; Partition
// returns a new slice and never reorders nodes.
type Plan struct {
	Nodes []Node
}

// node lookup by migration identity.
func (p *Plan) index() map[MigrationID]*Node {
	byID := make(map[MigrationID]*Node, len(p.Nodes))
	for i := range p.Nodes {
		byID[p.Nodes[i].ID()] = &p.Nodes[i]
	}
	return byID
}

// Partition computes the subset of the plan to apply during the given
// phase. Every node must have been resolved first (see
// Resolver.ResolvePlan).
//
// For the pre-deploy phase it selects every unapplied pre-deploy node and
// verifies that none of them depends on an unapplied post-deploy node: such
// a dependency cannot be satisfied before the rollout and the plan must be
// restructured or overridden. The first offending edge in plan order is
// reported. For the post-deploy phase all unapplied nodes are selected in
// their given order.
func (p *Plan) Partition(phase Phase) ([]Node, error) {
	byID := p.index()

	selected := make([]Node, 0, len(p.Nodes))
	for _, node := range p.Nodes {
		if node.Applied {
			continue
		}
		if node.Stage == "" {
			return nil, core.AmbiguousPlan.New("migration %s has no resolved stage", node.ID())
		}

		if phase != PhasePreDeploy {
			selected = append(selected, node)
			continue
		}
		if node.Stage != schema.StagePreDeploy {
			continue
		}

		// A pre-deploy node may never depend on an unapplied post-deploy
		// node: the latter will not run until after the rollout.
		for _, dep := range node.Migration.Dependencies {
			u, ok := byID[dep]
			if !ok || u.Applied {
				continue
			}
			if u.Stage == schema.StagePostDeploy {
				return nil, core.AmbiguousPlan.New(
					"pre-deploy migration %s depends on unapplied post-deploy migration %s; "+
						"stage %s explicitly or restructure the migrations",
					node.ID(), u.ID(), u.ID())
			}
		}
		selected = append(selected, node)
	}

	return selected, nil
}

// Fingerprint returns a stable identity for a filtered, directional plan.
// Concurrent deployment agents use it to correlate quorum rounds: two agents
// carrying the same migrations in the same order and direction for the same
// phase compute the same fingerprint.
func Fingerprint(nodes []Node, phase Phase) string {
	h := sha256.New()
	_, _ = fmt.Fprintf(h, "phase=%s\n", phase)
	for _, node := range nodes {
		_, _ = fmt.Fprintf(h, "%s:%s\n", node.ID(), node.Direction)
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}
