// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"context"

	"github.com/rs/zerolog"
)

// Executor applies a filtered plan against the database. The real
// implementation lives with the migration tooling that owns DDL generation
// and applied-migration history; stager only sequences and gates the calls.
type Executor interface {
	// Apply runs the given nodes in order. Reverted migrations (backward
	// direction) apply their operations in reverse.
	Apply(ctx context.Context, nodes []Node) error
}

// LogExecutor is a stand-in Executor that records what would be applied.
// Used for dry runs and as the default until a real executor is wired in.
type LogExecutor struct {
	logger *zerolog.Logger
}

// NewLogExecutor creates an executor that only logs.
func NewLogExecutor(logger *zerolog.Logger) *LogExecutor {
	return &LogExecutor{logger: logger}
}

func (e *LogExecutor) Apply(ctx context.Context, nodes []Node) error {
	for _, node := range nodes {
		ops := node.Migration.Operations
		if node.Direction == DirectionBackward {
			ops = reversed(ops)
		}
		for _, op := range ops {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.logger.Info().
				Str("migration", string(node.ID())).
				Str("direction", string(node.Direction)).
				Str("stage", node.Stage.String()).
				Msg(op.Describe())
		}
	}
	return nil
}

func reversed[T any](s []T) []T {
	out := make([]T, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}
