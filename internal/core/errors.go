// SPDX-License-Identifier: Apache-2.0

package core

import "github.com/joomcode/errorx"

var (
	ErrNamespace = errorx.NewNamespace("solo-stager")

	// UnrecognizedKind is raised when the classifier encounters an operation
	// kind outside its known table. Never retried; the migration author must
	// annotate the operation with an explicit stage.
	UnrecognizedKind = ErrNamespace.NewType("unrecognized_operation_kind")

	// AmbiguousStage is raised when a migration's operations infer conflicting
	// stages and no override resolves them.
	AmbiguousStage = ErrNamespace.NewType("ambiguous_stage")

	// AmbiguousPlan is raised when a requested phase cannot be honored
	// without violating dependency ordering.
	AmbiguousPlan = ErrNamespace.NewType("ambiguous_plan")

	// QuorumTimeout is raised locally when a waiter did not observe release
	// within its timeout. Shared state is left consistent for a retry.
	QuorumTimeout = ErrNamespace.NewType("quorum_timeout", errorx.Timeout())

	// QuorumBackendError covers a misconfigured or unreachable counter store.
	QuorumBackendError = ErrNamespace.NewType("quorum_backend_error")

	// ApplyFailure wraps an error returned by the delegated migration
	// executor while the claimant was applying the shared plan.
	ApplyFailure = ErrNamespace.NewType("apply_failure")
)
