// SPDX-License-Identifier: Apache-2.0

package schema

import "fmt"

// Split rewrites an operation that is unsafe to run in a single stage into
// an ordered pre-deploy/post-deploy pair. Safe operations are returned
// unchanged as a single-element slice.
//
// Split is idempotent: operations that already carry an explicit stage
// (including the halves it produces) pass through untouched.
func Split(op Operation) ([]Operation, error) {
	if op.ExplicitStage != "" {
		return []Operation{op}, nil
	}

	switch op.Kind {
	case KindAddField:
		return splitAddField(op), nil
	case KindRemoveField:
		return splitRemoveField(op), nil
	case KindAddManyToMany, KindRemoveManyToMany:
		// Association tables are not touched by either version's row-level
		// INSERT/UPDATE paths, so a single stage always suffices.
		return []Operation{op}, nil
	default:
		if _, err := Classify(op); err != nil {
			return nil, err
		}
		return []Operation{op}, nil
	}
}

// SplitAll splits every operation of a migration in order, flattening the
// result.
func SplitAll(ops []Operation) ([]Operation, error) {
	out := make([]Operation, 0, len(ops))
	for _, op := range ops {
		split, err := Split(op)
		if err != nil {
			return nil, err
		}
		out = append(out, split...)
	}
	return out, nil
}

// splitAddField handles column addition. Adding a non-nullable column with a
// default is unsafe in one step: the new code expects the database to reject
// missing values, but the old code still INSERTs without the column during
// the deployment window. Keeping a database-level DEFAULT through the window
// and dropping it afterward restores strictness once every writer knows the
// field.
func splitAddField(op Operation) []Operation {
	if op.Field == nil || op.Field.Nullable || !op.Field.HasDefault {
		// A nullable or default-free column poses no write-compatibility
		// hazard for old writers.
		return []Operation{op}
	}

	add := op
	add.ExplicitStage = StagePreDeploy
	add = add.withDescription(
		fmt.Sprintf("add_%s_%s", op.Model, op.Name),
		fmt.Sprintf("Add field %s to %s keeping its database DEFAULT", op.Name, op.Model),
	)

	drop := Operation{
		Kind:              KindAlterField,
		Model:             op.Model,
		Name:              op.Name,
		Field:             op.Field,
		ExplicitStage:     StagePostDeploy,
		Reversible:        true,
		DependsOnPrevious: true,
	}
	drop = drop.withDescription(
		fmt.Sprintf("drop_db_default_%s_%s", op.Model, op.Name),
		fmt.Sprintf("Drop database DEFAULT of field %s on %s", op.Name, op.Model),
	)

	return []Operation{add, drop}
}

// splitRemoveField handles column removal. The old code still SELECTs and
// INSERTs the column until it is retired, so the column is first made
// optional at the database level (DEFAULT if one is declared, NULLable
// otherwise) and only dropped post-deploy.
func splitRemoveField(op Operation) []Operation {
	if op.Field != nil && op.Field.Nullable && !op.Field.HasDefault {
		// Already optional for old writers; dropping it post-deploy is enough.
		return []Operation{op}
	}

	prepare := Operation{
		Kind:          KindAlterField,
		Model:         op.Model,
		Name:          op.Name,
		Field:         op.Field,
		ExplicitStage: StagePreDeploy,
		Reversible:    true,
	}
	if op.Field != nil && op.Field.HasDefault {
		prepare = prepare.withDescription(
			fmt.Sprintf("set_db_default_%s_%s", op.Model, op.Name),
			fmt.Sprintf("Set database DEFAULT of field %s on %s", op.Name, op.Model),
		)
	} else {
		prepare = prepare.withDescription(
			fmt.Sprintf("set_nullable_%s_%s", op.Model, op.Name),
			fmt.Sprintf("Set field %s of %s NULLable", op.Name, op.Model),
		)
	}

	remove := op
	remove.ExplicitStage = StagePostDeploy
	remove.DependsOnPrevious = true

	return []Operation{prepare, remove}
}
