// Package resolver turns dependency declarations into the ids of the stored tasks a new task
// has to wait for.
package resolver

import (
	"context"
	"fmt"

	"github.com/RezaEskandarii/taskfire/types"
)

// TaskFinder is the store query the resolver needs.
type TaskFinder interface {
	FindTaskIDs(ctx context.Context, dependencies []types.Dependency) ([]string, error)
}

// Resolve returns the deduplicated ids of stored tasks matching any declaration. Declarations
// without a type and without tags are ignored; no effective declaration yields an empty list.
func Resolve(ctx context.Context, finder TaskFinder, dependencies []types.Dependency) ([]string, error) {
	effective := make([]types.Dependency, 0, len(dependencies))
	for _, dep := range dependencies {
		if !dep.IsEmpty() {
			effective = append(effective, dep)
		}
	}
	if len(effective) == 0 {
		return []string{}, nil
	}

	ids, err := finder.FindTaskIDs(ctx, effective)
	if err != nil {
		return nil, fmt.Errorf("resolve dependencies: %w", err)
	}

	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
