package deployment

import (
	"fmt"
	"sort"
)

// ErrDependencyCycle is returned by Plan when the dependency graph cannot
// be layered; the coordinator refuses to start.
type ErrDependencyCycle struct {
	Remaining []string
}

func (e *ErrDependencyCycle) Error() string {
	return fmt.Sprintf("deployment: dependency cycle among %v", e.Remaining)
}

// Plan computes the parallel-executable phases by Kahn-style layering:
// phase 0 holds every service with no undeployed dependency;
// those are removed and the layering repeats. deps maps a service to the
// services it depends on (frontend -> [backend] means backend deploys
// first). Dependencies outside the service set are ignored: they are
// assumed already deployed. Service order within a phase is lexicographic
// so plans are deterministic.
func Plan(services []string, deps map[string][]string) ([][]string, error) {
	remaining := make(map[string]struct{}, len(services))
	for _, s := range services {
		remaining[s] = struct{}{}
	}

	var phases [][]string
	for len(remaining) > 0 {
		var ready []string
		for s := range remaining {
			blocked := false
			for _, dep := range deps[s] {
				if _, undeployed := remaining[dep]; undeployed {
					blocked = true
					break
				}
			}
			if !blocked {
				ready = append(ready, s)
			}
		}
		if len(ready) == 0 {
			left := make([]string, 0, len(remaining))
			for s := range remaining {
				left = append(left, s)
			}
			sort.Strings(left)
			return nil, &ErrDependencyCycle{Remaining: left}
		}
		sort.Strings(ready)
		for _, s := range ready {
			delete(remaining, s)
		}
		phases = append(phases, ready)
	}
	return phases, nil
}
