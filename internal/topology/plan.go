package topology

import (
	"fmt"
	"sort"
)

// RecreatePlan is the outcome of planning a zero-downtime apply: the services
// whose containers are recreated and the services left running untouched.
type RecreatePlan struct {
	Recreate []string `json:"recreate"`
	Keep     []string `json:"keep"`
}

// Plan computes which containers an apply recreates when the given services'
// image tags changed. Recreation follows --no-deps semantics: only the changed
// services are recreated, dependents and dependencies alike are left running.
// An empty change set plans a no-op. Planning is idempotent.
func (t *Topology) Plan(changed []string) (*RecreatePlan, error) {
	recreate := make(map[string]bool, len(changed))
	for _, name := range changed {
		if _, ok := t.Services[name]; !ok {
			return nil, fmt.Errorf("changed service %q is not declared in the topology", name)
		}
		recreate[name] = true
	}

	plan := &RecreatePlan{
		Recreate: make([]string, 0, len(recreate)),
		Keep:     make([]string, 0, len(t.Services)-len(recreate)),
	}

	for name := range t.Services {
		if recreate[name] {
			plan.Recreate = append(plan.Recreate, name)
		} else {
			plan.Keep = append(plan.Keep, name)
		}
	}

	sort.Strings(plan.Recreate)
	sort.Strings(plan.Keep)

	return plan, nil
}

// IsNoOp reports whether applying the plan would recreate nothing.
func (p *RecreatePlan) IsNoOp() bool {
	return len(p.Recreate) == 0
}
