package topology

import (
	"fmt"
	"sort"
	"strings"
)

// StartOrder returns a dependency-respecting startup order: every service
// appears after all of its declared dependencies. Order is deterministic for
// a given topology. Startup order only gates on dependencies having started,
// not on them being healthy.
func (t *Topology) StartOrder() ([]string, error) {
	indegree := make(map[string]int, len(t.Services))
	dependents := make(map[string][]string, len(t.Services))

	for name, svc := range t.Services {
		if _, ok := indegree[name]; !ok {
			indegree[name] = 0
		}
		for _, dep := range svc.DependsOn {
			if _, ok := t.Services[dep]; !ok {
				return nil, fmt.Errorf("service %q depends on undeclared service %q", name, dep)
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(t.Services))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)

		var unlocked []string
		for _, dependent := range dependents[name] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				unlocked = append(unlocked, dependent)
			}
		}
		sort.Strings(unlocked)
		ready = append(ready, unlocked...)
	}

	if len(order) != len(t.Services) {
		cycle := t.findCycle()
		return nil, fmt.Errorf("dependency cycle: %s", joinCycle(cycle))
	}

	return order, nil
}

// findCycle returns one dependency cycle as a service name path, or nil when
// the graph is acyclic.
func (t *Topology) findCycle() []string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)

	state := make(map[string]int, len(t.Services))
	var cycle []string

	var visit func(name string, path []string) bool
	visit = func(name string, path []string) bool {
		state[name] = visiting
		path = append(path, name)

		deps := append([]string(nil), t.Services[name].DependsOn...)
		sort.Strings(deps)

		for _, dep := range deps {
			if _, ok := t.Services[dep]; !ok {
				continue
			}
			switch state[dep] {
			case visiting:
				// Trim the path down to the cycle members
				for i, n := range path {
					if n == dep {
						cycle = append(append([]string(nil), path[i:]...), dep)
						return true
					}
				}
			case unvisited:
				if visit(dep, path) {
					return true
				}
			}
		}

		state[name] = done
		return false
	}

	for _, name := range t.ServiceNames() {
		if state[name] == unvisited {
			if visit(name, nil) {
				return cycle
			}
		}
	}

	return nil
}

func joinCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}
