package topology

import (
	"fmt"
	"sort"
)

// Topology is the loaded composition manifest: the set of declared services,
// their dependency edges, and named volumes.
type Topology struct {
	Name     string             `json:"name"`
	Services map[string]Service `json:"services"`
	Volumes  map[string]Volume  `json:"volumes,omitempty"`
	Source   string             `json:"source,omitempty"`
}

// Service is one declared service record.
type Service struct {
	Name           string        `json:"name"`
	Image          string        `json:"image,omitempty"`
	ContainerName  string        `json:"containerName,omitempty"`
	Build          *BuildSpec    `json:"build,omitempty"`
	DependsOn      []string      `json:"dependsOn,omitempty"`
	Ports          []PortBinding `json:"ports,omitempty"`
	Mounts         []Mount       `json:"mounts,omitempty"`
	Restart        string        `json:"restart,omitempty"`
	HasHealthcheck bool          `json:"hasHealthcheck,omitempty"`
}

// BuildSpec points at the build context used to materialize the service image.
type BuildSpec struct {
	Context    string `json:"context"`
	Dockerfile string `json:"dockerfile,omitempty"`
}

// PortBinding maps a published host port to a container target port.
type PortBinding struct {
	Published string `json:"published,omitempty"`
	Target    int    `json:"target"`
}

// Mount binds a named volume or host path into the container.
type Mount struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Named  bool   `json:"named,omitempty"`
}

// Volume is a named persistent store. It is created on first apply and
// survives service recreation.
type Volume struct {
	Name     string `json:"name"`
	External bool   `json:"external,omitempty"`
}

// Severity classifies a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Violation is a single validation finding. Validate reports all of them
// rather than stopping at the first.
type Violation struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// HasErrors reports whether any violation is an error (warnings alone pass).
func HasErrors(violations []Violation) bool {
	for _, v := range violations {
		if v.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ServiceNames returns the declared service names in sorted order.
func (t *Topology) ServiceNames() []string {
	names := make([]string, 0, len(t.Services))
	for name := range t.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the declared topology for structural violations: undeclared
// depends_on targets, dependency cycles, undeclared named volumes, duplicate
// container names, conflicting published ports, and services with neither an
// image reference nor a build context.
func (t *Topology) Validate() []Violation {
	var violations []Violation

	for _, name := range t.ServiceNames() {
		svc := t.Services[name]

		if svc.Image == "" && svc.Build == nil {
			violations = append(violations, Violation{
				Severity: SeverityError,
				Message:  fmt.Sprintf("service %q declares neither an image nor a build context", name),
			})
		}

		for _, dep := range svc.DependsOn {
			if _, ok := t.Services[dep]; !ok {
				violations = append(violations, Violation{
					Severity: SeverityError,
					Message:  fmt.Sprintf("service %q depends on undeclared service %q", name, dep),
				})
			}
		}

		for _, mount := range svc.Mounts {
			if !mount.Named {
				continue
			}
			if _, ok := t.Volumes[mount.Source]; !ok {
				violations = append(violations, Violation{
					Severity: SeverityError,
					Message:  fmt.Sprintf("service %q mounts undeclared volume %q", name, mount.Source),
				})
			}
		}
	}

	violations = append(violations, t.checkContainerNames()...)
	violations = append(violations, t.checkPublishedPorts()...)

	if cycle := t.findCycle(); len(cycle) > 0 {
		violations = append(violations, Violation{
			Severity: SeverityError,
			Message:  fmt.Sprintf("dependency cycle: %s", joinCycle(cycle)),
		})
	}

	return violations
}

func (t *Topology) checkContainerNames() []Violation {
	var violations []Violation
	byContainer := make(map[string]string)

	for _, name := range t.ServiceNames() {
		cn := t.Services[name].ContainerName
		if cn == "" {
			continue
		}
		if other, ok := byContainer[cn]; ok {
			violations = append(violations, Violation{
				Severity: SeverityError,
				Message:  fmt.Sprintf("services %q and %q both declare container name %q", other, name, cn),
			})
			continue
		}
		byContainer[cn] = name
	}

	return violations
}

func (t *Topology) checkPublishedPorts() []Violation {
	var violations []Violation
	byPort := make(map[string]string)

	for _, name := range t.ServiceNames() {
		for _, port := range t.Services[name].Ports {
			if port.Published == "" {
				continue
			}
			if other, ok := byPort[port.Published]; ok && other != name {
				violations = append(violations, Violation{
					Severity: SeverityError,
					Message:  fmt.Sprintf("services %q and %q both publish host port %s", other, name, port.Published),
				})
				continue
			}
			byPort[port.Published] = name
		}
	}

	return violations
}
