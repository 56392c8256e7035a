// Package imagespec parses image build definitions and checks them against
// the contract their composition declaration implies.
package imagespec

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/deckhandhq/deckhand/internal/fsys"
	"github.com/deckhandhq/deckhand/internal/topology"
	"github.com/moby/buildkit/frontend/dockerfile/parser"
)

// ImageSpec is the parsed shape of a Dockerfile: its stages, exposed ports,
// baked-in environment and copy instructions.
type ImageSpec struct {
	Stages       []Stage           `json:"stages"`
	ExposedPorts []int             `json:"exposedPorts,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
	Copies       []Copy            `json:"copies,omitempty"`
	Source       string            `json:"source,omitempty"`
}

// Stage is one FROM instruction.
type Stage struct {
	Base string `json:"base"`
	Name string `json:"name,omitempty"`
}

// Copy is one COPY or ADD instruction.
type Copy struct {
	From    string   `json:"from,omitempty"`
	Sources []string `json:"sources"`
	Dest    string   `json:"dest"`
}

// Load reads and parses the Dockerfile at path.
func Load(filesystem fsys.FileSystem, path string) (*ImageSpec, error) {
	content, err := filesystem.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read build definition: %w", err)
	}

	spec, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse build definition %s: %w", path, err)
	}
	spec.Source = path

	return spec, nil
}

// Parse parses Dockerfile content with the buildkit frontend parser.
func Parse(content []byte) (*ImageSpec, error) {
	ast, err := parser.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	spec := &ImageSpec{Env: make(map[string]string)}

	for _, child := range ast.AST.Children {
		args := nodeArgs(child)

		switch strings.ToUpper(child.Value) {
		case "FROM":
			spec.Stages = append(spec.Stages, parseFrom(args))
		case "EXPOSE":
			for _, arg := range args {
				portPart, _, _ := strings.Cut(arg, "/")
				if port, err := strconv.Atoi(portPart); err == nil {
					spec.ExposedPorts = append(spec.ExposedPorts, port)
				}
			}
		case "ENV":
			parseEnv(args, spec.Env)
		case "COPY", "ADD":
			if cp, ok := parseCopy(child.Flags, args); ok {
				spec.Copies = append(spec.Copies, cp)
			}
		}
	}

	if len(spec.Stages) == 0 {
		return nil, fmt.Errorf("build definition has no FROM instruction")
	}

	return spec, nil
}

func nodeArgs(node *parser.Node) []string {
	var args []string
	for n := node.Next; n != nil; n = n.Next {
		args = append(args, n.Value)
	}
	return args
}

func parseFrom(args []string) Stage {
	stage := Stage{}
	if len(args) > 0 {
		stage.Base = args[0]
	}
	if len(args) >= 3 && strings.EqualFold(args[1], "AS") {
		stage.Name = args[2]
	}
	return stage
}

func parseEnv(args []string, env map[string]string) {
	if len(args) == 0 {
		return
	}

	// ENV key=value [key=value ...]
	if strings.Contains(args[0], "=") {
		for _, arg := range args {
			if key, value, ok := strings.Cut(arg, "="); ok {
				env[key] = value
			}
		}
		return
	}

	// Legacy ENV key value
	if len(args) >= 2 {
		env[args[0]] = strings.Join(args[1:], " ")
	}
}

func parseCopy(flags, args []string) (Copy, bool) {
	if len(args) < 2 {
		return Copy{}, false
	}

	cp := Copy{
		Sources: args[:len(args)-1],
		Dest:    args[len(args)-1],
	}

	for _, flag := range flags {
		if value, ok := strings.CutPrefix(flag, "--from="); ok {
			cp.From = value
		}
	}

	return cp, true
}

// FinalStage returns the stage the built image runs.
func (s *ImageSpec) FinalStage() Stage {
	return s.Stages[len(s.Stages)-1]
}

// Exposes reports whether the build definition exposes the given port.
func (s *ImageSpec) Exposes(port int) bool {
	for _, p := range s.ExposedPorts {
		if p == port {
			return true
		}
	}
	return false
}

// CopiesManifestFirst reports whether a dependency manifest is copied before
// the rest of the source tree, the layout that keeps dependency install
// layers cacheable across source-only changes.
func (s *ImageSpec) CopiesManifestFirst() bool {
	manifests := []string{"package.json", "package*.json", "go.mod", "requirements.txt", "Gemfile"}

	for i, cp := range s.Copies {
		for _, src := range cp.Sources {
			base := src[strings.LastIndex(src, "/")+1:]
			for _, m := range manifests {
				if base == m {
					return i < len(s.Copies)-1
				}
			}
		}
	}

	return false
}

// CheckService checks the build definition against the service's composition
// declaration. Findings are advisory diagnostics, not load errors: a backend
// whose compose entry targets port 5000 should expose 5000, and a static
// asset image built on nginx should copy into the web root.
func (s *ImageSpec) CheckService(svc topology.Service) []topology.Violation {
	var violations []topology.Violation

	for _, port := range svc.Ports {
		if port.Target > 0 && !s.Exposes(port.Target) {
			violations = append(violations, topology.Violation{
				Severity: topology.SeverityWarning,
				Message: fmt.Sprintf("service %q targets container port %d but its build definition does not expose it",
					svc.Name, port.Target),
			})
		}
	}

	if strings.HasPrefix(s.FinalStage().Base, "nginx") {
		if !s.copiesToWebRoot() {
			violations = append(violations, topology.Violation{
				Severity: topology.SeverityWarning,
				Message: fmt.Sprintf("service %q builds on %s but copies nothing into the web root",
					svc.Name, s.FinalStage().Base),
			})
		}
	}

	if s.copiesSourceTree() && !s.CopiesManifestFirst() {
		violations = append(violations, topology.Violation{
			Severity: topology.SeverityWarning,
			Message: fmt.Sprintf("service %q copies its source tree before any dependency manifest, so dependency install layers are rebuilt on every source change",
				svc.Name),
		})
	}

	return violations
}

// copiesSourceTree reports whether any copy pulls in the whole build context.
func (s *ImageSpec) copiesSourceTree() bool {
	for _, cp := range s.Copies {
		if cp.From != "" {
			continue
		}
		for _, src := range cp.Sources {
			if src == "." || src == "./" {
				return true
			}
		}
	}
	return false
}

func (s *ImageSpec) copiesToWebRoot() bool {
	for _, cp := range s.Copies {
		if strings.HasPrefix(cp.Dest, "/usr/share/nginx/html") {
			return true
		}
	}
	return false
}
