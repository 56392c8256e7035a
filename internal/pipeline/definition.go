package pipeline

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/deckhandhq/deckhand/internal/fsys"
	"github.com/deckhandhq/deckhand/internal/topology"
	"gopkg.in/yaml.v3"
)

// Definition is the declared pipeline: the tracked branch, the image tag, and
// an ordered list of steps. Steps run strictly in declaration order.
type Definition struct {
	Branch string    `yaml:"branch"`
	Tag    string    `yaml:"tag"`
	Steps  []StepDef `yaml:"steps"`
}

// StepDef is one declared pipeline step.
type StepDef struct {
	Name     string   `yaml:"name"`
	Uses     string   `yaml:"uses"`
	Repo     string   `yaml:"repo"`
	Service  string   `yaml:"service"`
	Services []string `yaml:"services"`
	Prune    bool     `yaml:"prune"`
}

// Step kinds a pipeline definition may use.
const (
	UsesCheckout = "checkout"
	UsesLogin    = "login"
	UsesBuild    = "build"
	UsesPush     = "push"
	UsesDeploy   = "deploy"
)

// LoadDefinition reads and parses the pipeline file at path. Unknown fields
// are rejected so typos in a step definition fail loudly instead of being
// silently ignored.
func LoadDefinition(filesystem fsys.FileSystem, path string) (*Definition, error) {
	content, err := filesystem.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline definition: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)

	var def Definition
	if err := decoder.Decode(&def); err != nil {
		return nil, fmt.Errorf("failed to parse pipeline definition %s: %w", path, err)
	}

	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline definition %s: %w", path, err)
	}

	return &def, nil
}

// Validate checks the declared steps for structural problems.
func (d *Definition) Validate() error {
	if len(d.Steps) == 0 {
		return fmt.Errorf("pipeline declares no steps")
	}

	for i, step := range d.Steps {
		switch step.Uses {
		case UsesCheckout:
			if step.Repo == "" {
				return fmt.Errorf("step %d: checkout requires a repo", i+1)
			}
		case UsesLogin:
		case UsesBuild, UsesPush:
			if step.Service == "" {
				return fmt.Errorf("step %d: %s requires a service", i+1, step.Uses)
			}
		case UsesDeploy:
			if len(step.Services) == 0 {
				return fmt.Errorf("step %d: deploy requires at least one service", i+1)
			}
		case "":
			return fmt.Errorf("step %d: missing uses", i+1)
		default:
			return fmt.Errorf("step %d: unknown step kind %q", i+1, step.Uses)
		}
	}

	return nil
}

// DisplayName returns the step's declared name or its kind.
func (s StepDef) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Uses
}

// DefaultDefinition derives the canonical pipeline for a topology when the
// recipe declares none: authenticate, build and push every service with a
// build context, then recreate exactly those services on the target.
func DefaultDefinition(topo *topology.Topology, tag string) *Definition {
	var buildable []string
	for name, svc := range topo.Services {
		if svc.Build != nil {
			buildable = append(buildable, name)
		}
	}
	sort.Strings(buildable)

	def := &Definition{Tag: tag}
	def.Steps = append(def.Steps, StepDef{Uses: UsesLogin})
	for _, name := range buildable {
		def.Steps = append(def.Steps, StepDef{Uses: UsesBuild, Service: name})
	}
	for _, name := range buildable {
		def.Steps = append(def.Steps, StepDef{Uses: UsesPush, Service: name})
	}
	def.Steps = append(def.Steps, StepDef{Uses: UsesDeploy, Services: buildable})

	return def
}
