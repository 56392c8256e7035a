// Package discovery locates the recipe artifacts in a source tree: the
// composition manifest, image build definitions, the reverse-proxy routing
// file, the pipeline definition, and the optional tool config.
package discovery

import (
	"context"
	"sort"
	"strings"

	"github.com/deckhandhq/deckhand/internal/fsys"
)

// Kind identifies what a discovered file is.
type Kind string

const (
	KindCompose    Kind = "compose"
	KindDockerfile Kind = "dockerfile"
	KindRouting    Kind = "routing"
	KindPipeline   Kind = "pipeline"
	KindConfig     Kind = "config"
)

// Artifact is one discovered recipe file.
type Artifact struct {
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
}

// Detector decides whether a file is a recipe artifact of its kind.
type Detector interface {
	Kind() Kind
	Detect(name, path string) bool
}

// Scanner handles recursive discovery using registered detectors.
type Scanner struct {
	filesystem fsys.FileSystem
	detectors  []Detector
	maxDepth   int
}

// NewScanner creates a scanner with the default detectors. Pass detectors to
// restrict discovery to specific kinds.
func NewScanner(filesystem fsys.FileSystem, detectors ...Detector) *Scanner {
	if len(detectors) == 0 {
		detectors = DefaultDetectors()
	}
	return &Scanner{
		filesystem: filesystem,
		detectors:  detectors,
		maxDepth:   4,
	}
}

// DefaultDetectors returns one detector per artifact kind.
func DefaultDetectors() []Detector {
	return []Detector{
		&composeDetector{},
		&dockerfileDetector{},
		&routingDetector{},
		&pipelineDetector{},
		&configDetector{},
	}
}

// Directories that never contain recipe artifacts.
var excludePatterns = []string{
	"node_modules", "vendor", "bower_components",
	"venv", "virtualenv",
	"target", "deps", "_build",
	"dist", "out",
	"tmp", "temp", "cache", "logs", "coverage",
}

// Discover walks the tree rooted at rootPath and returns every detected
// artifact. The first matching detector wins per file. Results are sorted by
// path so repeated runs produce identical output.
func (s *Scanner) Discover(ctx context.Context, rootPath string) ([]Artifact, error) {
	var artifacts []Artifact

	err := s.filesystem.Walk(rootPath, func(path string, info fsys.FileInfo, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if info.IsDir() {
			if path != rootPath && s.shouldIgnoreDirectory(s.filesystem.Base(path)) {
				return fsys.SkipDir
			}
			if s.depth(rootPath, path) > s.maxDepth {
				return fsys.SkipDir
			}
			return nil
		}

		name := s.filesystem.Base(path)
		for _, detector := range s.detectors {
			if detector.Detect(name, path) {
				artifacts = append(artifacts, Artifact{Path: path, Kind: detector.Kind()})
				break // first match wins
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Path < artifacts[j].Path })
	return artifacts, nil
}

// depth measures how far below the scan root a directory sits.
func (s *Scanner) depth(root, path string) int {
	rel, err := s.filesystem.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, "/") + 1
}

func (s *Scanner) shouldIgnoreDirectory(dirName string) bool {
	for _, pattern := range excludePatterns {
		if strings.EqualFold(dirName, pattern) {
			return true
		}
	}
	if strings.HasPrefix(dirName, "_") {
		return true
	}
	if strings.HasPrefix(dirName, ".") && len(dirName) > 1 {
		return true
	}
	return false
}

// Recipe groups the discovered artifacts by role. Absent singleton artifacts
// are empty strings.
type Recipe struct {
	Compose     string   `json:"compose,omitempty"`
	Routing     string   `json:"routing,omitempty"`
	Pipeline    string   `json:"pipeline,omitempty"`
	Config      string   `json:"config,omitempty"`
	Dockerfiles []string `json:"dockerfiles,omitempty"`
}

// DiscoverRecipe runs Discover and assigns each artifact its role. When two
// files of a singleton kind exist, the shallower (sorted-first) path wins.
func (s *Scanner) DiscoverRecipe(ctx context.Context, rootPath string) (*Recipe, error) {
	artifacts, err := s.Discover(ctx, rootPath)
	if err != nil {
		return nil, err
	}

	recipe := &Recipe{}
	for _, artifact := range artifacts {
		switch artifact.Kind {
		case KindCompose:
			if recipe.Compose == "" {
				recipe.Compose = artifact.Path
			}
		case KindRouting:
			if recipe.Routing == "" {
				recipe.Routing = artifact.Path
			}
		case KindPipeline:
			if recipe.Pipeline == "" {
				recipe.Pipeline = artifact.Path
			}
		case KindConfig:
			if recipe.Config == "" {
				recipe.Config = artifact.Path
			}
		case KindDockerfile:
			recipe.Dockerfiles = append(recipe.Dockerfiles, artifact.Path)
		}
	}

	return recipe, nil
}
