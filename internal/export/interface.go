// Package export serializes inspection results for machine consumers.
package export

import (
	"github.com/deckhandhq/deckhand/internal/discovery"
	"github.com/deckhandhq/deckhand/internal/topology"
)

// Report is the full inspection result for one recipe: the discovered
// artifacts, the declared topology, every validation finding, and optionally
// a recreation plan.
type Report struct {
	Project    string                 `json:"project"`
	Artifacts  *discovery.Recipe      `json:"artifacts,omitempty"`
	Services   []topology.Service     `json:"services,omitempty"`
	StartOrder []string               `json:"startOrder,omitempty"`
	Violations []topology.Violation   `json:"violations"`
	Routes     []Route                `json:"routes,omitempty"`
	Plan       *topology.RecreatePlan `json:"plan,omitempty"`
}

// Route is one proxy routing rule in export form.
type Route struct {
	Prefix   string `json:"prefix"`
	Modifier string `json:"modifier,omitempty"`
	Service  string `json:"service"`
	Port     int    `json:"port,omitempty"`
}

// Exporter converts a report to an output format.
type Exporter interface {
	Export(report *Report) ([]byte, error)

	// Name returns the format name used on the --output flag.
	Name() string
}

// ByName returns the exporter registered under the given format name.
func ByName(name string) (Exporter, bool) {
	switch name {
	case "json":
		return NewJSONExporter(), true
	default:
		return nil, false
	}
}
