package topology_test

import (
	"testing"

	"github.com/deckhandhq/deckhand/internal/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fourTier() *topology.Topology {
	return &topology.Topology{
		Name: "app",
		Services: map[string]topology.Service{
			"db": {
				Name:          "db",
				Image:         "mongo:6",
				ContainerName: "db",
				Mounts:        []topology.Mount{{Source: "mongo-data", Target: "/data/db", Named: true}},
			},
			"backend": {
				Name:          "backend",
				Image:         "acme/backend:latest",
				ContainerName: "backend",
				Build:         &topology.BuildSpec{Context: "./backend"},
				DependsOn:     []string{"db"},
				Ports:         []topology.PortBinding{{Published: "5000", Target: 5000}},
			},
			"frontend": {
				Name:          "frontend",
				Image:         "acme/frontend:latest",
				ContainerName: "frontend",
				Build:         &topology.BuildSpec{Context: "./frontend"},
				DependsOn:     []string{"backend"},
			},
			"proxy": {
				Name:          "proxy",
				Image:         "nginx:alpine",
				ContainerName: "proxy",
				DependsOn:     []string{"frontend"},
				Ports:         []topology.PortBinding{{Published: "80", Target: 80}},
			},
		},
		Volumes: map[string]topology.Volume{
			"mongo-data": {Name: "mongo-data"},
		},
	}
}

func TestValidate_CleanTopology(t *testing.T) {
	violations := fourTier().Validate()
	assert.Empty(t, violations)
}

func TestValidate_UndeclaredDependency(t *testing.T) {
	topo := fourTier()
	svc := topo.Services["backend"]
	svc.DependsOn = []string{"db", "cache"}
	topo.Services["backend"] = svc

	violations := topo.Validate()
	require.True(t, topology.HasErrors(violations))
	assert.Contains(t, violations[0].Message, `undeclared service "cache"`)
}

func TestValidate_UndeclaredVolume(t *testing.T) {
	topo := fourTier()
	delete(topo.Volumes, "mongo-data")

	violations := topo.Validate()
	require.True(t, topology.HasErrors(violations))
	assert.Contains(t, violations[0].Message, `undeclared volume "mongo-data"`)
}

func TestValidate_DuplicateContainerName(t *testing.T) {
	topo := fourTier()
	svc := topo.Services["frontend"]
	svc.ContainerName = "backend"
	topo.Services["frontend"] = svc

	violations := topo.Validate()
	require.True(t, topology.HasErrors(violations))
}

func TestValidate_ConflictingPublishedPorts(t *testing.T) {
	topo := fourTier()
	svc := topo.Services["frontend"]
	svc.Ports = []topology.PortBinding{{Published: "80", Target: 8080}}
	topo.Services["frontend"] = svc

	violations := topo.Validate()
	require.True(t, topology.HasErrors(violations))
}

func TestValidate_ServiceWithoutImageOrBuild(t *testing.T) {
	topo := fourTier()
	svc := topo.Services["db"]
	svc.Image = ""
	topo.Services["db"] = svc

	violations := topo.Validate()
	require.True(t, topology.HasErrors(violations))
	assert.Contains(t, violations[0].Message, "neither an image nor a build context")
}

func TestValidate_ReportsAllViolations(t *testing.T) {
	topo := fourTier()
	backend := topo.Services["backend"]
	backend.DependsOn = []string{"cache"}
	topo.Services["backend"] = backend
	delete(topo.Volumes, "mongo-data")

	violations := topo.Validate()
	assert.Len(t, violations, 2)
}
