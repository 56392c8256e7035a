package imagespec_test

import (
	"testing"

	"github.com/deckhandhq/deckhand/internal/imagespec"
	"github.com/deckhandhq/deckhand/internal/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const backendDockerfile = `FROM node:18-alpine
WORKDIR /app
COPY package.json .
RUN npm install
COPY . .
ENV NODE_ENV=production
EXPOSE 5000
CMD ["node", "server.js"]
`

const frontendDockerfile = `FROM node:18-alpine AS build
WORKDIR /app
COPY package.json .
RUN npm install
COPY . .
RUN npm run build

FROM nginx:alpine
COPY --from=build /app/dist /usr/share/nginx/html
EXPOSE 80
`

func TestParse_Backend(t *testing.T) {
	spec, err := imagespec.Parse([]byte(backendDockerfile))
	require.NoError(t, err)

	require.Len(t, spec.Stages, 1)
	assert.Equal(t, "node:18-alpine", spec.Stages[0].Base)
	assert.Equal(t, []int{5000}, spec.ExposedPorts)
	assert.Equal(t, "production", spec.Env["NODE_ENV"])
	assert.True(t, spec.CopiesManifestFirst())
}

func TestParse_FrontendMultiStage(t *testing.T) {
	spec, err := imagespec.Parse([]byte(frontendDockerfile))
	require.NoError(t, err)

	require.Len(t, spec.Stages, 2)
	assert.Equal(t, "build", spec.Stages[0].Name)
	assert.Equal(t, "nginx:alpine", spec.FinalStage().Base)

	var staged *imagespec.Copy
	for i := range spec.Copies {
		if spec.Copies[i].From != "" {
			staged = &spec.Copies[i]
		}
	}
	require.NotNil(t, staged, "expected a --from copy")
	assert.Equal(t, "build", staged.From)
	assert.Equal(t, "/usr/share/nginx/html", staged.Dest)
}

func TestParse_PortWithProtocol(t *testing.T) {
	spec, err := imagespec.Parse([]byte("FROM alpine\nEXPOSE 8080/tcp 9090\n"))
	require.NoError(t, err)
	assert.Equal(t, []int{8080, 9090}, spec.ExposedPorts)
}

func TestParse_LegacyEnvForm(t *testing.T) {
	spec, err := imagespec.Parse([]byte("FROM alpine\nENV PORT 5000\n"))
	require.NoError(t, err)
	assert.Equal(t, "5000", spec.Env["PORT"])
}

func TestParse_NoFrom(t *testing.T) {
	_, err := imagespec.Parse([]byte("RUN echo hi\n"))
	require.Error(t, err)
}

func TestCheckService_BackendPortContract(t *testing.T) {
	spec, err := imagespec.Parse([]byte(backendDockerfile))
	require.NoError(t, err)

	svc := topology.Service{
		Name:  "backend",
		Ports: []topology.PortBinding{{Published: "5000", Target: 5000}},
	}
	assert.Empty(t, spec.CheckService(svc))

	svc.Ports = []topology.PortBinding{{Published: "8080", Target: 8080}}
	violations := spec.CheckService(svc)
	require.Len(t, violations, 1)
	assert.Equal(t, topology.SeverityWarning, violations[0].Severity)
	assert.Contains(t, violations[0].Message, "does not expose")
}

func TestCheckService_SourceTreeBeforeManifest(t *testing.T) {
	spec, err := imagespec.Parse([]byte("FROM node:18-alpine\nCOPY . .\nRUN npm install\nEXPOSE 5000\n"))
	require.NoError(t, err)

	violations := spec.CheckService(topology.Service{Name: "backend"})
	require.Len(t, violations, 1)
	assert.Equal(t, topology.SeverityWarning, violations[0].Severity)
	assert.Contains(t, violations[0].Message, "dependency manifest")

	// The manifest-first layout stays clean.
	good, err := imagespec.Parse([]byte(backendDockerfile))
	require.NoError(t, err)
	assert.Empty(t, good.CheckService(topology.Service{Name: "backend", Ports: []topology.PortBinding{{Target: 5000}}}))
}

func TestCheckService_StaticAssetWebRoot(t *testing.T) {
	spec, err := imagespec.Parse([]byte(frontendDockerfile))
	require.NoError(t, err)
	assert.Empty(t, spec.CheckService(topology.Service{Name: "frontend"}))

	bare, err := imagespec.Parse([]byte("FROM nginx:alpine\nEXPOSE 80\n"))
	require.NoError(t, err)
	violations := bare.CheckService(topology.Service{Name: "frontend"})
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0].Message, "web root")
}
