package discovery_test

import (
	"context"
	"testing"

	"github.com/deckhandhq/deckhand/internal/discovery"
	"github.com/deckhandhq/deckhand/internal/fsys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fourTierTree() *fsys.MemoryFS {
	mfs := fsys.NewMemoryFS()
	mfs.AddFile("docker-compose.yml", []byte("services: {}"))
	mfs.AddFile("deckhand.toml", []byte(""))
	mfs.AddFile("pipeline.yml", []byte("steps: []"))
	mfs.AddFile("backend/Dockerfile", []byte("FROM node:18-alpine"))
	mfs.AddFile("backend/server.js", []byte(""))
	mfs.AddFile("frontend/Dockerfile", []byte("FROM node:18-alpine"))
	mfs.AddFile("proxy/nginx.conf", []byte("server {}"))
	return mfs
}

func TestDiscover_FourTierTree(t *testing.T) {
	scanner := discovery.NewScanner(fourTierTree())

	artifacts, err := scanner.Discover(context.Background(), ".")
	require.NoError(t, err)

	byKind := make(map[discovery.Kind][]string)
	for _, artifact := range artifacts {
		byKind[artifact.Kind] = append(byKind[artifact.Kind], artifact.Path)
	}

	assert.Equal(t, []string{"docker-compose.yml"}, byKind[discovery.KindCompose])
	assert.Equal(t, []string{"backend/Dockerfile", "frontend/Dockerfile"}, byKind[discovery.KindDockerfile])
	assert.Equal(t, []string{"proxy/nginx.conf"}, byKind[discovery.KindRouting])
	assert.Equal(t, []string{"pipeline.yml"}, byKind[discovery.KindPipeline])
	assert.Equal(t, []string{"deckhand.toml"}, byKind[discovery.KindConfig])
}

func TestDiscover_IgnoresExcludedDirectories(t *testing.T) {
	mfs := fourTierTree()
	mfs.AddFile("backend/node_modules/pkg/Dockerfile", []byte("FROM scratch"))
	mfs.AddFile(".git/docker-compose.yml", []byte("services: {}"))

	scanner := discovery.NewScanner(mfs)
	artifacts, err := scanner.Discover(context.Background(), ".")
	require.NoError(t, err)

	for _, artifact := range artifacts {
		assert.NotContains(t, artifact.Path, "node_modules")
		assert.NotContains(t, artifact.Path, ".git")
	}
}

func TestDiscover_RoutingNeedsProxyContext(t *testing.T) {
	mfs := fsys.NewMemoryFS()
	mfs.AddFile("app/logrotate.conf", []byte(""))
	mfs.AddFile("nginx/default.conf", []byte("server {}"))

	scanner := discovery.NewScanner(mfs)
	artifacts, err := scanner.Discover(context.Background(), ".")
	require.NoError(t, err)

	require.Len(t, artifacts, 1)
	assert.Equal(t, "nginx/default.conf", artifacts[0].Path)
	assert.Equal(t, discovery.KindRouting, artifacts[0].Kind)
}

func TestDiscover_DepthLimited(t *testing.T) {
	mfs := fsys.NewMemoryFS()
	mfs.AddFile("a/b/c/d/Dockerfile", []byte("FROM scratch"))
	mfs.AddFile("a/b/c/d/e/Dockerfile", []byte("FROM scratch"))

	scanner := discovery.NewScanner(mfs)
	artifacts, err := scanner.Discover(context.Background(), ".")
	require.NoError(t, err)

	require.Len(t, artifacts, 1)
	assert.Equal(t, "a/b/c/d/Dockerfile", artifacts[0].Path)
}

func TestDiscoverRecipe(t *testing.T) {
	scanner := discovery.NewScanner(fourTierTree())

	recipe, err := scanner.DiscoverRecipe(context.Background(), ".")
	require.NoError(t, err)

	assert.Equal(t, "docker-compose.yml", recipe.Compose)
	assert.Equal(t, "proxy/nginx.conf", recipe.Routing)
	assert.Equal(t, "pipeline.yml", recipe.Pipeline)
	assert.Equal(t, "deckhand.toml", recipe.Config)
	assert.Equal(t, []string{"backend/Dockerfile", "frontend/Dockerfile"}, recipe.Dockerfiles)
}

func TestDiscoverRecipe_EmptyTree(t *testing.T) {
	scanner := discovery.NewScanner(fsys.NewMemoryFS())

	recipe, err := scanner.DiscoverRecipe(context.Background(), ".")
	require.NoError(t, err)
	assert.Empty(t, recipe.Compose)
	assert.Empty(t, recipe.Dockerfiles)
}

func TestDiscover_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	scanner := discovery.NewScanner(fourTierTree())
	_, err := scanner.Discover(ctx, ".")
	require.Error(t, err)
}
