package discovery

import (
	"strings"
)

// composeDetector matches the composition manifest.
type composeDetector struct{}

func (d *composeDetector) Kind() Kind { return KindCompose }

func (d *composeDetector) Detect(name, path string) bool {
	switch strings.ToLower(name) {
	case "docker-compose.yml", "docker-compose.yaml", "compose.yml", "compose.yaml":
		return true
	}
	return false
}

// dockerfileDetector matches image build definitions, including variants like
// Dockerfile.dev.
type dockerfileDetector struct{}

func (d *dockerfileDetector) Kind() Kind { return KindDockerfile }

func (d *dockerfileDetector) Detect(name, path string) bool {
	lower := strings.ToLower(name)
	return lower == "dockerfile" || strings.HasPrefix(lower, "dockerfile.")
}

// routingDetector matches the reverse-proxy routing file. Any .conf under a
// directory whose path mentions the proxy counts, so proxy/nginx.conf and
// nginx/default.conf both match.
type routingDetector struct{}

func (d *routingDetector) Kind() Kind { return KindRouting }

func (d *routingDetector) Detect(name, path string) bool {
	lower := strings.ToLower(name)
	if !strings.HasSuffix(lower, ".conf") {
		return false
	}
	if lower == "nginx.conf" {
		return true
	}
	lowerPath := strings.ToLower(path)
	return strings.Contains(lowerPath, "nginx") || strings.Contains(lowerPath, "proxy")
}

// pipelineDetector matches the pipeline definition.
type pipelineDetector struct{}

func (d *pipelineDetector) Kind() Kind { return KindPipeline }

func (d *pipelineDetector) Detect(name, path string) bool {
	switch strings.ToLower(name) {
	case "pipeline.yml", "pipeline.yaml", "deckhand.yml", "deckhand.yaml":
		return true
	}
	return false
}

// configDetector matches the optional tool config.
type configDetector struct{}

func (d *configDetector) Kind() Kind { return KindConfig }

func (d *configDetector) Detect(name, path string) bool {
	return strings.ToLower(name) == "deckhand.toml"
}
