// Package bootstrap renders the one-time provisioning script for a fresh
// deploy target. Everything after this first run is handled by the pipeline's
// pull-then-recreate step, so the script only has to install the container
// runtime, fetch the recipe, and start the stack once.
package bootstrap

import (
	"fmt"
	"path"
	"strings"
	"text/template"
)

// Params describes the target the script provisions.
type Params struct {
	RepoURL string
	Branch  string
	User    string
	Workdir string
}

const scriptTemplate = `#!/usr/bin/env bash
# One-time setup for a fresh deploy target. Run as root.
set -euo pipefail

if ! command -v docker >/dev/null 2>&1; then
  curl -fsSL https://get.docker.com | sh
fi

if ! id -nG {{.User}} | grep -qw docker; then
  usermod -aG docker {{.User}}
fi

if [ ! -d {{.Workdir}}/.git ]; then
  git clone --branch {{.Branch}} {{.RepoURL}} {{.Workdir}}
else
  git -C {{.Workdir}} pull --ff-only origin {{.Branch}}
fi

cd {{.Workdir}}
docker compose up -d
`

// Script renders the provisioning script for the given target.
func Script(params Params) (string, error) {
	if params.RepoURL == "" {
		return "", fmt.Errorf("bootstrap requires a repository URL")
	}
	if params.Branch == "" {
		params.Branch = "master"
	}
	if params.User == "" {
		params.User = "deploy"
	}
	if params.Workdir == "" {
		params.Workdir = "/srv/" + repoName(params.RepoURL)
	}

	tmpl, err := template.New("bootstrap").Parse(scriptTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse bootstrap template: %w", err)
	}

	var out strings.Builder
	if err := tmpl.Execute(&out, params); err != nil {
		return "", fmt.Errorf("failed to render bootstrap script: %w", err)
	}
	return out.String(), nil
}

func repoName(repoURL string) string {
	name := path.Base(repoURL)
	name = strings.TrimSuffix(name, ".git")
	if name == "" || name == "." || name == "/" {
		return "app"
	}
	return name
}
