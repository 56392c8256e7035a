package topology

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	composeTypes "github.com/compose-spec/compose-go/v2/types"
	"github.com/deckhandhq/deckhand/internal/fsys"
)

// Load parses the composition manifest at path into a Topology. Consistency
// checking is left to Validate so that a broken manifest still loads and all
// violations can be reported together.
func Load(ctx context.Context, filesystem fsys.FileSystem, path string) (*Topology, error) {
	content, err := filesystem.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read composition manifest: %w", err)
	}

	configDetails := composeTypes.ConfigDetails{
		WorkingDir: filesystem.Dir(path),
		ConfigFiles: []composeTypes.ConfigFile{
			{Filename: path, Content: content},
		},
	}

	projectName := strings.ToLower(filesystem.Base(filesystem.Dir(path)))
	if projectName == "." || projectName == "/" || projectName == "" {
		projectName = "recipe"
	}
	project, err := loader.LoadWithContext(ctx, configDetails, func(options *loader.Options) {
		options.SetProjectName(projectName, true)
		options.SkipConsistencyCheck = true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load compose project: %w", err)
	}

	t := &Topology{
		Name:     project.Name,
		Services: make(map[string]Service, len(project.Services)),
		Volumes:  make(map[string]Volume, len(project.Volumes)),
		Source:   path,
	}

	for name, composeService := range project.Services {
		t.Services[name] = convertService(name, composeService)
	}

	for name, vol := range project.Volumes {
		t.Volumes[name] = Volume{
			Name:     name,
			External: bool(vol.External),
		}
	}

	return t, nil
}

func convertService(name string, cs composeTypes.ServiceConfig) Service {
	svc := Service{
		Name:           name,
		Image:          cs.Image,
		ContainerName:  cs.ContainerName,
		Restart:        cs.Restart,
		HasHealthcheck: cs.HealthCheck != nil,
	}

	if cs.Build != nil {
		svc.Build = &BuildSpec{
			Context:    cs.Build.Context,
			Dockerfile: cs.Build.Dockerfile,
		}
		if svc.Build.Context == "" {
			svc.Build.Context = "."
		}
	}

	for dep := range cs.DependsOn {
		svc.DependsOn = append(svc.DependsOn, dep)
	}
	sort.Strings(svc.DependsOn)

	for _, port := range cs.Ports {
		svc.Ports = append(svc.Ports, PortBinding{
			Published: port.Published,
			Target:    int(port.Target),
		})
	}

	for _, vol := range cs.Volumes {
		svc.Mounts = append(svc.Mounts, Mount{
			Source: vol.Source,
			Target: vol.Target,
			Named:  vol.Type == "volume",
		})
	}

	return svc
}
