package deckhand

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/deckhandhq/deckhand/internal/export"
	"github.com/deckhandhq/deckhand/internal/imagespec"
	"github.com/deckhandhq/deckhand/internal/routing"
	"github.com/deckhandhq/deckhand/internal/topology"
)

var validateOutput string

var validateCmd = &cobra.Command{
	Use:   "validate [source-path]",
	Short: "Validate the recipe: topology, routing, and image definitions",
	Long: `Validate loads every artifact of the recipe and cross-checks them:
undeclared dependencies, dependency cycles, host port collisions, routing
upstreams that no service declares, and image definitions that never expose
the port the proxy forwards to. All findings are reported at once; the
command exits non-zero only when an error-severity finding exists.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sourcePath := "."
		if len(args) > 0 {
			sourcePath = args[0]
		}

		if err := runValidate(cmd.Context(), sourcePath); err != nil {
			fmt.Printf("Validation failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	validateCmd.Flags().StringVarP(&validateOutput, "output", "o", "", "output format (json)")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(ctx context.Context, sourcePath string) error {
	rc, err := loadRecipe(ctx, sourcePath)
	if err != nil {
		return err
	}
	if rc.recipe.Compose == "" {
		return fmt.Errorf("no compose manifest found under %s", rc.root)
	}

	var (
		topo   *topology.Topology
		routes *routing.Config
	)

	// The artifacts are independent until cross-checking, so load them
	// concurrently.
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		topo, err = topology.Load(groupCtx, rc.filesystem, rc.recipe.Compose)
		return err
	})
	if rc.recipe.Routing != "" {
		group.Go(func() error {
			var err error
			routes, err = routing.Load(rc.filesystem, rc.recipe.Routing)
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	violations := topo.Validate()
	if routes != nil {
		violations = append(violations, routes.CrossCheck(topo)...)
	}
	violations = append(violations, checkImages(rc, topo)...)

	report := &export.Report{
		Project:    topo.Name,
		Artifacts:  rc.recipe,
		Violations: violations,
	}
	for _, name := range topo.ServiceNames() {
		report.Services = append(report.Services, topo.Services[name])
	}
	if order, err := topo.StartOrder(); err == nil {
		report.StartOrder = order
	}
	if routes != nil {
		report.Routes = exportRoutes(routes)
	}

	if validateOutput != "" {
		if err := emit(validateOutput, report); err != nil {
			return err
		}
	} else {
		printReport(report)
	}

	if topology.HasErrors(violations) {
		os.Exit(1)
	}
	return nil
}

// checkImages cross-checks each buildable service against its image build
// definition. A missing or unparsable definition is itself a finding, not a
// hard failure.
func checkImages(rc *recipeContext, topo *topology.Topology) []topology.Violation {
	var violations []topology.Violation

	composeDir := rc.filesystem.Dir(rc.recipe.Compose)
	for _, name := range topo.ServiceNames() {
		svc := topo.Services[name]
		if svc.Build == nil {
			continue
		}

		var path string
		if override, ok := rc.cfg.Dockerfiles[name]; ok {
			path = rc.filesystem.Join(rc.root, override)
		} else {
			dockerfile := svc.Build.Dockerfile
			if dockerfile == "" {
				dockerfile = "Dockerfile"
			}
			path = rc.filesystem.Join(composeDir, svc.Build.Context, dockerfile)
		}

		spec, err := imagespec.Load(rc.filesystem, path)
		if err != nil {
			violations = append(violations, topology.Violation{
				Severity: topology.SeverityError,
				Message:  fmt.Sprintf("service %q: cannot load image definition %s: %v", name, path, err),
			})
			continue
		}

		violations = append(violations, spec.CheckService(svc)...)
	}

	return violations
}

func exportRoutes(routes *routing.Config) []export.Route {
	var out []export.Route
	for _, server := range routes.Servers {
		for _, location := range server.Locations {
			out = append(out, export.Route{
				Prefix:   location.Prefix,
				Modifier: location.Modifier,
				Service:  location.Upstream.Service,
				Port:     location.Upstream.Port,
			})
		}
	}
	return out
}

func emit(format string, report *export.Report) error {
	exporter, ok := export.ByName(format)
	if !ok {
		return fmt.Errorf("unknown output format %q", format)
	}
	out, err := exporter.Export(report)
	if err != nil {
		return fmt.Errorf("%s export failed: %w", exporter.Name(), err)
	}
	fmt.Println(string(out))
	return nil
}

func printReport(report *export.Report) {
	fmt.Printf("Project: %s\n", report.Project)
	fmt.Printf("Services (%d):\n", len(report.Services))
	for _, svc := range report.Services {
		fmt.Printf("  - %s", svc.Name)
		if svc.Image != "" {
			fmt.Printf(": image=%s", svc.Image)
		}
		if svc.Build != nil {
			fmt.Printf(" build=%s", svc.Build.Context)
		}
		fmt.Println()
		for _, port := range svc.Ports {
			fmt.Printf("      port %s -> %d\n", port.Published, port.Target)
		}
	}

	if len(report.StartOrder) > 0 {
		fmt.Printf("Start order: %v\n", report.StartOrder)
	}

	if len(report.Violations) == 0 {
		fmt.Println("\nNo findings.")
		return
	}

	fmt.Printf("\nFindings (%d):\n", len(report.Violations))
	for _, violation := range report.Violations {
		fmt.Printf("  %s: %s\n", violation.Severity, violation.Message)
	}
}
