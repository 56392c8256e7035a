package deckhand

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deckhandhq/deckhand/internal/routing"
)

var routesResolve string

var routesCmd = &cobra.Command{
	Use:   "routes [source-path]",
	Short: "Show the reverse-proxy routing table",
	Long: `Routes parses the proxy configuration and prints every path-to-service
rule. With --resolve, it answers which upstream a single request path would
reach: exact-match locations win, then the longest matching prefix.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sourcePath := "."
		if len(args) > 0 {
			sourcePath = args[0]
		}

		if err := runRoutes(cmd.Context(), sourcePath); err != nil {
			fmt.Printf("Routing inspection failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	routesCmd.Flags().StringVar(&routesResolve, "resolve", "", "resolve a request path to its upstream")
	rootCmd.AddCommand(routesCmd)
}

func runRoutes(ctx context.Context, sourcePath string) error {
	rc, err := loadRecipe(ctx, sourcePath)
	if err != nil {
		return err
	}
	if rc.recipe.Routing == "" {
		return fmt.Errorf("no routing file found under %s", rc.root)
	}

	routes, err := routing.Load(rc.filesystem, rc.recipe.Routing)
	if err != nil {
		return err
	}

	if routesResolve != "" {
		return resolvePath(routes, routesResolve)
	}

	for _, server := range routes.Servers {
		fmt.Printf("server :%d\n", server.Listen)
		for _, location := range server.Locations {
			prefix := location.Prefix
			if location.Modifier != "" {
				prefix = location.Modifier + " " + prefix
			}
			fmt.Printf("  %-20s -> %s\n", prefix, location.Upstream.Raw)
		}
	}

	return nil
}

func resolvePath(routes *routing.Config, path string) error {
	if len(routes.Servers) == 0 {
		return fmt.Errorf("routing file declares no server block")
	}

	location, err := routes.Servers[0].Resolve(path)
	if err != nil {
		return err
	}

	fmt.Printf("%s -> %s", path, location.Upstream.Service)
	if location.Upstream.Port != 0 {
		fmt.Printf(":%d", location.Upstream.Port)
	}
	fmt.Printf(" (location %s)\n", location.Prefix)

	return nil
}
