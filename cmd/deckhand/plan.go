package deckhand

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deckhandhq/deckhand/internal/export"
	"github.com/deckhandhq/deckhand/internal/topology"
)

var (
	planChanged []string
	planOutput  string
)

var planCmd = &cobra.Command{
	Use:   "plan [source-path]",
	Short: "Show which containers an apply would recreate",
	Long: `Plan computes the effect of applying the recipe after the given services'
images changed. Recreation follows --no-deps semantics: only the changed
services are replaced, everything else keeps running. With no --changed
services the plan is a no-op.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sourcePath := "."
		if len(args) > 0 {
			sourcePath = args[0]
		}

		if err := runPlan(cmd.Context(), sourcePath); err != nil {
			fmt.Printf("Planning failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	planCmd.Flags().StringSliceVar(&planChanged, "changed", nil, "services whose images changed")
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "", "output format (json)")
	rootCmd.AddCommand(planCmd)
}

func runPlan(ctx context.Context, sourcePath string) error {
	rc, err := loadRecipe(ctx, sourcePath)
	if err != nil {
		return err
	}
	if rc.recipe.Compose == "" {
		return fmt.Errorf("no compose manifest found under %s", rc.root)
	}

	topo, err := topology.Load(ctx, rc.filesystem, rc.recipe.Compose)
	if err != nil {
		return err
	}

	plan, err := topo.Plan(planChanged)
	if err != nil {
		return err
	}

	if planOutput != "" {
		return emit(planOutput, &export.Report{
			Project:    topo.Name,
			Violations: []topology.Violation{},
			Plan:       plan,
		})
	}

	if plan.IsNoOp() {
		fmt.Println("No services changed; applying would recreate nothing.")
		return nil
	}

	fmt.Printf("Recreate (%d):\n", len(plan.Recreate))
	for _, name := range plan.Recreate {
		fmt.Printf("  - %s\n", name)
	}
	fmt.Printf("Keep running (%d):\n", len(plan.Keep))
	for _, name := range plan.Keep {
		fmt.Printf("  - %s\n", name)
	}

	return nil
}
