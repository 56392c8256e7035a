package deckhand

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/deckhandhq/deckhand/internal/executor"
	"github.com/deckhandhq/deckhand/internal/logging"
	"github.com/deckhandhq/deckhand/internal/pipeline"
	"github.com/deckhandhq/deckhand/internal/secrets"
	"github.com/deckhandhq/deckhand/internal/topology"
)

var (
	deployDryRun bool
	deployTag    string
)

var deployCmd = &cobra.Command{
	Use:   "deploy [source-path]",
	Short: "Run the pipeline: build, push, and recreate on the target",
	Long: `Deploy executes the recipe's pipeline definition, or the canonical
login/build/push/deploy sequence when none is declared. Steps run strictly
in order and the first failure halts the run: a failed build publishes
nothing, and a failed push recreates nothing on the target.

Credentials come from the environment (REGISTRY_USERNAME, REGISTRY_PASSWORD,
DEPLOY_HOST, DEPLOY_USER, and DEPLOY_KEY or DEPLOY_KEY_FILE), optionally
layered from an env file. They are never read from recipe files.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sourcePath := "."
		if len(args) > 0 {
			sourcePath = args[0]
		}

		if err := runDeploy(cmd.Context(), sourcePath); err != nil {
			fmt.Printf("Deploy failed: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	deployCmd.Flags().BoolVar(&deployDryRun, "dry-run", false, "log every command instead of executing")
	deployCmd.Flags().StringVar(&deployTag, "tag", "", "image tag to build and push (default from pipeline definition, else latest)")
	rootCmd.AddCommand(deployCmd)
}

func runDeploy(ctx context.Context, sourcePath string) error {
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

	// Broken recipes never reach the target.
	if violations := topo.Validate(); topology.HasErrors(violations) {
		for _, violation := range violations {
			fmt.Printf("  %s: %s\n", violation.Severity, violation.Message)
		}
		return fmt.Errorf("topology has errors; fix them before deploying")
	}

	var def *pipeline.Definition
	if rc.recipe.Pipeline != "" {
		def, err = pipeline.LoadDefinition(rc.filesystem, rc.recipe.Pipeline)
		if err != nil {
			return err
		}
	} else {
		def = pipeline.DefaultDefinition(topo, deployTag)
	}
	if deployTag != "" {
		def.Tag = deployTag
	}

	sec, err := secrets.Load(viper.GetViper(), envFile)
	if err != nil {
		return err
	}

	log := logging.New(os.Stderr, verbose)
	env := &pipeline.Environment{
		Exec:     executor.NewLocal(),
		Config:   rc.cfg,
		Secrets:  sec,
		Topology: topo,
		WorkDir:  rc.root,
		DryRun:   deployDryRun,
		Log:      log,
	}

	steps, err := pipeline.FromDefinition(def, env)
	if err != nil {
		return err
	}

	return pipeline.NewRunner(log, steps...).Run(ctx)
}
