package deckhand

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deckhandhq/deckhand/internal/bootstrap"
)

var bootstrapParams bootstrap.Params

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Print the one-time provisioning script for a fresh target",
	Long: `Bootstrap renders the script that prepares a fresh deploy target: install
the container runtime, grant the deploy user access to it, clone the recipe
repository, and start the stack once. Pipe it to the target and run it as
root; every later update goes through 'deckhand deploy'.`,
	Run: func(cmd *cobra.Command, args []string) {
		script, err := bootstrap.Script(bootstrapParams)
		if err != nil {
			fmt.Printf("Bootstrap failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(script)
	},
}

func init() {
	bootstrapCmd.Flags().StringVar(&bootstrapParams.RepoURL, "repo", "", "recipe repository URL (required)")
	bootstrapCmd.Flags().StringVar(&bootstrapParams.Branch, "branch", "master", "branch to track")
	bootstrapCmd.Flags().StringVar(&bootstrapParams.User, "user", "deploy", "user granted container runtime access")
	bootstrapCmd.Flags().StringVar(&bootstrapParams.Workdir, "workdir", "", "checkout directory on the target (default /srv/<repo>)")
	rootCmd.AddCommand(bootstrapCmd)
}
