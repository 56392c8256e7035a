package deckhand

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/deckhandhq/deckhand/internal/config"
	"github.com/deckhandhq/deckhand/internal/discovery"
	"github.com/deckhandhq/deckhand/internal/fsys"
)

var (
	cfgFile string
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "deckhand",
	Short: "Validate and ship compose-based deployment recipes",
	Long: `Deckhand inspects a deployment recipe - the compose manifest, image build
definitions, reverse-proxy routing, and pipeline definition - and runs its
lifecycle:

1. Discover  - Find the recipe artifacts in the source tree
2. Validate  - Cross-check topology, routing, and image definitions
3. Plan      - Compute which containers an apply would recreate
4. Deploy    - Build, push, and recreate on the target over SSH`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "tool config file (default is <source>/deckhand.toml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "env file with credentials (variables already set win)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func initConfig() {
	viper.AutomaticEnv()
}

// recipeContext is everything the subcommands share: the source tree, the
// discovered artifacts, and the layered tool config.
type recipeContext struct {
	filesystem fsys.FileSystem
	root       string
	recipe     *discovery.Recipe
	cfg        *config.Config
}

func loadRecipe(ctx context.Context, sourcePath string) (*recipeContext, error) {
	// If user provided a file path, use the parent directory
	if stat, err := os.Stat(sourcePath); err == nil && !stat.IsDir() {
		sourcePath = filepath.Dir(sourcePath)
	}

	filesystem := fsys.NewLocalFS()

	scanner := discovery.NewScanner(filesystem)
	recipe, err := scanner.DiscoverRecipe(ctx, sourcePath)
	if err != nil {
		return nil, fmt.Errorf("artifact discovery failed: %w", err)
	}

	configPath := cfgFile
	if configPath == "" {
		configPath = recipe.Config
	}

	cfg := config.Default()
	if configPath != "" {
		cfg, err = config.Load(filesystem, configPath)
		if err != nil {
			return nil, err
		}
	}

	// Explicit config paths override discovery.
	if cfg.Compose != "" {
		recipe.Compose = filesystem.Join(sourcePath, cfg.Compose)
	}
	if cfg.Routing != "" {
		recipe.Routing = filesystem.Join(sourcePath, cfg.Routing)
	}
	if cfg.Pipeline != "" {
		recipe.Pipeline = filesystem.Join(sourcePath, cfg.Pipeline)
	}

	return &recipeContext{
		filesystem: filesystem,
		root:       sourcePath,
		recipe:     recipe,
		cfg:        cfg,
	}, nil
}
