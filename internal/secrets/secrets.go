// Package secrets resolves the credentials the pipeline needs. All values are
// environment-injected; nothing here is ever read from the recipe files.
package secrets

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Secrets holds the opaque values the pipeline consumes: registry credentials
// and the remote deploy target.
type Secrets struct {
	RegistryUsername string
	RegistryPassword string
	DeployHost       string
	DeployUser       string
	DeployKey        []byte
}

// Load resolves secrets from the environment, optionally seeded from a dotenv
// file. Values already present in the environment win over the dotenv file.
func Load(v *viper.Viper, envFile string) (*Secrets, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		// Best effort: a .env next to the recipe is a local convenience
		_ = godotenv.Load()
	}

	v.AutomaticEnv()

	s := &Secrets{
		RegistryUsername: v.GetString("REGISTRY_USERNAME"),
		RegistryPassword: v.GetString("REGISTRY_PASSWORD"),
		DeployHost:       v.GetString("DEPLOY_HOST"),
		DeployUser:       v.GetString("DEPLOY_USER"),
	}

	if key := v.GetString("DEPLOY_KEY"); key != "" {
		s.DeployKey = []byte(key)
	} else if keyFile := v.GetString("DEPLOY_KEY_FILE"); keyFile != "" {
		content, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read deploy key file: %w", err)
		}
		s.DeployKey = content
	}

	return s, nil
}

// RequireRegistry errors unless registry credentials are present. Checked
// before any step runs so a misconfigured pipeline fails before building.
func (s *Secrets) RequireRegistry() error {
	var missing []string
	if s.RegistryUsername == "" {
		missing = append(missing, "REGISTRY_USERNAME")
	}
	if s.RegistryPassword == "" {
		missing = append(missing, "REGISTRY_PASSWORD")
	}
	return requireNone(missing)
}

// RequireRemote errors unless the remote deploy target is fully configured.
func (s *Secrets) RequireRemote() error {
	var missing []string
	if s.DeployHost == "" {
		missing = append(missing, "DEPLOY_HOST")
	}
	if s.DeployUser == "" {
		missing = append(missing, "DEPLOY_USER")
	}
	if len(s.DeployKey) == 0 {
		missing = append(missing, "DEPLOY_KEY or DEPLOY_KEY_FILE")
	}
	return requireNone(missing)
}

func requireNone(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required secrets: %s", strings.Join(missing, ", "))
}
