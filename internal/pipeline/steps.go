package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/rs/zerolog"

	"github.com/deckhandhq/deckhand/internal/config"
	"github.com/deckhandhq/deckhand/internal/executor"
	"github.com/deckhandhq/deckhand/internal/remote"
	"github.com/deckhandhq/deckhand/internal/secrets"
	"github.com/deckhandhq/deckhand/internal/topology"
)

// RemoteSession is the open connection the deploy step runs through.
type RemoteSession interface {
	Run(ctx context.Context, command string) (*executor.Result, error)
	Close() error
}

// Environment carries everything concrete steps need. Tests substitute the
// runner and the remote dialer.
type Environment struct {
	Exec       executor.Runner
	Config     *config.Config
	Secrets    *secrets.Secrets
	Topology   *topology.Topology
	WorkDir    string
	DryRun     bool
	Log        zerolog.Logger
	DialRemote func(ctx context.Context) (RemoteSession, error)
}

// FromDefinition binds a declared pipeline to concrete steps. Secrets each
// step kind needs are checked here, so a misconfigured pipeline fails before
// any image is built.
func FromDefinition(def *Definition, env *Environment) ([]Step, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	if !env.DryRun {
		if err := preflight(def, env.Secrets); err != nil {
			return nil, err
		}
	}

	if env.DialRemote == nil {
		env.DialRemote = func(ctx context.Context) (RemoteSession, error) {
			return remote.Dial(ctx, remote.Config{
				Host: env.Secrets.DeployHost,
				Port: env.Config.Remote.Port,
				User: env.Secrets.DeployUser,
				Key:  env.Secrets.DeployKey,
			})
		}
	}

	var steps []Step
	for _, stepDef := range def.Steps {
		step, err := bindStep(stepDef, def, env)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	return steps, nil
}

func preflight(def *Definition, sec *secrets.Secrets) error {
	for _, step := range def.Steps {
		switch step.Uses {
		case UsesLogin, UsesPush:
			if err := sec.RequireRegistry(); err != nil {
				return err
			}
		case UsesDeploy:
			if err := sec.RequireRemote(); err != nil {
				return err
			}
		}
	}
	return nil
}

func bindStep(stepDef StepDef, def *Definition, env *Environment) (Step, error) {
	switch stepDef.Uses {
	case UsesCheckout:
		return &checkoutStep{def: stepDef, branch: def.Branch, env: env}, nil

	case UsesLogin:
		return &loginStep{def: stepDef, env: env}, nil

	case UsesBuild:
		svc, ok := env.Topology.Services[stepDef.Service]
		if !ok {
			return nil, fmt.Errorf("build step references undeclared service %q", stepDef.Service)
		}
		if svc.Build == nil {
			return nil, fmt.Errorf("build step references service %q which has no build context", stepDef.Service)
		}
		return &buildStep{def: stepDef, tag: def.Tag, env: env}, nil

	case UsesPush:
		if _, ok := env.Topology.Services[stepDef.Service]; !ok {
			return nil, fmt.Errorf("push step references undeclared service %q", stepDef.Service)
		}
		return &pushStep{def: stepDef, tag: def.Tag, env: env}, nil

	case UsesDeploy:
		for _, name := range stepDef.Services {
			if _, ok := env.Topology.Services[name]; !ok {
				return nil, fmt.Errorf("deploy step references undeclared service %q", name)
			}
		}
		return &deployStep{def: stepDef, env: env}, nil

	default:
		return nil, fmt.Errorf("unknown step kind %q", stepDef.Uses)
	}
}

func (env *Environment) imageRef(service, tag string) string {
	svc := env.Topology.Services[service]
	if svc.Image != "" {
		if tag == "" {
			return svc.Image
		}
		return retag(svc.Image, tag)
	}
	if tag == "" {
		tag = "latest"
	}
	return env.Config.ImageRef(service, tag)
}

// retag replaces the tag component of an image reference. A colon before the
// last slash is a registry port, not a tag, and is left alone.
func retag(image, tag string) string {
	slash := strings.LastIndex(image, "/")
	if colon := strings.LastIndex(image, ":"); colon > slash {
		image = image[:colon]
	}
	return image + ":" + tag
}

func (env *Environment) run(ctx context.Context, cmd executor.Command) error {
	if env.DryRun {
		env.Log.Info().Str("command", cmd.String()).Msg("dry-run")
		return nil
	}

	result, err := env.Exec.Run(ctx, cmd)
	if err != nil {
		if result != nil && result.Stderr != "" {
			return fmt.Errorf("%w\n%s", err, strings.TrimSpace(result.Stderr))
		}
		return err
	}
	return nil
}

// checkoutStep materializes the tracked branch of the recipe repository into
// the working directory.
type checkoutStep struct {
	def    StepDef
	branch string
	env    *Environment
}

func (s *checkoutStep) Name() string { return s.def.DisplayName() }

func (s *checkoutStep) Run(ctx context.Context) error {
	branch := s.branch
	if branch == "" {
		branch = "master"
	}
	ref := plumbing.NewBranchReferenceName(branch)

	if s.env.DryRun {
		s.env.Log.Info().Str("repo", s.def.Repo).Str("branch", branch).Msg("dry-run: checkout")
		return nil
	}

	_, err := git.PlainCloneContext(ctx, s.env.WorkDir, false, &git.CloneOptions{
		URL:           s.def.Repo,
		ReferenceName: ref,
		SingleBranch:  true,
		Depth:         1,
	})
	if err == nil {
		return nil
	}
	if !errors.Is(err, git.ErrRepositoryAlreadyExists) {
		return fmt.Errorf("failed to clone %s: %w", s.def.Repo, err)
	}

	repo, err := git.PlainOpen(s.env.WorkDir)
	if err != nil {
		return fmt.Errorf("failed to open existing checkout: %w", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to open worktree: %w", err)
	}

	err = worktree.PullContext(ctx, &git.PullOptions{
		ReferenceName: ref,
		SingleBranch:  true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("failed to update checkout: %w", err)
	}

	return nil
}

// loginStep authenticates against the image registry. The password travels
// over stdin, never as an argument.
type loginStep struct {
	def StepDef
	env *Environment
}

func (s *loginStep) Name() string { return s.def.DisplayName() }

func (s *loginStep) Run(ctx context.Context) error {
	args := []string{"login", "-u", s.env.Secrets.RegistryUsername, "--password-stdin"}
	if s.env.Config.Registry.Host != "" {
		args = append(args, s.env.Config.Registry.Host)
	}

	return s.env.run(ctx, executor.Command{
		Program: "docker",
		Args:    args,
		Stdin:   s.env.Secrets.RegistryPassword,
	})
}

// buildStep builds one service image from its declared build context. Nothing
// is published here; a failed build never leaves a partial image in the
// registry because pushing is a separate step.
type buildStep struct {
	def StepDef
	tag string
	env *Environment
}

func (s *buildStep) Name() string { return s.def.DisplayName() + " " + s.def.Service }

func (s *buildStep) Run(ctx context.Context) error {
	svc := s.env.Topology.Services[s.def.Service]

	args := []string{"build", "-t", s.env.imageRef(s.def.Service, s.tag)}
	if svc.Build.Dockerfile != "" {
		args = append(args, "-f", filepath.Join(s.env.WorkDir, svc.Build.Context, svc.Build.Dockerfile))
	}
	args = append(args, filepath.Join(s.env.WorkDir, svc.Build.Context))

	return s.env.run(ctx, executor.Command{Program: "docker", Args: args})
}

// pushStep publishes one built image.
type pushStep struct {
	def StepDef
	tag string
	env *Environment
}

func (s *pushStep) Name() string { return s.def.DisplayName() + " " + s.def.Service }

func (s *pushStep) Run(ctx context.Context) error {
	return s.env.run(ctx, executor.Command{
		Program: "docker",
		Args:    []string{"push", s.env.imageRef(s.def.Service, s.tag)},
	})
}

// deployStep opens the remote session and runs the pull-then-recreate pair.
// The && chain guarantees a failed pull aborts before any container is
// recreated. Recreation uses --no-deps so only the named services are
// replaced; everything else keeps running. Rerunning with already-current
// images is a no-op.
type deployStep struct {
	def StepDef
	env *Environment
}

func (s *deployStep) Name() string { return s.def.DisplayName() }

func (s *deployStep) Run(ctx context.Context) error {
	command := s.command()

	if s.env.DryRun {
		s.env.Log.Info().Str("command", command).Msg("dry-run: remote deploy")
		return nil
	}

	session, err := s.env.DialRemote(ctx)
	if err != nil {
		return fmt.Errorf("failed to open remote session: %w", err)
	}
	defer session.Close()

	result, err := session.Run(ctx, command)
	if err != nil {
		if result != nil && result.Stderr != "" {
			return fmt.Errorf("%w\n%s", err, strings.TrimSpace(result.Stderr))
		}
		return err
	}

	return nil
}

func (s *deployStep) command() string {
	project := s.env.Topology.Name
	if project == "" {
		project = "deckhand"
	}
	lock := fmt.Sprintf("/tmp/deckhand-%s.lock", project)

	inner := "docker compose pull && docker compose up -d --no-deps " + strings.Join(s.def.Services, " ")
	if s.def.Prune {
		inner += " && docker image prune -f"
	}

	workdir := s.env.Config.Remote.Workdir
	if workdir != "" {
		inner = fmt.Sprintf("cd %s && %s", workdir, inner)
	}

	// One deploy at a time per target: a concurrent run fails fast instead
	// of interleaving with an in-flight recreation.
	return fmt.Sprintf("mkdir %s 2>/dev/null || { echo 'another deploy is in progress' >&2; exit 1; }; trap 'rmdir %s' EXIT; %s",
		lock, lock, inner)
}
