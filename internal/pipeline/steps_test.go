package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/deckhandhq/deckhand/internal/config"
	"github.com/deckhandhq/deckhand/internal/executor"
	"github.com/deckhandhq/deckhand/internal/logging"
	"github.com/deckhandhq/deckhand/internal/pipeline"
	"github.com/deckhandhq/deckhand/internal/secrets"
	"github.com/deckhandhq/deckhand/internal/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExec records every command instead of running it.
type fakeExec struct {
	commands []executor.Command
	failOn   string
}

func (f *fakeExec) Run(ctx context.Context, cmd executor.Command) (*executor.Result, error) {
	f.commands = append(f.commands, cmd)
	if f.failOn != "" && strings.Contains(cmd.String(), f.failOn) {
		return &executor.Result{ExitCode: 1, Stderr: "boom"}, fmt.Errorf("%s failed: exit 1", cmd.Program)
	}
	return &executor.Result{}, nil
}

// fakeSession records remote commands.
type fakeSession struct {
	commands []string
	err      error
	closed   bool
}

func (f *fakeSession) Run(ctx context.Context, command string) (*executor.Result, error) {
	f.commands = append(f.commands, command)
	if f.err != nil {
		return &executor.Result{ExitCode: 1}, f.err
	}
	return &executor.Result{}, nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func testEnv(exec *fakeExec, session *fakeSession) *pipeline.Environment {
	return &pipeline.Environment{
		Exec: exec,
		Config: &config.Config{
			Remote:   config.Remote{Port: 22, Workdir: "/srv/app"},
			Registry: config.Registry{},
		},
		Secrets: &secrets.Secrets{
			RegistryUsername: "ci-bot",
			RegistryPassword: "hunter2",
			DeployHost:       "deploy.example.com",
			DeployUser:       "deploy",
			DeployKey:        []byte("key"),
		},
		Topology: &topology.Topology{
			Name: "app",
			Services: map[string]topology.Service{
				"db":       {Name: "db", Image: "mongo:6"},
				"backend":  {Name: "backend", Image: "acme/backend:latest", Build: &topology.BuildSpec{Context: "./backend"}},
				"frontend": {Name: "frontend", Image: "acme/frontend:latest", Build: &topology.BuildSpec{Context: "./frontend"}},
				"proxy":    {Name: "proxy", Image: "nginx:alpine"},
			},
		},
		WorkDir: "/work",
		Log:     logging.Nop(),
		DialRemote: func(ctx context.Context) (pipeline.RemoteSession, error) {
			return session, nil
		},
	}
}

func fullDefinition() *pipeline.Definition {
	return &pipeline.Definition{
		Branch: "master",
		Tag:    "latest",
		Steps: []pipeline.StepDef{
			{Uses: pipeline.UsesLogin},
			{Uses: pipeline.UsesBuild, Service: "backend"},
			{Uses: pipeline.UsesBuild, Service: "frontend"},
			{Uses: pipeline.UsesPush, Service: "backend"},
			{Uses: pipeline.UsesPush, Service: "frontend"},
			{Uses: pipeline.UsesDeploy, Services: []string{"backend", "frontend"}},
		},
	}
}

func TestPipeline_FullRun(t *testing.T) {
	exec := &fakeExec{}
	session := &fakeSession{}
	env := testEnv(exec, session)

	steps, err := pipeline.FromDefinition(fullDefinition(), env)
	require.NoError(t, err)

	runner := pipeline.NewRunner(logging.Nop(), steps...)
	require.NoError(t, runner.Run(context.Background()))

	require.Len(t, exec.commands, 5)
	assert.Equal(t, "docker login -u ci-bot --password-stdin", exec.commands[0].String())
	assert.Equal(t, "hunter2", exec.commands[0].Stdin)
	assert.Equal(t, "docker build -t acme/backend:latest /work/backend", exec.commands[1].String())
	assert.Equal(t, "docker build -t acme/frontend:latest /work/frontend", exec.commands[2].String())
	assert.Equal(t, "docker push acme/backend:latest", exec.commands[3].String())
	assert.Equal(t, "docker push acme/frontend:latest", exec.commands[4].String())

	require.Len(t, session.commands, 1)
	assert.True(t, session.closed)
}

func TestPipeline_FailedBuildPublishesNothing(t *testing.T) {
	exec := &fakeExec{failOn: "docker build -t acme/backend"}
	session := &fakeSession{}
	env := testEnv(exec, session)

	steps, err := pipeline.FromDefinition(fullDefinition(), env)
	require.NoError(t, err)

	runner := pipeline.NewRunner(logging.Nop(), steps...)
	require.Error(t, runner.Run(context.Background()))

	for _, cmd := range exec.commands {
		assert.NotEqual(t, "push", cmd.Args[0], "no image may be pushed after a failed build")
	}
	assert.Empty(t, session.commands, "deploy must not run after a failed build")
}

func TestPipeline_TagOverridesDeclaredImage(t *testing.T) {
	// A requested tag must win over the tag baked into the compose image
	// reference; otherwise deploying v2 silently rebuilds latest.
	exec := &fakeExec{}
	session := &fakeSession{}
	env := testEnv(exec, session)
	env.Topology.Services["frontend"] = topology.Service{
		Name:  "frontend",
		Image: "registry.local:5000/acme/frontend",
		Build: &topology.BuildSpec{Context: "./frontend"},
	}

	steps, err := pipeline.FromDefinition(&pipeline.Definition{
		Tag: "v2",
		Steps: []pipeline.StepDef{
			{Uses: pipeline.UsesBuild, Service: "backend"},
			{Uses: pipeline.UsesBuild, Service: "frontend"},
			{Uses: pipeline.UsesPush, Service: "backend"},
		},
	}, env)
	require.NoError(t, err)

	runner := pipeline.NewRunner(logging.Nop(), steps...)
	require.NoError(t, runner.Run(context.Background()))

	require.Len(t, exec.commands, 3)
	assert.Equal(t, "docker build -t acme/backend:v2 /work/backend", exec.commands[0].String())
	// The registry port colon is not a tag separator.
	assert.Equal(t, "docker build -t registry.local:5000/acme/frontend:v2 /work/frontend", exec.commands[1].String())
	assert.Equal(t, "docker push acme/backend:v2", exec.commands[2].String())
}

func TestDeployCommand_PullBeforeRecreate(t *testing.T) {
	exec := &fakeExec{}
	session := &fakeSession{}
	env := testEnv(exec, session)

	steps, err := pipeline.FromDefinition(&pipeline.Definition{
		Steps: []pipeline.StepDef{{Uses: pipeline.UsesDeploy, Services: []string{"backend", "frontend"}, Prune: true}},
	}, env)
	require.NoError(t, err)

	runner := pipeline.NewRunner(logging.Nop(), steps...)
	require.NoError(t, runner.Run(context.Background()))

	require.Len(t, session.commands, 1)
	command := session.commands[0]

	pull := strings.Index(command, "docker compose pull")
	up := strings.Index(command, "docker compose up -d --no-deps backend frontend")
	require.GreaterOrEqual(t, pull, 0)
	require.GreaterOrEqual(t, up, 0)
	assert.Less(t, pull, up, "pull must run before recreation")
	assert.Contains(t, command[pull:up], "&&", "a failed pull must abort before any recreation")
	assert.Contains(t, command, "cd /srv/app")
	assert.Contains(t, command, "docker image prune -f")
	assert.Contains(t, command, "deckhand-app.lock")
}

func TestDeploy_RemoteFailure(t *testing.T) {
	exec := &fakeExec{}
	session := &fakeSession{err: errors.New("remote command failed")}
	env := testEnv(exec, session)

	steps, err := pipeline.FromDefinition(&pipeline.Definition{
		Steps: []pipeline.StepDef{{Uses: pipeline.UsesDeploy, Services: []string{"backend"}}},
	}, env)
	require.NoError(t, err)

	runner := pipeline.NewRunner(logging.Nop(), steps...)
	require.Error(t, runner.Run(context.Background()))
	assert.True(t, session.closed)
}

func TestFromDefinition_PreflightSecrets(t *testing.T) {
	exec := &fakeExec{}
	env := testEnv(exec, &fakeSession{})
	env.Secrets = &secrets.Secrets{}

	_, err := pipeline.FromDefinition(fullDefinition(), env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REGISTRY_USERNAME")
	assert.Empty(t, exec.commands, "preflight failure must happen before any step runs")
}

func TestFromDefinition_UndeclaredService(t *testing.T) {
	env := testEnv(&fakeExec{}, &fakeSession{})

	_, err := pipeline.FromDefinition(&pipeline.Definition{
		Steps: []pipeline.StepDef{{Uses: pipeline.UsesBuild, Service: "cache"}},
	}, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"cache"`)
}

func TestFromDefinition_BuildWithoutContext(t *testing.T) {
	env := testEnv(&fakeExec{}, &fakeSession{})

	_, err := pipeline.FromDefinition(&pipeline.Definition{
		Steps: []pipeline.StepDef{{Uses: pipeline.UsesBuild, Service: "db"}},
	}, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no build context")
}

func TestDryRun_ExecutesNothing(t *testing.T) {
	exec := &fakeExec{}
	session := &fakeSession{}
	env := testEnv(exec, session)
	env.DryRun = true
	env.Secrets = &secrets.Secrets{} // dry-run skips the secret preflight

	steps, err := pipeline.FromDefinition(fullDefinition(), env)
	require.NoError(t, err)

	runner := pipeline.NewRunner(logging.Nop(), steps...)
	require.NoError(t, runner.Run(context.Background()))

	assert.Empty(t, exec.commands)
	assert.Empty(t, session.commands)
}
