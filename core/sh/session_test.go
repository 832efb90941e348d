package sh_test

import (
	"errors"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subproc/gosh/core/logger"
	"github.com/subproc/gosh/core/lookup"
	"github.com/subproc/gosh/core/sh"
	"github.com/subproc/gosh/core/sh/shtest"
)

func TestSessionCommandResolves(t *testing.T) {
	session, _, _ := shtest.NewSession("ls", "cat")

	cmd, err := session.Command("ls")
	require.NoError(t, err)
	assert.Equal(t, "/bin/ls", cmd.Path())
}

func TestSessionCommandNotFound(t *testing.T) {
	session, spawner, recorder := shtest.NewSession("ls")

	_, err := session.Command("gti")
	require.Error(t, err)

	var notFound *sh.CommandNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "gti", notFound.Name)
	assert.True(t, errors.Is(err, lookup.ErrNotFound))

	assert.Empty(t, spawner.Specs(), "nothing may spawn for an unresolved name")

	events := recorder.Events()
	require.Len(t, events, 1)
	failure, ok := events[0].(logger.ResolveFailure)
	require.True(t, ok)
	assert.Equal(t, "gti", failure.Name)
}

func TestSessionAliasExpansion(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/bin/ls", []byte("#!"), 0o755))

	env := sh.NewEnv()
	env.Set("PATH", "/bin")

	spawner := shtest.NewSpawner()
	session := sh.NewCustomSession(fsys, env, "/", map[string]string{"ll": "ls -la"}, spawner.Spawn, nil)

	cmd, err := session.Command("ll")
	require.NoError(t, err)
	assert.Equal(t, "/bin/ls", cmd.Path())

	_, err = cmd.Invoke("/srv")
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/ls", "-la", "/srv"}, spawner.LastSpec().Argv,
		"alias arguments bake in ahead of call arguments")
}

func TestSessionChdir(t *testing.T) {
	session, spawner, _ := shtest.NewSession("pwd")
	fsys := session.Fs()
	require.NoError(t, fsys.MkdirAll("/srv/app", 0o755))
	require.NoError(t, afero.WriteFile(fsys, "/srv/app/README", []byte("hi"), 0o644))

	require.NoError(t, session.Chdir("/srv"))
	assert.Equal(t, "/srv", session.Getwd())
	assert.Equal(t, "/home/jill", session.Env().Get("OLDPWD"))
	assert.Equal(t, "/srv", session.Env().Get("PWD"))

	// Relative paths resolve against the current directory.
	require.NoError(t, session.Chdir("app"))
	assert.Equal(t, "/srv/app", session.Getwd())

	require.Error(t, session.Chdir("/srv/app/README"), "chdir to a file must fail")
	require.Error(t, session.Chdir("/does/not/exist"))
	assert.Equal(t, "/srv/app", session.Getwd(), "failed chdir leaves the directory alone")

	cmd, err := session.Command("pwd")
	require.NoError(t, err)
	_, err = cmd.Invoke()
	require.NoError(t, err)
	assert.Equal(t, "/srv/app", spawner.LastSpec().Dir, "commands run in the session directory")
}

func TestSessionEnvironmentFlowsToCommands(t *testing.T) {
	session, spawner, _ := shtest.NewSession("env")
	session.Env().Set("DEPLOY_TARGET", "staging")

	cmd, err := session.Command("env")
	require.NoError(t, err)
	_, err = cmd.Invoke()
	require.NoError(t, err)

	assert.Contains(t, spawner.LastSpec().Env, "DEPLOY_TARGET=staging")
	assert.Contains(t, spawner.LastSpec().Env, "PATH=/bin")
}

func TestSessionForkIsolatesState(t *testing.T) {
	session, spawner, _ := shtest.NewSession("ls")

	fork := session.Fork()
	fork.Env().Set("ONLY_IN_FORK", "1")
	require.NoError(t, fork.Chdir("/tmp"))

	_, ok := session.Env().Lookup("ONLY_IN_FORK")
	assert.False(t, ok, "fork environment writes stay in the fork")
	assert.Equal(t, "/home/jill", session.Getwd())

	cmd, err := fork.Command("ls")
	require.NoError(t, err)
	_, err = cmd.Invoke()
	require.NoError(t, err)
	assert.Contains(t, spawner.LastSpec().Env, "ONLY_IN_FORK=1")
	assert.Equal(t, "/tmp", spawner.LastSpec().Dir)
}

func TestLookupName(t *testing.T) {
	session, _, _ := shtest.NewSession("ls")

	got, err := session.LookupName("ExitStatus_9")
	require.NoError(t, err)
	assert.Same(t, sh.ExitStatus(9), got)

	got, err = session.LookupName("ls")
	require.NoError(t, err)
	cmd, ok := got.(*sh.Command)
	require.True(t, ok)
	assert.Equal(t, "/bin/ls", cmd.Path())

	_, err = session.LookupName("gti")
	var notFound *sh.CommandNotFoundError
	require.True(t, errors.As(err, &notFound))
}

func TestUnderscoreNameResolvesHyphenatedProgram(t *testing.T) {
	session, _, _ := shtest.NewSession("google-chrome")

	cmd, err := session.Command("google_chrome")
	require.NoError(t, err)
	assert.Equal(t, "/bin/google-chrome", cmd.Path())
}
