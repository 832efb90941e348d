package sh_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subproc/gosh/core/logger"
	"github.com/subproc/gosh/core/sh"
	"github.com/subproc/gosh/core/sh/shtest"
)

func TestInvokeBuildsArgv(t *testing.T) {
	session, spawner, recorder := shtest.NewSession("git")

	git, err := session.Command("git")
	require.NoError(t, err)

	rc, err := git.Invoke("log", sh.Kwargs{"oneline": true, "n": 5})
	require.NoError(t, err)
	assert.Equal(t, sh.ModeEagerBlocking, rc.Mode())

	spec := spawner.LastSpec()
	assert.Equal(t, []string{"/bin/git", "log", "-n", "5", "--oneline"}, spec.Argv)
	assert.Equal(t, "/home/jill", spec.Dir)
	assert.Equal(t, 1, spec.BufSize, "line buffered by default")
	assert.False(t, spec.Stream)

	// One invocation event and one result event, in order.
	events := recorder.Events()
	require.Len(t, events, 2)
	inv, ok := events[0].(logger.Invocation)
	require.True(t, ok)
	assert.Equal(t, "blocking", inv.Mode)
	res, ok := events[1].(logger.InvocationResult)
	require.True(t, ok)
	assert.Equal(t, 0, res.ExitCode)
}

func TestBakeAccumulatesWithoutMutation(t *testing.T) {
	session, spawner, _ := shtest.NewSession("git")

	git, err := session.Command("git")
	require.NoError(t, err)

	status, err := git.Bake("status")
	require.NoError(t, err)
	porcelain, err := status.Bake(sh.Kwargs{"porcelain": true})
	require.NoError(t, err)

	_, err = status.Invoke()
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/git", "status"}, spawner.LastSpec().Argv,
		"deriving porcelain must not touch status")

	_, err = porcelain.Invoke()
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/git", "status", "--porcelain"}, spawner.LastSpec().Argv)

	_, err = git.Invoke()
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/git"}, spawner.LastSpec().Argv, "root command stays bare")
}

func TestBakedOptionsApplyAndPerCallWins(t *testing.T) {
	session, spawner, _ := shtest.NewSession("tail")

	tail, err := session.Command("tail")
	require.NoError(t, err)
	raw, err := tail.Bake(sh.Kwargs{"_bufsize": 0})
	require.NoError(t, err)

	_, err = raw.Invoke("/var/log/syslog")
	require.NoError(t, err)
	assert.Equal(t, 0, spawner.LastSpec().BufSize)

	_, err = raw.Invoke("/var/log/syslog", sh.Kwargs{"_bufsize": 4096})
	require.NoError(t, err)
	assert.Equal(t, 4096, spawner.LastSpec().BufSize, "per-call option overrides baked")
}

func TestIncompatibleOptionsAcrossBakeAndCall(t *testing.T) {
	session, spawner, _ := shtest.NewSession("job")

	job, err := session.Command("job")
	require.NoError(t, err)
	fg, err := job.Bake(sh.Kwargs{"_fg": true})
	require.NoError(t, err)

	_, err = fg.Invoke(sh.Kwargs{"_bg": true})
	var optErr *sh.OptionError
	require.True(t, errors.As(err, &optErr))
	assert.Empty(t, spawner.Specs(), "invalid invocations never spawn")
}

func TestSubcommand(t *testing.T) {
	session, spawner, _ := shtest.NewSession("git")

	git, err := session.Command("git")
	require.NoError(t, err)
	commit, err := git.Subcommand("commit", sh.Kwargs{"signoff": true})
	require.NoError(t, err)

	_, err = commit.Invoke(sh.Kwargs{"message": "first"})
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"/bin/git", "commit", "--signoff", "--message=first"},
		spawner.LastSpec().Argv)
}

func TestBlockingInvokeReturnsExitError(t *testing.T) {
	session, spawner, _ := shtest.NewSession("deploy")
	spawner.Script("deploy", shtest.Outcome{
		ExitCode: 1,
		Stdout:   []byte("starting rollout\n"),
		Stderr:   []byte("permission denied\n"),
	})

	deploy, err := session.Command("deploy")
	require.NoError(t, err)

	rc, err := deploy.Invoke("--prod")
	require.Error(t, err)
	require.NotNil(t, rc, "the running command is returned alongside its failure")

	assert.True(t, errors.Is(err, sh.ExitStatus(1)))
	var exitErr *sh.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, "/bin/deploy --prod", exitErr.FullCmd)
	assert.Contains(t, exitErr.Error(), "starting rollout")
	assert.Contains(t, exitErr.Error(), "permission denied")

	// Waiting again returns the identical error value.
	again := rc.Wait()
	assert.Same(t, exitErr, again)
}

func TestSpawnFailureIsNotAnExitError(t *testing.T) {
	session, spawner, _ := shtest.NewSession("broken")
	spawner.Script("broken", shtest.Outcome{Err: errors.New("text file busy")})

	broken, err := session.Command("broken")
	require.NoError(t, err)

	rc, err := broken.Invoke()
	require.Error(t, err)
	assert.Nil(t, rc)
	var exitErr *sh.ExitError
	assert.False(t, errors.As(err, &exitErr))
}

func TestStdinOptions(t *testing.T) {
	session, spawner, _ := shtest.NewSession("cat")
	cat, err := session.Command("cat")
	require.NoError(t, err)

	_, err = cat.Invoke(sh.Kwargs{"_in": "from a string"})
	require.NoError(t, err)

	_, err = cat.Invoke(sh.Kwargs{"_in": []byte("from bytes")})
	require.NoError(t, err)

	_, err = cat.Invoke(sh.Kwargs{"_in": strings.NewReader("from a reader")})
	require.NoError(t, err)

	stdins := spawner.Stdins()
	require.Len(t, stdins, 3)
	assert.Equal(t, "from a string", string(stdins[0]))
	assert.Equal(t, "from bytes", string(stdins[1]))
	assert.Equal(t, "from a reader", string(stdins[2]))

	_, err = cat.Invoke(sh.Kwargs{"_in": 42})
	var optErr *sh.OptionError
	require.True(t, errors.As(err, &optErr))
}

func TestRedirectToFilename(t *testing.T) {
	session, spawner, _ := shtest.NewSession("ls")
	spawner.Script("ls", shtest.Outcome{Stdout: []byte("a\nb\n")})

	ls, err := session.Command("ls")
	require.NoError(t, err)

	rc, err := ls.Invoke(sh.Kwargs{"_out": "/tmp/listing.txt"})
	require.NoError(t, err)
	assert.Nil(t, rc.Stdout(), "redirected output is not captured")

	content, err := afero.ReadFile(session.Fs(), "/tmp/listing.txt")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(content))
}

func TestRedirectToWriter(t *testing.T) {
	session, spawner, _ := shtest.NewSession("ls")
	spawner.Script("ls", shtest.Outcome{Stdout: []byte("payload")})

	ls, err := session.Command("ls")
	require.NoError(t, err)

	var sink bytes.Buffer
	_, err = ls.Invoke(sh.Kwargs{"_out": &sink})
	require.NoError(t, err)
	assert.Equal(t, "payload", sink.String())
}

func TestErrToOutMerges(t *testing.T) {
	session, spawner, _ := shtest.NewSession("build")
	spawner.Script("build", shtest.Outcome{
		Stdout: []byte("compiling\n"),
		Stderr: []byte("warning: slow\n"),
	})

	build, err := session.Command("build")
	require.NoError(t, err)

	rc, err := build.Invoke(sh.Kwargs{"_err_to_out": true})
	require.NoError(t, err)
	assert.True(t, spawner.LastSpec().MergeErr)
	assert.Contains(t, string(rc.Stdout()), "warning: slow")
	assert.Nil(t, rc.Stderr())
}

func TestCallableSinkStreamsLines(t *testing.T) {
	session, spawner, _ := shtest.NewSession("tail")
	spawner.Script("tail", shtest.Outcome{Stdout: []byte("one\ntwo\n")})

	tail, err := session.Command("tail")
	require.NoError(t, err)

	var lines []string
	rc, err := tail.Invoke(sh.Kwargs{"_out": func(chunk []byte) {
		lines = append(lines, string(chunk))
	}})
	require.NoError(t, err)
	assert.Equal(t, sh.ModeEagerLazy, rc.Mode(), "callback invocations do not block")

	require.NoError(t, rc.Wait())
	assert.Equal(t, []string{"one\n", "two\n"}, lines)
	assert.Nil(t, rc.Stdout())
}

func TestForegroundPassthrough(t *testing.T) {
	session, spawner, _ := shtest.NewSession("vi")

	vi, err := session.Command("vi")
	require.NoError(t, err)

	rc, err := vi.Invoke(sh.Kwargs{"_fg": true})
	require.NoError(t, err)
	assert.Equal(t, sh.ModeEagerBlocking, rc.Mode())
	assert.True(t, spawner.LastSpec().Passthrough)
	assert.Nil(t, rc.Stdout())
}

func TestWithPushesPrefix(t *testing.T) {
	session, spawner, _ := shtest.NewSession("sudo", "ls")

	sudo, err := session.Command("sudo")
	require.NoError(t, err)
	ls, err := session.Command("ls")
	require.NoError(t, err)

	with, err := sudo.Invoke(sh.Kwargs{"_with": true})
	require.NoError(t, err)
	assert.Equal(t, sh.ModeDeferred, with.Mode())
	assert.Empty(t, spawner.Specs(), "a with-invocation must not spawn")

	_, err = ls.Invoke("-la")
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/sudo", "/bin/ls", "-la"}, spawner.LastSpec().Argv)

	require.NoError(t, with.Close())
	_, err = ls.Invoke()
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/ls"}, spawner.LastSpec().Argv)

	// Closing again must not pop anything else.
	require.NoError(t, with.Close())
}

func TestPrefixesNestOldestFirst(t *testing.T) {
	session, spawner, _ := shtest.NewSession("sudo", "nice", "ls")

	sudo, err := session.Command("sudo")
	require.NoError(t, err)
	nice, err := session.Command("nice")
	require.NoError(t, err)
	ls, err := session.Command("ls")
	require.NoError(t, err)

	releaseSudo, err := sudo.Prefix("-u", "root")
	require.NoError(t, err)
	releaseNice, err := nice.Prefix()
	require.NoError(t, err)

	_, err = ls.Invoke()
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"/bin/sudo", "-u", "root", "/bin/nice", "/bin/ls"},
		spawner.LastSpec().Argv)

	releaseNice()
	releaseSudo()

	_, err = ls.Invoke()
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/ls"}, spawner.LastSpec().Argv)
}

func TestEagerSourcePipesCapturedBytes(t *testing.T) {
	session, spawner, _ := shtest.NewSession("ls", "wc")
	spawner.Script("ls", shtest.Outcome{Stdout: []byte("a\nb\nc\n")})
	spawner.Script("wc", shtest.Outcome{Filter: func(stdin []byte) []byte {
		count := bytes.Count(stdin, []byte("\n"))
		return []byte(strings.Repeat("x", count))
	}})

	ls, err := session.Command("ls")
	require.NoError(t, err)
	wc, err := session.Command("wc")
	require.NoError(t, err)

	listing, err := ls.Invoke()
	require.NoError(t, err)

	counted, err := wc.Invoke(listing, "-l")
	require.NoError(t, err)
	assert.Equal(t, "xxx", counted.Text())

	stdins := spawner.Stdins()
	require.Len(t, stdins, 2)
	assert.Equal(t, "a\nb\nc\n", string(stdins[1]), "upstream output feeds downstream stdin")
	assert.Equal(t, []string{"/bin/wc", "-l"}, spawner.LastSpec().Argv,
		"the piped source is not a positional argument")
}

func TestPipedSourceStreams(t *testing.T) {
	session, spawner, _ := shtest.NewSession("producer", "consumer")
	spawner.Script("producer", shtest.Outcome{Stdout: []byte("one\ntwo\n")})

	producer, err := session.Command("producer")
	require.NoError(t, err)
	consumer, err := session.Command("consumer")
	require.NoError(t, err)

	upstream, err := producer.Invoke(sh.Kwargs{"_piped": true})
	require.NoError(t, err)
	assert.Equal(t, sh.ModePiped, upstream.Mode())
	assert.True(t, spawner.LastSpec().Stream)

	_, err = consumer.Invoke(upstream)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(spawner.Stdins()[1]))
}

func TestBackgroundPropagatesThroughPipe(t *testing.T) {
	session, _, _ := shtest.NewSession("producer", "consumer")

	producer, err := session.Command("producer")
	require.NoError(t, err)
	consumer, err := session.Command("consumer")
	require.NoError(t, err)

	upstream, err := producer.Invoke(sh.Kwargs{"_piped": true, "_bg": true})
	require.NoError(t, err)

	downstream, err := consumer.Invoke(upstream)
	require.NoError(t, err)
	assert.Equal(t, sh.ModeEagerLazy, downstream.Mode(),
		"a backgrounded source backgrounds the sink")
	require.NoError(t, downstream.Wait())
}

func TestFailedSourceAbortsPipe(t *testing.T) {
	session, spawner, _ := shtest.NewSession("flaky", "consumer")
	spawner.Script("flaky", shtest.Outcome{ExitCode: 2, Stdout: []byte("partial")})

	flaky, err := session.Command("flaky")
	require.NoError(t, err)
	consumer, err := session.Command("consumer")
	require.NoError(t, err)

	upstream, err := flaky.Invoke(sh.Kwargs{"_bg": true})
	require.NoError(t, err, "background invocation defers the failure")

	_, err = consumer.Invoke(upstream)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sh.ExitStatus(2)))
	require.Len(t, spawner.Specs(), 1, "the consumer never spawns")
}
