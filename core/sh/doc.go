// Package sh invokes programs the way a shell would, without a shell in
// the middle.
//
// A Session resolves names to executables and owns the environment,
// working directory, and prefix stack. Commands are immutable handles on a
// resolved program; Bake curries arguments, Invoke runs:
//
//	sess := sh.NewSession(cfg, recorder)
//	git, err := sess.Command("git")
//	if err != nil { ... }
//	rc, err := git.Invoke("status", sh.Kwargs{"porcelain": true})
//	fmt.Print(rc.Text())
//
// Named arguments compile into flags ("porcelain" becomes --porcelain),
// and underscore-prefixed keys are call options steering execution: _bg
// backgrounds the process, _out redirects output, _piped feeds a
// downstream command, _with prefixes every later invocation. Nonzero
// exits come back as *ExitError values that unwrap to an interned
// per-code kind, so call sites can match on exit codes with errors.Is.
package sh
