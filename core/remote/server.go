// Package remote serves the interactive shell over SSH. Each connection
// gets its own engine session and shell; authentication, throttling, and
// the host key come from the configuration.
package remote

import (
	"context"
	"crypto/subtle"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/gliderlabs/ssh"
	"github.com/juju/ratelimit"
	gossh "golang.org/x/crypto/ssh"

	"github.com/subproc/gosh/core/config"
	"github.com/subproc/gosh/core/logger"
	"github.com/subproc/gosh/core/sh"
	"github.com/subproc/gosh/core/shell"
)

// Server hosts shells for remote clients.
type Server struct {
	cfg    *config.Configuration
	events *logger.Logger
	log    *log.Logger

	sshServer *ssh.Server
}

// New builds a server from an initialized configuration. The host key must
// already exist; `gosh init` creates it.
func New(cfg *config.Configuration, events *logger.Logger, logg *log.Logger) (*Server, error) {
	server := &Server{
		cfg:    cfg,
		events: events,
		log:    logg,
	}

	server.sshServer = &ssh.Server{
		Addr:    fmt.Sprintf(":%d", cfg.SSH.Port),
		Handler: server.handle,
		PasswordHandler: func(ctx ssh.Context, password string) bool {
			ok := passwordAccepted(&cfg.SSH, password)
			result := "failure"
			if ok {
				result = "success"
			}
			server.events.Sessionless().Record(logger.LoginAttempt{
				Username:   ctx.User(),
				Password:   password,
				RemoteAddr: ctx.RemoteAddr().String(),
				Result:     result,
			})
			return ok
		},
		PublicKeyHandler: func(ctx ssh.Context, key ssh.PublicKey) bool {
			// A missing authorized_keys file means no key auth; the
			// password prompt follows.
			authorized, err := cfg.AuthorizedKeys()
			ok := err == nil && publicKeyAccepted(authorized, key)
			result := "failure"
			if ok {
				result = "success"
			}
			server.events.Sessionless().Record(logger.LoginAttempt{
				Username:             ctx.User(),
				PublicKeyFingerprint: gossh.FingerprintSHA256(key),
				RemoteAddr:           ctx.RemoteAddr().String(),
				Result:               result,
			})
			return ok
		},
	}
	if banner := cfg.SSH.Banner; banner != "" {
		server.sshServer.BannerHandler = func(ctx ssh.Context) string {
			return banner
		}
	}

	hostKeyPem, err := cfg.PrivateKeyPem()
	if err != nil {
		return nil, fmt.Errorf("reading host key: %w", err)
	}
	if err := server.sshServer.SetOption(ssh.HostKeyPEM(hostKeyPem)); err != nil {
		return nil, fmt.Errorf("loading host key: %w", err)
	}

	return server, nil
}

// passwordAccepted implements the configured password policy with constant
// time comparisons.
func passwordAccepted(cfg *config.SSH, password string) bool {
	if cfg.AllowAnyPassword {
		return true
	}
	accepted := false
	for _, candidate := range cfg.Passwords {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(password)) == 1 {
			accepted = true
		}
	}
	return accepted
}

// publicKeyAccepted reports whether key appears in authorized, which holds
// authorized_keys lines. Malformed trailing content rejects the rest of the
// file rather than guessing at it.
func publicKeyAccepted(authorized []byte, key ssh.PublicKey) bool {
	for len(authorized) > 0 {
		candidate, _, _, rest, err := gossh.ParseAuthorizedKey(authorized)
		if err != nil {
			return false
		}
		if ssh.KeysEqual(candidate, key) {
			return true
		}
		authorized = rest
	}
	return false
}

func (s *Server) handle(sess ssh.Session) {
	sessionLogger := s.events.NewSession()

	defer func() {
		if r := recover(); r != nil {
			sessionLogger.Record(logger.Panic{
				Context:    fmt.Sprintf("remote session: %v", r),
				Stacktrace: string(debug.Stack()),
			})
			s.log.Error("session panicked", "remote", sess.RemoteAddr(), "panic", r)
			sess.Exit(1)
		}
	}()

	ptyInfo, winch, isPty := sess.Pty()
	sessionLogger.Record(logger.SessionStart{
		User:       sess.User(),
		RemoteAddr: sess.RemoteAddr().String(),
		Term:       ptyInfo.Term,
	})
	s.log.Info("session started", "user", sess.User(), "remote", sess.RemoteAddr(), "id", sessionLogger.SessionID())

	// Window resizes arrive on a channel; the shell polls the latest width.
	var windowWidth atomic.Int64
	windowWidth.Store(int64(ptyInfo.Window.Width))
	go func() {
		for window := range winch {
			windowWidth.Store(int64(window.Width))
		}
	}()

	engineSession := sh.NewSession(s.cfg, sessionLogger)
	env := engineSession.Env()
	for _, kv := range sess.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok && key != "" {
			env.Set(key, value)
		}
	}
	env.Set("USER", sess.User())
	if ptyInfo.Term != "" {
		env.Set("TERM", ptyInfo.Term)
	}

	code := s.runShell(sess, engineSession, windowWidthFunc(&windowWidth), isPty)

	sessionLogger.Record(logger.SessionEnd{ExitCode: code})
	s.log.Info("session ended", "remote", sess.RemoteAddr(), "code", code, "id", sessionLogger.SessionID())
	sess.Exit(code)
}

func (s *Server) runShell(sess ssh.Session, engineSession *sh.Session, width func() int, isPty bool) int {
	var out io.Writer = sess
	if rate := s.cfg.SSH.BytesPerSecond; rate > 0 {
		bucket := ratelimit.NewBucketWithRate(float64(rate), int64(rate))
		out = ratelimit.Writer(sess, bucket)
	}

	repl, err := shell.New(s.cfg, engineSession, shell.IO{
		Stdin:  sess,
		Stdout: out,
		Stderr: sess.Stderr(),
		Width:  width,
		IsTTY:  func() bool { return isPty },
	})
	if err != nil {
		fmt.Fprintf(sess.Stderr(), "gosh: %v\n", err)
		return 1
	}
	return repl.Run()
}

func windowWidthFunc(width *atomic.Int64) func() int {
	return func() int {
		if w := int(width.Load()); w > 0 {
			return w
		}
		return 80
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.sshServer.Addr
}

// ListenAndServe blocks serving connections until Shutdown or a listener
// error.
func (s *Server) ListenAndServe() error {
	s.log.Info("starting SSH listener", "addr", s.sshServer.Addr)
	return s.sshServer.ListenAndServe()
}

// Shutdown stops the listener and waits for active sessions, bounded by
// ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.sshServer.Shutdown(ctx)
}
