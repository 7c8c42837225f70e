// Package syntaxcheck asks the OpenSSH daemon whether a candidate configuration is valid.
package syntaxcheck

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/leonelquinteros/gotext"
	"github.com/ubuntu/sshdconf/internal/consts"
	log "github.com/ubuntu/sshdconf/internal/log"
	"github.com/ubuntu/sshdconf/internal/sshderr"
)

// Checker validates the configuration file at path.
// A refused configuration is reported as a sshderr.SyntaxValidation error carrying the
// checker diagnostics.
type Checker interface {
	Check(ctx context.Context, path string) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context, path string) error

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context, path string) error {
	return f(ctx, path)
}

// SSHD runs the daemon in test mode against the candidate file.
type SSHD struct {
	cmd     []string
	timeout time.Duration
}

type options struct {
	cmd     []string
	timeout time.Duration
}

// Option configures the daemon checker.
type Option func(*options)

// WithCmd overrides the daemon command. "-t -f <path>" is appended to it.
func WithCmd(cmd []string) Option {
	return func(o *options) {
		o.cmd = cmd
	}
}

// WithTimeout bounds each check.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// New returns a checker running the OpenSSH daemon.
func New(opts ...Option) *SSHD {
	o := options{
		cmd:     []string{consts.DefaultSSHDCmd},
		timeout: consts.DefaultSyntaxCheckTimeout,
	}
	for _, f := range opts {
		f(&o)
	}
	if len(o.cmd) == 0 {
		o.cmd = []string{consts.DefaultSSHDCmd}
	}
	if o.timeout <= 0 {
		o.timeout = consts.DefaultSyntaxCheckTimeout
	}

	return &SSHD{
		cmd:     o.cmd,
		timeout: o.timeout,
	}
}

// Check runs "sshd -t -f path". A missing binary, a non zero exit code or an expired timeout all
// refuse the configuration.
func (s *SSHD) Check(ctx context.Context, path string) error {
	args := append(append([]string(nil), s.cmd[1:]...), "-t", "-f", path)

	cmdCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	log.Debugf(ctx, "Checking configuration syntax with %s %s", s.cmd[0], strings.Join(args, " "))
	// #nosec G204 - the command is under our control (configured daemon or mock for tests)
	cmd := exec.CommandContext(cmdCtx, s.cmd[0], args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if err == nil {
		return nil
	}

	diag := strings.TrimSpace(out.String())
	switch {
	case errors.Is(cmdCtx.Err(), context.DeadlineExceeded):
		diag = gotext.Get("syntax check did not complete within %s", s.timeout)
	case errors.Is(err, exec.ErrNotFound):
		diag = gotext.Get("can't run %s: %v", s.cmd[0], err)
	case diag == "":
		diag = err.Error()
	}

	return &sshderr.Error{
		Kind:   sshderr.SyntaxValidation,
		Op:     "check",
		Path:   path,
		Detail: diag,
		Err:    fmt.Errorf("%s: %w", s.cmd[0], err),
	}
}
