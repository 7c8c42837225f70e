// Package sshdmanager applies directive changes to the live daemon configuration.
//
// An apply never writes to the live file directly: the patched configuration is written to a
// temporary file next to it, checked by the daemon, and only then renamed over the live file.
// A rejected candidate leaves the live file untouched.
//
// The manager serializes its own operations per configuration path. Nothing prevents another
// process from modifying the file at the same time: the last rename wins.
package sshdmanager

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/leonelquinteros/gotext"
	"github.com/ubuntu/decorate"
	"github.com/ubuntu/sshdconf/internal/backup"
	"github.com/ubuntu/sshdconf/internal/consts"
	log "github.com/ubuntu/sshdconf/internal/log"
	"github.com/ubuntu/sshdconf/internal/sshdconfig"
	"github.com/ubuntu/sshdconf/internal/sshderr"
	"github.com/ubuntu/sshdconf/internal/syntaxcheck"
	"github.com/ubuntu/sshdconf/internal/validator"
	"golang.org/x/sys/unix"
)

// Manager reads and mutates one daemon configuration file.
type Manager struct {
	path       string
	archive    *backup.Archive
	checker    syntaxcheck.Checker
	validator  *validator.Validator
	resolver   sshdconfig.Resolver
	maxBackups int
}

type options struct {
	configPath     string
	backupDir      string
	checker        syntaxcheck.Checker
	validator      *validator.Validator
	resolver       sshdconfig.Resolver
	maxBackups     int
	backupOptions  []backup.Option
	privilegeCheck bool
	geteuid        func() int
}

// Option represents an optional function to change the manager behavior.
type Option func(*options) error

// WithConfigPath specifies a personalized daemon configuration file.
func WithConfigPath(p string) Option {
	return func(o *options) error {
		o.configPath = p
		return nil
	}
}

// WithBackupDir specifies a personalized backup directory.
func WithBackupDir(p string) Option {
	return func(o *options) error {
		o.backupDir = p
		return nil
	}
}

// WithChecker overrides the syntax checker run on candidate configurations.
func WithChecker(c syntaxcheck.Checker) Option {
	return func(o *options) error {
		o.checker = c
		return nil
	}
}

// WithValidator overrides the validator run on patches.
func WithValidator(v *validator.Validator) Option {
	return func(o *options) error {
		o.validator = v
		return nil
	}
}

// WithResolutionPolicy sets the policy used for repeated directives without override.
func WithResolutionPolicy(p sshdconfig.ResolutionPolicy) Option {
	return func(o *options) error {
		o.resolver.Default = p
		return nil
	}
}

// WithResolver replaces the resolver computing effective directives.
func WithResolver(r sshdconfig.Resolver) Option {
	return func(o *options) error {
		o.resolver = r
		return nil
	}
}

// WithMaxBackups keeps only the n newest backups after each successful apply.
// 0 keeps everything.
func WithMaxBackups(n int) Option {
	return func(o *options) error {
		if n < 0 {
			return errors.New(gotext.Get("maximum number of backups can't be negative: %d", n))
		}
		o.maxBackups = n
		return nil
	}
}

// WithClock overrides the time source used to name backups.
func WithClock(now func() time.Time) Option {
	return func(o *options) error {
		o.backupOptions = append(o.backupOptions, backup.WithClock(now))
		return nil
	}
}

// WithBackupUser sets the user recorded in backup metadata.
func WithBackupUser(user string) Option {
	return func(o *options) error {
		o.backupOptions = append(o.backupOptions, backup.WithUser(user))
		return nil
	}
}

// WithoutPrivilegeCheck skips the administrative access check done on creation.
func WithoutPrivilegeCheck() Option {
	return func(o *options) error {
		o.privilegeCheck = false
		return nil
	}
}

func withGeteuid(f func() int) Option {
	return func(o *options) error {
		o.geteuid = f
		return nil
	}
}

// New returns a manager for the daemon configuration.
// Unless disabled, it fails with a permission error when the process is not privileged enough
// to replace the configuration file.
func New(opts ...Option) (m *Manager, err error) {
	defer decorate.OnError(&err, gotext.Get("can't create configuration manager"))

	args := options{
		configPath:     consts.DefaultSSHDConfig,
		backupDir:      consts.DefaultBackupDir,
		privilegeCheck: true,
		geteuid:        unix.Geteuid,
	}
	for _, o := range opts {
		if err := o(&args); err != nil {
			return nil, err
		}
	}

	p, err := resolvePath(args.configPath)
	if err != nil {
		return nil, err
	}

	if args.privilegeCheck {
		if err := checkPrivileges(filepath.Dir(p), args.geteuid); err != nil {
			return nil, err
		}
	}

	if args.checker == nil {
		args.checker = syntaxcheck.New()
	}
	if args.validator == nil {
		args.validator = validator.New(validator.DefaultRules())
	}

	archive, err := backup.New(args.backupDir, args.backupOptions...)
	if err != nil {
		return nil, err
	}

	return &Manager{
		path:       p,
		archive:    archive,
		checker:    args.checker,
		validator:  args.validator,
		resolver:   args.resolver,
		maxBackups: args.maxBackups,
	}, nil
}

// resolvePath returns the absolute path of the configuration, with symlinks resolved so that
// the link itself is never replaced.
func resolvePath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return abs, nil
	}
	if err != nil {
		return "", sshderr.Wrap(sshderr.Permission, "resolve", abs, err)
	}
	return resolved, nil
}

func checkPrivileges(dir string, geteuid func() int) error {
	if uid := geteuid(); uid != 0 {
		return sshderr.New(sshderr.Permission, "check privileges", dir, gotext.Get("administrative privileges are required (running as uid %d)", uid))
	}
	if err := unix.Access(dir, unix.W_OK); err != nil {
		return sshderr.Wrap(sshderr.Permission, "check privileges", dir, err)
	}
	return nil
}

// ConfigPath returns the managed configuration file.
func (m *Manager) ConfigPath() string {
	return m.path
}

// BackupDir returns the directory holding backups.
func (m *Manager) BackupDir() string {
	return m.archive.Dir()
}

var (
	// locksMu protects locks.
	locksMu sync.Mutex
	// locks prevents concurrent operations on the same configuration file, whichever manager runs them.
	locks = make(map[string]*sync.Mutex)
)

func (m *Manager) lock() func() {
	locksMu.Lock()
	mu, ok := locks[m.path]
	if !ok {
		mu = &sync.Mutex{}
		locks[m.path] = mu
	}
	locksMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// Read returns the current content of the configuration file.
func (m *Manager) Read(ctx context.Context) (sshdconfig.Config, error) {
	log.Debugf(ctx, "Reading %s", m.path)
	return sshdconfig.Read(m.path)
}

// Effective returns the effective value of every directive of the configuration file.
func (m *Manager) Effective(ctx context.Context) (map[string]string, error) {
	cfg, err := m.Read(ctx)
	if err != nil {
		return nil, err
	}
	return m.resolver.Effective(cfg), nil
}

// Get returns the effective value of the directive name and whether it is set.
func (m *Manager) Get(ctx context.Context, name string) (string, bool, error) {
	e, err := m.Effective(ctx)
	if err != nil {
		return "", false, err
	}
	v, ok := e[name]
	return v, ok, nil
}

// ApplyOptions changes how a patch is applied.
type ApplyOptions struct {
	// Backup snapshots the live file before modifying it.
	Backup bool
	// Comment is attached to the backup.
	Comment string
	// DryRun validates and checks the candidate configuration without taking a backup nor
	// touching the live file.
	DryRun bool
}

// ApplyResult reports what an apply did.
type ApplyResult struct {
	// Backup is the snapshot taken before modifying the file, if any.
	Backup *backup.Record
	// Applied is the patch, with duplicate names merged.
	Applied sshdconfig.Patch
	// Changed lists the directives rewritten in place.
	Changed []string
	// Appended lists the directives added at the end of the file.
	Appended []string
	// Diff lists the modified lines, removed ones prefixed with "-" and added ones with "+".
	Diff []string
}

// Apply validates patch and applies it to the live configuration.
//
// Nothing is modified if any setting is invalid. A backup taken before a rejected candidate is
// kept.
func (m *Manager) Apply(ctx context.Context, patch sshdconfig.Patch, opts ApplyOptions) (r ApplyResult, err error) {
	defer decorate.OnError(&err, gotext.Get("can't apply settings to %s", m.path))

	p := sshdconfig.Patch(nil).Merge(patch)
	if err := m.validator.ValidatePatch(p); err != nil {
		return ApplyResult{}, err
	}
	r.Applied = p

	unlock := m.lock()
	defer unlock()

	if _, err := os.Stat(m.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ApplyResult{}, sshderr.Wrap(sshderr.ConfigNotFound, "apply", m.path, err)
		}
		return ApplyResult{}, fsError("apply", m.path, err)
	}

	if opts.Backup && !opts.DryRun {
		b, err := m.archive.Snapshot(ctx, m.path, opts.Comment)
		if err != nil {
			return ApplyResult{}, err
		}
		r.Backup = &b
	}

	cfg, err := sshdconfig.Read(m.path)
	if err != nil {
		return r, err
	}
	patched, stats := cfg.Apply(p, consts.AttributionComment)
	r.Changed = stats.Updated
	r.Appended = stats.Appended
	r.Diff = sshdconfig.Diff(cfg, patched)

	tmp, err := writeCandidate(m.path, patched.Bytes())
	if err != nil {
		return r, err
	}
	// The candidate is renamed on success, so this only cleans up aborted applies.
	defer func() {
		if errRm := os.Remove(tmp); errRm != nil && !errors.Is(errRm, fs.ErrNotExist) {
			log.Warning(ctx, gotext.Get("Can't remove candidate configuration %s: %v", tmp, errRm))
		}
	}()

	log.Debugf(ctx, "Checking candidate configuration %s", tmp)
	if err := m.checker.Check(ctx, tmp); err != nil {
		if sshderr.KindOf(err) == sshderr.Unknown {
			err = sshderr.Wrap(sshderr.SyntaxValidation, "check", tmp, err)
		}
		return r, err
	}

	if opts.DryRun {
		log.Info(ctx, gotext.Get("Dry run: %s would be updated", m.path))
		return r, nil
	}

	if err := os.Rename(tmp, m.path); err != nil {
		return r, fsError("apply", m.path, err)
	}
	if err := os.Chmod(m.path, 0600); err != nil {
		return r, fsError("apply", m.path, err)
	}
	log.Info(ctx, gotext.Get("%s updated: %d directive(s) changed, %d appended", m.path, len(r.Changed), len(r.Appended)))

	// The configuration is already applied: a retention failure is only reported.
	if _, err := m.archive.Prune(ctx, m.maxBackups); err != nil {
		log.Warning(ctx, gotext.Get("Can't enforce backup retention: %v", err))
	}

	return r, nil
}

// writeCandidate writes content to a new owner only file in the directory of target and
// returns its path. The content is flushed to disk before returning.
func writeCandidate(target string, content []byte) (p string, err error) {
	f, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*")
	if err != nil {
		return "", fsError("write candidate", filepath.Dir(target), err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	// CreateTemp already uses 0600, but the umask could have restricted it further.
	if err := f.Chmod(0600); err != nil {
		return "", fsError("write candidate", f.Name(), err)
	}
	if _, err := f.Write(content); err != nil {
		return "", fsError("write candidate", f.Name(), err)
	}
	if err := f.Sync(); err != nil {
		return "", fsError("write candidate", f.Name(), err)
	}
	if err := f.Close(); err != nil {
		return "", fsError("write candidate", f.Name(), err)
	}
	return f.Name(), nil
}

// fsError classifies a filesystem failure on the configuration or its directory.
func fsError(op, path string, err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return sshderr.Wrap(sshderr.Permission, op, path, err)
	}
	return sshderr.Wrap(sshderr.Unknown, op, path, err)
}

// Backup snapshots the live configuration.
func (m *Manager) Backup(ctx context.Context, comment string) (backup.Record, error) {
	unlock := m.lock()
	defer unlock()

	return m.archive.Snapshot(ctx, m.path, comment)
}

// Backups returns every backup, newest first.
func (m *Manager) Backups(ctx context.Context) ([]backup.Record, error) {
	return m.archive.List(ctx)
}

// Restore replaces the live configuration with the backup called name.
// It returns the backup which was restored and the snapshot of the configuration it replaced,
// which is nil if there was no configuration.
func (m *Manager) Restore(ctx context.Context, name string) (restored backup.Record, pre *backup.Record, err error) {
	defer decorate.OnError(&err, gotext.Get("can't restore backup %s", name))

	unlock := m.lock()
	defer unlock()

	restored, err = m.archive.Get(ctx, name)
	if err != nil {
		return backup.Record{}, nil, err
	}
	pre, err = m.archive.Restore(ctx, restored, m.path)
	if err != nil {
		return backup.Record{}, pre, err
	}
	return restored, pre, nil
}

// DeleteBackup removes the backup called name.
func (m *Manager) DeleteBackup(ctx context.Context, name string) (err error) {
	defer decorate.OnError(&err, gotext.Get("can't delete backup %s", name))

	unlock := m.lock()
	defer unlock()

	r, err := m.archive.Get(ctx, name)
	if err != nil {
		return err
	}
	return m.archive.Delete(ctx, r)
}

// Prune deletes every backup but the keep newest ones.
func (m *Manager) Prune(ctx context.Context, keep int) ([]backup.Record, error) {
	unlock := m.lock()
	defer unlock()

	return m.archive.Prune(ctx, keep)
}
