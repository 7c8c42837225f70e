// Package backup manages the archive of daemon configuration snapshots.
//
// Each snapshot is a copy of the configuration file, with its permission bits, named after the
// snapshot time and an optional comment. A YAML sidecar file, named after the snapshot with a
// .meta suffix, records who took it and why.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/leonelquinteros/gotext"
	"github.com/maruel/natural"
	shutil "github.com/termie/go-shutil"
	"github.com/ubuntu/decorate"
	"github.com/ubuntu/sshdconf/internal/consts"
	log "github.com/ubuntu/sshdconf/internal/log"
	"github.com/ubuntu/sshdconf/internal/sshderr"
	"gopkg.in/yaml.v3"
)

const (
	// TimestampLayout is the layout of the snapshot time in names and metadata.
	TimestampLayout = "20060102_150405"

	// RestoreComment is the comment of the snapshot taken before a restore.
	RestoreComment = "before_restore"

	maxCommentLen   = 50
	maxNameAttempts = 1000
)

// Metadata is the content of a snapshot sidecar.
type Metadata struct {
	Timestamp    string `yaml:"timestamp"`
	OriginalPath string `yaml:"original_path"`
	Comment      string `yaml:"comment"`
	User         string `yaml:"user"`
}

// Record describes a snapshot stored in the archive.
type Record struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
	Mode    fs.FileMode
	Meta    Metadata
}

// Created returns the snapshot time recorded in metadata, or the modification time of the
// snapshot when metadata is missing.
func (r Record) Created() time.Time {
	if t, err := time.ParseInLocation(TimestampLayout, r.Meta.Timestamp, time.Local); err == nil {
		return t
	}
	return r.ModTime
}

// Archive is a directory of snapshots.
type Archive struct {
	dir      string
	prefix   string
	user     string
	now      func() time.Time
	readOnly bool
}

type options struct {
	prefix   string
	user     string
	now      func() time.Time
	readOnly bool
}

// Option configures the archive.
type Option func(*options)

// WithClock overrides the time source used to name snapshots.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithUser sets the user recorded in snapshot metadata.
func WithUser(user string) Option {
	return func(o *options) {
		o.user = user
	}
}

// WithPrefix overrides the base name of snapshots.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// ReadOnly opens an existing archive without creating or changing its directory.
// Every operation modifying the archive then fails.
func ReadOnly() Option {
	return func(o *options) {
		o.readOnly = true
	}
}

// New returns an archive stored in dir. The directory is created if needed and restricted to
// its owner.
func New(dir string, opts ...Option) (a *Archive, err error) {
	defer decorate.OnError(&err, gotext.Get("can't open backup directory %s", dir))

	o := options{
		prefix: consts.BackupPrefix,
		user:   os.Getenv(consts.SudoUserEnv),
		now:    time.Now,
	}
	for _, f := range opts {
		f(&o)
	}
	if o.user == "" {
		o.user = consts.DefaultBackupUser
	}

	if o.readOnly {
		fi, err := os.Stat(dir)
		if err != nil {
			return nil, ioError("open", dir, err)
		}
		if !fi.IsDir() {
			return nil, sshderr.New(sshderr.BackupIO, "open", dir, gotext.Get("not a directory"))
		}
	} else {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, ioError("open", dir, err)
		}
		if err := os.Chmod(dir, 0700); err != nil {
			return nil, ioError("open", dir, err)
		}
	}

	return &Archive{
		dir:      dir,
		prefix:   o.prefix,
		user:     o.user,
		now:      o.now,
		readOnly: o.readOnly,
	}, nil
}

// Dir returns the archive directory.
func (a *Archive) Dir() string {
	return a.dir
}

// Snapshot copies source into the archive and writes its metadata.
// No snapshot is left behind if the metadata can't be written.
func (a *Archive) Snapshot(ctx context.Context, source, comment string) (r Record, err error) {
	defer decorate.OnError(&err, gotext.Get("can't back up %s", source))

	if err := a.checkWritable("snapshot"); err != nil {
		return Record{}, err
	}

	now := a.now()
	p, err := a.reserve(now, comment)
	if err != nil {
		return Record{}, err
	}
	// Remove our placeholder or partial copy on any later failure.
	defer func() {
		if err == nil {
			return
		}
		if errRm := os.Remove(p); errRm != nil && !errors.Is(errRm, fs.ErrNotExist) {
			log.Warning(ctx, gotext.Get("Can't remove incomplete backup %s: %v", p, errRm))
		}
		_ = os.Remove(p + consts.MetaSuffix)
	}()

	log.Debugf(ctx, "Copying %s to %s", source, p)
	if _, err := shutil.Copy(source, p, true); err != nil {
		return Record{}, ioError("snapshot", source, err)
	}
	if err := os.Chtimes(p, now, now); err != nil {
		return Record{}, ioError("snapshot", p, err)
	}

	meta := Metadata{
		Timestamp:    now.Format(TimestampLayout),
		OriginalPath: source,
		Comment:      comment,
		User:         a.user,
	}
	d, err := yaml.Marshal(meta)
	if err != nil {
		return Record{}, ioError("snapshot", p+consts.MetaSuffix, err)
	}
	if err := os.WriteFile(p+consts.MetaSuffix, d, 0600); err != nil {
		return Record{}, ioError("snapshot", p+consts.MetaSuffix, err)
	}

	log.Info(ctx, gotext.Get("Backup of %s saved to %s", source, p))

	return a.record(ctx, p)
}

// reserve atomically creates an empty file with a free snapshot name and returns its path.
// Names taken in the same second get a -1, -2, … suffix.
func (a *Archive) reserve(now time.Time, comment string) (string, error) {
	base := a.prefix + now.Format(TimestampLayout)
	if c := Sanitize(comment); c != "" {
		base += "_" + c
	}

	for i := 0; i < maxNameAttempts; i++ {
		name := base
		if i > 0 {
			name = fmt.Sprintf("%s-%d", base, i)
		}
		p := filepath.Join(a.dir, name)
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", ioError("snapshot", p, err)
		}
		if err := f.Close(); err != nil {
			return "", ioError("snapshot", p, err)
		}
		return p, nil
	}

	return "", sshderr.New(sshderr.BackupIO, "snapshot", filepath.Join(a.dir, base), gotext.Get("no free backup name"))
}

// Sanitize turns a free form comment into a file name fragment: every character which is not
// an ASCII letter, digit, dash, underscore or dot is replaced by an underscore, and the result
// is truncated to 50 characters.
func Sanitize(comment string) string {
	var sb strings.Builder
	n := 0
	for _, r := range comment {
		if n == maxCommentLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
		n++
	}
	s := sb.String()
	// Never produce a name which would be mistaken for a sidecar.
	if strings.HasSuffix(s, consts.MetaSuffix) {
		s += "_"
	}
	return s
}

// List returns every snapshot of the archive, newest first.
func (a *Archive) List(ctx context.Context) (records []Record, err error) {
	defer decorate.OnError(&err, gotext.Get("can't list backups"))

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, ioError("list", a.dir, err)
	}

	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, a.prefix) || strings.HasSuffix(n, consts.MetaSuffix) {
			continue
		}
		r, err := a.record(ctx, filepath.Join(a.dir, n))
		if errors.Is(err, sshderr.BackupNotFound) {
			// Deleted while listing.
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].ModTime.Equal(records[j].ModTime) {
			return records[i].ModTime.After(records[j].ModTime)
		}
		return natural.Less(records[j].Name, records[i].Name)
	})

	return records, nil
}

// Get returns the snapshot called name.
func (a *Archive) Get(ctx context.Context, name string) (r Record, err error) {
	defer decorate.OnError(&err, gotext.Get("can't get backup %q", name))

	if name == "" || filepath.Base(name) != name || strings.HasSuffix(name, consts.MetaSuffix) {
		return Record{}, sshderr.New(sshderr.BackupNotFound, "get", name, gotext.Get("invalid backup name"))
	}
	return a.record(ctx, filepath.Join(a.dir, name))
}

func (a *Archive) record(ctx context.Context, p string) (Record, error) {
	fi, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, sshderr.Wrap(sshderr.BackupNotFound, "stat", p, err)
	}
	if err != nil {
		return Record{}, ioError("stat", p, err)
	}
	if !fi.Mode().IsRegular() {
		return Record{}, sshderr.New(sshderr.BackupNotFound, "stat", p, gotext.Get("not a regular file"))
	}

	return Record{
		Path:    p,
		Name:    fi.Name(),
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		Mode:    fi.Mode().Perm(),
		Meta:    readMeta(ctx, p+consts.MetaSuffix),
	}, nil
}

// readMeta returns the sidecar content, or empty metadata if it is missing or unreadable.
// JSON sidecars are valid YAML.
func readMeta(ctx context.Context, p string) Metadata {
	var m Metadata
	d, err := os.ReadFile(p)
	if err != nil {
		log.Debugf(ctx, "No metadata for backup: %v", err)
		return m
	}
	if err := yaml.Unmarshal(d, &m); err != nil {
		log.Debugf(ctx, "Ignoring invalid metadata %s: %v", p, err)
		return Metadata{}
	}
	return m
}

// Restore replaces target with the content and permissions of r.
// The current target is saved first and its snapshot returned. No snapshot is taken, and nil is
// returned, if target does not exist.
func (a *Archive) Restore(ctx context.Context, r Record, target string) (pre *Record, err error) {
	defer decorate.OnError(&err, gotext.Get("can't restore %s from %s", target, r.Name))

	if err := a.checkWritable("restore"); err != nil {
		return nil, err
	}

	if _, err := os.Stat(r.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, sshderr.Wrap(sshderr.BackupNotFound, "restore", r.Path, err)
		}
		return nil, ioError("restore", r.Path, err)
	}

	_, err = os.Stat(target)
	switch {
	case err == nil:
		s, err := a.Snapshot(ctx, target, RestoreComment)
		if err != nil {
			return nil, err
		}
		pre = &s
	case errors.Is(err, fs.ErrNotExist):
		log.Info(ctx, gotext.Get("%s does not exist, nothing to save before restoring", target))
	default:
		return nil, ioError("restore", target, err)
	}

	if err := replaceFile(r.Path, target); err != nil {
		return pre, err
	}

	log.Info(ctx, gotext.Get("%s restored from %s", target, r.Path))
	return pre, nil
}

// replaceFile atomically replaces dst with a copy of src, including permission bits.
func replaceFile(src, dst string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return sshderr.Wrap(permissionOr(err, sshderr.BackupIO), "restore", dst, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()
	if err := tmp.Close(); err != nil {
		return ioError("restore", tmpName, err)
	}

	if _, err := shutil.Copy(src, tmpName, true); err != nil {
		return ioError("restore", tmpName, err)
	}
	if err := syncFile(tmpName); err != nil {
		return ioError("restore", tmpName, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return sshderr.Wrap(permissionOr(err, sshderr.BackupIO), "restore", dst, err)
	}
	return nil
}

func syncFile(p string) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// Delete removes r and its metadata.
func (a *Archive) Delete(ctx context.Context, r Record) (err error) {
	defer decorate.OnError(&err, gotext.Get("can't delete backup %s", r.Name))

	if err := a.checkWritable("delete"); err != nil {
		return err
	}

	if err := os.Remove(r.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return sshderr.Wrap(sshderr.BackupNotFound, "delete", r.Path, err)
		}
		return ioError("delete", r.Path, err)
	}
	if err := os.Remove(r.Path + consts.MetaSuffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ioError("delete", r.Path+consts.MetaSuffix, err)
	}

	log.Info(ctx, gotext.Get("Backup %s deleted", r.Path))
	return nil
}

// Prune deletes every snapshot but the keep newest ones and returns the deleted records.
// A keep value of 0 or less keeps everything.
func (a *Archive) Prune(ctx context.Context, keep int) (removed []Record, err error) {
	defer decorate.OnError(&err, gotext.Get("can't prune backups"))

	if err := a.checkWritable("prune"); err != nil {
		return nil, err
	}

	if keep <= 0 {
		return nil, nil
	}

	records, err := a.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) <= keep {
		return nil, nil
	}

	for _, r := range records[keep:] {
		if err := a.Delete(ctx, r); err != nil && !errors.Is(err, sshderr.BackupNotFound) {
			return removed, err
		}
		removed = append(removed, r)
	}
	return removed, nil
}

func (a *Archive) checkWritable(op string) error {
	if !a.readOnly {
		return nil
	}
	return sshderr.New(sshderr.BackupIO, op, a.dir, gotext.Get("archive is opened read only"))
}

func ioError(op, path string, err error) error {
	return sshderr.Wrap(permissionOr(err, sshderr.BackupIO), op, path, err)
}

func permissionOr(err error, k sshderr.Kind) sshderr.Kind {
	if errors.Is(err, fs.ErrPermission) {
		return sshderr.Permission
	}
	return k
}
