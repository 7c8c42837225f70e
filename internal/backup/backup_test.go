package backup_test

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubuntu/sshdconf/internal/backup"
	"github.com/ubuntu/sshdconf/internal/sshderr"
	"gopkg.in/yaml.v3"
)

var refTime = time.Date(2024, time.March, 5, 14, 30, 12, 0, time.Local)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		existingMode os.FileMode
		existing     bool
	}{
		"Create missing directory":           {},
		"Restrict existing open directory":   {existing: true, existingMode: 0755},
		"Keep existing restricted directory": {existing: true, existingMode: 0700},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := filepath.Join(t.TempDir(), "a", "backups")
			if tc.existing {
				require.NoError(t, os.MkdirAll(dir, tc.existingMode), "Setup: can't create backup directory")
				require.NoError(t, os.Chmod(dir, tc.existingMode), "Setup: can't set backup directory mode")
			}

			a, err := backup.New(dir)
			require.NoError(t, err, "New should succeed")
			require.Equal(t, dir, a.Dir(), "Dir should return the archive directory")

			fi, err := os.Stat(dir)
			require.NoError(t, err, "Backup directory should exist")
			require.Equal(t, os.FileMode(0700), fi.Mode().Perm(), "Backup directory should be restricted to its owner")
		})
	}
}

func TestReadOnly(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "backups")
	_, err := backup.New(missing, backup.ReadOnly())
	require.ErrorIs(t, err, sshderr.BackupIO, "Opening a missing archive read only should fail")
	require.NoDirExists(t, missing, "Opening read only should not create the directory")

	w := newArchive(t)
	source := writeConfig(t, t.TempDir(), "Port 22\n", 0644)
	_, err = w.Snapshot(context.Background(), source, "")
	require.NoError(t, err, "Setup: can't take snapshot")
	require.NoError(t, os.Chmod(w.Dir(), 0755), "Setup: can't open backup directory permissions")

	a, err := backup.New(w.Dir(), backup.ReadOnly())
	require.NoError(t, err, "Opening an existing archive read only should succeed")
	fi, err := os.Stat(w.Dir())
	require.NoError(t, err, "Backup directory should still exist")
	require.Equal(t, os.FileMode(0755), fi.Mode().Perm(), "Opening read only should not change permissions")

	records, err := a.List(context.Background())
	require.NoError(t, err, "List should succeed on a read only archive")
	require.Len(t, records, 1, "List should return existing snapshots")

	_, err = a.Snapshot(context.Background(), source, "")
	require.ErrorIs(t, err, sshderr.BackupIO, "Snapshot should be refused")
	_, err = a.Restore(context.Background(), records[0], source)
	require.ErrorIs(t, err, sshderr.BackupIO, "Restore should be refused")
	require.ErrorIs(t, a.Delete(context.Background(), records[0]), sshderr.BackupIO, "Delete should be refused")
	_, err = a.Prune(context.Background(), 1)
	require.ErrorIs(t, err, sshderr.BackupIO, "Prune should be refused")

	records, err = w.List(context.Background())
	require.NoError(t, err, "List should succeed")
	require.Len(t, records, 1, "Archive should be left untouched")
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		comment    string
		sourceMode os.FileMode

		wantName string
	}{
		"Without comment":              {wantName: "sshd_config_20240305_143012"},
		"With comment":                 {comment: "before hardening", wantName: "sshd_config_20240305_143012_before_hardening"},
		"Comment with path separators": {comment: "../etc/passwd", wantName: "sshd_config_20240305_143012_.._etc_passwd"},
		"Keeps permission bits":        {sourceMode: 0640, wantName: "sshd_config_20240305_143012"},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if tc.sourceMode == 0 {
				tc.sourceMode = 0600
			}
			source := writeConfig(t, t.TempDir(), "Port 22\n", tc.sourceMode)
			a := newArchive(t, backup.WithUser("alice"))

			r, err := a.Snapshot(context.Background(), source, tc.comment)
			require.NoError(t, err, "Snapshot should succeed")

			require.Equal(t, tc.wantName, r.Name, "Snapshot has unexpected name")
			require.Equal(t, filepath.Join(a.Dir(), tc.wantName), r.Path, "Snapshot has unexpected path")
			require.Equal(t, tc.sourceMode, r.Mode, "Snapshot should keep source permission bits")
			require.Equal(t, int64(len("Port 22\n")), r.Size, "Snapshot has unexpected size")
			require.True(t, r.ModTime.Equal(refTime), "Snapshot modification time should be the snapshot time")
			require.True(t, r.Created().Equal(refTime), "Created should come from metadata")

			got, err := os.ReadFile(r.Path)
			require.NoError(t, err, "Snapshot file should be readable")
			require.Equal(t, "Port 22\n", string(got), "Snapshot should be a copy of the source")

			want := backup.Metadata{
				Timestamp:    "20240305_143012",
				OriginalPath: source,
				Comment:      tc.comment,
				User:         "alice",
			}
			require.Equal(t, want, r.Meta, "Record carries unexpected metadata")

			var onDisk backup.Metadata
			d, err := os.ReadFile(r.Path + ".meta")
			require.NoError(t, err, "Sidecar should exist")
			require.NoError(t, yaml.Unmarshal(d, &onDisk), "Sidecar should be valid YAML")
			require.Equal(t, want, onDisk, "Sidecar has unexpected content")
		})
	}
}

func TestSnapshotDefaultUser(t *testing.T) {
	t.Setenv("SUDO_USER", "")

	a := newArchive(t)
	r, err := a.Snapshot(context.Background(), writeConfig(t, t.TempDir(), "", 0600), "")
	require.NoError(t, err, "Snapshot should succeed")
	require.Equal(t, "root", r.Meta.User, "User should default to root")

	t.Setenv("SUDO_USER", "bob")
	a = newArchive(t)
	r, err = a.Snapshot(context.Background(), writeConfig(t, t.TempDir(), "", 0600), "")
	require.NoError(t, err, "Snapshot should succeed")
	require.Equal(t, "bob", r.Meta.User, "User should come from SUDO_USER")
}

func TestSnapshotCollisions(t *testing.T) {
	t.Parallel()

	source := writeConfig(t, t.TempDir(), "Port 22\n", 0600)
	a := newArchive(t)

	var names []string
	for i := 0; i < 3; i++ {
		r, err := a.Snapshot(context.Background(), source, "same")
		require.NoError(t, err, "Snapshot should succeed")
		names = append(names, r.Name)
	}

	require.Equal(t, []string{
		"sshd_config_20240305_143012_same",
		"sshd_config_20240305_143012_same-1",
		"sshd_config_20240305_143012_same-2",
	}, names, "Snapshots in the same second should get distinct names")

	records, err := a.List(context.Background())
	require.NoError(t, err, "List should succeed")
	require.Len(t, records, 3, "No snapshot should have been overwritten")
	require.Equal(t, "sshd_config_20240305_143012_same-2", records[0].Name, "Latest snapshot should be listed first")
}

func TestSnapshotFailures(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		noSource     bool
		sidecarIsDir bool
	}{
		"Error on missing source":              {noSource: true},
		"Error when metadata can't be written": {sidecarIsDir: true},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			source := filepath.Join(t.TempDir(), "sshd_config")
			if !tc.noSource {
				writeConfig(t, filepath.Dir(source), "Port 22\n", 0600)
			}
			a := newArchive(t)
			if tc.sidecarIsDir {
				require.NoError(t, os.Mkdir(filepath.Join(a.Dir(), "sshd_config_20240305_143012.meta"), 0700), "Setup: can't create blocking directory")
			}

			_, err := a.Snapshot(context.Background(), source, "")
			require.ErrorIs(t, err, sshderr.BackupIO, "Snapshot should fail with a backup error")

			_, err = os.Stat(filepath.Join(a.Dir(), "sshd_config_20240305_143012"))
			require.ErrorIs(t, err, os.ErrNotExist, "No snapshot should be left behind")
		})
	}
}

func TestSanitize(t *testing.T) {
	t.Parallel()

	long := "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyz"

	tests := map[string]struct {
		comment string
		want    string
	}{
		"Empty":                    {},
		"Allowed characters":       {comment: "pre-apply_v1.2", want: "pre-apply_v1.2"},
		"Spaces and slashes":       {comment: "a b/c", want: "a_b_c"},
		"Non ASCII runes":          {comment: "résumé", want: "r_sum_"},
		"Truncated to 50":          {comment: long, want: long[:50]},
		"Sidecar suffix is broken": {comment: "x.meta", want: "x.meta_"},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.want, backup.Sanitize(tc.comment), "Sanitize returned unexpected value")
		})
	}
}

func TestList(t *testing.T) {
	t.Parallel()

	source := writeConfig(t, t.TempDir(), "Port 22\n", 0600)
	a := newArchive(t, backup.WithClock(clock(refTime, refTime.Add(time.Hour), refTime.Add(time.Minute))))

	var created []string
	for _, c := range []string{"first", "second", "third"} {
		r, err := a.Snapshot(context.Background(), source, c)
		require.NoError(t, err, "Setup: Snapshot should succeed")
		created = append(created, r.Name)
	}

	// Noise which is not part of the archive.
	require.NoError(t, os.WriteFile(filepath.Join(a.Dir(), "unrelated"), nil, 0600), "Setup: can't write unrelated file")
	require.NoError(t, os.Mkdir(filepath.Join(a.Dir(), "sshd_config_dir"), 0700), "Setup: can't create directory")

	records, err := a.List(context.Background())
	require.NoError(t, err, "List should succeed")

	var got []string
	for _, r := range records {
		got = append(got, r.Name)
	}
	require.Equal(t, []string{created[1], created[2], created[0]}, got, "List should order by modification time, newest first")
}

func TestListSameTimeOrdersByName(t *testing.T) {
	t.Parallel()

	source := writeConfig(t, t.TempDir(), "Port 22\n", 0600)
	a := newArchive(t)

	for i := 0; i < 11; i++ {
		_, err := a.Snapshot(context.Background(), source, "")
		require.NoError(t, err, "Setup: Snapshot should succeed")
	}

	records, err := a.List(context.Background())
	require.NoError(t, err, "List should succeed")
	require.Len(t, records, 11, "List should return every snapshot")
	require.Equal(t, "sshd_config_20240305_143012-10", records[0].Name, "Highest suffix should come first")
	require.Equal(t, "sshd_config_20240305_143012-9", records[1].Name, "Suffixes should be compared numerically")
	require.Equal(t, "sshd_config_20240305_143012", records[10].Name, "Unsuffixed snapshot should come last")
}

func TestListMetadata(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		sidecar  *string
		wantMeta backup.Metadata
	}{
		"Missing sidecar gives empty metadata": {},
		"Invalid sidecar gives empty metadata": {sidecar: ptr("timestamp: [unclosed")},
		"JSON sidecar is read": {
			sidecar:  ptr(`{"timestamp": "20230101_000000", "original_path": "/etc/ssh/sshd_config", "comment": "old", "user": "root"}`),
			wantMeta: backup.Metadata{Timestamp: "20230101_000000", OriginalPath: "/etc/ssh/sshd_config", Comment: "old", User: "root"},
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			a := newArchive(t)
			p := writeConfig(t, a.Dir(), "Port 22\n", 0600)
			require.NoError(t, os.Rename(p, filepath.Join(a.Dir(), "sshd_config_20230101_000000")), "Setup: can't rename backup")
			if tc.sidecar != nil {
				require.NoError(t, os.WriteFile(filepath.Join(a.Dir(), "sshd_config_20230101_000000.meta"), []byte(*tc.sidecar), 0600), "Setup: can't write sidecar")
			}

			records, err := a.List(context.Background())
			require.NoError(t, err, "List should not fail on sidecar issues")
			require.Len(t, records, 1, "List should return the snapshot")
			require.Equal(t, tc.wantMeta, records[0].Meta, "List returned unexpected metadata")
		})
	}
}

func TestGet(t *testing.T) {
	t.Parallel()

	a := newArchive(t)
	r, err := a.Snapshot(context.Background(), writeConfig(t, t.TempDir(), "Port 22\n", 0600), "")
	require.NoError(t, err, "Setup: Snapshot should succeed")

	got, err := a.Get(context.Background(), r.Name)
	require.NoError(t, err, "Get should find an existing snapshot")
	require.Equal(t, r, got, "Get should return the snapshot record")

	for _, name := range []string{"", "absent", r.Name + ".meta", "../" + r.Name, filepath.Join(a.Dir(), r.Name)} {
		_, err := a.Get(context.Background(), name)
		require.ErrorIs(t, err, sshderr.BackupNotFound, "Get should fail with BackupNotFound for %q", name)
	}
}

func TestRestore(t *testing.T) {
	t.Parallel()

	target := writeConfig(t, t.TempDir(), "Port 22\n", 0600)
	a := newArchive(t, backup.WithClock(clock(refTime, refTime.Add(time.Second), refTime.Add(2*time.Second), refTime.Add(3*time.Second))))

	original, err := a.Snapshot(context.Background(), target, "original")
	require.NoError(t, err, "Setup: Snapshot should succeed")

	require.NoError(t, os.WriteFile(target, []byte("Port 2222\n"), 0644), "Setup: can't change target")
	require.NoError(t, os.Chmod(target, 0644), "Setup: can't change target mode")

	pre, err := a.Restore(context.Background(), original, target)
	require.NoError(t, err, "Restore should succeed")
	require.NotNil(t, pre, "Restore should save the current target first")
	assert.Equal(t, backup.RestoreComment, pre.Meta.Comment, "Pre-restore snapshot has unexpected comment")
	assertContent(t, pre.Path, "Port 2222\n")
	assertContent(t, target, "Port 22\n")

	fi, err := os.Stat(target)
	require.NoError(t, err, "Target should exist")
	require.Equal(t, os.FileMode(0600), fi.Mode().Perm(), "Restore should bring back snapshot permission bits")

	// Undo the restore.
	pre2, err := a.Restore(context.Background(), *pre, target)
	require.NoError(t, err, "Second restore should succeed")
	require.NotNil(t, pre2, "Second restore should save the current target first")
	assertContent(t, pre2.Path, "Port 22\n")
	assertContent(t, target, "Port 2222\n")

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err, "Target directory should be readable")
	require.Len(t, entries, 1, "No temporary file should be left next to the target")
}

func TestRestoreFailures(t *testing.T) {
	t.Parallel()

	t.Run("Error on deleted snapshot", func(t *testing.T) {
		t.Parallel()

		target := writeConfig(t, t.TempDir(), "Port 22\n", 0600)
		a := newArchive(t)
		r, err := a.Snapshot(context.Background(), target, "")
		require.NoError(t, err, "Setup: Snapshot should succeed")
		require.NoError(t, os.Remove(r.Path), "Setup: can't remove snapshot")

		_, err = a.Restore(context.Background(), r, target)
		require.ErrorIs(t, err, sshderr.BackupNotFound, "Restore should fail with BackupNotFound")

		records, err := a.List(context.Background())
		require.NoError(t, err, "List should succeed")
		require.Empty(t, records, "No pre-restore snapshot should be taken")
	})

	t.Run("Missing target is restored without snapshot", func(t *testing.T) {
		t.Parallel()

		src := writeConfig(t, t.TempDir(), "Port 22\n", 0600)
		a := newArchive(t)
		r, err := a.Snapshot(context.Background(), src, "")
		require.NoError(t, err, "Setup: Snapshot should succeed")

		target := filepath.Join(t.TempDir(), "sshd_config")
		pre, err := a.Restore(context.Background(), r, target)
		require.NoError(t, err, "Restore should succeed")
		require.Nil(t, pre, "Nothing should be saved when target does not exist")
		assertContent(t, target, "Port 22\n")
	})
}

func TestDelete(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		removeSidecar bool
		removeData    bool

		wantErr bool
	}{
		"Delete snapshot and sidecar":     {},
		"Delete snapshot without sidecar": {removeSidecar: true},

		"Error on missing snapshot": {removeData: true, wantErr: true},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			a := newArchive(t)
			r, err := a.Snapshot(context.Background(), writeConfig(t, t.TempDir(), "Port 22\n", 0600), "")
			require.NoError(t, err, "Setup: Snapshot should succeed")
			if tc.removeSidecar {
				require.NoError(t, os.Remove(r.Path+".meta"), "Setup: can't remove sidecar")
			}
			if tc.removeData {
				require.NoError(t, os.Remove(r.Path), "Setup: can't remove snapshot")
			}

			err = a.Delete(context.Background(), r)
			if tc.wantErr {
				require.ErrorIs(t, err, sshderr.BackupNotFound, "Delete should fail with BackupNotFound")
				return
			}
			require.NoError(t, err, "Delete should succeed")
			require.NoFileExists(t, r.Path, "Snapshot should be removed")
			require.NoFileExists(t, r.Path+".meta", "Sidecar should be removed")
		})
	}
}

func TestPrune(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		snapshots int
		keep      int

		wantRemaining int
	}{
		"Keep newest":                 {snapshots: 5, keep: 2, wantRemaining: 2},
		"Nothing to prune":            {snapshots: 2, keep: 3, wantRemaining: 2},
		"Exactly at limit":            {snapshots: 3, keep: 3, wantRemaining: 3},
		"Zero disables retention":     {snapshots: 4, keep: 0, wantRemaining: 4},
		"Negative disables retention": {snapshots: 4, keep: -1, wantRemaining: 4},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var times []time.Time
			for i := 0; i < tc.snapshots; i++ {
				times = append(times, refTime.Add(time.Duration(i)*time.Minute))
			}
			a := newArchive(t, backup.WithClock(clock(times...)))
			source := writeConfig(t, t.TempDir(), "Port 22\n", 0600)
			var names []string
			for i := 0; i < tc.snapshots; i++ {
				r, err := a.Snapshot(context.Background(), source, "")
				require.NoError(t, err, "Setup: Snapshot should succeed")
				names = append(names, r.Name)
			}

			removed, err := a.Prune(context.Background(), tc.keep)
			require.NoError(t, err, "Prune should succeed")
			require.Len(t, removed, tc.snapshots-tc.wantRemaining, "Prune removed an unexpected number of snapshots")

			records, err := a.List(context.Background())
			require.NoError(t, err, "List should succeed")
			require.Len(t, records, tc.wantRemaining, "Unexpected number of remaining snapshots")

			// Remaining snapshots are the newest ones.
			sort.Sort(sort.Reverse(sort.StringSlice(names)))
			for i, r := range records {
				require.Equal(t, names[i], r.Name, "Prune should keep the newest snapshots")
			}
		})
	}
}

func newArchive(t *testing.T, opts ...backup.Option) *backup.Archive {
	t.Helper()

	opts = append([]backup.Option{backup.WithClock(func() time.Time { return refTime })}, opts...)
	a, err := backup.New(filepath.Join(t.TempDir(), "backups"), opts...)
	require.NoError(t, err, "Setup: can't create archive")
	return a
}

func writeConfig(t *testing.T, dir, content string, mode os.FileMode) string {
	t.Helper()

	p := filepath.Join(dir, "sshd_config")
	require.NoError(t, os.WriteFile(p, []byte(content), mode), "Setup: can't write configuration")
	require.NoError(t, os.Chmod(p, mode), "Setup: can't set configuration mode")
	return p
}

// clock returns each time in turn, then keeps returning the last one.
func clock(times ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	}
}

func assertContent(t *testing.T, p, want string) {
	t.Helper()

	got, err := os.ReadFile(p)
	require.NoError(t, err, "File %s should be readable", p)
	require.Equal(t, want, string(got), "File %s has unexpected content", p)
}

func ptr[T any](v T) *T {
	return &v
}
