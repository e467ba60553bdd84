// Package jsonfile reads and writes the JSON documents shared with the agent
// process. Writes are all-or-nothing: the previous content is copied to a
// timestamped backup, the new content goes to a temp file in the same
// directory, and a rename replaces the target.
package jsonfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned by Read when the file does not exist
var ErrNotFound = errors.New("file not found")

// BackupInfix separates the original name from the backup timestamp
const BackupInfix = ".backup."

// Read decodes the JSON file at path into v
func Read(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path exists
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Writer persists documents with a backup of the previous version
type Writer struct {
	// Retention is the number of backups kept per file. Zero keeps all.
	Retention int
	// Rename moves a finished temp file over its target. Nil uses os.Rename.
	Rename func(oldpath, newpath string) error
	now    func() time.Time
}

// NewWriter creates a Writer keeping at most retention backups per file
func NewWriter(retention int) *Writer {
	return &Writer{Retention: retention, now: time.Now}
}

// Write encodes v and atomically replaces path. If path already exists its
// bytes are first copied to <path>.backup.<unix-ms>[-<seq>]. On any error the file at
// path is left as it was.
func (w *Writer) Write(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}

	if _, err := w.Backup(path); err != nil {
		return err
	}

	if err := writeAtomic(path, data, w.rename); err != nil {
		return err
	}

	if w.Retention > 0 {
		// Pruning failures only leave extra backups around.
		_ = PruneBackups(path, w.Retention)
	}
	return nil
}

// Backup copies the current content of path to a timestamped sibling and
// returns the backup path. A missing file is not an error and yields "".
func (w *Writer) Backup(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read %s for backup: %w", path, err)
	}

	now := time.Now
	if w.now != nil {
		now = w.now
	}
	stamp := strconv.FormatInt(now().UnixMilli(), 10)
	backupPath := path + BackupInfix + stamp
	// Writes within one millisecond get a sequence suffix.
	for seq := 1; Exists(backupPath); seq++ {
		backupPath = path + BackupInfix + stamp + "-" + strconv.Itoa(seq)
	}
	if err := writeAtomic(backupPath, data, w.rename); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	return backupPath, nil
}

func (w *Writer) rename(oldpath, newpath string) error {
	if w.Rename != nil {
		return w.Rename(oldpath, newpath)
	}
	return os.Rename(oldpath, newpath)
}

// WriteAtomic writes data to a temp file next to path and renames it over path
func WriteAtomic(path string, data []byte) error {
	return writeAtomic(path, data, os.Rename)
}

func writeAtomic(path string, data []byte, rename func(oldpath, newpath string) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// Backups lists the backup files of path, oldest first
func Backups(path string) ([]string, error) {
	matches, err := filepath.Glob(path + BackupInfix + "*")
	if err != nil {
		return nil, err
	}

	type backup struct {
		path    string
		ts, seq int64
	}
	var found []backup
	for _, m := range matches {
		ts, seq, ok := parseBackupSuffix(strings.TrimPrefix(m, path+BackupInfix))
		if !ok {
			continue
		}
		found = append(found, backup{path: m, ts: ts, seq: seq})
	}
	sort.SliceStable(found, func(i, j int) bool {
		if found[i].ts != found[j].ts {
			return found[i].ts < found[j].ts
		}
		return found[i].seq < found[j].seq
	})

	out := make([]string, len(found))
	for i, b := range found {
		out[i] = b.path
	}
	return out, nil
}

// parseBackupSuffix reads "<unix-ms>" or "<unix-ms>-<seq>"
func parseBackupSuffix(suffix string) (ts, seq int64, ok bool) {
	stamp, rest, hasSeq := strings.Cut(suffix, "-")
	ts, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	if hasSeq {
		if seq, err = strconv.ParseInt(rest, 10, 64); err != nil || seq < 1 {
			return 0, 0, false
		}
	}
	return ts, seq, true
}

// PruneBackups removes the oldest backups of path so that at most keep remain
func PruneBackups(path string, keep int) error {
	backups, err := Backups(path)
	if err != nil {
		return err
	}
	if len(backups) <= keep {
		return nil
	}

	var errs []error
	for _, b := range backups[:len(backups)-keep] {
		if err := os.Remove(b); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
