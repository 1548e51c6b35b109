// Package expand unpacks WAR archives into the app base and provides the
// filesystem helpers used when applications are deployed and cleaned up.
package expand

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/core-tools/hsu-deployer/pkg/errors"
)

// TrackerFile records the modification time of the WAR an expanded
// directory was produced from.
const TrackerFile = "META-INF/war-tracker"

// LastModified returns the modification time in milliseconds, 0 when the
// path does not exist.
func LastModified(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.ModTime().UnixMilli()
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Expand unpacks war into appBase/baseName and returns the directory. An
// existing directory without a tracker is left untouched; one whose tracker
// disagrees with the WAR is deleted and expanded again.
func Expand(appBase, war, baseName string) (string, error) {
	docBase := filepath.Join(appBase, baseName)
	warModified := LastModified(war)
	if warModified == 0 {
		return "", errors.NewIOError("war does not exist", nil).WithContext("war", war)
	}

	if Exists(docBase) {
		tracked, ok := readTracker(docBase)
		if !ok || tracked == warModified {
			return docBase, nil
		}
		if err := Delete(docBase); err != nil {
			return "", errors.NewIOError("failed to delete stale expanded directory", err).WithContext("doc_base", docBase)
		}
	}

	if err := unzip(war, docBase); err != nil {
		_ = Delete(docBase)
		return "", err
	}
	if err := writeTracker(docBase, warModified); err != nil {
		return "", err
	}
	return docBase, nil
}

func readTracker(docBase string) (int64, bool) {
	data, err := os.ReadFile(filepath.Join(docBase, filepath.FromSlash(TrackerFile)))
	if err != nil {
		return 0, false
	}
	value, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func writeTracker(docBase string, warModified int64) error {
	tracker := filepath.Join(docBase, filepath.FromSlash(TrackerFile))
	if err := os.MkdirAll(filepath.Dir(tracker), 0o755); err != nil {
		return errors.NewIOError("failed to create tracker directory", err).WithContext("doc_base", docBase)
	}
	if err := os.WriteFile(tracker, []byte(strconv.FormatInt(warModified, 10)), 0o644); err != nil {
		return errors.NewIOError("failed to write war tracker", err).WithContext("doc_base", docBase)
	}
	stamp := time.UnixMilli(warModified)
	_ = os.Chtimes(tracker, stamp, stamp)
	return nil
}

func unzip(war, docBase string) error {
	reader, err := zip.OpenReader(war)
	if err != nil {
		return errors.NewIOError("failed to open archive", err).WithContext("war", war)
	}
	defer reader.Close()

	if err := os.MkdirAll(docBase, 0o755); err != nil {
		return errors.NewIOError("failed to create expanded directory", err).WithContext("doc_base", docBase)
	}

	root := filepath.Clean(docBase) + string(filepath.Separator)
	for _, entry := range reader.File {
		target := filepath.Join(docBase, filepath.FromSlash(entry.Name))
		if !strings.HasPrefix(target+string(filepath.Separator), root) {
			return errors.NewValidationError("archive entry escapes expansion directory", nil).
				WithContext("war", war).WithContext("entry", entry.Name)
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errors.NewIOError("failed to create directory", err).WithContext("entry", entry.Name)
			}
			continue
		}
		if err := extractFile(entry, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(entry *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.NewIOError("failed to create directory", err).WithContext("entry", entry.Name)
	}

	rc, err := entry.Open()
	if err != nil {
		return errors.NewIOError("failed to open archive entry", err).WithContext("entry", entry.Name)
	}
	defer rc.Close()

	return writeFile(rc, target)
}

func writeFile(r io.Reader, target string) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.NewIOError("failed to create file", err).WithContext("path", target)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return errors.NewIOError("failed to write file", err).WithContext("path", target)
	}
	if err := out.Close(); err != nil {
		return errors.NewIOError("failed to close file", err).WithContext("path", target)
	}
	return nil
}

// ExtractEntry copies a single archive entry to dest
func ExtractEntry(war, entryName, dest string) error {
	reader, err := zip.OpenReader(war)
	if err != nil {
		return errors.NewIOError("failed to open archive", err).WithContext("war", war)
	}
	defer reader.Close()

	for _, entry := range reader.File {
		if entry.Name == entryName {
			return extractFile(entry, dest)
		}
	}
	return errors.NewNotFoundError(fmt.Sprintf("archive entry %s not found", entryName), nil).WithContext("war", war)
}

// CopyFile copies src to dst, creating dst's parent directory
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.NewIOError("failed to open source file", err).WithContext("path", src)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.NewIOError("failed to create directory", err).WithContext("path", dst)
	}
	return writeFile(in, dst)
}

// Delete removes a file or a whole directory tree
func Delete(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return errors.NewIOError("failed to delete", err).WithContext("path", path)
	}
	return nil
}

// ValidateContextPath rejects context paths containing ".", ".." or empty
// segments once mapped below appBase.
func ValidateContextPath(appBase, contextPath string) bool {
	if strings.ContainsRune(contextPath, 0) {
		return false
	}
	base := filepath.Clean(appBase)
	docBase := base + strings.ReplaceAll(contextPath, "/", string(filepath.Separator))
	return filepath.Clean(docBase) == docBase
}

// Canonical resolves path to an absolute path with symlinks evaluated. For a
// path that no longer exists only its parent is resolved.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.NewIOError("failed to canonicalize path", err).WithContext("path", path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	if parent, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		return filepath.Join(parent, filepath.Base(abs)), nil
	}
	return abs, nil
}

// IsWithin reports whether path lies strictly below base
func IsWithin(path, base string) (bool, error) {
	canonicalPath, err := Canonical(path)
	if err != nil {
		return false, err
	}
	canonicalBase, err := Canonical(base)
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(canonicalPath, canonicalBase+string(filepath.Separator)), nil
}
