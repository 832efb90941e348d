// Package lookup resolves program names to executable paths.
package lookup

import (
	"errors"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrNotFound is the error resulting if a path search failed to find an
// executable file.
var ErrNotFound = exec.ErrNotFound

// Getenv fetches a single environment variable, e.g. os.Getenv.
type Getenv func(key string) string

func findExecutable(fsys afero.Fs, file string) error {
	d, err := fsys.Stat(file)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNotFound
	case err != nil:
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0111 != 0 {
		return nil
	}
	return fs.ErrPermission
}

// LookPath searches for an executable named file in the directories named by
// the PATH environment variable. If file contains a slash, it is tried directly
// and the PATH is not consulted. The result may be an absolute path or a path
// relative to the current directory.
func LookPath(fsys afero.Fs, getenv Getenv, file string) (string, error) {
	if strings.Contains(file, "/") {
		err := findExecutable(fsys, file)
		if err == nil {
			return file, nil
		}
		return "", err
	}
	path := getenv("PATH")
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		path := filepath.Join(dir, file)
		if err := findExecutable(fsys, path); err == nil {
			return path, nil
		}
	}
	return "", ErrNotFound
}

// Which returns the executable path for name, or false if name doesn't
// resolve to anything runnable.
func Which(fsys afero.Fs, getenv Getenv, name string) (string, bool) {
	path, err := LookPath(fsys, getenv, name)
	return path, err == nil
}

// Resolve turns a program name into an executable path.
//
// A name that fails to resolve and contains an underscore is retried with
// underscores replaced by hyphens so that hyphenated program names stay
// reachable from identifier-safe call sites, e.g. "google_chrome" finds
// "google-chrome".
func Resolve(fsys afero.Fs, getenv Getenv, name string) (string, error) {
	path, err := LookPath(fsys, getenv, name)
	if err == nil {
		return path, nil
	}
	if errors.Is(err, ErrNotFound) && strings.Contains(name, "_") {
		if path, retryErr := LookPath(fsys, getenv, strings.ReplaceAll(name, "_", "-")); retryErr == nil {
			return path, nil
		}
	}
	return "", err
}
