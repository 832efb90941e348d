package lookup

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
)

func testEnv(path string) Getenv {
	return func(key string) string {
		if key == "PATH" {
			return path
		}
		return ""
	}
}

func newTestFs(t *testing.T) afero.Fs {
	t.Helper()

	fsys := afero.NewMemMapFs()
	for _, exe := range []string{
		"/bin/cat",
		"/usr/bin/cat",
		"/usr/bin/google-chrome",
		"/opt/tools/deploy",
	} {
		if err := afero.WriteFile(fsys, exe, []byte("#!"), 0755); err != nil {
			t.Fatal(err)
		}
	}

	// Present but not executable.
	if err := afero.WriteFile(fsys, "/bin/README", []byte("docs"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := fsys.MkdirAll("/bin/sh", 0755); err != nil {
		t.Fatal(err)
	}

	return fsys
}

func TestLookPath(t *testing.T) {
	fsys := newTestFs(t)

	cases := []struct {
		name     string
		path     string
		file     string
		expected string
		err      error
	}{
		{"first match wins", "/bin:/usr/bin", "cat", "/bin/cat", nil},
		{"scans in order", "/sbin:/usr/bin", "cat", "/usr/bin/cat", nil},
		{"missing", "/bin:/usr/bin", "ls", "", ErrNotFound},
		{"empty path", "", "cat", "", ErrNotFound},
		{"slash is verbatim", "/bin:/usr/bin", "/opt/tools/deploy", "/opt/tools/deploy", nil},
		{"slash missing", "/bin", "/opt/tools/launch", "", ErrNotFound},
		{"slash not executable", "/bin", "/bin/README", "", fs.ErrPermission},
		{"directory is not executable", "/bin", "sh", "", ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := LookPath(fsys, testEnv(tc.path), tc.file)
			if tc.err == nil {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, tc.err), "got error: %v", err)
			}
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestLookPathEmptyElementMeansDot(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "local", []byte("#!"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := LookPath(fsys, testEnv(":/bin"), "local")
	assert.NoError(t, err)
	assert.Equal(t, "local", got)
}

func TestResolve(t *testing.T) {
	fsys := newTestFs(t)
	getenv := testEnv("/bin:/usr/bin")

	t.Run("plain name", func(t *testing.T) {
		got, err := Resolve(fsys, getenv, "cat")
		assert.NoError(t, err)
		assert.Equal(t, "/bin/cat", got)
	})

	t.Run("underscore retries with hyphens", func(t *testing.T) {
		got, err := Resolve(fsys, getenv, "google_chrome")
		assert.NoError(t, err)
		assert.Equal(t, "/usr/bin/google-chrome", got)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := Resolve(fsys, getenv, "ls")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("underscore retry can still miss", func(t *testing.T) {
		_, err := Resolve(fsys, getenv, "no_such_tool")
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestWhich(t *testing.T) {
	fsys := newTestFs(t)

	path, ok := Which(fsys, testEnv("/bin"), "cat")
	assert.True(t, ok)
	assert.Equal(t, "/bin/cat", path)

	_, ok = Which(fsys, testEnv("/bin"), "ls")
	assert.False(t, ok)
}
