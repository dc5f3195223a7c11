// Package steps implements the file transformations a pipeline task can run: cleaning, copying,
// stylesheet compilation, HTML and data minification, image optimization, script bundling,
// pre-compression and watching.
package steps

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
)

// Env describes the environment a step runs in
type Env struct {
	// Root is the absolute project root
	Root string
	// Development enables source maps and disables minification unless a step overrides it
	Development bool
	// Since is the start of the last successful run of the enclosing task, zero on the first run
	Since time.Time
	// Quiet hides progress bars
	Quiet bool
	// RunTask runs another task of the pipeline; used by Watch
	RunTask func(ctx context.Context, name string) error
}

// Step is a single transformation inside a task
type Step interface {
	// Name returns a short description for logs and dry runs
	Name() string
	Run(ctx context.Context, env *Env) error
}

func flag(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func since(env *Env, enabled bool) time.Time {
	if !enabled {
		return time.Time{}
	}
	return env.Since
}

func relPath(env *Env, path string) string {
	rel, err := filepath.Rel(env.Root, path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func writeFile(path string, data []byte, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "failed to create directory for %s", path)
	}

	if err := os.WriteFile(path, data, mode); err != nil {
		return eris.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

func copyFile(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return eris.Wrapf(err, "failed to stat %s", src)
	}

	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return eris.Wrapf(err, "failed to create directory for %s", dest)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dest)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return eris.Wrapf(err, "failed to copy %s to %s", src, dest)
	}

	return eris.Wrapf(out.Close(), "failed to close %s", dest)
}

func removeStale(path string) error {
	err := os.Remove(path)
	if err != nil && !eris.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "failed to remove stale file %s", path)
	}
	return nil
}
