// Package admin implements the three admin-transport back-ends used
// for remote project lifecycle operations (createProject,
// deleteProject, updateHead), selected per destination URI scheme per
// spec §6.
package admin

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/pkg/errors"
	"github.com/vcsreplica/engine/pkgs/logger"
)

// LocalFS implements project lifecycle operations directly against a
// filesystem rooted at Root, for file:// destinations.
type LocalFS struct {
	Root string
	log  logger.Logger
}

// NewLocalFS builds a LocalFS transport rooted at root.
func NewLocalFS(root string, log logger.Logger) *LocalFS {
	return &LocalFS{Root: root, log: log.Module("admin-localfs")}
}

func (l *LocalFS) path(name string) string {
	return filepath.Join(l.Root, name)
}

// CreateProject initialises a bare repository at name, setting HEAD to
// head if it starts with "refs/".
func (l *LocalFS) CreateProject(ctx context.Context, name, head string) error {
	path := l.path(name)
	if _, err := git.PlainInit(path, true); err != nil {
		return errors.Wrapf(err, "failed to initialise bare repository at %s", path)
	}
	if strings.HasPrefix(head, "refs/") {
		return l.UpdateHead(ctx, name, head)
	}
	return nil
}

// DeleteProject removes the repository at name recursively.
func (l *LocalFS) DeleteProject(ctx context.Context, name string) error {
	if err := os.RemoveAll(l.path(name)); err != nil {
		return errors.Wrapf(err, "failed to remove repository %s", name)
	}
	return nil
}

// UpdateHead rewrites HEAD to point at newHead via an atomic
// write-then-rename, the same pattern the task store uses for its
// own durable writes.
func (l *LocalFS) UpdateHead(ctx context.Context, name, newHead string) error {
	gitDir := l.path(name)
	content := fmt.Sprintf("ref: %s\n", newHead)

	tmp, err := ioutil.TempFile(gitDir, "HEAD.*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp HEAD file")
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to write HEAD")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to close temp HEAD file")
	}

	if err := os.Rename(tmpPath, filepath.Join(gitDir, "HEAD")); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to rename HEAD into place")
	}
	return nil
}
