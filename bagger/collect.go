package bagger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ndlib/bagger/bagit"
)

// File is one file discovered during collection.
type File struct {
	Abs  string // absolute path on disk
	Rel  string // forward-slash path relative to the walk root
	Size int64
}

// LinkCycleError reports a directory reached twice through symbolic links.
type LinkCycleError struct {
	Path string
}

func (e *LinkCycleError) Error() string {
	return fmt.Sprintf("symbolic link cycle at %s", e.Path)
}

// hiddenMode selects what the collector does with dotfiles.
type hiddenMode int

const (
	keepHidden   hiddenMode = iota
	skipHidden              // leave on disk, omit from the walk
	deleteHidden            // remove from the source tree; irreversible
)

// collector walks the tree rooted at root and emits every regular file onto
// a channel, lazily, so digesting can begin before the walk finishes.
// Symlinks are followed; each resolved directory may be visited once, and a
// second visit aborts the walk with a LinkCycleError. Every name is checked
// against the bag's file name policy and a rejected name aborts the whole
// walk, unless hidden-file handling claims the entry first.
type collector struct {
	root     string
	hidden   hiddenMode
	skipRoot func(name string) bool // root-level entries to leave out, may be nil
	visited  map[string]bool
}

func (c *collector) run(ctx context.Context, out chan<- File) error {
	c.visited = make(map[string]bool)
	return c.walk(ctx, c.root, "", out)
}

func (c *collector) walk(ctx context.Context, dir, rel string, out chan<- File) error {
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return errors.Wrapf(err, "resolving %s", dir)
	}
	if c.visited[resolved] {
		return &LinkCycleError{Path: dir}
	}
	c.visited[resolved] = true

	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "reading directory %s", dir)
	}
	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(dir, name)
		if rel == "" && c.skipRoot != nil && c.skipRoot(name) {
			continue
		}
		if bagit.IsHidden(name) {
			switch c.hidden {
			case skipHidden:
				continue
			case deleteHidden:
				log.WithField("path", path).Info("deleting hidden file")
				if err := os.RemoveAll(path); err != nil {
					return errors.Wrapf(err, "deleting %s", path)
				}
				continue
			}
		}
		childRel := name
		if rel != "" {
			childRel = rel + "/" + name
		}
		if err := bagit.CheckPath(childRel); err != nil {
			return err
		}
		info, err := os.Stat(path)
		if err != nil {
			return errors.Wrapf(err, "stat %s", path)
		}
		switch {
		case info.IsDir():
			if err := c.walk(ctx, path, childRel, out); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			select {
			case out <- File{Abs: path, Rel: childRel, Size: info.Size()}:
			case <-ctx.Done():
				return ctx.Err()
			}
		default:
			return errors.Errorf("unsupported file type at %s", path)
		}
	}
	return nil
}
