// Package adapter contains UI and infrastructure adapters for the relocator CLI.
package adapter

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	m "github.com/mouse-blink/relocator/internal/model"
)

// ErrLinksUnsupported is returned when the backing filesystem cannot read or
// create symbolic links.
var ErrLinksUnsupported = errors.New("filesystem does not support symlinks")

// SourceFSAdapter abstracts filesystem-specific operations that the domain layer
// relies on when scanning inputs and emitting assets. It hides direct `os`
// access so the relocation logic can be tested against an in-memory tree.
//
//nolint:interfacebloat // A richer interface keeps workflow logic decoupled from os/fs.
type SourceFSAdapter interface {
	// Walk traverses the provided root path. When recursive is false the
	// implementation should limit itself to the root directory (no sub-dirs).
	Walk(root m.Path, recursive bool, fn FilepathWalkFunc) error

	// ReadFile loads a file and returns its contents.
	ReadFile(path m.Path) ([]byte, error)


	// FileInfo follows symlinks and returns metadata for path.
	FileInfo(path m.Path) (os.FileInfo, error)

	// LinkInfo returns metadata for path without following a final symlink.
	LinkInfo(path m.Path) (os.FileInfo, error)

	// ReadLink returns the target of a symbolic link.
	ReadLink(path m.Path) (string, error)

	// Glob returns the files under root matching pattern (doublestar syntax,
	// relative to root) in lexical order. Directories named in skipDirs are
	// not descended into.
	Glob(root m.Path, pattern string, skipDirs ...string) ([]m.Path, error)

	// WriteFile writes content to a file with the given permissions, creating
	// parent directories as needed.
	WriteFile(path m.Path, content []byte, perm os.FileMode) error

	// Symlink creates link pointing at target.
	Symlink(target string, link m.Path) error

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(path m.Path) error

	// RelPath returns the relative path from base to target.
	RelPath(base, target m.Path) (m.Path, error)

	// JoinPath joins path elements into a single path.
	JoinPath(elem ...string) m.Path
}

// FilepathWalkFunc mirrors the callback shape used by filepath.Walk. It is
// defined here to avoid leaking the standard-library type directly into the
// domain layer.
type FilepathWalkFunc func(path string, info os.FileInfo, err error) error

// LocalSourceFSAdapter backs SourceFSAdapter with an afero filesystem.
type LocalSourceFSAdapter struct {
	fs afero.Fs
}

// NewLocalSourceFSAdapter constructs a LocalSourceFSAdapter over the host
// filesystem.
func NewLocalSourceFSAdapter() *LocalSourceFSAdapter {
	return NewSourceFSAdapter(afero.NewOsFs())
}

// NewSourceFSAdapter constructs a LocalSourceFSAdapter over fs. Tests pass
// afero.NewMemMapFs().
func NewSourceFSAdapter(fs afero.Fs) *LocalSourceFSAdapter {
	return &LocalSourceFSAdapter{fs: fs}
}

// Walk iterates over files under root, optionally descending into subdirectories.
func (a *LocalSourceFSAdapter) Walk(root m.Path, recursive bool, fn FilepathWalkFunc) error {
	rootStr := string(root)

	return afero.Walk(a.fs, rootStr, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fn(path, info, err)
		}

		if info.IsDir() && !recursive && path != rootStr {
			return filepath.SkipDir
		}

		return fn(path, info, nil)
	})
}

// ReadFile loads file contents.
func (a *LocalSourceFSAdapter) ReadFile(path m.Path) ([]byte, error) {
	return afero.ReadFile(a.fs, string(path))
}

// FileInfo returns os.FileInfo metadata for the given path.
func (a *LocalSourceFSAdapter) FileInfo(path m.Path) (os.FileInfo, error) {
	return a.fs.Stat(string(path))
}

// LinkInfo lstats path when the filesystem supports it and stats it otherwise.
func (a *LocalSourceFSAdapter) LinkInfo(path m.Path) (os.FileInfo, error) {
	if lstater, ok := a.fs.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(string(path))
		return info, err
	}

	return a.fs.Stat(string(path))
}

// ReadLink returns the target of the symlink at path.
func (a *LocalSourceFSAdapter) ReadLink(path m.Path) (string, error) {
	reader, ok := a.fs.(afero.LinkReader)
	if !ok {
		return "", ErrLinksUnsupported
	}

	return reader.ReadlinkIfPossible(string(path))
}

// Glob walks root and matches every file's root-relative slash path against
// pattern.
func (a *LocalSourceFSAdapter) Glob(root m.Path, pattern string, skipDirs ...string) ([]m.Path, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob pattern %q", pattern)
	}

	skip := make(map[string]struct{}, len(skipDirs))
	for _, dir := range skipDirs {
		skip[dir] = struct{}{}
	}

	rootStr := string(root)

	var matches []m.Path

	err := afero.Walk(a.fs, rootStr, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if _, ok := skip[info.Name()]; ok && path != rootStr {
				return filepath.SkipDir
			}

			return nil
		}

		rel, err := filepath.Rel(rootStr, path)
		if err != nil {
			return err
		}

		ok, err := doublestar.Match(pattern, filepath.ToSlash(rel))
		if err != nil {
			return err
		}

		if ok {
			matches = append(matches, m.Path(path))
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("glob %s under %s: %w", pattern, root, err)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i] < matches[j] })

	return matches, nil
}

// WriteFile writes content to a file with the given permissions.
func (a *LocalSourceFSAdapter) WriteFile(path m.Path, content []byte, perm os.FileMode) error {
	if err := a.fs.MkdirAll(filepath.Dir(string(path)), 0o750); err != nil {
		return err
	}

	if err := afero.WriteFile(a.fs, string(path), content, perm); err != nil {
		return err
	}

	return a.fs.Chmod(string(path), perm)
}

// Symlink creates a symbolic link at link pointing to target.
func (a *LocalSourceFSAdapter) Symlink(target string, link m.Path) error {
	linker, ok := a.fs.(afero.Linker)
	if !ok {
		return ErrLinksUnsupported
	}

	if err := a.fs.MkdirAll(filepath.Dir(string(link)), 0o750); err != nil {
		return err
	}

	return linker.SymlinkIfPossible(target, string(link))
}

// MkdirAll creates a directory tree.
func (a *LocalSourceFSAdapter) MkdirAll(path m.Path) error {
	return a.fs.MkdirAll(string(path), 0o750)
}

// RelPath returns the relative path from base to target.
func (a *LocalSourceFSAdapter) RelPath(base, target m.Path) (m.Path, error) {
	rel, err := filepath.Rel(string(base), string(target))
	if err != nil {
		return "", err
	}

	return m.Path(rel), nil
}

// JoinPath joins path elements into a single path.
func (a *LocalSourceFSAdapter) JoinPath(elem ...string) m.Path {
	return m.Path(filepath.Join(elem...))
}
