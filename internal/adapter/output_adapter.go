package adapter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	m "github.com/mouse-blink/relocator/internal/model"
)

// OutputAdapter is the sink for everything a build produces: emitted assets,
// symlinks and rewritten sources.
type OutputAdapter interface {
	// EmitFile writes an asset under the output directory. name is the
	// slash-separated emitted name.
	EmitFile(name string, content []byte, mode os.FileMode) error
	// EmitSymlink recreates a symlinked asset.
	EmitSymlink(name, target string) error
	// Path maps an emitted name onto the output directory.
	Path(name string) m.Path
}

// LocalOutputAdapter writes outputs below a root directory.
type LocalOutputAdapter struct {
	fs   SourceFSAdapter
	root m.Path
}

// NewLocalOutputAdapter constructs a LocalOutputAdapter rooted at root.
func NewLocalOutputAdapter(fs SourceFSAdapter, root m.Path) *LocalOutputAdapter {
	return &LocalOutputAdapter{fs: fs, root: root}
}

// Path resolves name inside the output root. Names escaping the root are
// kept inside it.
func (a *LocalOutputAdapter) Path(name string) m.Path {
	clean := filepath.Clean("/" + filepath.FromSlash(name))
	clean = strings.TrimPrefix(clean, string(filepath.Separator))

	return a.fs.JoinPath(string(a.root), clean)
}

// EmitFile writes content with the recorded permission bits. A zero mode
// falls back to 0644.
func (a *LocalOutputAdapter) EmitFile(name string, content []byte, mode os.FileMode) error {
	perm := mode.Perm()
	if perm == 0 {
		perm = 0o644
	}

	if err := a.fs.WriteFile(a.Path(name), content, perm); err != nil {
		return fmt.Errorf("emitting %s: %w", name, err)
	}

	return nil
}

// EmitSymlink creates the link named name pointing at target.
func (a *LocalOutputAdapter) EmitSymlink(name, target string) error {
	if err := a.fs.Symlink(target, a.Path(name)); err != nil {
		return fmt.Errorf("emitting symlink %s: %w", name, err)
	}

	return nil
}

// DiscardOutputAdapter accepts every emission and writes nothing. Dry runs
// use it to learn asset names without touching the output directory.
type DiscardOutputAdapter struct{}

// NewDiscardOutputAdapter constructs a DiscardOutputAdapter.
func NewDiscardOutputAdapter() *DiscardOutputAdapter {
	return &DiscardOutputAdapter{}
}

// Path returns name unchanged.
func (DiscardOutputAdapter) Path(name string) m.Path {
	return m.Path(name)
}

// EmitFile drops content.
func (DiscardOutputAdapter) EmitFile(string, []byte, os.FileMode) error {
	return nil
}

// EmitSymlink drops the link.
func (DiscardOutputAdapter) EmitSymlink(string, string) error {
	return nil
}
