package assets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mouse-blink/relocator/internal/adapter"
	m "github.com/mouse-blink/relocator/internal/model"
)

const defaultEmitLimit = 8

// Emitter receives emitted asset bytes. adapter.OutputAdapter implements it.
type Emitter interface {
	EmitFile(name string, content []byte, mode os.FileMode) error
	EmitSymlink(name, target string) error
}

// Manager schedules asset emission for relocated files.
type Manager interface {
	// Begin opens the emission scope of one source file.
	Begin(ctx context.Context, build *BuildContext) *Emission
}

type manager struct {
	adapter.SourceFSAdapter
	out      Emitter
	platform m.Platform
	limit    int
}

// NewManager returns a Manager reading through fs and writing through out.
// platform selects the shared-library pattern.
func NewManager(fs adapter.SourceFSAdapter, out Emitter, platform m.Platform) Manager {
	return &manager{
		SourceFSAdapter: fs,
		out:             out,
		platform:        platform,
		limit:           defaultEmitLimit,
	}
}

func (mgr *manager) Begin(ctx context.Context, build *BuildContext) *Emission {
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(mgr.limit)

	return &Emission{
		mgr:   mgr,
		build: build,
		group: group,
		ctx:   gctx,
		seen:  make(map[string]struct{}),
	}
}

// Emission tracks the asynchronous emissions started while relocating one
// file. Names are assigned synchronously; I/O runs in the background until
// Wait.
type Emission struct {
	mgr   *manager
	build *BuildContext
	group *errgroup.Group
	ctx   context.Context

	mu    sync.Mutex
	names []string
	seen  map[string]struct{}
}

func (e *Emission) note(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.seen[name]; ok {
		return
	}

	e.seen[name] = struct{}{}
	e.names = append(e.names, name)
}

// Names lists the asset names this file referenced, in first-use order.
func (e *Emission) Names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]string(nil), e.names...)
}

// Wait blocks until every emission scheduled through e has finished and
// returns the first failure.
func (e *Emission) Wait() error {
	return e.group.Wait()
}

// EmitAsset registers the file at path and schedules its emission. JavaScript
// files are left to the bundler and yield an empty name.
func (e *Emission) EmitAsset(path m.Path) (string, error) {
	if err := e.ctx.Err(); err != nil {
		return "", err
	}

	p := string(path)
	if strings.HasSuffix(p, ".js") || strings.HasSuffix(p, ".mjs") {
		return "", nil
	}

	want := filepath.Base(p)

	if pkg := PackageBase(p); pkg != "" && filepath.Ext(p) == ".node" {
		want = filepath.ToSlash(strings.TrimLeft(p[len(pkg):], `/\`))
		e.scheduleSharedLibs(pkg)
	}

	name, fresh := e.build.claim(path, want, m.AssetFile)
	e.note(name)

	if fresh {
		slog.Debug("Scheduling asset", "name", name, "source", path, "build", e.build.ID)

		e.group.Go(func() error {
			return e.emitFile(name, path)
		})
	}

	return name, nil
}

// EmitDirectory registers the directory at path and schedules emission of
// every file below it except JavaScript sources and nested node_modules.
func (e *Emission) EmitDirectory(path m.Path) (string, error) {
	if err := e.ctx.Err(); err != nil {
		return "", err
	}

	name, fresh := e.build.claim(path, filepath.Base(string(path)), m.AssetDirectory)
	e.note(name)

	if !fresh {
		return name, nil
	}

	slog.Debug("Scheduling asset directory", "name", name, "source", path, "build", e.build.ID)

	e.group.Go(func() error {
		files, err := e.mgr.Glob(path, "**", nodeModules)
		if err != nil {
			slog.Error("Failed to list asset directory", "path", path, "error", err)
			return fmt.Errorf("failed to list asset directory: %w", err)
		}

		for _, file := range files {
			if strings.HasSuffix(string(file), ".js") {
				continue
			}

			rel, err := e.mgr.RelPath(path, file)
			if err != nil {
				return fmt.Errorf("failed to name %s: %w", file, err)
			}

			if err := e.emitFile(name+"/"+filepath.ToSlash(string(rel)), file); err != nil {
				return err
			}
		}

		return nil
	})

	return name, nil
}

func sharedLibPattern(platformOS string) string {
	switch platformOS {
	case "darwin":
		return "**/*.dylib"
	case "win32":
		return "**/*.dll"
	default:
		return "**/*.{so,so.*}"
	}
}

// scheduleSharedLibs emits the platform shared libraries of pkg once per
// build under their package-relative names.
func (e *Emission) scheduleSharedLibs(pkg string) {
	if !e.build.markSharedLibs(pkg) {
		return
	}

	e.group.Go(func() error {
		libs, err := e.mgr.Glob(m.Path(pkg), sharedLibPattern(e.mgr.platform.OS), nodeModules)
		if err != nil {
			slog.Error("Failed to list shared libraries", "package", pkg, "error", err)
			return fmt.Errorf("failed to list shared libraries: %w", err)
		}

		for _, lib := range libs {
			rel, err := e.mgr.RelPath(m.Path(pkg), lib)
			if err != nil {
				return fmt.Errorf("failed to name %s: %w", lib, err)
			}

			name := filepath.ToSlash(string(rel))
			if !e.build.claimExact(lib, name, m.AssetSharedLibrary) {
				if owner, _ := e.build.Source(name); owner != lib {
					slog.Warn("Shared library name already taken", "name", name, "source", lib, "owner", owner)
				}

				continue
			}

			e.note(name)

			if err := e.emitFile(name, lib); err != nil {
				return err
			}
		}

		return nil
	})
}

// emitFile copies one file or recreates one symlink under name.
func (e *Emission) emitFile(name string, source m.Path) error {
	if err := e.ctx.Err(); err != nil {
		return err
	}

	info, err := e.mgr.LinkInfo(source)
	if err != nil {
		slog.Error("Failed to stat asset", "path", source, "error", err)
		return fmt.Errorf("failed to stat asset %s: %w", source, err)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		return e.emitSymlink(name, source)
	}

	content, err := e.mgr.ReadFile(source)
	if err != nil {
		slog.Error("Failed to read asset", "path", source, "error", err)
		return fmt.Errorf("failed to read asset %s: %w", source, err)
	}

	mode := info.Mode().Perm()
	e.build.recordFile(name, source, mode)

	if err := e.mgr.out.EmitFile(name, content, mode); err != nil {
		slog.Error("Failed to emit asset", "name", name, "error", err)
		return fmt.Errorf("failed to emit asset %s: %w", name, err)
	}

	return nil
}

func (e *Emission) emitSymlink(name string, source m.Path) error {
	link, err := e.mgr.ReadLink(source)
	if err != nil {
		slog.Error("Failed to read symlink", "path", source, "error", err)
		return fmt.Errorf("failed to read symlink %s: %w", source, err)
	}

	dir := filepath.Dir(string(source))

	target := link
	if !filepath.IsAbs(target) {
		target = filepath.Join(dir, target)
	}

	rel, err := e.mgr.RelPath(m.Path(dir), m.Path(target))
	if err != nil {
		return fmt.Errorf("failed to relativize symlink %s: %w", source, err)
	}

	relTarget := filepath.ToSlash(string(rel))
	e.build.setSymlink(name, relTarget)

	if err := e.mgr.out.EmitSymlink(name, relTarget); err != nil {
		slog.Error("Failed to emit symlink", "name", name, "error", err)
		return fmt.Errorf("failed to emit symlink %s: %w", name, err)
	}

	return nil
}
