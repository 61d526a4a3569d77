// Package assets turns resolved filesystem paths into deduplicated output
// names and emits their contents next to the bundle.
package assets

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	m "github.com/mouse-blink/relocator/internal/model"
)

// BuildContext holds the registries shared by every file of one build. It is
// safe for concurrent use and must not be reused across builds.
type BuildContext struct {
	ID uuid.UUID

	mu          sync.Mutex
	assets      map[m.Path]string
	assetNames  map[string]m.Path
	permissions map[string]os.FileMode
	symlinks    map[string]string
	kinds       map[string]m.AssetKind
	sharedLibs  map[string]struct{}
	// files maps every written name, including directory members, to the
	// file it was read from.
	files map[string]m.Path
}

// NewBuildContext returns empty registries under a fresh build ID.
func NewBuildContext() *BuildContext {
	return &BuildContext{
		ID:          uuid.New(),
		assets:      make(map[m.Path]string),
		assetNames:  make(map[string]m.Path),
		permissions: make(map[string]os.FileMode),
		symlinks:    make(map[string]string),
		kinds:       make(map[string]m.AssetKind),
		sharedLibs:  make(map[string]struct{}),
		files:       make(map[string]m.Path),
	}
}

// uniqueName returns a name for source derived from want. A name already
// owned by another source gets a numeric suffix before its extension.
func uniqueName(want string, source m.Path, names map[string]m.Path) string {
	ext := extname(want)
	stem := strings.TrimSuffix(want, ext)

	name := want
	for i := 1; ; i++ {
		owner, taken := names[name]
		if !taken || owner == source {
			return name
		}

		name = stem + strconv.Itoa(i) + ext
	}
}

func extname(name string) string {
	base := name[strings.LastIndex(name, "/")+1:]

	idx := strings.LastIndex(base, ".")
	if idx <= 0 {
		return ""
	}

	return base[idx:]
}

// claim registers source under a unique name derived from want. fresh is
// false when source was already registered; the existing name is returned
// and nothing needs to be emitted.
func (b *BuildContext) claim(source m.Path, want string, kind m.AssetKind) (name string, fresh bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.assets[source]; ok {
		return existing, false
	}

	name = uniqueName(want, source, b.assetNames)
	b.assets[source] = name
	b.assetNames[name] = source
	b.kinds[name] = kind

	return name, true
}

// claimExact registers name for source without renaming. It reports false
// when the name is already taken.
func (b *BuildContext) claimExact(source m.Path, name string, kind m.AssetKind) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.assetNames[name]; ok {
		return false
	}

	if _, ok := b.assets[source]; !ok {
		b.assets[source] = name
	}

	b.assetNames[name] = source
	b.kinds[name] = kind

	return true
}

// markSharedLibs records that the shared libraries of pkg were scheduled. It
// returns false if they already were.
func (b *BuildContext) markSharedLibs(pkg string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.sharedLibs[pkg]; ok {
		return false
	}

	b.sharedLibs[pkg] = struct{}{}

	return true
}

func (b *BuildContext) recordFile(name string, source m.Path, mode os.FileMode) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.permissions[name] = mode
	b.files[name] = source
}

func (b *BuildContext) setSymlink(name, target string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.symlinks[name] = target
	b.kinds[name] = m.AssetSymlink
}

// Name returns the emitted name registered for source.
func (b *BuildContext) Name(source m.Path) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	name, ok := b.assets[source]

	return name, ok
}

// Source returns the source path that owns name.
func (b *BuildContext) Source(name string) (m.Path, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	source, ok := b.assetNames[name]

	return source, ok
}

// Permission returns the recorded mode of an emitted file.
func (b *BuildContext) Permission(name string) (os.FileMode, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	mode, ok := b.permissions[name]

	return mode, ok
}

// Symlink returns the recorded link target of name.
func (b *BuildContext) Symlink(name string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	target, ok := b.symlinks[name]

	return target, ok
}

// Manifest snapshots the registries sorted by name. Files emitted inside an
// asset directory appear with their full emitted names.
func (b *BuildContext) Manifest() m.Manifest {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]struct{})

	var out []m.Asset

	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}

		seen[name] = struct{}{}

		kind := b.kinds[name]
		if kind == "" {
			kind = m.AssetFile
		}

		source, ok := b.assetNames[name]
		if !ok {
			source = b.files[name]
		}

		out = append(out, m.Asset{
			Name:   name,
			Source: source,
			Kind:   kind,
			Mode:   b.permissions[name],
			Target: b.symlinks[name],
		})
	}

	for name := range b.assetNames {
		add(name)
	}

	for name := range b.permissions {
		add(name)
	}

	for name := range b.symlinks {
		add(name)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return m.Manifest{BuildID: b.ID.String(), Assets: out}
}
