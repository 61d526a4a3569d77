package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mouse-blink/relocator/internal/adapter"
	m "github.com/mouse-blink/relocator/internal/model"
)

type recordingEmitter struct {
	mu       sync.Mutex
	files    map[string][]byte
	modes    map[string]os.FileMode
	links    map[string]string
	emitted  []string
	failWith error
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{
		files: make(map[string][]byte),
		modes: make(map[string]os.FileMode),
		links: make(map[string]string),
	}
}

func (r *recordingEmitter) EmitFile(name string, content []byte, mode os.FileMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failWith != nil {
		return r.failWith
	}

	r.files[name] = content
	r.modes[name] = mode
	r.emitted = append(r.emitted, name)

	return nil
}

func (r *recordingEmitter) EmitSymlink(name, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.links[name] = target

	return nil
}

type fixture struct {
	fs    *adapter.LocalSourceFSAdapter
	out   *recordingEmitter
	mgr   Manager
	build *BuildContext
}

func newFixture(t *testing.T, osName string, files map[string]string) *fixture {
	t.Helper()

	fs := adapter.NewSourceFSAdapter(afero.NewMemMapFs())
	for name, content := range files {
		mode := os.FileMode(0o644)
		if len(name) > 5 && name[len(name)-5:] == ".node" {
			mode = 0o755
		}

		require.NoError(t, fs.WriteFile(m.Path(name), []byte(content), mode))
	}

	out := newRecordingEmitter()

	return &fixture{
		fs:    fs,
		out:   out,
		mgr:   NewManager(fs, out, m.Platform{OS: osName, Arch: "x64"}),
		build: NewBuildContext(),
	}
}

func TestEmitAsset(t *testing.T) {
	t.Run("basename and permissions", func(t *testing.T) {
		f := newFixture(t, "linux", map[string]string{"/src/data.json": `{"a":1}`})

		em := f.mgr.Begin(context.Background(), f.build)
		name, err := em.EmitAsset("/src/data.json")
		require.NoError(t, err)
		require.NoError(t, em.Wait())

		assert.Equal(t, "data.json", name)
		assert.Equal(t, []byte(`{"a":1}`), f.out.files["data.json"])

		mode, ok := f.build.Permission("data.json")
		require.True(t, ok)
		assert.Equal(t, os.FileMode(0o644), mode)
		assert.Equal(t, []string{"data.json"}, em.Names())
	})

	t.Run("javascript is left to the bundler", func(t *testing.T) {
		f := newFixture(t, "linux", map[string]string{"/src/util.js": "1", "/src/mod.mjs": "2"})

		em := f.mgr.Begin(context.Background(), f.build)

		for _, p := range []m.Path{"/src/util.js", "/src/mod.mjs"} {
			name, err := em.EmitAsset(p)
			require.NoError(t, err)
			assert.Empty(t, name)
		}

		require.NoError(t, em.Wait())
		assert.Empty(t, f.out.emitted)
	})

	t.Run("same basename from different sources", func(t *testing.T) {
		f := newFixture(t, "linux", map[string]string{
			"/one/icons/a.png": "first",
			"/two/icons/a.png": "second",
		})

		first := f.mgr.Begin(context.Background(), f.build)
		second := f.mgr.Begin(context.Background(), f.build)

		n1, err := first.EmitAsset("/one/icons/a.png")
		require.NoError(t, err)
		n2, err := second.EmitAsset("/two/icons/a.png")
		require.NoError(t, err)

		require.NoError(t, first.Wait())
		require.NoError(t, second.Wait())

		assert.Equal(t, "a.png", n1)
		assert.Equal(t, "a1.png", n2)
		assert.Equal(t, []byte("first"), f.out.files["a.png"])
		assert.Equal(t, []byte("second"), f.out.files["a1.png"])

		src, _ := f.build.Source("a1.png")
		assert.Equal(t, m.Path("/two/icons/a.png"), src)
	})

	t.Run("same source is emitted once", func(t *testing.T) {
		f := newFixture(t, "linux", map[string]string{"/src/a.txt": "x"})

		for i := 0; i < 3; i++ {
			em := f.mgr.Begin(context.Background(), f.build)
			name, err := em.EmitAsset("/src/a.txt")
			require.NoError(t, err)
			require.NoError(t, em.Wait())
			assert.Equal(t, "a.txt", name)
		}

		assert.Equal(t, []string{"a.txt"}, f.out.emitted)
	})

	t.Run("missing file fails the emission", func(t *testing.T) {
		f := newFixture(t, "linux", nil)

		em := f.mgr.Begin(context.Background(), f.build)
		_, err := em.EmitAsset("/src/gone.json")
		require.NoError(t, err)
		require.Error(t, em.Wait())
	})

	t.Run("emitter failure is reported", func(t *testing.T) {
		f := newFixture(t, "linux", map[string]string{"/src/a.txt": "x"})
		f.out.failWith = fmt.Errorf("disk full")

		em := f.mgr.Begin(context.Background(), f.build)
		_, err := em.EmitAsset("/src/a.txt")
		require.NoError(t, err)
		require.ErrorContains(t, em.Wait(), "disk full")
	})

	t.Run("cancelled context", func(t *testing.T) {
		f := newFixture(t, "linux", map[string]string{"/src/a.txt": "x"})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		em := f.mgr.Begin(ctx, f.build)
		_, err := em.EmitAsset("/src/a.txt")
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestEmitNativeAddon(t *testing.T) {
	const pkg = "/app/node_modules/some-pkg"

	tests := []struct {
		os       string
		wantLibs []string
	}{
		{os: "linux", wantLibs: []string{"lib/libbar.so.1", "libfoo.so"}},
		{os: "darwin", wantLibs: []string{"libmac.dylib"}},
		{os: "win32", wantLibs: []string{"win.dll"}},
	}

	for _, tt := range tests {
		t.Run(tt.os, func(t *testing.T) {
			f := newFixture(t, tt.os, map[string]string{
				pkg + "/build/Release/x.node":               "addon",
				pkg + "/libfoo.so":                          "so",
				pkg + "/lib/libbar.so.1":                    "so1",
				pkg + "/libmac.dylib":                       "dylib",
				pkg + "/win.dll":                            "dll",
				pkg + "/node_modules/dep/libdep.so":         "nested",
				pkg + "/node_modules/dep/build/Release/y.x": "other",
			})

			em := f.mgr.Begin(context.Background(), f.build)
			name, err := em.EmitAsset(pkg + "/build/Release/x.node")
			require.NoError(t, err)
			require.NoError(t, em.Wait())

			assert.Equal(t, "build/Release/x.node", name)
			assert.Equal(t, []byte("addon"), f.out.files["build/Release/x.node"])

			mode, _ := f.build.Permission("build/Release/x.node")
			assert.Equal(t, os.FileMode(0o755), mode)

			var libs []string
			for emitted := range f.out.files {
				if emitted != "build/Release/x.node" {
					libs = append(libs, emitted)
				}
			}

			assert.ElementsMatch(t, tt.wantLibs, libs)
		})
	}

	t.Run("shared libraries are scanned once per build", func(t *testing.T) {
		f := newFixture(t, "linux", map[string]string{
			pkg + "/a.node":    "a",
			pkg + "/b.node":    "b",
			pkg + "/libfoo.so": "so",
		})

		em := f.mgr.Begin(context.Background(), f.build)
		_, err := em.EmitAsset(pkg + "/a.node")
		require.NoError(t, err)
		_, err = em.EmitAsset(pkg + "/b.node")
		require.NoError(t, err)
		require.NoError(t, em.Wait())

		count := 0
		for _, emitted := range f.out.emitted {
			if emitted == "libfoo.so" {
				count++
			}
		}

		assert.Equal(t, 1, count)
	})
}

func TestEmitDirectory(t *testing.T) {
	f := newFixture(t, "linux", map[string]string{
		"/src/locales/en.json":                "en",
		"/src/locales/de/de.json":             "de",
		"/src/locales/loader.js":              "js",
		"/src/locales/node_modules/x/pkg.json": "nested",
		"/other/locales/fr.json":              "fr",
	})

	em := f.mgr.Begin(context.Background(), f.build)

	name, err := em.EmitDirectory("/src/locales")
	require.NoError(t, err)
	other, err := em.EmitDirectory("/other/locales")
	require.NoError(t, err)
	require.NoError(t, em.Wait())

	assert.Equal(t, "locales", name)
	assert.Equal(t, "locales1", other)

	assert.ElementsMatch(t,
		[]string{"locales/en.json", "locales/de/de.json", "locales1/fr.json"},
		f.out.emitted,
	)

	manifest := f.build.Manifest()

	var dirs []string
	for _, asset := range manifest.Assets {
		if asset.Kind == m.AssetDirectory {
			dirs = append(dirs, asset.Name)
		}
	}

	assert.Equal(t, []string{"locales", "locales1"}, dirs)
}

func TestEmitSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks require elevated privileges on windows")
	}

	tests := []struct {
		name     string
		files    map[string]string
		links    map[string]string
		emit     string
		wantName string
		wantLink map[string]string
		wantFile []string
	}{
		{
			name:     "asset symlink keeps its relative target",
			files:    map[string]string{"real/data.json": "{}"},
			links:    map[string]string{"src/data.json": "../real/data.json"},
			emit:     "src/data.json",
			wantName: "data.json",
			wantLink: map[string]string{"data.json": "../real/data.json"},
		},
		{
			name: "absolute asset symlink is made relative",
			files: map[string]string{
				"src/real.txt": "text",
			},
			links:    map[string]string{"src/alias.txt": "{dir}/src/real.txt"},
			emit:     "src/alias.txt",
			wantName: "alias.txt",
			wantLink: map[string]string{"alias.txt": "real.txt"},
		},
		{
			name: "versioned shared library link next to an addon",
			files: map[string]string{
				"node_modules/some-pkg/build/Release/x.node": "addon",
				"node_modules/some-pkg/lib/libfoo.so.1":      "lib",
			},
			links:    map[string]string{"node_modules/some-pkg/lib/libfoo.so": "libfoo.so.1"},
			emit:     "node_modules/some-pkg/build/Release/x.node",
			wantName: "build/Release/x.node",
			wantLink: map[string]string{"lib/libfoo.so": "libfoo.so.1"},
			wantFile: []string{"build/Release/x.node", "lib/libfoo.so.1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			fs := adapter.NewLocalSourceFSAdapter()

			for name, content := range tt.files {
				require.NoError(t, fs.WriteFile(m.Path(filepath.Join(dir, name)), []byte(content), 0o644))
			}

			for name, target := range tt.links {
				link := filepath.Join(dir, name)
				target = strings.ReplaceAll(target, "{dir}", dir)

				require.NoError(t, fs.Symlink(target, m.Path(link)))
			}

			out := newRecordingEmitter()
			build := NewBuildContext()
			em := NewManager(fs, out, m.Platform{OS: "linux", Arch: "x64"}).Begin(context.Background(), build)

			name, err := em.EmitAsset(m.Path(filepath.Join(dir, tt.emit)))
			require.NoError(t, err)
			require.NoError(t, em.Wait())

			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantLink, out.links)
			assert.ElementsMatch(t, tt.wantFile, out.emitted)

			kinds := make(map[string]m.AssetKind)
			for _, asset := range build.Manifest().Assets {
				kinds[asset.Name] = asset.Kind
			}

			for link, target := range tt.wantLink {
				got, ok := build.Symlink(link)
				require.True(t, ok, link)
				assert.Equal(t, target, got)
				assert.Equal(t, m.AssetSymlink, kinds[link])
			}
		})
	}
}

func TestEmitSharedLibraryNameTaken(t *testing.T) {
	const pkg = "/app/node_modules/some-pkg"

	tests := []struct {
		name      string
		first     string
		wantOwner m.Path
		wantBody  string
	}{
		{
			name:      "another file owns the name",
			first:     "/src/libfoo.so",
			wantOwner: "/src/libfoo.so",
			wantBody:  "other",
		},
		{
			name:      "the same library was emitted directly",
			first:     pkg + "/libfoo.so",
			wantOwner: pkg + "/libfoo.so",
			wantBody:  "lib",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "linux", map[string]string{
				"/src/libfoo.so":   "other",
				pkg + "/libfoo.so": "lib",
				pkg + "/x.node":    "addon",
			})

			em := f.mgr.Begin(context.Background(), f.build)

			name, err := em.EmitAsset(m.Path(tt.first))
			require.NoError(t, err)
			require.Equal(t, "libfoo.so", name)

			_, err = em.EmitAsset(pkg + "/x.node")
			require.NoError(t, err)
			require.NoError(t, em.Wait())

			owner, ok := f.build.Source("libfoo.so")
			require.True(t, ok)
			assert.Equal(t, tt.wantOwner, owner)
			assert.Equal(t, tt.wantBody, string(f.out.files["libfoo.so"]))
			assert.ElementsMatch(t, []string{"libfoo.so", "x.node"}, f.out.emitted)
		})
	}
}

func TestBuildContextConcurrentClaims(t *testing.T) {
	build := NewBuildContext()

	const workers = 32

	names := make([]string, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			names[i], _ = build.claim(m.Path(fmt.Sprintf("/src/%d/logo.png", i)), "logo.png", m.AssetFile)
		}(i)
	}

	wg.Wait()

	unique := make(map[string]struct{})
	for _, name := range names {
		unique[name] = struct{}{}
	}

	assert.Len(t, unique, workers)
	assert.Contains(t, unique, "logo.png")
	assert.Contains(t, unique, fmt.Sprintf("logo%d.png", workers-1))
}

func TestUniqueName(t *testing.T) {
	names := map[string]m.Path{
		"a.png":  "/x/a.png",
		"a1.png": "/y/a.png",
		"README": "/x/README",
	}

	assert.Equal(t, "a.png", uniqueName("a.png", "/x/a.png", names))
	assert.Equal(t, "a1.png", uniqueName("a.png", "/y/a.png", names))
	assert.Equal(t, "a2.png", uniqueName("a.png", "/z/a.png", names))
	assert.Equal(t, "README1", uniqueName("README", "/z/README", names))
	assert.Equal(t, "build/x1.node", uniqueName("build/x.node", "/q", map[string]m.Path{"build/x.node": "/p"}))
}

func TestPackageBase(t *testing.T) {
	tests := map[string]string{
		"/app/node_modules/pkg/build/Release/x.node":         "/app/node_modules/pkg",
		"/app/node_modules/@scope/pkg/lib/index.js":          "/app/node_modules/@scope/pkg",
		"/app/node_modules/a/node_modules/b/x.node":          "/app/node_modules/a/node_modules/b",
		`C:\app\node_modules\pkg\x.node`:                     `C:\app\node_modules\pkg`,
		"/app/src/index.js":                                  "",
		"/app/my_node_modules/pkg/x.node":                    "",
		"/app/node_modules":                                  "",
		"/app/node_modules/pkg":                              "/app/node_modules/pkg",
	}

	for in, want := range tests {
		assert.Equal(t, want, PackageBase(in), in)
	}
}
