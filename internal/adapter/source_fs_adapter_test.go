package adapter

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "github.com/mouse-blink/relocator/internal/model"
)

func TestLocalSourceFSAdapter_Walk(t *testing.T) {
	t.Run("non recursive skips nested files", func(t *testing.T) {
		adapter := NewLocalSourceFSAdapter()

		root := t.TempDir()
		writeTestFile(t, filepath.Join(root, "index.js"), "module.exports = 1\n")

		nestedDir := filepath.Join(root, "nested")
		mustMkdir(t, nestedDir)
		writeTestFile(t, filepath.Join(nestedDir, "child.js"), "module.exports = 2\n")

		var visited []string
		err := adapter.Walk(m.Path(root), false, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			visited = append(visited, path)
			return nil
		})
		if err != nil {
			t.Fatalf("Walk() error = %v", err)
		}

		for _, forbidden := range []string{nestedDir, filepath.Join(nestedDir, "child.js")} {
			if containsPath(visited, forbidden) {
				t.Fatalf("Walk() unexpectedly visited %s when recursive is false", forbidden)
			}
		}

		if !containsPath(visited, filepath.Join(root, "index.js")) {
			t.Fatalf("Walk() did not visit top-level file")
		}
	})

	t.Run("recursive visits nested files", func(t *testing.T) {
		adapter := NewSourceFSAdapter(afero.NewMemMapFs())

		require.NoError(t, adapter.WriteFile("/src/index.js", []byte("1"), 0o644))
		require.NoError(t, adapter.WriteFile("/src/nested/child.js", []byte("2"), 0o644))

		var visited []string
		err := adapter.Walk("/src", true, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			visited = append(visited, filepath.ToSlash(path))
			return nil
		})
		require.NoError(t, err)
		assert.Contains(t, visited, "/src/nested/child.js")
	})
}

func TestLocalSourceFSAdapter_ReadAndStat(t *testing.T) {
	adapter := NewSourceFSAdapter(afero.NewMemMapFs())

	content := []byte("{\"a\": 1}\n")
	require.NoError(t, adapter.WriteFile("/pkg/data.json", content, 0o600))

	got, err := adapter.ReadFile("/pkg/data.json")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	info, err := adapter.FileInfo("/pkg/data.json")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = adapter.FileInfo("/pkg/missing.json")
	assert.True(t, os.IsNotExist(err))
}

func TestLocalSourceFSAdapter_Glob(t *testing.T) {
	adapter := NewSourceFSAdapter(afero.NewMemMapFs())

	for _, name := range []string{
		"/pkg/libfoo.so",
		"/pkg/lib/libbar.so.1.2",
		"/pkg/build/Release/addon.node",
		"/pkg/node_modules/dep/libdep.so",
		"/pkg/README.md",
	} {
		require.NoError(t, adapter.WriteFile(m.Path(name), []byte("x"), 0o644))
	}

	got, err := adapter.Glob("/pkg", "**/*.{so,so.*}", "node_modules")
	require.NoError(t, err)
	assert.Equal(t, []m.Path{"/pkg/lib/libbar.so.1.2", "/pkg/libfoo.so"}, got)

	_, err = adapter.Glob("/pkg", "[")
	assert.Error(t, err)
}

func TestLocalSourceFSAdapter_Symlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need elevated privileges on windows")
	}

	adapter := NewLocalSourceFSAdapter()

	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "real.so.1"), "lib")

	link := m.Path(filepath.Join(root, "out", "real.so"))
	if err := adapter.Symlink("../real.so.1", link); err != nil {
		t.Fatalf("Symlink() error = %v", err)
	}

	info, err := adapter.LinkInfo(link)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)

	target, err := adapter.ReadLink(link)
	require.NoError(t, err)
	assert.Equal(t, "../real.so.1", target)
}

func TestLocalSourceFSAdapter_PathHelpers(t *testing.T) {
	adapter := NewLocalSourceFSAdapter()

	joined := adapter.JoinPath("dist", "assets", "a.png")
	if joined != m.Path(filepath.Join("dist", "assets", "a.png")) {
		t.Fatalf("JoinPath() = %s", joined)
	}

	rel, err := adapter.RelPath("/base", "/base/sub/file.js")
	if err != nil {
		t.Fatalf("RelPath() error = %v", err)
	}

	if rel != m.Path(filepath.Join("sub", "file.js")) {
		t.Fatalf("RelPath() = %s", rel)
	}
}

func writeTestFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("failed to create dir %s: %v", path, err)
	}
}

func containsPath(paths []string, target string) bool {
	for _, p := range paths {
		if p == target {
			return true
		}
	}

	return false
}
