package domain_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mouse-blink/relocator/internal/adapter"
	controllermocks "github.com/mouse-blink/relocator/internal/controller/mocks"
	"github.com/mouse-blink/relocator/internal/domain"
	m "github.com/mouse-blink/relocator/internal/model"
)

const indexSource = "const path = require('path');\nconst p = path.join(__dirname, 'data.json');\n"

type workflowFixture struct {
	fs       *adapter.LocalSourceFSAdapter
	ui       *controllermocks.MockUI
	workflow domain.Workflow
}

func newWorkflowFixture(t *testing.T, files map[string]string) *workflowFixture {
	t.Helper()

	fs := adapter.NewSourceFSAdapter(afero.NewMemMapFs())
	for name, content := range files {
		require.NoError(t, fs.WriteFile(m.Path(name), []byte(content), 0o644))
	}

	ui := controllermocks.NewMockUI(t)
	platform := m.Platform{OS: "linux", Arch: "x64", NodeVersion: "18.17.0", NodeABI: "108", NapiVersion: 9, Libc: "glibc"}

	return &workflowFixture{
		fs: fs,
		ui: ui,
		workflow: domain.NewWorkflow(
			fs,
			adapter.NewLocalJSFileAdapter(),
			adapter.NewLocalManifestStore(fs),
			ui,
			platform,
		),
	}
}

// expectLifecycle registers the calls every successful command makes.
func (f *workflowFixture) expectLifecycle(threads, files int) {
	f.ui.EXPECT().Start(mock.Anything, mock.Anything).Return(nil).Once()
	f.ui.EXPECT().DisplayConcurrencyInfo(mock.Anything, threads, files).Return().Once()
	f.ui.EXPECT().DisplayFileReport(mock.Anything, mock.Anything).Return().Times(files)
	f.ui.EXPECT().Wait(mock.Anything).Return().Once()
	f.ui.EXPECT().Close(mock.Anything).Return().Once()
}

func (f *workflowFixture) read(t *testing.T, path string) string {
	t.Helper()

	data, err := f.fs.ReadFile(m.Path(path))
	require.NoError(t, err)

	return string(data)
}

func passThrough(_ context.Context, _ []m.Report, _ m.Manifest, err error) error {
	return err
}

func TestWorkflow_Run(t *testing.T) {
	f := newWorkflowFixture(t, map[string]string{
		"/app/src/index.js":      indexSource,
		"/app/src/lib/plain.cjs": "module.exports = 1;\n",
		"/app/src/data.json":     `{"a":1}`,
		"/app/src/README.md":     "# readme",
	})

	f.expectLifecycle(2, 2)

	var got []m.Report

	f.ui.EXPECT().DisplaySummary(mock.Anything, mock.Anything, mock.Anything, nil).
		Run(func(_ context.Context, reports []m.Report, manifest m.Manifest, _ error) {
			got = reports

			require.Len(t, manifest.Assets, 1)
			assert.Equal(t, "data.json", manifest.Assets[0].Name)
		}).
		Return(nil).Once()

	err := f.workflow.Run(context.Background(), domain.RunArgs{
		ListArgs: domain.ListArgs{
			Paths:   []m.Path{"/app/src"},
			Threads: 2,
		},
		Output:     "/out",
		SourceMaps: true,
	})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, m.Path("/app/src/index.js"), got[0].Source)
	assert.Equal(t, m.Relocated, got[0].Status)
	assert.Equal(t, []string{"data.json"}, got[0].Assets)
	assert.Equal(t, m.Unchanged, got[1].Status)

	code := f.read(t, "/out/index.js")
	assert.Equal(t,
		"const path = require('path');\nconst p = __dirname + '/data.json';\n\n//# sourceMappingURL=index.js.map\n",
		code)
	assert.Contains(t, f.read(t, "/out/index.js.map"), `"sources":["/app/src/index.js"]`)
	assert.Equal(t, `{"a":1}`, f.read(t, "/out/data.json"))
	assert.Equal(t, "module.exports = 1;\n", f.read(t, "/out/lib/plain.cjs"))

	manifest, err := adapter.NewLocalManifestStore(f.fs).LoadManifest("/out/" + domain.ManifestName)
	require.NoError(t, err)
	require.Len(t, manifest.Assets, 1)
	assert.Equal(t, m.Path("/app/src/data.json"), manifest.Assets[0].Source)
}

func TestWorkflow_RunWithoutSourceMaps(t *testing.T) {
	f := newWorkflowFixture(t, map[string]string{
		"/app/src/index.js":  indexSource,
		"/app/src/data.json": "{}",
	})

	f.expectLifecycle(1, 1)
	f.ui.EXPECT().DisplaySummary(mock.Anything, mock.Anything, mock.Anything, nil).Return(nil).Once()

	err := f.workflow.Run(context.Background(), domain.RunArgs{
		ListArgs: domain.ListArgs{Paths: []m.Path{"/app/src/index.js"}},
		Output:   "/out",
	})
	require.NoError(t, err)

	assert.Equal(t, "const path = require('path');\nconst p = __dirname + '/data.json';\n", f.read(t, "/out/index.js"))

	_, err = f.fs.FileInfo("/out/index.js.map")
	assert.Error(t, err)
}

func TestWorkflow_RunCollectsFailures(t *testing.T) {
	f := newWorkflowFixture(t, map[string]string{
		"/app/src/bad.js":    "const = require(;\n",
		"/app/src/index.js":  indexSource,
		"/app/src/data.json": "{}",
	})

	f.expectLifecycle(4, 2)

	statuses := make(map[m.Path]m.Status)

	f.ui.EXPECT().DisplaySummary(mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(_ context.Context, reports []m.Report, _ m.Manifest, _ error) {
			for _, r := range reports {
				statuses[r.Source] = r.Status
			}
		}).
		RunAndReturn(passThrough).Once()

	err := f.workflow.Run(context.Background(), domain.RunArgs{
		ListArgs: domain.ListArgs{Paths: []m.Path{"/app/src"}, Threads: 4},
		Output:   "/out",
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "/app/src/bad.js")
	assert.True(t, domain.IsParseError(err))

	assert.Equal(t, map[m.Path]m.Status{
		"/app/src/bad.js":   m.Invalid,
		"/app/src/index.js": m.Relocated,
	}, statuses)

	assert.Contains(t, f.read(t, "/out/index.js"), "__dirname + '/data.json'")

	_, statErr := f.fs.FileInfo("/out/bad.js")
	assert.Error(t, statErr)
}

func TestWorkflow_RunSkipsOutputInsideInputs(t *testing.T) {
	f := newWorkflowFixture(t, map[string]string{
		"/app/index.js":          "module.exports = 1;\n",
		"/app/dist/old-build.js": "module.exports = 2;\n",
	})

	f.expectLifecycle(1, 1)
	f.ui.EXPECT().DisplaySummary(mock.Anything, mock.MatchedBy(func(reports []m.Report) bool {
		return len(reports) == 1 && reports[0].Source == "/app/index.js"
	}), mock.Anything, nil).Return(nil).Once()

	err := f.workflow.Run(context.Background(), domain.RunArgs{
		ListArgs: domain.ListArgs{Paths: []m.Path{"/app"}},
		Output:   "/app/dist",
	})
	require.NoError(t, err)
}

func TestWorkflow_RunRequiresOutput(t *testing.T) {
	f := newWorkflowFixture(t, nil)

	err := f.workflow.Run(context.Background(), domain.RunArgs{})
	assert.ErrorIs(t, err, domain.ErrNoOutput)
}

func TestWorkflow_List(t *testing.T) {
	f := newWorkflowFixture(t, map[string]string{
		"/app/src/index.js":         indexSource,
		"/app/src/data.json":        "{}",
		"/app/src/vendor/skip.js":   "require(x);\n",
		"/app/src/vendor/skip2.mjs": "export default 1;\n",
	})

	f.expectLifecycle(1, 1)
	f.ui.EXPECT().DisplaySummary(mock.Anything, mock.MatchedBy(func(reports []m.Report) bool {
		return len(reports) == 1 && assert.ObjectsAreEqual([]string{"data.json"}, reports[0].Assets)
	}), mock.Anything, nil).Return(nil).Once()

	err := f.workflow.List(context.Background(), domain.ListArgs{
		Paths:   []m.Path{"/app/src"},
		Exclude: []string{"/vendor/", ""},
	})
	require.NoError(t, err)
}

func TestWorkflow_Diff(t *testing.T) {
	f := newWorkflowFixture(t, map[string]string{
		"/app/src/index.js":  indexSource,
		"/app/src/plain.js":  "module.exports = 1;\n",
		"/app/src/data.json": "{}",
	})

	f.expectLifecycle(1, 2)
	f.ui.EXPECT().DisplayDiff(mock.Anything, m.Path("/app/src/index.js"), mock.MatchedBy(func(diff string) bool {
		return strings.Contains(diff, "--- a/index.js") &&
			strings.Contains(diff, "+++ b/index.js") &&
			strings.Contains(diff, "-const p = path.join(__dirname, 'data.json');") &&
			strings.Contains(diff, "+const p = __dirname + '/data.json';")
	})).Return().Once()
	f.ui.EXPECT().DisplaySummary(mock.Anything, mock.Anything, mock.Anything, nil).Return(nil).Once()

	err := f.workflow.Diff(context.Background(), domain.DiffArgs{
		ListArgs: domain.ListArgs{Paths: []m.Path{"/app/src"}},
	})
	require.NoError(t, err)
}

func TestWorkflow_View(t *testing.T) {
	f := newWorkflowFixture(t, nil)

	saved := m.Manifest{
		BuildID: "b-1",
		Assets:  []m.Asset{{Name: "data.json", Source: "/app/data.json", Kind: m.AssetFile}},
	}
	require.NoError(t, adapter.NewLocalManifestStore(f.fs).SaveManifest("/out/"+domain.ManifestName, saved))

	f.ui.EXPECT().Start(mock.Anything, mock.Anything).Return(nil).Once()
	f.ui.EXPECT().DisplaySummary(mock.Anything, mock.Anything, mock.MatchedBy(func(manifest m.Manifest) bool {
		return manifest.BuildID == "b-1" && len(manifest.Assets) == 1
	}), nil).Return(nil).Once()
	f.ui.EXPECT().Wait(mock.Anything).Return().Once()
	f.ui.EXPECT().Close(mock.Anything).Return().Once()

	require.NoError(t, f.workflow.View(context.Background(), domain.ViewArgs{Output: "/out"}))
}

func TestWorkflow_ViewMissingManifest(t *testing.T) {
	f := newWorkflowFixture(t, nil)

	f.ui.EXPECT().Start(mock.Anything, mock.Anything).Return(nil).Once()
	f.ui.EXPECT().Close(mock.Anything).Return().Once()
	f.ui.EXPECT().DisplaySummary(mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		RunAndReturn(passThrough).Once()

	err := f.workflow.View(context.Background(), domain.ViewArgs{Output: "/out"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load manifest")

	assert.ErrorIs(t, f.workflow.View(context.Background(), domain.ViewArgs{}), domain.ErrNoOutput)
}

func TestWorkflow_CollectErrors(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		args    domain.ListArgs
		wantErr error
	}{
		{
			name:    "no sources",
			files:   map[string]string{"/app/README.md": "x"},
			args:    domain.ListArgs{Paths: []m.Path{"/app"}},
			wantErr: domain.ErrNoSources,
		},
		{
			name:  "missing path",
			files: nil,
			args:  domain.ListArgs{Paths: []m.Path{"/nowhere"}},
		},
		{
			name:  "invalid exclude",
			files: map[string]string{"/app/index.js": "1;"},
			args:  domain.ListArgs{Paths: []m.Path{"/app"}, Exclude: []string{"("}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWorkflowFixture(t, tt.files)

			f.ui.EXPECT().Start(mock.Anything, mock.Anything).Return(nil).Once()
			f.ui.EXPECT().Close(mock.Anything).Return().Once()
			f.ui.EXPECT().DisplaySummary(mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				RunAndReturn(passThrough).Once()

			err := f.workflow.List(context.Background(), tt.args)
			require.Error(t, err)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestWorkflow_StartFailure(t *testing.T) {
	f := newWorkflowFixture(t, nil)

	want := errors.New("no terminal")
	f.ui.EXPECT().Start(mock.Anything, mock.Anything).Return(want).Once()

	err := f.workflow.Diff(context.Background(), domain.DiffArgs{})
	assert.ErrorIs(t, err, want)
}
