package controller

import (
	"bytes"
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "github.com/mouse-blink/relocator/internal/model"
)

func update(t *testing.T, model relocationModel, msg tea.Msg) (relocationModel, tea.Cmd) {
	t.Helper()

	next, cmd := model.Update(msg)

	rm, ok := next.(relocationModel)
	require.True(t, ok)

	return rm, cmd
}

func TestRelocationModel_RunMode(t *testing.T) {
	model := newRelocationModel(ModeRun)

	model, _ = update(t, model, tea.WindowSizeMsg{Width: 100, Height: 30})
	model, _ = update(t, model, concurrencyMsg{threads: 2, files: 3})

	for _, r := range sampleReports() {
		model, _ = update(t, model, reportMsg{report: r})
	}

	view := model.View()
	assert.Contains(t, view, "Relocator · run")
	assert.Contains(t, view, "3/3 file(s) with 2 worker(s)")
	assert.Contains(t, view, "src/a.js (2 edits, 2 assets)")
	assert.Contains(t, view, "src/c.js: boom")

	model, _ = update(t, model, summaryMsg{reports: sampleReports(), assets: 4})

	view = model.View()
	assert.Contains(t, view, "Done: 3/3 file(s)")
	assert.Contains(t, view, "Relocated: 1 | Unchanged: 1 | Failed: 1 | Invalid: 0 | Assets: 4")
}

func TestRelocationModel_ListMode(t *testing.T) {
	model := newRelocationModel(ModeList)

	model, _ = update(t, model, reportMsg{report: sampleReports()[1]})
	assert.NotContains(t, model.View(), "edits")

	model, _ = update(t, model, summaryMsg{reports: sampleReports()})

	view := model.View()
	assert.Contains(t, view, "→ data.json")
	assert.Contains(t, view, "2 asset(s) across 3 file(s)")
}

func TestRelocationModel_DiffMode(t *testing.T) {
	model := newRelocationModel(ModeDiff)

	model, _ = update(t, model, diffMsg{source: "a.js", diff: "--- a/a.js\n+++ b/a.js\n-old\n+new\n"})
	model, _ = update(t, model, summaryMsg{reports: sampleReports(), err: errors.New("bad")})

	view := model.View()
	assert.Contains(t, view, "-old")
	assert.Contains(t, view, "+new")
	assert.Contains(t, view, "1 file(s) would change")
	assert.Contains(t, view, "relocation error: bad")
}

func TestRelocationModel_ViewMode(t *testing.T) {
	model := newRelocationModel(ModeView)

	model, _ = update(t, model, summaryMsg{manifest: m.Manifest{
		BuildID: "b-1",
		Assets:  []m.Asset{{Name: "data.json", Source: "/app/data.json", Kind: m.AssetFile}},
	}})

	view := model.View()
	assert.Contains(t, view, "Relocator · view")
	assert.Contains(t, view, "data.json [file] ← /app/data.json")
	assert.Contains(t, view, "1 asset(s) in build b-1")
}

func TestRelocationModel_Keys(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.KeyMsg
		quit bool
	}{
		{name: "q", msg: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}, quit: true},
		{name: "esc", msg: tea.KeyMsg{Type: tea.KeyEsc}, quit: true},
		{name: "ctrl+c", msg: tea.KeyMsg{Type: tea.KeyCtrlC}, quit: true},
		{name: "top", msg: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("g")}},
		{name: "down", msg: tea.KeyMsg{Type: tea.KeyDown}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, cmd := update(t, newRelocationModel(ModeRun), tt.msg)

			assert.Equal(t, tt.quit, model.quitting)

			if tt.quit {
				require.NotNil(t, cmd)
				assert.IsType(t, tea.QuitMsg{}, cmd())
				assert.Empty(t, model.View())
			}
		})
	}
}

func TestRelocationModel_SpinnerStopsWhenDone(t *testing.T) {
	model := newRelocationModel(ModeRun)
	require.NotNil(t, model.Init())

	model, _ = update(t, model, summaryMsg{})

	_, cmd := update(t, model, model.spinner.Tick())
	assert.Nil(t, cmd)
}

func TestTUI_DisplayWithoutStart(t *testing.T) {
	ui := NewTUI(&bytes.Buffer{})
	ctx := context.Background()

	ui.DisplayConcurrencyInfo(ctx, 1, 1)
	ui.DisplayFileReport(ctx, m.Report{})
	ui.DisplayDiff(ctx, "a.js", "")
	ui.Wait(ctx)
	ui.Close(ctx)

	want := errors.New("x")
	assert.ErrorIs(t, ui.DisplaySummary(ctx, nil, m.Manifest{}, want), want)
}
