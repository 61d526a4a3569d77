package controller

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	m "github.com/mouse-blink/relocator/internal/model"
)

// SimpleUI implements UI using cobra Command's output writer.
type SimpleUI struct {
	cmd *cobra.Command

	mu   sync.Mutex
	mode StartMode
}

// NewSimpleUI creates a new SimpleUI.
func NewSimpleUI(cmd *cobra.Command) *SimpleUI {
	return &SimpleUI{cmd: cmd}
}

// Start records the display mode.
func (s *SimpleUI) Start(ctx context.Context, options ...StartOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.mode = newStartConfig(options...).mode
	s.mu.Unlock()

	return nil
}

// Close finalizes the UI.
func (s *SimpleUI) Close(_ context.Context) {}

// Wait blocks until the UI is closed (no-op for SimpleUI).
func (s *SimpleUI) Wait(_ context.Context) {}

// DisplayConcurrencyInfo shows concurrency settings.
func (s *SimpleUI) DisplayConcurrencyInfo(ctx context.Context, threads int, files int) {
	if ctx.Err() != nil {
		return
	}

	s.printf("Relocating %d file(s) with %d worker(s)\n", files, threads)
}

// DisplayFileReport prints one line per finished file in run mode.
func (s *SimpleUI) DisplayFileReport(ctx context.Context, report m.Report) {
	if ctx.Err() != nil || s.currentMode() != ModeRun {
		return
	}

	if report.Err != nil {
		s.printf("%s %s: %v\n", report.Status, report.Source, report.Err)
		return
	}

	s.printf("%s %s (%d edit(s), %d asset(s))\n", report.Status, report.Source, report.Edits, len(report.Assets))
}

// DisplayDiff prints a unified diff.
func (s *SimpleUI) DisplayDiff(ctx context.Context, _ m.Path, diff string) {
	if ctx.Err() != nil {
		return
	}

	s.printf("%s", diff)

	if diff != "" && !strings.HasSuffix(diff, "\n") {
		s.printf("\n")
	}
}

// DisplaySummary prints the final table for the current mode, or err.
func (s *SimpleUI) DisplaySummary(ctx context.Context, reports []m.Report, manifest m.Manifest, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	sorted := sortReports(reports)

	switch s.currentMode() {
	case ModeList:
		s.printf("\n%s", renderAssetTable(sorted))
	case ModeDiff:
		s.printf("%d file(s) would change\n", countStatus(sorted, m.Relocated))
	case ModeView:
		s.printf("Build %s\n\n%s", manifest.BuildID, renderManifestTable(manifest))
	default:
		s.printf("\n%s", renderRunTable(sorted, len(manifest.Assets)))
	}

	if err != nil {
		s.printf("relocation error: %v\n", err)
	}

	return err
}

func (s *SimpleUI) currentMode() StartMode {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mode
}

func (s *SimpleUI) printf(format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = fmt.Fprintf(s.cmd.OutOrStdout(), format, args...)
}

func sortReports(reports []m.Report) []m.Report {
	sorted := append([]m.Report(nil), reports...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Source < sorted[j].Source
	})

	return sorted
}

func countStatus(reports []m.Report, status m.Status) int {
	n := 0

	for _, r := range reports {
		if r.Status == status {
			n++
		}
	}

	return n
}

func renderRunTable(reports []m.Report, totalAssets int) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Path", "Status", "Edits", "Assets"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_CENTER, tablewriter.ALIGN_CENTER,
	})

	edits := 0

	for _, r := range reports {
		table.Append([]string{
			string(r.Source),
			r.Status.String(),
			strconv.Itoa(r.Edits),
			strconv.Itoa(len(r.Assets)),
		})

		edits += r.Edits
	}

	table.SetFooter([]string{
		fmt.Sprintf("Total Files %d", len(reports)),
		fmt.Sprintf("%d relocated", countStatus(reports, m.Relocated)),
		strconv.Itoa(edits),
		strconv.Itoa(totalAssets),
	})

	table.Render()

	return tableBuffer.String()
}

func renderAssetTable(reports []m.Report) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Path", "Asset"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoMergeCells(true)

	assets := 0

	for _, r := range reports {
		for _, name := range r.Assets {
			table.Append([]string{string(r.Source), name})

			assets++
		}
	}

	table.SetFooter([]string{fmt.Sprintf("Total Files %d", len(reports)), strconv.Itoa(assets)})
	table.Render()

	return tableBuffer.String()
}

func renderManifestTable(manifest m.Manifest) string {
	var tableBuffer bytes.Buffer

	table := tablewriter.NewWriter(&tableBuffer)
	table.SetHeader([]string{"Asset", "Kind", "Mode", "Source"})
	table.SetBorder(false)
	table.SetCenterSeparator("")

	for _, a := range manifest.Assets {
		source := string(a.Source)
		if a.Kind == m.AssetSymlink {
			source = a.Target
		}

		table.Append([]string{a.Name, string(a.Kind), fmt.Sprintf("%04o", a.Mode.Perm()), source})
	}

	table.SetFooter([]string{fmt.Sprintf("%d asset(s)", len(manifest.Assets)), "", "", ""})
	table.Render()

	return tableBuffer.String()
}
