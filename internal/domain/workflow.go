package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/sync/errgroup"

	"github.com/mouse-blink/relocator/internal/adapter"
	"github.com/mouse-blink/relocator/internal/controller"
	"github.com/mouse-blink/relocator/internal/domain/assets"
	m "github.com/mouse-blink/relocator/internal/model"
)

// ManifestName is the file the build registries are saved to, inside the
// output directory.
const ManifestName = "relocator-manifest.yaml"

const diffContext = 3

var sourceExtensions = map[string]struct{}{
	".js":  {},
	".mjs": {},
	".cjs": {},
}

// ErrNoSources is returned when the given paths hold no JavaScript sources.
var ErrNoSources = errors.New("no JavaScript sources found")

// ErrNoOutput is returned by commands that need an output directory.
var ErrNoOutput = errors.New("output directory is required")

// ListArgs selects the sources a command works on.
type ListArgs struct {
	Paths   []m.Path
	Exclude []string
	// Cwd overrides the directory relative literals resolve against.
	Cwd     m.Path
	Threads int
}

// RunArgs contains the arguments for relocating sources into Output.
type RunArgs struct {
	ListArgs
	Output     m.Path
	SourceMaps bool
}

// DiffArgs contains the arguments for previewing rewrites.
type DiffArgs struct {
	ListArgs
	// Context is the number of unchanged lines around each hunk; negative
	// selects the default of 3.
	Context int
}

// ViewArgs points at the output directory of a previous run.
type ViewArgs struct {
	Output m.Path
}

// Workflow drives the relocator over a set of files the way a bundler would.
type Workflow interface {
	Run(ctx context.Context, args RunArgs) error
	List(ctx context.Context, args ListArgs) error
	Diff(ctx context.Context, args DiffArgs) error
	View(ctx context.Context, args ViewArgs) error
}

type workflow struct {
	adapter.SourceFSAdapter
	adapter.JSFileAdapter
	adapter.ManifestStore
	controller.UI
	platform m.Platform
}

// NewWorkflow creates a new Workflow instance with the provided dependencies.
func NewWorkflow(
	fsAdapter adapter.SourceFSAdapter,
	jsAdapter adapter.JSFileAdapter,
	manifestStore adapter.ManifestStore,
	ui controller.UI,
	platform m.Platform,
) Workflow {
	return &workflow{
		SourceFSAdapter: fsAdapter,
		JSFileAdapter:   jsAdapter,
		ManifestStore:   manifestStore,
		UI:              ui,
		platform:        platform,
	}
}

// input is one collected source and its name relative to the path it was
// found under.
type input struct {
	path m.Path
	rel  string
}

// result pairs an input with its relocation outcome.
type result struct {
	input  input
	source []byte
	output Output
	err    error
}

func (r result) report() m.Report {
	return m.Report{
		Source: r.input.path,
		Status: r.output.Status,
		Assets: r.output.Assets,
		Edits:  r.output.Edits,
		Err:    r.err,
	}
}

func (w *workflow) Run(ctx context.Context, args RunArgs) error {
	if args.Output == "" {
		return ErrNoOutput
	}

	output, err := filepath.Abs(string(args.Output))
	if err != nil {
		return fmt.Errorf("failed to resolve output directory: %w", err)
	}

	args.Output = m.Path(output)

	if err := w.Start(ctx, controller.WithRunMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}
	defer w.Close(ctx)

	inputs, err := w.collect(args.ListArgs, args.Output)
	if err != nil {
		return w.fail(ctx, err)
	}

	out := adapter.NewLocalOutputAdapter(w.SourceFSAdapter, args.Output)
	build := assets.NewBuildContext()

	slog.Info("Starting relocation", "files", len(inputs), "output", args.Output, "build", build.ID)

	results, relocateErr := w.relocateAll(ctx, args.ListArgs, inputs, build, out, func(r result) error {
		return w.writeResult(out, r, args.SourceMaps)
	})

	manifest := build.Manifest()

	var errs *multierror.Error
	if relocateErr != nil {
		errs = multierror.Append(errs, relocateErr)
	}

	// An aborted build's registries are partial.
	if ctx.Err() == nil {
		if err := w.SaveManifest(out.Path(ManifestName), manifest); err != nil {
			slog.Error("Failed to save manifest", "error", err)
			errs = multierror.Append(errs, fmt.Errorf("save manifest: %w", err))
		}
	}

	err = w.DisplaySummary(ctx, reports(results), manifest, errs.ErrorOrNil())
	w.Wait(ctx)

	return err
}

func (w *workflow) List(ctx context.Context, args ListArgs) error {
	if err := w.Start(ctx, controller.WithListMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}
	defer w.Close(ctx)

	inputs, err := w.collect(args, "")
	if err != nil {
		return w.fail(ctx, err)
	}

	build := assets.NewBuildContext()

	results, err := w.relocateAll(ctx, args, inputs, build, adapter.NewDiscardOutputAdapter(), nil)

	err = w.DisplaySummary(ctx, reports(results), build.Manifest(), err)
	w.Wait(ctx)

	return err
}

// View shows the manifest a previous Run saved into args.Output.
func (w *workflow) View(ctx context.Context, args ViewArgs) error {
	if args.Output == "" {
		return ErrNoOutput
	}

	if err := w.Start(ctx, controller.WithViewMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}
	defer w.Close(ctx)

	path := m.Path(filepath.Join(string(args.Output), ManifestName))

	manifest, err := w.LoadManifest(path)
	if err != nil {
		slog.Error("Failed to load manifest", "path", path, "error", err)
		return w.DisplaySummary(ctx, nil, m.Manifest{}, fmt.Errorf("load manifest: %w", err))
	}

	err = w.DisplaySummary(ctx, nil, manifest, nil)
	w.Wait(ctx)

	return err
}

func (w *workflow) Diff(ctx context.Context, args DiffArgs) error {
	if err := w.Start(ctx, controller.WithDiffMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}
	defer w.Close(ctx)

	inputs, err := w.collect(args.ListArgs, "")
	if err != nil {
		return w.fail(ctx, err)
	}

	lines := args.Context
	if lines < 0 {
		lines = diffContext
	}

	build := assets.NewBuildContext()

	results, relocateErr := w.relocateAll(ctx, args.ListArgs, inputs, build, adapter.NewDiscardOutputAdapter(), nil)

	var errs *multierror.Error
	if relocateErr != nil {
		errs = multierror.Append(errs, relocateErr)
	}

	for _, r := range results {
		if r.output.Status != m.Relocated {
			continue
		}

		diff, err := unifiedDiff(r, lines)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("diff %s: %w", r.input.path, err))
			continue
		}

		w.DisplayDiff(ctx, r.input.path, diff)
	}

	err = w.DisplaySummary(ctx, reports(results), build.Manifest(), errs.ErrorOrNil())
	w.Wait(ctx)

	return err
}

func (w *workflow) fail(ctx context.Context, err error) error {
	slog.Error("Failed to collect sources", "error", err)

	return w.DisplaySummary(ctx, nil, m.Manifest{}, fmt.Errorf("collect sources: %w", err))
}

// relocateAll relocates every input concurrently and returns the results in
// input order. Per-file failures are aggregated; they never stop the other
// files. after runs on each result from the worker that produced it.
func (w *workflow) relocateAll(
	ctx context.Context,
	args ListArgs,
	inputs []input,
	build *assets.BuildContext,
	out assets.Emitter,
	after func(result) error,
) ([]result, error) {
	threads := args.Threads
	if threads <= 0 {
		threads = 1
	}

	w.DisplayConcurrencyInfo(ctx, threads, len(inputs))

	relocator := NewRelocator(
		w.SourceFSAdapter,
		w.JSFileAdapter,
		assets.NewManager(w.SourceFSAdapter, out, w.platform),
		w.platform,
	)

	results := make([]result, len(inputs))

	var (
		errs    *multierror.Error
		errsMux sync.Mutex
	)

	var group errgroup.Group
	group.SetLimit(threads)

	for i, in := range inputs {
		group.Go(func() error {
			r := w.relocateOne(ctx, relocator, build, args, in)

			if r.err == nil && after != nil {
				if err := after(r); err != nil {
					r.err = err
					r.output.Status = m.Failed
				}
			}

			results[i] = r

			if r.err != nil {
				errsMux.Lock()
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", in.path, r.err))
				errsMux.Unlock()
			}

			w.DisplayFileReport(ctx, r.report())

			return nil
		})
	}

	_ = group.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}

	if errs != nil {
		sort.Sort(errs)
	}

	return results, errs.ErrorOrNil()
}

func (w *workflow) relocateOne(
	ctx context.Context,
	relocator Relocator,
	build *assets.BuildContext,
	args ListArgs,
	in input,
) result {
	r := result{input: in}

	source, err := w.ReadFile(in.path)
	if err != nil {
		r.err = fmt.Errorf("read source: %w", err)
		r.output.Status = m.Failed

		return r
	}

	r.source = source

	out, err := relocator.Relocate(ctx, build, Input{
		Source:   source,
		Filename: in.path,
		Cwd:      args.Cwd,
	})

	r.output = out
	r.err = err

	if IsParseError(err) {
		r.output.Status = m.Invalid
	}

	return r
}

// writeResult writes the relocated or untouched source next to the emitted
// assets, plus its source map when one was produced and requested.
func (w *workflow) writeResult(out adapter.OutputAdapter, r result, sourceMaps bool) error {
	code := r.output.Code
	mapName := r.input.rel + ".map"

	if sourceMaps && r.output.Map != nil {
		data, err := r.output.Map.JSON()
		if err != nil {
			return fmt.Errorf("encode source map: %w", err)
		}

		if err := w.WriteFile(out.Path(mapName), data, 0o644); err != nil {
			return fmt.Errorf("write source map: %w", err)
		}

		code = append(append([]byte(nil), code...), "\n//# sourceMappingURL="+filepath.Base(mapName)+"\n"...)
	}

	mode := os.FileMode(0o644)
	if info, err := w.FileInfo(r.input.path); err == nil {
		mode = info.Mode().Perm()
	}

	if err := w.WriteFile(out.Path(r.input.rel), code, mode); err != nil {
		return fmt.Errorf("write source: %w", err)
	}

	return nil
}

// collect expands paths into the JavaScript sources below them. Files under
// skip are ignored so a run never reads its own output.
func (w *workflow) collect(args ListArgs, skip m.Path) ([]input, error) {
	exclude, err := compileExcludes(args.Exclude)
	if err != nil {
		return nil, err
	}

	paths := args.Paths
	if len(paths) == 0 {
		paths = []m.Path{"."}
	}

	seen := make(map[m.Path]struct{})

	var inputs []input

	add := func(path m.Path, rel string) {
		if _, ok := seen[path]; ok {
			return
		}

		if isExcluded(exclude, string(path)) {
			slog.Debug("Excluding source", "path", path)
			return
		}

		seen[path] = struct{}{}
		inputs = append(inputs, input{path: path, rel: filepath.ToSlash(rel)})
	}

	for _, p := range paths {
		root, err := filepath.Abs(string(p))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}

		info, err := w.FileInfo(m.Path(root))
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}

		if !info.IsDir() {
			if isSource(root) {
				add(m.Path(root), filepath.Base(root))
			}

			continue
		}

		err = w.Walk(m.Path(root), true, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			if info.IsDir() {
				if skip != "" && (path == string(skip) || isWithin(string(skip), path)) {
					return filepath.SkipDir
				}

				return nil
			}

			if !isSource(path) {
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}

			add(m.Path(path), rel)

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", p, err)
		}
	}

	if len(inputs) == 0 {
		return nil, ErrNoSources
	}

	sort.Slice(inputs, func(i, j int) bool { return inputs[i].path < inputs[j].path })

	return inputs, nil
}

func compileExcludes(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))

	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}

		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
		}

		out = append(out, re)
	}

	return out, nil
}

func isExcluded(patterns []*regexp.Regexp, path string) bool {
	slashed := filepath.ToSlash(path)

	for _, re := range patterns {
		if re.MatchString(slashed) {
			return true
		}
	}

	return false
}

func isSource(path string) bool {
	_, ok := sourceExtensions[filepath.Ext(path)]
	return ok
}

func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func reports(results []result) []m.Report {
	out := make([]m.Report, 0, len(results))
	for _, r := range results {
		out = append(out, r.report())
	}

	return out
}

func unifiedDiff(r result, lines int) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(r.source)),
		B:        difflib.SplitLines(string(r.output.Code)),
		FromFile: "a/" + r.input.rel,
		ToFile:   "b/" + r.input.rel,
		Context:  lines,
	})
}
