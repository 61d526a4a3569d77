package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/mouse-blink/relocator/internal/adapter"
	"github.com/mouse-blink/relocator/internal/domain/assets"
	"github.com/mouse-blink/relocator/internal/domain/rewrite"
	"github.com/mouse-blink/relocator/internal/domain/staticeval"
	"github.com/mouse-blink/relocator/internal/domain/wrappers"
	"github.com/mouse-blink/relocator/internal/jsast"
	m "github.com/mouse-blink/relocator/internal/model"
)

// relocateTokens is the cheap pre-filter: a file mentioning none of these
// cannot contain anything to relocate.
var relocateTokens = regexp.MustCompile(`__dirname|__filename|require|node-pre-gyp|bindings|nbind|define|['"]\.\.?/`)

// Input is one source file handed to the relocator.
type Input struct {
	Source   []byte
	Filename m.Path
	// Cwd resolves relative literals such as './data.json'. It defaults to
	// the file's directory.
	Cwd m.Path
}

// Output is the result of relocating one file. Code and Map are only set
// when Status is m.Relocated.
type Output struct {
	Status  m.Status
	Code    []byte
	Map     *rewrite.SourceMap
	Assets  []string
	Edits   int
	Wrapper wrappers.Wrapper
}

// Relocator rewrites the runtime filesystem references of one source file
// and emits the files they point at.
type Relocator interface {
	Relocate(ctx context.Context, build *assets.BuildContext, in Input) (Output, error)
}

type relocator struct {
	adapter.SourceFSAdapter
	adapter.JSFileAdapter
	assets.Manager
	platform m.Platform
}

// NewRelocator constructs a Relocator that parses with js, reads through fs
// and emits assets through mgr.
func NewRelocator(
	fs adapter.SourceFSAdapter,
	js adapter.JSFileAdapter,
	mgr assets.Manager,
	platform m.Platform,
) Relocator {
	return &relocator{
		SourceFSAdapter: fs,
		JSFileAdapter:   js,
		Manager:         mgr,
		platform:        platform,
	}
}

func (r *relocator) Relocate(ctx context.Context, build *assets.BuildContext, in Input) (Output, error) {
	filename := string(in.Filename)

	if err := ctx.Err(); err != nil {
		return Output{Status: m.Failed}, err
	}

	if strings.HasSuffix(filename, ".json") || !relocateTokens.Match(in.Source) {
		return Output{Status: m.Unchanged, Code: in.Source}, nil
	}

	program, err := r.Parse(ctx, in.Filename, in.Source)
	if err != nil {
		slog.Error("Failed to parse source", "file", filename, "error", err)
		return Output{Status: m.Failed}, fmt.Errorf("failed to parse %s: %w", filename, err)
	}

	rw := rewrite.New(in.Source)

	wrapper, err := wrappers.Normalize(program, rw)
	if err != nil {
		return Output{Status: m.Failed}, fmt.Errorf("failed to normalize wrapper in %s: %w", filename, err)
	}

	if wrapper != wrappers.None {
		slog.Debug("Normalized module wrapper", "file", filename, "wrapper", wrapper)
	}

	jsast.AttachScopes(program)

	cwd := string(in.Cwd)
	if cwd == "" {
		cwd = filepath.Dir(filename)
	}

	host := &staticeval.Host{
		FS:          r.SourceFSAdapter,
		Cwd:         cwd,
		Filename:    filename,
		PackageBase: assets.PackageBase(filename),
		Platform:    r.platform,
	}

	emission := r.Begin(ctx, build)

	var result *multierror.Error

	if err := newWalker(program, rw, host, emission).run(); err != nil {
		result = multierror.Append(result, err)
	}

	if err := emission.Wait(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to emit assets: %w", err))
	}

	if err := result.ErrorOrNil(); err != nil {
		slog.Error("Failed to relocate", "file", filename, "error", err)
		return Output{Status: m.Failed, Assets: emission.Names()}, fmt.Errorf("failed to relocate %s: %w", filename, err)
	}

	out := Output{
		Status:  m.Unchanged,
		Code:    in.Source,
		Assets:  emission.Names(),
		Edits:   rw.Edits(),
		Wrapper: wrapper,
	}

	if !rw.Changed() {
		return out, nil
	}

	out.Status = m.Relocated
	out.Code = []byte(rw.String())
	out.Map = rw.SourceMap(filepath.Base(filename), filename)

	slog.Debug("Relocated source", "file", filename, "edits", out.Edits, "assets", len(out.Assets))

	return out, nil
}

// IsParseError reports whether err came from a source that does not parse.
func IsParseError(err error) bool {
	return errors.Is(err, adapter.ErrSyntax)
}
