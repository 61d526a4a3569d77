package domain

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mouse-blink/relocator/internal/domain/rewrite"
	"github.com/mouse-blink/relocator/internal/domain/staticeval"
	"github.com/mouse-blink/relocator/internal/jsast"
	m "github.com/mouse-blink/relocator/internal/model"
)

const nativeRequire = "__non_webpack_require__"

// assetEmitter is the part of assets.Emission the walker needs.
type assetEmitter interface {
	EmitAsset(path m.Path) (string, error)
	EmitDirectory(path m.Path) (string, error)
}

type walkState int

const (
	stateIdle walkState = iota
	stateGrowing
	stateCommitting
)

func (s walkState) String() string {
	switch s {
	case stateGrowing:
		return "growing"
	case stateCommitting:
		return "committing"
	default:
		return "idle"
	}
}

// pending is the expression currently being grown towards its largest
// evaluable ancestor.
type pending struct {
	root             *jsast.Node
	value            staticeval.Value
	bindingsInstance bool
	// bare is set while root is still a lone __dirname/__filename.
	bare bool
}

// walker performs the single relocation traversal of one program. It
// implements jsast.Visitor.
type walker struct {
	program  *jsast.Program
	rw       *rewrite.Rewriter
	known    *knownBindings
	host     *staticeval.Host
	emitter  assetEmitter
	filename string
	cwd      string

	scopes   []jsast.ScopeID
	state    walkState
	pending  pending
	instance bool
	err      error
}

func newWalker(
	program *jsast.Program,
	rw *rewrite.Rewriter,
	host *staticeval.Host,
	emitter assetEmitter,
) *walker {
	w := &walker{
		program:  program,
		rw:       rw,
		host:     host,
		emitter:  emitter,
		filename: host.Filename,
		cwd:      host.Cwd,
		scopes:   []jsast.ScopeID{program.RootScope},
	}

	host.OnBindingsInstance = func() { w.instance = true }
	w.known = newKnownBindings(program, host)

	return w
}

func (w *walker) run() error {
	jsast.Walk(w.program.Root, w)

	return w.err
}

func (w *walker) currentScope() jsast.ScopeID {
	return w.scopes[len(w.scopes)-1]
}

func (w *walker) eval(n *jsast.Node, withRequire bool) (staticeval.Value, bool) {
	w.instance = false
	v := staticeval.Eval(n, w.known.env(withRequire))

	return v, w.instance
}

// Enter implements jsast.Visitor.
func (w *walker) Enter(n, parent *jsast.Node) bool {
	if w.err != nil || w.state != stateIdle {
		return false
	}

	if w.detect(n, parent) {
		return false
	}

	switch {
	case n.Kind == jsast.KindVariableDeclaration && parent != nil && parent.Kind == jsast.KindProgram:
		w.known.declare(n)
	case n.Kind == jsast.KindAssignment:
		w.known.assign(n, w.currentScope())
	}

	if n.Scope != jsast.NoScope {
		w.scopes = append(w.scopes, n.Scope)
		w.known.enterScope(n.Scope)
	}

	return true
}

// Leave implements jsast.Visitor.
func (w *walker) Leave(n, _ *jsast.Node) {
	if n.Scope != jsast.NoScope && len(w.scopes) > 1 && w.currentScope() == n.Scope {
		w.scopes = w.scopes[:len(w.scopes)-1]
		w.known.leaveScope(n.Scope)
	}

	if w.state != stateGrowing || w.err != nil {
		return
	}

	if v, instance := w.eval(n, false); !staticeval.IsUnknown(v) {
		bare := w.pending.bare && n.Kind == jsast.KindParen
		w.pending = pending{root: n, value: v, bindingsInstance: instance, bare: bare}

		return
	}

	w.commit(n)
}

// detect checks n for a trigger and reports whether its children must be
// skipped. Rewrites that keep descending (require.main, dynamic require)
// return false.
func (w *walker) detect(n, parent *jsast.Node) bool {
	switch n.Kind {
	case jsast.KindIdentifier:
		if n.Binding || !w.known.active(n.Name) {
			return false
		}

		bare := n.Name == "__dirname" || n.Name == "__filename"
		if mod := w.known.moduleOf(n.Name); !bare && mod != modulePreGyp && mod != moduleBindings {
			return false
		}

		return w.begin(n, false, bare)

	case jsast.KindString:
		if strings.HasPrefix(n.Str, "./") || strings.HasPrefix(n.Str, "../") {
			w.grow(n, staticeval.Concrete{V: n.Str}, false, false)
			return true
		}

	case jsast.KindCall:
		if spec, ok := w.known.staticRequire(n.Callee); ok && spec == "bindings" && !w.program.Module {
			return w.begin(n, true, false)
		}

		if w.nbindInit(n) {
			return true
		}

		w.dynamicRequire(n)

	case jsast.KindMember:
		w.requireMain(n, parent)
	}

	return false
}

// begin evaluates a trigger and, if it has a value, starts growing from it.
func (w *walker) begin(n *jsast.Node, withRequire, bare bool) bool {
	v, instance := w.eval(n, withRequire)
	if staticeval.IsUnknown(v) {
		return false
	}

	w.grow(n, v, instance, bare)

	return true
}

func (w *walker) grow(n *jsast.Node, v staticeval.Value, instance, bare bool) {
	w.state = stateGrowing
	w.pending = pending{root: n, value: v, bindingsInstance: instance, bare: bare}
}

// nbindInit rewrites `nbind.init(...)` into direct requires of the resolved
// native module.
func (w *walker) nbindInit(n *jsast.Node) bool {
	callee := jsast.Unparen(n.Callee)
	if callee == nil || callee.Kind != jsast.KindMember || callee.Computed || callee.Name != "init" {
		return false
	}

	obj := callee.Object
	if obj == nil || obj.Kind != jsast.KindIdentifier || w.known.moduleOf(obj.Name) != moduleNBind {
		return false
	}

	v, _ := w.eval(n, false)

	c, ok := v.(staticeval.Concrete)
	if !ok {
		return false
	}

	info, ok := c.V.(*staticeval.Object)
	if !ok {
		return false
	}

	p, _ := info.Get("path")

	resolved, ok := p.(string)
	if !ok {
		return false
	}

	rel, err := filepath.Rel(filepath.Dir(w.filename), resolved)
	if err != nil {
		return false
	}

	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, "../") {
		rel = "./" + rel
	}

	q := rewrite.Quote(rel)
	text := "({ bind: require(" + q + ").NBind.bind_value, lib: require(" + q + ") })"

	w.overwrite(n, text)

	return true
}

// dynamicRequire points `require(expr)` and `require.resolve(expr)` with a
// non-literal argument at the runtime require, leaving the argument alone.
func (w *walker) dynamicRequire(n *jsast.Node) {
	if w.program.Module || !w.known.active("require") {
		return
	}

	target := requireCallee(n)
	if target == nil {
		return
	}

	if len(n.Args) == 1 && n.Args[0].Kind == jsast.KindString {
		return
	}

	w.overwrite(target, nativeRequire)
}

// requireCallee returns the `require` identifier of a require or
// require.resolve call.
func requireCallee(n *jsast.Node) *jsast.Node {
	if n == nil || n.Kind != jsast.KindCall {
		return nil
	}

	callee := n.Callee
	if jsast.IsIdentifier(callee, "require") {
		return callee
	}

	if callee != nil && callee.Kind == jsast.KindMember && !callee.Computed && callee.Name == "resolve" &&
		jsast.IsIdentifier(callee.Object, "require") {
		return callee.Object
	}

	return nil
}

func (w *walker) requireMain(n, parent *jsast.Node) {
	if w.program.Module || n.Computed || n.Name != "main" || !jsast.IsIdentifier(n.Object, "require") {
		return
	}

	if !w.known.active("require") || comparedToModule(n, parent) {
		return
	}

	w.overwrite(n.Object, nativeRequire)
}

// comparedToModule matches the entry-point check `require.main === module`.
func comparedToModule(n, parent *jsast.Node) bool {
	if parent == nil || parent.Kind != jsast.KindBinary {
		return false
	}

	switch parent.Op {
	case "==", "===", "!=", "!==":
	default:
		return false
	}

	other := parent.Right
	if parent.Right == n {
		other = parent.Left
	}

	return jsast.IsIdentifier(jsast.Unparen(other), "module")
}

// isRequire reports whether n is a require, require.resolve or dynamic
// import call whose argument must stay untouched.
func (w *walker) isRequire(n *jsast.Node) bool {
	if n.Kind == jsast.KindCall && n.Callee != nil && n.Callee.Kind == jsast.KindOther && n.Callee.Name == "import" {
		return true
	}

	target := requireCallee(n)
	if target == nil {
		return false
	}

	return target != n.Callee || w.known.active("require")
}

// commit finishes the pending expression once parent failed to evaluate.
func (w *walker) commit(parent *jsast.Node) {
	w.state = stateCommitting

	p := w.pending

	defer func() {
		w.state = stateIdle
		w.pending = pending{}
	}()

	if w.isRequire(parent) {
		return
	}

	switch v := p.value.(type) {
	case staticeval.Concrete:
		switch val := v.V.(type) {
		case string:
			if p.bare {
				return
			}

			replacement, ok := w.emit(val)
			if !ok {
				return
			}

			if p.bindingsInstance {
				replacement = nativeRequire + "(" + replacement + ")"
			}

			w.overwrite(p.root, replacement)

		case bool:
			w.overwrite(p.root, strconv.FormatBool(val))
		}

	case staticeval.Branch:
		if v.Test == nil {
			return
		}

		then, ok := v.Then.(string)
		if !ok {
			return
		}

		otherwise, ok := v.Else.(string)
		if !ok {
			return
		}

		if !w.isAsset(then) || !w.isAsset(otherwise) {
			return
		}

		thenRepl, ok := w.emit(then)
		if !ok {
			return
		}

		elseRepl, ok := w.emit(otherwise)
		if !ok {
			return
		}

		if cond := jsast.Unparen(p.root); cond.Kind == jsast.KindConditional && cond.Test == v.Test {
			w.overwrite(cond.Then, thenRepl)
			w.overwrite(cond.Else, elseRepl)

			return
		}

		test := w.rw.Slice(int(v.Test.Start), int(v.Test.End))
		w.overwrite(p.root, "("+test+" ? "+thenRepl+" : "+elseRepl+")")
	}
}

func (w *walker) resolve(p string) string {
	if strings.HasPrefix(p, "./") || strings.HasPrefix(p, "../") {
		return staticeval.ResolvePath(w.cwd, p)
	}

	return p
}

func isJavaScript(p string) bool {
	return strings.HasSuffix(p, ".js") || strings.HasSuffix(p, ".mjs")
}

// isAsset reports whether p names an existing file or directory that would
// be emitted.
func (w *walker) isAsset(p string) bool {
	p = w.resolve(p)
	if !filepath.IsAbs(p) {
		return false
	}

	info, err := w.host.FS.FileInfo(m.Path(p))
	if err != nil {
		return false
	}

	return info.IsDir() || !isJavaScript(p)
}

// emit schedules the file or directory at p and returns the expression that
// locates it next to the bundle. A path that does not exist is not an
// asset.
func (w *walker) emit(p string) (string, bool) {
	p = w.resolve(p)
	if !filepath.IsAbs(p) {
		return "", false
	}

	info, err := w.host.FS.FileInfo(m.Path(p))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Debug("Candidate path is not readable", "path", p, "error", err)
		}

		return "", false
	}

	var name string
	if info.IsDir() {
		if w.enclosesFile(p) {
			slog.Debug("Skipping directory that holds the source file", "path", p, "file", w.filename)
			return "", false
		}

		name, err = w.emitter.EmitDirectory(m.Path(p))
	} else {
		name, err = w.emitter.EmitAsset(m.Path(p))
	}

	if err != nil {
		w.err = fmt.Errorf("failed to emit %s: %w", p, err)
		return "", false
	}

	if name == "" {
		return "", false
	}

	return assetExpression(name), true
}

// enclosesFile reports whether dir is the source file's directory or one of
// its ancestors. Emitting it would copy the package into itself.
func (w *walker) enclosesFile(dir string) bool {
	own := filepath.Dir(w.filename)
	if own == dir {
		return true
	}

	rel, err := filepath.Rel(dir, own)

	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// assetExpression renders the runtime path of an emitted asset.
func assetExpression(name string) string {
	return "__dirname + " + rewrite.QuoteSingle("/"+name)
}

func (w *walker) overwrite(n *jsast.Node, text string) {
	if err := w.rw.Overwrite(int(n.Start), int(n.End), text); err != nil {
		slog.Warn("Skipping overlapping rewrite", "file", w.filename, "offset", n.Start, "error", err)
	}
}
