// Package wrappers normalizes two legacy module-wrapper idioms before the
// relocation walk: the When.js style AMD-conditional wrapper and the
// Browserify standalone bundle wrapper.
//
// Only exact shapes are matched. A near miss is left alone.
package wrappers

import (
	"fmt"
	"strings"

	"github.com/mouse-blink/relocator/internal/domain/rewrite"
	"github.com/mouse-blink/relocator/internal/jsast"
)

// Wrapper identifies the normalization that was applied.
type Wrapper int

// Wrapper shapes.
const (
	None Wrapper = iota
	AMD
	Browserify
)

func (w Wrapper) String() string {
	switch w {
	case AMD:
		return "amd"
	case Browserify:
		return "browserify"
	default:
		return "none"
	}
}

// Normalize detects a supported wrapper around the whole program and records
// the text edits for it on r. The AMD match also drops the removed parameter
// from the tree, so scopes must be attached after Normalize.
func Normalize(p *jsast.Program, r *rewrite.Rewriter) (Wrapper, error) {
	call, ok := iife(p)
	if !ok {
		return None, nil
	}

	arg := jsast.Unparen(call.Args[0])

	if factory, ok := matchAMD(call, arg); ok {
		param := factory.Params[0]
		if err := r.Remove(int(param.Start), int(param.End)); err != nil {
			return None, fmt.Errorf("failed to remove AMD require parameter: %w", err)
		}

		factory.Params = nil
		factory.Children = withoutNode(factory.Children, param)

		return AMD, nil
	}

	cache, externals, ok := matchBrowserify(p, arg)
	if !ok || len(externals) == 0 {
		return None, nil
	}

	entries := make([]string, 0, len(externals))
	for _, ext := range externals {
		q := rewrite.Quote(ext)
		entries = append(entries, q+": { exports: require("+q+") }")
	}

	text := strings.Join(entries, ",\n  ")
	if len(cache.Elements) > 0 {
		text = ", " + text
	}

	if err := r.AppendRight(int(cache.End)-1, text); err != nil {
		return None, fmt.Errorf("failed to inject browserify externals: %w", err)
	}

	return Browserify, nil
}

// iife matches a program made of a single `(function () {...})(arg)`
// statement.
func iife(p *jsast.Program) (*jsast.Node, bool) {
	if p == nil || p.Root == nil || len(p.Root.Elements) != 1 {
		return nil, false
	}

	stmt := p.Root.Elements[0]
	if stmt.Kind != jsast.KindExpressionStatement {
		return nil, false
	}

	call := jsast.Unparen(stmt.Arg)
	if call == nil || call.Kind != jsast.KindCall || len(call.Args) != 1 {
		return nil, false
	}

	if !isFunctionExpression(jsast.Unparen(call.Callee)) {
		return nil, false
	}

	return call, true
}

// matchAMD recognizes
//
//	(function (define) { 'use strict'; define(function (require) { ... }) })
//	(typeof define === 'function' && define.amd ? define : function (factory) { module.exports = factory(require); })
//
// and returns the inner factory.
func matchAMD(call, arg *jsast.Node) (*jsast.Node, bool) {
	if arg.Kind != jsast.KindConditional {
		return nil, false
	}

	test := jsast.Unparen(arg.Test)
	if test == nil || test.Kind != jsast.KindBinary || test.Op != "&&" {
		return nil, false
	}

	typeofCheck := jsast.Unparen(test.Left)
	if typeofCheck == nil || typeofCheck.Kind != jsast.KindBinary || typeofCheck.Op != "===" {
		return nil, false
	}

	typeofExpr := jsast.Unparen(typeofCheck.Left)
	if typeofExpr == nil || typeofExpr.Kind != jsast.KindUnary || typeofExpr.Op != "typeof" ||
		!jsast.IsIdentifier(jsast.Unparen(typeofExpr.Arg), "define") {
		return nil, false
	}

	if lit := jsast.Unparen(typeofCheck.Right); lit == nil || lit.Kind != jsast.KindString || lit.Str != "function" {
		return nil, false
	}

	amd := jsast.Unparen(test.Right)
	if amd == nil || amd.Kind != jsast.KindMember || amd.Computed || amd.Name != "amd" {
		return nil, false
	}

	definer := jsast.Unparen(amd.Object)
	if definer == nil || definer.Kind != jsast.KindIdentifier {
		return nil, false
	}

	if !matchCommonJSFallback(jsast.Unparen(arg.Else)) {
		return nil, false
	}

	body := functionBody(jsast.Unparen(call.Callee))
	if len(body) > 0 && isUseStrict(body[0]) {
		body = body[1:]
	}

	if len(body) != 1 || body[0].Kind != jsast.KindExpressionStatement {
		return nil, false
	}

	inner := jsast.Unparen(body[0].Arg)
	if inner == nil || inner.Kind != jsast.KindCall || len(inner.Args) != 1 ||
		!jsast.IsIdentifier(inner.Callee, definer.Name) {
		return nil, false
	}

	factory := jsast.Unparen(inner.Args[0])
	if !isFunctionExpression(factory) || len(factory.Params) != 1 ||
		!jsast.IsIdentifier(factory.Params[0], "require") {
		return nil, false
	}

	return factory, true
}

// matchCommonJSFallback recognizes `function (factory) { module.exports = factory(require); }`.
func matchCommonJSFallback(fn *jsast.Node) bool {
	if !isFunctionExpression(fn) || len(fn.Params) != 1 || fn.Params[0].Kind != jsast.KindIdentifier {
		return false
	}

	body := functionBody(fn)
	if len(body) != 1 || body[0].Kind != jsast.KindExpressionStatement {
		return false
	}

	assign := jsast.Unparen(body[0].Arg)
	if assign == nil || assign.Kind != jsast.KindAssignment || assign.Op != "=" {
		return false
	}

	target := assign.Left
	if target == nil || target.Kind != jsast.KindMember || target.Computed || target.Name != "exports" ||
		!jsast.IsIdentifier(target.Object, "module") {
		return false
	}

	value := assign.Right
	if value == nil || value.Kind != jsast.KindCall || len(value.Args) != 1 {
		return false
	}

	return jsast.IsIdentifier(value.Callee, fn.Params[0].Name) && jsast.IsIdentifier(value.Args[0], "require")
}

// matchBrowserify recognizes the standalone bundle prelude
//
//	(function (f) { ... })(function () {
//	  var define, module, exports;
//	  return (function () { ...loader... })()({ 1: [function (require, module, exports) {...}, {"dep": 2}] }, {}, [1])(1);
//	});
//
// and returns the dependency-cache object together with every dependency
// name mapped to undefined, in source order.
func matchBrowserify(p *jsast.Program, arg *jsast.Node) (*jsast.Node, []string, bool) {
	if !isFunctionExpression(arg) || len(arg.Params) != 0 {
		return nil, nil, false
	}

	body := functionBody(arg)
	if len(body) != 2 || body[0].Kind != jsast.KindVariableDeclaration || body[1].Kind != jsast.KindReturn {
		return nil, nil, false
	}

	if len(body[0].Elements) != 3 {
		return nil, nil, false
	}

	for _, decl := range body[0].Elements {
		if decl.Right != nil || decl.Left == nil || decl.Left.Kind != jsast.KindIdentifier {
			return nil, nil, false
		}
	}

	entry := jsast.Unparen(body[1].Arg)
	if entry == nil || entry.Kind != jsast.KindCall || len(entry.Args) == 0 {
		return nil, nil, false
	}

	for _, a := range entry.Args {
		if a.Kind != jsast.KindNumber {
			return nil, nil, false
		}
	}

	bundle := jsast.Unparen(entry.Callee)
	if bundle == nil || bundle.Kind != jsast.KindCall || len(bundle.Args) != 3 {
		return nil, nil, false
	}

	loader := jsast.Unparen(bundle.Callee)
	if loader == nil || loader.Kind != jsast.KindCall || len(loader.Args) != 0 ||
		!isFunctionExpression(jsast.Unparen(loader.Callee)) {
		return nil, nil, false
	}

	modules, cache, entries := bundle.Args[0], bundle.Args[1], bundle.Args[2]
	if modules.Kind != jsast.KindObject || cache.Kind != jsast.KindObject || entries.Kind != jsast.KindArray {
		return nil, nil, false
	}

	var externals []string

	seen := make(map[string]struct{})

	for _, mod := range modules.Elements {
		if mod.Kind != jsast.KindProperty || mod.Computed || !isNumericKey(p, mod.Key) {
			return nil, nil, false
		}

		def := mod.Value
		if def == nil || def.Kind != jsast.KindArray || len(def.Elements) != 2 ||
			!isFunctionExpression(def.Elements[0]) || def.Elements[1].Kind != jsast.KindObject {
			return nil, nil, false
		}

		for _, dep := range def.Elements[1].Elements {
			if dep.Kind != jsast.KindProperty || dep.Computed || !isStringKey(p, dep.Key) || !isDependencyTarget(dep.Value) {
				return nil, nil, false
			}

			if !jsast.IsIdentifier(dep.Value, "undefined") {
				continue
			}

			name := dep.Key.Name
			if _, ok := seen[name]; ok {
				continue
			}

			seen[name] = struct{}{}
			externals = append(externals, name)
		}
	}

	return cache, externals, true
}

func isDependencyTarget(n *jsast.Node) bool {
	if n == nil {
		return false
	}

	switch n.Kind {
	case jsast.KindIdentifier, jsast.KindString, jsast.KindNumber, jsast.KindBoolean, jsast.KindNull:
		return true
	default:
		return false
	}
}

func isNumericKey(p *jsast.Program, key *jsast.Node) bool {
	if key == nil || key.Kind != jsast.KindPropertyKey {
		return false
	}

	text := p.Text(key)

	return text != "" && (text[0] == '.' || (text[0] >= '0' && text[0] <= '9'))
}

func isStringKey(p *jsast.Program, key *jsast.Node) bool {
	if key == nil || key.Kind != jsast.KindPropertyKey {
		return false
	}

	text := p.Text(key)

	return text != "" && (text[0] == '"' || text[0] == '\'')
}

func isFunctionExpression(n *jsast.Node) bool {
	return n.IsFunction() && n.Name == "expression"
}

func functionBody(fn *jsast.Node) []*jsast.Node {
	if fn == nil || fn.Body == nil || fn.Body.Kind != jsast.KindBlock {
		return nil
	}

	return fn.Body.Elements
}

func isUseStrict(stmt *jsast.Node) bool {
	if stmt.Kind != jsast.KindExpressionStatement {
		return false
	}

	lit := stmt.Arg

	return lit != nil && lit.Kind == jsast.KindString && lit.Str == "use strict"
}

func withoutNode(nodes []*jsast.Node, drop *jsast.Node) []*jsast.Node {
	out := nodes[:0:0]

	for _, n := range nodes {
		if n != drop {
			out = append(out, n)
		}
	}

	return out
}
