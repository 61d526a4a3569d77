package domain

import (
	"path/filepath"

	"github.com/mouse-blink/relocator/internal/domain/staticeval"
	"github.com/mouse-blink/relocator/internal/jsast"
)

// knownModule names a host module the evaluator models.
type knownModule string

const (
	moduleNone     knownModule = ""
	modulePath     knownModule = "path"
	moduleFS       knownModule = "fs"
	modulePreGyp   knownModule = "node-pre-gyp"
	moduleBindings knownModule = "bindings"
	moduleNBind    knownModule = "nbind"
)

func knownModuleFor(specifier string) knownModule {
	switch specifier {
	case "path":
		return modulePath
	case "fs":
		return moduleFS
	case "bindings":
		return moduleBindings
	case "nbind":
		return moduleNBind
	case "node-pre-gyp",
		"node-pre-gyp/lib/pre-binding",
		"node-pre-gyp/lib/pre-binding.js",
		"@mapbox/node-pre-gyp",
		"@mapbox/node-pre-gyp/lib/pre-binding",
		"@mapbox/node-pre-gyp/lib/pre-binding.js":
		return modulePreGyp
	default:
		return moduleNone
	}
}

// bindingEntry is one level of a name's binding stack. A shadow entry hides
// every entry below it until the scope that pushed it is left.
type bindingEntry struct {
	scope    jsast.ScopeID
	shadow   bool
	module   knownModule
	value    any
	hasValue bool
}

// knownBindings tracks which identifiers statically refer to __dirname,
// __filename, require or a modeled host module at the current walk
// position.
type knownBindings struct {
	program *jsast.Program
	modules map[knownModule]any
	stacks  map[string][]bindingEntry
	host    *staticeval.Host
}

func newKnownBindings(program *jsast.Program, host *staticeval.Host) *knownBindings {
	k := &knownBindings{
		program: program,
		host:    host,
		stacks:  make(map[string][]bindingEntry),
		modules: map[knownModule]any{
			modulePath:     staticeval.NewPathModule(host.Cwd),
			moduleFS:       staticeval.NewFSModule(host.FS, host.Cwd),
			modulePreGyp:   host.PreGyp(),
			moduleBindings: host.Bindings(),
			moduleNBind:    host.NBind(),
		},
	}

	root := program.RootScope

	k.push("__dirname", bindingEntry{scope: root, value: filepath.Dir(host.Filename), hasValue: true})
	k.push("__filename", bindingEntry{scope: root, value: host.Filename, hasValue: true})

	if program.Module {
		k.seedImports()
	} else {
		k.push("require", bindingEntry{scope: root})
	}

	// The program scope is never entered, so its redeclarations of the
	// seeded names are applied here.
	top := program.Scope(root)
	for _, name := range []string{"__dirname", "__filename", "require"} {
		if _, tracked := k.stacks[name]; tracked && top.Declares(name) {
			k.push(name, bindingEntry{scope: root, shadow: true})
		}
	}

	return k
}

// seedImports binds top-level imports of modeled modules. Imports are
// hoisted, so this runs before the walk.
func (k *knownBindings) seedImports() {
	for _, stmt := range k.program.Root.Elements {
		if stmt.Kind != jsast.KindImport {
			continue
		}

		mod := knownModuleFor(stmt.Source)
		if mod == moduleNone {
			continue
		}

		for _, spec := range stmt.Specifiers {
			if spec.Local == nil {
				continue
			}

			switch spec.Imported {
			case "*", "default":
				k.bind(spec.Local.Name, k.program.RootScope, mod, k.modules[mod])
			default:
				if v, ok := k.member(k.modules[mod], spec.Imported); ok {
					k.bind(spec.Local.Name, k.program.RootScope, mod, v)
				}
			}
		}
	}
}

func (k *knownBindings) push(name string, e bindingEntry) {
	k.stacks[name] = append(k.stacks[name], e)
}

func (k *knownBindings) bind(name string, scope jsast.ScopeID, mod knownModule, value any) {
	k.push(name, bindingEntry{scope: scope, module: mod, value: value, hasValue: true})
}

// enterScope shadows every tracked name the scope redeclares.
func (k *knownBindings) enterScope(id jsast.ScopeID) {
	scope := k.program.Scope(id)

	for _, name := range scope.Names() {
		if _, tracked := k.stacks[name]; tracked {
			k.push(name, bindingEntry{scope: id, shadow: true})
		}
	}
}

// leaveScope drops every entry introduced while the scope was active.
func (k *knownBindings) leaveScope(id jsast.ScopeID) {
	for name, stack := range k.stacks {
		for len(stack) > 0 && stack[len(stack)-1].scope == id {
			stack = stack[:len(stack)-1]
		}

		k.stacks[name] = stack
	}
}

func (k *knownBindings) top(name string) (bindingEntry, bool) {
	stack := k.stacks[name]
	if len(stack) == 0 {
		return bindingEntry{}, false
	}

	e := stack[len(stack)-1]
	if e.shadow {
		return bindingEntry{}, false
	}

	return e, true
}

// active reports whether name currently refers to its tracked meaning.
func (k *knownBindings) active(name string) bool {
	_, ok := k.top(name)
	return ok
}

// moduleOf returns the modeled module an unshadowed name was bound from.
func (k *knownBindings) moduleOf(name string) knownModule {
	e, ok := k.top(name)
	if !ok {
		return moduleNone
	}

	return e.module
}

// env snapshots the currently visible bindings for the evaluator. The
// modeled require is only exposed when withRequire is set.
func (k *knownBindings) env(withRequire bool) staticeval.Vars {
	vars := make(staticeval.Vars, len(k.stacks))

	for name := range k.stacks {
		if e, ok := k.top(name); ok && e.hasValue {
			vars[name] = e.value
		}
	}

	if withRequire && k.active("require") {
		vars["require"] = k.host.Require()
	}

	return vars
}

func (k *knownBindings) member(obj any, name string) (any, bool) {
	o, ok := obj.(*staticeval.Object)
	if !ok {
		return nil, false
	}

	return o.Get(name)
}

// staticRequire matches `require('<specifier>')` with an unshadowed require.
func (k *knownBindings) staticRequire(n *jsast.Node) (string, bool) {
	n = jsast.Unparen(n)
	if n == nil || n.Kind != jsast.KindCall || len(n.Args) != 1 {
		return "", false
	}

	if !jsast.IsIdentifier(n.Callee, "require") || !k.active("require") {
		return "", false
	}

	arg := n.Args[0]
	if arg.Kind != jsast.KindString {
		return "", false
	}

	return arg.Str, true
}

// source resolves an initializer to a modeled module value: a require of a
// modeled module or a reference to a name already bound to one.
func (k *knownBindings) source(init *jsast.Node) (knownModule, any, bool) {
	if spec, ok := k.staticRequire(init); ok {
		mod := knownModuleFor(spec)
		if mod == moduleNone {
			return moduleNone, nil, false
		}

		return mod, k.modules[mod], true
	}

	init = jsast.Unparen(init)
	if init == nil || init.Kind != jsast.KindIdentifier {
		return moduleNone, nil, false
	}

	e, ok := k.top(init.Name)
	if !ok || e.module == moduleNone {
		return moduleNone, nil, false
	}

	return e.module, e.value, true
}

// declare records the top-level declarators of decl that bind modeled
// modules:
//
//	var path = require('path')
//	const { join, resolve: r } = require('path')   // or = path
//	const join = path.join
func (k *knownBindings) declare(decl *jsast.Node) {
	root := k.program.RootScope

	for _, d := range decl.Elements {
		if d.Left == nil || d.Right == nil {
			continue
		}

		switch d.Left.Kind {
		case jsast.KindIdentifier:
			if mod, v, ok := k.source(d.Right); ok {
				k.bind(d.Left.Name, root, mod, v)
				continue
			}

			init := jsast.Unparen(d.Right)
			if init.Kind != jsast.KindMember || init.Computed {
				continue
			}

			mod, obj, ok := k.source(init.Object)
			if !ok {
				continue
			}

			if v, found := k.member(obj, init.Name); found {
				k.bind(d.Left.Name, root, mod, v)
			}

		case jsast.KindObjectPattern:
			mod, obj, ok := k.source(d.Right)
			if !ok {
				continue
			}

			for _, prop := range d.Left.Elements {
				if prop.Kind != jsast.KindProperty || prop.Computed || prop.Key == nil ||
					prop.Value == nil || prop.Value.Kind != jsast.KindIdentifier {
					continue
				}

				if v, found := k.member(obj, prop.Key.Name); found {
					k.bind(prop.Value.Name, root, mod, v)
				}
			}
		}
	}
}

// assign handles `name = require('<module>')`. The binding only changes
// when name is declared in the current scope chain.
func (k *knownBindings) assign(n *jsast.Node, current jsast.ScopeID) {
	if n.Op != "=" || n.Left == nil || n.Left.Kind != jsast.KindIdentifier {
		return
	}

	spec, ok := k.staticRequire(n.Right)
	if !ok {
		return
	}

	mod := knownModuleFor(spec)
	if mod == moduleNone {
		return
	}

	name := n.Left.Name

	declScope := k.program.DeclaringScope(current, name)
	if declScope == jsast.NoScope {
		return
	}

	entry := bindingEntry{scope: declScope, module: mod, value: k.modules[mod], hasValue: true}

	stack := k.stacks[name]
	if depth := len(stack); depth > 0 && stack[depth-1].scope == declScope {
		stack[depth-1] = entry
		return
	}

	k.push(name, entry)
}
