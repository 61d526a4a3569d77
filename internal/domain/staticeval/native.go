package staticeval

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/blang/semver"

	m "github.com/mouse-blink/relocator/internal/model"
)

// ErrNotFound is returned by the native-binding locators when no candidate
// path exists.
var ErrNotFound = errors.New("native binding not found")

// Host carries the build-time facts the native-binding locators consult.
type Host struct {
	FS  FileSystem
	Cwd string
	// Filename is the absolute path of the file being relocated.
	Filename string
	// PackageBase is the enclosing node_modules package root, if any.
	PackageBase string
	Platform    m.Platform
	// OnBindingsInstance is called whenever the bindings factory resolves a
	// path the caller will require at runtime (no explicit `path` option).
	OnBindingsInstance func()
}

func (h *Host) exists(p string) bool {
	_, err := h.FS.FileInfo(m.Path(p))
	return err == nil
}

// moduleRoot is the package base, or the nearest ancestor of the file that
// holds a package.json.
func (h *Host) moduleRoot() string {
	if h.PackageBase != "" {
		return h.PackageBase
	}

	dir := DirnamePath(h.Filename)
	for {
		if h.exists(JoinPath(dir, "package.json")) {
			return dir
		}

		parent := DirnamePath(dir)
		if parent == dir {
			return DirnamePath(h.Filename)
		}

		dir = parent
	}
}

func (h *Host) nodePreGypLabel() string {
	return "node-v" + h.Platform.NodeABI + "-" + h.Platform.OS + "-" + h.Platform.Arch
}

// Require models a bare `require` call. Only the bindings package resolves.
func (h *Host) Require() Func {
	return func(_ any, args []any) (any, error) {
		if len(args) == 1 && args[0] == "bindings" {
			return h.Bindings(), nil
		}

		return nil, fmt.Errorf("%w: require(%s) is not modeled", ErrArgument, describe(firstArg(args)))
	}
}

func firstArg(args []any) any {
	if len(args) == 0 {
		return Undefined
	}

	return args[0]
}

// Bindings returns the modeled `bindings` factory. It resolves the compiled
// addon path instead of loading it.
func (h *Host) Bindings() Func {
	return func(_ any, args []any) (any, error) {
		name := "bindings.node"
		explicitPath := false

		switch opts := firstArg(args).(type) {
		case string:
			name = opts
		case *Object:
			if v, ok := opts.Get("bindings"); ok {
				s, isStr := v.(string)
				if !isStr {
					return nil, fmt.Errorf("%w: bindings option must be a string", ErrArgument)
				}

				name = s
			}

			if v, ok := opts.Get("path"); ok && Truthy(v) {
				explicitPath = true
			}
		case undefinedValue:
		default:
			return nil, fmt.Errorf("%w: bindings options must be a string or object", ErrArgument)
		}

		if ExtnamePath(name) != ".node" {
			name += ".node"
		}

		root := h.moduleRoot()
		for _, candidate := range h.bindingsTryList(root, name) {
			if !h.exists(candidate) {
				continue
			}

			if !explicitPath && h.OnBindingsInstance != nil {
				h.OnBindingsInstance()
			}

			return candidate, nil
		}

		return nil, fmt.Errorf("%w: %s under %s", ErrNotFound, name, root)
	}
}

func (h *Host) bindingsTryList(root, name string) []string {
	p := h.Platform

	dirs := [][]string{
		{"build"},
		{"build", "Debug"},
		{"build", "Release"},
		{"out", "Debug"},
		{"Debug"},
		{"out", "Release"},
		{"Release"},
		{"build", "default"},
		{"compiled", p.NodeVersion, p.OS, p.Arch},
		{"addon-build", "release", "install-root"},
		{"addon-build", "debug", "install-root"},
		{"addon-build", "default", "install-root"},
		{"lib", "binding", h.nodePreGypLabel()},
	}

	out := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		parts := append([]string{root}, dir...)
		out = append(out, JoinPath(append(parts, name)...))
	}

	return out
}

type preGypBinary struct {
	ModuleName   string `json:"module_name"`
	ModulePath   string `json:"module_path"`
	Host         string `json:"host"`
	NapiVersions []int  `json:"napi_versions"`
}

type preGypPackage struct {
	Name    string        `json:"name"`
	Version string        `json:"version"`
	Main    string        `json:"main"`
	Binary  *preGypBinary `json:"binary"`
}

// PreGyp returns the modeled node-pre-gyp module exposing find.
func (h *Host) PreGyp() *Object {
	mod := NewObject()

	mod.Set("find", Func(func(_ any, args []any) (any, error) {
		pkgPath, ok := firstArg(args).(string)
		if !ok {
			return nil, fmt.Errorf("%w: node-pre-gyp.find expects a package.json path", ErrArgument)
		}

		var opts *Object
		if len(args) > 1 {
			if o, isObj := args[1].(*Object); isObj {
				opts = o
			}
		}

		return h.preGypFind(ResolvePath(h.Cwd, pkgPath), opts)
	}))

	return mod
}

func (h *Host) preGypFind(pkgPath string, opts *Object) (string, error) {
	data, err := h.FS.ReadFile(m.Path(pkgPath))
	if err != nil {
		return "", fmt.Errorf("package.json does not exist at %s: %w", pkgPath, err)
	}

	var pkg preGypPackage
	if err := json.Unmarshal(data, &pkg); err != nil {
		return "", fmt.Errorf("parse %s: %w", pkgPath, err)
	}

	if pkg.Binary == nil || pkg.Binary.ModuleName == "" || pkg.Binary.ModulePath == "" {
		return "", fmt.Errorf("%w: %s has no binary.module_name/module_path", ErrArgument, pkgPath)
	}

	version, err := semver.Parse(pkg.Version)
	if err != nil {
		return "", fmt.Errorf("parse version of %s: %w", pkgPath, err)
	}

	option := func(key string) (any, bool) {
		if opts == nil {
			return nil, false
		}

		return opts.Get(key)
	}

	moduleRoot := DirnamePath(pkgPath)
	if v, ok := option("module_root"); ok {
		if s, isStr := v.(string); isStr && s != "" {
			moduleRoot = s
		}
	}

	configuration := "Release"
	if v, ok := option("debug"); ok && Truthy(v) {
		configuration = "Debug"
	}

	napiBuild := bestNapiVersion(pkg.Binary.NapiVersions, h.Platform.NapiVersion)
	nodeABI := "node-v" + h.Platform.NodeABI

	napiLabel := nodeABI
	napiBuildStr := ""

	if napiBuild > 0 {
		napiBuildStr = strconv.Itoa(napiBuild)
		napiLabel = "napi-v" + napiBuildStr
	}

	joinParts := func(parts []semver.PRVersion) string {
		out := make([]string, len(parts))
		for i, p := range parts {
			out[i] = p.String()
		}

		return strings.Join(out, ".")
	}

	vars := [][2]string{
		{"name", pkg.Name},
		{"configuration", configuration},
		{"module_name", pkg.Binary.ModuleName},
		{"version", version.String()},
		{"prerelease", joinParts(version.Pre)},
		{"build", strings.Join(version.Build, ".")},
		{"major", strconv.FormatUint(version.Major, 10)},
		{"minor", strconv.FormatUint(version.Minor, 10)},
		{"patch", strconv.FormatUint(version.Patch, 10)},
		{"runtime", "node"},
		{"node_abi", nodeABI},
		{"node_abi_napi", "napi"},
		{"napi_version", strconv.Itoa(h.Platform.NapiVersion)},
		{"napi_build_version", napiBuildStr},
		{"node_napi_label", napiLabel},
		{"target", ""},
		{"platform", h.Platform.OS},
		{"target_platform", h.Platform.OS},
		{"arch", h.Platform.Arch},
		{"target_arch", h.Platform.Arch},
		{"libc", h.Platform.Libc},
		{"module_main", pkg.Main},
		{"toolset", ""},
	}

	modulePath := evalTemplate(pkg.Binary.ModulePath, vars)

	return JoinPath(JoinPath(moduleRoot, modulePath), pkg.Binary.ModuleName+".node"), nil
}

func evalTemplate(template string, vars [][2]string) string {
	for _, kv := range vars {
		template = strings.ReplaceAll(template, "{"+kv[0]+"}", kv[1])
	}

	return template
}

func bestNapiVersion(buildVersions []int, supported int) int {
	sorted := append([]int(nil), buildVersions...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))

	for _, v := range sorted {
		if v <= supported {
			return v
		}
	}

	return 0
}

type nbindSpec struct {
	ext  string
	name string
	kind string
}

var nbindSpecs = []nbindSpec{
	{ext: ".node", name: "nbind.node", kind: "node"},
	{ext: ".js", name: "nbind.js", kind: "emcc"},
}

// NBind returns the modeled nbind module exposing init and find.
func (h *Host) NBind() *Object {
	mod := NewObject()

	find := Func(func(_ any, args []any) (any, error) {
		basePath := h.Cwd

		if len(args) > 0 && args[0] != Undefined {
			s, ok := args[0].(string)
			if !ok {
				return nil, fmt.Errorf("%w: nbind base path must be a string", ErrArgument)
			}

			basePath = s
		}

		return h.nbindFind(basePath)
	})

	mod.Set("find", find)
	mod.Set("init", find)

	return mod
}

func (h *Host) nbindFind(basePath string) (*Object, error) {
	info := func(spec nbindSpec, p string) *Object {
		return NewObject().
			Set("ext", spec.ext).
			Set("name", spec.name).
			Set("type", spec.kind).
			Set("path", p)
	}

	ext := ExtnamePath(basePath)
	for _, spec := range nbindSpecs {
		if ext != spec.ext {
			continue
		}

		resolved := ResolvePath(h.Cwd, basePath)
		if h.exists(resolved) {
			return info(spec, resolved), nil
		}
	}

	root := ResolvePath(h.Cwd, basePath)
	p := h.Platform

	for _, spec := range nbindSpecs {
		dirs := [][]string{
			{},
			{"build"},
			{"build", "Debug"},
			{"build", "Release"},
			{"out", "Debug"},
			{"Debug"},
			{"out", "Release"},
			{"Release"},
			{"build", "default"},
			{"compiled", p.NodeVersion, p.OS, p.Arch},
		}

		for _, dir := range dirs {
			parts := append(append([]string{root}, dir...), spec.name)

			candidate := JoinPath(parts...)
			if h.exists(candidate) {
				return info(spec, candidate), nil
			}
		}
	}

	return nil, fmt.Errorf("%w: nbind under %s", ErrNotFound, root)
}
