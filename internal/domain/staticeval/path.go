package staticeval

import (
	"errors"
	"fmt"
	"os"
	pathpkg "path"
	"strings"

	m "github.com/mouse-blink/relocator/internal/model"
)

// ErrArgument is returned by modeled functions called with the wrong argument
// types. The evaluator downgrades it to Unknown.
var ErrArgument = errors.New("invalid argument")

// FileSystem is the read-only view the modeled host functions need.
type FileSystem interface {
	ReadFile(path m.Path) ([]byte, error)
	FileInfo(path m.Path) (os.FileInfo, error)
}

func stringArgs(name string, args []any) ([]string, error) {
	out := make([]string, len(args))

	for i, arg := range args {
		s, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s argument %d must be a string, got %s", ErrArgument, name, i, describe(arg))
		}

		out[i] = s
	}

	return out, nil
}

// NormalizePath mirrors path.posix.normalize, including the trailing slash.
func NormalizePath(p string) string {
	if p == "" {
		return "."
	}

	trailing := strings.HasSuffix(p, "/")

	out := pathpkg.Clean(p)
	if trailing && out != "/" {
		out += "/"
	}

	return out
}

// JoinPath mirrors path.posix.join.
func JoinPath(parts ...string) string {
	nonEmpty := make([]string, 0, len(parts))

	for _, part := range parts {
		if part != "" {
			nonEmpty = append(nonEmpty, part)
		}
	}

	if len(nonEmpty) == 0 {
		return "."
	}

	return NormalizePath(strings.Join(nonEmpty, "/"))
}

// ResolvePath mirrors path.posix.resolve with an explicit working directory.
func ResolvePath(cwd string, parts ...string) string {
	resolved := ""

	for i := len(parts) - 1; i >= 0 && !strings.HasPrefix(resolved, "/"); i-- {
		if parts[i] == "" {
			continue
		}

		if resolved == "" {
			resolved = parts[i]
		} else {
			resolved = parts[i] + "/" + resolved
		}
	}

	if !strings.HasPrefix(resolved, "/") {
		resolved = cwd + "/" + resolved
	}

	return pathpkg.Clean("/" + strings.TrimPrefix(resolved, "/"))
}

// DirnamePath mirrors path.posix.dirname.
func DirnamePath(p string) string {
	if p == "" {
		return "."
	}

	trimmed := strings.TrimRight(p, "/")
	if trimmed == "" {
		return "/"
	}

	idx := strings.LastIndex(trimmed, "/")

	switch {
	case idx < 0:
		return "."
	case idx == 0:
		return "/"
	}

	return strings.TrimRight(trimmed[:idx], "/")
}

// BasenamePath mirrors path.posix.basename.
func BasenamePath(p, ext string) string {
	trimmed := strings.TrimRight(p, "/")
	base := trimmed[strings.LastIndex(trimmed, "/")+1:]

	if ext != "" && ext != base && strings.HasSuffix(base, ext) {
		base = strings.TrimSuffix(base, ext)
	}

	return base
}

// ExtnamePath mirrors path.posix.extname.
func ExtnamePath(p string) string {
	base := BasenamePath(p, "")

	idx := strings.LastIndex(base, ".")
	if idx <= 0 {
		return ""
	}

	return base[idx:]
}

// RelativePath mirrors path.posix.relative.
func RelativePath(cwd, from, to string) string {
	from = ResolvePath(cwd, from)
	to = ResolvePath(cwd, to)

	if from == to {
		return ""
	}

	split := func(p string) []string {
		if p == "/" {
			return nil
		}

		return strings.Split(strings.TrimPrefix(p, "/"), "/")
	}

	fromParts := split(from)
	toParts := split(to)

	common := 0
	for common < len(fromParts) && common < len(toParts) && fromParts[common] == toParts[common] {
		common++
	}

	out := make([]string, 0, len(fromParts)-common+len(toParts)-common)
	for range fromParts[common:] {
		out = append(out, "..")
	}

	out = append(out, toParts[common:]...)

	return strings.Join(out, "/")
}

// NewPathModule returns the modeled `path` object. Relative resolution uses
// cwd.
func NewPathModule(cwd string) *Object {
	mod := NewObject()

	mod.Set("sep", "/")
	mod.Set("delimiter", ":")

	mod.Set("join", Func(func(_ any, args []any) (any, error) {
		parts, err := stringArgs("path.join", args)
		if err != nil {
			return nil, err
		}

		return JoinPath(parts...), nil
	}))

	mod.Set("resolve", Func(func(_ any, args []any) (any, error) {
		parts, err := stringArgs("path.resolve", args)
		if err != nil {
			return nil, err
		}

		return ResolvePath(cwd, parts...), nil
	}))

	mod.Set("normalize", Func(func(_ any, args []any) (any, error) {
		parts, err := stringArgs("path.normalize", args)
		if err != nil || len(parts) != 1 {
			return nil, fmt.Errorf("%w: path.normalize expects one string", ErrArgument)
		}

		return NormalizePath(parts[0]), nil
	}))

	mod.Set("dirname", Func(func(_ any, args []any) (any, error) {
		parts, err := stringArgs("path.dirname", args)
		if err != nil || len(parts) != 1 {
			return nil, fmt.Errorf("%w: path.dirname expects one string", ErrArgument)
		}

		return DirnamePath(parts[0]), nil
	}))

	mod.Set("basename", Func(func(_ any, args []any) (any, error) {
		parts, err := stringArgs("path.basename", args)
		if err != nil || len(parts) == 0 || len(parts) > 2 {
			return nil, fmt.Errorf("%w: path.basename expects one or two strings", ErrArgument)
		}

		ext := ""
		if len(parts) == 2 {
			ext = parts[1]
		}

		return BasenamePath(parts[0], ext), nil
	}))

	mod.Set("extname", Func(func(_ any, args []any) (any, error) {
		parts, err := stringArgs("path.extname", args)
		if err != nil || len(parts) != 1 {
			return nil, fmt.Errorf("%w: path.extname expects one string", ErrArgument)
		}

		return ExtnamePath(parts[0]), nil
	}))

	mod.Set("relative", Func(func(_ any, args []any) (any, error) {
		parts, err := stringArgs("path.relative", args)
		if err != nil || len(parts) != 2 {
			return nil, fmt.Errorf("%w: path.relative expects two strings", ErrArgument)
		}

		return RelativePath(cwd, parts[0], parts[1]), nil
	}))

	mod.Set("isAbsolute", Func(func(_ any, args []any) (any, error) {
		parts, err := stringArgs("path.isAbsolute", args)
		if err != nil || len(parts) != 1 {
			return nil, fmt.Errorf("%w: path.isAbsolute expects one string", ErrArgument)
		}

		return strings.HasPrefix(parts[0], "/"), nil
	}))

	mod.Set("posix", mod)

	return mod
}

// NewFSModule returns the modeled `fs` object. Only existsSync is callable.
func NewFSModule(fs FileSystem, cwd string) *Object {
	mod := NewObject()

	mod.Set("existsSync", Func(func(_ any, args []any) (any, error) {
		parts, err := stringArgs("fs.existsSync", args)
		if err != nil || len(parts) != 1 {
			return nil, fmt.Errorf("%w: fs.existsSync expects one string", ErrArgument)
		}

		_, statErr := fs.FileInfo(m.Path(ResolvePath(cwd, parts[0])))

		return statErr == nil, nil
	}))

	return mod
}
