package assets

import (
	"regexp"
	"strings"
)

const nodeModules = "node_modules"

var packageNamePattern = regexp.MustCompile(`^(@[^\\/]+[\\/])?[^\\/]+`)

// PackageBase returns the root of the installed package containing id, found
// at the last `node_modules/<name>` (or `node_modules/@scope/<name>`) segment.
// It returns "" outside node_modules.
func PackageBase(id string) string {
	idx := strings.LastIndex(id, nodeModules)
	if idx <= 0 || idx+len(nodeModules) >= len(id) {
		return ""
	}

	isSep := func(c byte) bool { return c == '/' || c == '\\' }
	if !isSep(id[idx-1]) || !isSep(id[idx+len(nodeModules)]) {
		return ""
	}

	rest := id[idx+len(nodeModules)+1:]

	name := packageNamePattern.FindString(rest)
	if name == "" {
		return ""
	}

	return id[:idx+len(nodeModules)+1+len(name)]
}
