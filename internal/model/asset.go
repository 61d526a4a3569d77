package model

import "os"

// AssetKind distinguishes single files from whole directories.
type AssetKind string

const (
	// AssetFile is a single emitted file.
	AssetFile AssetKind = "file"
	// AssetDirectory is a directory emitted recursively.
	AssetDirectory AssetKind = "directory"
	// AssetSharedLibrary is a shared library emitted next to a native addon.
	AssetSharedLibrary AssetKind = "shared-library"
	// AssetSymlink is recorded as a link instead of copied content.
	AssetSymlink AssetKind = "symlink"
)

// Asset records one emitted output.
type Asset struct {
	// Name is the output-relative name, unique within a build.
	Name string `yaml:"name"`
	// Source is the absolute filesystem path the asset was read from.
	Source Path      `yaml:"source"`
	Kind   AssetKind `yaml:"kind"`
	// Mode holds the permission bits observed at emission time.
	Mode os.FileMode `yaml:"mode,omitempty"`
	// Target is set for symlinks only.
	Target string `yaml:"target,omitempty"`
}

// Manifest is the persisted view of a build's registries.
type Manifest struct {
	Version int     `yaml:"version"`
	BuildID string  `yaml:"build_id"`
	Assets  []Asset `yaml:"assets"`
}
