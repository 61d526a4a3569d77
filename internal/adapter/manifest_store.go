package adapter

import (
	"errors"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	m "github.com/mouse-blink/relocator/internal/model"
)

// ManifestVersion is the on-disk manifest schema version.
const ManifestVersion = 1

// ErrManifestVersion is returned when a manifest was written by an
// incompatible version.
var ErrManifestVersion = errors.New("unsupported manifest version")

// ManifestStore persists the registries of a finished build.
type ManifestStore interface {
	SaveManifest(path m.Path, manifest m.Manifest) error
	LoadManifest(path m.Path) (m.Manifest, error)
}

// LocalManifestStore stores manifests as YAML through a SourceFSAdapter.
type LocalManifestStore struct {
	fs SourceFSAdapter
}

// NewLocalManifestStore constructs a LocalManifestStore.
func NewLocalManifestStore(fs SourceFSAdapter) *LocalManifestStore {
	return &LocalManifestStore{fs: fs}
}

// SaveManifest writes manifest to path with assets sorted by name.
func (s *LocalManifestStore) SaveManifest(path m.Path, manifest m.Manifest) error {
	manifest.Version = ManifestVersion

	assets := append([]m.Asset(nil), manifest.Assets...)
	sort.Slice(assets, func(i, j int) bool { return assets[i].Name < assets[j].Name })
	manifest.Assets = assets

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	if err := s.fs.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest %s: %w", path, err)
	}

	return nil
}

// LoadManifest reads a manifest written by SaveManifest.
func (s *LocalManifestStore) LoadManifest(path m.Path) (m.Manifest, error) {
	data, err := s.fs.ReadFile(path)
	if err != nil {
		return m.Manifest{}, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	var manifest m.Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return m.Manifest{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	if manifest.Version != ManifestVersion {
		return m.Manifest{}, fmt.Errorf("%w: %d in %s", ErrManifestVersion, manifest.Version, path)
	}

	return manifest, nil
}
