package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const (
	// ManifestFile is the descriptor every plugin directory carries.
	ManifestFile = "plugin.json"
	// DefaultVersion is applied when a manifest omits its version.
	DefaultVersion = "1.0.0"
)

var (
	ErrInvalidManifest = errors.New("invalid plugin manifest")
	ErrMissingID       = errors.New("manifest: id is required")
	ErrInvalidID       = errors.New("manifest: id must not contain path separators, '..' or '::'")
	ErrMissingName     = errors.New("manifest: name is required")
	ErrInvalidVersion  = errors.New("manifest: version must be valid semver")
	ErrInvalidRequires = errors.New("manifest: requires must be a valid version constraint")
)

// Manifest is the parsed content of a plugin.json file.
type Manifest struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Version         string `json:"version"`
	Description     string `json:"description,omitempty"`
	Namespace       string `json:"namespace,omitempty"`
	ServiceProvider string `json:"service_provider,omitempty"`

	Author string `json:"author,omitempty"`
	// Requires is a constraint on the host version, e.g. ">= 1.2".
	Requires  string `json:"requires,omitempty"`
	UpdateURL string `json:"update_url,omitempty"`
}

// ManifestStatus tells the three outcomes of reading a plugin directory apart.
type ManifestStatus int

const (
	ManifestOK ManifestStatus = iota
	ManifestAbsent
	ManifestInvalid
)

func (s ManifestStatus) String() string {
	switch s {
	case ManifestOK:
		return "ok"
	case ManifestAbsent:
		return "absent"
	case ManifestInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// ManifestResult is what ReadManifest returns. Manifest is set only when
// Status is ManifestOK and Err only when it is ManifestInvalid.
type ManifestResult struct {
	Status   ManifestStatus
	Manifest *Manifest
	Err      error
}

// ReadManifest reads <dir>/plugin.json. A directory without one is reported
// as absent rather than as an error.
func ReadManifest(dir string) ManifestResult {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ManifestResult{Status: ManifestAbsent}
		}
		return ManifestResult{Status: ManifestInvalid, Err: fmt.Errorf("%w: read %s: %w", ErrInvalidManifest, ManifestFile, err)}
	}

	m, err := ParseManifest(data)
	if err != nil {
		return ManifestResult{Status: ManifestInvalid, Err: err}
	}
	return ManifestResult{Status: ManifestOK, Manifest: m}
}

// ParseManifest decodes and validates manifest JSON, applying defaults.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	m.ID = strings.TrimSpace(m.ID)
	m.Name = strings.TrimSpace(m.Name)
	if strings.TrimSpace(m.Version) == "" {
		m.Version = DefaultVersion
	}
}

// Validate checks the required fields and the version syntax.
func (m *Manifest) Validate() error {
	if m.ID == "" {
		return ErrMissingID
	}
	if strings.ContainsAny(m.ID, `/\`) || strings.Contains(m.ID, "..") || strings.Contains(m.ID, "::") {
		return fmt.Errorf("%w: %q", ErrInvalidID, m.ID)
	}
	if m.Name == "" {
		return ErrMissingName
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidVersion, m.Version)
	}
	if m.Requires != "" {
		if _, err := semver.NewConstraint(m.Requires); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidRequires, m.Requires)
		}
	}
	return nil
}

// SemVer returns the parsed version. It only fails for manifests that were
// never validated.
func (m Manifest) SemVer() (*semver.Version, error) {
	return semver.NewVersion(m.Version)
}

// Supports reports whether the plugin accepts the given host version. A
// manifest without a requirement supports every host.
func (m Manifest) Supports(host *semver.Version) bool {
	if m.Requires == "" || host == nil {
		return true
	}
	c, err := semver.NewConstraint(m.Requires)
	if err != nil {
		return false
	}
	return c.Check(host)
}
