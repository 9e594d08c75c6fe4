package plugin

import "path/filepath"

// Status is the activation state of a discovered plugin.
type Status string

const (
	StatusNotActivated Status = "not-activated"
	StatusActivated    Status = "activated"
	StatusFailed       Status = "activation-failed"
)

// Conventional sub-directories probed during activation, relative to the
// plugin root.
const (
	RoutesDir       = "routes"
	ViewsDir        = "resources/views"
	TranslationsDir = "resources/lang"
	MigrationsDir   = "database/migrations"
)

// Paths are the resolved locations of a plugin's resources. They are
// computed at discovery time whether or not the directories exist.
type Paths struct {
	Root         string `json:"root"`
	Routes       string `json:"routes"`
	Views        string `json:"views"`
	Translations string `json:"translations"`
	Migrations   string `json:"migrations"`
}

func pathsFor(root string) Paths {
	return Paths{
		Root:         root,
		Routes:       filepath.Join(root, filepath.FromSlash(RoutesDir)),
		Views:        filepath.Join(root, filepath.FromSlash(ViewsDir)),
		Translations: filepath.Join(root, filepath.FromSlash(TranslationsDir)),
		Migrations:   filepath.Join(root, filepath.FromSlash(MigrationsDir)),
	}
}

// Record is everything the core knows about one discovered plugin.
// Enabled comes from host configuration, never from the manifest.
type Record struct {
	Manifest Manifest `json:"manifest"`
	Paths    Paths    `json:"paths"`
	Enabled  bool     `json:"enabled"`
	Status   Status   `json:"status"`
	Reason   string   `json:"reason,omitempty"`
}

func (r *Record) ID() string { return r.Manifest.ID }
