package surface

// DefaultOrder is applied to contributions registered with a zero Order.
const DefaultOrder = 50

// Block types.
const (
	BlockComponent = "component"
	BlockHTML      = "html"
	BlockMarkdown  = "markdown"
)

// DefaultBlockPosition is the slot a block lands in when none is given.
const DefaultBlockPosition = "dashboard"

// Block is a piece of UI a plugin places in one of the theme's slots.
type Block struct {
	PluginID  string         `json:"plugin_id"`
	ID        string         `json:"id"`
	Title     string         `json:"title,omitempty"`
	Type      string         `json:"type"`
	Component string         `json:"component,omitempty"`
	Content   string         `json:"content,omitempty"`
	Position  string         `json:"position"`
	Order     int            `json:"order"`
	Props     map[string]any `json:"props,omitempty"`
}

// NavbarItem is a link added to the public navigation bar.
type NavbarItem struct {
	PluginID     string       `json:"plugin_id"`
	Label        string       `json:"label"`
	URL          string       `json:"url,omitempty"`
	Route        string       `json:"route,omitempty"`
	Icon         string       `json:"icon,omitempty"`
	Order        int          `json:"order"`
	RequiresAuth bool         `json:"requires_auth,omitempty"`
	Children     []NavbarItem `json:"children,omitempty"`
}

// FooterLink is a link added to one of the footer columns.
type FooterLink struct {
	PluginID string `json:"plugin_id"`
	Label    string `json:"label"`
	URL      string `json:"url"`
	Group    string `json:"group,omitempty"`
	Order    int    `json:"order"`
	External bool   `json:"external,omitempty"`
}

// Page is a standalone page served by the CMS on behalf of a plugin.
type Page struct {
	PluginID     string `json:"plugin_id"`
	Title        string `json:"title"`
	Route        string `json:"route"`
	Component    string `json:"component,omitempty"`
	Content      string `json:"content,omitempty"`
	Layout       string `json:"layout,omitempty"`
	Order        int    `json:"order"`
	RequiresAuth bool   `json:"requires_auth,omitempty"`
}

// AdminSection is a group of entries in the admin sidebar.
type AdminSection struct {
	PluginID   string      `json:"plugin_id"`
	ID         string      `json:"id,omitempty"`
	Label      string      `json:"label"`
	Icon       string      `json:"icon,omitempty"`
	Route      string      `json:"route,omitempty"`
	Permission string      `json:"permission,omitempty"`
	Order      int         `json:"order"`
	Items      []AdminItem `json:"items,omitempty"`
}

type AdminItem struct {
	Label      string `json:"label"`
	Route      string `json:"route"`
	Icon       string `json:"icon,omitempty"`
	Permission string `json:"permission,omitempty"`
}

// Snapshot bundles every contribution kind, typically for the enabled set.
type Snapshot struct {
	Blocks        []Block        `json:"blocks"`
	Navbar        []NavbarItem   `json:"navbar"`
	Footer        []FooterLink   `json:"footer"`
	Pages         []Page         `json:"pages"`
	AdminSections []AdminSection `json:"admin_sections"`
}
