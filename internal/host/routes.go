package host

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RoutesFile is the declarative route table a plugin may ship in routes/.
const RoutesFile = "web.yaml"

var ErrInvalidRoute = errors.New("invalid route")

// RouteTable is the content of routes/web.yaml.
//
//	middleware: [web, auth]
//	routes:
//	  - path: /
//	    view: index
//	  - path: /posts/{slug}
//	    view: posts.show
//	    middleware: []
//	  - path: /old
//	    redirect: /blog
type RouteTable struct {
	// Middleware applies to every route. Nil means the default group.
	Middleware []string `yaml:"middleware"`
	Routes     []Route  `yaml:"routes"`
}

// Route maps a path to exactly one action: a view, a redirect or plain text.
type Route struct {
	Method string `yaml:"method"`
	Path   string `yaml:"path"`
	Name   string `yaml:"name"`

	View     string `yaml:"view"`
	Redirect string `yaml:"redirect"`
	Text     string `yaml:"text"`
	Status   int    `yaml:"status"`

	// Middleware replaces the table's group when set; an empty list drops it.
	Middleware *[]string `yaml:"middleware"`
}

// LoadRouteTable reads <dir>/web.yaml. A missing file is an empty table.
func LoadRouteTable(dir string) (*RouteTable, error) {
	data, err := os.ReadFile(filepath.Join(dir, RoutesFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &RouteTable{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", RoutesFile, err)
	}
	return ParseRouteTable(data)
}

func ParseRouteTable(data []byte) (*RouteTable, error) {
	var rt RouteTable
	if err := yaml.Unmarshal(data, &rt); err != nil {
		return nil, fmt.Errorf("parse %s: %w", RoutesFile, err)
	}
	for i := range rt.Routes {
		if err := rt.Routes[i].normalize(); err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
	}
	return &rt, nil
}

func (r *Route) normalize() error {
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	if !strings.HasPrefix(r.Path, "/") {
		r.Path = "/" + r.Path
	}

	actions := 0
	for _, a := range []string{r.View, r.Redirect, r.Text} {
		if a != "" {
			actions++
		}
	}
	if actions != 1 {
		return fmt.Errorf("%w: %s %s needs exactly one of view, redirect or text", ErrInvalidRoute, r.Method, r.Path)
	}
	if r.Redirect != "" && r.Status == 0 {
		r.Status = http.StatusFound
	}
	if r.Status == 0 {
		r.Status = http.StatusOK
	}
	return nil
}

// middlewareFor returns the middleware names that wrap route.
func (rt *RouteTable) middlewareFor(route Route, defaults []string) []string {
	if route.Middleware != nil {
		return *route.Middleware
	}
	if rt.Middleware != nil {
		return rt.Middleware
	}
	return defaults
}
