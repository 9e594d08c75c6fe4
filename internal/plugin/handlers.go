package plugin

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/hooks"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/httputil"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/marketplace"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/surface"
)

// UpdateChecker looks up newer releases of installed plugins.
type UpdateChecker interface {
	Check(ctx context.Context, installed []marketplace.Installed) []marketplace.Update
}

type Handlers struct {
	manager    *Manager
	hooks      *hooks.Registry
	surfaces   *surface.Registry
	updates    UpdateChecker
	writeGuard mux.MiddlewareFunc
}

func NewHandlers(manager *Manager, hr *hooks.Registry, sr *surface.Registry, updates UpdateChecker, writeGuard mux.MiddlewareFunc) *Handlers {
	return &Handlers{manager: manager, hooks: hr, surfaces: sr, updates: updates, writeGuard: writeGuard}
}

func (h *Handlers) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/plugins").Subrouter()
	api.HandleFunc("", h.handleList).Methods("GET")
	api.HandleFunc("/enabled", h.handleListEnabled).Methods("GET")
	api.HandleFunc("/hooks", h.handleHooks).Methods("GET")
	api.HandleFunc("/surfaces", h.handleSurfaces).Methods("GET")
	api.HandleFunc("/updates", h.handleUpdates).Methods("GET")
	api.HandleFunc("/{id}", h.handleGet).Methods("GET")

	// Write endpoints sit behind the guard when one is configured.
	writeAPI := api.PathPrefix("").Subrouter()
	if h.writeGuard != nil {
		writeAPI.Use(h.writeGuard)
	}
	writeAPI.HandleFunc("/reload", h.handleReload).Methods("POST")
	writeAPI.HandleFunc("/{id}/enable", h.handleEnable).Methods("POST")
	writeAPI.HandleFunc("/{id}/disable", h.handleDisable).Methods("POST")
}

func (h *Handlers) handleList(w http.ResponseWriter, r *http.Request) {
	if !h.load(w, r) {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.manager.List())
}

func (h *Handlers) handleListEnabled(w http.ResponseWriter, r *http.Request) {
	if !h.load(w, r) {
		return
	}
	manifests := []Manifest{}
	for _, rec := range h.manager.List() {
		if rec.Enabled {
			manifests = append(manifests, rec.Manifest)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, manifests)
}

func (h *Handlers) handleGet(w http.ResponseWriter, r *http.Request) {
	if !h.load(w, r) {
		return
	}
	rec, ok := h.manager.Get(mux.Vars(r)["id"])
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "plugin not found")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handlers) handleEnable(w http.ResponseWriter, r *http.Request) {
	out, err := h.manager.Enable(r.Context(), mux.Vars(r)["id"])
	h.writeOutcome(w, out, err)
}

func (h *Handlers) handleDisable(w http.ResponseWriter, r *http.Request) {
	out, err := h.manager.Disable(r.Context(), mux.Vars(r)["id"])
	h.writeOutcome(w, out, err)
}

func (h *Handlers) writeOutcome(w http.ResponseWriter, out Outcome, err error) {
	switch {
	case errors.Is(err, ErrPluginNotFound):
		httputil.WriteError(w, http.StatusNotFound, err.Error())
	case err != nil:
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
	default:
		httputil.WriteJSON(w, http.StatusOK, out)
	}
}

func (h *Handlers) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Reload(r.Context()); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.manager.LastReport())
}

func (h *Handlers) handleHooks(w http.ResponseWriter, r *http.Request) {
	if !h.load(w, r) {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.hooks.All())
}

func (h *Handlers) handleSurfaces(w http.ResponseWriter, r *http.Request) {
	if !h.load(w, r) {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.surfaces.Snapshot(h.manager.EnabledIDs()))
}

func (h *Handlers) handleUpdates(w http.ResponseWriter, r *http.Request) {
	if h.updates == nil {
		httputil.WriteJSON(w, http.StatusOK, []marketplace.Update{})
		return
	}
	if !h.load(w, r) {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.updates.Check(r.Context(), Installed(h.manager.List())))
}

// Installed describes records for the update checker.
func Installed(records []Record) []marketplace.Installed {
	out := make([]marketplace.Installed, 0, len(records))
	for _, rec := range records {
		out = append(out, marketplace.Installed{
			ID:        rec.ID(),
			Version:   rec.Manifest.Version,
			UpdateURL: rec.Manifest.UpdateURL,
		})
	}
	return out
}

func (h *Handlers) load(w http.ResponseWriter, r *http.Request) bool {
	if err := h.manager.Load(r.Context()); err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return false
	}
	return true
}
