// Package handler exposes the platform administration HTTP surface.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rmsphere/control-plane/domains/platforms/be/service"
)

// Platform is the wire representation of a platform record. The admin
// connection string stays server-side.
type Platform struct {
	Prefix              string    `json:"prefix"`
	Name                string    `json:"name"`
	DatabaseInitialized bool      `json:"databaseInitialized"`
	Active              bool      `json:"active"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// CreateRequest is the POST /platforms body.
type CreateRequest struct {
	Prefix          string `json:"prefix"`
	Name            string `json:"name"`
	AdminConnString string `json:"adminConnString,omitempty"`
}

// Handler wires the platforms service to the admin HTTP API.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("platforms service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Mount registers the platform routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/platforms", h.list)
	r.Post("/platforms", h.create)
	r.Get("/platforms/{prefix}", h.get)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	platforms, err := h.svc.List(r.Context())
	if err != nil {
		h.internal(w, err)
		return
	}
	items := make([]Platform, 0, len(platforms))
	for _, p := range platforms {
		items = append(items, toAPIPlatform(p))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	p, err := h.svc.Create(r.Context(), req.Prefix, req.Name, req.AdminConnString)
	if err != nil {
		if errors.Is(err, service.ErrConflict) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		h.internal(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAPIPlatform(p))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Get(r.Context(), chi.URLParam(r, "prefix"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.internal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAPIPlatform(p))
}

func (h *Handler) internal(w http.ResponseWriter, err error) {
	h.logger.Error("platform operation failed", zap.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func toAPIPlatform(p service.Platform) Platform {
	return Platform{
		Prefix:              p.Prefix,
		Name:                p.Name,
		DatabaseInitialized: p.DatabaseInitialized,
		Active:              p.Active,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}
