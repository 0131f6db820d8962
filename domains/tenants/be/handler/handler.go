// Package handler exposes the tenant administration HTTP surface.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rmsphere/control-plane/domains/tenants/be/service"
	"github.com/rmsphere/control-plane/platform/go/logging"
	"github.com/rmsphere/control-plane/platform/go/requesttrace"
)

const (
	problemTypeValidation = "https://rmsphere.io/problems/validation-error"
	problemTypeNotFound   = "https://rmsphere.io/problems/not-found"
	problemTypeConflict   = "https://rmsphere.io/problems/conflict"
	problemTypeInternal   = "https://rmsphere.io/problems/internal-error"
)

// ProblemDetails is an RFC 7807 error body.
type ProblemDetails struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Tenant is the wire representation of a directory record. Database
// credentials are never included here; the datasource endpoint serves them.
type Tenant struct {
	TenantKey  string    `json:"tenantKey"`
	TenantID   string    `json:"tenantId"`
	Name       string    `json:"name"`
	Subdomain  string    `json:"subdomain,omitempty"`
	RealmName  string    `json:"realmName"`
	ClientID   string    `json:"clientId"`
	Active     bool      `json:"active"`
	IsTemplate bool      `json:"isTemplate"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// CreateRequest is the POST /tenants body.
type CreateRequest struct {
	TenantKey      string `json:"tenantKey"`
	TenantID       string `json:"tenantId,omitempty"`
	Name           string `json:"name"`
	Subdomain      string `json:"subdomain,omitempty"`
	ApplySchemaNow bool   `json:"applySchemaNow,omitempty"`
	IsTemplate     bool   `json:"isTemplate,omitempty"`
}

// UpdateRequest is the PATCH /tenants/{tenantKey} body. Absent fields keep
// their stored value.
type UpdateRequest struct {
	Name      *string `json:"name,omitempty"`
	Subdomain *string `json:"subdomain,omitempty"`
	Active    *bool   `json:"active,omitempty"`
}

// Handler wires the tenants service to the admin HTTP API.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Mount registers the tenant routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/tenants", h.list)
	r.Post("/tenants", h.create)
	r.Get("/tenants/{tenantKey}", h.get)
	r.Patch("/tenants/{tenantKey}", h.update)
	r.Delete("/tenants/{tenantKey}", h.delete)
	r.Post("/tenants/{tenantKey}/schema", h.applySchema)
	r.Get("/tenants/{tenantID}/datasource", h.datasource)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, r, err, http.StatusInternalServerError)
		return
	}

	items := make([]Tenant, 0, len(tenants))
	for _, t := range tenants {
		items = append(items, toAPITenant(t))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeProblem(w, "Invalid request body", err.Error(), problemTypeValidation, http.StatusBadRequest)
		return
	}

	t, err := h.svc.Create(r.Context(), service.CreateInput{
		TenantKey:      req.TenantKey,
		TenantID:       req.TenantID,
		Name:           req.Name,
		Subdomain:      req.Subdomain,
		ApplySchemaNow: req.ApplySchemaNow,
		IsTemplate:     req.IsTemplate,
	})
	if err != nil {
		h.writeError(w, r, err, http.StatusInternalServerError)
		return
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())
	logging.FromRequest(r, h.logger).Info("tenant created",
		zap.String("tenant_key", t.TenantKey),
		zap.String("actor", string(audit.ActorKind)))

	w.Header().Set("Location", fmt.Sprintf("/api/v1/tenants/%s", t.TenantKey))
	writeJSON(w, http.StatusCreated, toAPITenant(t))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Get(r.Context(), chi.URLParam(r, "tenantKey"))
	if err != nil {
		h.writeError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toAPITenant(t))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeProblem(w, "Invalid request body", err.Error(), problemTypeValidation, http.StatusBadRequest)
		return
	}

	current, err := h.svc.Get(r.Context(), chi.URLParam(r, "tenantKey"))
	if err != nil {
		h.writeError(w, r, err, http.StatusNotFound)
		return
	}
	if req.Name != nil {
		current.Name = *req.Name
	}
	if req.Subdomain != nil {
		current.Subdomain = *req.Subdomain
	}
	if req.Active != nil {
		current.Active = *req.Active
	}

	t, err := h.svc.Update(r.Context(), current)
	if err != nil {
		h.writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toAPITenant(t))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	tenantKey := chi.URLParam(r, "tenantKey")
	if err := h.svc.Delete(r.Context(), tenantKey); err != nil {
		h.writeError(w, r, err, http.StatusInternalServerError)
		return
	}

	audit := requesttrace.FromContextOrAnonymous(r.Context())
	logging.FromRequest(r, h.logger).Info("tenant deleted",
		zap.String("tenant_key", tenantKey),
		zap.String("actor", string(audit.ActorKind)))

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) applySchema(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ApplySchema(r.Context(), chi.URLParam(r, "tenantKey")); err != nil {
		h.writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// datasource serves the per-tenant database coordinates consumed by tenant
// application instances at boot. Looked up by runtime tenant id, not key.
func (h *Handler) datasource(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.Datasource(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.writeError(w, r, err, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error, defaultStatus int) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		h.writeProblem(w, "Not found", err.Error(), problemTypeNotFound, http.StatusNotFound)
	case errors.Is(err, service.ErrConflict):
		h.writeProblem(w, "Conflict", err.Error(), problemTypeConflict, http.StatusConflict)
	case errors.Is(err, service.ErrInvalidKey):
		h.writeProblem(w, "Invalid tenant key", err.Error(), problemTypeValidation, http.StatusBadRequest)
	default:
		logging.FromRequest(r, h.logger).Error("tenant operation failed", zap.Error(err))
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		}
		h.writeProblem(w, "Internal error", "internal error", problemTypeInternal, defaultStatus)
	}
}

func (h *Handler) writeProblem(w http.ResponseWriter, title, detail, problemType string, status int) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetails{
		Type:   problemType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func toAPITenant(t service.Tenant) Tenant {
	return Tenant{
		TenantKey:  t.TenantKey,
		TenantID:   t.TenantID,
		Name:       t.Name,
		Subdomain:  t.Subdomain,
		RealmName:  t.RealmName,
		ClientID:   t.ClientID,
		Active:     t.Active,
		IsTemplate: t.IsTemplate,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}
