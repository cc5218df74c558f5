package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"landledger/internal/domain"
	dErrors "landledger/pkg/domain-errors"
	"landledger/pkg/platform/httputil"
	"landledger/pkg/requestcontext"
)

// AdminService covers the operational surface reserved for admin identities.
type AdminService interface {
	Scopes() []string
	ReloadNetworks(ctx context.Context, path string) error
}

// AdminHandler serves routing table inspection and reload.
type AdminHandler struct {
	service      AdminService
	networksPath string
	logger       *slog.Logger
}

// NewAdmin constructs the admin handler. networksPath is the table the server
// was started with; reload requests may override it.
func NewAdmin(service AdminService, networksPath string, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: service, networksPath: networksPath, logger: logger}
}

// Register mounts admin endpoints on the router.
func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/admin", func(ar chi.Router) {
		ar.Get("/networks", h.HandleListNetworks)
		ar.Post("/networks/reload", h.HandleReloadNetworks)
	})
}

// HandleListNetworks handles GET /admin/networks requests.
func (h *AdminHandler) HandleListNetworks(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, networksResponse{Scopes: h.service.Scopes()})
}

// HandleReloadNetworks handles POST /admin/networks/reload requests.
func (h *AdminHandler) HandleReloadNetworks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.requireAdmin(w, r) {
		return
	}

	path := h.networksPath
	if r.ContentLength > 0 {
		req, ok := httputil.Decode[ReloadNetworksRequest](w, r)
		if !ok {
			return
		}
		if err := req.Validate(); err != nil {
			httputil.WriteError(w, err)
			return
		}
		if req.Path != "" {
			path = req.Path
		}
	}
	if path == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "no network profiles path configured"))
		return
	}

	if err := h.service.ReloadNetworks(ctx, path); err != nil {
		h.logger.ErrorContext(ctx, "network table reload failed",
			"request_id", requestcontext.RequestID(ctx),
			"path", path,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "network table reloaded",
		"request_id", requestcontext.RequestID(ctx),
		"path", path,
	)
	httputil.WriteJSON(w, http.StatusOK, reloadResponse{Status: "reloaded", Scopes: h.service.Scopes()})
}

func (h *AdminHandler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	identity := requestcontext.Identity(r.Context())
	if identity.Role != domain.RoleAdmin {
		h.logger.WarnContext(r.Context(), "admin endpoint denied",
			"request_id", requestcontext.RequestID(r.Context()),
			"actor", identity.Name,
			"role", identity.Role,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeChannelAccess, "admin role required"))
		return false
	}
	return true
}
