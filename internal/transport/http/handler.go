package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"landledger/internal/domain"
	"landledger/internal/index"
	"landledger/internal/registry"
	dErrors "landledger/pkg/domain-errors"
	"landledger/pkg/platform/httputil"
	"landledger/pkg/requestcontext"
)

// Service defines the registry operations the HTTP layer exposes.
type Service interface {
	Create(ctx context.Context, req registry.CreateRequest) (domain.LandRecord, error)
	Transfer(ctx context.Context, req registry.TransferRequest) (domain.LandRecord, error)
	Delete(ctx context.Context, scope, propertyID string) error
	LinkDocument(ctx context.Context, scope string, doc domain.DocumentMeta) (domain.LandRecord, error)
	Read(ctx context.Context, propertyID string, opts registry.ReadOptions) (domain.MergedView, error)
	SearchByAttributes(ctx context.Context, f index.Filter, opts registry.SearchOptions) ([]domain.MergedView, error)
	SearchByText(ctx context.Context, query string, limit int, opts registry.SearchOptions) ([]domain.MergedView, error)
	FindBySurvey(ctx context.Context, scope, district, mandal, village, surveyNo string) (domain.MergedView, error)
	History(ctx context.Context, scope, propertyID string) ([]domain.HistoryEntry, error)
	ListByOwner(ctx context.Context, scope, owner string) ([]domain.LandRecord, error)
	ListByDistrict(ctx context.Context, scope, district string) ([]domain.LandRecord, error)
	ListAll(ctx context.Context, scope string) ([]domain.LandRecord, error)
	Documents(ctx context.Context, propertyID string) ([]domain.DocumentMeta, error)
	Health(ctx context.Context, scope string) registry.HealthStatus
}

// Handler wires property endpoints to the registry service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a property handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts property endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/properties", h.HandleRegister)
	r.Get("/properties", h.HandleListAll)
	r.Route("/properties/{propertyID}", func(pr chi.Router) {
		pr.Get("/", h.HandleRead)
		pr.Delete("/", h.HandleDelete)
		pr.Post("/transfer", h.HandleTransfer)
		pr.Get("/history", h.HandleHistory)
		pr.Post("/documents", h.HandleLinkDocument)
		pr.Get("/documents", h.HandleDocuments)
	})
	r.Get("/search", h.HandleSearch)
	r.Get("/search/text", h.HandleTextSearch)
	r.Get("/survey", h.HandleFindBySurvey)
	r.Get("/owners/{owner}/properties", h.HandleListByOwner)
	r.Get("/districts/{district}/properties", h.HandleListByDistrict)
}

// HandleRegister handles POST /properties requests.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	req, ok := httputil.Decode[RegisterRequest](w, r)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.service.Create(ctx, req.ToDomain())
	if err != nil {
		h.logError(ctx, "property registration failed", err, "survey_no", req.SurveyNo)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "property registered",
		"request_id", requestcontext.RequestID(ctx),
		"property_id", record.PropertyID,
		"tx_id", record.TransactionID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, record)
}

// HandleTransfer handles POST /properties/{propertyID}/transfer requests.
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	propertyID := chi.URLParam(r, "propertyID")

	req, ok := httputil.Decode[TransferRequest](w, r)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.service.Transfer(ctx, registry.TransferRequest{
		Scope:       req.Scope,
		PropertyID:  propertyID,
		NewOwner:    req.NewOwner,
		MarketValue: req.MarketValue,
	})
	if err != nil {
		h.logError(ctx, "ownership transfer failed", err, "property_id", propertyID)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "ownership transferred",
		"request_id", requestcontext.RequestID(ctx),
		"property_id", record.PropertyID,
		"tx_id", record.TransactionID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HandleDelete handles DELETE /properties/{propertyID} requests.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	propertyID := chi.URLParam(r, "propertyID")

	if err := h.service.Delete(ctx, queryScope(r), propertyID); err != nil {
		h.logError(ctx, "property deletion failed", err, "property_id", propertyID)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRead handles GET /properties/{propertyID} requests. Verification is on
// unless ?verify=false; ?history=true attaches the commit trail.
func (h *Handler) HandleRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	propertyID := chi.URLParam(r, "propertyID")

	view, err := h.service.Read(ctx, propertyID, registry.ReadOptions{
		Scope:          queryScope(r),
		Verify:         boolParam(r, "verify", true),
		IncludeHistory: boolParam(r, "history", false),
	})
	if err != nil {
		h.logError(ctx, "property read failed", err, "property_id", propertyID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleSearch handles GET /search requests, structured attribute queries
// answered from the index.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := index.Filter{
		Owner:    q.Get("owner"),
		District: q.Get("district"),
		Mandal:   q.Get("mandal"),
		Village:  q.Get("village"),
		SurveyNo: q.Get("surveyNo"),
		LandType: q.Get("landType"),
		Limit:    intParam(r, "limit", 0),
		Offset:   intParam(r, "offset", 0),
	}
	var err error
	if filter.MinValue, err = floatParam(r, "minValue"); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if filter.MaxValue, err = floatParam(r, "maxValue"); err != nil {
		httputil.WriteError(w, err)
		return
	}

	views, err := h.service.SearchByAttributes(ctx, filter, registry.SearchOptions{
		Scope:  queryScope(r),
		Verify: boolParam(r, "verify", false),
	})
	if err != nil {
		h.logError(ctx, "attribute search failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, viewsResponse{Count: len(views), Results: views})
}

// HandleTextSearch handles GET /search/text requests.
func (h *Handler) HandleTextSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	views, err := h.service.SearchByText(ctx, r.URL.Query().Get("q"), intParam(r, "limit", 0), registry.SearchOptions{
		Scope:  queryScope(r),
		Verify: boolParam(r, "verify", false),
	})
	if err != nil {
		h.logError(ctx, "text search failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, viewsResponse{Count: len(views), Results: views})
}

// HandleFindBySurvey handles GET /survey requests, resolving the unique record
// for a survey number straight from the ledger.
func (h *Handler) HandleFindBySurvey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	view, err := h.service.FindBySurvey(ctx, queryScope(r),
		q.Get("district"), q.Get("mandal"), q.Get("village"), q.Get("surveyNo"))
	if err != nil {
		h.logError(ctx, "survey lookup failed", err, "survey_no", q.Get("surveyNo"))
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, view)
}

// HandleHistory handles GET /properties/{propertyID}/history requests.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	propertyID := chi.URLParam(r, "propertyID")

	entries, err := h.service.History(ctx, queryScope(r), propertyID)
	if err != nil {
		h.logError(ctx, "history lookup failed", err, "property_id", propertyID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, historyResponse{PropertyID: propertyID, Entries: entries})
}

// HandleLinkDocument handles POST /properties/{propertyID}/documents requests.
func (h *Handler) HandleLinkDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	propertyID := chi.URLParam(r, "propertyID")

	req, ok := httputil.Decode[LinkDocumentRequest](w, r)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.service.LinkDocument(ctx, req.Scope, req.ToDomain(propertyID))
	if err != nil {
		h.logError(ctx, "document link failed", err, "property_id", propertyID)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "document linked",
		"request_id", requestcontext.RequestID(ctx),
		"property_id", propertyID,
		"document_type", req.DocumentType,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, record)
}

// HandleDocuments handles GET /properties/{propertyID}/documents requests.
func (h *Handler) HandleDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	propertyID := chi.URLParam(r, "propertyID")

	docs, err := h.service.Documents(ctx, propertyID)
	if err != nil {
		h.logError(ctx, "document listing failed", err, "property_id", propertyID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, documentsResponse{
		PropertyID: propertyID,
		Count:      len(docs),
		Documents:  docs,
	})
}

// HandleListByOwner handles GET /owners/{owner}/properties requests.
func (h *Handler) HandleListByOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := chi.URLParam(r, "owner")

	records, err := h.service.ListByOwner(ctx, queryScope(r), owner)
	if err != nil {
		h.logError(ctx, "owner listing failed", err, "owner", owner)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, recordsResponse{Count: len(records), Records: records})
}

// HandleListByDistrict handles GET /districts/{district}/properties requests.
func (h *Handler) HandleListByDistrict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	district := chi.URLParam(r, "district")

	records, err := h.service.ListByDistrict(ctx, queryScope(r), district)
	if err != nil {
		h.logError(ctx, "district listing failed", err, "district", district)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, recordsResponse{Count: len(records), Records: records})
}

// HandleListAll handles GET /properties requests. Full channel scan; the
// search endpoints are the scalable path.
func (h *Handler) HandleListAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := h.service.ListAll(ctx, queryScope(r))
	if err != nil {
		h.logError(ctx, "full listing failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, recordsResponse{Count: len(records), Records: records})
}

// HandleHealth handles GET /health requests. Anonymous callers get the index
// probe only; a bearer token enables the ledger round trip.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := h.service.Health(r.Context(), queryScope(r))
	code := http.StatusOK
	if status.Index != "ok" || status.Ledger == "unavailable" {
		code = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, code, status)
}

func (h *Handler) logError(ctx context.Context, msg string, err error, args ...any) {
	args = append(args, "request_id", requestcontext.RequestID(ctx), "error", err)
	h.logger.ErrorContext(ctx, msg, args...)
}

func queryScope(r *http.Request) string {
	return r.URL.Query().Get("scope")
}

func boolParam(r *http.Request, name string, fallback bool) bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func intParam(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func floatParam(r *http.Request, name string) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0, dErrors.Newf(dErrors.CodeBadRequest, "%s must be a non-negative number", name)
	}
	return f, nil
}
