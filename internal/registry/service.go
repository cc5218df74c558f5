// Package registry orchestrates the dual-store workflow: the ledger is the
// system of record for ownership, the relational index is a disposable read
// accelerator. Writes go to the ledger first and are mirrored asynchronously;
// reads prefer the index and verify against the ledger before the result is
// presented as authoritative.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"landledger/internal/audit"
	"landledger/internal/audit/publisher"
	"landledger/internal/domain"
	"landledger/internal/index"
	"landledger/internal/index/cache"
	"landledger/internal/ledger"
	"landledger/internal/network"
	"landledger/internal/platform/metrics"
	"landledger/internal/registry/outbox"
	dErrors "landledger/pkg/domain-errors"
	"landledger/pkg/platform/circuit"
	"landledger/pkg/requestcontext"
)

// CreateRequest carries the attributes of a new land record. PropertyID is
// normally empty and assigned by the ledger; federation import flows may pin
// an explicit id.
type CreateRequest struct {
	Scope       string
	PropertyID  string
	Owner       string
	SurveyNo    string
	District    string
	Mandal      string
	Village     string
	Area        string
	LandType    string
	MarketValue string
	DocumentRef string
}

// TransferRequest updates ownership attributes of an existing record. Empty
// fields keep their current ledger value.
type TransferRequest struct {
	Scope       string
	PropertyID  string
	NewOwner    string
	MarketValue string
}

// ReadOptions controls the read path. Verify defaults to true at the
// transport layer; turning it off returns the index copy without a ledger
// round trip.
type ReadOptions struct {
	Scope          string
	Verify         bool
	IncludeHistory bool
}

// SearchOptions controls per-row ledger verification on index searches.
type SearchOptions struct {
	Scope  string
	Verify bool
}

// HealthStatus reports per-store reachability.
type HealthStatus struct {
	Ledger string `json:"ledger"`
	Index  string `json:"index"`
}

// Option configures a Service.
type Option func(*Service)

func WithCache(c *cache.VerificationCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithAudit(pub *publisher.Publisher) Option {
	return func(s *Service) { s.audit = pub }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithIndexBreaker guards index calls with a circuit breaker so a dead
// database fails fast instead of stalling every read.
func WithIndexBreaker(b *circuit.Breaker) Option {
	return func(s *Service) { s.breaker = b }
}

// WithIndexTimeout caps every index round trip. Zero disables the cap.
func WithIndexTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.indexTimeout = d
		}
	}
}

// WithVerifyConcurrency bounds parallel per-row search verification.
func WithVerifyConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.verifyLimit = n
		}
	}
}

// Service is the retrieval and consistency orchestrator.
type Service struct {
	pool   *ledger.Pool
	router *network.Router
	store  index.Store
	mirror *outbox.Worker

	cache   *cache.VerificationCache
	breaker *circuit.Breaker
	audit   *publisher.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer

	verifyLimit  int
	indexTimeout time.Duration
}

func NewService(pool *ledger.Pool, router *network.Router, store index.Store, mirror *outbox.Worker, opts ...Option) *Service {
	s := &Service{
		pool:        pool,
		router:      router,
		store:       store,
		mirror:      mirror,
		logger:      slog.Default(),
		tracer:      otel.Tracer("landledger/registry"),
		verifyLimit: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new land record. The ledger commit is authoritative and
// returns immediately; the index insert happens through the mirror worker.
func (s *Service) Create(ctx context.Context, req CreateRequest) (domain.LandRecord, error) {
	ctx, span := s.startSpan(ctx, "registry.Create", req.PropertyID)
	defer span.End()
	defer s.observe("create", time.Now())

	if err := validateCreate(req); err != nil {
		return domain.LandRecord{}, err
	}

	sess, profile, err := s.session(ctx, req.Scope)
	if err != nil {
		return domain.LandRecord{}, err
	}

	args := []string{
		req.Owner, req.SurveyNo, req.District, req.Mandal, req.Village,
		req.Area, req.LandType, req.MarketValue, req.DocumentRef,
	}
	if req.PropertyID != "" {
		args = append(args, req.PropertyID)
	}

	res, err := sess.Submit(ctx, ledger.OpCreateRecord, args...)
	s.countSubmit(ledger.OpCreateRecord, err)
	if err != nil {
		return domain.LandRecord{}, submitError(ledger.OpCreateRecord, err)
	}

	var record domain.LandRecord
	if err := json.Unmarshal(res.Payload, &record); err != nil {
		return domain.LandRecord{}, dErrors.Wrap(dErrors.CodeInternal, "decode committed record", err)
	}

	s.enqueueMirror(ctx, outbox.Task{Kind: outbox.KindCreate, Record: record, BlockNumber: res.BlockNumber})
	s.cache.Invalidate(ctx, record.PropertyID)
	s.emitAudit(ctx, audit.ActionPropertyRegistered, record.PropertyID, profile, res, "")
	return record, nil
}

// Transfer changes ownership on the ledger and mirrors the committed state.
// The write is never retried: a duplicate transfer is a second legal transfer.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (domain.LandRecord, error) {
	ctx, span := s.startSpan(ctx, "registry.Transfer", req.PropertyID)
	defer span.End()
	defer s.observe("transfer", time.Now())

	if req.PropertyID == "" {
		return domain.LandRecord{}, dErrors.New(dErrors.CodeBadRequest, "propertyId is required")
	}
	if req.NewOwner == "" && req.MarketValue == "" {
		return domain.LandRecord{}, dErrors.New(dErrors.CodeBadRequest, "nothing to update")
	}

	sess, profile, err := s.session(ctx, req.Scope)
	if err != nil {
		return domain.LandRecord{}, err
	}

	res, err := sess.Submit(ctx, ledger.OpUpdateRecord, req.PropertyID, req.NewOwner, req.MarketValue)
	s.countSubmit(ledger.OpUpdateRecord, err)
	if err != nil {
		return domain.LandRecord{}, submitError(ledger.OpUpdateRecord, err)
	}

	var record domain.LandRecord
	if err := json.Unmarshal(res.Payload, &record); err != nil {
		return domain.LandRecord{}, dErrors.Wrap(dErrors.CodeInternal, "decode committed record", err)
	}

	s.enqueueMirror(ctx, outbox.Task{Kind: outbox.KindUpdate, Record: record, BlockNumber: res.BlockNumber})
	s.cache.Invalidate(ctx, record.PropertyID)
	s.emitAudit(ctx, audit.ActionOwnershipTransferred, record.PropertyID, profile, res, "new owner "+req.NewOwner)
	return record, nil
}

// Delete writes a tombstone to the ledger and purges the index row.
func (s *Service) Delete(ctx context.Context, scope, propertyID string) error {
	ctx, span := s.startSpan(ctx, "registry.Delete", propertyID)
	defer span.End()
	defer s.observe("delete", time.Now())

	if propertyID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "propertyId is required")
	}

	sess, profile, err := s.session(ctx, scope)
	if err != nil {
		return err
	}

	res, err := sess.Submit(ctx, ledger.OpDeleteRecord, propertyID)
	s.countSubmit(ledger.OpDeleteRecord, err)
	if err != nil {
		return submitError(ledger.OpDeleteRecord, err)
	}

	s.enqueueMirror(ctx, outbox.Task{
		Kind:        outbox.KindDelete,
		Record:      domain.LandRecord{PropertyID: propertyID},
		BlockNumber: res.BlockNumber,
	})
	s.cache.Invalidate(ctx, propertyID)
	s.emitAudit(ctx, audit.ActionPropertyDeleted, propertyID, profile, res, "")
	return nil
}

// LinkDocument anchors a document hash on the ledger and mirrors the metadata
// into the index for listing.
func (s *Service) LinkDocument(ctx context.Context, scope string, doc domain.DocumentMeta) (domain.LandRecord, error) {
	ctx, span := s.startSpan(ctx, "registry.LinkDocument", doc.PropertyID)
	defer span.End()
	defer s.observe("link_document", time.Now())

	if doc.PropertyID == "" || doc.DocumentHash == "" || doc.DocumentType == "" {
		return domain.LandRecord{}, dErrors.New(dErrors.CodeBadRequest, "propertyId, documentHash and documentType are required")
	}

	sess, profile, err := s.session(ctx, scope)
	if err != nil {
		return domain.LandRecord{}, err
	}

	res, err := sess.Submit(ctx, ledger.OpLinkDocument, doc.PropertyID, doc.DocumentHash, doc.DocumentType)
	s.countSubmit(ledger.OpLinkDocument, err)
	if err != nil {
		return domain.LandRecord{}, submitError(ledger.OpLinkDocument, err)
	}

	var record domain.LandRecord
	if err := json.Unmarshal(res.Payload, &record); err != nil {
		return domain.LandRecord{}, dErrors.Wrap(dErrors.CodeInternal, "decode committed record", err)
	}

	doc.UploadedAt = requestcontext.Now(ctx)
	doc.VerifiedOnChain = true
	if err := s.indexCall(ctx, func(ctx context.Context) error { return s.store.SaveDocument(ctx, doc) }); err != nil {
		// The hash is anchored on chain; metadata listing catches up on the
		// next link or an operator backfill.
		s.logger.WarnContext(ctx, "document metadata not mirrored",
			"property_id", doc.PropertyID, "error", err)
	}

	s.enqueueMirror(ctx, outbox.Task{Kind: outbox.KindUpdate, Record: record, BlockNumber: res.BlockNumber})
	s.cache.Invalidate(ctx, record.PropertyID)
	s.emitAudit(ctx, audit.ActionDocumentLinked, doc.PropertyID, profile, res, doc.DocumentType)
	return record, nil
}

// Read returns the merged view of one property. The index row is the fast
// path; with Verify set the ledger copy is fetched and wins attribute by
// attribute.
func (s *Service) Read(ctx context.Context, propertyID string, opts ReadOptions) (domain.MergedView, error) {
	ctx, span := s.startSpan(ctx, "registry.Read", propertyID)
	defer span.End()
	defer s.observe("read", time.Now())

	if propertyID == "" {
		return domain.MergedView{}, dErrors.New(dErrors.CodeBadRequest, "propertyId is required")
	}

	var row *domain.IndexRow
	indexErr := s.indexCall(ctx, func(ctx context.Context) error {
		r, err := s.store.GetByKey(ctx, propertyID)
		if err != nil {
			return err
		}
		row = &r
		return nil
	})
	if indexErr != nil && !errors.Is(indexErr, index.ErrNotFound) {
		if s.metrics != nil {
			s.metrics.IndexFallbacks.Inc()
		}
		s.logger.WarnContext(ctx, "index unavailable, serving ledger only",
			"property_id", propertyID, "error", indexErr)
	}

	if !opts.Verify && row != nil {
		view := mergeViews(nil, row)
		return s.attachHistory(ctx, view, propertyID, opts)
	}

	// Trust a recent verification of the exact same committed transaction.
	if opts.Verify && row != nil && !opts.IncludeHistory {
		if txID := s.cache.Get(ctx, propertyID); txID != "" && txID == row.TransactionID {
			view := mergeViews(nil, row)
			view.IsBlockchainVerified = true
			view.VerificationStatus = domain.VerificationVerified
			return view, nil
		}
	}

	sess, _, err := s.session(ctx, opts.Scope)
	if err != nil {
		if row != nil {
			// Channel resolution failed but the index can still answer,
			// clearly marked unverified.
			return mergeViews(nil, row), nil
		}
		return domain.MergedView{}, err
	}

	payload, err := sess.Evaluate(ctx, ledger.OpReadRecord, propertyID)
	s.countEvaluate(ledger.OpReadRecord, err)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			if row == nil {
				return domain.MergedView{}, dErrors.Newf(dErrors.CodeNotFound, "property %s not found", propertyID)
			}
			// The index holds a row the ledger does not know. Surface the
			// divergence and flag the row for reconciliation.
			s.flagMismatch(ctx, propertyID)
			view := mergeViews(nil, row)
			view.VerificationStatus = domain.VerificationFailed
			return view, nil
		case row != nil:
			s.logger.WarnContext(ctx, "ledger verification unavailable, serving index copy",
				"property_id", propertyID, "error", err)
			return mergeViews(nil, row), nil
		default:
			return domain.MergedView{}, evaluateError(ledger.OpReadRecord, err)
		}
	}

	var ledgerRec domain.LandRecord
	if err := json.Unmarshal(payload, &ledgerRec); err != nil {
		return domain.MergedView{}, dErrors.Wrap(dErrors.CodeInternal, "decode ledger record", err)
	}

	view := mergeViews(&ledgerRec, row)
	s.recordVerification(ctx, propertyID, ledgerRec.TransactionID, view.VerificationStatus)
	return s.attachHistory(ctx, view, propertyID, opts)
}

// SearchByAttributes answers structured queries from the index, optionally
// confirming each row against the ledger in parallel. A row that fails
// verification keeps its data and loses its badge; it never hides the row.
func (s *Service) SearchByAttributes(ctx context.Context, f index.Filter, opts SearchOptions) ([]domain.MergedView, error) {
	ctx, span := s.startSpan(ctx, "registry.SearchByAttributes", "")
	defer span.End()
	defer s.observe("search_attributes", time.Now())

	var rows []domain.IndexRow
	err := s.indexCall(ctx, func(ctx context.Context) error {
		r, err := s.store.QueryByAttributes(ctx, f)
		if err != nil {
			return err
		}
		rows = r
		return nil
	})
	if err != nil {
		return nil, indexError("search by attributes", err)
	}
	if len(rows) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "no records match the given criteria")
	}

	views := make([]domain.MergedView, len(rows))
	for i := range rows {
		views[i] = mergeViews(nil, &rows[i])
	}
	if opts.Verify {
		s.verifyViews(ctx, opts.Scope, views)
	}
	return views, nil
}

// SearchByText matches free text against location fields, index only.
func (s *Service) SearchByText(ctx context.Context, query string, limit int, opts SearchOptions) ([]domain.MergedView, error) {
	ctx, span := s.startSpan(ctx, "registry.SearchByText", "")
	defer span.End()
	defer s.observe("search_text", time.Now())

	if query == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "query is required")
	}

	var rows []domain.IndexRow
	err := s.indexCall(ctx, func(ctx context.Context) error {
		r, err := s.store.SearchByText(ctx, query, limit)
		if err != nil {
			return err
		}
		rows = r
		return nil
	})
	if err != nil {
		return nil, indexError("text search", err)
	}
	if len(rows) == 0 {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "no records match %q", query)
	}

	views := make([]domain.MergedView, len(rows))
	for i := range rows {
		views[i] = mergeViews(nil, &rows[i])
	}
	if opts.Verify {
		s.verifyViews(ctx, opts.Scope, views)
	}
	return views, nil
}

// FindBySurvey resolves the unique record for a survey number directly from
// the ledger, merged with the index copy when one exists.
func (s *Service) FindBySurvey(ctx context.Context, scope, district, mandal, village, surveyNo string) (domain.MergedView, error) {
	ctx, span := s.startSpan(ctx, "registry.FindBySurvey", "")
	defer span.End()
	defer s.observe("find_by_survey", time.Now())

	if district == "" || mandal == "" || village == "" || surveyNo == "" {
		return domain.MergedView{}, dErrors.New(dErrors.CodeBadRequest, "district, mandal, village and surveyNo are required")
	}

	sess, _, err := s.session(ctx, scope)
	if err != nil {
		return domain.MergedView{}, err
	}

	payload, err := sess.Evaluate(ctx, ledger.OpQueryBySurvey, district, mandal, village, surveyNo)
	s.countEvaluate(ledger.OpQueryBySurvey, err)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return domain.MergedView{}, dErrors.Newf(dErrors.CodeNotFound, "no record for survey %s in %s/%s/%s", surveyNo, district, mandal, village)
		}
		return domain.MergedView{}, evaluateError(ledger.OpQueryBySurvey, err)
	}

	var ledgerRec domain.LandRecord
	if err := json.Unmarshal(payload, &ledgerRec); err != nil {
		return domain.MergedView{}, dErrors.Wrap(dErrors.CodeInternal, "decode ledger record", err)
	}

	var row *domain.IndexRow
	_ = s.indexCall(ctx, func(ctx context.Context) error {
		r, err := s.store.GetByKey(ctx, ledgerRec.PropertyID)
		if err != nil {
			return err
		}
		row = &r
		return nil
	})

	view := mergeViews(&ledgerRec, row)
	s.recordVerification(ctx, ledgerRec.PropertyID, ledgerRec.TransactionID, view.VerificationStatus)
	return view, nil
}

// History returns the full commit trail of a property, ledger only.
func (s *Service) History(ctx context.Context, scope, propertyID string) ([]domain.HistoryEntry, error) {
	ctx, span := s.startSpan(ctx, "registry.History", propertyID)
	defer span.End()
	defer s.observe("history", time.Now())

	if propertyID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "propertyId is required")
	}

	sess, _, err := s.session(ctx, scope)
	if err != nil {
		return nil, err
	}

	payload, err := sess.Evaluate(ctx, ledger.OpGetHistory, propertyID)
	s.countEvaluate(ledger.OpGetHistory, err)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "no history for property %s", propertyID)
		}
		return nil, evaluateError(ledger.OpGetHistory, err)
	}

	var entries []domain.HistoryEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "decode history", err)
	}
	return entries, nil
}

// ListByOwner returns all ledger records held by an owner.
func (s *Service) ListByOwner(ctx context.Context, scope, owner string) ([]domain.LandRecord, error) {
	defer s.observe("list_by_owner", time.Now())
	if owner == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "owner is required")
	}
	return s.evaluateList(ctx, scope, ledger.OpQueryByOwner, owner)
}

// ListByDistrict returns all ledger records in a district.
func (s *Service) ListByDistrict(ctx context.Context, scope, district string) ([]domain.LandRecord, error) {
	defer s.observe("list_by_district", time.Now())
	if district == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "district is required")
	}
	return s.evaluateList(ctx, scope, ledger.OpQueryByDistrict, district)
}

// ListAll returns every record on the channel. Admin surface; large channels
// should prefer the index search.
func (s *Service) ListAll(ctx context.Context, scope string) ([]domain.LandRecord, error) {
	defer s.observe("list_all", time.Now())
	return s.evaluateList(ctx, scope, ledger.OpListAll)
}

// Documents lists document metadata linked to a property, newest first.
func (s *Service) Documents(ctx context.Context, propertyID string) ([]domain.DocumentMeta, error) {
	defer s.observe("documents", time.Now())
	if propertyID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "propertyId is required")
	}

	var docs []domain.DocumentMeta
	err := s.indexCall(ctx, func(ctx context.Context) error {
		d, err := s.store.DocumentsFor(ctx, propertyID)
		if err != nil {
			return err
		}
		docs = d
		return nil
	})
	if err != nil {
		return nil, indexError("list documents", err)
	}
	return docs, nil
}

// Health probes both stores. The ledger probe needs a caller identity to open
// a session; anonymous checks report the index only.
func (s *Service) Health(ctx context.Context, scope string) HealthStatus {
	status := HealthStatus{Ledger: "unknown", Index: "ok"}

	if err := s.store.Health(ctx); err != nil {
		status.Index = "unavailable"
	}

	identity := requestcontext.Identity(ctx)
	if identity.Name == "" {
		return status
	}
	sess, _, err := s.session(ctx, scope)
	if err != nil {
		status.Ledger = "unavailable"
		return status
	}
	if _, err := sess.Evaluate(ctx, ledger.OpListAll); err != nil {
		status.Ledger = "unavailable"
		return status
	}
	status.Ledger = "ok"
	return status
}

// Scopes lists the configured routing scopes.
func (s *Service) Scopes() []string { return s.router.Scopes() }

// ReloadNetworks re-reads the routing table from disk and swaps it in.
func (s *Service) ReloadNetworks(ctx context.Context, path string) error {
	table, err := network.LoadTable(path)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeBadRequest, "load network table", err)
	}
	if err := s.router.Reload(table); err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Emit(ctx, audit.Event{
			Action: audit.ActionConfigReloaded,
			Actor:  requestcontext.Identity(ctx).Name,
			Reason: path,
		})
	}
	return nil
}

// session resolves the channel for the caller's scope and organization and
// returns a pooled, identity-bound session.
func (s *Service) session(ctx context.Context, scope string) (*ledger.PooledSession, domain.NetworkProfile, error) {
	identity := requestcontext.Identity(ctx)
	if identity.Name == "" {
		return nil, domain.NetworkProfile{}, dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	if scope == "" {
		scope = s.router.HomeScope(identity)
	}

	profile, err := s.router.Resolve(scope, identity.Organization)
	if err != nil {
		return nil, domain.NetworkProfile{}, err
	}
	if err := s.router.Authorize(identity, profile); err != nil {
		if s.audit != nil {
			_ = s.audit.Emit(ctx, audit.Event{
				Action:       audit.ActionAccessDenied,
				Actor:        identity.Name,
				Organization: identity.Organization,
				Channel:      profile.ChannelName,
				Outcome:      "denied",
			})
		}
		return nil, domain.NetworkProfile{}, err
	}

	sess, err := s.pool.Get(ctx, identity, profile)
	if err != nil {
		return nil, domain.NetworkProfile{}, sessionError(err)
	}
	return sess, profile, nil
}

func (s *Service) evaluateList(ctx context.Context, scope, op string, args ...string) ([]domain.LandRecord, error) {
	sess, _, err := s.session(ctx, scope)
	if err != nil {
		return nil, err
	}

	payload, err := sess.Evaluate(ctx, op, args...)
	s.countEvaluate(op, err)
	if err != nil {
		return nil, evaluateError(op, err)
	}

	var records []domain.LandRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "decode ledger records", err)
	}
	return records, nil
}

// verifyViews confirms each view's content against the ledger, bounded
// concurrency. Verification faults degrade the badge, never the result.
func (s *Service) verifyViews(ctx context.Context, scope string, views []domain.MergedView) {
	sess, _, err := s.session(ctx, scope)
	if err != nil {
		s.logger.WarnContext(ctx, "search verification skipped", "error", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.verifyLimit)
	for i := range views {
		g.Go(func() error {
			view := &views[i]
			key := view.Record.PropertyID

			if txID := s.cache.Get(gctx, key); txID != "" && txID == view.Record.TransactionID {
				view.IsBlockchainVerified = true
				view.VerificationStatus = domain.VerificationVerified
				return nil
			}

			payload, err := sess.Evaluate(gctx, ledger.OpReadRecord, key)
			s.countEvaluate(ledger.OpReadRecord, err)
			if err != nil {
				if errors.Is(err, ledger.ErrNotFound) {
					s.flagMismatch(gctx, key)
					view.VerificationStatus = domain.VerificationFailed
				}
				return nil
			}
			var ledgerRec domain.LandRecord
			if err := json.Unmarshal(payload, &ledgerRec); err != nil {
				return nil
			}

			merged := mergeViews(&ledgerRec, &domain.IndexRow{
				LandRecord:         view.Record,
				VerificationStatus: view.VerificationStatus,
			})
			*view = merged
			s.recordVerification(gctx, key, ledgerRec.TransactionID, merged.VerificationStatus)
			return nil
		})
	}
	_ = g.Wait()
}

// recordVerification persists a read verification outcome on the index row
// and caches positive results.
func (s *Service) recordVerification(ctx context.Context, propertyID, txID string, status domain.VerificationStatus) {
	switch status {
	case domain.VerificationVerified:
		s.cache.Put(ctx, propertyID, txID)
	case domain.VerificationFailed:
		if s.metrics != nil {
			s.metrics.VerifyMismatches.Inc()
		}
	default:
		return
	}
	if err := s.indexCall(ctx, func(ctx context.Context) error { return s.store.SetVerification(ctx, propertyID, status) }); err != nil && !errors.Is(err, index.ErrNotFound) {
		s.logger.WarnContext(ctx, "verification status not persisted",
			"property_id", propertyID, "error", err)
	}
}

// flagMismatch marks an index row the ledger disowns. The divergence is
// classified as a verification mismatch in the log and the audit trail; the
// caller still serves the row, badged failed, instead of an error.
func (s *Service) flagMismatch(ctx context.Context, propertyID string) {
	mismatch := dErrors.Newf(dErrors.CodeVerificationMismatch,
		"index row %s has no ledger record", propertyID)
	s.logger.WarnContext(ctx, "verification mismatch", "property_id", propertyID, "error", mismatch)
	if s.metrics != nil {
		s.metrics.VerifyMismatches.Inc()
		s.metrics.ReconcileBacklog.Inc()
	}
	if err := s.indexCall(ctx, func(ctx context.Context) error {
		return s.store.SetVerification(ctx, propertyID, domain.VerificationFailed)
	}); err != nil && !errors.Is(err, index.ErrNotFound) {
		s.logger.WarnContext(ctx, "mismatched row not flagged", "property_id", propertyID, "error", err)
	}
	if s.audit != nil {
		_ = s.audit.Emit(ctx, audit.Event{
			Action:     audit.ActionVerifyMismatch,
			Actor:      requestcontext.Identity(ctx).Name,
			PropertyID: propertyID,
			Outcome:    string(dErrors.CodeVerificationMismatch),
			Reason:     mismatch.Error(),
		})
	}
}

func (s *Service) attachHistory(ctx context.Context, view domain.MergedView, propertyID string, opts ReadOptions) (domain.MergedView, error) {
	if !opts.IncludeHistory {
		return view, nil
	}
	entries, err := s.History(ctx, opts.Scope, propertyID)
	if err != nil {
		if dErrors.Is(err, dErrors.CodeNotFound) {
			return view, nil
		}
		s.logger.WarnContext(ctx, "history unavailable", "property_id", propertyID, "error", err)
		return view, nil
	}
	view.History = entries
	return view, nil
}

// indexCall routes an index operation through the circuit breaker and the
// configured timeout. Sentinel outcomes like not-found count as success; only
// outages and timeouts trip the breaker.
func (s *Service) indexCall(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.breaker != nil && !s.breaker.Allow() {
		return index.ErrUnavailable
	}
	if s.indexTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.indexTimeout)
		defer cancel()
	}
	err := fn(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", index.ErrUnavailable, err)
	}
	if s.breaker != nil {
		if errors.Is(err, index.ErrUnavailable) {
			s.breaker.RecordFailure()
		} else {
			s.breaker.RecordSuccess()
		}
	}
	return err
}

func (s *Service) enqueueMirror(ctx context.Context, task outbox.Task) {
	if s.mirror == nil {
		return
	}
	// The ledger write is committed; give the enqueue its own deadline so a
	// cancelled caller cannot lose the mirror task.
	enqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.mirror.Enqueue(enqCtx, task); err != nil {
		s.logger.ErrorContext(ctx, "mirror task not enqueued",
			"property_id", task.Record.PropertyID, "kind", task.Kind, "error", err)
	}
}

func (s *Service) emitAudit(ctx context.Context, action audit.Action, propertyID string, profile domain.NetworkProfile, res ledger.SubmitResult, reason string) {
	if s.audit == nil {
		return
	}
	identity := requestcontext.Identity(ctx)
	_ = s.audit.Emit(ctx, audit.Event{
		Action:        action,
		Actor:         identity.Name,
		Organization:  identity.Organization,
		PropertyID:    propertyID,
		Channel:       profile.ChannelName,
		TransactionID: res.TransactionID,
		BlockNumber:   res.BlockNumber,
		Outcome:       "committed",
		Reason:        reason,
	})
}

func (s *Service) startSpan(ctx context.Context, name, propertyID string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, name)
	if propertyID != "" {
		span.SetAttributes(attribute.String("landledger.property_id", propertyID))
	}
	return ctx, span
}

func (s *Service) observe(op string, start time.Time) {
	s.metrics.ObserveOperation(op, time.Since(start))
}

func (s *Service) countSubmit(op string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.LedgerSubmits.WithLabelValues(op, outcome(err)).Inc()
}

func (s *Service) countEvaluate(op string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.LedgerEvaluates.WithLabelValues(op, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func validateCreate(req CreateRequest) error {
	missing := func(name, v string) error {
		if v == "" {
			return dErrors.Newf(dErrors.CodeBadRequest, "%s is required", name)
		}
		return nil
	}
	for _, check := range []struct{ name, value string }{
		{"owner", req.Owner},
		{"surveyNo", req.SurveyNo},
		{"district", req.District},
		{"mandal", req.Mandal},
		{"village", req.Village},
		{"area", req.Area},
		{"landType", req.LandType},
		{"marketValue", req.MarketValue},
	} {
		if err := missing(check.name, check.value); err != nil {
			return err
		}
	}
	return nil
}

// submitError translates ledger submit sentinels into coded errors. The write
// already failed on chain; nothing was mirrored.
func submitError(op string, err error) error {
	switch {
	case errors.Is(err, ledger.ErrDuplicateKey):
		return dErrors.Wrap(dErrors.CodeConflict, "record already exists", err)
	case errors.Is(err, ledger.ErrNotFound):
		return dErrors.Wrap(dErrors.CodeNotFound, "record not found on ledger", err)
	case errors.Is(err, ledger.ErrConnection), errors.Is(err, ledger.ErrSessionClosed):
		return dErrors.Wrap(dErrors.CodeLedgerUnavailable, "ledger unreachable", err)
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(dErrors.CodeLedgerWrite, fmt.Sprintf("%s timed out awaiting commit", op), err)
	default:
		return dErrors.Wrap(dErrors.CodeLedgerWrite, fmt.Sprintf("%s failed", op), err)
	}
}

func evaluateError(op string, err error) error {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return dErrors.Wrap(dErrors.CodeNotFound, "record not found", err)
	case errors.Is(err, ledger.ErrConnection), errors.Is(err, ledger.ErrSessionClosed):
		return dErrors.Wrap(dErrors.CodeLedgerUnavailable, "ledger unreachable", err)
	default:
		return dErrors.Wrap(dErrors.CodeLedgerUnavailable, fmt.Sprintf("%s failed", op), err)
	}
}

func sessionError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrIdentityNotFound):
		return dErrors.Wrap(dErrors.CodeUnauthorized, "ledger identity not enrolled", err)
	default:
		return dErrors.Wrap(dErrors.CodeLedgerUnavailable, "ledger session unavailable", err)
	}
}

func indexError(op string, err error) error {
	switch {
	case errors.Is(err, index.ErrNotFound):
		return dErrors.Wrap(dErrors.CodeNotFound, op+": not found", err)
	default:
		return dErrors.Wrap(dErrors.CodeIndexUnavailable, op+" failed", err)
	}
}
