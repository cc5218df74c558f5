package registry

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landledger/internal/audit"
	"landledger/internal/audit/publisher"
	auditmem "landledger/internal/audit/store/memory"
	"landledger/internal/domain"
	"landledger/internal/index"
	indexmem "landledger/internal/index/memory"
	"landledger/internal/ledger"
	ledgermem "landledger/internal/ledger/memory"
	"landledger/internal/network"
	"landledger/internal/platform/metrics"
	"landledger/internal/registry/outbox"
	dErrors "landledger/pkg/domain-errors"
	"landledger/pkg/requestcontext"
	"landledger/pkg/testutil"
)

var registrar = domain.Identity{Name: "registrar1", Organization: "Telangana", Role: domain.RoleRegistrar}

type fixture struct {
	svc     *Service
	gateway *ledgermem.Gateway
	store   *blockableStore
	audit   *auditmem.Store
}

// blockableStore lets tests take the index offline.
type blockableStore struct {
	index.Store
	mu      sync.Mutex
	offline bool
}

func (b *blockableStore) setOffline(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offline = v
}

func (b *blockableStore) outage() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offline {
		return index.ErrUnavailable
	}
	return nil
}

func (b *blockableStore) GetByKey(ctx context.Context, id string) (domain.IndexRow, error) {
	if err := b.outage(); err != nil {
		return domain.IndexRow{}, err
	}
	return b.Store.GetByKey(ctx, id)
}

func (b *blockableStore) QueryByAttributes(ctx context.Context, f index.Filter) ([]domain.IndexRow, error) {
	if err := b.outage(); err != nil {
		return nil, err
	}
	return b.Store.QueryByAttributes(ctx, f)
}

func (b *blockableStore) SearchByText(ctx context.Context, q string, limit int) ([]domain.IndexRow, error) {
	if err := b.outage(); err != nil {
		return nil, err
	}
	return b.Store.SearchByText(ctx, q, limit)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gw := ledgermem.NewGateway()
	gw.RegisterIdentity(registrar)

	pool := ledger.NewPool(gw, ledger.PoolConfig{}, nil)
	t.Cleanup(func() { _ = pool.Close() })

	router, err := network.NewRouter(network.DefaultTable())
	require.NoError(t, err)

	store := &blockableStore{Store: indexmem.NewStore()}
	m := metrics.NewWith(prometheus.NewRegistry())

	auditStore := auditmem.NewStore()
	pub := publisher.NewPublisher(auditStore)
	t.Cleanup(pub.Close)

	worker := outbox.NewWorker(store, 32, slog.Default(), m,
		outbox.WithRetryInterval(time.Millisecond), outbox.WithRetryLimit(3))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	svc := NewService(pool, router, store, worker,
		WithMetrics(m), WithAudit(pub), WithLogger(slog.Default()))
	return &fixture{svc: svc, gateway: gw, store: store, audit: auditStore}
}

func callerCtx() context.Context {
	return requestcontext.WithIdentity(context.Background(), registrar)
}

func createReq() CreateRequest {
	return CreateRequest{
		Scope:       "TS",
		Owner:       "Ravi Kumar",
		SurveyNo:    "123/A",
		District:    "Medchal",
		Mandal:      "Ghatkesar",
		Village:     "Ankushapur",
		Area:        "2.5 acres",
		LandType:    "agricultural",
		MarketValue: "4500000",
	}
}

func waitMirrored(t *testing.T, f *fixture, propertyID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, err := f.store.GetByKey(context.Background(), propertyID)
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCreateCommitsLedgerFirstThenMirrors(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()

	rec, err := f.svc.Create(ctx, createReq())
	require.NoError(t, err)

	testutil.Then(t, "the ledger result is immediate and complete", func(t *testing.T) {
		assert.Equal(t, "PROP-001", rec.PropertyID)
		assert.NotEmpty(t, rec.TransactionID)
		assert.NotZero(t, rec.BlockNumber)
	})

	testutil.Then(t, "the index catches up asynchronously", func(t *testing.T) {
		waitMirrored(t, f, rec.PropertyID)
		row, err := f.store.GetByKey(ctx, rec.PropertyID)
		require.NoError(t, err)
		assert.Equal(t, "Ravi Kumar", row.Owner)
		assert.Equal(t, rec.BlockNumber, row.BlockNumber)
	})
}

func TestCreateDuplicateIsConflictAndLeavesNoIndexRow(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()

	req := createReq()
	req.PropertyID = "PROP-777"
	_, err := f.svc.Create(ctx, req)
	require.NoError(t, err)
	waitMirrored(t, f, "PROP-777")

	dup := createReq()
	dup.PropertyID = "PROP-777"
	dup.Owner = "Impostor"
	_, err = f.svc.Create(ctx, dup)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeConflict))

	row, err := f.store.GetByKey(ctx, "PROP-777")
	require.NoError(t, err)
	assert.Equal(t, "Ravi Kumar", row.Owner, "failed create must not touch the index")
}

func TestConcurrentCreateSamePropertyOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()

	const attempts = 6
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := createReq()
			req.PropertyID = "PROP-500"
			_, err := f.svc.Create(ctx, req)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			wins++
		case dErrors.Is(err, dErrors.CodeConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, attempts-1, conflicts)
}

func TestTransferLedgerWinsOverLaggingIndex(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()

	rec, err := f.svc.Create(ctx, createReq())
	require.NoError(t, err)
	waitMirrored(t, f, rec.PropertyID)

	_, err = f.svc.Transfer(ctx, TransferRequest{
		Scope: "TS", PropertyID: rec.PropertyID, NewOwner: "Sita Devi",
	})
	require.NoError(t, err)

	// Read straight away: even if the mirror has not applied the transfer
	// yet, the verified view must show the new owner.
	view, err := f.svc.Read(ctx, rec.PropertyID, ReadOptions{Scope: "TS", Verify: true})
	require.NoError(t, err)
	assert.Equal(t, "Sita Devi", view.Record.Owner)
	assert.True(t, view.IsBlockchainVerified)
}

func TestReadFallsBackToLedgerWhenIndexDown(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()

	rec, err := f.svc.Create(ctx, createReq())
	require.NoError(t, err)

	f.store.setOffline(true)
	defer f.store.setOffline(false)

	view, err := f.svc.Read(ctx, rec.PropertyID, ReadOptions{Scope: "TS", Verify: true})
	require.NoError(t, err)
	assert.Equal(t, "Ravi Kumar", view.Record.Owner)
	assert.True(t, view.IsBlockchainVerified)
	assert.Equal(t, domain.OffchainAbsent, view.Offchain)
}

func TestReadOrphanIndexRowIsFlaggedFailed(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()

	// A row the ledger never committed, as after a botched reconciliation.
	orphan := domain.LandRecord{
		PropertyID: "PROP-666", Owner: "Ghost", SurveyNo: "1/Z",
		District: "Medchal", Mandal: "Ghatkesar", Village: "Ankushapur",
	}
	require.NoError(t, f.store.Insert(ctx, orphan, 1))
	// Open the channel so the ledger read is a clean not-found.
	_, err := f.svc.Create(ctx, createReq())
	require.NoError(t, err)

	view, err := f.svc.Read(ctx, "PROP-666", ReadOptions{Scope: "TS", Verify: true})
	require.NoError(t, err)
	assert.False(t, view.IsBlockchainVerified)
	assert.Equal(t, domain.VerificationFailed, view.VerificationStatus)

	row, err := f.store.GetByKey(ctx, "PROP-666")
	require.NoError(t, err)
	assert.Equal(t, domain.VerificationFailed, row.VerificationStatus,
		"orphan row flagged for reconciliation")

	// The divergence is classified as a verification mismatch on the trail.
	events, err := f.audit.ListByProperty(ctx, "PROP-666")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionVerifyMismatch, events[0].Action)
	assert.Equal(t, string(dErrors.CodeVerificationMismatch), events[0].Outcome)
}

func TestReadUnverifiedServesIndexCopy(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()

	rec, err := f.svc.Create(ctx, createReq())
	require.NoError(t, err)
	waitMirrored(t, f, rec.PropertyID)

	view, err := f.svc.Read(ctx, rec.PropertyID, ReadOptions{Scope: "TS", Verify: false})
	require.NoError(t, err)
	assert.False(t, view.IsBlockchainVerified)
	assert.Equal(t, domain.OffchainAvailable, view.Offchain)
}

func TestReadMissingEverywhereIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()
	_, err := f.svc.Create(ctx, createReq())
	require.NoError(t, err)

	_, err = f.svc.Read(ctx, "PROP-404", ReadOptions{Scope: "TS", Verify: true})
	assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))
}

func TestHistoryOrderedByCommitSequence(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()

	rec, err := f.svc.Create(ctx, createReq())
	require.NoError(t, err)
	_, err = f.svc.Transfer(ctx, TransferRequest{Scope: "TS", PropertyID: rec.PropertyID, NewOwner: "Sita Devi"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, "TS", rec.PropertyID))

	entries, err := f.svc.History(ctx, "TS", rec.PropertyID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.False(t, entries[0].IsDelete)
	assert.False(t, entries[1].IsDelete)
	assert.True(t, entries[2].IsDelete)
	assert.Equal(t, "Sita Devi", entries[1].Record.Owner)
	assert.Nil(t, entries[2].Record)
}

func TestReadIncludeHistoryAttachesEntries(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()

	rec, err := f.svc.Create(ctx, createReq())
	require.NoError(t, err)
	_, err = f.svc.Transfer(ctx, TransferRequest{Scope: "TS", PropertyID: rec.PropertyID, NewOwner: "Sita Devi"})
	require.NoError(t, err)

	view, err := f.svc.Read(ctx, rec.PropertyID, ReadOptions{Scope: "TS", Verify: true, IncludeHistory: true})
	require.NoError(t, err)
	require.Len(t, view.History, 2)
	assert.Equal(t, "Sita Devi", view.Record.Owner)
}

func TestSearchByAttributesWithVerification(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()

	rec, err := f.svc.Create(ctx, createReq())
	require.NoError(t, err)
	waitMirrored(t, f, rec.PropertyID)

	views, err := f.svc.SearchByAttributes(ctx, index.Filter{Owner: "Ravi Kumar"}, SearchOptions{Scope: "TS", Verify: true})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].IsBlockchainVerified)
	assert.Equal(t, domain.VerificationVerified, views[0].VerificationStatus)
}

func TestSearchVerificationFailureOnlyClearsBadge(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()

	_, err := f.svc.Create(ctx, createReq())
	require.NoError(t, err)

	orphan := domain.LandRecord{
		PropertyID: "PROP-666", Owner: "Ghost", SurveyNo: "9/Z",
		District: "Medchal", Mandal: "Ghatkesar", Village: "Ankushapur",
	}
	require.NoError(t, f.store.Insert(ctx, orphan, 1))

	views, err := f.svc.SearchByAttributes(ctx, index.Filter{Owner: "Ghost"}, SearchOptions{Scope: "TS", Verify: true})
	require.NoError(t, err)
	require.Len(t, views, 1, "unverifiable rows are still returned")
	assert.False(t, views[0].IsBlockchainVerified)
	assert.Equal(t, domain.VerificationFailed, views[0].VerificationStatus)
}

func TestSearchEmptyIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()

	_, err := f.svc.SearchByAttributes(ctx, index.Filter{Owner: "Nobody"}, SearchOptions{})
	assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))

	_, err = f.svc.SearchByText(ctx, "atlantis", 10, SearchOptions{})
	assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))
}

func TestSearchByTextIndexDownIsUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()

	f.store.setOffline(true)
	defer f.store.setOffline(false)

	_, err := f.svc.SearchByText(ctx, "medchal", 10, SearchOptions{})
	assert.True(t, dErrors.Is(err, dErrors.CodeIndexUnavailable))
}

func TestFindBySurvey(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()

	rec, err := f.svc.Create(ctx, createReq())
	require.NoError(t, err)
	waitMirrored(t, f, rec.PropertyID)

	view, err := f.svc.FindBySurvey(ctx, "TS", "Medchal", "Ghatkesar", "Ankushapur", "123/A")
	require.NoError(t, err)
	assert.Equal(t, rec.PropertyID, view.Record.PropertyID)
	assert.True(t, view.IsBlockchainVerified)

	_, err = f.svc.FindBySurvey(ctx, "TS", "Medchal", "Ghatkesar", "Ankushapur", "999/Z")
	assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))
}

func TestListByOwnerAndDistrict(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()

	_, err := f.svc.Create(ctx, createReq())
	require.NoError(t, err)
	second := createReq()
	second.SurveyNo = "124/B"
	second.Owner = "Sita Devi"
	_, err = f.svc.Create(ctx, second)
	require.NoError(t, err)

	byOwner, err := f.svc.ListByOwner(ctx, "TS", "Ravi Kumar")
	require.NoError(t, err)
	assert.Len(t, byOwner, 1)

	byDistrict, err := f.svc.ListByDistrict(ctx, "TS", "Medchal")
	require.NoError(t, err)
	assert.Len(t, byDistrict, 2)

	all, err := f.svc.ListAll(ctx, "TS")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDeleteMirrorsTombstone(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()

	rec, err := f.svc.Create(ctx, createReq())
	require.NoError(t, err)
	waitMirrored(t, f, rec.PropertyID)

	require.NoError(t, f.svc.Delete(ctx, "TS", rec.PropertyID))

	require.Eventually(t, func() bool {
		_, err := f.store.GetByKey(ctx, rec.PropertyID)
		return err != nil
	}, 2*time.Second, 5*time.Millisecond)

	_, err = f.svc.Read(ctx, rec.PropertyID, ReadOptions{Scope: "TS", Verify: true})
	assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))
}

func TestLinkDocumentAnchorsAndLists(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()

	rec, err := f.svc.Create(ctx, createReq())
	require.NoError(t, err)
	waitMirrored(t, f, rec.PropertyID)

	hash := "a3f5b8c2d1e4f67890abcdef12345678deadbeefcafe0123"
	updated, err := f.svc.LinkDocument(ctx, "TS", domain.DocumentMeta{
		PropertyID:   rec.PropertyID,
		DocumentHash: hash,
		DocumentType: "sale_deed",
	})
	require.NoError(t, err)
	assert.Equal(t, hash, updated.DocumentRef)

	docs, err := f.svc.Documents(ctx, rec.PropertyID)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.True(t, docs[0].VerifiedOnChain)

	t.Run("short hash rejected by the contract", func(t *testing.T) {
		_, err := f.svc.LinkDocument(ctx, "TS", domain.DocumentMeta{
			PropertyID:   rec.PropertyID,
			DocumentHash: "short",
			DocumentType: "sale_deed",
		})
		require.Error(t, err)
	})
}

func TestUnauthorizedScopeIsDenied(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()

	// Telangana registrar must not write on Karnataka's channel.
	req := createReq()
	req.Scope = "KA"
	_, err := f.svc.Create(ctx, req)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeChannelAccess))
}

func TestAnonymousCallerIsUnauthorized(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), createReq())
	assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))
}

func TestValidationRejectedBeforeAnyIO(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()

	req := createReq()
	req.Owner = ""
	_, err := f.svc.Create(ctx, req)
	assert.True(t, dErrors.Is(err, dErrors.CodeBadRequest))

	_, err = f.svc.Transfer(ctx, TransferRequest{Scope: "TS", PropertyID: "PROP-001"})
	assert.True(t, dErrors.Is(err, dErrors.CodeBadRequest))
}

func TestAuditTrailRecordsMutations(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()

	rec, err := f.svc.Create(ctx, createReq())
	require.NoError(t, err)
	_, err = f.svc.Transfer(ctx, TransferRequest{Scope: "TS", PropertyID: rec.PropertyID, NewOwner: "Sita Devi"})
	require.NoError(t, err)

	events, err := f.audit.ListByProperty(ctx, rec.PropertyID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, "registrar1", e.Actor)
		assert.Equal(t, "state-ts", e.Channel)
		assert.NotEmpty(t, e.TransactionID)
	}
}

func TestHealthReportsBothStores(t *testing.T) {
	f := newFixture(t)
	ctx := callerCtx()

	status := f.svc.Health(ctx, "TS")
	assert.Equal(t, "ok", status.Index)
	assert.Equal(t, "ok", status.Ledger)

	anon := f.svc.Health(context.Background(), "TS")
	assert.Equal(t, "unknown", anon.Ledger)
}

// hangingStore stalls reads until the caller's context expires.
type hangingStore struct {
	index.Store
}

func (h *hangingStore) GetByKey(ctx context.Context, propertyID string) (domain.IndexRow, error) {
	<-ctx.Done()
	return domain.IndexRow{}, ctx.Err()
}

func TestReadTimesOutSlowIndexAndServesLedger(t *testing.T) {
	gw := ledgermem.NewGateway()
	gw.RegisterIdentity(registrar)
	pool := ledger.NewPool(gw, ledger.PoolConfig{}, nil)
	t.Cleanup(func() { _ = pool.Close() })

	router, err := network.NewRouter(network.DefaultTable())
	require.NoError(t, err)

	store := &hangingStore{Store: indexmem.NewStore()}
	worker := outbox.NewWorker(store, 32, slog.Default(), metrics.NewWith(prometheus.NewRegistry()))
	svc := NewService(pool, router, store, worker,
		WithLogger(slog.Default()), WithIndexTimeout(20*time.Millisecond))

	ctx := callerCtx()
	rec, err := svc.Create(ctx, createReq())
	require.NoError(t, err)

	start := time.Now()
	view, err := svc.Read(ctx, rec.PropertyID, ReadOptions{Scope: "TS", Verify: true})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second, "slow index must not stall the read")
	assert.Equal(t, rec.Owner, view.Record.Owner)
	assert.Equal(t, domain.OffchainAbsent, view.Offchain)
	assert.True(t, view.IsBlockchainVerified)
}
