// Package memory implements the ledger gateway against an in-process ledger
// with committed state, per-key history, and delete tombstones. It backs the
// dev mode and the test suite; channel state is isolated the way separate
// ledger channels are.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"landledger/internal/domain"
	"landledger/internal/ledger"
)

// Gateway is an in-process ledger. Identities must be registered before
// Connect, mirroring external wallet provisioning.
type Gateway struct {
	mu         sync.Mutex
	identities map[string]domain.Identity
	channels   map[string]*channelState
}

type channelState struct {
	records map[string]domain.LandRecord
	history map[string][]domain.HistoryEntry
	block   uint64
	seq     int
}

// NewGateway creates an empty in-process ledger.
func NewGateway() *Gateway {
	return &Gateway{
		identities: make(map[string]domain.Identity),
		channels:   make(map[string]*channelState),
	}
}

// RegisterIdentity provisions a credential, as an external wallet would.
func (g *Gateway) RegisterIdentity(id domain.Identity) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.identities[id.Name] = id
}

// Connect implements ledger.Gateway.
func (g *Gateway) Connect(_ context.Context, identity domain.Identity, profile domain.NetworkProfile) (ledger.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.identities[identity.Name]; !ok {
		return nil, fmt.Errorf("identity %q: %w", identity.Name, ledger.ErrIdentityNotFound)
	}
	if profile.ChannelName == "" {
		return nil, fmt.Errorf("profile missing channel: %w", ledger.ErrConnection)
	}
	if _, ok := g.channels[profile.ChannelName]; !ok {
		g.channels[profile.ChannelName] = &channelState{
			records: make(map[string]domain.LandRecord),
			history: make(map[string][]domain.HistoryEntry),
		}
	}
	return &session{gateway: g, identity: identity, channel: profile.ChannelName}, nil
}

type session struct {
	gateway  *Gateway
	identity domain.Identity
	channel  string

	mu     sync.Mutex
	closed bool
}

func (s *session) Identity() domain.Identity { return s.identity }
func (s *session) Channel() string           { return s.channel }

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *session) Submit(ctx context.Context, operation string, args ...string) (ledger.SubmitResult, error) {
	if s.isClosed() {
		return ledger.SubmitResult{}, ledger.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return ledger.SubmitResult{}, fmt.Errorf("%w: %w", ledger.ErrConnection, err)
	}

	s.gateway.mu.Lock()
	defer s.gateway.mu.Unlock()
	ch := s.gateway.channels[s.channel]

	switch operation {
	case ledger.OpCreateRecord:
		return ch.create(args)
	case ledger.OpUpdateRecord:
		return ch.update(args)
	case ledger.OpDeleteRecord:
		return ch.delete(args)
	case ledger.OpLinkDocument:
		return ch.linkDocument(args)
	default:
		return ledger.SubmitResult{}, fmt.Errorf("unknown operation %q", operation)
	}
}

func (s *session) Evaluate(ctx context.Context, query string, args ...string) ([]byte, error) {
	if s.isClosed() {
		return nil, ledger.ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ledger.ErrConnection, err)
	}

	s.gateway.mu.Lock()
	defer s.gateway.mu.Unlock()
	ch := s.gateway.channels[s.channel]

	switch query {
	case ledger.OpReadRecord:
		return ch.read(args)
	case ledger.OpQueryBySurvey:
		return ch.queryBySurvey(args)
	case ledger.OpQueryByOwner:
		return ch.filter(func(r domain.LandRecord) bool { return eqFold(r.Owner, args[0]) })
	case ledger.OpQueryByDistrict:
		return ch.filter(func(r domain.LandRecord) bool { return eqFold(r.District, args[0]) })
	case ledger.OpListAll:
		return ch.filter(func(domain.LandRecord) bool { return true })
	case ledger.OpGetHistory:
		return ch.getHistory(args)
	default:
		return nil, fmt.Errorf("unknown query %q", query)
	}
}

// commit stamps ledger coordinates, appends history, and returns the result.
func (ch *channelState) commit(record domain.LandRecord, isDelete bool) (ledger.SubmitResult, error) {
	ch.block++
	record.TransactionID = uuid.NewString()
	record.BlockNumber = ch.block
	record.LastUpdated = time.Now().UTC()

	entry := domain.HistoryEntry{
		TransactionID: record.TransactionID,
		Timestamp:     record.LastUpdated,
		IsDelete:      isDelete,
	}
	if isDelete {
		delete(ch.records, record.PropertyID)
	} else {
		snapshot := record
		entry.Record = &snapshot
		ch.records[record.PropertyID] = record
	}
	ch.history[record.PropertyID] = append(ch.history[record.PropertyID], entry)

	payload, err := json.Marshal(record)
	if err != nil {
		return ledger.SubmitResult{}, err
	}
	return ledger.SubmitResult{
		Payload:       payload,
		TransactionID: record.TransactionID,
		BlockNumber:   record.BlockNumber,
	}, nil
}

// create args: owner, surveyNo, district, mandal, village, area, landType,
// marketValue, documentRef, and optionally an explicit propertyId (federation
// import flows). Without one the ledger assigns the next sequence id.
func (ch *channelState) create(args []string) (ledger.SubmitResult, error) {
	if len(args) < 9 {
		return ledger.SubmitResult{}, fmt.Errorf("CreateRecord expects 9 or 10 args, got %d", len(args))
	}
	record := domain.LandRecord{
		Owner:       args[0],
		SurveyNo:    args[1],
		District:    args[2],
		Mandal:      args[3],
		Village:     args[4],
		Area:        args[5],
		LandType:    args[6],
		MarketValue: args[7],
		DocumentRef: args[8],
	}
	if len(args) >= 10 && args[9] != "" {
		record.PropertyID = args[9]
	} else {
		ch.seq++
		record.PropertyID = fmt.Sprintf("PROP-%03d", ch.seq)
	}
	if _, exists := ch.records[record.PropertyID]; exists {
		return ledger.SubmitResult{}, fmt.Errorf("property %s: %w", record.PropertyID, ledger.ErrDuplicateKey)
	}
	return ch.commit(record, false)
}

// update args: propertyId, newOwner, newMarketValue (either may be empty).
func (ch *channelState) update(args []string) (ledger.SubmitResult, error) {
	if len(args) < 3 {
		return ledger.SubmitResult{}, fmt.Errorf("UpdateRecord expects 3 args, got %d", len(args))
	}
	record, ok := ch.records[args[0]]
	if !ok {
		return ledger.SubmitResult{}, fmt.Errorf("property %s: %w", args[0], ledger.ErrNotFound)
	}
	if args[1] != "" {
		record.Owner = args[1]
	}
	if args[2] != "" {
		record.MarketValue = args[2]
	}
	return ch.commit(record, false)
}

func (ch *channelState) delete(args []string) (ledger.SubmitResult, error) {
	if len(args) < 1 {
		return ledger.SubmitResult{}, fmt.Errorf("DeleteRecord expects 1 arg")
	}
	record, ok := ch.records[args[0]]
	if !ok {
		return ledger.SubmitResult{}, fmt.Errorf("property %s: %w", args[0], ledger.ErrNotFound)
	}
	return ch.commit(record, true)
}

// linkDocument args: propertyId, documentHash, documentType.
func (ch *channelState) linkDocument(args []string) (ledger.SubmitResult, error) {
	if len(args) < 3 {
		return ledger.SubmitResult{}, fmt.Errorf("LinkDocument expects 3 args, got %d", len(args))
	}
	if len(args[1]) < 32 {
		return ledger.SubmitResult{}, fmt.Errorf("invalid document hash format")
	}
	record, ok := ch.records[args[0]]
	if !ok {
		return ledger.SubmitResult{}, fmt.Errorf("property %s: %w", args[0], ledger.ErrNotFound)
	}
	record.DocumentRef = args[1]
	return ch.commit(record, false)
}

func (ch *channelState) read(args []string) ([]byte, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("ReadRecord expects 1 arg")
	}
	record, ok := ch.records[args[0]]
	if !ok {
		return nil, fmt.Errorf("property %s: %w", args[0], ledger.ErrNotFound)
	}
	return json.Marshal(record)
}

func (ch *channelState) queryBySurvey(args []string) ([]byte, error) {
	if len(args) < 4 {
		return nil, fmt.Errorf("QueryBySurvey expects 4 args")
	}
	for _, record := range ch.records {
		if eqFold(record.District, args[0]) && eqFold(record.Mandal, args[1]) &&
			eqFold(record.Village, args[2]) && eqFold(record.SurveyNo, args[3]) {
			return json.Marshal(record)
		}
	}
	return nil, fmt.Errorf("survey %s/%s/%s/%s: %w", args[0], args[1], args[2], args[3], ledger.ErrNotFound)
}

func (ch *channelState) filter(keep func(domain.LandRecord) bool) ([]byte, error) {
	out := make([]domain.LandRecord, 0)
	for _, record := range ch.records {
		if keep(record) {
			out = append(out, record)
		}
	}
	return json.Marshal(out)
}

func (ch *channelState) getHistory(args []string) ([]byte, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("GetHistory expects 1 arg")
	}
	entries, ok := ch.history[args[0]]
	if !ok {
		return nil, fmt.Errorf("property %s: %w", args[0], ledger.ErrNotFound)
	}
	return json.Marshal(entries)
}

func eqFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
