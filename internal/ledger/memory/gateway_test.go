package memory

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landledger/internal/domain"
	"landledger/internal/ledger"
)

var testProfile = domain.NetworkProfile{ChannelName: "state-ts", ChaincodeName: "land-registry"}

func newTestSession(t *testing.T) ledger.Session {
	t.Helper()
	g := NewGateway()
	g.RegisterIdentity(domain.Identity{Name: "registrar1", Organization: "Telangana", Role: domain.RoleRegistrar})
	s, err := g.Connect(context.Background(), domain.Identity{Name: "registrar1"}, testProfile)
	require.NoError(t, err)
	return s
}

func createArgs() []string {
	return []string{"Ravi Kumar", "123/A", "Medchal", "Ghatkesar", "Edulabad", "2.5 Acres", "Agricultural", "4500000", ""}
}

func TestConnect_UnknownIdentity(t *testing.T) {
	g := NewGateway()
	_, err := g.Connect(context.Background(), domain.Identity{Name: "ghost"}, testProfile)
	assert.ErrorIs(t, err, ledger.ErrIdentityNotFound)
}

func TestCreateAndRead(t *testing.T) {
	s := newTestSession(t)

	result, err := s.Submit(context.Background(), ledger.OpCreateRecord, createArgs()...)
	require.NoError(t, err)
	assert.NotEmpty(t, result.TransactionID)
	assert.Equal(t, uint64(1), result.BlockNumber)

	var created domain.LandRecord
	require.NoError(t, json.Unmarshal(result.Payload, &created))
	assert.Equal(t, "PROP-001", created.PropertyID)

	payload, err := s.Evaluate(context.Background(), ledger.OpReadRecord, created.PropertyID)
	require.NoError(t, err)

	var read domain.LandRecord
	require.NoError(t, json.Unmarshal(payload, &read))
	assert.Equal(t, "Ravi Kumar", read.Owner)
	assert.Equal(t, created.TransactionID, read.TransactionID)
}

func TestCreate_DuplicateExplicitID(t *testing.T) {
	s := newTestSession(t)

	args := append(createArgs(), "PROP-001")
	_, err := s.Submit(context.Background(), ledger.OpCreateRecord, args...)
	require.NoError(t, err)

	_, err = s.Submit(context.Background(), ledger.OpCreateRecord, args...)
	assert.ErrorIs(t, err, ledger.ErrDuplicateKey)
}

func TestRead_NotFound(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Evaluate(context.Background(), ledger.OpReadRecord, "PROP-999")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestUpdate_ChangesOwnerAndBumpsBlock(t *testing.T) {
	s := newTestSession(t)

	created, err := s.Submit(context.Background(), ledger.OpCreateRecord, createArgs()...)
	require.NoError(t, err)

	updated, err := s.Submit(context.Background(), ledger.OpUpdateRecord, "PROP-001", "Lakshmi Reddy", "")
	require.NoError(t, err)
	assert.Greater(t, updated.BlockNumber, created.BlockNumber)

	var record domain.LandRecord
	require.NoError(t, json.Unmarshal(updated.Payload, &record))
	assert.Equal(t, "Lakshmi Reddy", record.Owner)
	assert.Equal(t, "4500000", record.MarketValue)
}

func TestDelete_TombstonesAndKeepsHistory(t *testing.T) {
	s := newTestSession(t)

	_, err := s.Submit(context.Background(), ledger.OpCreateRecord, createArgs()...)
	require.NoError(t, err)
	_, err = s.Submit(context.Background(), ledger.OpDeleteRecord, "PROP-001")
	require.NoError(t, err)

	_, err = s.Evaluate(context.Background(), ledger.OpReadRecord, "PROP-001")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	payload, err := s.Evaluate(context.Background(), ledger.OpGetHistory, "PROP-001")
	require.NoError(t, err)

	var entries []domain.HistoryEntry
	require.NoError(t, json.Unmarshal(payload, &entries))
	require.Len(t, entries, 2)
	assert.False(t, entries[0].IsDelete)
	assert.True(t, entries[1].IsDelete)
	assert.Nil(t, entries[1].Record)
}

func TestHistory_OrderedByCommitSequence(t *testing.T) {
	s := newTestSession(t)

	_, err := s.Submit(context.Background(), ledger.OpCreateRecord, createArgs()...)
	require.NoError(t, err)
	for _, owner := range []string{"B", "C", "D"} {
		_, err = s.Submit(context.Background(), ledger.OpUpdateRecord, "PROP-001", owner, "")
		require.NoError(t, err)
	}

	payload, err := s.Evaluate(context.Background(), ledger.OpGetHistory, "PROP-001")
	require.NoError(t, err)

	var entries []domain.HistoryEntry
	require.NoError(t, json.Unmarshal(payload, &entries))
	require.Len(t, entries, 4)
	for i := 1; i < len(entries); i++ {
		require.NotNil(t, entries[i].Record)
		assert.Greater(t, entries[i].Record.BlockNumber, entries[i-1].Record.BlockNumber)
	}
	assert.Equal(t, "D", entries[3].Record.Owner)
}

func TestQueryBySurvey_CaseInsensitive(t *testing.T) {
	s := newTestSession(t)

	_, err := s.Submit(context.Background(), ledger.OpCreateRecord, createArgs()...)
	require.NoError(t, err)

	payload, err := s.Evaluate(context.Background(), ledger.OpQueryBySurvey, "medchal", "GHATKESAR", " Edulabad ", "123/a")
	require.NoError(t, err)

	var record domain.LandRecord
	require.NoError(t, json.Unmarshal(payload, &record))
	assert.Equal(t, "PROP-001", record.PropertyID)

	_, err = s.Evaluate(context.Background(), ledger.OpQueryBySurvey, "Medchal", "Ghatkesar", "Edulabad", "999/Z")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestLinkDocument_RejectsShortHash(t *testing.T) {
	s := newTestSession(t)

	_, err := s.Submit(context.Background(), ledger.OpCreateRecord, createArgs()...)
	require.NoError(t, err)

	_, err = s.Submit(context.Background(), ledger.OpLinkDocument, "PROP-001", "deadbeef", "sale-deed")
	assert.Error(t, err)

	hash := strings.Repeat("ab", 32)
	_, err = s.Submit(context.Background(), ledger.OpLinkDocument, "PROP-001", hash, "sale-deed")
	assert.NoError(t, err)
}

func TestChannels_AreIsolated(t *testing.T) {
	g := NewGateway()
	g.RegisterIdentity(domain.Identity{Name: "admin"})

	ts, err := g.Connect(context.Background(), domain.Identity{Name: "admin"}, domain.NetworkProfile{ChannelName: "state-ts"})
	require.NoError(t, err)
	ka, err := g.Connect(context.Background(), domain.Identity{Name: "admin"}, domain.NetworkProfile{ChannelName: "state-ka"})
	require.NoError(t, err)

	_, err = ts.Submit(context.Background(), ledger.OpCreateRecord, createArgs()...)
	require.NoError(t, err)

	_, err = ka.Evaluate(context.Background(), ledger.OpReadRecord, "PROP-001")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
