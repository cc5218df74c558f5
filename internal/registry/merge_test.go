package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"landledger/internal/domain"
)

func ledgerRecord() domain.LandRecord {
	return domain.LandRecord{
		PropertyID:    "PROP-001",
		Owner:         "Sita Devi",
		SurveyNo:      "123/A",
		District:      "Medchal",
		Mandal:        "Ghatkesar",
		Village:       "Ankushapur",
		Area:          "2.5 acres",
		LandType:      "agricultural",
		MarketValue:   "4500000",
		LastUpdated:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		TransactionID: "tx-77",
		BlockNumber:   7,
	}
}

func TestMergeLedgerWinsPerAttribute(t *testing.T) {
	led := ledgerRecord()

	row := domain.IndexRow{LandRecord: led, VerificationStatus: domain.VerificationPending}
	row.Owner = "Ravi Kumar" // index lagging behind a transfer
	row.TransactionID = "tx-42"
	row.BlockNumber = 4

	view := mergeViews(&led, &row)

	assert.Equal(t, "Sita Devi", view.Record.Owner)
	assert.Equal(t, "tx-77", view.Record.TransactionID)
	assert.Equal(t, uint64(7), view.Record.BlockNumber)
	assert.True(t, view.IsBlockchainVerified)
	assert.Equal(t, domain.OffchainAvailable, view.Offchain)
	assert.Equal(t, domain.VerificationFailed, view.VerificationStatus,
		"content difference between stores is a mismatch")
}

func TestMergeIdenticalCopiesVerify(t *testing.T) {
	led := ledgerRecord()
	row := domain.IndexRow{LandRecord: led, VerificationStatus: domain.VerificationPending}

	view := mergeViews(&led, &row)

	assert.Equal(t, domain.VerificationVerified, view.VerificationStatus)
	assert.True(t, view.IsBlockchainVerified)
}

func TestMergeLaggingCommitCoordinatesStillVerify(t *testing.T) {
	led := ledgerRecord()
	row := domain.IndexRow{LandRecord: led}
	row.TransactionID = "tx-42"
	row.BlockNumber = 4

	view := mergeViews(&led, &row)
	assert.Equal(t, domain.VerificationVerified, view.VerificationStatus,
		"commit metadata lag is not a content mismatch")
}

func TestMergeLedgerOnly(t *testing.T) {
	led := ledgerRecord()

	view := mergeViews(&led, nil)

	assert.Equal(t, led, view.Record)
	assert.True(t, view.IsBlockchainVerified)
	assert.Equal(t, domain.OffchainAbsent, view.Offchain)
}

func TestMergeIndexOnly(t *testing.T) {
	row := domain.IndexRow{LandRecord: ledgerRecord(), VerificationStatus: domain.VerificationPending}

	view := mergeViews(nil, &row)

	assert.False(t, view.IsBlockchainVerified)
	assert.Equal(t, domain.OffchainAvailable, view.Offchain)
	assert.Equal(t, domain.VerificationPending, view.VerificationStatus)
}

func TestMergeEmpty(t *testing.T) {
	view := mergeViews(nil, nil)
	assert.False(t, view.IsBlockchainVerified)
	assert.Empty(t, view.Record.PropertyID)
}
