package domain

import "time"

// VerificationStatus tracks whether an index row has been confirmed against the ledger.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationFailed   VerificationStatus = "failed"
)

// LandRecord is the canonical ledger entity. All descriptive attributes are
// ledger-authoritative; TransactionID and BlockNumber are commit coordinates
// set only by the ledger.
type LandRecord struct {
	PropertyID  string    `json:"propertyId"`
	Owner       string    `json:"owner"`
	SurveyNo    string    `json:"surveyNo"`
	District    string    `json:"district"`
	Mandal      string    `json:"mandal"`
	Village     string    `json:"village"`
	Area        string    `json:"area"`
	LandType    string    `json:"landType"`
	MarketValue string    `json:"marketValue"`
	DocumentRef string    `json:"documentRef,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`

	TransactionID string `json:"transactionId,omitempty"`
	BlockNumber   uint64 `json:"blockNumber,omitempty"`
}

// IndexRow is the off-chain mirror of a LandRecord. It is never authoritative;
// VerificationStatus records whether the mirror matches a committed ledger row.
type IndexRow struct {
	LandRecord
	VerificationStatus VerificationStatus `json:"verificationStatus"`
}

// HistoryEntry is one ledger commit for a property, ordered by commit sequence.
type HistoryEntry struct {
	TransactionID string      `json:"txId"`
	Timestamp     time.Time   `json:"timestamp"`
	IsDelete      bool        `json:"isDelete"`
	Record        *LandRecord `json:"record,omitempty"`
}

// DocumentMeta describes an externally stored document bundle linked to a property.
type DocumentMeta struct {
	PropertyID      string    `json:"propertyId"`
	DocumentHash    string    `json:"documentHash"`
	DocumentType    string    `json:"documentType"`
	FileURL         string    `json:"fileUrl,omitempty"`
	UploadedAt      time.Time `json:"uploadedAt"`
	VerifiedOnChain bool      `json:"verifiedOnChain"`
}

// OffchainState reports whether the index contributed to a merged view.
type OffchainState string

const (
	OffchainAvailable OffchainState = "available"
	OffchainAbsent    OffchainState = "absent"
)

// MergedView is the combined read result. For every attribute present in both
// stores the ledger value wins; IsBlockchainVerified is true iff the ledger
// lookup succeeded.
type MergedView struct {
	Record               LandRecord         `json:"record"`
	IsBlockchainVerified bool               `json:"isBlockchainVerified"`
	Offchain             OffchainState      `json:"offchain"`
	VerificationStatus   VerificationStatus `json:"verificationStatus,omitempty"`
	History              []HistoryEntry     `json:"history,omitempty"`
}
