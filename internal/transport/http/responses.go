package httptransport

import (
	"landledger/internal/domain"
)

// recordsResponse wraps ledger record listings.
type recordsResponse struct {
	Count   int                 `json:"count"`
	Records []domain.LandRecord `json:"records"`
}

// viewsResponse wraps merged search results.
type viewsResponse struct {
	Count   int                 `json:"count"`
	Results []domain.MergedView `json:"results"`
}

// documentsResponse wraps document metadata listings.
type documentsResponse struct {
	PropertyID string                `json:"propertyId"`
	Count      int                   `json:"count"`
	Documents  []domain.DocumentMeta `json:"documents"`
}

// historyResponse wraps the commit trail of one property.
type historyResponse struct {
	PropertyID string                `json:"propertyId"`
	Entries    []domain.HistoryEntry `json:"entries"`
}

// networksResponse lists the configured routing scopes.
type networksResponse struct {
	Scopes []string `json:"scopes"`
}

// reloadResponse acknowledges a routing table reload.
type reloadResponse struct {
	Status string   `json:"status"`
	Scopes []string `json:"scopes"`
}
