package registry

import "landledger/internal/domain"

// mergeViews combines a ledger record with its index row. The ledger is
// authoritative: every attribute the ledger carries overrides the index copy,
// attribute by attribute, and index-only values fill the gaps. Either input
// may be nil when one store could not produce the record.
func mergeViews(ledgerRec *domain.LandRecord, row *domain.IndexRow) domain.MergedView {
	view := domain.MergedView{}

	switch {
	case ledgerRec == nil && row == nil:
		return view
	case ledgerRec == nil:
		view.Record = row.LandRecord
		view.Offchain = domain.OffchainAvailable
		view.VerificationStatus = row.VerificationStatus
		return view
	case row == nil:
		view.Record = *ledgerRec
		view.IsBlockchainVerified = true
		view.Offchain = domain.OffchainAbsent
		return view
	}

	merged := row.LandRecord
	overlay(&merged, *ledgerRec)

	view.Record = merged
	view.IsBlockchainVerified = true
	view.Offchain = domain.OffchainAvailable
	if recordsMatch(*ledgerRec, row.LandRecord) {
		view.VerificationStatus = domain.VerificationVerified
	} else {
		view.VerificationStatus = domain.VerificationFailed
	}
	return view
}

// overlay writes every non-zero ledger attribute over the index copy. Commit
// coordinates always come from the ledger.
func overlay(dst *domain.LandRecord, src domain.LandRecord) {
	set := func(d *string, s string) {
		if s != "" {
			*d = s
		}
	}
	set(&dst.PropertyID, src.PropertyID)
	set(&dst.Owner, src.Owner)
	set(&dst.SurveyNo, src.SurveyNo)
	set(&dst.District, src.District)
	set(&dst.Mandal, src.Mandal)
	set(&dst.Village, src.Village)
	set(&dst.Area, src.Area)
	set(&dst.LandType, src.LandType)
	set(&dst.MarketValue, src.MarketValue)
	set(&dst.DocumentRef, src.DocumentRef)
	if !src.LastUpdated.IsZero() {
		dst.LastUpdated = src.LastUpdated
	}
	dst.TransactionID = src.TransactionID
	dst.BlockNumber = src.BlockNumber
}

// recordsMatch compares the descriptive attributes of both copies. Commit
// coordinates are excluded: the index may legitimately lag by metadata while
// the content is identical.
func recordsMatch(ledgerRec domain.LandRecord, indexRec domain.LandRecord) bool {
	return ledgerRec.Owner == indexRec.Owner &&
		ledgerRec.SurveyNo == indexRec.SurveyNo &&
		ledgerRec.District == indexRec.District &&
		ledgerRec.Mandal == indexRec.Mandal &&
		ledgerRec.Village == indexRec.Village &&
		ledgerRec.Area == indexRec.Area &&
		ledgerRec.LandType == indexRec.LandType &&
		ledgerRec.MarketValue == indexRec.MarketValue &&
		ledgerRec.DocumentRef == indexRec.DocumentRef
}
