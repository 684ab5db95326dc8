package store

import (
	"fmt"
	"strconv"
)

// Serialization helpers for converting between Principal structs and Redis
// hashes.
//
// Redis stores data as string-to-string maps. Nullable integer fields
// (ledger_score, credential_id) are encoded as empty strings when unset so a
// missing value and zero stay distinguishable.

// PrincipalToHash converts a Principal to its Redis hash representation.
func PrincipalToHash(p *Principal) map[string]interface{} {
	hash := map[string]interface{}{
		"address":              p.Address,
		"local_score":          p.LocalScore,
		"credential_status":    string(p.CredentialStatus),
		"credential_ref":       p.CredentialRef,
		"credential_error":     p.CredentialError,
		"mint_submitted_at_ms": p.MintSubmittedAtMs,
		"first_seen_ms":        p.FirstSeenMs,
		"last_sync_ok":         p.LastSyncOK,
		"last_sync_error":      p.LastSyncError,
		"last_sync_ref":        p.LastSyncRef,
		"last_sync_ms":         p.LastSyncMs,
	}

	if p.LedgerScore != nil {
		hash["ledger_score"] = *p.LedgerScore
	} else {
		hash["ledger_score"] = ""
	}

	if p.CredentialID != nil {
		hash["credential_id"] = *p.CredentialID
	} else {
		hash["credential_id"] = ""
	}

	return hash
}

// HashToPrincipal converts a Redis hash back to a Principal.
func HashToPrincipal(hash map[string]string) (*Principal, error) {
	localScore, err := strconv.Atoi(hash["local_score"])
	if err != nil {
		return nil, fmt.Errorf("invalid local_score field: %w", err)
	}

	var ledgerScore *int
	if raw := hash["ledger_score"]; raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid ledger_score field: %w", err)
		}
		ledgerScore = &v
	}

	var credentialID *int64
	if raw := hash["credential_id"]; raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid credential_id field: %w", err)
		}
		credentialID = &v
	}

	mintSubmittedAtMs, _ := strconv.ParseInt(hash["mint_submitted_at_ms"], 10, 64)
	firstSeenMs, _ := strconv.ParseInt(hash["first_seen_ms"], 10, 64)
	lastSyncOK, _ := strconv.ParseBool(hash["last_sync_ok"])
	lastSyncMs, _ := strconv.ParseInt(hash["last_sync_ms"], 10, 64)

	return &Principal{
		Address:           hash["address"],
		LocalScore:        localScore,
		LedgerScore:       ledgerScore,
		CredentialStatus:  CredentialStatus(hash["credential_status"]),
		CredentialRef:     hash["credential_ref"],
		CredentialID:      credentialID,
		CredentialError:   hash["credential_error"],
		MintSubmittedAtMs: mintSubmittedAtMs,
		FirstSeenMs:       firstSeenMs,
		LastSyncOK:        lastSyncOK,
		LastSyncError:     hash["last_sync_error"],
		LastSyncRef:       hash["last_sync_ref"],
		LastSyncMs:        lastSyncMs,
	}, nil
}
