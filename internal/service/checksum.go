package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/smartattend/integrity-api/internal/models"
)

const checksumPrefix = "sha256:"

// computeChecksum fingerprints the immutable fields of a ledger entry:
// {id, scope, actorId, actionType, resourceType, resourceId, beforeState,
// afterState, reason, timestamp}. Serialization is canonical: JSON with
// lexicographically ordered keys, snapshots re-encoded from their decoded
// form, so the stored byte layout of a snapshot never affects the digest.
// The stored checksum itself is excluded.
func computeChecksum(e *models.LedgerEntry) (string, error) {
	before, err := decodeSnapshot(e.BeforeState)
	if err != nil {
		return "", fmt.Errorf("decode before state: %w", err)
	}
	after, err := decodeSnapshot(e.AfterState)
	if err != nil {
		return "", fmt.Errorf("decode after state: %w", err)
	}

	canonical := map[string]any{
		"id":           e.ID,
		"scope":        string(e.Scope),
		"actorId":      e.ActorID,
		"actionType":   string(e.ActionType),
		"resourceType": e.ResourceType,
		"resourceId":   e.ResourceID,
		"beforeState":  before,
		"afterState":   after,
		"reason":       e.Reason,
		"timestamp":    e.OccurredAt.UTC().Format(time.RFC3339Nano),
	}

	payload, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("serialize ledger entry: %w", err)
	}

	sum := sha256.Sum256(payload)
	return checksumPrefix + hex.EncodeToString(sum[:]), nil
}

// verifyChecksum recomputes the fingerprint and compares it to the stored
// value. Returns the recomputed checksum alongside the match result so
// findings can report both sides.
func verifyChecksum(e *models.LedgerEntry) (string, bool, error) {
	computed, err := computeChecksum(e)
	if err != nil {
		return "", false, err
	}
	return computed, computed == e.Checksum, nil
}

func decodeSnapshot(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
