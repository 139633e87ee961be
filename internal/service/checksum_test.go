package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartattend/integrity-api/internal/models"
)

func checksumFixture() *models.LedgerEntry {
	tenantID := "tenant-1"
	actorID := "actor-1"
	return &models.LedgerEntry{
		ID:           "entry-1",
		Scope:        models.ScopeAttendance,
		TenantID:     &tenantID,
		ActorID:      &actorID,
		ActionType:   models.ActionStateTransition,
		ResourceType: models.ResourceAttendanceRecord,
		ResourceID:   "record-1",
		BeforeState:  []byte(`{"status":"UNMARKED","id":"record-1"}`),
		AfterState:   []byte(`{"id":"record-1","status":"PRESENT"}`),
		Reason:       "marked by faculty",
		OccurredAt:   time.Date(2026, 3, 10, 9, 0, 0, 123456000, time.UTC),
	}
}

func TestComputeChecksumDeterministic(t *testing.T) {
	entry := checksumFixture()

	first, err := computeChecksum(entry)
	require.NoError(t, err)
	second, err := computeChecksum(entry)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, first, "sha256:")
}

func TestComputeChecksumIgnoresSnapshotByteLayout(t *testing.T) {
	entry := checksumFixture()
	reordered := checksumFixture()
	// Same snapshot content, different key order and whitespace.
	reordered.BeforeState = []byte(`{ "id": "record-1", "status": "UNMARKED" }`)
	reordered.AfterState = []byte(`{"status":"PRESENT","id":"record-1"}`)

	original, err := computeChecksum(entry)
	require.NoError(t, err)
	alternate, err := computeChecksum(reordered)
	require.NoError(t, err)

	assert.Equal(t, original, alternate)
}

func TestComputeChecksumRejectsMalformedSnapshot(t *testing.T) {
	entry := checksumFixture()
	entry.AfterState = []byte(`{not json`)

	_, err := computeChecksum(entry)
	require.Error(t, err)
}

func TestVerifyChecksumDetectsFieldChange(t *testing.T) {
	entry := checksumFixture()
	checksum, err := computeChecksum(entry)
	require.NoError(t, err)
	entry.Checksum = checksum

	_, match, err := verifyChecksum(entry)
	require.NoError(t, err)
	assert.True(t, match)

	tampered := checksumFixture()
	tampered.Checksum = checksum
	tampered.Reason = "rewritten after the fact"

	computed, match, err := verifyChecksum(tampered)
	require.NoError(t, err)
	assert.False(t, match)
	assert.NotEqual(t, checksum, computed)
}

func TestVerifyChecksumDetectsSnapshotChange(t *testing.T) {
	entry := checksumFixture()
	checksum, err := computeChecksum(entry)
	require.NoError(t, err)
	entry.Checksum = checksum
	entry.AfterState = []byte(`{"id":"record-1","status":"ABSENT"}`)

	_, match, err := verifyChecksum(entry)
	require.NoError(t, err)
	assert.False(t, match)
}
