package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/smartattend/integrity-api/internal/models"
)

func newAttendanceRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func testRecord() *models.AttendanceRecord {
	now := time.Now()
	return &models.AttendanceRecord{
		ID:           "record-1",
		TenantID:     "tenant-1",
		SubjectID:    "student-1",
		SessionID:    "session-1",
		Status:       models.AttendancePresent,
		StatusReason: "marked by faculty",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func testEntry(id string) *models.LedgerEntry {
	actorID := "faculty-1"
	return &models.LedgerEntry{
		ID:           id,
		Scope:        models.ScopeAttendance,
		ActorID:      &actorID,
		ActionType:   models.ActionStateTransition,
		ResourceType: models.ResourceAttendanceRecord,
		ResourceID:   "record-1",
		BeforeState:  []byte(`{"status":"UNMARKED"}`),
		AfterState:   []byte(`{"status":"PRESENT"}`),
		Reason:       "marked by faculty",
		OccurredAt:   time.Now(),
		Checksum:     "sha256:abc",
	}
}

func TestAttendanceRepositoryCreateWithEntries(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.CreateWithEntries(context.Background(), testRecord(), testEntry("entry-1"), testEntry("entry-2"))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCreateWithEntriesLostRace(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO attendance_records")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.CreateWithEntries(context.Background(), testRecord(), testEntry("entry-1"))
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryTransition(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	updatedAt := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance_records")).
		WithArgs(models.AttendanceVerified, "audit confirmed", updatedAt, "record-1", models.AttendancePresent).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO ledger_entries")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Transition(context.Background(), TransitionParams{
		RecordID:   "record-1",
		FromStatus: models.AttendancePresent,
		ToStatus:   models.AttendanceVerified,
		Reason:     "audit confirmed",
		UpdatedAt:  updatedAt,
		Entry:      testEntry("entry-1"),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryTransitionLostCompareAndSet(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance_records")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Transition(context.Background(), TransitionParams{
		RecordID:   "record-1",
		FromStatus: models.AttendancePresent,
		ToStatus:   models.AttendanceVerified,
		Reason:     "audit confirmed",
		UpdatedAt:  time.Now(),
		Entry:      testEntry("entry-1"),
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newAttendanceRepoMock(t)
	defer cleanup()

	repo := NewAttendanceRepository(db)
	rows := sqlmock.NewRows([]string{"id", "tenant_id", "subject_id", "session_id", "status", "status_reason", "created_at", "updated_at"}).
		AddRow("record-1", "tenant-1", "student-1", "session-1", "PRESENT", "marked by faculty", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("session_id = $2")).
		WithArgs("tenant-1", "session-1", "PRESENT").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("tenant-1", "session-1", "PRESENT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	status := models.AttendancePresent
	records, total, err := repo.List(context.Background(), models.AttendanceFilter{
		TenantID:  "tenant-1",
		SessionID: "session-1",
		Status:    &status,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}
