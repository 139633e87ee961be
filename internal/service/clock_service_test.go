package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smartattend/integrity-api/internal/models"
	"github.com/smartattend/integrity-api/pkg/config"
)

type fixedClock struct {
	now time.Time
}

func (f fixedClock) Now() time.Time {
	return f.now
}

type driftRecorderStub struct {
	events []*models.DriftEvent
}

func (r *driftRecorderStub) RecordAsync(event *models.DriftEvent) {
	r.events = append(r.events, event)
}

func testClockConfig() config.ClockConfig {
	return config.ClockConfig{
		DriftInfoThreshold:  5 * time.Second,
		DriftWarnThreshold:  60 * time.Second,
		DriftBlockThreshold: 300 * time.Second,
	}
}

func TestClockServiceComputeDriftTruncatesTowardZero(t *testing.T) {
	svc := NewClockService(testClockConfig(), nil, nil, zap.NewNop())
	server := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, int64(1), svc.ComputeDrift(server.Add(1500*time.Millisecond), server))
	assert.Equal(t, int64(-1), svc.ComputeDrift(server.Add(-1500*time.Millisecond), server))
	assert.Equal(t, int64(0), svc.ComputeDrift(server.Add(900*time.Millisecond), server))
	assert.Equal(t, int64(0), svc.ComputeDrift(server, server))
}

func TestClockServiceClassifySeverityBoundaries(t *testing.T) {
	svc := NewClockService(testClockConfig(), nil, nil, zap.NewNop())

	cases := []struct {
		drift    int64
		expected models.DriftSeverity
	}{
		{0, models.DriftInfo},
		{5, models.DriftInfo},
		{-5, models.DriftInfo},
		{6, models.DriftWarning},
		{-6, models.DriftWarning},
		{60, models.DriftWarning},
		{61, models.DriftCritical},
		{-61, models.DriftCritical},
		{2220, models.DriftCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.expected, svc.ClassifySeverity(tc.drift), "drift %d", tc.drift)
	}
}

func TestClockServiceEvaluateActionBlocksOnlyAttendanceWrites(t *testing.T) {
	svc := NewClockService(testClockConfig(), nil, nil, zap.NewNop())

	assert.Equal(t, models.DecisionAllow, svc.EvaluateAction(5, models.KindAttendanceWrite))
	assert.Equal(t, models.DecisionAllowAndFlag, svc.EvaluateAction(6, models.KindAttendanceWrite))
	assert.Equal(t, models.DecisionAllowAndFlag, svc.EvaluateAction(300, models.KindAttendanceWrite))
	assert.Equal(t, models.DecisionBlock, svc.EvaluateAction(301, models.KindAttendanceWrite))
	assert.Equal(t, models.DecisionBlock, svc.EvaluateAction(-301, models.KindAttendanceWrite))

	// Reads and administrative actions are observed, never blocked.
	assert.Equal(t, models.DecisionAllow, svc.EvaluateAction(100000, models.KindAttendanceRead))
	assert.Equal(t, models.DecisionAllow, svc.EvaluateAction(100000, models.KindAdministrative))
}

func TestClockServiceDefaultThresholds(t *testing.T) {
	svc := NewClockService(config.ClockConfig{}, nil, nil, zap.NewNop())

	assert.Equal(t, models.DriftInfo, svc.ClassifySeverity(5))
	assert.Equal(t, models.DriftWarning, svc.ClassifySeverity(6))
	assert.Equal(t, models.DriftCritical, svc.ClassifySeverity(61))
	assert.Equal(t, models.DecisionBlock, svc.EvaluateAction(301, models.KindAttendanceWrite))
}

func TestClockServiceEvaluateBlocksFarFutureClient(t *testing.T) {
	server := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	recorder := &driftRecorderStub{}
	svc := NewClockService(testClockConfig(), recorder, nil, zap.NewNop(), WithClock(fixedClock{now: server}))

	assessment := svc.Evaluate(EvaluateDriftInput{
		TenantID:        "tenant-1",
		UserID:          "user-1",
		ClientTimestamp: server.Add(37 * time.Minute),
		Kind:            models.KindAttendanceWrite,
	})

	assert.Equal(t, int64(2220), assessment.DriftSeconds)
	assert.Equal(t, models.DriftCritical, assessment.Severity)
	assert.Equal(t, models.DecisionBlock, assessment.Decision)
	assert.Equal(t, server, assessment.ServerTimestamp)

	require.Len(t, recorder.events, 1)
	event := recorder.events[0]
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "tenant-1", event.TenantID)
	assert.Equal(t, int64(2220), event.DriftSeconds)
	assert.Equal(t, models.DecisionBlock, event.Decision)
	assert.True(t, event.AttendanceAffected)
}

func TestClockServiceEvaluateFlagsModerateDrift(t *testing.T) {
	server := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	recorder := &driftRecorderStub{}
	svc := NewClockService(testClockConfig(), recorder, nil, zap.NewNop(), WithClock(fixedClock{now: server}))

	assessment := svc.Evaluate(EvaluateDriftInput{
		TenantID:        "tenant-1",
		UserID:          "user-1",
		ClientTimestamp: server.Add(-45 * time.Second),
		Kind:            models.KindAttendanceWrite,
	})

	assert.Equal(t, int64(-45), assessment.DriftSeconds)
	assert.Equal(t, models.DriftWarning, assessment.Severity)
	assert.Equal(t, models.DecisionAllowAndFlag, assessment.Decision)

	require.Len(t, recorder.events, 1)
	assert.True(t, recorder.events[0].AttendanceAffected)
}

func TestClockServiceEvaluateObservesReads(t *testing.T) {
	server := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	recorder := &driftRecorderStub{}
	svc := NewClockService(testClockConfig(), recorder, nil, zap.NewNop(), WithClock(fixedClock{now: server}))

	assessment := svc.Evaluate(EvaluateDriftInput{
		TenantID:        "tenant-1",
		UserID:          "user-1",
		ClientTimestamp: server.Add(20 * time.Minute),
		Kind:            models.KindAttendanceRead,
	})

	// Severity still reflects the drift, but a read is never interfered with.
	assert.Equal(t, models.DriftCritical, assessment.Severity)
	assert.Equal(t, models.DecisionAllow, assessment.Decision)

	require.Len(t, recorder.events, 1)
	assert.False(t, recorder.events[0].AttendanceAffected)
}
