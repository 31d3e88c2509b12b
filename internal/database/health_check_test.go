package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHealthCheckerCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectPing()

	checker := NewHealthChecker(db, zap.NewNop())
	assert.False(t, checker.IsHealthy())

	err = checker.Check(context.Background())
	assert.NoError(t, err)
	assert.True(t, checker.IsHealthy())

	status := checker.Status()
	assert.True(t, status.Healthy)
	assert.Empty(t, status.LastError)
	assert.NotZero(t, status.LastCheck)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthCheckerFailureAndRecovery(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	checker := NewHealthChecker(db, zap.NewNop())

	mock.ExpectPing().WillReturnError(sqlmock.ErrCancelled)
	err = checker.Check(context.Background())
	assert.Error(t, err)
	assert.False(t, checker.IsHealthy())
	assert.NotEmpty(t, checker.Status().LastError)

	mock.ExpectPing()
	err = checker.Check(context.Background())
	assert.NoError(t, err)
	assert.True(t, checker.IsHealthy())
	assert.Empty(t, checker.Status().LastError)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthCheckerBackgroundMonitoring(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 10; i++ {
		mock.ExpectPing()
	}

	checker := NewHealthChecker(db, zap.NewNop())
	checker.SetInterval(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Start(ctx)
		close(done)
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done

	assert.True(t, checker.IsHealthy())
}
