package importer

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finbook/internal/repository/sqlite"
	"finbook/internal/service"
)

func newTestManager(t *testing.T) (Manager, int64) {
	t.Helper()

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	users := sqlite.NewUserRepository(db)
	operations := sqlite.NewOperationRepository(db)
	require.NoError(t, users.Init(ctx))
	require.NoError(t, operations.Init(ctx))

	userSvc := service.NewUserService(users, 4)
	user, err := userSvc.Register(ctx, "a@x.com", "a", "password")
	require.NoError(t, err)

	opSvc := service.NewOperationService(operations)
	reports := service.NewReportService(opSvc)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	mgr := NewManager(Config{MaxConcurrent: 1, Logger: logger}, reports)
	require.NoError(t, mgr.Start(ctx))
	t.Cleanup(mgr.Shutdown)

	return mgr, user.ID
}

func waitForJob(t *testing.T, mgr Manager, userID int64, jobID string) *Job {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := mgr.Job(userID, jobID)
		require.True(t, ok)
		if job.Status == JobStatusCompleted || job.Status == JobStatusFailed {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish in time", jobID)
	return nil
}

func TestEnqueueCompletes(t *testing.T) {
	mgr, userID := newTestManager(t)

	csv := "date,kind,amount,description\n2024-01-01,income,100.00,salary\n"
	jobID, err := mgr.Enqueue(userID, "report.csv", []byte(csv))
	require.NoError(t, err)

	job := waitForJob(t, mgr, userID, jobID)
	assert.Equal(t, JobStatusCompleted, job.Status)
	require.NotNil(t, job.Reconciliation)
	assert.Equal(t, int64(1), job.Reconciliation.RowsDifference)
	require.NotNil(t, job.FinishedAt)
}

func TestEnqueueMalformedFails(t *testing.T) {
	mgr, userID := newTestManager(t)

	csv := "date,kind,amount,description\n2024-01-01,transfer,100.00,bad\n"
	jobID, err := mgr.Enqueue(userID, "report.csv", []byte(csv))
	require.NoError(t, err)

	job := waitForJob(t, mgr, userID, jobID)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.NotEmpty(t, job.ErrorMessage)
	assert.Nil(t, job.Reconciliation)
}

func TestJobIsOwnerScoped(t *testing.T) {
	mgr, userID := newTestManager(t)

	jobID, err := mgr.Enqueue(userID, "report.csv", []byte("date,kind,amount,description\n"))
	require.NoError(t, err)

	_, ok := mgr.Job(userID+1, jobID)
	assert.False(t, ok)

	_, ok = mgr.Job(userID, "missing")
	assert.False(t, ok)
}
