package importer

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"finbook/internal/service"
)

// JobStatus tracks the lifecycle of a queued import.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is a snapshot of a queued CSV import.
type Job struct {
	ID             string
	UserID         int64
	Filename       string
	Status         JobStatus
	Reconciliation *service.Reconciliation
	ErrorMessage   string
	CreatedAt      time.Time
	FinishedAt     *time.Time
}

// Manager runs CSV imports off the request path with bounded concurrency.
// Job state is held in memory only; callers poll by job id.
type Manager interface {
	Start(ctx context.Context) error
	Shutdown()
	Enqueue(userID int64, filename string, data []byte) (string, error)
	Job(userID int64, id string) (*Job, bool)
}

type Config struct {
	MaxConcurrent int
	Logger        *logrus.Logger
}

type manager struct {
	cfg     Config
	reports service.ReportService

	sem    chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	jobs   map[string]*Job
}

func NewManager(cfg Config, reports service.ReportService) Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &manager{
		cfg:     cfg,
		reports: reports,
		sem:     make(chan struct{}, cfg.MaxConcurrent),
		jobs:    make(map[string]*Job),
	}
}

func (m *manager) Start(ctx context.Context) error {
	if m.ctx != nil {
		return fmt.Errorf("import manager already started")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.cfg.Logger.Infof("import manager started, max concurrent imports: %d", m.cfg.MaxConcurrent)
	return nil
}

func (m *manager) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Enqueue registers a job and schedules it. The file content is copied up
// front so the multipart request body can be closed immediately.
func (m *manager) Enqueue(userID int64, filename string, data []byte) (string, error) {
	if m.ctx == nil {
		return "", fmt.Errorf("import manager not started")
	}

	job := &Job{
		ID:        uuid.NewString(),
		UserID:    userID,
		Filename:  filename,
		Status:    JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(job, data)

	return job.ID, nil
}

// Job returns a copy of the job state, scoped to its owner.
func (m *manager) Job(userID int64, id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok || job.UserID != userID {
		return nil, false
	}
	snapshot := *job
	return &snapshot, true
}

func (m *manager) run(job *Job, data []byte) {
	defer m.wg.Done()

	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-m.ctx.Done():
		m.finish(job, nil, m.ctx.Err())
		return
	}

	m.setStatus(job, JobStatusRunning)
	m.cfg.Logger.Infof("import job %s started (user %d, file %s)", job.ID, job.UserID, job.Filename)

	rec, err := m.reports.Import(m.ctx, job.UserID, job.Filename, bytes.NewReader(data))
	m.finish(job, rec, err)

	if err != nil {
		m.cfg.Logger.Warnf("import job %s failed: %v", job.ID, err)
	} else {
		m.cfg.Logger.Infof("import job %s completed, %d rows added", job.ID, rec.RowsDifference)
	}
}

func (m *manager) setStatus(job *Job, status JobStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Status = status
}

func (m *manager) finish(job *Job, rec *service.Reconciliation, err error) {
	now := time.Now().UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	job.FinishedAt = &now
	if err != nil {
		job.Status = JobStatusFailed
		job.ErrorMessage = err.Error()
		return
	}
	job.Status = JobStatusCompleted
	job.Reconciliation = rec
}
