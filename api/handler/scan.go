package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/use-agent/linkscan/cache"
	"github.com/use-agent/linkscan/config"
	"github.com/use-agent/linkscan/models"
	"github.com/use-agent/linkscan/webhook"
)

// Runner runs one scan. *crawler.Coordinator satisfies it.
type Runner interface {
	RunScanObserved(ctx context.Context, req models.ScanRequest, progress func(pages int)) (*models.ScanReport, error)
}

// Scans serves the scan job endpoints. Scans run in the background; at
// most maxConcurrent run at once and the rest wait queued.
type Scans struct {
	runner   Runner
	store    *cache.Store
	notifier *webhook.Notifier
	sites    *config.File
	slots    *semaphore.Weighted
	logger   *slog.Logger
}

// NewScans creates the scan endpoints. notifier and sites may be nil.
func NewScans(runner Runner, store *cache.Store, notifier *webhook.Notifier, sites *config.File, maxConcurrent int, logger *slog.Logger) *Scans {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scans{
		runner:   runner,
		store:    store,
		notifier: notifier,
		sites:    sites,
		slots:    semaphore.NewWeighted(int64(maxConcurrent)),
		logger:   logger,
	}
}

// Post returns a handler for POST /api/v1/scans.
func (s *Scans) Post() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ScanRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, models.ErrCodeInvalidRequest, err.Error())
			return
		}
		s.sites.Apply(&req)
		if err := req.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": models.DetailFor(err)})
			return
		}

		id := "scan-" + uuid.NewString()
		ctx, cancel := context.WithCancel(context.Background())
		job := &models.ScanJob{
			ID:            id,
			Status:        models.JobQueued,
			URL:           req.URL,
			CreatedAt:     time.Now().Unix(),
			WebhookURL:    req.WebhookURL,
			WebhookSecret: req.WebhookSecret,
		}
		if err := s.store.Put(job, cancel); err != nil {
			cancel()
			respondError(c, http.StatusServiceUnavailable, models.ErrCodeResourceExhausted, "too many scans in progress, retry later")
			return
		}

		go s.run(ctx, cancel, id, req)

		c.JSON(http.StatusAccepted, models.ScanResponse{ID: id, Status: models.JobQueued})
	}
}

// Get returns a handler for GET /api/v1/scans/:id.
func (s *Scans) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := s.store.Get(c.Param("id"))
		if !ok {
			respondError(c, http.StatusNotFound, models.ErrCodeNotFound, "scan job not found")
			return
		}
		c.JSON(http.StatusOK, statusResponse(job))
	}
}

// Delete returns a handler for DELETE /api/v1/scans/:id. The scan is
// canceled and its report finalized as truncated.
func (s *Scans) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		job, ok := s.store.Cancel(c.Param("id"))
		if !ok {
			respondError(c, http.StatusNotFound, models.ErrCodeNotFound, "scan job not found")
			return
		}
		c.JSON(http.StatusAccepted, models.ScanResponse{ID: job.ID, Status: job.Status})
	}
}

// run executes one job and records its outcome.
func (s *Scans) run(ctx context.Context, cancel context.CancelFunc, id string, req models.ScanRequest) {
	defer cancel()
	logger := s.logger.With("job_id", id)

	// ── 1. Wait for a slot ──
	if err := s.slots.Acquire(ctx, 1); err != nil {
		s.finish(id, nil, nil, logger)
		return
	}
	defer s.slots.Release(1)

	// ── 2. Scan ──
	s.store.Update(id, func(j *models.ScanJob) {
		if j.Status == models.JobQueued {
			j.Status = models.JobRunning
		}
	})
	logger.Info("scan job started", "url", req.URL)

	report, err := s.runner.RunScanObserved(ctx, req, func(pages int) {
		s.store.Update(id, func(j *models.ScanJob) { j.PagesVisited = pages })
	})

	// ── 3. Record ──
	s.finish(id, report, err, logger)
}

func (s *Scans) finish(id string, report *models.ScanReport, err error, logger *slog.Logger) {
	var job models.ScanJob
	s.store.Update(id, func(j *models.ScanJob) {
		switch {
		case err != nil:
			j.Status = models.JobFailed
			j.Err = err
		case j.Status == models.JobCanceled:
		default:
			j.Status = models.JobCompleted
		}
		j.Report = report
		if report != nil {
			j.PagesVisited = report.PagesVisited
		}
		j.FinishedAt = time.Now().Unix()
		job = *j
	})

	logger.Info("scan job finished", "status", job.Status, "pages", job.PagesVisited)
	if errors.Is(err, models.ErrResourceExhausted) {
		logger.Warn("scan aborted on resource ceiling", "error", err)
	}

	if s.notifier == nil || job.WebhookURL == "" {
		return
	}
	eventType := webhook.EventCompleted
	switch job.Status {
	case models.JobFailed:
		eventType = webhook.EventFailed
	case models.JobCanceled:
		eventType = webhook.EventCanceled
	}
	s.notifier.DeliverAsync(job.WebhookURL, job.WebhookSecret, &webhook.Event{
		Type:      eventType,
		JobID:     job.ID,
		Timestamp: job.FinishedAt,
		Data:      statusResponse(job),
	})
}

func statusResponse(job models.ScanJob) models.ScanStatusResponse {
	resp := models.ScanStatusResponse{
		ID:           job.ID,
		Status:       job.Status,
		URL:          job.URL,
		PagesVisited: job.PagesVisited,
		Report:       job.Report,
	}
	if job.Err != nil {
		resp.Error = models.DetailFor(job.Err)
	}
	return resp
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": models.ErrorDetail{Code: code, Message: message}})
}
