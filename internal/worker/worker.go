package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/ikatan-anggota/backend/internal/apperr"
	"github.com/ikatan-anggota/backend/internal/metrics"
	"github.com/ikatan-anggota/backend/internal/registrations"
	"github.com/ikatan-anggota/backend/pkg/queue"
	"github.com/ikatan-anggota/backend/pkg/storage"
)

// Jobs is the queue side the processor consumes.
type Jobs interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (bool, error)
	SetExportStatus(ctx context.Context, st queue.ExportStatus) error
}

// RosterExporter builds a training's roster workbook.
type RosterExporter interface {
	ExportRoster(ctx context.Context, trainingID int64) ([]byte, string, error)
}

// Uploader stores a finished workbook.
type Uploader interface {
	Upload(ctx context.Context, bucket, key, contentType string, body io.Reader, contentLength int64) (string, error)
	ExportsBucket() string
}

// ExportProcessor processes roster export jobs: build the workbook, upload it to S3
// and record the job status.
type ExportProcessor struct {
	exporter RosterExporter
	uploader Uploader
	jobs     Jobs
	metrics  *metrics.Metrics
	logger   *zap.Logger
	backoff  time.Duration
}

// NewExportProcessor creates a roster export processor.
func NewExportProcessor(exporter RosterExporter, uploader Uploader, jobs Jobs, m *metrics.Metrics, logger *zap.Logger) *ExportProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportProcessor{
		exporter: exporter,
		uploader: uploader,
		jobs:     jobs,
		metrics:  m,
		logger:   logger,
		backoff:  queue.RetryBackoff,
	}
}

// errPermanent marks failures a retry cannot fix.
type errPermanent struct{ err error }

func (e errPermanent) Error() string { return e.err.Error() }
func (e errPermanent) Unwrap() error { return e.err }

// Process executes one roster export job.
func (p *ExportProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeRosterExport {
		return errPermanent{fmt.Errorf("unknown job type: %s", job.Type)}
	}
	var payload queue.ExportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return errPermanent{fmt.Errorf("unmarshal payload: %w", err)}
	}
	status := queue.ExportStatus{JobID: job.ID, TrainingID: payload.TrainingID, Status: queue.ExportRunning}
	if err := p.jobs.SetExportStatus(ctx, status); err != nil {
		p.logger.Warn("set running status failed", zap.Error(err), zap.String("job_id", job.ID))
	}

	b, _, err := p.exporter.ExportRoster(ctx, payload.TrainingID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return errPermanent{err}
		}
		return fmt.Errorf("build roster: %w", err)
	}

	key := storage.ExportKey(payload.TrainingID, job.ID)
	if _, err := p.uploader.Upload(ctx, p.uploader.ExportsBucket(), key, registrations.SpreadsheetContentType,
		bytes.NewReader(b), int64(len(b))); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}

	status.Status = queue.ExportDone
	status.ObjectKey = key
	if err := p.jobs.SetExportStatus(ctx, status); err != nil {
		return fmt.Errorf("set done status: %w", err)
	}
	p.metrics.ExportJob(string(queue.ExportDone))
	p.logger.Info("roster export completed", zap.String("job_id", job.ID), zap.Int64("pelatihan_id", payload.TrainingID), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ExportProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("export worker stopping")
			return
		default:
		}

		job, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.handleFailure(ctx, job, err)
		}
	}
}

func (p *ExportProcessor) handleFailure(ctx context.Context, job *queue.Job, err error) {
	p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))

	var perm errPermanent
	dead := errors.As(err, &perm)
	if !dead {
		var reErr error
		dead, reErr = p.jobs.Retry(ctx, job)
		if reErr != nil {
			p.logger.Error("retry enqueue failed", zap.Error(reErr))
		}
	}
	if dead {
		p.fail(ctx, job, err)
		return
	}
	p.sleep(ctx)
}

func (p *ExportProcessor) fail(ctx context.Context, job *queue.Job, cause error) {
	var payload queue.ExportPayload
	_ = json.Unmarshal(job.Payload, &payload)
	st := queue.ExportStatus{
		JobID:      job.ID,
		TrainingID: payload.TrainingID,
		Status:     queue.ExportFailed,
		Error:      apperr.Message(cause),
	}
	if err := p.jobs.SetExportStatus(ctx, st); err != nil {
		p.logger.Error("set failed status failed", zap.Error(err), zap.String("job_id", job.ID))
	}
	p.metrics.ExportJob(string(queue.ExportFailed))
}

func (p *ExportProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
