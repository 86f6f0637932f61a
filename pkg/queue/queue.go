package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueExports is the Redis list key for roster export jobs.
	QueueExports = "worker:exports"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of times to retry a job before moving to DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
	// StatusTTL is how long export job status is kept.
	StatusTTL = 24 * time.Hour

	statusKeyPrefix = "export:job:"
	popTimeout      = 5 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeRosterExport JobType = "roster_export"
)

// ExportPayload is the payload for roster export jobs.
type ExportPayload struct {
	TrainingID int64 `json:"pelatihan_id"`
}

// ExportState is the lifecycle state of an export job.
type ExportState string

const (
	ExportPending ExportState = "pending"
	ExportRunning ExportState = "running"
	ExportDone    ExportState = "done"
	ExportFailed  ExportState = "failed"
)

// ExportStatus is the stored progress of one export job.
type ExportStatus struct {
	JobID      string      `json:"job_id"`
	TrainingID int64       `json:"pelatihan_id"`
	Status     ExportState `json:"status"`
	ObjectKey  string      `json:"object_key,omitempty"`
	Error      string      `json:"error,omitempty"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// EnqueueExport records a pending status and enqueues a roster export job. It
// returns the job id callers poll with ExportStatus.
func (q *Queue) EnqueueExport(ctx context.Context, trainingID int64) (string, error) {
	body, err := json.Marshal(ExportPayload{TrainingID: trainingID})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      JobTypeRosterExport,
		Payload:   body,
		Attempt:   0,
		CreatedAt: time.Now(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	if err := q.SetExportStatus(ctx, ExportStatus{JobID: job.ID, TrainingID: trainingID, Status: ExportPending}); err != nil {
		return "", err
	}
	if err := q.client.RPush(ctx, QueueExports, raw).Err(); err != nil {
		return "", fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued roster export job", zap.String("job_id", job.ID), zap.Int64("pelatihan_id", trainingID))
	return job.ID, nil
}

// SetExportStatus stores st under its job id, replacing any earlier state.
func (q *Queue) SetExportStatus(ctx context.Context, st ExportStatus) error {
	st.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := q.client.Set(ctx, statusKeyPrefix+st.JobID, raw, StatusTTL).Err(); err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}

// ExportStatus returns the stored status of a job, or nil when unknown or expired.
func (q *Queue) ExportStatus(ctx context.Context, jobID string) (*ExportStatus, error) {
	raw, err := q.client.Get(ctx, statusKeyPrefix+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	var st ExportStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &st, nil
}

// Dequeue waits a few seconds for a job. It returns nil when none arrived so
// callers can observe ctx between polls.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, popTimeout, QueueExports).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes
// to DLQ instead and reports dead as true.
func (q *Queue) Retry(ctx context.Context, job *Job) (dead bool, err error) {
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return false, err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return false, err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return true, nil
	}
	if err := q.client.RPush(ctx, QueueExports, raw).Err(); err != nil {
		return false, err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return false, nil
}
