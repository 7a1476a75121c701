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
	// QueueCompensations is the Redis list key for compensation jobs.
	QueueCompensations = "worker:compensations"
	// QueueDLQ is the dead-letter queue for jobs that exhausted their retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of attempts before a job moves to the DLQ.
	MaxRetries = 5
	// RetryBackoff is the delay after a failed attempt.
	RetryBackoff = 5 * time.Second
)

// ErrDisabled is returned when no Redis client is configured.
var ErrDisabled = errors.New("compensation queue disabled")

// JobType identifies the compensating write to replay.
type JobType string

const (
	JobTypeWorkspaceCleanup JobType = "workspace_cleanup"
	JobTypeInviteRevert     JobType = "invite_revert"
	JobTypeMemberCleanup    JobType = "member_cleanup"
)

// WorkspaceCleanupPayload removes a workspace whose owner role was never granted.
type WorkspaceCleanupPayload struct {
	WorkspaceID string `json:"workspaceId"`
}

// InviteRevertPayload returns an accepted invite to pending.
type InviteRevertPayload struct {
	InviteID string `json:"inviteId"`
}

// MemberCleanupPayload removes a membership created by a failed accept.
type MemberCleanupPayload struct {
	WorkspaceID string `json:"workspaceId"`
	UserID      string `json:"userId"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Queue enqueues and dequeues compensation jobs via Redis. A nil *Queue is
// valid and rejects every enqueue with ErrDisabled.
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

// EnqueueWorkspaceCleanup enqueues a workspace cleanup job.
func (q *Queue) EnqueueWorkspaceCleanup(ctx context.Context, payload WorkspaceCleanupPayload) error {
	return q.enqueue(ctx, JobTypeWorkspaceCleanup, payload)
}

// EnqueueInviteRevert enqueues an invite revert job.
func (q *Queue) EnqueueInviteRevert(ctx context.Context, payload InviteRevertPayload) error {
	return q.enqueue(ctx, JobTypeInviteRevert, payload)
}

// EnqueueMemberCleanup enqueues a membership cleanup job.
func (q *Queue) EnqueueMemberCleanup(ctx context.Context, payload MemberCleanupPayload) error {
	return q.enqueue(ctx, JobTypeMemberCleanup, payload)
}

func (q *Queue) enqueue(ctx context.Context, jobType JobType, payload interface{}) error {
	if q == nil || q.client == nil {
		return ErrDisabled
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	job := Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, QueueCompensations, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	q.logger.Debug("enqueued compensation job", zap.String("job_id", job.ID), zap.String("type", string(jobType)))
	return nil
}

// Dequeue blocks up to timeout for a job. It returns nil when none arrived
// or the entry could not be decoded.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	if q == nil || q.client == nil {
		return nil, ErrDisabled
	}
	result, err := q.client.BLPop(ctx, timeout, QueueCompensations).Result()
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

// Retry re-enqueues a job with incremented attempt. If attempt >= MaxRetries, pushes to DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	if q == nil || q.client == nil {
		return ErrDisabled
	}
	job.Attempt++
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Attempt >= MaxRetries {
		if err := q.client.RPush(ctx, QueueDLQ, raw).Err(); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.String("type", string(job.Type)), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.client.RPush(ctx, QueueCompensations, raw).Err(); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}
