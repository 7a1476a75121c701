package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xynes/accounts-service/pkg/queue"
)

// WorkspaceCleaner deletes a workspace and its memberships.
type WorkspaceCleaner interface {
	DeleteWorkspace(ctx context.Context, id string) error
}

// InviteReverter returns an accepted invite to pending.
type InviteReverter interface {
	RevertAccepted(ctx context.Context, id string) (bool, error)
}

// MemberCleaner deletes a single membership.
type MemberCleaner interface {
	DeleteMember(ctx context.Context, workspaceID, userID string) error
}

// JobQueue is the queue the processor consumes.
type JobQueue interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// CompensationProcessor replays compensating writes that failed inline.
type CompensationProcessor struct {
	workspaces WorkspaceCleaner
	invites    InviteReverter
	members    MemberCleaner
	queue      JobQueue
	logger     *zap.Logger

	pollTimeout time.Duration
	backoff     time.Duration
}

// NewCompensationProcessor creates a compensation processor.
func NewCompensationProcessor(ws WorkspaceCleaner, inv InviteReverter, mem MemberCleaner, q JobQueue, logger *zap.Logger) *CompensationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompensationProcessor{
		workspaces:  ws,
		invites:     inv,
		members:     mem,
		queue:       q,
		logger:      logger,
		pollTimeout: 5 * time.Second,
		backoff:     queue.RetryBackoff,
	}
}

// Process executes one compensation job. Every job is idempotent: deleting
// rows that are already gone or reverting an invite that is no longer
// accepted both succeed.
func (p *CompensationProcessor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeWorkspaceCleanup:
		var payload queue.WorkspaceCleanupPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		if err := p.workspaces.DeleteWorkspace(ctx, payload.WorkspaceID); err != nil {
			return fmt.Errorf("delete workspace %s: %w", payload.WorkspaceID, err)
		}
		p.logger.Info("workspace cleanup completed", zap.String("workspace_id", payload.WorkspaceID))

	case queue.JobTypeInviteRevert:
		var payload queue.InviteRevertPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		reverted, err := p.invites.RevertAccepted(ctx, payload.InviteID)
		if err != nil {
			return fmt.Errorf("revert invite %s: %w", payload.InviteID, err)
		}
		p.logger.Info("invite revert completed", zap.String("invite_id", payload.InviteID), zap.Bool("reverted", reverted))

	case queue.JobTypeMemberCleanup:
		var payload queue.MemberCleanupPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		if err := p.members.DeleteMember(ctx, payload.WorkspaceID, payload.UserID); err != nil {
			return fmt.Errorf("delete member %s/%s: %w", payload.WorkspaceID, payload.UserID, err)
		}
		p.logger.Info("member cleanup completed",
			zap.String("workspace_id", payload.WorkspaceID),
			zap.String("user_id", payload.UserID))

	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. It returns
// when ctx is cancelled.
func (p *CompensationProcessor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			p.logger.Info("compensation worker stopping")
			return
		}

		job, err := p.queue.Dequeue(ctx, p.pollTimeout)
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
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(context.WithoutCancel(ctx), job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *CompensationProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
