package cron

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/loopgate/loopgate/internal/convo"
	"github.com/loopgate/loopgate/internal/metrics"
)

// sweepReason is recorded on approvals the sweeper expires. Kept aligned
// with the gate's own timeout wording so the ledger reads uniformly.
const sweepReason = "timed out waiting for human approval"

// ApprovalSweepJob rejects pending approvals older than MaxAge. It backs up
// the gate's own deadline: if the waiting goroutine died (process restart,
// turn cancellation), its approval would otherwise stay pending forever.
type ApprovalSweepJob struct {
	Store        convo.Store
	MaxAge       time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	ScheduleExpr string // empty = default "*/5 * * * *"

	now func() time.Time // test hook
}

// Compile-time interface check.
var _ Job = (*ApprovalSweepJob)(nil)

// Name implements Job.
func (j *ApprovalSweepJob) Name() string { return "approval_sweep" }

// Schedule implements Job.
func (j *ApprovalSweepJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run expires stale pending approvals across all sessions.
func (j *ApprovalSweepJob) Run(ctx context.Context) error {
	now := time.Now
	if j.now != nil {
		now = j.now
	}
	cutoff := now().Add(-j.MaxAge)

	ids, err := j.Store.Sessions()
	if err != nil {
		return err
	}

	var swept int
	for _, sid := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pending, err := j.Store.PendingApprovals(sid)
		if err != nil {
			// Session purged between listing and reading; move on.
			if errors.Is(err, convo.ErrSessionNotFound) {
				continue
			}
			return err
		}
		for _, a := range pending {
			if a.CreatedAt.After(cutoff) {
				continue
			}
			err := j.Store.Resolve(sid, a.ID, convo.DecisionRejected, sweepReason)
			if err != nil {
				// The gate or a human got there first; that is fine.
				if errors.Is(err, convo.ErrApprovalResolved) {
					continue
				}
				return err
			}
			swept++
			j.Metrics.ObserveApprovalResolved("timeout")
			j.logger().Info("cron: expired stale approval",
				"session_id", sid, "approval_id", a.ID, "tool", a.ToolName)
		}
	}
	if swept > 0 {
		j.logger().Info("cron: approval sweep done", "expired", swept)
	}
	return nil
}

func (j *ApprovalSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// SessionRetentionJob purges sessions idle longer than MaxIdle. Sessions
// with approvals still pending are left alone so their audit trail survives
// until the sweeper settles them.
type SessionRetentionJob struct {
	Store        convo.Store
	MaxIdle      time.Duration
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 * * * *"

	now func() time.Time // test hook
}

// Compile-time interface check.
var _ Job = (*SessionRetentionJob)(nil)

// Name implements Job.
func (j *SessionRetentionJob) Name() string { return "session_retention" }

// Schedule implements Job.
func (j *SessionRetentionJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 * * * *"
}

// Run removes idle sessions.
func (j *SessionRetentionJob) Run(ctx context.Context) error {
	now := time.Now
	if j.now != nil {
		now = j.now
	}
	cutoff := now().Add(-j.MaxIdle)

	ids, err := j.Store.Sessions()
	if err != nil {
		return err
	}

	var purged int
	for _, sid := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		snap, err := j.Store.Snapshot(sid)
		if err != nil {
			if errors.Is(err, convo.ErrSessionNotFound) {
				continue
			}
			return err
		}
		if snap.LastUpdated.After(cutoff) || snap.PendingCount > 0 {
			continue
		}
		if err := j.Store.Purge(sid); err != nil {
			return err
		}
		purged++
	}
	if purged > 0 {
		j.logger().Info("cron: purged idle sessions", "count", purged)
	}
	return nil
}

func (j *SessionRetentionJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
