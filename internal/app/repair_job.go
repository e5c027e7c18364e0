package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fairyhunter13/interview-prep/internal/domain"
	"github.com/fairyhunter13/interview-prep/internal/usecase"
)

// repairLockKey serializes sweeps across replicas sharing a Redis lease.
const repairLockKey = "repair:sweep"

// RepairJob runs the consistency repair over every interview on a cron
// schedule.
type RepairJob struct {
	repair   usecase.RepairService
	locker   domain.Locker
	schedule string
	timeout  time.Duration
	cron     *cron.Cron
}

// NewRepairJob returns nil when schedule is empty.
func NewRepairJob(repair usecase.RepairService, locker domain.Locker, schedule string, timeout time.Duration) *RepairJob {
	if schedule == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &RepairJob{repair: repair, locker: locker, schedule: schedule, timeout: timeout, cron: cron.New()}
}

// Start schedules the sweep. A nil job is a no-op.
func (j *RepairJob) Start() error {
	if j == nil {
		return nil
	}
	if _, err := j.cron.AddFunc(j.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
		defer cancel()
		if _, err := j.RunOnce(ctx); err != nil {
			slog.Error("repair sweep failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("op=app.repair_job.schedule: %w", err)
	}
	j.cron.Start()
	slog.Info("repair job scheduled", slog.String("schedule", j.schedule))
	return nil
}

// Stop stops scheduling and waits for a running sweep up to ctx.
func (j *RepairJob) Stop(ctx context.Context) {
	if j == nil {
		return
	}
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce performs one sweep. A sweep already held elsewhere is skipped
// without error.
func (j *RepairJob) RunOnce(ctx context.Context) (usecase.RepairReport, error) {
	ctx, span := otel.Tracer("jobs.repair").Start(ctx, "RepairJob.RunOnce")
	defer span.End()

	if j.locker != nil {
		release, err := j.locker.Acquire(ctx, repairLockKey)
		if errors.Is(err, domain.ErrConflict) {
			span.SetAttributes(attribute.Bool("repair.skipped", true))
			slog.Info("repair sweep skipped, another sweep holds the lock")
			return usecase.RepairReport{}, nil
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "lock")
			return usecase.RepairReport{}, fmt.Errorf("op=app.repair_job.lock: %w", err)
		}
		defer release()
	}

	start := time.Now()
	rep, err := j.repair.Repair(ctx, usecase.RepairScope{})
	span.SetAttributes(
		attribute.Int("repair.scanned", rep.Scanned),
		attribute.Int("repair.fixed", rep.FixedCount),
		attribute.Int("repair.converted", rep.ConvertedCount),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repair")
		return rep, err
	}
	slog.Info("repair sweep finished",
		slog.Int("scanned", rep.Scanned),
		slog.Int("fixed", rep.FixedCount),
		slog.Int("converted", rep.ConvertedCount),
		slog.Int("unconvertible", len(rep.Unconvertible)),
		slog.Duration("took", time.Since(start)))
	return rep, nil
}
