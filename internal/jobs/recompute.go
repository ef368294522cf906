package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kevin07696/settlement-service/internal/domain"
	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	svcports "github.com/kevin07696/settlement-service/internal/services/ports"
	"github.com/kevin07696/settlement-service/pkg/observability"
	"github.com/kevin07696/settlement-service/pkg/timeutil"
)

// Task states recorded in metrics
const (
	statusEnqueued  = "enqueued"
	statusDuplicate = "duplicate"
	statusSucceeded = "succeeded"
	statusSkipped   = "skipped"
	statusFailed    = "failed"
)

// Enqueuer is the subset of *asynq.Client used to submit tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// FanOutResult summarises one week fan-out.
type FanOutResult struct {
	WeekID     string   `json:"week_id"`
	Enqueued   int      `json:"enqueued"`
	Duplicates int      `json:"duplicates"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

// Dispatcher enqueues recompute tasks for every active driver.
type Dispatcher struct {
	client   Enqueuer
	drivers  ports.DriverRepository
	queue    string
	maxRetry int
	logger   ports.Logger
	now      func() time.Time
}

// NewDispatcher creates a dispatcher submitting to queue
func NewDispatcher(client Enqueuer, drivers ports.DriverRepository, queue string, maxRetry int, logger ports.Logger) *Dispatcher {
	return &Dispatcher{
		client:   client,
		drivers:  drivers,
		queue:    queue,
		maxRetry: maxRetry,
		logger:   logger,
		now:      timeutil.Now,
	}
}

// ResolveWeek validates weekID, defaulting to the previous ISO week.
func (d *Dispatcher) ResolveWeek(weekID string) (string, error) {
	if weekID == "" {
		return timeutil.ISOWeekID(d.now().AddDate(0, 0, -7)), nil
	}
	if _, err := models.ParseWeek(weekID); err != nil {
		return "", domain.WrapError(domain.ErrorCodeInvalidInput, "invalid week identifier", err).
			WithDetail("week_id", weekID)
	}
	return weekID, nil
}

// EnqueueWeek submits one recompute task per active driver. A task already
// queued for the same driver week is counted as a duplicate, not a failure.
func (d *Dispatcher) EnqueueWeek(ctx context.Context, weekID string, force bool) (*FanOutResult, error) {
	weekID, err := d.ResolveWeek(weekID)
	if err != nil {
		return nil, err
	}
	ids, err := d.drivers.ListActiveIDs(ctx, nil)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeStorageFailure, "list active drivers", err)
	}

	res := &FanOutResult{WeekID: weekID}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		task, err := NewRecomputeTask(RecomputePayload{DriverID: id, WeekID: weekID, Force: force})
		if err != nil {
			return res, err
		}
		_, err = d.client.EnqueueContext(ctx, task, asynq.Queue(d.queue), asynq.MaxRetry(d.maxRetry))
		switch {
		case err == nil:
			res.Enqueued++
			observability.RecordRecomputeTask(statusEnqueued)
		case errors.Is(err, asynq.ErrTaskIDConflict), errors.Is(err, asynq.ErrDuplicateTask):
			res.Duplicates++
			observability.RecordRecomputeTask(statusDuplicate)
		default:
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", id, err))
			d.logger.Warn("enqueue recompute task failed",
				ports.DriverID(id),
				ports.WeekID(weekID),
				ports.Err(err))
		}
	}

	d.logger.Info("recompute week dispatched",
		ports.WeekID(weekID),
		ports.Int("enqueued", res.Enqueued),
		ports.Int("duplicates", res.Duplicates),
		ports.Int("failed", res.Failed))
	return res, nil
}

// HandleRecomputeWeek processes TaskRecomputeWeek tasks.
func (d *Dispatcher) HandleRecomputeWeek(ctx context.Context, t *asynq.Task) error {
	var p RecomputeWeekPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("decode recompute week payload: %v: %w", err, asynq.SkipRetry)
	}
	res, err := d.EnqueueWeek(ctx, p.WeekID, p.Force)
	if err != nil {
		if domain.IsValidationError(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d recompute tasks failed to enqueue", res.Failed, res.Failed+res.Enqueued+res.Duplicates)
	}
	return nil
}

// RecomputeHandler recomputes one driver week.
type RecomputeHandler struct {
	settlements svcports.SettlementService
	logger      ports.Logger
}

// NewRecomputeHandler creates the per-driver task handler
func NewRecomputeHandler(settlements svcports.SettlementService, logger ports.Logger) *RecomputeHandler {
	return &RecomputeHandler{settlements: settlements, logger: logger}
}

// Handle processes TaskRecompute tasks. Missing drivers, empty weeks and
// bad payloads are final; storage failures are retried by asynq.
func (h *RecomputeHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var p RecomputePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		observability.RecordRecomputeTask(statusFailed)
		return fmt.Errorf("decode recompute payload: %v: %w", err, asynq.SkipRetry)
	}

	rec, err := h.settlements.GetDriverWeekSettlement(ctx, p.DriverID, p.WeekID, p.Force)
	switch {
	case err == nil:
		observability.RecordRecomputeTask(statusSucceeded)
		h.logger.Debug("settlement recomputed",
			ports.DriverID(p.DriverID),
			ports.WeekID(p.WeekID),
			ports.String("payment_status", string(rec.PaymentStatus)),
			ports.Money("net_payable", rec.NetPayable))
		return nil
	case domain.IsNotFoundError(err), domain.IsNoDataError(err), domain.IsValidationError(err):
		observability.RecordRecomputeTask(statusSkipped)
		h.logger.Info("settlement recompute skipped",
			ports.DriverID(p.DriverID),
			ports.WeekID(p.WeekID),
			ports.String("code", string(domain.GetErrorCode(err))))
		return nil
	default:
		observability.RecordRecomputeTask(statusFailed)
		h.logger.Error("settlement recompute failed",
			ports.DriverID(p.DriverID),
			ports.WeekID(p.WeekID),
			ports.Err(err))
		return err
	}
}
