package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
)

const defaultSweepLimit = 200

type staleOrderReader interface {
	StaleOrders(ctx context.Context, status enums.OrderStatus, cutoff time.Time, limit int) ([]models.Order, error)
}

type progressionStepper interface {
	Step(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) error
	ConfirmDelay() time.Duration
	ShipDelay() time.Duration
}

type ProgressionJobParams struct {
	Logger    *logger.Logger
	Orders    staleOrderReader
	Simulator progressionStepper
	Limit     int
}

// NewProgressionJob re-drives automatic progression for orders whose
// in-process timers were lost, for example across a restart. A pending order
// older than the confirm delay is confirmed; a confirmed order that has sat
// for the ship delay is shipped.
func NewProgressionJob(params ProgressionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if params.Simulator == nil {
		return nil, fmt.Errorf("progression simulator required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	return &progressionJob{
		logg:      params.Logger,
		orders:    params.Orders,
		simulator: params.Simulator,
		limit:     limit,
		now:       time.Now,
	}, nil
}

type progressionJob struct {
	logg      *logger.Logger
	orders    staleOrderReader
	simulator progressionStepper
	limit     int
	now       func() time.Time
}

func (j *progressionJob) Name() string { return "order-progression" }

type sweepStep struct {
	from  enums.OrderStatus
	to    enums.OrderStatus
	delay time.Duration
}

func (j *progressionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	steps := []sweepStep{
		{from: enums.OrderStatusPending, to: enums.OrderStatusConfirmed, delay: j.simulator.ConfirmDelay()},
		{from: enums.OrderStatusConfirmed, to: enums.OrderStatusShipped, delay: j.simulator.ShipDelay()},
	}

	var errs error
	advanced := 0
	for _, step := range steps {
		stale, err := j.orders.StaleOrders(ctx, step.from, now.Add(-step.delay), j.limit)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("list %s orders: %w", step.from, err))
			continue
		}
		for _, order := range stale {
			if err := j.simulator.Step(ctx, order.ID, step.to); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("advance %s to %s: %w", order.ID, step.to, err))
				continue
			}
			advanced++
		}
	}

	logCtx := j.logg.WithField(ctx, "orders_advanced", advanced)
	j.logg.Info(logCtx, "progression sweep complete")
	return errs
}
