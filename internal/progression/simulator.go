package progression

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-orders/internal/orders"
	"github.com/angelmondragon/marketplace-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
)

const (
	DefaultConfirmDelay = 10 * time.Second
	DefaultShipDelay    = 30 * time.Second

	stepTimeout = 15 * time.Second
	stepNote    = "automatic progression"
)

type transitioner interface {
	Transition(ctx context.Context, input orders.TransitionInput) (*orders.TransitionResult, error)
}

type Config struct {
	ConfirmDelay time.Duration
	ShipDelay    time.Duration
}

// Simulator drives new orders through confirmation and shipping on a timer,
// acting as the system. Timers are never cancelled when an order moves on by
// other means; the transition guard turns a late step into a no-op.
type Simulator struct {
	engine       transitioner
	scheduler    Scheduler
	logg         *logger.Logger
	confirmDelay time.Duration
	shipDelay    time.Duration
}

func NewSimulator(engine transitioner, scheduler Scheduler, logg *logger.Logger, cfg Config) (*Simulator, error) {
	if engine == nil {
		return nil, fmt.Errorf("order engine required")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("scheduler required")
	}
	if cfg.ConfirmDelay <= 0 {
		cfg.ConfirmDelay = DefaultConfirmDelay
	}
	if cfg.ShipDelay <= 0 {
		cfg.ShipDelay = DefaultShipDelay
	}
	return &Simulator{
		engine:       engine,
		scheduler:    scheduler,
		logg:         logg,
		confirmDelay: cfg.ConfirmDelay,
		shipDelay:    cfg.ShipDelay,
	}, nil
}

// Start schedules both steps for orderID, measured from now.
func (s *Simulator) Start(orderID uuid.UUID) []Handle {
	return []Handle{
		s.scheduler.Schedule(s.confirmDelay, func() {
			s.fire(orderID, enums.OrderStatusConfirmed)
		}),
		s.scheduler.Schedule(s.shipDelay, func() {
			s.fire(orderID, enums.OrderStatusShipped)
		}),
	}
}

// fire runs a timer step. Nobody waits on a timer, so the failure is logged
// here; the sweep job picks the order up later.
func (s *Simulator) fire(orderID uuid.UUID, target enums.OrderStatus) {
	ctx := context.Background()
	if err := s.Step(ctx, orderID, target); err != nil && s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, orderID.String())
		logCtx = s.logg.WithField(logCtx, "target", target)
		s.logg.Error(logCtx, "scheduled progression step failed", err)
	}
}

// Step requests one system transition. A guard rejection means the order
// already moved on and is logged as stale; it is not an error. Other
// failures are returned for the caller to report.
func (s *Simulator) Step(ctx context.Context, orderID uuid.UUID, target enums.OrderStatus) error {
	ctx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	logCtx := ctx
	if s.logg != nil {
		logCtx = s.logg.WithOrderID(ctx, orderID.String())
		logCtx = s.logg.WithField(logCtx, "target", target)
	}
	_, err := s.engine.Transition(ctx, orders.TransitionInput{
		OrderID:   orderID,
		Target:    target,
		ActorRole: enums.ActorRoleSystem,
		Note:      stepNote,
	})
	switch {
	case err == nil:
		return nil
	case pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition), pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		if s.logg != nil {
			s.logg.Info(logCtx, "stale progression step skipped")
		}
		return nil
	default:
		return err
	}
}

func (s *Simulator) ConfirmDelay() time.Duration { return s.confirmDelay }

func (s *Simulator) ShipDelay() time.Duration { return s.shipDelay }
