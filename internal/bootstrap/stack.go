package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-orders/internal/cart"
	"github.com/angelmondragon/marketplace-orders/internal/ledger"
	"github.com/angelmondragon/marketplace-orders/internal/localstore"
	"github.com/angelmondragon/marketplace-orders/internal/notifications"
	"github.com/angelmondragon/marketplace-orders/internal/orders"
	"github.com/angelmondragon/marketplace-orders/internal/projections"
	"github.com/angelmondragon/marketplace-orders/internal/returns"
	"github.com/angelmondragon/marketplace-orders/internal/reviews"
	"github.com/angelmondragon/marketplace-orders/pkg/config"
	"github.com/angelmondragon/marketplace-orders/pkg/db"
	"github.com/angelmondragon/marketplace-orders/pkg/db/models"
	"github.com/angelmondragon/marketplace-orders/pkg/eventbus"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	"github.com/angelmondragon/marketplace-orders/pkg/metrics"
	"github.com/angelmondragon/marketplace-orders/pkg/migrate"
	"github.com/angelmondragon/marketplace-orders/pkg/outbox"
	"github.com/angelmondragon/marketplace-orders/pkg/redis"
	"github.com/angelmondragon/marketplace-orders/pkg/snapshot"
)

const (
	ModeRemote = config.OrdersModeRemote
	ModeLocal  = config.OrdersModeLocal

	probeTimeout = 3 * time.Second
)

// Params feeds Build. Redis is optional in every mode; when set, local mode
// keeps its snapshots there instead of in process memory.
type Params struct {
	Config  *config.Config
	Logger  *logger.Logger
	Redis   *redis.Client
	Metrics *metrics.OrderMetrics
	Now     func() time.Time
}

// Stack is the wired order domain shared by the api and the cron worker.
type Stack struct {
	Mode string

	// DB is the Postgres (or sqlite flag) client in remote mode and the local
	// sqlite file in local mode. It backs the ledger, projections,
	// notifications and reviews either way.
	DB *db.Client
	// Outbox is nil in local mode; nothing is queued for brokers there.
	Outbox *outbox.Repository

	Bus           *eventbus.Bus
	Backend       orders.Backend
	Engine        *orders.Engine
	Cart          cart.Service
	Ledger        *ledger.Service
	Projections   *projections.Service
	Dispatcher    *notifications.Dispatcher
	Notifications notifications.Service
	NotifyRepo    notifications.Repository
	Reviews       *reviews.Service
	Returns       *returns.Service

	closers []func() error
}

// Build resolves the storage mode and wires every order service. In auto mode
// an unreachable database downgrades to local mode with a warning rather than
// failing the boot.
func Build(ctx context.Context, p Params) (*Stack, error) {
	if p.Config == nil {
		return nil, errors.New("config required")
	}
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	cfg, logg := p.Config, p.Logger

	st := &Stack{Bus: eventbus.New(logg)}
	mode := cfg.Orders.NormalizedMode()
	switch mode {
	case config.OrdersModeRemote:
		if err := st.openRemote(ctx, cfg, logg); err != nil {
			return nil, err
		}
	case config.OrdersModeLocal:
		if err := st.openLocal(ctx, cfg, logg, p.Redis); err != nil {
			return nil, err
		}
	default:
		if err := st.openRemote(ctx, cfg, logg); err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "database unreachable, falling back to local order storage")
			if err := st.openLocal(ctx, cfg, logg, p.Redis); err != nil {
				return nil, err
			}
		}
	}

	if err := st.wireServices(p); err != nil {
		_ = st.Close()
		return nil, err
	}
	logg.Info(logg.WithField(ctx, "mode", st.Mode), "order storage ready")
	return st, nil
}

func (st *Stack) openRemote(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	client, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := client.Ping(probeCtx); err != nil {
		_ = client.Close()
		return fmt.Errorf("ping database: %w", err)
	}
	if err := migrate.Bootstrap(ctx, cfg, logg, client); err != nil {
		_ = client.Close()
		return err
	}

	outboxRepo := outbox.NewRepository(client.DB())
	backend, err := orders.NewRepository(client.DB(), client, outbox.NewService(outboxRepo, logg))
	if err != nil {
		_ = client.Close()
		return err
	}
	cartSvc, err := cart.NewService(cart.NewRepository(client.DB()))
	if err != nil {
		_ = client.Close()
		return err
	}

	st.Mode = ModeRemote
	st.DB = client
	st.Outbox = outboxRepo
	st.Backend = backend
	st.Cart = cartSvc
	st.closers = append(st.closers, client.Close)
	return nil
}

func (st *Stack) openLocal(ctx context.Context, cfg *config.Config, logg *logger.Logger, redisClient *redis.Client) error {
	var store snapshot.Store = snapshot.NewMemoryStore()
	if redisClient != nil {
		rs, err := snapshot.NewRedisStore(redisClient, redis.IsNil)
		if err != nil {
			return err
		}
		store = rs
	} else {
		logg.Warn(ctx, "no redis configured, local orders live in process memory")
	}

	local, err := localstore.New(store, cfg.Orders.SnapshotStore)
	if err != nil {
		return err
	}
	cartSvc, err := cart.NewService(local)
	if err != nil {
		return err
	}

	client, err := db.OpenSQLite(cfg.DB.SQLitePath)
	if err != nil {
		return err
	}
	if err := client.AutoMigrate(models.All()...); err != nil {
		_ = client.Close()
		return err
	}

	st.Mode = ModeLocal
	st.DB = client
	st.Backend = local
	st.Cart = cartSvc
	st.closers = append(st.closers, client.Close)
	return nil
}

func (st *Stack) wireServices(p Params) error {
	cfg, logg := p.Config, p.Logger
	conn := st.DB.DB()

	engine, err := orders.NewEngine(st.Backend, st.Bus, logg, orders.Options{
		ReturnWindowDays: cfg.Orders.ReturnWindowDays,
		Metrics:          p.Metrics,
		Now:              p.Now,
	})
	if err != nil {
		return err
	}
	st.Engine = engine

	if st.Ledger, err = ledger.NewService(ledger.NewRepository(conn), st.DB, logg); err != nil {
		return err
	}
	if st.Projections, err = projections.NewService(projections.NewRepository(conn), st.DB, logg); err != nil {
		return err
	}

	st.NotifyRepo = notifications.NewRepository(conn)
	feed := notifications.NewFeed(cfg.Orders.NotificationFeedLimit, nil)
	if st.Dispatcher, err = notifications.NewDispatcher(st.NotifyRepo, feed, logg); err != nil {
		return err
	}
	if st.Notifications, err = notifications.NewService(st.NotifyRepo, feed); err != nil {
		return err
	}
	if st.Reviews, err = reviews.NewService(reviews.NewRepository(conn), engine, logg); err != nil {
		return err
	}
	if st.Returns, err = returns.NewService(engine, logg); err != nil {
		return err
	}

	st.Bus.Subscribe("ledger", st.Ledger.HandleEvent)
	st.Bus.Subscribe("projections", st.Projections.HandleEvent)
	st.Bus.Subscribe("notifications", st.Dispatcher.HandleEvent)
	return nil
}

// Close releases every connection Build opened.
func (st *Stack) Close() error {
	var errs error
	for i := len(st.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, st.closers[i]())
	}
	st.closers = nil
	return errs
}
