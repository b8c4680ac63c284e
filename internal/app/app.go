// Package app wires the settlement service together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/oolio-settle/internal/domain/customer"
	"github.com/xenking/oolio-settle/internal/domain/ledger"
	"github.com/xenking/oolio-settle/internal/domain/order"
	"github.com/xenking/oolio-settle/internal/domain/sequence"
	"github.com/xenking/oolio-settle/internal/domain/settlement"
	"github.com/xenking/oolio-settle/internal/handler"
	"github.com/xenking/oolio-settle/internal/render"
	"github.com/xenking/oolio-settle/internal/storage/memory"
	"github.com/xenking/oolio-settle/internal/storage/postgres"
	"github.com/xenking/oolio-settle/pkg/health"
	"github.com/xenking/oolio-settle/pkg/httpmiddleware"
)

// stores groups the collaborators of the settlement service.
type stores struct {
	orders    order.Aggregator
	customers customer.Directory
	counters  sequence.Store
	ledger    ledger.Store
	intents   settlement.IntentStore
	// ping is nil for in-memory stores.
	ping  func(ctx context.Context) error
	close func()
}

func openStores(ctx context.Context, lg *zap.Logger, databaseURL string) (*stores, error) {
	if databaseURL == "" {
		lg.Warn("No database configured, state is kept in memory and lost on restart")
		return &stores{
			orders:    memory.NewOrders(),
			customers: memory.NewCustomers(),
			counters:  memory.NewCounters(),
			ledger:    memory.NewLedger(),
			intents:   memory.NewIntents(),
			close:     func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	return &stores{
		orders:    postgres.NewOrderStore(pool),
		customers: postgres.NewCustomerStore(pool),
		counters:  postgres.NewCounterStore(pool),
		ledger:    postgres.NewLedgerStore(pool),
		intents:   postgres.NewIntentStore(pool),
		ping:      pool.Ping,
		close:     pool.Close,
	}, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	st, err := openStores(ctx, lg, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.close()

	renderer, err := render.New(render.Config{
		Width:  cfg.Receipt.Width,
		Venue:  cfg.Receipt.Venue,
		Footer: cfg.Receipt.Footer,
	})
	if err != nil {
		return errors.Wrap(err, "create renderer")
	}

	svc, err := settlement.NewService(settlement.Dependencies{
		Orders:    st.orders,
		Customers: st.customers,
		Sequences: sequence.NewGenerator(st.counters),
		Ledger:    st.ledger,
		Intents:   st.intents,
		Renderer:  renderer,
	}, settlement.Options{
		ChangeHold:     cfg.Settlement.ChangeDisplay,
		SessionTTL:     cfg.Settlement.SessionTTL,
		TracerProvider: m.TracerProvider(),
		MeterProvider:  m.MeterProvider(),
	})
	if err != nil {
		return errors.Wrap(err, "create settlement service")
	}

	// Finish commits interrupted by a previous crash before taking traffic.
	resumed, err := svc.ResumePending(ctx)
	if err != nil {
		return errors.Wrap(err, "resume pending settlements")
	}
	if resumed > 0 {
		lg.Info("Resumed interrupted settlements", zap.Int("count", resumed))
	}

	healthSvc := health.New()
	if st.ping != nil {
		healthSvc.AddReadinessCheck("postgres", 5*time.Second, st.ping)
	}
	healthSvc.AddReadinessCheck("settlement_intents", 5*time.Second,
		health.PendingCheck(cfg.Settlement.MaxPendingIntents, func(ctx context.Context) (int, error) {
			pending, err := st.intents.ListPending(ctx)
			return len(pending), err
		}),
	)
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	router := chi.NewRouter()
	router.Use(httpmiddleware.LogRequests())
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(svc, st.ledger).Register(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Cash settlements hold the response while the change is displayed.
		WriteTimeout:   cfg.Settlement.ChangeDisplay + 10*time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "X-Request-ID"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Instrument("settle-api", m),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}
