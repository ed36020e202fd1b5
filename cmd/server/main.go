// Command server assembles the certificate portal core and runs it until
// interrupted. Wiring only; business rules live under internal/.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"certportal/internal/audit"
	auditmemory "certportal/internal/audit/store/memory"
	auditpostgres "certportal/internal/audit/store/postgres"
	"certportal/internal/availability"
	"certportal/internal/availability/redischannel"
	"certportal/internal/compliance"
	"certportal/internal/docs/blob"
	docsservice "certportal/internal/docs/service"
	docsstore "certportal/internal/docs/store"
	"certportal/internal/identity"
	"certportal/internal/notify"
	orgservice "certportal/internal/org/service"
	orgstore "certportal/internal/org/store"
	"certportal/internal/platform/config"
	"certportal/internal/platform/httpserver"
	"certportal/internal/platform/logger"
	"certportal/internal/platform/metrics"
	"certportal/internal/platform/redis"
	httptransport "certportal/internal/transport/http"
	id "certportal/pkg/domain"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores. Without a database URL everything runs in memory, which is the
	// development and test configuration.
	var (
		auditStore audit.Store
		docStore   docsservice.DocumentStore
		orgStore   orgservice.OrganizationStore
		availStore availability.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to create pgx pool", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		auditStore = auditpostgres.New(pool)
		docStore = docsstore.NewPostgres(db)
		orgStore = orgstore.NewPostgres(db)
		availStore = availability.NewPostgres(db)
	} else {
		log.Warn("no database configured, using in-memory stores")
		auditStore = auditmemory.NewInMemoryStore()
		docStore = docsstore.NewMemory()
		orgStore = orgstore.NewMemory()
		availStore = availability.NewMemoryStore()
	}

	recorder := audit.NewRecorder(auditStore,
		audit.WithLogger(log),
		audit.WithTimeout(cfg.StoreTimeout),
	)

	// Notification sink: Kafka when brokers are configured, memory otherwise.
	var sink notify.Sink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := notify.NewKafkaSink(cfg.KafkaBrokers, "certportal.notifications")
		if err != nil {
			log.Error("failed to connect to kafka", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		if err := kafkaSink.EnsureTopic(ctx, 3, 1); err != nil {
			log.Error("failed to ensure notification topic", "error", err)
			os.Exit(1)
		}
		sink = kafkaSink
	} else {
		log.Warn("no kafka brokers configured, notifications stay in memory")
		sink = notify.NewMemorySink()
	}
	dispatcher := notify.NewDispatcher(sink,
		notify.WithLogger(log),
		notify.WithMetrics(m),
	)

	availOpts := []availability.Option{
		availability.WithLogger(log),
		availability.WithRecorder(recorder),
		availability.WithDispatcher(dispatcher),
		availability.WithMetrics(m),
		availability.WithStoreTimeout(cfg.StoreTimeout),
	}

	// Cross-process availability relay over Redis, when configured.
	var channel *redischannel.Channel
	redisClient, err := redis.New(cfg.Redis())
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		channel = redischannel.New(redisClient, uuid.NewString(),
			redischannel.WithLogger(log))
		availOpts = append(availOpts, availability.WithChannel(channel))
	}
	availSvc := availability.New(availStore, availOpts...)

	if err := availSvc.Restore(ctx); err != nil {
		log.Error("failed to restore availability status", "error", err)
		os.Exit(1)
	}

	blobs := blob.NewMemoryStorage("http://localhost"+cfg.Addr, []byte(cfg.JWTSigningKey))

	docsSvc := docsservice.New(docStore, blobs,
		docsservice.WithLogger(log),
		docsservice.WithRecorder(recorder),
		docsservice.WithMetrics(m),
		docsservice.WithStoreTimeout(cfg.StoreTimeout),
		docsservice.WithUploadLimits(cfg.UploadMaxBytes, cfg.AllowedContentTypes),
		docsservice.WithSignedURLTTL(cfg.SignedURLTTL),
	)
	complianceSvc := compliance.New(docStore,
		compliance.WithLogger(log),
		compliance.WithRecorder(recorder),
		compliance.WithDispatcher(dispatcher),
		compliance.WithMetrics(m),
		compliance.WithStoreTimeout(cfg.StoreTimeout),
	)
	orgSvc := orgservice.New(orgStore, docStore,
		orgservice.WithLogger(log),
		orgservice.WithRecorder(recorder),
		orgservice.WithStoreTimeout(cfg.StoreTimeout),
	)
	auditQuery := audit.NewQuery(auditStore, audit.WithQueryTimeout(cfg.StoreTimeout))

	verifier := identity.NewVerifier(cfg.JWTSigningKey)
	provider := identity.NewMemoryProvider(verifier, 12*time.Hour)
	seedDevAccounts(provider, log)

	router := httptransport.NewRouter(httptransport.Services{
		Provider:     provider,
		Verifier:     verifier,
		Docs:         docsSvc,
		Compliance:   complianceSvc,
		Orgs:         orgSvc,
		AuditQuery:   auditQuery,
		Availability: availSvc,
		Recorder:     recorder,
		Logger:       log,
		Metrics:      m,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting certportal", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := dispatcher.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if channel != nil {
		g.Go(func() error {
			err := channel.Run(gctx, availSvc)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("certportal stopped")
}

// seedDevAccounts registers the bootstrap staff accounts for the in-memory
// provider. Production deployments authenticate against the corporate IdP and
// never reach this path with real traffic.
func seedDevAccounts(provider *identity.MemoryProvider, log *slog.Logger) {
	accounts := []struct {
		username string
		password string
		role     identity.Role
		name     string
	}{
		{"admin", "admin", identity.RoleAdmin, "Portal Administrator"},
		{"quality", "quality", identity.RoleQuality, "Quality Analyst"},
	}
	for _, a := range accounts {
		err := provider.Register(a.username, a.password, identity.Principal{
			ID:            id.NewPrincipalID(),
			DisplayName:   a.name,
			Role:          a.role,
			AccountStatus: identity.AccountActive,
		})
		if err != nil {
			log.Warn("failed to seed account", "username", a.username, "error", err)
		}
	}
}
