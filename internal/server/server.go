// Package server orchestrates all components: NATS/mem queue, Postgres/mem
// KV store, the federation registry, and an HTTP mux exposing it.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	comms "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/morezero/federation-core/internal/config"
	"github.com/morezero/federation-core/pkg/activitystreams"
	"github.com/morezero/federation-core/pkg/commsutil"
	"github.com/morezero/federation-core/pkg/db"
	"github.com/morezero/federation-core/pkg/federation"
	"github.com/morezero/federation-core/pkg/kv"
	"github.com/morezero/federation-core/pkg/nodeinfo"
	"github.com/morezero/federation-core/pkg/queue"
)

const logPrefix = "server:server"

// Server is the federation-core orchestrator: it owns every long-lived
// resource (broker connection, database pool, HTTP listener) and tears
// them down in reverse order on shutdown.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	q          queue.Queue
	fed        *federation.Federation
	httpServer *http.Server
}

// Run loads configuration, wires the registry, and blocks until a
// shutdown signal is received.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return fmt.Errorf("%s - %w", logPrefix, err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)})))
	slog.Info(fmt.Sprintf("%s - starting federation-core", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg}

	// Step 1: KV store (Postgres-backed, or in-process for local runs).
	store, err := s.buildKVStore(ctx)
	if err != nil {
		return err
	}

	// Step 2: outbound queue (NATS-backed, or in-process for local runs).
	q, err := s.buildQueue()
	if err != nil {
		if s.pool != nil {
			s.pool.Close()
		}
		return err
	}
	s.q = q

	// Step 3: NodeInfo descriptor.
	descriptor, err := nodeInfoDescriptor(cfg)
	if err != nil {
		s.closeResources()
		return fmt.Errorf("%s - %w", logPrefix, err)
	}

	// Step 4: backoff schedule.
	backoff, err := cfg.ParsedBackoffSchedule()
	if err != nil {
		s.closeResources()
		return fmt.Errorf("%s - %w", logPrefix, err)
	}

	// Step 5: build the registry itself.
	fed, err := federation.New(federation.Options{
		KV:                 store,
		Queue:              q,
		TreatHTTPS:         cfg.TreatHTTPS,
		BackoffSchedule:    backoff,
		NodeInfoDescriptor: descriptor,
		OnOutboxError: func(err error, activity *activitystreams.Activity) {
			slog.Warn(fmt.Sprintf("%s - outbound delivery failed: %v", logPrefix, err))
		},
	})
	if err != nil {
		s.closeResources()
		return fmt.Errorf("%s - failed to build registry: %w", logPrefix, err)
	}
	s.fed = fed

	if err := fed.SetNodeInfoDispatcher("/nodeinfo/2.1", func(ctx context.Context) (nodeinfo.Usage, error) {
		return nodeinfo.Usage{}, nil
	}); err != nil {
		s.closeResources()
		return fmt.Errorf("%s - register nodeinfo dispatcher: %w", logPrefix, err)
	}

	// Step 6: optionally register a config-driven demo actor. Actor
	// identity here comes entirely from the environment, never from a
	// database row.
	if cfg.ActorHandle != "" {
		if err := registerDemoActor(fed, cfg); err != nil {
			s.closeResources()
			return fmt.Errorf("%s - register demo actor: %w", logPrefix, err)
		}
		slog.Info(fmt.Sprintf("%s - registered demo actor %q", logPrefix, cfg.ActorHandle))
	}

	// Step 7: HTTP mux.
	s.httpServer = &http.Server{Addr: cfg.HTTPAddr, Handler: s.buildRouter()}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, cfg.HTTPAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - federation-core is ready", logPrefix))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - received signal %s, shutting down", logPrefix, sig))

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error(fmt.Sprintf("%s - HTTP shutdown: %v", logPrefix, err))
	}
	s.closeResources()

	slog.Info(fmt.Sprintf("%s - shutdown complete", logPrefix))
	return nil
}

func (s *Server) closeResources() {
	if s.q != nil {
		if err := s.q.Close(); err != nil {
			slog.Error(fmt.Sprintf("%s - queue close: %v", logPrefix, err))
		}
	}
	if s.nc != nil {
		s.nc.Drain()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Server) buildKVStore(ctx context.Context) (kv.Store, error) {
	if s.cfg.UseMemoryBackends {
		slog.Info(fmt.Sprintf("%s - using in-process KV store", logPrefix))
		return kv.NewMemStore(), nil
	}

	pool, err := db.NewPool(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool

	if s.cfg.RunMigrations {
		files, err := db.LoadMigrationFiles(s.cfg.MigrationPath)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
		}
		if err := db.RunMigrations(ctx, pool, files); err != nil {
			pool.Close()
			return nil, fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
		}
	}

	return kv.NewCompressingStore(kv.NewPostgresStore(pool)), nil
}

func (s *Server) buildQueue() (queue.Queue, error) {
	if s.cfg.UseMemoryBackends {
		slog.Info(fmt.Sprintf("%s - using in-process outbound queue", logPrefix))
		return queue.NewMemQueue(), nil
	}

	nc, err := commsutil.Connect(s.cfg.COMMSURL, s.cfg.COMMSName)
	if err != nil {
		return nil, err
	}
	s.nc = nc
	return queue.NewNatsQueue(nc, s.cfg.OutboxSubject), nil
}

// buildRouter mounts the well-known discovery endpoints, health/ready,
// metrics, and a catch-all handing every other path to Federation.Fetch.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Signature", "Date", "Digest"},
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		s.fed.Fetch(w, req, federation.FetchOptions{})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		s.fed.Fetch(w, req, federation.FetchOptions{})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.HealthCheckTimeout)
	defer cancel()

	status := "healthy"
	checks := map[string]bool{}
	if s.pool != nil {
		checks["database"] = s.pool.Ping(ctx) == nil
		if !checks["database"] {
			status = "unhealthy"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// nodeInfoDescriptor loads the operator-supplied descriptor file, if
// configured, falling back to nodeinfo.DefaultDescriptor.
func nodeInfoDescriptor(cfg *config.Config) (*nodeinfo.Descriptor, error) {
	return nodeinfo.LoadDescriptor(cfg.NodeInfoFile)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
