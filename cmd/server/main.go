package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/custodia/marketplace-engine/internal/market"
	"github.com/custodia/marketplace-engine/internal/metrics"
	"github.com/custodia/marketplace-engine/internal/model"
	"github.com/custodia/marketplace-engine/internal/store"
	"github.com/custodia/marketplace-engine/internal/token"
	"github.com/custodia/marketplace-engine/internal/trade"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// --- Initialize trade-history store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, 30*time.Second)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory trade history (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Collaborators ---
	var issuers market.IssuerRegistry
	if list := os.Getenv("ISSUERS"); list != "" {
		allowed := market.StaticIssuers{}
		for _, addr := range strings.Split(list, ",") {
			allowed[model.Address(strings.TrimSpace(addr))] = true
		}
		issuers = allowed
	} else {
		slog.Warn("ISSUERS not set, accepting all issuers (development mode)")
		issuers = market.AllowAllIssuers{}
	}

	adminToken := os.Getenv("ADMIN_TOKEN")
	if adminToken == "" {
		slog.Warn("ADMIN_TOKEN not set, pause/unpause disabled")
	}

	treasury := model.Address(os.Getenv("TREASURY_ADDR"))
	if treasury == "" {
		treasury = "treasury"
	}

	bank := token.NewBank()
	mkt := market.New(market.Config{
		Issuers:  issuers,
		Admin:    market.StaticAdmin(adminToken),
		Payments: bank,
		Treasury: treasury,
	})

	// --- WebSocket hub ---
	wsHub := trade.NewWSHub()
	go wsHub.Run()

	// --- Trade service ---
	tradeSvc := trade.NewService(mkt, st, bank, wsHub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// CORS middleware for frontend cross-origin requests.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"marketplace-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time trade updates.
		r.Get("/ws", wsHub.HandleWS)

		// Listing management.
		r.Get("/listings", tradeSvc.ListListings)
		r.Post("/listings/whole", tradeSvc.ListWhole)
		r.Post("/listings/fractional", tradeSvc.ListFractional)
		r.Get("/listings/{assetID}", tradeSvc.GetListing)
		r.Post("/listings/{assetID}/cancel", tradeSvc.Cancel)

		// Trade execution.
		r.Post("/trade/buy", tradeSvc.Buy)
		r.Post("/trade/buy-all", tradeSvc.BuyAll)
		r.Post("/trade/sell-back", tradeSvc.SellBack)

		// Asset and ownership queries.
		r.Get("/assets/{assetID}", tradeSvc.GetAsset)
		r.Get("/assets/{assetID}/balance/{owner}", tradeSvc.GetBalance)
		r.Get("/assets/{assetID}/history", tradeSvc.GetHistory)
		r.Post("/assets/{assetID}/withdraw", tradeSvc.Withdraw)

		// Portfolio and accounts.
		r.Get("/portfolio/{owner}", tradeSvc.GetPortfolio)
		r.Get("/accounts/{owner}", tradeSvc.GetAccount)
		r.Post("/faucet", tradeSvc.Faucet)

		// Admin gate.
		r.Post("/admin/pause", tradeSvc.Pause)
		r.Post("/admin/unpause", tradeSvc.Unpause)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("marketplace-engine listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slog.Info("shutting down marketplace-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("marketplace-engine stopped")
}
