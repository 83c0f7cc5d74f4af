package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apostle/apostle-backend/internal/config"
	"github.com/apostle/apostle-backend/internal/handler"
	"github.com/apostle/apostle-backend/internal/ledger"
	"github.com/apostle/apostle-backend/internal/logging"
	"github.com/apostle/apostle-backend/internal/middleware"
	"github.com/apostle/apostle-backend/internal/repository"
	"github.com/apostle/apostle-backend/internal/service/transaction"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("apostle-api", cfg.LogLevel, cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	})
	cancel()
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	users := repository.NewUserRepository(db)
	accounts := repository.NewAccountRepository(db)
	transactions := repository.NewTransactionRepository(db)

	retry := ledger.RetryPolicy{
		MaxAttempts:     cfg.LedgerRetryMaxAttempts,
		InitialInterval: cfg.LedgerRetryInitial(),
	}
	ledgerSvc := ledger.NewService(accounts, users, retry)
	txSvc := transaction.NewService(ledgerSvc, transactions, db, retry)

	authHandler := handler.NewAuthHandler(users, ledgerSvc, cfg.JWTSecret, cfg.JWTExpiry())
	accountHandler := handler.NewAccountHandler(ledgerSvc)
	txHandler := handler.NewTransactionHandler(txSvc, ledgerSvc)
	healthHandler := handler.NewHealthHandler(db)

	authed := middleware.Auth(cfg.JWTSecret)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)

	mux.Handle("POST /api/v1/user/bank-account", authed(http.HandlerFunc(accountHandler.CreateSubAccount)))
	mux.Handle("GET /api/v1/user/balance/{accountNumber}", authed(http.HandlerFunc(accountHandler.Balance)))
	mux.Handle("GET /api/v1/user/accounts", authed(http.HandlerFunc(accountHandler.ListAccounts)))

	mux.Handle("POST /api/v1/transactions/deposit", authed(http.HandlerFunc(txHandler.Deposit)))
	mux.Handle("POST /api/v1/transactions/transfer", authed(http.HandlerFunc(txHandler.Transfer)))
	mux.Handle("GET /api/v1/transactions/account/{accountID}", authed(http.HandlerFunc(txHandler.History)))
	mux.Handle("GET /api/v1/transactions/{reference}", authed(http.HandlerFunc(txHandler.ByReference)))

	mux.HandleFunc("GET /health/live", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)

	var root http.Handler = mux
	root = middleware.Recovery(root)
	root = middleware.Logging(root)
	root = middleware.Tracing(root)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
