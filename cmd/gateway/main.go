package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	api "github.com/mind-engage/mindengage-sheets/internal/api/http"
	auth "github.com/mind-engage/mindengage-sheets/internal/auth/middleware"
	"github.com/mind-engage/mindengage-sheets/internal/config"
	"github.com/mind-engage/mindengage-sheets/internal/db"
	"github.com/mind-engage/mindengage-sheets/internal/exam"
	"github.com/mind-engage/mindengage-sheets/internal/logging"
	"github.com/mind-engage/mindengage-sheets/internal/users"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "gateway:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// --- DB ---
	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		logger.Error("bad db driver", zap.Error(err))
		return err
	}
	openCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	dbh, err := db.Open(openCtx, driver, cfg.DBDSN)
	if err != nil {
		logger.Error("db open failed", zap.Error(err))
		return err
	}
	defer dbh.Close()

	sheets := exam.NewService(exam.NewSQLStore(dbh), exam.WithLogger(logger.Named("exam")))
	accounts := users.NewStore(dbh)
	authSvc := auth.NewAuthService(cfg.AuthSecret, cfg.TokenTTL)

	router := api.NewRouter(api.Deps{
		Sheets:             sheets,
		Users:              accounts,
		Auth:               authSvc,
		CORSOrigins:        cfg.CORSOrigins(),
		EnableRegistration: cfg.EnableRegistration,
		AllowClaimFallback: cfg.Mode == config.ModeOffline,
		AccessLog:          true,
		Ready:              func() error { return dbh.PingContext(context.Background()) },
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("mode", string(cfg.Mode)),
			zap.String("db", string(driver)))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutCtx, cancelShut := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShut()
	return srv.Shutdown(shutCtx)
}
