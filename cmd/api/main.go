package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"uniattend/internal/app"
	"uniattend/internal/config"
	"uniattend/internal/faceclient"
	"uniattend/internal/httpapi"
	"uniattend/internal/logging"
	"uniattend/internal/rollup"
)

func main() {
	cfg := config.Load()
	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := run(cfg, log); err != nil {
		log.Fatal("api failed", zap.Error(err))
	}
}

func run(cfg config.App, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	if cfg.SeedDemo {
		if _, err := rt.System.Seed(ctx, time.Now()); err != nil {
			return err
		}
	}

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	if err := face.Health(ctx); err != nil {
		log.Warn("face service not available; check-ins will fail until it is", zap.Error(err))
	}

	router := httpapi.NewRouter(rt.System, face, rt.Rollups, rt.Metrics, log, httpapi.Options{
		Production:      cfg.Production(),
		RateLimitPerMin: cfg.RateLimitPerMin,
		Health:          rt.Health,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if cfg.QueueBackend != "redis" {
		// No separate worker drains an in-process queue, so fold events here.
		g.Go(func() error {
			msgs, err := rt.Queue.Consume(gctx)
			if err != nil {
				return err
			}
			return rollup.Consumer{Store: rt.Rollups, Log: log.Named("rollup")}.Run(gctx, msgs)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("server exited")
	return err
}
