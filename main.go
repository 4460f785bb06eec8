package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/pingcap/log"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/byBit-ovo/coral_lineage/config"
	"github.com/byBit-ovo/coral_lineage/lineage"
	"github.com/byBit-ovo/coral_lineage/llm"
	"github.com/byBit-ovo/coral_lineage/qa"
	"github.com/byBit-ovo/coral_lineage/retry"
	"github.com/byBit-ovo/coral_lineage/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Warn("no .env file loaded", zap.Error(err))
	}
	cfg, err := config.Load(os.Getenv("LINEAGE_CONFIG"))
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}
	if err := initLogger(cfg.Log); err != nil {
		log.Fatal("init logger", zap.Error(err))
	}
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, cleanup, err := buildServer(ctx, cfg)
	if err != nil {
		log.Fatal("init server", zap.Error(err))
	}
	defer cleanup()

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           newRouter(srv),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	deregister, err := RegisterHTTPToEtcd(ctx, cfg.Etcd, cfg.HTTP.Addr)
	if err != nil {
		log.Warn("etcd registration failed", zap.Error(err))
		deregister = func() error { return nil }
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", zap.Error(err))
		}
	}
	if err := deregister(); err != nil {
		log.Warn("etcd deregistration failed", zap.Error(err))
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
}

func initLogger(cfg config.LogConfig) error {
	logger, props, err := log.InitLogger(&log.Config{Level: cfg.Level, Format: cfg.Format})
	if err != nil {
		return err
	}
	log.ReplaceGlobals(logger, props)
	return nil
}

// buildServer connects every backing service named by cfg. The returned
// cleanup releases them.
func buildServer(ctx context.Context, cfg *config.Config) (*server, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn("close resource", zap.Error(err))
			}
		}
	}
	fail := func(err error) (*server, func(), error) {
		cleanup()
		return nil, nil, err
	}

	model, err := llm.NewAIModel(ctx, llm.Settings{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey(),
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return fail(err)
	}
	policy := retry.Policy{
		MaxAttempts: cfg.LLM.MaxAttempts,
		Backoff:     retry.Constant(cfg.LLM.RetryDelay),
	}

	es, err := store.NewElasticClient(ctx, store.ElasticConfig{
		Addresses: cfg.Elastic.Addresses,
		Username:  cfg.Elastic.Username,
		Password:  cfg.Elastic.Password,
	})
	if err != nil {
		return fail(err)
	}
	esStore := store.NewElasticStore(es, cfg.Elastic.CodeIndex, cfg.Elastic.ResultIndex)

	var codes lineage.CodeStore = esStore
	if cfg.Code.Source == "mysql" {
		db, err := store.OpenMySQL(cfg.MySQL.DSN)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			return fail(errors.Wrap(err, "ping mysql"))
		}
		if codes, err = store.NewSQLCodeStore(db, cfg.MySQL.Table); err != nil {
			return fail(err)
		}
	}
	if cfg.Redis.Addr != "" {
		cache := store.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		closers = append(closers, cache.Close)
		if err := cache.Ping(ctx); err != nil {
			log.Warn("redis unreachable, lookups fall through to the code store", zap.Error(err))
		}
		codes = store.NewCachedCodeStore(codes, cache, cfg.Code.CacheTTL)
	}

	srv := &server{
		lineage: lineage.NewService(codes, esStore, model,
			lineage.WithRetryPolicy(policy),
			lineage.WithTimeout(cfg.LLM.Timeout)),
		banner: "Hello, World! coral_lineage serving " + model.Name(),
	}

	if cfg.CSV.Path != "" {
		table, err := store.LoadTable(cfg.CSV.Path)
		if err != nil {
			return fail(err)
		}
		if cfg.API.Key == "" {
			log.Warn("API_KEY is empty, every /ask request will be rejected")
		}
		srv.qa = qa.NewService(table, model, cfg.API.Key, policy, cfg.LLM.Timeout)
		srv.qa.SetPreviewRows(cfg.CSV.PreviewRows)
		log.Info("csv table loaded", zap.String("path", cfg.CSV.Path), zap.Int("rows", len(table.Rows)))
	}

	log.Info("lineage service ready",
		zap.String("model", model.Name()),
		zap.String("code_source", cfg.Code.Source),
		zap.Bool("cache", cfg.Redis.Addr != ""))
	return srv, cleanup, nil
}
