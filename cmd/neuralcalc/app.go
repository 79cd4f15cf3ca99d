package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rushteam/neuralcalc/calculator"
	"github.com/rushteam/neuralcalc/config"
	"github.com/rushteam/neuralcalc/core"
	"github.com/rushteam/neuralcalc/history"
	"github.com/rushteam/neuralcalc/pkg/dsl"
	"github.com/rushteam/neuralcalc/server"
	"github.com/rushteam/neuralcalc/service"
	"github.com/rushteam/neuralcalc/store"
)

// app 持有进程生命周期内的资源
type app struct {
	ml      core.MLService
	history *history.SQLiteStore
	calc    *calculator.Calculator
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}

	ml, err := loadModel(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if ml != nil {
		ml = wrapCache(ml, cfg.Cache, cfg.Model.Version, logger)
		a.ml = ml
	}

	opts := []calculator.Option{
		calculator.WithLogger(logger),
		calculator.WithEvaluator(newEvaluator(cfg.Evaluator)),
	}
	if cfg.History.Enabled {
		h, err := history.Open(cfg.History.Path)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.history = h
		opts = append(opts, calculator.WithRecorder(h))
		logger.Info("prediction history enabled", "path", cfg.History.Path)
	}

	a.calc = calculator.New(a.ml, opts...)
	return a, nil
}

// loadModel 加载模型。model.required 为 false 时加载失败只记日志，服务以「模型未加载」状态启动。
func loadModel(ctx context.Context, cfg *config.Config, logger *slog.Logger) (core.MLService, error) {
	svcCfg := cfg.ServiceConfig()
	ml, err := service.NewMLService(svcCfg)
	if err == nil {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = service.TestConnection(checkCtx, ml)
		cancel()
		if err != nil {
			ml.Close(ctx)
			ml = nil
		}
	}
	if err != nil {
		if cfg.Model.Required {
			return nil, fmt.Errorf("load model: %w", err)
		}
		logger.Warn("model not loaded, calculation endpoints will return 503",
			"type", svcCfg.Type, "source", modelSource(cfg), "error", err)
		return nil, nil
	}

	logger.Info("model loaded", "type", svcCfg.Type, "source", modelSource(cfg), "version", svcCfg.ModelVersion)
	return ml, nil
}

// wrapCache 按配置给模型加上预测缓存；缓存后端不可用时退化为直接推理
func wrapCache(ml core.MLService, cfg config.CacheConfig, version string, logger *slog.Logger) core.MLService {
	var (
		st     core.Store
		prefix string
	)
	switch cfg.Backend {
	case "memory":
		st = store.NewMemoryStore(store.WithMaxEntries(cfg.MaxEntries))
	case "redis":
		rs, err := store.NewRedisStoreWithOptions(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		}, cfg.Redis.Prefix)
		if err != nil {
			logger.Warn("redis cache unavailable, running without cache", "addr", cfg.Redis.Addr, "error", err)
			return ml
		}
		st = rs
		prefix = "pred:"
	default:
		return ml
	}

	opts := []service.CacheOption{
		service.WithCacheTTL(cfg.TTL),
		service.WithCacheModelVersion(version),
		service.WithCacheLogger(logger),
	}
	if prefix != "" {
		opts = append(opts, service.WithCachePrefix(prefix))
	}
	logger.Info("prediction cache enabled", "backend", st.Name(), "ttl", cfg.TTL)
	return service.NewCachedMLService(ml, st, opts...)
}

func newEvaluator(name string) dsl.Evaluator {
	if name == "cel" {
		return dsl.NewCELEval()
	}
	return dsl.NewEval()
}

func modelSource(cfg *config.Config) string {
	if cfg.Model.Type == string(service.ServiceTypeTFServing) {
		return cfg.Model.Endpoint
	}
	return cfg.Model.WeightsPath
}

func (a *app) serverOptions(cfg *config.Config, logger *slog.Logger) []server.Option {
	opts := []server.Option{
		server.WithLogger(logger),
		server.WithConfig(cfg.Server),
		server.WithModelSource(modelSource(cfg)),
	}
	if a.history != nil {
		opts = append(opts, server.WithHistory(a.history))
	}
	return opts
}

// Close 释放模型与历史库
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.ml != nil {
		errs = append(errs, a.ml.Close(ctx))
	}
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	return errors.Join(errs...)
}
