// Package server 提供计算器的 HTTP JSON 接口。
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/neuralcalc/calculator"
	"github.com/rushteam/neuralcalc/config"
	"github.com/rushteam/neuralcalc/core"
	"github.com/rushteam/neuralcalc/history"
)

// API 元信息
const (
	APIName    = "Neural Predictive Calculator API"
	APIVersion = "1.0.0"
)

// Calculator 是 HTTP 层依赖的计算能力，*calculator.Calculator 实现此接口。
type Calculator interface {
	ModelLoaded() bool
	Calculate(ctx context.Context, expr string) (*calculator.Result, error)
	BatchCalculate(ctx context.Context, exprs []string) ([]calculator.ItemResult, error)
}

// HistoryReader 读取预测记录，*history.SQLiteStore 实现此接口。
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]*core.PredictionRecord, error)
	Stats(ctx context.Context) (*history.Stats, error)
}

// Server HTTP 服务
type Server struct {
	calc        Calculator
	history     HistoryReader
	logger      *slog.Logger
	cfg         config.ServerConfig
	modelSource string

	httpServer *http.Server
}

// Option 服务配置选项
type Option func(*Server)

// WithLogger 设置日志
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithHistory 启用 /api/history
func WithHistory(h HistoryReader) Option {
	return func(s *Server) {
		s.history = h
	}
}

// WithConfig 设置监听地址、超时与请求体大小限制
func WithConfig(cfg config.ServerConfig) Option {
	return func(s *Server) {
		s.cfg = cfg
	}
}

// WithModelSource 设置模型来源（权重文件路径或远端地址），用于「模型未加载」的提示信息
func WithModelSource(source string) Option {
	return func(s *Server) {
		s.modelSource = source
	}
}

// New 创建 HTTP 服务
func New(calc Calculator, opts ...Option) *Server {
	s := &Server{
		calc:   calc,
		logger: slog.Default(),
		cfg:    config.Default().Server,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler 返回带中间件的路由
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/calculate", s.handleCalculate)
	mux.HandleFunc("POST /api/batch-calculate", s.handleBatchCalculate)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	var h http.Handler = mux
	h = s.limitBody(h)
	h = s.cors(h)
	h = s.accessLog(h)
	h = requestID(h)
	return h
}

// Run 监听并服务，ctx 取消后优雅退出
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定 listener 上服务，ctx 取消后在 ShutdownTimeout 内等待请求处理完毕
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelError),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server listening",
			"addr", ln.Addr().String(),
			"model_loaded", s.calc.ModelLoaded(),
			"history", s.history != nil,
		)
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	s.logger.Info("server stopped")
	return err
}
