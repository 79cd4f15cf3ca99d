// Command neuralcalc 运行神经网络预测计算器的 HTTP 服务。
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rushteam/neuralcalc/config"
	"github.com/rushteam/neuralcalc/server"
)

var version = "1.0.0"

func main() {
	var (
		configPath  = flag.String("config", "", "path to YAML/JSON config file")
		addr        = flag.String("addr", "", "listen address, overrides server.addr")
		weights     = flag.String("weights", "", "model weights file, overrides model.weights_path")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("neuralcalc", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *weights != "" {
		cfg.Model.WeightsPath = *weights
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("neuralcalc exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Warn("close resources", "error", err)
		}
	}()

	srv := server.New(a.calc, a.serverOptions(cfg, logger)...)
	return srv.Run(ctx)
}
