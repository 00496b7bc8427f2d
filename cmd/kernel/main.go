package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/kernelbox/config"
	"github.com/isdmx/kernelbox/events"
	"github.com/isdmx/kernelbox/kernelserver"
	"github.com/isdmx/kernelbox/logger"
)

const orchestratorTimeout = 30 * time.Second

func main() {
	app := fx.New(
		fx.Provide(
			config.NewKernel,
			logger.NewFromKernel,
			newSink,
			newInterpreter,
			newArguments,
			newServer,
		),

		fx.Invoke(serve),

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	app.Run()
}

// newSink publishes straight to the bus when one is configured and relays
// through the orchestrator otherwise.
func newSink(lc fx.Lifecycle, log *zap.Logger, cfg *config.Kernel) (events.Sink, error) {
	if cfg.Bus.Addr == "" {
		log.Info("relaying results", zap.String("server_uri", cfg.ServerURI))
		return events.NewRelaySink(cfg.ServerURI, &http.Client{Timeout: orchestratorTimeout}), nil
	}

	client, err := events.NewRedisClient(context.Background(), events.RedisOptions{
		Addr:     cfg.Bus.Addr,
		Password: cfg.Bus.Password,
		DB:       cfg.Bus.DB,
		PoolSize: cfg.Bus.PoolSize,
	})
	if err != nil {
		return nil, err
	}
	bus := events.NewRedisBus(log, client, cfg.Bus.Prefix)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return bus.Close()
		},
	})
	log.Info("publishing results to bus", zap.String("addr", cfg.Bus.Addr))
	return bus, nil
}

func newInterpreter(log *zap.Logger, cfg *config.Kernel) (kernelserver.Interpreter, error) {
	return kernelserver.NewInterpreter(log, cfg.Interpreter, cfg.Store.Addr())
}

func newArguments(cfg *config.Kernel) kernelserver.Arguments {
	return kernelserver.NewParseClient(cfg.ServerURI, &http.Client{Timeout: orchestratorTimeout})
}

func newServer(lc fx.Lifecycle, log *zap.Logger, cfg *config.Kernel, sink events.Sink, args kernelserver.Arguments, interp kernelserver.Interpreter) *kernelserver.Server {
	base, cancel := context.WithCancel(context.Background())

	srv := kernelserver.NewServer(log, sink, args,
		kernelserver.WithInterpreter(cfg.Interpreter, interp),
		kernelserver.WithRoot(cfg.Root),
		kernelserver.WithShellDir(cfg.ShellDir),
		kernelserver.WithStreamInterval(cfg.StreamInterval),
		kernelserver.WithBaseContext(base),
	)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			cancel()
			return srv.Close()
		},
	})
	return srv
}

func serve(lc fx.Lifecycle, log *zap.Logger, cfg *config.Kernel, srv *kernelserver.Server) {
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Info("starting kernel server", zap.String("addr", httpServer.Addr))
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("kernel server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return httpServer.Shutdown(ctx)
		},
	})
}
