package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/kernelbox/config"
	"github.com/isdmx/kernelbox/events"
	"github.com/isdmx/kernelbox/httpapi"
	"github.com/isdmx/kernelbox/kernel"
	"github.com/isdmx/kernelbox/logger"
	"github.com/isdmx/kernelbox/mcpserver"
	"github.com/isdmx/kernelbox/metrics"
	"github.com/isdmx/kernelbox/runtimes"
	"github.com/isdmx/kernelbox/sandbox"
)

func main() {
	app := fx.New(
		fx.Provide(
			config.New,
			logger.NewFromConfig,

			// Event bus
			newRedisClient,
			newBus,

			// Containers
			newContainerRuntime,
			newManager,

			// Kernels
			newRegistry,
			newPoller,
			newKernelClient,
			newRuntimes,
			newMetrics,
			newOrchestrator,

			// Transports
			newAPIServer,
			func(o *kernel.Orchestrator) mcpserver.Orchestrator { return o },
			mcpserver.New,
		),

		fx.Invoke(
			consumeRequests,
			serveAPI,
			serveMCP,
		),

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	app.Run()
}

func newRedisClient(lc fx.Lifecycle, cfg *config.Config) (*redis.Client, error) {
	client, err := events.NewRedisClient(context.Background(), events.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newBus(log *zap.Logger, client *redis.Client, cfg *config.Config) *events.RedisBus {
	return events.NewRedisBus(log, client, cfg.Redis.Prefix)
}

func newContainerRuntime(log *zap.Logger, cfg *config.Config) (*sandbox.CLIRuntime, error) {
	return sandbox.NewRuntime(log, cfg.Sandbox.Backend)
}

func newManager(log *zap.Logger, cfg *config.Config, runtime *sandbox.CLIRuntime) *sandbox.Manager {
	var opts []sandbox.ManagerOption
	if cfg.Sandbox.Nested {
		opts = append(opts, sandbox.WithHost(sandbox.NewHostIntrospector(log, runtime)))
	}
	return sandbox.NewManager(log, runtime, opts...)
}

func newRegistry(cfg *config.Config, manager *sandbox.Manager) *kernel.Registry {
	return kernel.NewDefaultRegistry(manager, kernel.CreatorOptions{
		BootstrapRoot: cfg.Kernel.BootstrapRoot,
		ServerURI:     cfg.Kernel.ServerURI,
		MainImage:     cfg.Kernel.MainImage,
		Env:           cfg.Kernel.Env,
	})
}

func newPoller(log *zap.Logger, cfg *config.Config, runtime *sandbox.CLIRuntime) *kernel.Poller {
	prober := kernel.HTTPProber{
		Client: &http.Client{Timeout: cfg.Kernel.PollTick},
		Port:   cfg.Kernel.Port,
	}
	return kernel.NewPoller(log, runtime, prober,
		kernel.WithTick(cfg.Kernel.PollTick),
		kernel.WithTimeout(cfg.Kernel.PollTimeout),
	)
}

func newKernelClient(cfg *config.Config) kernel.Client {
	return kernel.NewHTTPClient(cfg.Kernel.Port)
}

func newRuntimes(log *zap.Logger, cfg *config.Config) (*runtimes.Loader, error) {
	loader := runtimes.NewLoader(log)
	if cfg.Kernel.RuntimesDir == "" {
		return loader, nil
	}
	if err := loader.Load(cfg.Kernel.RuntimesDir); err != nil {
		return nil, fmt.Errorf("failed to load runtimes: %w", err)
	}
	return loader, nil
}

func newMetrics() *metrics.Collector {
	return metrics.New(prometheus.DefaultRegisterer)
}

type orchestratorParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Logger    *zap.Logger
	Registry  *kernel.Registry
	Poller    *kernel.Poller
	Client    kernel.Client
	Bus       *events.RedisBus
	Runtimes  *runtimes.Loader
	Metrics   *metrics.Collector
}

func newOrchestrator(p orchestratorParams) *kernel.Orchestrator {
	base, cancel := context.WithCancel(context.Background())
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})

	return kernel.NewOrchestrator(p.Logger, p.Registry, p.Poller, p.Client, p.Bus,
		kernel.WithRuntimes(p.Runtimes),
		kernel.WithMetrics(p.Metrics),
		kernel.WithBaseContext(base),
	)
}

func newAPIServer(log *zap.Logger, cfg *config.Config, bus *events.RedisBus, orch *kernel.Orchestrator, collector *metrics.Collector) *http.Server {
	handlers := httpapi.New(log, bus, orch,
		httpapi.WithGatherer(prometheus.DefaultGatherer),
		httpapi.WithRequestRecorder(collector),
	)
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           handlers.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// consumeRequests dispatches bus requests to the orchestrator until the app stops.
func consumeRequests(lc fx.Lifecycle, log *zap.Logger, bus *events.RedisBus, orch *kernel.Orchestrator) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := bus.Consume(ctx, func(ctx context.Context, req events.Request) {
					_ = orch.Dispatch(ctx, req)
				})
				if err != nil {
					log.Error("request consumer stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			wg.Wait()
			return nil
		},
	})
}

func serveAPI(lc fx.Lifecycle, log *zap.Logger, srv *http.Server) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Info("starting HTTP API", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("HTTP API stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

// serveMCP starts the appropriate MCP transport based on config
func serveMCP(lc fx.Lifecycle, cfg *config.Config, server *mcpserver.MCPServer, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			switch cfg.Server.Transport {
			case "stdio":
				go func() {
					if err := server.ServeStdio(); err != nil {
						panic(err)
					}
					_ = shutdowner.Shutdown()
				}()
			case "http":
				go func() {
					if err := server.ServeHTTP(); err != nil {
						panic(err)
					}
				}()
			case "none":
			default:
				return fmt.Errorf("unsupported transport: %s", cfg.Server.Transport)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}
