package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/panoroam/config"
	"github.com/BaSui01/panoroam/coverage"
	"github.com/BaSui01/panoroam/explorer"
	"github.com/BaSui01/panoroam/geo"
	"github.com/BaSui01/panoroam/internal/metrics"
	"github.com/BaSui01/panoroam/internal/server"
	"github.com/BaSui01/panoroam/internal/telemetry"
	"github.com/BaSui01/panoroam/nodesource"
	"github.com/BaSui01/panoroam/nodesource/httpsource"
	"github.com/BaSui01/panoroam/observe"
	"github.com/BaSui01/panoroam/persistence"
	"github.com/BaSui01/panoroam/vision"
	"github.com/BaSui01/panoroam/vision/openaicompat"
)

// =============================================================================
// 🧩 组件装配
// =============================================================================

// app 持有一次探索运行的全部组件
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	level  zap.AtomicLevel

	source   nodesource.Source
	store    persistence.Store
	capturer observe.Capturer
	metrics  *metrics.Collector
	otel     *telemetry.Providers
	coverage metric.Registration

	agent  *explorer.Agent
	runner *explorer.Runner

	server *server.Manager
	reload *config.HotReloadManager

	closers []func() error
}

// newApp 按配置装配组件；不发起任何网络调用
func newApp(cfg *config.Config, configPath string, logger *zap.Logger, level zap.AtomicLevel, reloadOpts ...config.HotReloadOption) (*app, error) {
	a := &app{cfg: cfg, logger: logger, level: level}

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry, continuing without it", zap.Error(err))
	}
	a.otel = providers

	a.metrics = metrics.NewCollector(cfg.Server.MetricsNamespace, logger)

	a.store, err = persistence.NewStore(storeConfig(cfg.Persistence))
	if err != nil {
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)

	a.source = httpsource.New(sourceConfig(cfg.NodeSource), logger)

	switch cfg.Observe.Type {
	case "chrome":
		capturer, err := observe.NewChromeCapturer(chromeConfig(cfg.Observe), logger)
		if err != nil {
			_ = a.closeAll()
			return nil, fmt.Errorf("create chrome capturer: %w", err)
		}
		a.capturer = capturer
		a.closers = append(a.closers, capturer.Close)
	default:
		a.capturer = observe.Noop{}
	}

	opts := []explorer.Option{
		explorer.WithLogger(logger),
		explorer.WithCapturer(a.capturer),
		explorer.WithMetrics(a.metrics),
		explorer.WithTracer(a.otel.Tracer()),
	}
	if cfg.Vision.Enabled {
		provider := openaicompat.New(providerConfig(cfg.Vision), logger)
		opts = append(opts, explorer.WithDecider(vision.NewDecider(provider, visionConfig(cfg.Vision), logger)))
	}
	a.agent = explorer.New(a.source, explorerConfig(cfg.Explorer), opts...)

	a.runner = explorer.NewRunner(a.agent, runnerConfig(cfg.Runner),
		explorer.WithStore(a.store),
		explorer.WithSinks(logSink(logger)),
		explorer.WithRunnerLogger(logger))

	a.coverage, err = telemetry.RegisterCoverage(a.otel.Meter(), func() coverage.Stats {
		return a.agent.Stats().Coverage
	})
	if err != nil {
		logger.Warn("failed to register coverage gauges", zap.Error(err))
	}

	if cfg.Server.Enabled {
		handlers := server.NewHandlers(a.agent, logger,
			server.WithRunner(a.runner),
			server.WithStore(a.store),
			server.WithHTTPMetrics(a.metrics),
			server.WithVersion(Version))
		a.server = server.NewManager(handlers.Routes(), serverConfig(cfg.Server), logger,
			server.WithRunFields(func() []zap.Field {
				st := a.agent.Stats()
				return []zap.Field{zap.String("run_id", st.RunID), zap.Int("step", st.StepIndex)}
			}))
	}

	if configPath != "" {
		opts := append([]config.HotReloadOption{config.WithHotReloadLogger(logger)}, reloadOpts...)
		a.reload = config.NewHotReloadManager(cfg, configPath, opts...)
		a.reload.OnReload(a.applyReload)
	}

	return a, nil
}

// start 恢复快照或从 seed 开始新的运行
func (a *app) start(ctx context.Context, seed string) error {
	if id := a.cfg.Runner.ResumeFrom; id != "" {
		if err := a.runner.Resume(ctx, id); err != nil {
			return err
		}
		a.logger.Info("resumed from snapshot",
			zap.String("snapshot_id", id),
			zap.String("run_id", a.agent.RunID()))
		return nil
	}

	q, err := parseSeed(seed)
	if err != nil {
		return err
	}
	_, err = a.agent.Seed(ctx, q)
	return err
}

// run 并发运行调度器、HTTP 服务与配置热重载。
// 探索结束或 ctx 取消时全部退出。
func (a *app) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.reload != nil {
		if err := a.reload.Start(ctx); err != nil {
			a.logger.Warn("config hot reload disabled", zap.Error(err))
		} else {
			defer func() { _ = a.reload.Stop() }()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		err := a.runner.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if a.server != nil {
		g.Go(func() error {
			return a.server.Run(gctx)
		})
	}
	return g.Wait()
}

// applyReload 应用可热重载字段；回滚时以相反参数再次调用
func (a *app) applyReload(oldCfg, newCfg *config.Config) error {
	if oldCfg.Log.Level != newCfg.Log.Level {
		lvl, err := zapcore.ParseLevel(newCfg.Log.Level)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		a.level.SetLevel(lvl)
	}
	if oldCfg.Runner.StepDelay != newCfg.Runner.StepDelay {
		a.runner.SetStepDelay(newCfg.Runner.StepDelay)
	}
	return nil
}

// close 释放外部资源，按创建的相反顺序
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.coverage != nil {
		if err := a.coverage.Unregister(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.otel.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *app) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// logSink 将每步结果写入日志
func logSink(logger *zap.Logger) explorer.StepSink {
	return explorer.StepSinkFunc(func(_ context.Context, rec *explorer.StepRecord) error {
		fields := []zap.Field{
			zap.Int("step", rec.StepIndex),
			zap.Stringer("mode", rec.Mode),
			zap.String("from", rec.FromNodeID),
			zap.String("to", rec.ChosenNodeID),
			zap.Bool("vision_used", rec.VisionUsed),
			zap.Bool("new_cell", rec.NewCell),
		}
		if rec.LoopGuard != "" {
			fields = append(fields, zap.String("loop_guard", rec.LoopGuard))
		}
		logger.Info("step", fields...)
		return nil
	})
}

// parseSeed 接受节点 id 或 "lat,lng"
func parseSeed(s string) (nodesource.Query, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nodesource.Query{}, fmt.Errorf("empty seed")
	}
	latStr, lngStr, ok := strings.Cut(s, ",")
	if !ok {
		return nodesource.ByID(s), nil
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if errLat != nil || errLng != nil {
		return nodesource.ByID(s), nil
	}
	p := geo.LatLng{Lat: lat, Lng: lng}
	if !p.Valid() {
		return nodesource.Query{}, fmt.Errorf("seed position %s out of range", p)
	}
	return nodesource.ByPosition(p), nil
}
