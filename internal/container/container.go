package container

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"market-maker-sim/config"
	"market-maker-sim/export"
	"market-maker-sim/gateway"
	"market-maker-sim/infrastructure/alert"
	"market-maker-sim/infrastructure/logger"
	"market-maker-sim/infrastructure/monitor"
	"market-maker-sim/internal/engine"
	"market-maker-sim/metrics"
	"market-maker-sim/posttrade"
	"market-maker-sim/sim"
)

// Container 依赖注入容器，按配置组装模拟器的全部组件并管理其生命周期
type Container struct {
	cfg     config.AppConfig
	cfgPath string

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	// 核心服务
	runner  *sim.Runner
	streams *export.Streams
	engine  *engine.TradingEngine

	// 行情与配置热更新，可为空
	stream  *gateway.BinanceStream
	watcher *config.Watcher

	notify func(state string)
}

// New 加载配置（含 .env 与 MM_* 环境变量）并创建 Container
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return NewWithConfig(cfg, configPath), nil
}

// NewWithConfig 使用已校验的配置；configPath 为空时不监听配置文件
func NewWithConfig(cfg config.AppConfig, configPath string) *Container {
	c := &Container{cfg: cfg, cfgPath: configPath}
	c.notify = c.sdNotify
	return c
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	if err := c.buildCoreServices(); err != nil {
		return fmt.Errorf("build core services failed: %w", err)
	}
	if err := c.buildFeed(); err != nil {
		return fmt.Errorf("build feed failed: %w", err)
	}
	c.logger.Info("container built successfully")
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	if c.logger == nil {
		c.logger, err = logger.New(c.cfg.Log)
		if err != nil {
			return fmt.Errorf("create logger failed: %w", err)
		}
	}
	c.monitor = monitor.New(monitor.DefaultConfig())
	c.alerts = alert.NewManager(
		[]alert.Channel{alert.NewZapChannel("log", c.logger.Logger)},
		c.cfg.Engine.AlertThrottle,
	)
	return nil
}

func (c *Container) buildCoreServices() error {
	var err error
	c.runner, err = sim.BuildRunner(c.cfg.RunnerConfig(), c.logger)
	if err != nil {
		return fmt.Errorf("create runner failed: %w", err)
	}
	c.streams, err = export.NewStreams(c.cfg.Export.Dir)
	if err != nil {
		return fmt.Errorf("create export streams failed: %w", err)
	}
	c.engine, err = engine.New(engine.Config{
		Symbol:               c.cfg.Symbol,
		TickInterval:         c.cfg.Engine.PollInterval,
		StatusInterval:       c.cfg.Engine.StatusInterval,
		HealthInterval:       c.cfg.Engine.HealthInterval,
		PnLExportInterval:    c.cfg.Export.PnLInterval,
		SpreadExportInterval: c.cfg.Export.SpreadInterval,
		ShutdownDir:          c.cfg.Export.ShutdownDir,
	}, engine.Components{
		Runner:       c.runner,
		Streams:      c.streams,
		Monitor:      c.monitor,
		AlertManager: c.alerts,
		Analyzer:     posttrade.NewAnalyzer(),
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("create engine failed: %w", err)
	}
	return nil
}

func (c *Container) buildFeed() error {
	if c.cfg.Feed.Enabled {
		stream, err := gateway.NewBinanceStream(gateway.StreamConfig{
			URL:          c.cfg.Feed.URL,
			Symbol:       c.cfg.Symbol,
			ReadTimeout:  c.cfg.Feed.ReadTimeout,
			ReconnectMin: c.cfg.Feed.ReconnectMin,
			ReconnectMax: c.cfg.Feed.ReconnectMax,
		}, c.runner, c.logger.Logger)
		if err != nil {
			return err
		}
		stream.SetObserver(c.monitor)
		if c.cfg.Feed.SnapshotURL != "" {
			stream.SetSnapshotClient(&gateway.BinanceRESTClient{
				BaseURL:    c.cfg.Feed.SnapshotURL,
				HTTPClient: gateway.NewDefaultHTTPClient(),
				Limiter:    gateway.NewTokenBucketLimiter(c.cfg.Feed.SnapshotRate, 1),
			})
		}
		c.stream = stream
	}
	if c.cfgPath != "" {
		w, err := config.NewWatcher(c.cfgPath, c.cfg.Engine.ReloadCooldown, c.logger.Logger)
		if err != nil {
			return err
		}
		c.watcher = w
	}
	return nil
}

// Run 启动引擎与后台任务，阻塞到 ctx 结束或任一任务失败，然后按
// 停止报价 -> 停止行情 -> 写停机文件 的顺序退出，返回写出的文件
func (c *Container) Run(ctx context.Context) ([]string, error) {
	if c.engine == nil {
		return nil, fmt.Errorf("container not built")
	}
	if err := c.engine.Start(ctx); err != nil {
		return nil, err
	}
	if !c.cfg.Engine.AutoStart {
		_ = c.engine.Pause()
	}

	g, gctx := errgroup.WithContext(ctx)
	if c.stream != nil {
		g.Go(func() error { return c.stream.Run(gctx) })
	}
	if c.cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.StartMetricsServer(gctx, c.cfg.Metrics.Addr, c.monitor.Handler(), c.logger.Logger)
		})
	}
	if c.watcher != nil {
		g.Go(func() error { return c.watcher.Run(gctx, c.onConfigReload) })
	}
	g.Go(func() error {
		c.watchdog(gctx)
		return nil
	})

	c.notify(daemon.SdNotifyReady)
	c.logger.Info("container started",
		zap.String("symbol", c.cfg.Symbol),
		zap.Bool("feed", c.stream != nil),
		zap.Bool("quoting", c.cfg.Engine.AutoStart))

	<-gctx.Done()
	c.notify(daemon.SdNotifyStopping)
	c.logger.Info("stopping container...")

	_ = c.engine.Pause()
	groupErr := g.Wait()
	files, stopErr := c.engine.Stop()
	c.logger.Info("container stopped", zap.Strings("files", files))
	return files, multierr.Combine(groupErr, stopErr)
}

// onConfigReload 只热更新报价与风控参数，其余字段需要重启
func (c *Container) onConfigReload(next config.AppConfig) {
	if err := c.engine.ApplyStrategyConfig(next.RunnerConfig().StrategyConfig()); err != nil {
		c.logger.Warn("reloaded strategy config rejected", zap.Error(err))
	}
}

// TogglePause 在报价与暂停之间切换
func (c *Container) TogglePause() error {
	if c.engine.GetState() == engine.StatePaused {
		return c.engine.Resume()
	}
	return c.engine.Pause()
}

// HealthCheck 引擎处于运行或暂停状态即视为健康
func (c *Container) HealthCheck() error {
	if c.engine == nil {
		return fmt.Errorf("container not built")
	}
	switch st := c.engine.GetState(); st {
	case engine.StateRunning, engine.StatePaused:
		return nil
	default:
		return fmt.Errorf("engine %s", st)
	}
}

func (c *Container) sdNotify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		c.logger.Warn("sd_notify failed", zap.String("state", state), zap.Error(err))
	}
}

// watchdog 在 systemd 启用 WatchdogSec 时按一半周期喂狗
func (c *Container) watchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if c.HealthCheck() == nil {
				c.notify(daemon.SdNotifyWatchdog)
			}
		}
	}
}

func (c *Container) Config() config.AppConfig { return c.cfg }
func (c *Container) Logger() *logger.Logger { return c.logger }
func (c *Container) Runner() *sim.Runner { return c.runner }
func (c *Container) Monitor() *monitor.Monitor { return c.monitor }
func (c *Container) Engine() *engine.TradingEngine { return c.engine }

// Close 刷新日志
func (c *Container) Close() error {
	if c.logger == nil {
		return nil
	}
	return c.logger.Close()
}
