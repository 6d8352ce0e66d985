package main

import (
	"fmt"

	"github.com/BaSui01/panoroam/config"
	"github.com/BaSui01/panoroam/explorer"
	"github.com/BaSui01/panoroam/internal/server"
	"github.com/BaSui01/panoroam/nodesource/httpsource"
	"github.com/BaSui01/panoroam/observe"
	"github.com/BaSui01/panoroam/persistence"
	"github.com/BaSui01/panoroam/vision"
	"github.com/BaSui01/panoroam/vision/openaicompat"
)

// =============================================================================
// 🔁 配置映射
// =============================================================================

func explorerConfig(c config.ExplorerConfig) explorer.Config {
	return explorer.Config{
		CellSizeMeters:         c.CellSizeMeters,
		ClusterThresholdMeters: c.ClusterThresholdMeters,
		HistorySize:            c.HistorySize,
		DeadEndStepMeters:      c.DeadEndStepMeters,
		DeadEndMaxMeters:       c.DeadEndMaxMeters,
		StaleCellThreshold:     c.StaleCellThreshold,
		AlternatingMinLength:   c.AlternatingMinLength,
		CycleMinPeriod:         c.CycleMinPeriod,
		CycleMaxPeriod:         c.CycleMaxPeriod,
		CycleMinRepeats:        c.CycleMinRepeats,
		ClusterRoutingMinNodes: c.ClusterRoutingMinNodes,
		MaxTeleportAttempts:    c.MaxTeleportAttempts,
	}
}

func runnerConfig(c config.RunnerConfig) explorer.RunnerConfig {
	return explorer.RunnerConfig{
		StepDelay:     c.StepDelay,
		MaxSteps:      c.MaxSteps,
		SnapshotEvery: c.SnapshotEvery,
		SnapshotID:    c.SnapshotID,
	}
}

func visionConfig(c config.VisionConfig) vision.Config {
	return vision.Config{
		MaxAttempts:      c.MaxAttempts,
		InitialMaxTokens: c.InitialMaxTokens,
		MaxTokensCap:     c.MaxTokensCap,
		Backoff: vision.Backoff{
			InitialDelay: c.Backoff.InitialDelay,
			MaxDelay:     c.Backoff.MaxDelay,
			Multiplier:   c.Backoff.Multiplier,
			Jitter:       c.Backoff.Jitter,
		},
		RequestsPerSecond: c.RequestsPerSecond,
	}
}

func providerConfig(c config.VisionConfig) openaicompat.Config {
	return openaicompat.Config{
		ProviderName: c.Provider,
		APIKey:       c.APIKey,
		BaseURL:      c.BaseURL,
		Model:        c.Model,
		Timeout:      c.Timeout,
		EndpointPath: c.EndpointPath,
		Temperature:  float32(c.Temperature),
	}
}

func sourceConfig(c config.NodeSourceConfig) httpsource.Config {
	return httpsource.Config{
		BaseURL:           c.BaseURL,
		APIKey:            c.APIKey,
		Timeout:           c.Timeout,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
	}
}

func chromeConfig(c config.ObserveConfig) observe.ChromeConfig {
	return observe.ChromeConfig{
		URLTemplate:    c.URLTemplate,
		Headless:       c.Headless,
		ViewportWidth:  c.ViewportWidth,
		ViewportHeight: c.ViewportHeight,
		WaitSelector:   c.WaitSelector,
		SettleDelay:    c.SettleDelay,
		Timeout:        c.Timeout,
		Quality:        c.Quality,
	}
}

func storeConfig(c config.PersistenceConfig) persistence.StoreConfig {
	return persistence.StoreConfig{
		Type:    persistence.StoreType(c.Type),
		BaseDir: c.BaseDir,
		Redis: persistence.RedisStoreConfig{
			Addr:      c.Redis.Addr,
			Password:  c.Redis.Password,
			DB:        c.Redis.DB,
			PoolSize:  c.Redis.PoolSize,
			KeyPrefix: c.Redis.KeyPrefix,
		},
	}
}

// serverConfig 以 server.DefaultConfig 为基础覆盖配置文件中的字段
func serverConfig(c config.ServerConfig) server.Config {
	sc := server.DefaultConfig()
	sc.Addr = fmt.Sprintf(":%d", c.HTTPPort)
	if c.ReadTimeout > 0 {
		sc.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		sc.WriteTimeout = c.WriteTimeout
	}
	if c.ShutdownTimeout > 0 {
		sc.ShutdownTimeout = c.ShutdownTimeout
	}
	return sc
}
