// =============================================================================
// 📦 Panoroam 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Explorer:    DefaultExplorerConfig(),
		Runner:      DefaultRunnerConfig(),
		Vision:      DefaultVisionConfig(),
		NodeSource:  DefaultNodeSourceConfig(),
		Observe:     DefaultObserveConfig(),
		Persistence: DefaultPersistenceConfig(),
		Server:      DefaultServerConfig(),
		Log:         DefaultLogConfig(),
		Telemetry:   DefaultTelemetryConfig(),
	}
}

// DefaultExplorerConfig 返回默认探索参数
func DefaultExplorerConfig() ExplorerConfig {
	return ExplorerConfig{
		CellSizeMeters:         20,
		ClusterThresholdMeters: 8,
		HistorySize:            10,
		DeadEndStepMeters:      10,
		DeadEndMaxMeters:       120,
		StaleCellThreshold:     40,
		AlternatingMinLength:   6,
		CycleMinPeriod:         2,
		CycleMaxPeriod:         6,
		CycleMinRepeats:        3,
		ClusterRoutingMinNodes: 2000,
		MaxTeleportAttempts:    5,
	}
}

// DefaultRunnerConfig 返回默认调度配置
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		StepDelay:     2 * time.Second,
		SnapshotEvery: 25,
	}
}

// DefaultVisionConfig 返回默认视觉决策配置
func DefaultVisionConfig() VisionConfig {
	return VisionConfig{
		Enabled:          false,
		Provider:         "openai",
		BaseURL:          "https://api.openai.com",
		Model:            "gpt-4o-mini",
		EndpointPath:     "/v1/chat/completions",
		Temperature:      0.2,
		Timeout:          60 * time.Second,
		MaxAttempts:      3,
		InitialMaxTokens: 600,
		MaxTokensCap:     2400,
		Backoff: BackoffConfig{
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     8 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
	}
}

// DefaultNodeSourceConfig 返回默认节点源配置
func DefaultNodeSourceConfig() NodeSourceConfig {
	return NodeSourceConfig{
		BaseURL:           "http://localhost:8090",
		Timeout:           15 * time.Second,
		RequestsPerSecond: 5,
		Burst:             2,
	}
}

// DefaultObserveConfig 返回默认观测配置
func DefaultObserveConfig() ObserveConfig {
	return ObserveConfig{
		Type:           "none",
		Headless:       true,
		ViewportWidth:  1024,
		ViewportHeight: 768,
		SettleDelay:    1500 * time.Millisecond,
		Timeout:        30 * time.Second,
		Quality:        80,
	}
}

// DefaultPersistenceConfig 返回默认快照存储配置
func DefaultPersistenceConfig() PersistenceConfig {
	return PersistenceConfig{
		Type:    "memory",
		BaseDir: "./data/snapshots",
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "panoroam:",
		},
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Enabled:          true,
		HTTPPort:         8080,
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     30 * time.Second,
		ShutdownTimeout:  15 * time.Second,
		MetricsNamespace: "panoroam",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:        false,
		OTLPEndpoint:   "localhost:4317",
		ServiceName:    "panoroam",
		SampleRate:     0.1,
		ExportInterval: 30 * time.Second,
	}
}
