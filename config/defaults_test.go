package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, ExplorerConfig{}, cfg.Explorer)
	assert.NotEqual(t, RunnerConfig{}, cfg.Runner)
	assert.NotEqual(t, VisionConfig{}, cfg.Vision)
	assert.NotEqual(t, NodeSourceConfig{}, cfg.NodeSource)
	assert.NotEqual(t, ObserveConfig{}, cfg.Observe)
	assert.NotEqual(t, PersistenceConfig{}, cfg.Persistence)
	assert.NotEqual(t, ServerConfig{}, cfg.Server)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
}

func TestDefaultConfig_IsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

// --- Individual Default*Config functions ---

func TestDefaultExplorerConfig(t *testing.T) {
	cfg := DefaultExplorerConfig()
	assert.InDelta(t, 20, cfg.CellSizeMeters, 0.001)
	assert.InDelta(t, 8, cfg.ClusterThresholdMeters, 0.001)
	assert.Equal(t, 10, cfg.HistorySize)
	assert.InDelta(t, 10, cfg.DeadEndStepMeters, 0.001)
	assert.InDelta(t, 120, cfg.DeadEndMaxMeters, 0.001)
	assert.Equal(t, 40, cfg.StaleCellThreshold)
	assert.Equal(t, 6, cfg.AlternatingMinLength)
	assert.Equal(t, 2, cfg.CycleMinPeriod)
	assert.Equal(t, 6, cfg.CycleMaxPeriod)
	assert.Equal(t, 3, cfg.CycleMinRepeats)
	assert.Equal(t, 2000, cfg.ClusterRoutingMinNodes)
	assert.Equal(t, 5, cfg.MaxTeleportAttempts)
}

func TestDefaultRunnerConfig(t *testing.T) {
	cfg := DefaultRunnerConfig()
	assert.Equal(t, 2*time.Second, cfg.StepDelay)
	assert.Zero(t, cfg.MaxSteps)
	assert.Equal(t, 25, cfg.SnapshotEvery)
	assert.Empty(t, cfg.ResumeFrom)
}

func TestDefaultVisionConfig(t *testing.T) {
	cfg := DefaultVisionConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 600, cfg.InitialMaxTokens)
	assert.Equal(t, 2400, cfg.MaxTokensCap)
	assert.Equal(t, "/v1/chat/completions", cfg.EndpointPath)
	assert.Equal(t, 500*time.Millisecond, cfg.Backoff.InitialDelay)
	assert.InDelta(t, 2.0, cfg.Backoff.Multiplier, 0.001)
	assert.True(t, cfg.Backoff.Jitter)
}

func TestDefaultNodeSourceConfig(t *testing.T) {
	cfg := DefaultNodeSourceConfig()
	assert.NotEmpty(t, cfg.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.InDelta(t, 5, cfg.RequestsPerSecond, 0.001)
	assert.Equal(t, 2, cfg.Burst)
}

func TestDefaultObserveConfig(t *testing.T) {
	cfg := DefaultObserveConfig()
	assert.Equal(t, "none", cfg.Type)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 1024, cfg.ViewportWidth)
	assert.Equal(t, 768, cfg.ViewportHeight)
	assert.Equal(t, 80, cfg.Quality)
}

func TestDefaultPersistenceConfig(t *testing.T) {
	cfg := DefaultPersistenceConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "panoroam:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 10, cfg.Redis.PoolSize)
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "panoroam", cfg.MetricsNamespace)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
	assert.False(t, cfg.EnableStacktrace)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.Equal(t, "panoroam", cfg.ServiceName)
	assert.InDelta(t, 0.1, cfg.SampleRate, 0.001)
	assert.Equal(t, 30*time.Second, cfg.ExportInterval)
}
