// =============================================================================
// Panoroam 主入口
// =============================================================================
// 探索服务入口点：节点源、视觉决策、调度器、快照存储与 HTTP 状态面
//
// 使用方法:
//
//	panoroam run --seed <id|lat,lng>               # 从节点或坐标开始探索
//	panoroam run --config config.yaml --resume <id> # 从快照恢复
//	panoroam version                                # 显示版本信息
//	panoroam health                                 # 健康检查
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/panoroam/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(runExplore(os.Args[2:]))
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// =============================================================================
// 🧭 run 命令
// =============================================================================

func runExplore(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	seed := fs.String("seed", "", "Start node id or \"lat,lng\"")
	resume := fs.String("resume", "", "Snapshot id to resume from (overrides runner.resume_from)")
	maxSteps := fs.Int("max-steps", -1, "Stop after this many steps (overrides runner.max_steps)")
	envPrefix := fs.String("env-prefix", "PANOROAM", "Prefix of environment variable overrides")
	_ = fs.Parse(args)

	loader := config.NewLoader().WithEnvPrefix(*envPrefix)
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *resume != "" {
		cfg.Runner.ResumeFrom = *resume
	}
	if *maxSteps >= 0 {
		cfg.Runner.MaxSteps = *maxSteps
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		return 1
	}
	if *seed == "" && cfg.Runner.ResumeFrom == "" {
		fmt.Fprintln(os.Stderr, "Either --seed or --resume is required")
		return 1
	}

	logger, level := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting panoroam",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, *configPath, logger, level, config.WithReloadEnvPrefix(*envPrefix))
	if err != nil {
		logger.Error("failed to build application", zap.Error(err))
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := a.close(closeCtx); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	if err := a.start(ctx, *seed); err != nil {
		logger.Error("failed to start exploration", zap.Error(err))
		return 1
	}
	if err := a.run(ctx); err != nil {
		logger.Error("exploration stopped with error", zap.Error(err))
		return 1
	}

	st := a.agent.Stats()
	logger.Info("panoroam stopped",
		zap.Int("steps", st.StepIndex),
		zap.Int("visited", st.Coverage.Visited),
		zap.Int("frontier", st.Coverage.Frontier),
		zap.Float64("distance_meters", st.Coverage.DistanceMeters))
	return 0
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	_ = fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/healthz")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("Panoroam %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`Panoroam - street-level panorama exploration agent

Usage:
  panoroam <command> [options]

Commands:
  run       Explore the panorama graph
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'run':
  --config <path>     Path to configuration file (YAML)
  --seed <id|lat,lng> Start node id or coordinates
  --resume <id>       Resume from a stored snapshot
  --max-steps <n>     Stop after n steps
  --env-prefix <p>    Environment override prefix (default PANOROAM)

Examples:
  panoroam run --seed 40.7128,-74.0060
  panoroam run --config /etc/panoroam/config.yaml --resume nightly
  panoroam health --addr http://localhost:8080
  panoroam version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

// parseLevel 解析日志级别，未知值回退到 info
func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// initLogger 构建 logger，返回的 AtomicLevel 供热重载调整级别
func initLogger(cfg config.LogConfig) (*zap.Logger, zap.AtomicLevel) {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             level,
		Development:       cfg.Format == "console",
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger, level
}
