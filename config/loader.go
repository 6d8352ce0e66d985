// =============================================================================
// 📦 Panoroam 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("PANOROAM").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 Panoroam 的完整配置结构
type Config struct {
	// Explorer 单步状态机参数
	Explorer ExplorerConfig `yaml:"explorer" env:"EXPLORER"`

	// Runner 调度参数
	Runner RunnerConfig `yaml:"runner" env:"RUNNER"`

	// Vision 视觉决策服务
	Vision VisionConfig `yaml:"vision" env:"VISION"`

	// NodeSource 全景节点源
	NodeSource NodeSourceConfig `yaml:"node_source" env:"NODE_SOURCE"`

	// Observe 观测截图
	Observe ObserveConfig `yaml:"observe" env:"OBSERVE"`

	// Persistence 快照存储
	Persistence PersistenceConfig `yaml:"persistence" env:"PERSISTENCE"`

	// Server HTTP 服务器
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ExplorerConfig 探索状态机配置
type ExplorerConfig struct {
	// 空间格子边长（米）
	CellSizeMeters float64 `yaml:"cell_size_meters" env:"CELL_SIZE_METERS"`
	// 别名聚类阈值（米）
	ClusterThresholdMeters float64 `yaml:"cluster_threshold_meters" env:"CLUSTER_THRESHOLD_METERS"`
	// 最近访问历史长度
	HistorySize int `yaml:"history_size" env:"HISTORY_SIZE"`
	// 死胡同恢复的投射步长与最大距离（米）
	DeadEndStepMeters float64 `yaml:"dead_end_step_meters" env:"DEAD_END_STEP_METERS"`
	DeadEndMaxMeters  float64 `yaml:"dead_end_max_meters" env:"DEAD_END_MAX_METERS"`
	// 连续多少步没有新格子后强制跳转
	StaleCellThreshold int `yaml:"stale_cell_threshold" env:"STALE_CELL_THRESHOLD"`
	// 往返震荡检测的最小长度
	AlternatingMinLength int `yaml:"alternating_min_length" env:"ALTERNATING_MIN_LENGTH"`
	// 周期循环检测
	CycleMinPeriod  int `yaml:"cycle_min_period" env:"CYCLE_MIN_PERIOD"`
	CycleMaxPeriod  int `yaml:"cycle_max_period" env:"CYCLE_MAX_PERIOD"`
	CycleMinRepeats int `yaml:"cycle_min_repeats" env:"CYCLE_MIN_REPEATS"`
	// 图规模达到该值后改用聚类路由
	ClusterRoutingMinNodes int `yaml:"cluster_routing_min_nodes" env:"CLUSTER_ROUTING_MIN_NODES"`
	// 单次跳转最多尝试的边界节点数
	MaxTeleportAttempts int `yaml:"max_teleport_attempts" env:"MAX_TELEPORT_ATTEMPTS"`
}

// RunnerConfig 调度配置
type RunnerConfig struct {
	// 上一步返回后到下一步开始的间隔
	StepDelay time.Duration `yaml:"step_delay" env:"STEP_DELAY"`
	// 最大步数，0 表示不限
	MaxSteps int `yaml:"max_steps" env:"MAX_STEPS"`
	// 每 N 步保存一次快照，0 表示关闭
	SnapshotEvery int `yaml:"snapshot_every" env:"SNAPSHOT_EVERY"`
	// 快照 ID，为空时使用 run id
	SnapshotID string `yaml:"snapshot_id" env:"SNAPSHOT_ID"`
	// 启动时从该快照恢复
	ResumeFrom string `yaml:"resume_from" env:"RESUME_FROM"`
}

// VisionConfig 视觉决策配置
type VisionConfig struct {
	// 是否启用；关闭时所有多选步骤走回退策略
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Provider 标识，仅用于日志与错误
	Provider string `yaml:"provider" env:"PROVIDER"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 端点路径
	EndpointPath string `yaml:"endpoint_path" env:"ENDPOINT_PATH"`
	// 温度参数
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 单次请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 每次决策最多调用次数
	MaxAttempts int `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	// 初始与上限 token 预算
	InitialMaxTokens int `yaml:"initial_max_tokens" env:"INITIAL_MAX_TOKENS"`
	MaxTokensCap     int `yaml:"max_tokens_cap" env:"MAX_TOKENS_CAP"`
	// 调用间退避
	Backoff BackoffConfig `yaml:"backoff" env:"BACKOFF"`
	// 每秒请求数，0 表示不限流
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
}

// BackoffConfig 退避配置
type BackoffConfig struct {
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	Multiplier   float64       `yaml:"multiplier" env:"MULTIPLIER"`
	Jitter       bool          `yaml:"jitter" env:"JITTER"`
}

// NodeSourceConfig 节点源配置
type NodeSourceConfig struct {
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key（可选）
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 限流
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int     `yaml:"burst" env:"BURST"`
}

// ObserveConfig 观测截图配置
type ObserveConfig struct {
	// 截图方式: none, chrome
	Type string `yaml:"type" env:"TYPE"`
	// 查看器 URL 模板，支持 {id} {lat} {lng} {heading}
	URLTemplate string `yaml:"url_template" env:"URL_TEMPLATE"`
	// 是否无头模式
	Headless bool `yaml:"headless" env:"HEADLESS"`
	// 视口尺寸
	ViewportWidth  int `yaml:"viewport_width" env:"VIEWPORT_WIDTH"`
	ViewportHeight int `yaml:"viewport_height" env:"VIEWPORT_HEIGHT"`
	// 截图前等待可见的选择器
	WaitSelector string `yaml:"wait_selector" env:"WAIT_SELECTOR"`
	// 导航后等待瓦片加载
	SettleDelay time.Duration `yaml:"settle_delay" env:"SETTLE_DELAY"`
	// 单次截图超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// JPEG 质量
	Quality int `yaml:"quality" env:"QUALITY"`
}

// PersistenceConfig 快照存储配置
type PersistenceConfig struct {
	// 存储类型: memory, file, redis
	Type string `yaml:"type" env:"TYPE"`
	// 文件存储目录
	BaseDir string `yaml:"base_dir" env:"BASE_DIR"`
	// Redis 配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// 是否启用 HTTP 服务
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// Prometheus 指标命名空间
	MetricsNamespace string `yaml:"metrics_namespace" env:"METRICS_NAMESPACE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// 指标导出间隔，0 使用 SDK 默认值
	ExportInterval time.Duration `yaml:"export_interval" env:"EXPORT_INTERVAL"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "PANOROAM",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	e := c.Explorer
	if e.CellSizeMeters <= 0 {
		errs = append(errs, "explorer.cell_size_meters must be positive")
	}
	if e.ClusterThresholdMeters < 0 {
		errs = append(errs, "explorer.cluster_threshold_meters must not be negative")
	}
	if e.DeadEndStepMeters <= 0 || e.DeadEndMaxMeters < e.DeadEndStepMeters {
		errs = append(errs, "explorer.dead_end_max_meters must be at least dead_end_step_meters")
	}
	if e.CycleMinPeriod < 2 || e.CycleMaxPeriod < e.CycleMinPeriod {
		errs = append(errs, "explorer cycle period must satisfy 2 <= min <= max")
	}
	if e.CycleMinRepeats < 2 {
		errs = append(errs, "explorer.cycle_min_repeats must be at least 2")
	}

	if c.Runner.StepDelay < 0 {
		errs = append(errs, "runner.step_delay must not be negative")
	}
	if c.Runner.MaxSteps < 0 || c.Runner.SnapshotEvery < 0 {
		errs = append(errs, "runner.max_steps and runner.snapshot_every must not be negative")
	}

	if c.Vision.Enabled {
		if c.Vision.BaseURL == "" || c.Vision.Model == "" {
			errs = append(errs, "vision.base_url and vision.model are required when vision is enabled")
		}
		if c.Vision.MaxAttempts <= 0 {
			errs = append(errs, "vision.max_attempts must be positive")
		}
		if c.Vision.MaxTokensCap < c.Vision.InitialMaxTokens {
			errs = append(errs, "vision.max_tokens_cap must be at least initial_max_tokens")
		}
		if c.Vision.Temperature < 0 || c.Vision.Temperature > 2 {
			errs = append(errs, "vision.temperature must be between 0 and 2")
		}
	}

	if c.NodeSource.BaseURL == "" {
		errs = append(errs, "node_source.base_url is required")
	}

	switch c.Observe.Type {
	case "", "none":
	case "chrome":
		if c.Observe.URLTemplate == "" {
			errs = append(errs, "observe.url_template is required for chrome capture")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown observe.type %q", c.Observe.Type))
	}

	switch c.Persistence.Type {
	case "", "memory", "file", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unknown persistence.type %q", c.Persistence.Type))
	}

	if c.Server.Enabled && (c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535) {
		errs = append(errs, "invalid HTTP port")
	}

	if c.Telemetry.Enabled && (c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1) {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
