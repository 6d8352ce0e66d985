// 配置热重载管理器。
//
// 监听配置文件，重新加载并校验后通知回调；回调失败时回滚到上一份配置。
// 只有注册表中标记为可热重载的字段会在运行期生效，其余变更记录为需重启。
package config

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HotReloadManager 管理配置热重载
type HotReloadManager struct {
	mu sync.RWMutex

	config     *Config
	configPath string
	envPrefix  string

	watcher      *FileWatcher
	pollInterval time.Duration

	validateFunc    ValidateFunc
	reloadCallbacks []ReloadCallback

	changeLog    []ConfigChange
	maxChangeLog int

	logger  *zap.Logger
	running bool
	cancel  context.CancelFunc
}

// ReloadCallback 重新加载配置后调用；返回错误会触发回滚
type ReloadCallback func(oldConfig, newConfig *Config) error

// ValidateFunc 额外的配置校验钩子
type ValidateFunc func(newConfig *Config) error

// ConfigChange 代表一次字段变更
type ConfigChange struct {
	Timestamp       time.Time `json:"timestamp"`
	Source          string    `json:"source"`
	Path            string    `json:"path"`
	OldValue        any       `json:"old_value,omitempty"`
	NewValue        any       `json:"new_value,omitempty"`
	RequiresRestart bool      `json:"requires_restart"`
}

// HotReloadableField 描述一个可在运行期生效的字段
type HotReloadableField struct {
	Path        string
	Description string
}

// hotReloadableFields 运行期生效的字段；其余字段变更需重启
var hotReloadableFields = map[string]HotReloadableField{
	"Log.Level": {
		Path:        "Log.Level",
		Description: "Log level (debug, info, warn, error)",
	},
	"Runner.StepDelay": {
		Path:        "Runner.StepDelay",
		Description: "Pause between exploration steps",
	},
}

// sensitiveFields 日志与变更记录中需脱敏的字段
var sensitiveFields = map[string]bool{
	"Vision.APIKey":              true,
	"NodeSource.APIKey":          true,
	"Persistence.Redis.Password": true,
}

// --- 选项 ---

// HotReloadOption 配置 HotReloadManager
type HotReloadOption func(*HotReloadManager)

// WithHotReloadLogger 设置记录器
func WithHotReloadLogger(logger *zap.Logger) HotReloadOption {
	return func(m *HotReloadManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithReloadEnvPrefix 设置重新加载时使用的环境变量前缀
func WithReloadEnvPrefix(prefix string) HotReloadOption {
	return func(m *HotReloadManager) {
		m.envPrefix = prefix
	}
}

// WithReloadPollInterval 设置文件轮询间隔
func WithReloadPollInterval(d time.Duration) HotReloadOption {
	return func(m *HotReloadManager) {
		m.pollInterval = d
	}
}

// WithValidateFunc 设置配置验证钩子
func WithValidateFunc(fn ValidateFunc) HotReloadOption {
	return func(m *HotReloadManager) {
		m.validateFunc = fn
	}
}

// NewHotReloadManager 创建热重载管理器；configPath 为空时只支持 ApplyConfig
func NewHotReloadManager(config *Config, configPath string, opts ...HotReloadOption) *HotReloadManager {
	m := &HotReloadManager{
		config:       config,
		configPath:   configPath,
		envPrefix:    "PANOROAM",
		pollInterval: time.Second,
		maxChangeLog: 100,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "config_reload"))
	return m
}

// Start 开始监听配置文件
func (m *HotReloadManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("hot reload manager already running")
	}
	if m.configPath == "" {
		return fmt.Errorf("no config path set")
	}

	watcher, err := NewFileWatcher(
		[]string{m.configPath},
		WithWatcherLogger(m.logger),
		WithPollInterval(m.pollInterval),
		WithDebounceDelay(500*time.Millisecond),
	)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	watcher.OnChange(m.handleFileChange)

	watchCtx, cancel := context.WithCancel(ctx)
	if err := watcher.Start(watchCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start file watcher: %w", err)
	}

	m.watcher = watcher
	m.cancel = cancel
	m.running = true
	m.logger.Info("hot reload manager started", zap.String("config_path", m.configPath))
	return nil
}

// Stop 停止监听
func (m *HotReloadManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.cancel()
	if err := m.watcher.Stop(); err != nil {
		m.logger.Error("failed to stop file watcher", zap.Error(err))
	}
	m.running = false
	m.logger.Info("hot reload manager stopped")
	return nil
}

func (m *HotReloadManager) handleFileChange(event FileEvent) {
	if event.Op == FileOpRemove {
		m.logger.Warn("config file removed, keeping current config", zap.String("path", event.Path))
		return
	}
	if err := m.ReloadFromFile(); err != nil {
		m.logger.Error("failed to reload configuration", zap.Error(err))
	}
}

// ReloadFromFile 从文件重新加载配置；失败时保持当前配置
func (m *HotReloadManager) ReloadFromFile() error {
	if m.configPath == "" {
		return fmt.Errorf("no config path set")
	}

	newConfig, err := NewLoader().
		WithConfigPath(m.configPath).
		WithEnvPrefix(m.envPrefix).
		Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return m.ApplyConfig(newConfig, "file")
}

// ApplyConfig 校验并应用新配置，然后通知回调。
// 任一回调返回错误或 panic 时恢复旧配置，并以旧配置再次通知已执行的回调。
func (m *HotReloadManager) ApplyConfig(newConfig *Config, source string) error {
	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if m.validateFunc != nil {
		if err := m.validateFunc(newConfig); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}

	m.mu.Lock()
	oldConfig := m.config
	changes := detectChanges(oldConfig, newConfig)
	if len(changes) == 0 {
		m.mu.Unlock()
		return nil
	}
	now := time.Now()
	requiresRestart := false
	for i := range changes {
		changes[i].Timestamp = now
		changes[i].Source = source
		if changes[i].RequiresRestart {
			requiresRestart = true
		}
		m.logChange(changes[i])
	}
	m.config = newConfig
	m.changeLog = append(m.changeLog, changes...)
	if len(m.changeLog) > m.maxChangeLog {
		m.changeLog = m.changeLog[len(m.changeLog)-m.maxChangeLog:]
	}
	callbacks := append([]ReloadCallback(nil), m.reloadCallbacks...)
	m.mu.Unlock()

	if n, err := notifySafe(callbacks, oldConfig, newConfig); err != nil {
		m.mu.Lock()
		if m.config == newConfig {
			m.config = oldConfig
		}
		m.mu.Unlock()
		if _, rbErr := notifySafe(callbacks[:n], newConfig, oldConfig); rbErr != nil {
			m.logger.Error("rollback callback failed", zap.Error(rbErr))
		}
		m.logger.Error("reload callback failed, rolled back", zap.Error(err))
		return fmt.Errorf("config rolled back: %w", err)
	}

	if requiresRestart {
		m.logger.Warn("some configuration changes require a restart to take effect")
	}
	m.logger.Info("configuration reloaded",
		zap.Int("changes", len(changes)),
		zap.Bool("requires_restart", requiresRestart))
	return nil
}

// notifySafe runs callbacks in order and returns how many completed before a
// failure.
func notifySafe(callbacks []ReloadCallback, oldConfig, newConfig *Config) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panicked: %v", r)
		}
	}()
	for _, cb := range callbacks {
		if err := cb(oldConfig, newConfig); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// detectChanges 递归比较新旧配置的导出字段
func detectChanges(oldConfig, newConfig *Config) []ConfigChange {
	var changes []ConfigChange
	compareStructs("", reflect.ValueOf(oldConfig).Elem(), reflect.ValueOf(newConfig).Elem(), &changes)
	return changes
}

func compareStructs(prefix string, oldVal, newVal reflect.Value, changes *[]ConfigChange) {
	t := oldVal.Type()
	for i := 0; i < oldVal.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		path := field.Name
		if prefix != "" {
			path = prefix + "." + field.Name
		}

		oldField, newField := oldVal.Field(i), newVal.Field(i)
		if oldField.Kind() == reflect.Struct {
			compareStructs(path, oldField, newField, changes)
			continue
		}
		if reflect.DeepEqual(oldField.Interface(), newField.Interface()) {
			continue
		}

		change := ConfigChange{
			Path:            path,
			OldValue:        oldField.Interface(),
			NewValue:        newField.Interface(),
			RequiresRestart: !IsHotReloadable(path),
		}
		if sensitiveFields[path] {
			change.OldValue = "[REDACTED]"
			change.NewValue = "[REDACTED]"
		}
		*changes = append(*changes, change)
	}
}

func (m *HotReloadManager) logChange(change ConfigChange) {
	m.logger.Info("configuration changed",
		zap.String("path", change.Path),
		zap.String("source", change.Source),
		zap.Bool("requires_restart", change.RequiresRestart),
		zap.Any("old_value", change.OldValue),
		zap.Any("new_value", change.NewValue))
}

// OnReload 注册配置重新加载的回调
func (m *HotReloadManager) OnReload(callback ReloadCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloadCallbacks = append(m.reloadCallbacks, callback)
}

// GetConfig 返回当前配置
func (m *HotReloadManager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetChangeLog 返回最近 limit 条变更；limit <= 0 返回全部
func (m *HotReloadManager) GetChangeLog(limit int) []ConfigChange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start := 0
	if limit > 0 && len(m.changeLog) > limit {
		start = len(m.changeLog) - limit
	}
	return append([]ConfigChange(nil), m.changeLog[start:]...)
}

// IsHotReloadable 判断字段是否在运行期生效
func IsHotReloadable(path string) bool {
	_, ok := hotReloadableFields[path]
	return ok
}

// GetHotReloadableFields 返回可热重载字段注册表的副本
func GetHotReloadableFields() map[string]HotReloadableField {
	out := make(map[string]HotReloadableField, len(hotReloadableFields))
	for k, v := range hotReloadableFields {
		out[k] = v
	}
	return out
}
