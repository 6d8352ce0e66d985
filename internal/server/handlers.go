package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/panoroam/explorer"
	"github.com/BaSui01/panoroam/persistence"
)

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入成功响应
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{Success: true, Data: data, Timestamp: time.Now()})
}

// WriteErrorMessage 写入错误响应
func WriteErrorMessage(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, Response{
		Error:     &ErrorInfo{Code: code, Message: message},
		Timestamp: time.Now(),
	})
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

// HealthCheck 就绪检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a ping function to HealthCheck.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

// Name implements HealthCheck.
func (c CheckFunc) Name() string { return c.CheckName }

// Check implements HealthCheck.
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string                 `json:"status"` // "healthy", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// =============================================================================
// 🧭 探索状态 Handler
// =============================================================================

// AgentView 是 /status 所需的 Agent 只读视图
type AgentView interface {
	Stats() explorer.Stats
}

// RunnerView 是 /status 所需的 Runner 只读视图
type RunnerView interface {
	Status() explorer.RunnerStatus
}

// Status 是 /status 的响应体
type Status struct {
	Agent  explorer.Stats         `json:"agent"`
	Runner *explorer.RunnerStatus `json:"runner,omitempty"`
}

// Handlers 汇总只读 HTTP 端点
type Handlers struct {
	agent   AgentView
	runner  RunnerView
	store   persistence.Store
	metrics HTTPMetrics
	version string
	logger  *zap.Logger

	mu     sync.RWMutex
	checks []HealthCheck
}

// HandlerOption 配置 Handlers
type HandlerOption func(*Handlers)

// WithRunner 在 /status 中附带 Runner 状态
func WithRunner(r RunnerView) HandlerOption {
	return func(h *Handlers) { h.runner = r }
}

// WithStore 启用 /snapshots 端点，并注册存储就绪检查
func WithStore(s persistence.Store) HandlerOption {
	return func(h *Handlers) { h.store = s }
}

// WithHTTPMetrics 记录 HTTP 指标
func WithHTTPMetrics(m HTTPMetrics) HandlerOption {
	return func(h *Handlers) { h.metrics = m }
}

// WithVersion 设置 /healthz 返回的版本号
func WithVersion(v string) HandlerOption {
	return func(h *Handlers) { h.version = v }
}

// NewHandlers 创建 Handlers
func NewHandlers(agent AgentView, logger *zap.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handlers{
		agent:  agent,
		logger: logger.With(zap.String("component", "http_handlers")),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.store != nil {
		h.RegisterCheck(CheckFunc{CheckName: "snapshot_store", Fn: h.store.Ping})
	}
	return h
}

// RegisterCheck 注册就绪检查
func (h *Handlers) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// Routes 返回挂载了全部端点与中间件的 http.Handler
func (h *Handlers) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.HandleHealthz)
	mux.HandleFunc("GET /readyz", h.HandleReady)
	mux.HandleFunc("GET /status", h.HandleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())
	if h.store != nil {
		mux.HandleFunc("GET /snapshots", h.HandleListSnapshots)
		mux.HandleFunc("GET /snapshots/{id}", h.HandleGetSnapshot)
	}
	return Chain(mux, Recovery(h.logger), Instrument(h.logger, h.metrics))
}

// HandleHealthz 存活探针
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   h.version,
	})
}

// HandleReady 就绪探针，逐个运行已注册的检查
func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   h.version,
		Checks:    make(map[string]CheckResult, len(checks)),
	}

	allHealthy := true
	for _, check := range checks {
		start := time.Now()
		err := check.Check(ctx)
		latency := time.Since(start)

		result := CheckResult{Status: "pass", Latency: latency.String()}
		if err != nil {
			result.Status = "fail"
			result.Message = err.Error()
			allHealthy = false
			h.logger.Warn("health check failed",
				zap.String("check", check.Name()),
				zap.Error(err),
				zap.Duration("latency", latency))
		}
		status.Checks[check.Name()] = result
	}

	if !allHealthy {
		status.Status = "unhealthy"
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// HandleStatus 返回 Agent 与 Runner 的当前状态
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st := Status{Agent: h.agent.Stats()}
	if h.runner != nil {
		rs := h.runner.Status()
		st.Runner = &rs
	}
	WriteSuccess(w, st)
}

// HandleListSnapshots 列出已保存的快照摘要（不含 payload）
func (h *Handlers) HandleListSnapshots(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	WriteSuccess(w, list)
}

// HandleGetSnapshot 返回单个快照
func (h *Handlers) HandleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	WriteSuccess(w, snap)
}

func (h *Handlers) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		WriteErrorMessage(w, http.StatusNotFound, "SNAPSHOT_NOT_FOUND", err.Error())
	case errors.Is(err, persistence.ErrInvalidInput):
		WriteErrorMessage(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	default:
		h.logger.Error("snapshot store failed", zap.Error(err))
		WriteErrorMessage(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
	}
}
