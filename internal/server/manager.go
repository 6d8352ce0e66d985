package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🌐 状态服务监听
// =============================================================================

// Manager 运行状态服务的 HTTP 监听，生命周期跟随一次探索运行：
// 启动一次、关闭一次，关闭后不可再启动。
type Manager struct {
	srv       *http.Server
	cfg       Config
	logger    *zap.Logger
	runFields func() []zap.Field

	served atomic.Int64
	failed chan error

	mu    sync.Mutex
	state listenState
	ln    net.Listener
}

type listenState int

const (
	listenIdle listenState = iota
	listenServing
	listenStopped
)

// Config 监听参数
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxHeaderBytes  int
	ShutdownTimeout time.Duration
}

// DefaultConfig 返回默认监听参数
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 30 * time.Second,
	}
}

// ManagerOption 配置 Manager
type ManagerOption func(*Manager)

// WithRunFields 为启动与关闭日志附加当前运行的字段（run id、步序号）
func WithRunFields(fn func() []zap.Field) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.runFields = fn
		}
	}
}

// NewManager 创建状态服务监听
func NewManager(handler http.Handler, cfg Config, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:       cfg,
		failed:    make(chan error, 1),
		runFields: func() []zap.Field { return nil },
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logger.With(zap.String("component", "status_server"))

	m.srv = &http.Server{
		Addr: cfg.Addr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.served.Add(1)
			handler.ServeHTTP(w, r)
		}),
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
		ErrorLog:       zap.NewStdLog(m.logger),
	}
	return m
}

// Start 绑定监听地址并在后台提供服务
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case listenServing:
		return errors.New("status server already started")
	case listenStopped:
		return errors.New("status server is closed")
	}

	ln, err := net.Listen("tcp", m.cfg.Addr)
	if err != nil {
		return fmt.Errorf("status server listen on %s: %w", m.cfg.Addr, err)
	}
	m.ln, m.state = ln, listenServing
	m.logger.Info("status server listening",
		append(m.runFields(), zap.String("addr", ln.Addr().String()))...)

	go func() {
		err := m.srv.Serve(ln)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return
		}
		m.logger.Error("status server failed", zap.Error(err))
		select {
		case m.failed <- err:
		default:
		}
	}()
	return nil
}

// Run 启动并阻塞到 ctx 结束或监听异常退出，适合放进 errgroup。
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return m.Shutdown(context.WithoutCancel(ctx))
	case err := <-m.failed:
		_ = m.Shutdown(context.WithoutCancel(ctx))
		return err
	}
}

// Shutdown 在 ShutdownTimeout 内等待进行中的请求结束；重复调用无副作用
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.state
	m.state = listenStopped
	if prev != listenServing {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
	defer cancel()

	fields := append(m.runFields(), zap.Int64("requests_served", m.served.Load()))
	if err := m.srv.Shutdown(ctx); err != nil {
		m.logger.Error("status server shutdown incomplete", append(fields, zap.Error(err))...)
		return err
	}
	m.logger.Info("status server stopped", fields...)
	return nil
}

// Addr 返回监听地址；启动后为实际绑定的地址
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ln != nil {
		return m.ln.Addr().String()
	}
	return m.cfg.Addr
}

// IsRunning 报告是否正在提供服务
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == listenServing
}

// RequestsServed 返回已接收的请求数
func (m *Manager) RequestsServed() int64 {
	return m.served.Load()
}
