// Package api 通过 REST 接口暴露配置分组、属性与锁。
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"settingshub/internal/observability/alerting"
	"settingshub/internal/observability/metrics"
	"settingshub/internal/settings"
	"settingshub/pkg/logger"
)

// Server 负责暴露 REST 接口。
type Server struct {
	addr            string
	service         *settings.Service
	metrics         *metrics.Registry
	exposeMetrics   bool
	alerts          alerting.Dispatcher
	log             *slog.Logger
	shutdownTimeout time.Duration
}

// Option 调整 Server 的可选依赖。
type Option func(*Server)

// WithMetrics 指定指标实例；expose 为 true 时在 /metrics 暴露。
func WithMetrics(reg *metrics.Registry, expose bool) Option {
	return func(s *Server) {
		if reg != nil {
			s.metrics = reg
		}
		s.exposeMetrics = expose
	}
}

// WithAlerts 设置 5xx 错误的告警出口。
func WithAlerts(d alerting.Dispatcher) Option {
	return func(s *Server) { s.alerts = d }
}

// WithShutdownTimeout 设置优雅关闭的等待时间。
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, service *settings.Service, opts ...Option) *Server {
	s := &Server{
		addr:            addr,
		service:         service,
		metrics:         metrics.Default(),
		log:             logger.Named("api"),
		shutdownTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回注册好全部路由的处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /api/v1/groups/{group}", "group.get", s.handleGetGroup)
	s.route(mux, "PATCH /api/v1/groups/{group}", "group.save", s.handleSaveGroup)
	s.route(mux, "GET /api/v1/groups/{group}/properties/{name}", "property.get", s.handleGetProperty)
	s.route(mux, "PUT /api/v1/groups/{group}/properties/{name}", "property.put", s.handlePutProperty)
	s.route(mux, "DELETE /api/v1/groups/{group}/properties/{name}", "property.delete", s.handleDeleteProperty)
	s.route(mux, "GET /api/v1/groups/{group}/locks", "locks.get", s.handleGetLocks)
	s.route(mux, "POST /api/v1/groups/{group}/locks", "locks.lock", s.handleLock)
	s.route(mux, "DELETE /api/v1/groups/{group}/locks", "locks.unlock", s.handleUnlock)
	s.route(mux, "GET /healthz", "healthz", s.handleHealth)
	if s.exposeMetrics {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("API 服务已启动", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// route 注册路由并记录请求指标。
func (s *Server) route(mux *http.ServeMux, pattern, name string, handler http.HandlerFunc) {
	mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(rec, r)
		s.metrics.ObserveHTTPRequest(name, r.Method, rec.status, time.Since(start))
	}))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "服务已关闭")
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
