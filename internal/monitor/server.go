package monitor

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultEventLimit = 200
	maxEventLimit     = 1000
)

// Server 暴露健康检查、事件查询与 Prometheus 指标。
type Server struct {
	addr   string
	router *gin.Engine
	logger *zap.Logger
}

// NewServer 构建监控 HTTP 服务。metrics 为空时不注册 /metrics。
func NewServer(addr string, svc *Service, metrics *Metrics, logger *zap.Logger) (*Server, error) {
	if svc == nil {
		return nil, errors.New("monitor: service 不能为空")
	}
	if addr == "" {
		addr = ":9090"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/events", func(c *gin.Context) {
		limit := defaultEventLimit
		if qs := c.Query("limit"); qs != "" {
			if v, err := strconv.Atoi(qs); err == nil && v > 0 {
				if v > maxEventLimit {
					v = maxEventLimit
				}
				limit = v
			}
		}

		eventType := EventType(strings.ToLower(strings.TrimSpace(c.Query("type"))))
		events, err := svc.ListEvents(c.Request.Context(), eventType, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, events)
	})
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	return &Server{addr: addr, router: router, logger: logger}, nil
}

// requestLogger 以 Debug 级别记录每个请求。
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP 请求",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// Addr 返回监听地址。
func (s *Server) Addr() string {
	return s.addr
}

// Handler 返回路由，便于测试。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start 启动 HTTP 服务，直到 ctx 取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("监控接口已启动", zap.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			s.logger.Warn("关闭监控服务失败", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		return err
	}
}
