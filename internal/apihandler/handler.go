package apihandler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/weekend-code-project/weekendstack/internal/config"
	"github.com/weekend-code-project/weekendstack/internal/metrics"
	"github.com/weekend-code-project/weekendstack/internal/redirect"
	"github.com/weekend-code-project/weekendstack/internal/registry"
	"github.com/weekend-code-project/weekendstack/internal/tunnel"
)

// redirectBody GET跳转响应的正文
const redirectBody = "redirect\n"

// Handler 定义API处理器接口
type Handler interface {
	// StartRedirectAPI 启动跳转服务
	StartRedirectAPI() error

	// StartManagementAPI 启动管理API服务
	StartManagementAPI() error

	// Shutdown 优雅关闭API服务
	Shutdown(ctx context.Context) error
}

// TunnelProber 跳转决策和状态查询所需的隧道探测器能力
type TunnelProber interface {
	redirect.TunnelState
	CurrentStatus() tunnel.Status
	Host() string
}

// EchoHandler 实现Handler接口
type EchoHandler struct {
	redirectServer   *echo.Echo
	managementServer *echo.Echo
	cfg              *config.Config
	logger           config.Logger
	router           *redirect.Router
	registry         *registry.Registry
	prober           TunnelProber
	metrics          *metrics.Metrics
}

// NewAPIHandler 创建一个新的API处理器，m为nil时不记录指标
func NewAPIHandler(cfg *config.Config, logger config.Logger, reg *registry.Registry, prober TunnelProber, m *metrics.Metrics) *EchoHandler {
	return &EchoHandler{
		cfg:      cfg,
		logger:   logger,
		router:   redirect.NewRouter(cfg.Router, reg, prober),
		registry: reg,
		prober:   prober,
		metrics:  m,
	}
}

// StartRedirectAPI 启动跳转服务
func (h *EchoHandler) StartRedirectAPI() error {
	h.logger.Info("启动跳转服务",
		zap.String("address", h.cfg.Server.ListenAddress),
		zap.Int("port", h.cfg.Server.Port))

	h.redirectServer = h.newRedirectServer()

	// 启动服务（非阻塞）
	go func() {
		addr := fmt.Sprintf("%s:%d", h.cfg.Server.ListenAddress, h.cfg.Server.Port)
		if err := h.redirectServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("跳转服务启动失败", zap.Error(err))
		}
	}()

	return nil
}

// StartManagementAPI 启动管理API服务，端口为0时跳过
func (h *EchoHandler) StartManagementAPI() error {
	if h.cfg.Management.Port == 0 {
		h.logger.Info("管理API已禁用")
		return nil
	}

	h.logger.Info("启动管理API服务",
		zap.String("address", h.cfg.Management.ListenAddress),
		zap.Int("port", h.cfg.Management.Port))

	h.managementServer = h.newManagementServer()

	go func() {
		addr := fmt.Sprintf("%s:%d", h.cfg.Management.ListenAddress, h.cfg.Management.Port)
		if err := h.managementServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("管理API服务启动失败", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown 优雅关闭API服务
func (h *EchoHandler) Shutdown(ctx context.Context) error {
	h.logger.Info("正在关闭API服务...")

	if h.redirectServer != nil {
		if err := h.redirectServer.Shutdown(ctx); err != nil {
			h.logger.Error("关闭跳转服务出错", zap.Error(err))
			return err
		}
	}

	if h.managementServer != nil {
		if err := h.managementServer.Shutdown(ctx); err != nil {
			h.logger.Error("关闭管理API服务出错", zap.Error(err))
			return err
		}
	}

	return nil
}

// newRedirectServer 创建跳转服务，所有路径和方法都进入同一个处理函数
func (h *EchoHandler) newRedirectServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = h.redirectErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(h.requestLogger())

	e.Any("/*", h.redirectHandler)

	return e
}

// redirectHandler 解析请求并返回302，错误时只返回状态码
func (h *EchoHandler) redirectHandler(c echo.Context) error {
	req := c.Request()
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return h.reject(c, http.StatusNotFound, nil)
	}

	decision, err := h.router.Resolve(req.Context(), req)
	if err != nil {
		return h.reject(c, redirect.StatusCode(err), err)
	}

	location := decision.Target.String()
	h.logger.Debug("跳转",
		zap.String("service", decision.Request.Service),
		zap.String("zone", decision.Zone.String()),
		zap.String("location", location))
	h.metrics.ObserveRedirect(decision.Zone.String())

	header := c.Response().Header()
	header.Set(echo.HeaderLocation, location)
	header.Set("Cache-Control", "no-store")

	if req.Method == http.MethodHead {
		return c.NoContent(http.StatusFound)
	}
	return c.String(http.StatusFound, redirectBody)
}

// reject 返回不带正文的错误状态
func (h *EchoHandler) reject(c echo.Context, status int, err error) error {
	if status >= http.StatusInternalServerError {
		h.logger.Error("跳转失败", zap.String("path", c.Request().URL.Path), zap.Error(err))
	} else if err != nil {
		h.logger.Debug("拒绝跳转请求", zap.Int("status", status), zap.Error(err))
	}
	h.metrics.ObserveRejection(status)
	return c.NoContent(status)
}

// redirectErrorHandler 跳转服务只暴露404，且错误响应不带正文
func (h *EchoHandler) redirectErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
	}
	if status == http.StatusMethodNotAllowed {
		status = http.StatusNotFound
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("跳转服务内部错误", zap.Error(err))
	}

	h.metrics.ObserveRejection(status)
	if err := c.NoContent(status); err != nil {
		h.logger.Error("写入错误响应失败", zap.Error(err))
	}
}

// requestLogger 将请求日志写入zap
func (h *EchoHandler) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogHost:      true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			h.logger.Info("请求",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.String("host", v.Host),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID))
			return nil
		},
	})
}

// newManagementServer 创建管理API服务
func (h *EchoHandler) newManagementServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())

	h.registerManagementRoutes(e)
	return e
}

// registerManagementRoutes 注册管理API路由
func (h *EchoHandler) registerManagementRoutes(e *echo.Echo) {
	// 健康检查端点
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
			"service":   "link-router-management-api",
		})
	})

	if h.cfg.Metrics.Enabled && h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics.Handler()))
	}

	api := e.Group("/api/v1")
	api.GET("/services", h.listServicesHandler)
	api.GET("/tunnel", h.tunnelStatusHandler)
	api.GET("/config", h.routerConfigHandler)
}

// ServicesResponse 服务表列表响应
type ServicesResponse struct {
	Count    int              `json:"count"`
	Services []registry.Entry `json:"services"`
}

// listServicesHandler 列出服务表
func (h *EchoHandler) listServicesHandler(c echo.Context) error {
	entries := h.registry.Entries()
	if entries == nil {
		entries = []registry.Entry{}
	}
	return c.JSON(http.StatusOK, ServicesResponse{
		Count:    len(entries),
		Services: entries,
	})
}

// TunnelResponse 隧道状态响应
type TunnelResponse struct {
	Host       string    `json:"host"`
	Configured bool      `json:"configured"`
	Available  bool      `json:"available"`
	CheckedAt  time.Time `json:"checked_at"`
	Interval   string    `json:"interval"`
}

// tunnelStatusHandler 返回缓存的隧道状态，不触发探测
func (h *EchoHandler) tunnelStatusHandler(c echo.Context) error {
	resp := TunnelResponse{Interval: h.cfg.Tunnel.Interval.String()}
	if h.prober != nil {
		st := h.prober.CurrentStatus()
		resp.Host = h.prober.Host()
		resp.Configured = st.Configured
		resp.Available = st.Available
		resp.CheckedAt = st.CheckedAt
	}
	return c.JSON(http.StatusOK, resp)
}

// routerConfigHandler 返回路由相关的静态配置
func (h *EchoHandler) routerConfigHandler(c echo.Context) error {
	r := h.cfg.Router
	labOnly := r.LabOnlyServices
	if labOnly == nil {
		labOnly = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"lab_domain":        r.LabDomain,
		"base_domain":       r.BaseDomain,
		"lab_scheme":        r.LabScheme,
		"external_scheme":   r.ExternalScheme,
		"host_ip":           r.HostIP,
		"force_mode":        r.ForceMode,
		"lab_only_services": labOnly,
	})
}
