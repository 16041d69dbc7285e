package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"degradation-orchestrator/pkg/models"
	"degradation-orchestrator/pkg/orchestrator"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Server 编排器HTTP接口
// 统一响应结构 {status, message, data}，与组件侧接口保持一致
type Server struct {
	orch     *orchestrator.Orchestrator
	registry *prometheus.Registry
	limiter  *rate.Limiter
	logger   *zap.Logger
	engine   *gin.Engine
}

// Options HTTP接口配置
type Options struct {
	// TriggerRate 触发端点限速（次/秒），0取默认值
	TriggerRate float64
	// TriggerBurst 触发端点突发额度，0取默认值
	TriggerBurst int
	// Registry prometheus注册表（/metrics端点数据源）
	Registry *prometheus.Registry
}

const (
	defaultTriggerRate  = 10
	defaultTriggerBurst = 20
)

// NewServer 创建HTTP接口
func NewServer(orch *orchestrator.Orchestrator, opts Options, logger *zap.Logger) *Server {
	if opts.TriggerRate <= 0 {
		opts.TriggerRate = defaultTriggerRate
	}
	if opts.TriggerBurst <= 0 {
		opts.TriggerBurst = defaultTriggerBurst
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		orch:     orch,
		registry: opts.Registry,
		limiter:  rate.NewLimiter(rate.Limit(opts.TriggerRate), opts.TriggerBurst),
		logger:   logger,
		engine:   gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/health", s.handleHealth)
		v1.GET("/level", s.handleLevel)
		v1.POST("/trigger", s.handleTrigger)
		v1.GET("/scenarios", s.handleListScenarios)
		v1.GET("/scenarios/:id", s.handleGetScenario)
		v1.POST("/scenarios/:id/recover", s.handleRecover)
		v1.POST("/scenarios/:id/cancel", s.handleCancel)
		v1.GET("/stats", s.handleStats)
	}

	// 根路径别名，供不带版本前缀的客户端使用
	s.engine.GET("/health", s.handleHealth)
	s.engine.POST("/trigger", s.handleTrigger)
	s.engine.GET("/scenarios/:id", s.handleGetScenario)
	s.engine.POST("/scenarios/:id/recover", s.handleRecover)
	s.engine.POST("/scenarios/:id/cancel", s.handleCancel)

	if s.registry != nil {
		s.engine.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}
}

// Handler 底层http.Handler（测试用）
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run 阻塞式启动HTTP服务，ctx取消时优雅关闭
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP接口已启动", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func respond(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

// handleHealth 当前生态健康快照
func (s *Server) handleHealth(c *gin.Context) {
	state := s.orch.Health()
	if state == nil {
		respond(c, http.StatusServiceUnavailable, "健康快照尚未就绪", nil)
		return
	}
	respond(c, http.StatusOK, "ok", state)
}

// handleLevel 全局降级等级
func (s *Server) handleLevel(c *gin.Context) {
	respond(c, http.StatusOK, "ok", gin.H{
		"level": s.orch.CurrentLevel().String(),
	})
}

// handleTrigger 接收降级触发
// 限速保护：风暴期间超额触发直接拒绝，避免编排器被触发洪峰拖垮
func (s *Server) handleTrigger(c *gin.Context) {
	if !s.limiter.Allow() {
		respond(c, http.StatusTooManyRequests, "触发过于频繁", nil)
		return
	}

	var trigger models.Trigger
	if err := c.ShouldBindJSON(&trigger); err != nil {
		respond(c, http.StatusBadRequest, "触发解析失败: "+err.Error(), nil)
		return
	}
	if !models.ValidTriggerType(trigger.Type) {
		respond(c, http.StatusBadRequest, "非法触发类型: "+string(trigger.Type), nil)
		return
	}
	trigger.ReceivedAt = time.Now()

	scn, err := s.orch.HandleTrigger(c.Request.Context(), trigger)
	if err != nil {
		s.logger.Error("触发处理失败", zap.String("type", string(trigger.Type)), zap.Error(err))
		respond(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	respond(c, http.StatusAccepted, "场景已建档", scn)
}

// handleListScenarios 活跃场景列表
func (s *Server) handleListScenarios(c *gin.Context) {
	respond(c, http.StatusOK, "ok", s.orch.ListScenarios())
}

// handleGetScenario 单场景详情（含已归档）
func (s *Server) handleGetScenario(c *gin.Context) {
	scn, err := s.orch.Scenario(c.Param("id"))
	if err != nil {
		if errors.Is(err, models.ErrScenarioNotFound) {
			respond(c, http.StatusNotFound, err.Error(), nil)
			return
		}
		respond(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	respond(c, http.StatusOK, "ok", scn)
}

// handleRecover 发起场景恢复
// 请求体可选：人工介入时携带发起人，仅作审计记录
func (s *Server) handleRecover(c *gin.Context) {
	var req models.RecoveryRequest
	if err := c.ShouldBindJSON(&req); err == nil && req.Operator != "" {
		s.logger.Info("人工发起恢复",
			zap.String("scenario_id", c.Param("id")),
			zap.String("operator", req.Operator),
		)
	}

	resp, err := s.orch.Recover(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, models.ErrScenarioNotFound):
			respond(c, http.StatusNotFound, err.Error(), nil)
		case errors.Is(err, models.ErrScenarioClosed):
			respond(c, http.StatusConflict, err.Error(), nil)
		case models.IsPlanCycle(err):
			respond(c, http.StatusUnprocessableEntity, err.Error(), nil)
		default:
			respond(c, http.StatusInternalServerError, err.Error(), nil)
		}
		return
	}
	respond(c, http.StatusAccepted, "恢复已启动", resp)
}

// handleCancel 取消场景
func (s *Server) handleCancel(c *gin.Context) {
	if err := s.orch.Cancel(c.Param("id")); err != nil {
		if errors.Is(err, models.ErrScenarioNotFound) {
			respond(c, http.StatusNotFound, err.Error(), nil)
			return
		}
		respond(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	respond(c, http.StatusOK, "场景已取消", nil)
}

// handleStats 编排器累计指标（JSON形式，补充/metrics）
func (s *Server) handleStats(c *gin.Context) {
	respond(c, http.StatusOK, "ok", s.orch.Metrics())
}
