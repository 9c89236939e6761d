package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio-rag-api/internal/application/telemetry"
	"portfolio-rag-api/internal/interfaces/http/dto"
)

// MetricsHandler 运营指标处理器
type MetricsHandler struct {
	agg *telemetry.Aggregator
}

// NewMetricsHandler 创建指标处理器
func NewMetricsHandler(agg *telemetry.Aggregator) *MetricsHandler {
	return &MetricsHandler{agg: agg}
}

// Summary 近 24 小时汇总
func (h *MetricsHandler) Summary(c *gin.Context) {
	s, err := h.agg.Summary(c.Request.Context())
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// History 请求与评测趋势
func (h *MetricsHandler) History(c *gin.Context) {
	hist, err := h.agg.History(c.Request.Context(),
		dto.BindIntQuery(c, "hours", 24),
		dto.BindIntQuery(c, "bucket_minutes", 15),
	)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, hist)
}

// Ingestion 导入任务统计
func (h *MetricsHandler) Ingestion(c *gin.Context) {
	stats, err := h.agg.IngestionStats(c.Request.Context())
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
