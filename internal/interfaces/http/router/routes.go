package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册业务路由，write 保护所有写接口
func RegisterRoutes(g *gin.RouterGroup, write gin.HandlerFunc, h Handlers) {
	// 模型
	g.GET("/models", h.Query.Models)
	g.POST("/models/select", write, h.Query.SelectModel)

	// 问答
	g.POST("/query", h.Query.Query)
	q := g.Group("/query")
	{
		q.GET("/history", h.Query.History)
		q.GET("/runs", h.Query.Runs)
		q.POST("/runs/:id/feedback", write, h.Query.Feedback)
	}

	// 导入
	ingest := g.Group("/ingest")
	{
		ingest.POST("/upload", write, h.Ingest.Upload)
		ingest.POST("/link", write, h.Ingest.Link)
		ingest.GET("/jobs", h.Ingest.ListJobs)
		ingest.GET("/jobs/:id", h.Ingest.GetJob)
		ingest.POST("/reset", write, h.Ingest.Reset)
		ingest.GET("/sources", h.Ingest.Sources)
	}

	// 运营指标
	m := g.Group("/metrics")
	{
		m.GET("/summary", h.Metrics.Summary)
		m.GET("/history", h.Metrics.History)
		m.GET("/ingestion", h.Metrics.Ingestion)
	}
}
