package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio-rag-api/internal/application/query"
	"portfolio-rag-api/internal/interfaces/http/dto"
	"portfolio-rag-api/internal/interfaces/http/middleware"
	"portfolio-rag-api/pkg/errors"
	"portfolio-rag-api/pkg/logger"
)

// QueryHandler 问答处理器
type QueryHandler struct {
	svc     *query.Service
	maxTopK int
}

// NewQueryHandler 创建问答处理器
func NewQueryHandler(svc *query.Service, maxTopK int) *QueryHandler {
	if maxTopK <= 0 {
		maxTopK = 15
	}
	return &QueryHandler{svc: svc, maxTopK: maxTopK}
}

// Query 基于已导入文档回答问题
// @Summary 问答
// @Tags Query
// @Accept json
// @Produce json
// @Param body body dto.QueryRequest true "问题"
// @Success 200 {object} dto.QueryResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /query [post]
func (h *QueryHandler) Query(c *gin.Context) {
	var req dto.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "question must be at least 3 characters")
		return
	}
	topK := 0
	if req.TopK != nil {
		if *req.TopK > h.maxTopK {
			dto.BadRequest(c, fmt.Sprintf("top_k must be between 1 and %d", h.maxTopK))
			return
		}
		topK = *req.TopK
	}

	ans, err := h.svc.Ask(c.Request.Context(), req.Question, topK)
	if err != nil {
		logger.Error(c.Request.Context(), "query failed", err)
		appErr := errors.AsAppError(err)
		dto.InternalError(c, appErr.Code, "Query failed: "+appErr.Cause())
		return
	}
	middleware.SetTokenUsage(c, ans.TokenUsage)
	c.JSON(http.StatusOK, dto.ToQueryResponse(ans))
}

// History 最近的线上问答
// @Summary 问答历史
// @Tags Query
// @Param limit query int false "条数" default(20)
// @Router /query/history [get]
func (h *QueryHandler) History(c *gin.Context) {
	events, err := h.svc.History(c.Request.Context(), dto.BindLimit(c, 20))
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToQueryHistoryResponse(events))
}

// Runs 问答记录与人工反馈
// @Summary 问答记录
// @Tags Query
// @Param limit query int false "条数" default(50)
// @Router /query/runs [get]
func (h *QueryHandler) Runs(c *gin.Context) {
	runs, err := h.svc.Runs(c.Request.Context(), dto.BindLimit(c, 50))
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.QueryRunsResponse{Items: runs})
}

// Feedback 提交人工反馈
// @Summary 问答反馈
// @Tags Query
// @Param id path int true "问答记录 ID"
// @Router /query/runs/{id}/feedback [post]
func (h *QueryHandler) Feedback(c *gin.Context) {
	runID, ok := dto.BindID(c, "id")
	if !ok {
		dto.NotFound(c, errors.CodeQueryRunNotFound, "Query run not found.")
		return
	}
	var req dto.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "is_correct is required and note must be at most 400 characters")
		return
	}

	fb, err := h.svc.SubmitFeedback(c.Request.Context(), runID, *req.IsCorrect, req.Note)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToFeedbackResponse(fb))
}

// Models 当前模型配置
// @Summary 模型信息
// @Tags Models
// @Router /models [get]
func (h *QueryHandler) Models(c *gin.Context) {
	view, err := h.svc.Models(c.Request.Context())
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToModelsResponse(view))
}

// SelectModel 切换对话模型
// @Summary 选择模型
// @Tags Models
// @Router /models/select [post]
func (h *QueryHandler) SelectModel(c *gin.Context) {
	var req dto.SelectModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "invalid request body")
		return
	}
	view, err := h.svc.SelectModel(c.Request.Context(), req.ChatModel)
	if err != nil {
		if errors.HasCode(err, errors.CodeInvalidParam) {
			dto.BadRequest(c, errors.AsAppError(err).Message)
			return
		}
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToModelsResponse(view))
}
