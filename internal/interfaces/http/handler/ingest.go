package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"portfolio-rag-api/internal/application/ingestion"
	"portfolio-rag-api/internal/interfaces/http/dto"
	"portfolio-rag-api/pkg/errors"
)

// IngestHandler 文档导入处理器
type IngestHandler struct {
	ctrl     *ingestion.Controller
	maxBytes int64
}

// NewIngestHandler 创建导入处理器
func NewIngestHandler(ctrl *ingestion.Controller, maxBytes int64) *IngestHandler {
	return &IngestHandler{ctrl: ctrl, maxBytes: maxBytes}
}

// Upload 上传文件导入
// @Summary 上传导入
// @Tags Ingest
// @Accept multipart/form-data
// @Param file formData file true "pdf / md / txt"
// @Success 202 {object} dto.JobAcceptedResponse
// @Router /ingest/upload [post]
func (h *IngestHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		dto.BadRequest(c, "Missing upload file.")
		return
	}
	f, err := fh.Open()
	if err != nil {
		dto.BadRequest(c, "Unable to read upload.")
		return
	}
	defer f.Close()

	// 多读一个字节，超限由控制器判定
	raw, err := io.ReadAll(io.LimitReader(f, h.maxBytes+1))
	if err != nil {
		dto.BadRequest(c, "Unable to read upload.")
		return
	}

	job, err := h.ctrl.SubmitUpload(c.Request.Context(), fh.Filename, raw)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.JobAcceptedResponse{JobID: job.ID, Status: job.Status})
}

// Link 链接导入
// @Summary 链接导入
// @Tags Ingest
// @Param body body dto.LinkIngestRequest true "链接"
// @Success 202 {object} dto.JobAcceptedResponse
// @Router /ingest/link [post]
func (h *IngestHandler) Link(c *gin.Context) {
	var req dto.LinkIngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadRequest(c, "url must be at least 10 characters")
		return
	}
	job, err := h.ctrl.SubmitLink(c.Request.Context(), req.URL)
	if err != nil {
		if errors.HasCode(err, errors.CodeURLRejected) {
			dto.Error(c, http.StatusBadRequest, errors.CodeURLRejected, "Rejected link: "+errors.AsAppError(err).Cause())
			return
		}
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.JobAcceptedResponse{JobID: job.ID, Status: job.Status})
}

// GetJob 导入任务详情
// @Summary 任务详情
// @Tags Ingest
// @Router /ingest/jobs/{id} [get]
func (h *IngestHandler) GetJob(c *gin.Context) {
	id, ok := dto.BindID(c, "id")
	if !ok {
		dto.NotFound(c, errors.CodeJobNotFound, "Ingestion job not found.")
		return
	}
	job, err := h.ctrl.GetJob(c.Request.Context(), id)
	if err != nil {
		dto.AppError(c, err)
		return
	}
	if job == nil {
		dto.NotFound(c, errors.CodeJobNotFound, "Ingestion job not found.")
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListJobs 最近的导入任务
// @Summary 任务列表
// @Tags Ingest
// @Router /ingest/jobs [get]
func (h *IngestHandler) ListJobs(c *gin.Context) {
	jobs, err := h.ctrl.ListJobs(c.Request.Context(), dto.BindLimit(c, 20))
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.JobListResponse{Jobs: jobs})
}

// Reset 清空向量索引与来源登记
// @Summary 重置索引
// @Tags Ingest
// @Router /ingest/reset [post]
func (h *IngestHandler) Reset(c *gin.Context) {
	var req dto.ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Confirm {
		dto.BadRequest(c, "Reset requires confirm=true.")
		return
	}
	res, err := h.ctrl.Reset(c.Request.Context())
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToResetResponse(res))
}

// Sources 已导入来源
// @Summary 来源列表
// @Tags Ingest
// @Router /ingest/sources [get]
func (h *IngestHandler) Sources(c *gin.Context) {
	view, err := h.ctrl.ListSources(c.Request.Context(), dto.BindLimit(c, 100))
	if err != nil {
		dto.AppError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ToSourcesResponse(view))
}
