package controller

import (
	"exam_proctor_backend/internal/middleware"
	"exam_proctor_backend/internal/service"
	"exam_proctor_backend/internal/util"
	"strings"

	"github.com/gin-gonic/gin"
)

type ProctoringController struct {
	Service *service.ProctoringService
	Hub     *service.ProctorHub
}

func NewProctoringController(svc *service.ProctoringService, hub *service.ProctorHub) *ProctoringController {
	return &ProctoringController{Service: svc, Hub: hub}
}

type AnalyzeRequest struct {
	Frame     string `json:"frame" binding:"required"`
	Candidate string `json:"candidate"`
}

// @Summary 分析单帧
// @Description 识别服务异常时返回 fraud=false 并附带 error 字段
// @Tags 监考
// @Accept json
// @Produce json
// @Param body body AnalyzeRequest true "base64 图片"
// @Success 200 {object} util.Response{data=service.AnalysisResult}
// @Failure 400 {object} util.Response
// @Router /api/proctoring/analyze [post]
func (c *ProctoringController) Analyze(ctx *gin.Context) {
	var req AnalyzeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	req.Candidate = strings.TrimSpace(req.Candidate)
	if req.Candidate != "" {
		if err := middleware.AuthorizeCandidate(ctx, req.Candidate); err != nil {
			util.HandleError(ctx, err)
			return
		}
	}

	frame, mimeType, err := util.DecodeFrame(req.Frame, c.Service.Cfg.MaxFrameBytes)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, c.Service.Analyze(ctx.Request.Context(), req.Candidate, frame, mimeType))
}

// @Summary 监考 WebSocket
// @Description 上行 FRAME/FOCUS_LOST/VISIBILITY_HIDDEN/ANSWERS/SUBMIT，下行 STARTED/STATUS/FRAUD_ALERT/TERMINATED/ERROR
// @Tags 监考
// @Param candidate query string true "候选人邮箱"
// @Success 101 {string} string "Switching Protocols"
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/proctoring/session [get]
func (c *ProctoringController) Session(ctx *gin.Context) {
	key, ok := candidateParam(ctx)
	if !ok {
		return
	}

	if err := c.Hub.ServeWs(ctx.Writer, ctx.Request, key); err != nil {
		util.HandleError(ctx, err)
	}
}
