package controller

import (
	"exam_proctor_backend/internal/middleware"
	"exam_proctor_backend/internal/service"
	"exam_proctor_backend/internal/util"
	"strings"

	"github.com/gin-gonic/gin"
)

type ExamController struct {
	Service *service.ExamService
}

func NewExamController(svc *service.ExamService) *ExamController {
	return &ExamController{Service: svc}
}

func candidateParam(ctx *gin.Context) (string, bool) {
	key := strings.TrimSpace(ctx.Query("candidate"))
	if key == "" {
		util.BadRequest(ctx, "candidate is required")
		return "", false
	}
	if err := middleware.AuthorizeCandidate(ctx, key); err != nil {
		util.HandleError(ctx, err)
		return "", false
	}
	return key, true
}

// @Summary 生成或恢复考试
// @Description 同一候选人重复请求返回同一份试卷（resumed=true）；已交卷返回 409
// @Tags 考试
// @Produce json
// @Param candidate query string true "候选人邮箱"
// @Success 200 {object} util.Response{data=service.ExamView}
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response
// @Failure 502 {object} util.Response
// @Router /api/exam/generate [get]
func (c *ExamController) Generate(ctx *gin.Context) {
	key, ok := candidateParam(ctx)
	if !ok {
		return
	}

	view, err := c.Service.GenerateOrResume(ctx.Request.Context(), key)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, view)
}

// @Summary 交卷
// @Description 带 fraudReason 时直接判定为 disqualified；重复提交返回已有结果
// @Tags 考试
// @Accept json
// @Produce json
// @Param body body service.SubmitRequest true "答案"
// @Success 200 {object} util.Response{data=model.ExamResult}
// @Failure 404 {object} util.Response
// @Router /api/exam/submit [post]
func (c *ExamController) Submit(ctx *gin.Context) {
	var req service.SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	req.Candidate = strings.TrimSpace(req.Candidate)
	if err := middleware.AuthorizeCandidate(ctx, req.Candidate); err != nil {
		util.HandleError(ctx, err)
		return
	}

	// 带了 fraudReason 就按违规处理，空白原因不能绕过
	if req.FraudReason != nil {
		reason := strings.TrimSpace(*req.FraudReason)
		if reason == "" {
			reason = service.ReasonUnspecified
		}
		req.FraudReason = &reason
	}

	result, err := c.Service.Submit(ctx.Request.Context(), req.Candidate, req.Answers, req.FraudReason)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, result)
}

// @Summary 查询考试结果
// @Tags 考试
// @Produce json
// @Param candidate query string true "候选人邮箱"
// @Success 200 {object} util.Response{data=model.ExamResult}
// @Failure 404 {object} util.Response
// @Router /api/exam/result [get]
func (c *ExamController) Result(ctx *gin.Context) {
	key, ok := candidateParam(ctx)
	if !ok {
		return
	}

	result, err := c.Service.GetResult(key)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, result)
}
