package controller

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"virtualtest_backend/internal/model"
	"virtualtest_backend/internal/service"
	"virtualtest_backend/internal/util"
	"virtualtest_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type TestController struct {
	TestService    *service.TestService
	StorageService *service.StorageService
}

func NewTestController(testService *service.TestService, storageService *service.StorageService) *TestController {
	return &TestController{
		TestService:    testService,
		StorageService: storageService,
	}
}

func (c *TestController) sessionID(ctx *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid session id")
		return 0, false
	}
	return uint(id), true
}

// StartSession godoc
// @Summary 开始测试
// @Description 创建新的测试会话；已有未完成会话时返回该会话
// @Tags 测试
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=object} "续用已有会话"
// @Success 201 {object} util.Response{data=object} "新会话创建成功"
// @Failure 401 {object} util.Response "Unauthorized"
// @Router /api/test/sessions [post]
func (c *TestController) StartSession(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	session, created, err := c.TestService.StartSession(claims.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	payload := gin.H{"session": session, "modules": c.TestService.Modules}
	if created {
		util.Created(ctx, payload)
	} else {
		util.Success(ctx, payload)
	}
}

// ListSessions godoc
// @Summary 测试历史
// @Tags 测试
// @Produce  json
// @Security ApiKeyAuth
// @Param   page  query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse} "Success"
// @Router /api/test/sessions [get]
func (c *TestController) ListSessions(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	sessions, total, err := c.TestService.ListSessions(claims.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{
		List:  sessions,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetProgress godoc
// @Summary 会话进度
// @Description 已完成的模块和建议的下一个模块
// @Tags 测试
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "会话ID"
// @Success 200 {object} util.Response{data=service.SessionProgress} "Success"
// @Failure 404 {object} util.Response "会话不存在"
// @Router /api/test/sessions/{id} [get]
func (c *TestController) GetProgress(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := c.sessionID(ctx)
	if !ok {
		return
	}

	progress, err := c.TestService.Progress(claims.UserID, id)
	if err != nil {
		if errors.Is(err, util.ErrSessionNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, progress)
}

// GetModuleContent godoc
// @Summary 获取模块内容
// @Description AI按申请的 CEFR 难度生成该模块的测试内容；重复请求返回同一份内容
// @Tags 测试
// @Produce  json
// @Security ApiKeyAuth
// @Param   id         path  string true  "会话ID"
// @Param   module     path  string true  "模块名" Enums(reading, listening, speaking, writing)
// @Param   cefr_level query string false "申请的难度，缺省用当前预设的难度" Enums(A1, A2, B1, B2, C1, C2)
// @Success 200 {object} util.Response{data=service.ModuleContentView} "Success"
// @Failure 400 {object} util.Response "未知模块或难度"
// @Failure 404 {object} util.Response "会话不存在"
// @Failure 409 {object} util.Response "模块已提交"
// @Failure 502 {object} util.Response "内容生成失败"
// @Router /api/test/sessions/{id}/modules/{module} [get]
func (c *TestController) GetModuleContent(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := c.sessionID(ctx)
	if !ok {
		return
	}
	module := model.ModuleName(ctx.Param("module"))
	level := model.CEFRLevel(ctx.Query("cefr_level"))

	view, err := c.TestService.ModuleContent(ctx.Request.Context(), claims.UserID, id, module, level)
	if err != nil {
		c.writeModuleError(ctx, err)
		return
	}

	util.Success(ctx, view)
}

// SubmitRequest 客观题提交答案，主观题（写作）提交正文
// swagger:model SubmitRequest
type SubmitRequest struct {
	Answers         map[string]string `json:"answers"`
	Text            string            `json:"text"`
	DurationSeconds int               `json:"durationSeconds"`
}

// SubmitModule godoc
// @Summary 提交模块
// @Description 评分并保存模块成绩；四个模块齐后自动结算整场测试
// @Tags 测试
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id     path string true "会话ID"
// @Param   module path string true "模块名" Enums(reading, listening, writing)
// @Param   body   body SubmitRequest true "答案"
// @Success 200 {object} util.Response{data=object} "评分完成"
// @Failure 400 {object} util.Response "请求参数错误或内容已过期"
// @Failure 404 {object} util.Response "会话不存在"
// @Failure 409 {object} util.Response "模块已提交"
// @Router /api/test/sessions/{id}/modules/{module}/submit [post]
func (c *TestController) SubmitModule(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := c.sessionID(ctx)
	if !ok {
		return
	}
	module := model.ModuleName(ctx.Param("module"))

	// 口语模块走音频上传接口
	if module == model.ModuleSpeaking {
		util.BadRequest(ctx, "speaking module must be submitted via the audio upload endpoint")
		return
	}

	var req SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	score, session, err := c.TestService.SubmitModule(ctx.Request.Context(), claims.UserID, id, module, service.ModuleSubmission{
		Answers:         req.Answers,
		Text:            req.Text,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		c.writeModuleError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"score": score, "session": session})
}

// SubmitSpeaking godoc
// @Summary 提交口语录音
// @Description 上传录音，转写后由AI评分。转写失败视为客户端错误
// @Tags 测试
// @Accept  multipart/form-data
// @Produce  json
// @Security ApiKeyAuth
// @Param   id    path string true "会话ID"
// @Param   audio formData file true "录音文件"
// @Success 200 {object} util.Response{data=object} "评分完成"
// @Failure 400 {object} util.Response "文件无效或转写失败"
// @Failure 404 {object} util.Response "会话不存在"
// @Failure 409 {object} util.Response "模块已提交"
// @Router /api/test/sessions/{id}/modules/{module}/upload [post]
func (c *TestController) SubmitSpeaking(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := c.sessionID(ctx)
	if !ok {
		return
	}
	if model.ModuleName(ctx.Param("module")) != model.ModuleSpeaking {
		util.BadRequest(ctx, "audio upload is only supported for the speaking module")
		return
	}

	file, err := ctx.FormFile("audio")
	if err != nil {
		util.BadRequest(ctx, "audio file is required")
		return
	}
	if !util.IsAllowedAudioExt(file.Filename) {
		util.BadRequest(ctx, "unsupported audio format")
		return
	}

	tmpPath := filepath.Join(os.TempDir(), fmt.Sprintf("speaking_%s%s", uuid.New().String(), strings.ToLower(filepath.Ext(file.Filename))))
	if err := ctx.SaveUploadedFile(file, tmpPath); err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer os.Remove(tmpPath)

	duration := 0
	if info, err := util.GetAudioInfo(tmpPath); err == nil {
		duration = int(info.Duration)
	} else {
		logger.Log.Warn("Failed to probe speaking recording", zap.Error(err))
	}

	// 录音归档，失败不阻断评分
	archiveName := fmt.Sprintf("speaking/%d_%s", id, filepath.Base(tmpPath))
	if _, err := c.StorageService.UploadFile(ctx.Request.Context(), archiveName, tmpPath, file.Header.Get("Content-Type")); err != nil {
		logger.Log.Warn("Failed to archive speaking recording", zap.Error(err))
	}

	audio, err := os.Open(tmpPath)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer audio.Close()

	transcript, err := c.TestService.Provider.Transcribe(ctx.Request.Context(), audio, file.Filename)
	if err != nil {
		// 转写失败基本是录音质量问题，按客户端错误处理
		util.BadRequest(ctx, "could not transcribe the recording, please record again")
		return
	}

	score, session, err := c.TestService.SubmitModule(ctx.Request.Context(), claims.UserID, id, model.ModuleSpeaking, service.ModuleSubmission{
		Text:            transcript,
		DurationSeconds: duration,
	})
	if err != nil {
		c.writeModuleError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"score": score, "session": session, "transcript": transcript})
}

// GetResults godoc
// @Summary 测试结果
// @Description 各模块成绩与总体CEFR评定
// @Tags 测试
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "会话ID"
// @Success 200 {object} util.Response{data=service.TestResult} "Success"
// @Failure 404 {object} util.Response "会话不存在"
// @Router /api/test/sessions/{id}/results [get]
func (c *TestController) GetResults(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := c.sessionID(ctx)
	if !ok {
		return
	}

	result, err := c.TestService.Results(claims.UserID, id)
	if err != nil {
		if errors.Is(err, util.ErrSessionNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, result)
}

func (c *TestController) writeModuleError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, util.ErrSessionNotFound):
		util.NotFound(ctx)
	case errors.Is(err, util.ErrInvalidModule):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, util.ErrInvalidCEFRLevel):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, util.ErrContentExpired):
		util.BadRequest(ctx, err.Error())
	case errors.Is(err, util.ErrSessionCompleted):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, util.ErrModuleSubmitted):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, util.ErrContentGeneration):
		util.Error(ctx, 502, "content generation failed, please retry")
	default:
		util.LogInternalError(ctx, err)
	}
}
