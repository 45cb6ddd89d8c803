package controller

import (
	"errors"
	"strconv"
	"virtualtest_backend/internal/model"
	"virtualtest_backend/internal/service"
	"virtualtest_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// AdminController 测试参数预设的管理端维护
type AdminController struct {
	ConfigService *service.TestConfigService
}

func NewAdminController(configService *service.TestConfigService) *AdminController {
	return &AdminController{ConfigService: configService}
}

func (c *AdminController) configID(ctx *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid config id")
		return 0, false
	}
	return uint(id), true
}

// ListConfigs godoc
// @Summary 预设列表
// @Tags 管理
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.TestConfig} "Success"
// @Router /api/admin/configs [get]
func (c *AdminController) ListConfigs(ctx *gin.Context) {
	configs, err := c.ConfigService.List()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, configs)
}

// GetActiveConfig godoc
// @Summary 当前生效的预设
// @Tags 管理
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=model.TestConfig} "Success"
// @Router /api/admin/configs/active [get]
func (c *AdminController) GetActiveConfig(ctx *gin.Context) {
	util.Success(ctx, c.ConfigService.GetActive())
}

// swagger:model ConfigRequest
type ConfigRequest struct {
	Name               string `json:"name"`
	ReadingTimeLimit   int    `json:"readingTimeLimit"`
	ListeningTimeLimit int    `json:"listeningTimeLimit"`
	WritingTimeLimit   int    `json:"writingTimeLimit"`
	SpeakingTimeLimit  int    `json:"speakingTimeLimit"`
	Difficulty         string `json:"difficulty"`
}

func (r *ConfigRequest) toModel() *model.TestConfig {
	return &model.TestConfig{
		Name:               r.Name,
		ReadingTimeLimit:   r.ReadingTimeLimit,
		ListeningTimeLimit: r.ListeningTimeLimit,
		WritingTimeLimit:   r.WritingTimeLimit,
		SpeakingTimeLimit:  r.SpeakingTimeLimit,
		Difficulty:         model.CEFRLevel(r.Difficulty),
	}
}

// CreateConfig godoc
// @Summary 新建预设
// @Description 新建的预设不自动生效，需单独激活
// @Tags 管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body ConfigRequest true "预设参数"
// @Success 201 {object} util.Response{data=model.TestConfig} "创建成功"
// @Failure 400 {object} util.Response "参数无效"
// @Router /api/admin/configs [post]
func (c *AdminController) CreateConfig(ctx *gin.Context) {
	var req ConfigRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	cfg := req.toModel()
	if cfg.Name == "" {
		util.BadRequest(ctx, "name is required")
		return
	}
	// 未填的时长用默认值补齐
	defaults := model.DefaultTestConfig()
	if cfg.ReadingTimeLimit == 0 {
		cfg.ReadingTimeLimit = defaults.ReadingTimeLimit
	}
	if cfg.ListeningTimeLimit == 0 {
		cfg.ListeningTimeLimit = defaults.ListeningTimeLimit
	}
	if cfg.WritingTimeLimit == 0 {
		cfg.WritingTimeLimit = defaults.WritingTimeLimit
	}
	if cfg.SpeakingTimeLimit == 0 {
		cfg.SpeakingTimeLimit = defaults.SpeakingTimeLimit
	}
	if cfg.Difficulty == "" {
		cfg.Difficulty = defaults.Difficulty
	}

	if err := c.ConfigService.Create(cfg); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	util.Created(ctx, cfg)
}

// UpdateConfig godoc
// @Summary 更新预设
// @Tags 管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id   path int true "预设ID"
// @Param   body body ConfigRequest true "要更新的字段"
// @Success 200 {object} util.Response{data=model.TestConfig} "Success"
// @Failure 404 {object} util.Response "预设不存在"
// @Router /api/admin/configs/{id} [put]
func (c *AdminController) UpdateConfig(ctx *gin.Context) {
	id, ok := c.configID(ctx)
	if !ok {
		return
	}

	var req ConfigRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	cfg, err := c.ConfigService.Update(id, req.toModel())
	if err != nil {
		if errors.Is(err, util.ErrConfigNotFound) {
			util.NotFound(ctx)
		} else {
			util.BadRequest(ctx, err.Error())
		}
		return
	}
	util.Success(ctx, cfg)
}

// ActivateConfig godoc
// @Summary 激活预设
// @Description 激活该预设并取消其他预设
// @Tags 管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "预设ID"
// @Success 200 {object} util.Response "Success"
// @Failure 404 {object} util.Response "预设不存在"
// @Router /api/admin/configs/{id}/activate [post]
func (c *AdminController) ActivateConfig(ctx *gin.Context) {
	id, ok := c.configID(ctx)
	if !ok {
		return
	}

	if err := c.ConfigService.Activate(id); err != nil {
		if errors.Is(err, util.ErrConfigNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, gin.H{"activated": true})
}

// DeleteConfig godoc
// @Summary 删除预设
// @Description 激活中的预设不允许删除
// @Tags 管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "预设ID"
// @Success 200 {object} util.Response "Success"
// @Failure 400 {object} util.Response "预设正在使用"
// @Failure 404 {object} util.Response "预设不存在"
// @Router /api/admin/configs/{id} [delete]
func (c *AdminController) DeleteConfig(ctx *gin.Context) {
	id, ok := c.configID(ctx)
	if !ok {
		return
	}

	if err := c.ConfigService.Delete(id); err != nil {
		if errors.Is(err, util.ErrConfigNotFound) {
			util.NotFound(ctx)
		} else {
			util.BadRequest(ctx, err.Error())
		}
		return
	}
	util.Success(ctx, gin.H{"deleted": true})
}
