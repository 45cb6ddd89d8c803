package controller

import (
	"errors"
	"strconv"
	"virtualtest_backend/internal/model"
	"virtualtest_backend/internal/service"
	"virtualtest_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type UserController struct {
	UserService *service.UserService
}

func NewUserController(userService *service.UserService) *UserController {
	return &UserController{UserService: userService}
}

// swagger:model UpdateProfileRequest
type UpdateProfileRequest struct {
	Name     string `json:"name"`
	Language string `json:"language"`
}

// UpdateProfile godoc
// @Summary 更新个人资料
// @Tags 用户
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body UpdateProfileRequest true "要更新的字段"
// @Success 200 {object} util.Response{data=model.User} "Success"
// @Failure 401 {object} util.Response "Unauthorized"
// @Router /api/profile [put]
func (c *UserController) UpdateProfile(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req UpdateProfileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user, err := c.UserService.UpdateProfile(claims.UserID, req.Name, req.Language)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, user)
}

// swagger:model ChangePasswordRequest
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8"`
}

// ChangePassword godoc
// @Summary 修改密码
// @Tags 用户
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body ChangePasswordRequest true "旧密码和新密码"
// @Success 200 {object} util.Response "修改成功"
// @Failure 401 {object} util.Response "旧密码错误"
// @Router /api/profile/password [put]
func (c *UserController) ChangePassword(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req ChangePasswordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.UserService.ChangePassword(claims.UserID, req.OldPassword, req.NewPassword); err != nil {
		if errors.Is(err, util.ErrInvalidCredentials) {
			util.Unauthorized(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, gin.H{"changed": true})
}

// ListUsers godoc
// @Summary 用户列表（管理端）
// @Tags 管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   page  query int    false "页码"
// @Param   limit query int    false "每页数量"
// @Param   role  query string false "按角色过滤" Enums(student, admin)
// @Success 200 {object} util.Response{data=util.PageResponse} "Success"
// @Failure 403 {object} util.Response "Forbidden"
// @Router /api/admin/users [get]
func (c *UserController) ListUsers(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	role := model.UserRole(ctx.Query("role"))

	users, total, err := c.UserService.ListUsers(page, limit, role)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{
		List:  users,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// swagger:model CreateUserRequest
type CreateUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role" binding:"omitempty,oneof=student admin"`
}

// CreateUser godoc
// @Summary 创建用户（管理端）
// @Description 管理员直接创建已激活账号，无需邮箱验证
// @Tags 管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body CreateUserRequest true "用户信息"
// @Success 201 {object} util.Response{data=model.User} "创建成功"
// @Failure 409 {object} util.Response "邮箱已被注册"
// @Router /api/admin/users [post]
func (c *UserController) CreateUser(ctx *gin.Context) {
	var req CreateUserRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user, err := c.UserService.CreateUser(req.Name, req.Email, req.Password, model.UserRole(req.Role))
	if err != nil {
		if errors.Is(err, util.ErrEmailRegistered) {
			util.Conflict(ctx, "该邮箱已被注册")
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Created(ctx, user)
}

// swagger:model UpdateUserRequest
type UpdateUserRequest struct {
	Name   string `json:"name"`
	Role   string `json:"role" binding:"omitempty,oneof=student admin"`
	Status string `json:"status" binding:"omitempty,oneof=active suspended deleted"`
}

// UpdateUser godoc
// @Summary 更新用户（管理端）
// @Description 修改姓名、角色或账号状态，空字段保持原值
// @Tags 管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id   path int true "用户ID"
// @Param   body body UpdateUserRequest true "要更新的字段"
// @Success 200 {object} util.Response{data=model.User} "Success"
// @Failure 404 {object} util.Response "用户不存在"
// @Router /api/admin/users/{id} [put]
func (c *UserController) UpdateUser(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid user id")
		return
	}

	var req UpdateUserRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	user, err := c.UserService.UpdateUser(uint(id), req.Name, model.UserRole(req.Role), model.AccountStatus(req.Status))
	if err != nil {
		if errors.Is(err, util.ErrUserNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, user)
}

// Stats godoc
// @Summary 用户统计（管理端）
// @Tags 管理
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=service.UserStats} "Success"
// @Failure 403 {object} util.Response "Forbidden"
// @Router /api/admin/stats [get]
func (c *UserController) Stats(ctx *gin.Context) {
	stats, err := c.UserService.Stats()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, stats)
}

// swagger:model SetStatusRequest
type SetStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=active suspended deleted"`
}

// SetUserStatus godoc
// @Summary 修改账号状态（管理端）
// @Description 封禁、恢复或注销账号
// @Tags 管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id   path int true "用户ID"
// @Param   body body SetStatusRequest true "目标状态"
// @Success 200 {object} util.Response "Success"
// @Failure 404 {object} util.Response "用户不存在"
// @Router /api/admin/users/{id}/status [put]
func (c *UserController) SetUserStatus(ctx *gin.Context) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		util.BadRequest(ctx, "invalid user id")
		return
	}

	var req SetStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.UserService.SetStatus(uint(id), model.AccountStatus(req.Status)); err != nil {
		if errors.Is(err, util.ErrUserNotFound) {
			util.NotFound(ctx)
		} else {
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, gin.H{"updated": true})
}
