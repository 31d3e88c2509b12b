package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/beego/beego/v2/server/web"
	"go.uber.org/zap"

	apperrors "github.com/aihub/researchgraph/internal/errors"
	"github.com/aihub/researchgraph/internal/logger"
)

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	c.ServeJSON()
}

// JSONSuccess writes a standard success envelope.
func (c *BaseController) JSONSuccess(data interface{}) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// JSONError writes an error envelope with message.
func (c *BaseController) JSONError(status int, message string) {
	c.JSON(status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// JSONAppError 按错误分类映射HTTP状态码，内部细节只进日志不出响应
func (c *BaseController) JSONAppError(err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		logger.Error("request failed",
			zap.String("path", c.Ctx.Request.RequestURI),
			zap.String("code", string(appErr.Code)),
			zap.Error(err))
		c.JSONError(appErr.HTTPCode, appErr.SafeMessage())
		return
	}

	logger.Error("request failed",
		zap.String("path", c.Ctx.Request.RequestURI),
		zap.Error(err))
	c.JSONError(http.StatusInternalServerError, "Internal server error")
}

// getAuthenticatedUserID 获取认证用户ID
// 网关负责鉴权，这里只解析透传的身份标识
func (c *BaseController) getAuthenticatedUserID() (uint, bool) {
	// 1. Authorization header（网关透传格式 "Bearer {user_id}"）
	authHeader := c.Ctx.Input.Header("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			if userID, err := strconv.ParseUint(parts[1], 10, 32); err == nil {
				return uint(userID), true
			}
		}
	}

	// 2. X-User-Id header
	userIDHeader := c.Ctx.Input.Header("X-User-Id")
	if userIDHeader != "" {
		if userID, err := strconv.ParseUint(userIDHeader, 10, 32); err == nil {
			return uint(userID), true
		}
	}

	// 3. 查询参数（用于测试）
	userIDParam := c.GetString("user_id")
	if userIDParam != "" {
		if userID, err := strconv.ParseUint(userIDParam, 10, 32); err == nil {
			return uint(userID), true
		}
	}

	c.JSONError(http.StatusUnauthorized, "用户未认证")
	return 0, false
}

// mustParseUintParam 解析路径参数为无符号整数，失败时直接写400响应
func (c *BaseController) mustParseUintParam(name string) (uint, bool) {
	raw := c.Ctx.Input.Param(name)
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || value == 0 {
		c.JSONError(http.StatusBadRequest, "invalid "+strings.TrimPrefix(name, ":"))
		return 0, false
	}
	return uint(value), true
}
