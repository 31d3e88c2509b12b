package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/aihub/researchgraph/internal/services"
)

// SweepRequest 去重扫描请求
type SweepRequest struct {
	ScanWindow int  `json:"scan_window" validate:"omitempty,min=1,max=2000"`
	MaxPairs   int  `json:"max_pairs" validate:"omitempty,min=1,max=500"`
	DryRun     bool `json:"dry_run"`
}

// DedupController 来源去重控制器
type DedupController struct {
	BaseController
	graphSvc *services.GraphService
}

// NewDedupController 创建去重控制器
func NewDedupController(graphSvc *services.GraphService) *DedupController {
	return &DedupController{graphSvc: graphSvc}
}

// Sweep 执行一轮去重扫描，dry_run时只返回候选不合并
func (c *DedupController) Sweep() {
	if _, ok := c.getAuthenticatedUserID(); !ok {
		return
	}

	var req SweepRequest
	if len(c.Ctx.Input.RequestBody) > 0 {
		if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
			c.JSONError(http.StatusBadRequest, "请求参数错误")
			return
		}
		if err := validate.Struct(&req); err != nil {
			c.JSONError(http.StatusBadRequest, err.Error())
			return
		}
	}

	report, err := c.graphSvc.DedupSweep(c.Ctx.Request.Context(), req.ScanWindow, req.MaxPairs, req.DryRun)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(report)
}
