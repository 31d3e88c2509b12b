package controllers

import (
	"strconv"

	"github.com/aihub/researchgraph/internal/repository"
	"github.com/aihub/researchgraph/internal/services"
)

// SchedulerController 自主研究调度控制器
type SchedulerController struct {
	BaseController
	scheduler  *services.SchedulerService
	directions repository.DirectionRepository
}

// NewSchedulerController 创建调度控制器
func NewSchedulerController(scheduler *services.SchedulerService, directions repository.DirectionRepository) *SchedulerController {
	return &SchedulerController{
		scheduler:  scheduler,
		directions: directions,
	}
}

// Run 手动触发一轮调度
func (c *SchedulerController) Run() {
	if _, ok := c.getAuthenticatedUserID(); !ok {
		return
	}

	report, err := c.scheduler.RunCycle(c.Ctx.Request.Context())
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(report)
}

// Directions 查看最近的研究方向及其终态
func (c *SchedulerController) Directions() {
	if _, ok := c.getAuthenticatedUserID(); !ok {
		return
	}
	limit, _ := strconv.Atoi(c.GetString("limit", "50"))

	directions, err := c.directions.ListRecent(c.Ctx.Request.Context(), limit)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"directions": directions,
		"total":      len(directions),
	})
}
