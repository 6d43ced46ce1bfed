package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/rectstab/algorithm"
	"github.com/wyfcoding/rectstab/response"
	"github.com/wyfcoding/rectstab/service"
	"github.com/wyfcoding/rectstab/xerrors"
)

// Handler 计数接口.
type Handler struct {
	svc *service.Stabbing
}

// CountRequest 批量计数请求体.
type CountRequest struct {
	Points []algorithm.Point `json:"points"`
}

// CountResponse 批量计数结果，Counts[i] 对应 Points[i].
type CountResponse struct {
	Counts []int `json:"counts"`
}

type pointQuery struct {
	X *int `form:"x" binding:"required"`
	Y *int `form:"y" binding:"required"`
}

// CountBatch POST /v1/count
// data.counts 与请求中的 points 一一对应。已加载的矩形集合为空时每个点返回 0，
// 不同于 solve 命令在同样输入下不输出任何内容。
func (h *Handler) CountBatch(c *gin.Context) {
	var req CountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, xerrors.InvalidPoint("request body must be {\"points\":[{\"x\":int,\"y\":int}]}", err))
		return
	}

	counts, err := h.svc.Count(c.Request.Context(), req.Points)
	if err != nil {
		response.Error(c, err)
		return
	}
	if counts == nil {
		counts = []int{}
	}
	response.Success(c, CountResponse{Counts: counts})
}

// CountPoint GET /v1/count?x=&y=
func (h *Handler) CountPoint(c *gin.Context) {
	var q pointQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, xerrors.InvalidPoint("query parameters x and y must be integers", err))
		return
	}

	counts, err := h.svc.Count(c.Request.Context(), []algorithm.Point{{X: *q.X, Y: *q.Y}})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"count": counts[0]})
}

// IndexStats GET /v1/index
func (h *Handler) IndexStats(c *gin.Context) {
	stats, ok := h.svc.Stats()
	if !ok {
		response.Error(c, xerrors.IndexNotReady())
		return
	}
	response.Success(c, stats)
}

// Health GET /healthz
func (h *Handler) Health(c *gin.Context) {
	if !h.svc.Ready() {
		response.ErrorWithStatus(c, http.StatusServiceUnavailable, "not ready", "no rectangle set has been loaded")
		return
	}
	response.Success(c, gin.H{"status": "ok"})
}
