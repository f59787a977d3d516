package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/LJTian/hostingnews/internal/collector"
	"github.com/LJTian/hostingnews/internal/pipeline"
	"github.com/LJTian/hostingnews/internal/source"
	"github.com/LJTian/hostingnews/internal/storage"
)

// Runner API 需要的编排层能力，*pipeline.Runner 实现了它
type Runner interface {
	RunSources(ctx context.Context, names ...string) (pipeline.Result, error)
	Latest() (pipeline.Result, bool)
	History(ctx context.Context, limit int) ([]storage.RunRecord, error)
	Snapshot(ctx context.Context, name string) ([]collector.Item, error)
	Registry() *source.Registry
}

type Server struct {
	runner Runner
}

func NewServer(runner Runner) *Server {
	return &Server{runner: runner}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/sources", s.listSources)
		v1.GET("/snapshots/:source", s.getSnapshot)
		v1.POST("/runs", s.triggerRun)
		v1.GET("/runs/latest", s.latestRun)
		v1.GET("/runs", s.listRuns)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listSources(c *gin.Context) {
	ok(c, s.runner.Registry().All())
}

func (s *Server) getSnapshot(c *gin.Context) {
	items, err := s.runner.Snapshot(c.Request.Context(), c.Param("source"))
	if errors.Is(err, pipeline.ErrUnknownSource) {
		fail(c, http.StatusNotFound, "not_found", "unknown source")
		return
	}
	if err != nil {
		internalError(c)
		return
	}
	ok(c, items)
}

// triggerRun 同步执行一轮；?source=a,b 只执行指定数据源
func (s *Server) triggerRun(c *gin.Context) {
	var names []string
	if raw := c.Query("source"); raw != "" {
		for _, n := range strings.Split(raw, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}

	// 客户端断开不应打断已经开始的一轮
	ctx := context.WithoutCancel(c.Request.Context())
	res, err := s.runner.RunSources(ctx, names...)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		fail(c, http.StatusConflict, "conflict", "a run is already in progress")
		return
	case errors.Is(err, pipeline.ErrUnknownSource):
		fail(c, http.StatusBadRequest, "bad_request", err.Error())
		return
	case err != nil && res.RunID == "":
		internalError(c)
		return
	}

	// 推送失败时 statusCode 为 500，结果照常返回
	code, message := "ok", "success"
	if err != nil {
		code, message = "delivery_failed", err.Error()
	}
	c.JSON(res.StatusCode, gin.H{
		"code":    code,
		"message": message,
		"data":    res,
	})
}

func (s *Server) latestRun(c *gin.Context) {
	res, found := s.runner.Latest()
	if !found {
		fail(c, http.StatusNotFound, "not_found", "no run yet")
		return
	}
	ok(c, res)
}

func (s *Server) listRuns(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "20")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 20
	}

	runs, err := s.runner.History(c.Request.Context(), limit)
	if err != nil {
		internalError(c)
		return
	}
	if runs == nil {
		runs = []storage.RunRecord{}
	}
	ok(c, runs)
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

func internalError(c *gin.Context) {
	fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
}
