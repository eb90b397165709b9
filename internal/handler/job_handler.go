package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"kapsentiment/internal/jobs"
	"kapsentiment/internal/model"
)

type JobHandler struct {
	jobs *jobs.Registry
}

func NewJobHandler(registry *jobs.Registry) *JobHandler {
	return &JobHandler{jobs: registry}
}

func (h *JobHandler) ListJobs(c *gin.Context) {
	filter := jobs.Filter{JobType: c.Query("job_type")}

	if raw := c.Query("status"); raw != "" {
		status := model.JobStatus(raw)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
			return
		}
		filter.Status = status
	}

	list := h.jobs.List(filter)
	if limit := getQueryLimit(c); len(list) > limit {
		list = list[:limit]
	}

	c.JSON(http.StatusOK, JobsResponse{Jobs: list, Total: len(list)})
}

func (h *JobHandler) GetJob(c *gin.Context) {
	job, ok := h.jobs.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *JobHandler) CancelJob(c *gin.Context) {
	job, err := h.jobs.Cancel(c.Param("id"))
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case errors.Is(err, jobs.ErrTerminal):
		c.JSON(http.StatusConflict, gin.H{"error": "Job already finished", "status": job.Status})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not cancel job"})
	default:
		c.JSON(http.StatusOK, job)
	}
}
