package moderation

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Gdheubs/Video-streaming-platform/audit"
	"github.com/Gdheubs/Video-streaming-platform/models"
)

// Handler exposes the admin review surface.
type Handler struct {
	Engine *Engine
	Audit  *audit.GormSink
	Log    *logrus.Logger
}

func NewHandler(engine *Engine, auditSink *audit.GormSink, log *logrus.Logger) *Handler {
	return &Handler{Engine: engine, Audit: auditSink, Log: log}
}

func (h *Handler) PendingQueue(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	videos, err := h.Engine.PendingQueue(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch review queue"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"videos": videos})
}

func (h *Handler) Approve(c *gin.Context) {
	adminID := c.GetString("user_id")

	if err := h.Engine.Approve(c.Request.Context(), c.Param("id"), adminID); err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"moderation_status": models.ModerationApproved})
}

type rejectRequestBody struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) Reject(c *gin.Context) {
	adminID := c.GetString("user_id")
	var req rejectRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Engine.Reject(c.Request.Context(), c.Param("id"), adminID, req.Reason); err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"moderation_status": models.ModerationRejected})
}

func (h *Handler) AuditTrail(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	logs, err := h.Audit.List(c.Request.Context(), c.Query("entity_type"), c.Query("action"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch audit log"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": logs})
}

func (h *Handler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Video is no longer pending review"})
	default:
		h.Log.WithError(err).Error("moderation action failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Moderation action failed"})
	}
}
