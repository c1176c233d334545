package video

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Gdheubs/Video-streaming-platform/models"
)

type Handler struct {
	Service *Service
	Log     *logrus.Logger
}

func NewHandler(service *Service, log *logrus.Logger) *Handler {
	return &Handler{Service: service, Log: log}
}

type uploadRequestBody struct {
	Filename    string `json:"filename" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Visibility  string `json:"visibility"`
}

func (h *Handler) RequestUpload(c *gin.Context) {
	userID := c.GetString("user_id")
	var req uploadRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slot, err := h.Service.RequestUpload(c.Request.Context(), userID, UploadRequest{
		Filename:    req.Filename,
		Title:       req.Title,
		Description: req.Description,
		Visibility:  models.Visibility(req.Visibility),
	})
	if err != nil {
		h.renderError(c, err, "Failed to create upload slot")
		return
	}

	c.JSON(http.StatusCreated, slot)
}

func (h *Handler) ConfirmUpload(c *gin.Context) {
	userID := c.GetString("user_id")
	videoID := c.Param("id")

	if err := h.Service.ConfirmUpload(c.Request.Context(), videoID, userID); err != nil {
		h.renderError(c, err, "Failed to start processing")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"video_id": videoID, "status": models.VideoProcessing})
}

func (h *Handler) GetVideo(c *gin.Context) {
	userID := c.GetString("user_id")
	isAdmin := c.GetString("role") == string(models.RoleAdmin)

	details, err := h.Service.Get(c.Request.Context(), c.Param("id"), userID, isAdmin)
	if err != nil {
		h.renderError(c, err, "Failed to fetch video")
		return
	}

	c.JSON(http.StatusOK, details)
}

func (h *Handler) ListPublic(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	videos, err := h.Service.ListPublic(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list videos"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"videos": videos})
}

// Stream is the playback authorization endpoint. On grant the response
// carries the manifest path and, for gated videos, the signed credential the
// player presents on every segment request.
func (h *Handler) Stream(c *gin.Context) {
	userID := c.GetString("user_id")

	info, err := h.Service.Stream(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		if errors.Is(err, models.ErrNotAuthorized) && info != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied", "reason": info.Grant.Reason})
			return
		}
		h.renderError(c, err, "Failed to authorize stream")
		return
	}

	if cred := info.Grant.Credential; cred != nil {
		maxAge := int(time.Until(cred.ExpiresAt).Seconds())
		c.SetCookie("stream_token", cred.Token, maxAge, "/stream/"+cred.PathPrefix, "", false, true)
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) Like(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	likes, err := h.Service.Like(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.renderError(c, err, "Failed to like video")
		return
	}

	c.JSON(http.StatusOK, gin.H{"like_count": likes})
}

func (h *Handler) DeleteVideo(c *gin.Context) {
	userID := c.GetString("user_id")
	isAdmin := c.GetString("role") == string(models.RoleAdmin)

	if err := h.Service.Delete(c.Request.Context(), c.Param("id"), userID, isAdmin); err != nil {
		h.renderError(c, err, "Failed to delete video")
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

type banRequestBody struct {
	Reason string `json:"reason" binding:"required"`
}

// BanCreator is admin-only; routing enforces the role.
func (h *Handler) BanCreator(c *gin.Context) {
	adminID := c.GetString("user_id")
	var req banRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.Service.BanCreator(c.Request.Context(), c.Param("id"), adminID, req.Reason); err != nil {
		h.renderError(c, err, "Failed to ban creator")
		return
	}

	c.JSON(http.StatusOK, gin.H{"banned": true})
}

// renderError maps domain sentinels onto HTTP statuses.
func (h *Handler) renderError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Video is not in a state that allows this operation"})
	case errors.Is(err, models.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrRejectedContent):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.Log.WithError(err).Error(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
