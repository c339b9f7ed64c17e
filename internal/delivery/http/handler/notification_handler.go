package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/delivery/http/middleware"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/entity"
	"github.com/Cheikh27/back-signalement-citoyen-sub000/internal/domain/repository"
)

// NotificationHandler expose les préférences, l'historique et les jetons
// d'appareil de l'utilisateur authentifié.
type NotificationHandler struct {
	notifRepo  repository.NotificationRepository
	deviceRepo repository.DeviceTokenRepository
}

func NewNotificationHandler(nr repository.NotificationRepository, dr repository.DeviceTokenRepository) *NotificationHandler {
	return &NotificationHandler{notifRepo: nr, deviceRepo: dr}
}

func (h *NotificationHandler) GetPreferences(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	prefs, err := h.notifRepo.GetPreferences(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (h *NotificationHandler) UpdatePreferences(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	var prefs entity.NotificationPreferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	prefs.UserID = userID
	if err := h.notifRepo.UpdatePreferences(c.Request.Context(), &prefs); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (h *NotificationHandler) ListHistory(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	history, err := h.notifRepo.ListHistory(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	h.markHistory(c, h.notifRepo.MarkRead)
}

func (h *NotificationHandler) MarkClicked(c *gin.Context) {
	h.markHistory(c, h.notifRepo.MarkClicked)
}

func (h *NotificationHandler) markHistory(c *gin.Context, mark func(ctx context.Context, userID, notificationID int64) error) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := mark(c.Request.Context(), userID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

type registerTokenRequest struct {
	Token      string `json:"token" binding:"required"`
	DeviceType string `json:"device_type" binding:"required"`
	DeviceID   string `json:"device_id"`
	AppVersion string `json:"app_version"`
}

func (h *NotificationHandler) RegisterToken(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	var req registerTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dt := entity.DeviceType(req.DeviceType)
	switch dt {
	case entity.DeviceAndroid, entity.DeviceIOS, entity.DeviceWeb:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown device_type"})
		return
	}

	token := &entity.DeviceToken{
		UserID:     userID,
		Token:      req.Token,
		DeviceType: dt,
		DeviceID:   req.DeviceID,
		AppVersion: req.AppVersion,
		Active:     true,
	}
	if err := h.deviceRepo.Register(c.Request.Context(), token); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, token)
}

func (h *NotificationHandler) ListTokens(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	tokens, err := h.deviceRepo.GetActiveByUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

type deactivateTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *NotificationHandler) DeactivateToken(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	var req deactivateTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.deviceRepo.Deactivate(c.Request.Context(), userID, req.Token); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deactivated": true})
}
