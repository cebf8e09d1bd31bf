package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gatekeeper/internal/core/services"
)

// WhitelistHandler serves the read surface and the publish trigger.
type WhitelistHandler struct {
	content     *services.ContentService
	publisher   *services.Publisher
	coordinator *services.PublishCoordinator
	sync        *services.SyncService
}

func NewWhitelistHandler(
	content *services.ContentService,
	publisher *services.Publisher,
	coordinator *services.PublishCoordinator,
	sync *services.SyncService,
) *WhitelistHandler {
	return &WhitelistHandler{
		content:     content,
		publisher:   publisher,
		coordinator: coordinator,
		sync:        sync,
	}
}

// SetupRoutes registers the whitelist endpoints. protected is the route
// group guarded by the admin auth middleware.
func (h *WhitelistHandler) SetupRoutes(api, protected *gin.RouterGroup) {
	api.GET("/whitelist/raw", h.GetRaw)
	api.GET("/whitelist/encoded", h.GetEncoded)
	api.GET("/whitelist/stats", h.GetStats)

	protected.POST("/whitelist/publish", h.Publish)
	protected.POST("/whitelist/sync", h.SyncRoles)
}

// GetRaw returns the plaintext whitelist. An optional realm query
// parameter scopes the output to one realm.
func (h *WhitelistHandler) GetRaw(c *gin.Context) {
	content, err := h.content.GenerateContent(c.Request.Context(), c.Query("realm"))
	if err != nil {
		c.Error(err)
		return
	}
	c.String(http.StatusOK, content)
}

// GetEncoded returns the obfuscated checksummed whitelist payload.
func (h *WhitelistHandler) GetEncoded(c *gin.Context) {
	encoded, err := h.content.GenerateEncoded(c.Request.Context(), c.Query("realm"))
	if err != nil {
		c.Error(err)
		return
	}
	c.String(http.StatusOK, encoded)
}

// GetStats returns live aggregate counts.
func (h *WhitelistHandler) GetStats(c *gin.Context) {
	stats, err := h.content.Statistics(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Publish triggers a publish cycle immediately, bypassing the debounce.
func (h *WhitelistHandler) Publish(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
		Force   bool   `json:"force"`
		RealmID string `json:"realm_id"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	result, err := h.publisher.Publish(c.Request.Context(), services.PublishRequest{
		Message: req.Message,
		Force:   req.Force,
		RealmID: req.RealmID,
	})
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SyncRoles reconciles a user's live external role membership and queues a
// debounced publish for the affected realm.
func (h *WhitelistHandler) SyncRoles(c *gin.Context) {
	var req struct {
		UserID          string   `json:"user_id" binding:"required"`
		ExternalRoleIDs []string `json:"external_role_ids"`
		RealmID         string   `json:"realm_id" binding:"required"`
		Message         string   `json:"message"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.sync.SyncUserRoles(c.Request.Context(), req.UserID, req.ExternalRoleIDs, req.RealmID); err != nil {
		c.Error(err)
		return
	}
	h.coordinator.Queue(req.UserID, req.Message, req.RealmID)

	c.JSON(http.StatusAccepted, gin.H{
		"queued":  true,
		"pending": h.coordinator.Pending(),
	})
}
