package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"gatekeeper/internal/core/domain"
	"gatekeeper/internal/core/ports"
)

// RoleHandler exposes the administrative role mapping surface.
type RoleHandler struct {
	store ports.Store
}

func NewRoleHandler(store ports.Store) *RoleHandler {
	return &RoleHandler{store: store}
}

// SetupRoutes registers role mapping endpoints on the protected group.
func (h *RoleHandler) SetupRoutes(protected *gin.RouterGroup) {
	protected.POST("/realms/:realm/roles", h.MapRole)
	protected.GET("/realms/:realm/roles", h.ListRoles)
	protected.PUT("/roles/:id", h.UpdateRole)
	protected.DELETE("/roles/:id", h.UnmapRole)
	protected.POST("/assignments/sweep", h.SweepExpired)
}

// MapRole binds an external role to a permission token list inside one
// realm. The (realm, external role) pair must be unique.
func (h *RoleHandler) MapRole(c *gin.Context) {
	var req struct {
		ExternalRoleID string `json:"external_role_id" binding:"required"`
		Permissions    string `json:"permissions" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(domain.ParseTokens(req.Permissions)) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "permissions must contain at least one token"})
		return
	}

	role := &domain.PermissionRole{
		RealmID:        c.Param("realm"),
		ExternalRoleID: &req.ExternalRoleID,
		Permissions:    req.Permissions,
	}
	if err := h.store.CreateRole(c.Request.Context(), role); err != nil {
		if errors.Is(err, domain.ErrRoleMapped) {
			c.JSON(http.StatusConflict, gin.H{"error": "external role is already mapped in this realm"})
			return
		}
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"role": role})
}

// ListRoles returns all permission roles of a realm.
func (h *RoleHandler) ListRoles(c *gin.Context) {
	roles, err := h.store.RolesByRealm(c.Request.Context(), c.Param("realm"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}

// UpdateRole replaces a role's permission token list.
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	roleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role id"})
		return
	}

	var req struct {
		Permissions string `json:"permissions" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.UpdateRolePermissions(c.Request.Context(), roleID, req.Permissions); err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "role not found"})
			return
		}
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

// UnmapRole deletes a role; assignments referencing it cascade away.
func (h *RoleHandler) UnmapRole(c *gin.Context) {
	roleID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role id"})
		return
	}

	if err := h.store.DeleteRole(c.Request.Context(), roleID); err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "role not found"})
			return
		}
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// SweepExpired removes expired role assignment rows. Expired rows are
// excluded from resolution anyway; the sweep is housekeeping on demand.
func (h *RoleHandler) SweepExpired(c *gin.Context) {
	removed, err := h.store.SweepExpiredAssignments(c.Request.Context(), time.Now())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
