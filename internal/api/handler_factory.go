package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"flats-rental-backend/internal/factory"
)

// GetFactoryOwner handles GET /api/factory/owner.
func (h *Handler) GetFactoryOwner(c *gin.Context) {
	h.invoke(c, http.StatusOK, h.factory, factory.MethodGetOwner, nil)
}

// CreateProperty handles POST /api/factory/properties. The fee travels in
// the deposit header; provisioning continues after the response.
func (h *Handler) CreateProperty(c *gin.Context) {
	var req factory.CreatePropertyArgs
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	h.invoke(c, http.StatusAccepted, h.factory, factory.MethodCreateProperty, req)
}

// ListProperties handles GET /api/factory/properties.
func (h *Handler) ListProperties(c *gin.Context) {
	h.invoke(c, http.StatusOK, h.factory, factory.MethodListAll, nil)
}

// GetNameTaken handles GET /api/factory/names/:name.
func (h *Handler) GetNameTaken(c *gin.Context) {
	h.invoke(c, http.StatusOK, h.factory, factory.MethodNameTaken, factory.NameArgs{Name: c.Param("name")})
}

// GetOwnedProperties handles GET /api/factory/owners/:owner.
func (h *Handler) GetOwnedProperties(c *gin.Context) {
	h.invoke(c, http.StatusOK, h.factory, factory.MethodOwnedBy, factory.OwnerArgs{Owner: c.Param("owner")})
}

// RegisterOwnership handles POST /api/factory/ownership. External callers are
// always refused; the route exists so the refusal is observable.
func (h *Handler) RegisterOwnership(c *gin.Context) {
	var req factory.RegisterArgs
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	h.invoke(c, http.StatusOK, h.factory, factory.MethodRegisterOwnership, req)
}
