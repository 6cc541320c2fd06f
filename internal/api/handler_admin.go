package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"flats-rental-backend/internal/factory"
	"flats-rental-backend/internal/host"
	"flats-rental-backend/internal/mw"
)

// RequireFactoryOwner admits only the factory owner. It must run after
// mw.Caller.
func (h *Handler) RequireFactoryOwner(c *gin.Context) {
	out, err := h.rt.Invoke(c.Request.Context(), h.factory, factory.MethodGetOwner, host.Call{}, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	var owner string
	if err := json.Unmarshal(out, &owner); err != nil || owner != mw.CallerFrom(c) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "factory owner only"})
		return
	}
	c.Next()
}

// GetFailedChains handles GET /api/admin/chains/failed?limit=.
func (h *Handler) GetFailedChains(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 100
	}
	chains, err := h.rt.FailedChains(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chains)
}

// GetChain handles GET /api/admin/chains/:id.
func (h *Handler) GetChain(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid chain ID"})
		return
	}
	chain, receipts, err := h.rt.Chain(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chain": chain, "receipts": receipts})
}

// ResumeChain handles POST /api/admin/chains/:id/resume.
func (h *Handler) ResumeChain(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid chain ID"})
		return
	}
	if err := h.rt.Resume(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
