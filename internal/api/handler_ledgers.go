package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"flats-rental-backend/internal/ledger"
	"flats-rental-backend/internal/model"
)

// GetPropertyInfo handles GET /api/ledgers/:account/info.
func (h *Handler) GetPropertyInfo(c *gin.Context) {
	h.invoke(c, http.StatusOK, c.Param("account"), ledger.MethodGetPropertyInfo, nil)
}

// GetLedgerOwner handles GET /api/ledgers/:account/owner.
func (h *Handler) GetLedgerOwner(c *gin.Context) {
	h.invoke(c, http.StatusOK, c.Param("account"), ledger.MethodGetOwner, nil)
}

// GetPayments handles GET /api/ledgers/:account/payments?offset=&limit=.
func (h *Handler) GetPayments(c *gin.Context) {
	offset, err1 := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, err2 := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err1 != nil || err2 != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "offset and limit must be integers"})
		return
	}
	h.invoke(c, http.StatusOK, c.Param("account"), ledger.MethodPayments, ledger.PaymentsArgs{Offset: offset, Limit: limit})
}

// dateParam reads /:year/:month/:day. Calendar validity is not checked.
func dateParam(c *gin.Context) (model.Date, bool) {
	year, err := strconv.ParseInt(c.Param("year"), 10, 32)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid year"})
		return model.Date{}, false
	}
	month, err := strconv.ParseUint(c.Param("month"), 10, 32)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid month"})
		return model.Date{}, false
	}
	day, err := strconv.ParseUint(c.Param("day"), 10, 32)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid day"})
		return model.Date{}, false
	}
	return model.Date{Day: uint32(day), Month: uint32(month), Year: int32(year)}, true
}

func (h *Handler) dateCall(method string) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, ok := dateParam(c)
		if !ok {
			return
		}
		h.invoke(c, http.StatusOK, c.Param("account"), method, ledger.DateArgs{Date: d})
	}
}

// GetDateAvailable handles GET /api/ledgers/:account/dates/:year/:month/:day.
func (h *Handler) GetDateAvailable(c *gin.Context) { h.dateCall(ledger.MethodIsDateAvailable)(c) }

// BookDate handles POST .../dates/:year/:month/:day/book.
func (h *Handler) BookDate(c *gin.Context) { h.dateCall(ledger.MethodBook)(c) }

// VerifyOccupant handles GET .../dates/:year/:month/:day/verify.
func (h *Handler) VerifyOccupant(c *gin.Context) { h.dateCall(ledger.MethodVerifyOccupant)(c) }

func (h *Handler) unitCall(method string) gin.HandlerFunc {
	return func(c *gin.Context) {
		unit, err := strconv.ParseUint(c.Param("unit"), 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid unit ID"})
			return
		}
		h.invoke(c, http.StatusOK, c.Param("account"), method, ledger.UnitArgs{Unit: unit})
	}
}

// GetUnitCount handles GET /api/ledgers/:account/units.
func (h *Handler) GetUnitCount(c *gin.Context) {
	h.invoke(c, http.StatusOK, c.Param("account"), ledger.MethodUnitCount, nil)
}

// GetPendingVacate handles GET /api/ledgers/:account/units/pending-vacate.
func (h *Handler) GetPendingVacate(c *gin.Context) {
	h.invoke(c, http.StatusOK, c.Param("account"), ledger.MethodListPendingVacate, nil)
}

func (h *Handler) GetRoomAvailable(c *gin.Context) { h.unitCall(ledger.MethodRoomIsAvailable)(c) }
func (h *Handler) BookUnit(c *gin.Context)         { h.unitCall(ledger.MethodBookUnit)(c) }
func (h *Handler) FlagNonRenewal(c *gin.Context)   { h.unitCall(ledger.MethodFlagNonRenewal)(c) }
func (h *Handler) UnlockUnit(c *gin.Context)       { h.unitCall(ledger.MethodUnlockUnit)(c) }
