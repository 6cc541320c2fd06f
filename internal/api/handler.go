package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"flats-rental-backend/internal/host"
	"flats-rental-backend/internal/logging"
	"flats-rental-backend/internal/model"
	"flats-rental-backend/internal/mw"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	rt      *host.Runtime
	db      *gorm.DB
	factory string
	webpush *webpush.Options
}

// NewHandler creates a new API handler. factory is the account that
// create_property and the registry routes are served by.
func NewHandler(rt *host.Runtime, db *gorm.DB, factory string, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		rt:      rt,
		db:      db,
		factory: factory,
		webpush: webpushOptions,
	}
}

// invoke calls method on account as the authenticated caller (if any) and
// writes the raw result.
func (h *Handler) invoke(c *gin.Context, status int, account, method string, args any) {
	caller := mw.CallerFrom(c)
	call := host.Call{Predecessor: caller, Signer: caller, Deposit: mw.DepositFrom(c)}
	out, err := h.rt.Invoke(c.Request.Context(), account, method, call, args)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(status, "application/json; charset=utf-8", out)
}

var statusByKind = map[model.ErrorKind]int{
	model.KindInvalidInput:        http.StatusBadRequest,
	model.KindInvalidName:         http.StatusBadRequest,
	model.KindInvalidProperty:     http.StatusBadRequest,
	model.KindUnavailable:         http.StatusConflict,
	model.KindNotOccupied:         http.StatusConflict,
	model.KindNameTaken:           http.StatusConflict,
	model.KindAlreadyInitialized:  http.StatusConflict,
	model.KindPriceMismatch:       http.StatusPaymentRequired,
	model.KindInsufficientDeposit: http.StatusPaymentRequired,
	model.KindForbidden:           http.StatusForbidden,
	model.KindNotFound:            http.StatusNotFound,
}

// respondError maps a rejected call to its HTTP status. Anything that is not
// a contract error is logged and hidden behind a 500.
func respondError(c *gin.Context, err error) {
	var ce *model.Error
	if errors.As(err, &ce) {
		status, ok := statusByKind[ce.Kind]
		if !ok {
			status = http.StatusBadRequest
		}
		c.AbortWithStatusJSON(status, gin.H{"error": ce.Message, "kind": ce.Kind})
		return
	}
	logging.Logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
