package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"flats-rental-backend/internal/host"
	"flats-rental-backend/internal/mw"
)

// Options configures the HTTP surface.
type Options struct {
	Factory         string
	JWTSecret       []byte
	RateLimitPerSec float64
	RateLimitBurst  int
	RequestIPHeader string
	CacheTTL        time.Duration
	Webpush         *webpush.Options
}

// NewRouter creates and configures a new Gin router.
func NewRouter(rt *host.Runtime, db *gorm.DB, opts Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(rt, db, opts.Factory, opts.Webpush)

	rateLimiter := mw.RateLimiter(rate.Limit(opts.RateLimitPerSec), opts.RateLimitBurst, opts.RequestIPHeader)

	// Only static reads are cached: owners and property info never change
	// after initialization.
	cacheStore := cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	caching := mw.Cache(cacheStore, opts.CacheTTL)

	auth := mw.Caller(opts.JWTSecret)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		f := api.Group("/factory")
		f.GET("/owner", caching, handler.GetFactoryOwner)
		f.GET("/properties", handler.ListProperties)
		f.POST("/properties", auth, handler.CreateProperty)
		f.GET("/names/:name", handler.GetNameTaken)
		f.GET("/owners/:owner", handler.GetOwnedProperties)
		f.POST("/ownership", auth, handler.RegisterOwnership)

		l := api.Group("/ledgers/:account")
		l.GET("/info", caching, handler.GetPropertyInfo)
		l.GET("/owner", caching, handler.GetLedgerOwner)
		l.GET("/payments", auth, handler.GetPayments)
		l.GET("/dates/:year/:month/:day", handler.GetDateAvailable)
		l.POST("/dates/:year/:month/:day/book", auth, handler.BookDate)
		l.GET("/dates/:year/:month/:day/verify", auth, handler.VerifyOccupant)
		l.GET("/units", handler.GetUnitCount)
		l.GET("/units/pending-vacate", handler.GetPendingVacate)
		l.GET("/units/:unit", handler.GetRoomAvailable)
		l.POST("/units/:unit/book", auth, handler.BookUnit)
		l.POST("/units/:unit/non-renewal", auth, handler.FlagNonRenewal)
		l.POST("/units/:unit/unlock", auth, handler.UnlockUnit)

		admin := api.Group("/admin", auth, handler.RequireFactoryOwner)
		admin.GET("/chains/failed", handler.GetFailedChains)
		admin.GET("/chains/:id", handler.GetChain)
		admin.POST("/chains/:id/resume", handler.ResumeChain)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
