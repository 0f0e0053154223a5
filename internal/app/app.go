// Package app assembles the HTTP surface shared by cmd/api and the end-to-end tests.
package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"pgstay/internal/cache"
	"pgstay/internal/config"
	"pgstay/internal/middleware"
	"pgstay/internal/modules/booking"
	"pgstay/internal/modules/inventory"
	"pgstay/internal/modules/notification"
	"pgstay/internal/modules/payment"
	"pgstay/internal/modules/webhook"
	jwtsvc "pgstay/internal/pkg/jwt"
	"pgstay/internal/pkg/response"
	"pgstay/internal/repository"
)

// Deps are the process-level resources. PropertyCache and Publisher are optional.
type Deps struct {
	Config        *config.Config
	DB            *gorm.DB
	PropertyCache cache.PropertyCache
	Publisher     notification.Publisher
	Loggerf       func(format string, args ...interface{})
}

type App struct {
	Router   *gin.Engine
	Bookings *booking.Service
	Webhooks *webhook.Service
	Hub      *notification.Hub
	JWT      *jwtsvc.Service
}

func New(deps Deps) *App {
	cfg := deps.Config
	loggerf := deps.Loggerf
	if loggerf == nil {
		loggerf = log.Printf
	}

	bookingRepo := repository.NewBookingRepository(deps.DB)
	roomRepo := repository.NewRoomRepository(deps.DB)
	propertyRepo := repository.NewPropertyRepository(deps.DB)
	eventRepo := repository.NewWebhookEventRepository(deps.DB)
	properties := cache.NewReadThrough(propertyRepo, deps.PropertyCache)

	j := jwtsvc.New(cfg.JWTSecret, 24*time.Hour)
	verifier := payment.NewVerifier(cfg.PaymentKeySecret, cfg.PaymentWebhookSecret)
	ledger := inventory.NewLedger(deps.DB, loggerf)

	hub := notification.NewHub()
	dispatcher := notification.NewDispatcher(deps.Publisher, hub, loggerf)

	webhookService := webhook.NewService(verifier, eventRepo, bookingRepo, ledger, loggerf)
	webhookService.SetNotifier(dispatcher, properties)

	bookingService := booking.NewService(bookingRepo, properties, roomRepo, ledger, verifier, cfg.CapacityPolicy, loggerf)
	bookingService.SetNotifier(dispatcher)
	bookingService.SetReplayer(webhookService)

	if config.IsProdLike(cfg.AppEnv) {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), middleware.ErrorLogger(), middleware.CORS(cfg.CORSAllowedOrigins))

	r.GET("/health", health(deps.DB))
	r.GET("/ws/notifications", notification.NewWSHandler(hub, j, cfg.CORSAllowedOrigins).HandleWebSocket)

	v1 := r.Group("/api/v1")
	{
		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(j))

		owner := v1.Group("/owner")
		owner.Use(middleware.JWTAuth(j), middleware.OwnerOnly())

		internal := v1.Group("/internal")
		internal.Use(middleware.InternalTokenAuth(cfg.InternalToken))

		booking.NewHandler(bookingService).RegisterRoutes(protected, owner)
		webhook.NewHandler(webhookService).RegisterRoutes(v1, internal)
	}

	return &App{
		Router:   r,
		Bookings: bookingService,
		Webhooks: webhookService,
		Hub:      hub,
		JWT:      j,
	}
}

func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			err = sqlDB.PingContext(ctx)
			cancel()
		}
		if err != nil {
			_ = c.Error(err)
			response.Unavailable(c, "Database unreachable")
			return
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}
