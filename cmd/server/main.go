package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/quantdesk/quantdesk-api/internal/accounts"
	"github.com/quantdesk/quantdesk-api/internal/auth"
	"github.com/quantdesk/quantdesk-api/internal/billing"
	"github.com/quantdesk/quantdesk-api/internal/brokers"
	"github.com/quantdesk/quantdesk-api/internal/config"
	"github.com/quantdesk/quantdesk-api/internal/database"
	"github.com/quantdesk/quantdesk-api/internal/market"
	"github.com/quantdesk/quantdesk-api/internal/portfolio"
	"github.com/quantdesk/quantdesk-api/internal/security"
	"github.com/quantdesk/quantdesk-api/internal/trading"
	"github.com/quantdesk/quantdesk-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures application logging. Development mode gets pretty console
// output; DEBUG=true raises the level.
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main wires the services, routes and background jobs, then runs the API
// server with graceful shutdown.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())

	// Services and handlers
	authService := auth.NewService(db, cfg.JWTSecret, cfg.TokenTTL)
	authHandlers := auth.NewGinHandlers(authService, cfg.Env == "production")

	csrfService := security.NewCSRFService(cfg.CSRFSecret, time.Hour)
	securityHandlers := security.NewGinHandlers(csrfService)

	marketService := market.NewService(cfg.BinanceBaseURL, cfg.PriceCacheTTL)
	marketHandlers := market.NewGinHandlers(marketService)

	accountService := accounts.NewService(db)
	accountHandlers := accounts.NewGinHandlers(accountService)

	billingService := billing.NewService(db)
	billingHandlers := billing.NewGinHandlers(billingService, cfg.StripeWebhookSecret)

	registry := brokers.NewRegistry(brokers.Config{
		BinanceBaseURL:     cfg.BinanceBaseURL,
		BybitBaseURL:       cfg.BybitBaseURL,
		TradovateBaseURL:   cfg.TradovateBaseURL,
		NinjaTraderBaseURL: cfg.NinjaTraderBaseURL,
	})

	tradingService := trading.NewService(db, accountService, registry, billingService)
	tradingHandlers := trading.NewGinHandlers(tradingService)

	portfolioService := portfolio.NewService(db, marketService)
	portfolioHandlers := portfolio.NewGinHandlers(portfolioService)

	// Background position re-marking
	refresherCtx, refresherCancel := context.WithCancel(context.Background())
	defer refresherCancel()

	refresher := portfolio.NewRefresher(portfolioService, cfg.PortfolioRefreshSpec)
	if err := refresher.Start(refresherCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to start portfolio refresher")
	}

	// Rate limiting
	limiter := security.NewRateLimiter(nil)
	limiterStop := make(chan struct{})
	defer close(limiterStop)
	limiter.StartCleanup(limiterStop)

	setupRoutes(router, limiter, routeHandlers{
		auth:      authHandlers,
		security:  securityHandlers,
		market:    marketHandlers,
		accounts:  accountHandlers,
		trading:   tradingHandlers,
		portfolio: portfolioHandlers,
		billing:   billingHandlers,
	}, authService, csrfService)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		zlog.Info().Str("port", cfg.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	refresherCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

type routeHandlers struct {
	auth      *auth.GinHandlers
	security  *security.GinHandlers
	market    *market.GinHandlers
	accounts  *accounts.GinHandlers
	trading   *trading.GinHandlers
	portfolio *portfolio.GinHandlers
	billing   *billing.GinHandlers
}

// setupRoutes configures all API endpoints. Public routes cover auth, market
// data and the Stripe webhook; everything touching accounts, orders or the
// portfolio sits behind JWT auth with CSRF enforcement for cookie sessions.
// The rate limiter runs after authentication so logged-in traffic is counted
// per user; public routes fall back to the client IP.
func setupRoutes(router *gin.Engine, limiter *security.RateLimiter, h routeHandlers, authService *auth.Service, csrfService *security.CSRFService) {
	rateLimit := middleware.RateLimit(limiter)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth", rateLimit)
		{
			authGroup.POST("/register", h.auth.RegisterHandler())
			authGroup.POST("/login", h.auth.LoginHandler())
			authGroup.POST("/logout", h.auth.LogoutHandler())
		}

		// Token issuance must see the session so the token is bound to the
		// user a later mutation will be verified against.
		v1.GET("/csrf", middleware.OptionalJWTAuth(authService), rateLimit, h.security.CSRFTokenHandler())

		marketGroup := v1.Group("/market", rateLimit)
		{
			marketGroup.GET("/prices", h.market.PricesHandler())
			marketGroup.GET("/candles", h.market.CandlesHandler())
			marketGroup.GET("/signals", h.market.SignalsHandler())
		}

		// Stripe calls this directly; it authenticates via signature.
		v1.POST("/billing/webhook", rateLimit, h.billing.WebhookHandler())

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(authService))
		protected.Use(rateLimit)
		protected.Use(middleware.CSRF(csrfService))
		{
			accountsGroup := protected.Group("/accounts")
			{
				accountsGroup.POST("", h.accounts.CreateHandler())
				accountsGroup.GET("", h.accounts.ListHandler())
				accountsGroup.GET("/:account_id", h.accounts.GetHandler())
				accountsGroup.DELETE("/:account_id", h.accounts.DeleteHandler())
			}

			tradingGroup := protected.Group("/trading")
			{
				tradingGroup.POST("/orders", h.trading.PlaceOrderHandler())
				tradingGroup.GET("/orders", h.trading.ListOrdersHandler())
				tradingGroup.GET("/orders/:order_id", h.trading.GetOrderHandler())
				tradingGroup.DELETE("/orders/:order_id", h.trading.CancelOrderHandler())
				tradingGroup.GET("/positions", h.trading.ListPositionsHandler())
				tradingGroup.GET("/portfolio", h.portfolio.SummaryHandler())
			}

			protected.GET("/billing/subscription", h.billing.SubscriptionHandler())
		}
	}
}
