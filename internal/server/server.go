package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gin-contrib/cors"

	oidcauth "github.com/homecarehub/homecare/common/auth"
	"github.com/homecarehub/homecare/internal/auth"
	"github.com/homecarehub/homecare/internal/company"
	"github.com/homecarehub/homecare/internal/config"
	"github.com/homecarehub/homecare/internal/licensing"
	"github.com/homecarehub/homecare/internal/messaging"
	"github.com/homecarehub/homecare/internal/notification"
	"github.com/homecarehub/homecare/internal/scope"
	"github.com/homecarehub/homecare/internal/staff"
	"github.com/homecarehub/homecare/pkg/validation"
)

// Server is the HTTP front of the application.
type Server struct {
	logger        *zap.Logger
	cfg           *config.Config
	db            *gorm.DB
	engine        *gin.Engine
	httpServer    *http.Server
	validator     *validation.Validator
	authSvc       auth.AuthService
	resolver      *scope.Resolver
	companySvc    *company.Service
	staffSvc      *staff.Service
	licensingSvc  *licensing.Service
	notifications *notification.Service
	publisher     messaging.Publisher
}

// New assembles the HTTP server and its routes.
func New(
	logger *zap.Logger,
	cfg *config.Config,
	db *gorm.DB,
	authSvc auth.AuthService,
	resolver *scope.Resolver,
	companySvc *company.Service,
	staffSvc *staff.Service,
	licensingSvc *licensing.Service,
	notifications *notification.Service,
	publisher messaging.Publisher,
) *Server {
	s := &Server{
		logger:        logger,
		cfg:           cfg,
		db:            db,
		validator:     validation.NewValidator(),
		authSvc:       authSvc,
		resolver:      resolver,
		companySvc:    companySvc,
		staffSvc:      staffSvc,
		licensingSvc:  licensingSvc,
		notifications: notifications,
		publisher:     publisher,
	}
	s.engine = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(ginzap.Ginzap(s.logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(s.logger, true))
	router.Use(otelgin.Middleware("homecare"))
	router.Use(s.metricsMiddleware())

	corsConfig := cors.DefaultConfig()
	if len(s.cfg.Server.AllowedOrigins) == 1 && s.cfg.Server.AllowedOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.cfg.Server.AllowedOrigins
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", "X-Company-ID")
	router.Use(cors.New(corsConfig))

	router.GET("/health", s.handleHealth)
	router.GET("/ready", s.handleReady)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	// Public endpoints.
	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/register", s.handleRegister)
		authGroup.POST("/login", s.handleLogin)
		authGroup.POST("/mfa", s.handleMFALogin)
		authGroup.POST("/refresh", s.handleRefresh)
		authGroup.POST("/password-reset/request", s.handlePasswordResetRequest)
		authGroup.POST("/password-reset/confirm", s.handlePasswordResetConfirm)
	}

	// Authenticated endpoints.
	authed := v1.Group("")
	if s.cfg.OIDC.Enabled {
		authed.Use(oidcauth.Middleware(s.logger, oidcauth.AuthorizationConfig{
			Issuer:   s.cfg.OIDC.Issuer,
			Audience: s.cfg.OIDC.Audience,
		}))
		authed.Use(s.oidcBridgeMiddleware())
	} else {
		authed.Use(s.authMiddleware())
	}
	{
		authed.POST("/auth/logout", s.handleLogout)
		authed.GET("/me", s.handleMe)
		authed.PUT("/me", s.handleUpdateProfile)
		authed.POST("/me/totp/setup", s.handleTOTPSetup)
		authed.POST("/me/totp/verify", s.handleTOTPVerify)
		authed.DELETE("/me/totp", s.handleTOTPDisable)

		authed.POST("/companies", s.handleCreateCompany)
		authed.POST("/invitations/accept", s.handleAcceptInvite)

		authed.GET("/notifications", s.handleListNotifications)
		authed.GET("/notifications/unread-count", s.handleUnreadCount)
		authed.POST("/notifications/:id/read", s.handleMarkRead)
		authed.POST("/notifications/read-all", s.handleMarkAllRead)
	}

	// Scope-resolved endpoints.
	scoped := authed.Group("")
	scoped.Use(s.scopeMiddleware())
	{
		scoped.GET("/companies", s.handleListCompanies)
		scoped.GET("/companies/:companyID", s.handleGetCompany)
		scoped.PUT("/companies/:companyID", s.handleUpdateCompany)
		scoped.PUT("/companies/:companyID/status", s.handleSetCompanyStatus)

		scoped.POST("/companies/:companyID/homes", s.handleCreateHome)
		scoped.GET("/companies/:companyID/homes", s.handleListHomes)
		scoped.GET("/homes/:id", s.handleGetHome)
		scoped.PUT("/homes/:id", s.handleUpdateHome)
		scoped.DELETE("/homes/:id", s.handleArchiveHome)

		scoped.GET("/companies/:companyID/staff", s.handleListStaff)
		scoped.POST("/companies/:companyID/assignments", s.handleCreateAssignment)
		scoped.PUT("/assignments/:id", s.handleUpdateAssignment)
		scoped.PUT("/assignments/:id/self", s.handleSelfUpdate)
		scoped.DELETE("/assignments/:id", s.handleEndAssignment)
		scoped.PUT("/memberships/:id/role", s.handleChangeCompanyRole)
		scoped.DELETE("/memberships/:id", s.handleRemoveMember)

		scoped.POST("/companies/:companyID/invitations", s.handleInvite)
		scoped.GET("/companies/:companyID/invitations", s.handleListInvitations)
		scoped.DELETE("/invitations/:id", s.handleRevokeInvitation)

		scoped.GET("/companies/:companyID/billing", s.handleBillingStatus)
		scoped.PUT("/companies/:companyID/billing/plan", s.handleChangePlan)
		scoped.DELETE("/companies/:companyID/billing", s.handleCancelSubscription)
	}

	return router
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving and blocks until the listener stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.logger.Info("http server listening", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// publish emits a domain event, logging rather than failing the request when
// the broker is unavailable.
func (s *Server) publish(c *gin.Context, event messaging.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(c.Request.Context(), event); err != nil {
		s.logger.Warn("failed to publish event", zap.String("type", event.Type), zap.Error(err))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReady(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
