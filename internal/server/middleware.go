package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/homecarehub/homecare/internal/auth"
	"github.com/homecarehub/homecare/internal/company"
	"github.com/homecarehub/homecare/internal/licensing"
	"github.com/homecarehub/homecare/internal/notification"
	"github.com/homecarehub/homecare/internal/scope"
	"github.com/homecarehub/homecare/internal/staff"
	apperrors "github.com/homecarehub/homecare/pkg/errors"
	"github.com/homecarehub/homecare/pkg/metrics"
)

const (
	ctxUserID    = "user_id"
	ctxRequester = "requester"
	companyIDHdr = "X-Company-ID"
)

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(path, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// authMiddleware validates locally issued bearer tokens.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			s.renderError(c, auth.ErrInvalidToken)
			c.Abort()
			return
		}

		claims, err := s.authSvc.ValidateToken(c.Request.Context(), header)
		if err != nil {
			s.renderError(c, err)
			c.Abort()
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Next()
	}
}

// oidcBridgeMiddleware maps an externally validated identity onto a local
// account. Runs after the OIDC middleware has populated the email claim.
func (s *Server) oidcBridgeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		email := c.GetString("oidc_email")
		if email == "" {
			s.renderError(c, auth.ErrInvalidToken)
			c.Abort()
			return
		}

		user, err := s.authSvc.GetUserByEmail(c.Request.Context(), email)
		if err != nil {
			s.renderError(c, auth.ErrInvalidToken)
			c.Abort()
			return
		}

		c.Set(ctxUserID, user.ID)
		c.Next()
	}
}

// scopeMiddleware resolves the caller's effective level. The X-Company-ID
// header disambiguates multi-company users; a company path parameter serves
// as the hint when the header is absent.
func (s *Server) scopeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.MustGet(ctxUserID).(uuid.UUID)

		var hint *uuid.UUID
		raw := c.GetHeader(companyIDHdr)
		if raw == "" {
			raw = c.Param("companyID")
		}
		if raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				s.renderError(c, apperrors.NewValidationError("invalid company id", c.FullPath()))
				c.Abort()
				return
			}
			hint = &id
		}

		requester, err := s.resolver.Resolve(c.Request.Context(), userID, hint)
		if err != nil {
			s.renderError(c, err)
			c.Abort()
			return
		}

		c.Set(ctxRequester, requester)
		c.Next()
	}
}

func (s *Server) requester(c *gin.Context) *scope.Requester {
	return c.MustGet(ctxRequester).(*scope.Requester)
}

func (s *Server) userID(c *gin.Context) uuid.UUID {
	return c.MustGet(ctxUserID).(uuid.UUID)
}

// renderError maps domain errors onto RFC 7807 problem documents.
func (s *Server) renderError(c *gin.Context, err error) {
	instance := c.FullPath()

	var problem *apperrors.ProblemDetails
	switch {
	case apperrors.As(err, &problem):
		// Already a problem document.
	case apperrors.Is(err, scope.ErrAmbiguousCompany):
		problem = apperrors.NewAmbiguousCompanyError(err.Error(), instance)
	case apperrors.Is(err, scope.ErrOutOfScope),
		apperrors.Is(err, scope.ErrNoMembership),
		apperrors.Is(err, scope.ErrNotMember),
		apperrors.Is(err, scope.ErrDSLRestricted),
		apperrors.Is(err, scope.ErrCompanySuspended),
		apperrors.Is(err, staff.ErrInviteMismatch):
		problem = apperrors.NewOutOfScopeError(err.Error(), instance)
	case apperrors.Is(err, scope.ErrSelfFieldsOnly):
		problem = apperrors.NewValidationError(err.Error(), instance)
	case apperrors.Is(err, scope.ErrLastOwner):
		problem = apperrors.NewLastOwnerError(err.Error(), instance)
	case apperrors.Is(err, licensing.ErrSeatLimit):
		problem = apperrors.NewSeatLimitError(err.Error(), instance)
	case apperrors.Is(err, licensing.ErrReadOnly), apperrors.Is(err, staff.ErrReadOnly):
		problem = apperrors.NewReadOnlyCompanyError(err.Error(), instance)
	case apperrors.Is(err, auth.ErrMFARequired):
		problem = apperrors.NewMFARequiredError(err.Error(), instance)
	case apperrors.Is(err, staff.ErrInviteExpired):
		problem = apperrors.NewInviteExpiredError(err.Error(), instance)
	case apperrors.Is(err, staff.ErrInviteAccepted),
		apperrors.Is(err, staff.ErrAlreadyMember),
		apperrors.Is(err, staff.ErrAlreadyPlaced),
		apperrors.Is(err, company.ErrSlugTaken),
		apperrors.Is(err, auth.ErrEmailTaken):
		problem = apperrors.NewConflictError(err.Error(), instance)
	case apperrors.Is(err, staff.ErrNotFound),
		apperrors.Is(err, staff.ErrNotMember),
		apperrors.Is(err, company.ErrNotFound),
		apperrors.Is(err, notification.ErrNotFound),
		apperrors.Is(err, licensing.ErrNoSubscription):
		problem = apperrors.NewNotFoundError(err.Error(), instance)
	case apperrors.Is(err, staff.ErrArchivedHome),
		apperrors.Is(err, staff.ErrHomeNotInScope),
		apperrors.Is(err, company.ErrHomeArchived):
		problem = apperrors.NewValidationError(err.Error(), instance)
	case apperrors.Is(err, auth.ErrInvalidCredentials),
		apperrors.Is(err, auth.ErrInvalidToken),
		apperrors.Is(err, auth.ErrTokenRevoked),
		apperrors.Is(err, auth.ErrResetTokenInvalid):
		problem = apperrors.NewUnauthorizedError(err.Error(), instance)
	default:
		s.logger.Error("request failed", zap.String("path", instance), zap.Error(err))
		problem = apperrors.NewInternalError("an unexpected error occurred", instance)
	}

	c.Header("Content-Type", "application/problem+json")
	c.JSON(problem.Status, problem)
}

// bindJSON decodes and validates a request body, rendering a problem
// document on failure. Returns false when the request was rejected.
func (s *Server) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.renderError(c, apperrors.NewValidationError(err.Error(), c.FullPath()))
		return false
	}
	if fieldErrs := s.validator.Struct(dst); len(fieldErrs) > 0 {
		s.renderError(c, apperrors.NewValidationError("request validation failed", c.FullPath()).WithFieldErrors(fieldErrs))
		return false
	}
	return true
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	return parseID(c.Param(name))
}

func parseID(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) abortInvalidID(c *gin.Context) {
	s.renderError(c, apperrors.NewValidationError("invalid id", c.FullPath()))
}
