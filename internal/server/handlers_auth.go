package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/homecarehub/homecare/internal/auth"
	"github.com/homecarehub/homecare/pkg/models"
)

func (s *Server) handleRegister(c *gin.Context) {
	var req models.RegisterRequest
	if !s.bindJSON(c, &req) {
		return
	}
	req.FirstName = s.validator.Sanitize(req.FirstName)
	req.LastName = s.validator.Sanitize(req.LastName)

	user, err := s.authSvc.Register(c.Request.Context(), &req)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req models.LoginRequest
	if !s.bindJSON(c, &req) {
		return
	}

	pair, user, err := s.authSvc.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err == auth.ErrMFARequired {
		c.JSON(http.StatusOK, models.LoginResponse{Requires2FA: true, UserID: user.ID})
		return
	}
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

type mfaLoginRequest struct {
	UserID string `json:"user_id" binding:"required,uuid"`
	Code   string `json:"code" binding:"required"`
}

func (s *Server) handleMFALogin(c *gin.Context) {
	var req mfaLoginRequest
	if !s.bindJSON(c, &req) {
		return
	}

	userID, ok := parseID(req.UserID)
	if !ok {
		s.abortInvalidID(c)
		return
	}

	pair, user, err := s.authSvc.CompleteMFALogin(c.Request.Context(), userID, req.Code)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req refreshRequest
	if !s.bindJSON(c, &req) {
		return
	}

	pair, err := s.authSvc.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (s *Server) handleLogout(c *gin.Context) {
	if err := s.authSvc.RevokeToken(c.Request.Context(), c.GetHeader("Authorization")); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

func (s *Server) handleMe(c *gin.Context) {
	user, err := s.authSvc.GetUser(c.Request.Context(), s.userID(c))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

type profileUpdateRequest struct {
	FirstName string `json:"first_name" binding:"required,min=1,max=50"`
	LastName  string `json:"last_name" binding:"required,min=1,max=50"`
	Phone     string `json:"phone" binding:"omitempty,e164"`
}

func (s *Server) handleUpdateProfile(c *gin.Context) {
	var req profileUpdateRequest
	if !s.bindJSON(c, &req) {
		return
	}

	user, err := s.authSvc.UpdateProfile(c.Request.Context(), s.userID(c),
		s.validator.Sanitize(req.FirstName), s.validator.Sanitize(req.LastName), req.Phone)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) handleTOTPSetup(c *gin.Context) {
	setup, err := s.authSvc.GenerateTOTPSecret(c.Request.Context(), s.userID(c))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, setup)
}

type totpVerifyRequest struct {
	Secret string `json:"secret" binding:"required"`
	Code   string `json:"code" binding:"required"`
}

func (s *Server) handleTOTPVerify(c *gin.Context) {
	var req totpVerifyRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if err := s.authSvc.VerifyTOTPSetup(c.Request.Context(), s.userID(c), req.Secret, req.Code); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "mfa enabled"})
}

type totpDisableRequest struct {
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleTOTPDisable(c *gin.Context) {
	var req totpDisableRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if err := s.authSvc.DisableTOTP(c.Request.Context(), s.userID(c), req.Password); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "mfa disabled"})
}

type passwordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (s *Server) handlePasswordResetRequest(c *gin.Context) {
	var req passwordResetRequest
	if !s.bindJSON(c, &req) {
		return
	}

	token, err := s.authSvc.StartPasswordReset(c.Request.Context(), req.Email)
	if err != nil {
		s.renderError(c, err)
		return
	}
	if token != "" {
		if user, err := s.authSvc.GetUserByEmail(c.Request.Context(), req.Email); err == nil {
			_, _ = s.notifications.NotifyEmail(c.Request.Context(), user.ID, nil, "auth.password_reset",
				"Password reset requested",
				"Use this code to reset your password: "+token, user.Email)
		}
	}

	// Always accepted so callers cannot probe for accounts.
	c.JSON(http.StatusAccepted, gin.H{"status": "reset requested"})
}

type passwordResetConfirm struct {
	Email       string `json:"email" binding:"required,email"`
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=10,max=128"`
}

func (s *Server) handlePasswordResetConfirm(c *gin.Context) {
	var req passwordResetConfirm
	if !s.bindJSON(c, &req) {
		return
	}
	if err := s.authSvc.CompletePasswordReset(c.Request.Context(), req.Email, req.Token, req.NewPassword); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "password updated"})
}
