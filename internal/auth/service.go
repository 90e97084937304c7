package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/homecarehub/homecare/pkg/models"
)

// Service errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrInvalidToken       = errors.New("invalid token")
	ErrMFARequired        = errors.New("mfa verification required")
	ErrResetTokenInvalid  = errors.New("invalid or expired reset token")
)

// CodeStore abstracts the short-lived token storage backing password resets
// and verification codes. The production implementation is Redis.
type CodeStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, key string) error
}

// AuthService defines authentication operations
type AuthService interface {
	// Accounts
	Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, firstName, lastName, phone string) (*models.User, error)

	// Authentication
	Authenticate(ctx context.Context, email, password string) (*TokenPair, *models.User, error)
	CompleteMFALogin(ctx context.Context, userID uuid.UUID, totpCode string) (*TokenPair, *models.User, error)

	// Token management
	ValidateToken(ctx context.Context, tokenString string) (*TokenClaims, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error)
	RevokeToken(ctx context.Context, tokenString string) error
	InvalidateAllSessions(ctx context.Context, userID uuid.UUID) error

	// Multi-factor authentication
	GenerateTOTPSecret(ctx context.Context, userID uuid.UUID) (*TOTPSetup, error)
	VerifyTOTPSetup(ctx context.Context, userID uuid.UUID, secret, code string) error
	DisableTOTP(ctx context.Context, userID uuid.UUID, currentPassword string) error

	// Password reset
	StartPasswordReset(ctx context.Context, email string) (string, error)
	CompletePasswordReset(ctx context.Context, email, token, newPassword string) error
}

// TokenClaims represents JWT token claims
type TokenClaims struct {
	UserID        uuid.UUID `json:"user_id"`
	Email         string    `json:"email"`
	PlatformAdmin bool      `json:"platform_admin"`
	SessionID     uuid.UUID `json:"session_id"`
	TokenType     string    `json:"token_type"` // access, refresh
	jwt.RegisteredClaims
}

// TokenPair represents access and refresh tokens
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type"`
}

// TOTPSetup represents TOTP enrollment material
type TOTPSetup struct {
	Secret      string   `json:"secret"`
	OTPAuthURL  string   `json:"otpauth_url"`
	BackupCodes []string `json:"backup_codes"`
}

// Session represents a user session
type Session struct {
	ID                uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	UserID            uuid.UUID `json:"user_id" gorm:"type:uuid;index"`
	DeviceFingerprint string    `json:"device_fingerprint"`
	IPAddress         string    `json:"ip_address"`
	UserAgent         string    `json:"user_agent"`
	IsActive          bool      `json:"is_active" gorm:"default:true"`
	LastActivityAt    time.Time `json:"last_activity_at"`
	ExpiresAt         time.Time `json:"expires_at"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// BlacklistedToken represents a revoked token
type BlacklistedToken struct {
	ID        uuid.UUID `json:"id" gorm:"primaryKey;type:uuid"`
	TokenHash string    `json:"token_hash" gorm:"uniqueIndex"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// BackupCode is a one-time MFA recovery code
type BackupCode struct {
	ID        uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid"`
	UserID    uuid.UUID  `json:"user_id" gorm:"type:uuid;index"`
	CodeHash  string     `json:"-"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// Service implements AuthService
type Service struct {
	logger            *zap.Logger
	db                *gorm.DB
	codes             CodeStore
	jwtSecret         []byte
	jwtExpiration     time.Duration
	refreshSecret     []byte
	refreshExpiration time.Duration
	issuer            string
}

// NewService creates a new authentication service
func NewService(
	logger *zap.Logger,
	db *gorm.DB,
	codes CodeStore,
	jwtSecret string,
	jwtExpiration time.Duration,
	refreshSecret string,
	refreshExpiration time.Duration,
	issuer string,
) (AuthService, error) {
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT secret cannot be empty")
	}
	if refreshSecret == "" {
		return nil, fmt.Errorf("refresh secret cannot be empty")
	}

	svc := &Service{
		logger:            logger,
		db:                db,
		codes:             codes,
		jwtSecret:         []byte(jwtSecret),
		jwtExpiration:     jwtExpiration,
		refreshSecret:     []byte(refreshSecret),
		refreshExpiration: refreshExpiration,
		issuer:            issuer,
	}

	if err := svc.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate auth tables: %w", err)
	}

	return svc, nil
}

func (s *Service) migrate() error {
	return s.db.AutoMigrate(&Session{}, &BlacklistedToken{}, &BackupCode{})
}

// Register creates a new user account
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.User, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", strings.ToLower(req.Email)).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(req.Email),
		PasswordHash: string(hashed),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user registered", zap.String("user_id", user.ID.String()))
	return user, nil
}

// GetUser loads a user by ID
func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// GetUserByEmail loads a user by email. Used to map externally issued
// identities onto local accounts.
func (s *Service) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// UpdateProfile updates the caller's own profile fields
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, firstName, lastName, phone string) (*models.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.FirstName = firstName
	user.LastName = lastName
	user.Phone = phone
	user.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	return user, nil
}

// Authenticate verifies credentials and returns a token pair, or ErrMFARequired
// when the account has TOTP enabled and the login must be completed with a code.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*TokenPair, *models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrInvalidCredentials
		}
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	if user.MFAEnabled {
		return nil, &user, ErrMFARequired
	}

	return s.finishLogin(ctx, &user)
}

// CompleteMFALogin finishes a login challenge with a TOTP or backup code.
func (s *Service) CompleteMFALogin(ctx context.Context, userID uuid.UUID, totpCode string) (*TokenPair, *models.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if !user.MFAEnabled {
		return nil, nil, fmt.Errorf("mfa not enabled")
	}
	if err := s.verifyTOTPOrBackup(ctx, user, totpCode); err != nil {
		return nil, nil, err
	}

	s.db.WithContext(ctx).Model(user).Update("last_mfa", time.Now())
	return s.finishLogin(ctx, user)
}

func (s *Service) finishLogin(ctx context.Context, user *models.User) (*TokenPair, *models.User, error) {
	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	pair, err := s.generateTokenPair(user, session.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate tokens: %w", err)
	}

	s.db.WithContext(ctx).Model(user).Update("last_login", time.Now())
	return pair, user, nil
}

// ValidateToken validates a JWT access token and returns claims
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*TokenClaims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	tokenHash := hashToken(tokenString)
	var revoked BlacklistedToken
	if err := s.db.WithContext(ctx).Where("token_hash = ? AND expires_at > ?", tokenHash, time.Now()).First(&revoked).Error; err == nil {
		return nil, ErrTokenRevoked
	}

	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != "access" {
		return nil, ErrInvalidToken
	}

	if claims.SessionID != uuid.Nil {
		var session Session
		if err := s.db.WithContext(ctx).Where("id = ?", claims.SessionID).First(&session).Error; err != nil {
			return nil, fmt.Errorf("invalid session: %w", err)
		}
		if !session.IsActive || session.ExpiresAt.Before(time.Now()) {
			return nil, ErrInvalidToken
		}
	}

	return claims, nil
}

// RefreshToken exchanges a refresh token for a new token pair
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.validateRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", claims.UserID).First(&user).Error; err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	return s.generateTokenPair(&user, claims.SessionID)
}

// RevokeToken blacklists a token until its natural expiry
func (s *Service) RevokeToken(ctx context.Context, tokenString string) error {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	var expiresAt time.Time
	parser := jwt.NewParser()
	if token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{}); err == nil {
		if exp, err := token.Claims.GetExpirationTime(); err == nil && exp != nil {
			expiresAt = exp.Time
		}
	}
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(s.jwtExpiration)
	}

	entry := &BlacklistedToken{
		ID:        uuid.New(),
		TokenHash: hashToken(tokenString),
		ExpiresAt: expiresAt,
	}
	return s.db.WithContext(ctx).Create(entry).Error
}

// InvalidateAllSessions deactivates every session of a user
func (s *Service) InvalidateAllSessions(ctx context.Context, userID uuid.UUID) error {
	return s.db.WithContext(ctx).
		Model(&Session{}).
		Where("user_id = ?", userID).
		Update("is_active", false).Error
}

// StartPasswordReset stores a one-time reset token keyed by the account email.
// The token is returned for delivery by the notification service; unknown
// emails return an empty token without error to avoid account enumeration.
func (s *Service) StartPasswordReset(ctx context.Context, email string) (string, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to find user: %w", err)
	}

	token, err := generateSecureToken(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}

	key := fmt.Sprintf("password_reset:%s", user.ID.String())
	if err := s.codes.Set(ctx, key, hashToken(token), 30*time.Minute); err != nil {
		return "", fmt.Errorf("failed to store reset token: %w", err)
	}

	s.logger.Info("password reset started", zap.String("user_id", user.ID.String()))
	return token, nil
}

// CompletePasswordReset consumes a reset token and sets the new password
func (s *Service) CompletePasswordReset(ctx context.Context, email, token, newPassword string) error {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&user).Error; err != nil {
		return ErrResetTokenInvalid
	}

	key := fmt.Sprintf("password_reset:%s", user.ID.String())
	stored, err := s.codes.Get(ctx, key)
	if err != nil || stored != hashToken(token) {
		return ErrResetTokenInvalid
	}
	_ = s.codes.Del(ctx, key)

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&user).Update("password_hash", string(hashed)).Error; err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	// Force re-authentication everywhere after a reset.
	return s.InvalidateAllSessions(ctx, user.ID)
}

func (s *Service) createSession(ctx context.Context, userID uuid.UUID) (*Session, error) {
	session := &Session{
		ID:             uuid.New(),
		UserID:         userID,
		IsActive:       true,
		LastActivityAt: time.Now(),
		ExpiresAt:      time.Now().Add(s.refreshExpiration),
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) generateTokenPair(user *models.User, sessionID uuid.UUID) (*TokenPair, error) {
	now := time.Now()

	accessClaims := &TokenClaims{
		UserID:        user.ID,
		Email:         user.Email,
		PlatformAdmin: user.PlatformAdmin,
		SessionID:     sessionID,
		TokenType:     "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiration)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refreshClaims := &TokenClaims{
		UserID:    user.ID,
		SessionID: sessionID,
		TokenType: "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshExpiration)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).SignedString(s.refreshSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    now.Add(s.jwtExpiration),
		TokenType:    "Bearer",
	}, nil
}

func (s *Service) validateRefreshToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.refreshSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse refresh token: %w", err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*TokenClaims)
	if !ok || claims.TokenType != "refresh" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// hashToken creates a hash of a token for storage
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
