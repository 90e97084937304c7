package auth

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/homecarehub/homecare/pkg/models"
)

const backupCodeCount = 8

// GenerateTOTPSecret creates a new TOTP secret and backup codes for enrollment.
// The secret is not persisted until VerifyTOTPSetup confirms the user has it.
func (s *Service) GenerateTOTPSecret(ctx context.Context, userID uuid.UUID) (*TOTPSetup, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: user.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp secret: %w", err)
	}

	codes, err := s.issueBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &TOTPSetup{
		Secret:      key.Secret(),
		OTPAuthURL:  key.URL(),
		BackupCodes: codes,
	}, nil
}

// VerifyTOTPSetup confirms enrollment with a live code and enables MFA
func (s *Service) VerifyTOTPSetup(ctx context.Context, userID uuid.UUID, secret, code string) error {
	if !totp.Validate(code, secret) {
		return ErrInvalidCredentials
	}

	updates := map[string]interface{}{
		"totp_secret": secret,
		"mfa_enabled": true,
		"last_mfa":    time.Now(),
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to enable mfa: %w", err)
	}

	s.logger.Info("mfa enabled", zap.String("user_id", userID.String()))
	return nil
}

// DisableTOTP turns off MFA after re-verifying the account password
func (s *Service) DisableTOTP(ctx context.Context, userID uuid.UUID, currentPassword string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrInvalidCredentials
	}

	updates := map[string]interface{}{
		"totp_secret": "",
		"mfa_enabled": false,
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to disable mfa: %w", err)
	}

	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&BackupCode{}).Error; err != nil {
		return fmt.Errorf("failed to clear backup codes: %w", err)
	}

	s.logger.Info("mfa disabled", zap.String("user_id", userID.String()))
	return nil
}

// verifyTOTPOrBackup accepts a live TOTP code or an unused backup code
func (s *Service) verifyTOTPOrBackup(ctx context.Context, user *models.User, code string) error {
	if totp.Validate(code, user.TOTPSecret) {
		return nil
	}

	var codes []BackupCode
	if err := s.db.WithContext(ctx).Where("user_id = ? AND used_at IS NULL", user.ID).Find(&codes).Error; err != nil {
		return fmt.Errorf("failed to load backup codes: %w", err)
	}
	for i := range codes {
		if hashToken(code) == codes[i].CodeHash {
			now := time.Now()
			return s.db.WithContext(ctx).Model(&codes[i]).Update("used_at", &now).Error
		}
	}

	return ErrInvalidCredentials
}

// issueBackupCodes replaces any existing backup codes with a fresh set
func (s *Service) issueBackupCodes(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&BackupCode{}).Error; err != nil {
		return nil, fmt.Errorf("failed to clear backup codes: %w", err)
	}

	codes := make([]string, 0, backupCodeCount)
	for i := 0; i < backupCodeCount; i++ {
		code, err := generateSecureToken(10)
		if err != nil {
			return nil, err
		}
		entry := &BackupCode{
			ID:       uuid.New(),
			UserID:   userID,
			CodeHash: hashToken(code),
		}
		if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
			return nil, fmt.Errorf("failed to store backup code: %w", err)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// generateSecureToken returns a random base32 token of roughly n bytes entropy
func generateSecureToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}
