package staff

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/homecarehub/homecare/internal/scope"
	"github.com/homecarehub/homecare/pkg/models"
)

var (
	ErrInviteExpired  = errors.New("invitation has expired")
	ErrInviteAccepted = errors.New("invitation already accepted")
	ErrInviteMismatch = errors.New("invitation was issued for a different email")
	ErrAlreadyMember  = errors.New("user is already a member of the company")
)

// Invite creates an invitation into a company. Company level may invite any
// role; managers may invite senior and carer staff into their own homes.
// The returned token is delivered by email and never stored in clear.
func (s *Service) Invite(ctx context.Context, q *scope.Requester, companyID uuid.UUID, req *models.InviteRequest, ttl time.Duration) (*models.Invitation, string, error) {
	if q.Level < scope.LevelManager || !q.CanViewCompany(companyID) {
		return nil, "", scope.ErrOutOfScope
	}
	if q.Level < scope.LevelAdmin && q.Suspended {
		return nil, "", scope.ErrCompanySuspended
	}
	if err := s.checkWritable(ctx, q, companyID); err != nil {
		return nil, "", err
	}

	var homeID *uuid.UUID
	if req.HomeID != nil {
		id, err := uuid.Parse(*req.HomeID)
		if err != nil {
			return nil, "", fmt.Errorf("invalid home_id: %w", err)
		}
		homeID = &id
	}

	if q.Level == scope.LevelManager {
		if models.StaffRoleRank(req.Role) == 0 || models.StaffRoleRank(req.Role) >= models.StaffRoleRank(models.StaffRoleManager) {
			return nil, "", scope.ErrOutOfScope
		}
		if homeID == nil && !req.Bank {
			return nil, "", scope.ErrOutOfScope
		}
		if homeID != nil && !q.HasHome(*homeID) {
			return nil, "", scope.ErrOutOfScope
		}
	}

	if homeID != nil {
		var home models.Home
		if err := s.db.WithContext(ctx).Where("id = ?", *homeID).First(&home).Error; err != nil {
			return nil, "", ErrNotFound
		}
		if home.CompanyID != companyID {
			return nil, "", ErrHomeNotInScope
		}
	}

	// Seats are re-checked at accept time; the early check avoids sending
	// invitations a full company can never honor.
	if err := s.billing.ReserveSeat(ctx, companyID); err != nil {
		return nil, "", err
	}

	token, err := generateInviteToken()
	if err != nil {
		return nil, "", err
	}

	invitation := &models.Invitation{
		ID:        uuid.New(),
		CompanyID: companyID,
		HomeID:    homeID,
		Email:     strings.ToLower(req.Email),
		Role:      req.Role,
		Bank:      req.Bank,
		TokenHash: hashInviteToken(token),
		InvitedBy: q.UserID,
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := s.db.WithContext(ctx).Create(invitation).Error; err != nil {
		return nil, "", fmt.Errorf("failed to create invitation: %w", err)
	}

	s.auditor.Record(ctx, models.AuditEvent{
		ActorID:   q.UserID,
		CompanyID: &companyID,
		Action:    "staff.invited",
		Metadata:  fmt.Sprintf(`{"role":%q}`, req.Role),
	})

	s.logger.Info("invitation created",
		zap.String("company_id", companyID.String()),
		zap.String("role", req.Role))
	return invitation, token, nil
}

// AcceptInvite redeems an invitation token for the calling user, creating
// the membership and the home placement it carries.
func (s *Service) AcceptInvite(ctx context.Context, user *models.User, token string) (*models.CompanyMembership, error) {
	var invitation models.Invitation
	err := s.db.WithContext(ctx).Where("token_hash = ?", hashInviteToken(token)).First(&invitation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load invitation: %w", err)
	}

	if invitation.AcceptedAt != nil {
		return nil, ErrInviteAccepted
	}
	if time.Now().After(invitation.ExpiresAt) {
		return nil, ErrInviteExpired
	}
	if !strings.EqualFold(invitation.Email, user.Email) {
		return nil, ErrInviteMismatch
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.CompanyMembership{}).
		Where("company_id = ? AND user_id = ?", invitation.CompanyID, user.ID).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if existing > 0 {
		return nil, ErrAlreadyMember
	}

	if err := s.billing.ReserveSeat(ctx, invitation.CompanyID); err != nil {
		return nil, err
	}

	companyRole := models.CompanyRoleMember
	if invitation.Role == models.CompanyRoleOffice {
		companyRole = models.CompanyRoleOffice
	}

	membership := &models.CompanyMembership{
		ID:        uuid.New(),
		CompanyID: invitation.CompanyID,
		UserID:    user.ID,
		Role:      companyRole,
		Bank:      invitation.Bank,
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(membership).Error; err != nil {
			return fmt.Errorf("failed to create membership: %w", err)
		}
		if invitation.HomeID != nil && models.StaffRoleRank(invitation.Role) > 0 {
			assignment := &models.StaffAssignment{
				ID:        uuid.New(),
				CompanyID: invitation.CompanyID,
				HomeID:    *invitation.HomeID,
				UserID:    user.ID,
				Role:      invitation.Role,
				Active:    true,
				StartedAt: now,
			}
			if err := tx.Create(assignment).Error; err != nil {
				return fmt.Errorf("failed to create assignment: %w", err)
			}
		}
		if err := tx.Model(&invitation).Update("accepted_at", &now).Error; err != nil {
			return fmt.Errorf("failed to mark invitation accepted: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, models.AuditEvent{
		ActorID:   user.ID,
		CompanyID: &invitation.CompanyID,
		Action:    "staff.invite_accepted",
	})
	if _, err := s.notifier.Notify(ctx, invitation.InvitedBy, &invitation.CompanyID, "staff.invite_accepted",
		"Invitation accepted", fmt.Sprintf("%s accepted your invitation", user.Email)); err != nil {
		s.logger.Warn("failed to notify inviter", zap.Error(err))
	}

	return membership, nil
}

// ListInvitations returns a company's pending invitations. Company level only.
func (s *Service) ListInvitations(ctx context.Context, q *scope.Requester, companyID uuid.UUID) ([]models.Invitation, error) {
	if q.Level < scope.LevelCompany || !q.CanViewCompany(companyID) {
		return nil, scope.ErrOutOfScope
	}

	var invitations []models.Invitation
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND accepted_at IS NULL AND expires_at > ?", companyID, time.Now()).
		Order("created_at DESC").
		Find(&invitations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	return invitations, nil
}

// RevokeInvitation deletes a pending invitation. Company level only.
func (s *Service) RevokeInvitation(ctx context.Context, q *scope.Requester, invitationID uuid.UUID) error {
	var invitation models.Invitation
	if err := s.db.WithContext(ctx).Where("id = ?", invitationID).First(&invitation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load invitation: %w", err)
	}
	if q.Level < scope.LevelCompany || !q.CanViewCompany(invitation.CompanyID) {
		return scope.ErrOutOfScope
	}
	if invitation.AcceptedAt != nil {
		return ErrInviteAccepted
	}

	if err := s.db.WithContext(ctx).Delete(&invitation).Error; err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}

	s.auditor.Record(ctx, models.AuditEvent{
		ActorID:   q.UserID,
		CompanyID: &invitation.CompanyID,
		Action:    "staff.invite_revoked",
	})
	return nil
}

func generateInviteToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

func hashInviteToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
