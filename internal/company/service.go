package company

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/homecarehub/homecare/internal/audit"
	"github.com/homecarehub/homecare/internal/scope"
	"github.com/homecarehub/homecare/pkg/models"
)

var (
	ErrSlugTaken    = errors.New("company slug already in use")
	ErrNotFound     = errors.New("record not found")
	ErrHomeArchived = errors.New("home is archived")
)

// SubscriptionStarter begins the licensing trial of a newly created company.
type SubscriptionStarter interface {
	StartTrial(ctx context.Context, companyID uuid.UUID) (*models.Subscription, error)
}

// Service manages companies and their homes.
type Service struct {
	logger  *zap.Logger
	db      *gorm.DB
	auditor audit.Recorder
	billing SubscriptionStarter
}

// NewService creates a company service.
func NewService(logger *zap.Logger, db *gorm.DB, auditor audit.Recorder, billing SubscriptionStarter) *Service {
	return &Service{logger: logger, db: db, auditor: auditor, billing: billing}
}

// CreateCompany registers a new company with the caller as its owner and
// starts the licensing trial. Any authenticated user may create a company.
func (s *Service) CreateCompany(ctx context.Context, userID uuid.UUID, name, slug string) (*models.Company, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Company{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check slug: %w", err)
	}
	if count > 0 {
		return nil, ErrSlugTaken
	}

	company := &models.Company{
		ID:     uuid.New(),
		Name:   name,
		Slug:   slug,
		Status: "active",
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(company).Error; err != nil {
			return fmt.Errorf("failed to create company: %w", err)
		}
		membership := &models.CompanyMembership{
			ID:        uuid.New(),
			CompanyID: company.ID,
			UserID:    userID,
			Role:      models.CompanyRoleOwner,
		}
		if err := tx.Create(membership).Error; err != nil {
			return fmt.Errorf("failed to create owner membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.billing.StartTrial(ctx, company.ID); err != nil {
		s.logger.Error("failed to start trial", zap.String("company_id", company.ID.String()), zap.Error(err))
	}

	s.auditor.Record(ctx, models.AuditEvent{
		ActorID:   userID,
		CompanyID: &company.ID,
		Action:    "company.created",
		Severity:  "medium",
	})

	s.logger.Info("company created",
		zap.String("company_id", company.ID.String()),
		zap.String("slug", slug))
	return company, nil
}

// GetCompany returns a company the caller may view.
func (s *Service) GetCompany(ctx context.Context, q *scope.Requester, companyID uuid.UUID) (*models.Company, error) {
	if !q.CanViewCompany(companyID) {
		return nil, scope.ErrOutOfScope
	}
	var company models.Company
	if err := s.db.WithContext(ctx).Where("id = ?", companyID).First(&company).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load company: %w", err)
	}
	return &company, nil
}

// UpdateCompany renames a company. Requires company level.
func (s *Service) UpdateCompany(ctx context.Context, q *scope.Requester, companyID uuid.UUID, name string) (*models.Company, error) {
	if q.Level < scope.LevelCompany || !q.CanViewCompany(companyID) {
		return nil, scope.ErrOutOfScope
	}
	if q.Level < scope.LevelAdmin && q.Suspended {
		return nil, scope.ErrCompanySuspended
	}

	company, err := s.GetCompany(ctx, q, companyID)
	if err != nil {
		return nil, err
	}
	company.Name = name
	company.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(company).Error; err != nil {
		return nil, fmt.Errorf("failed to save company: %w", err)
	}

	s.auditor.Record(ctx, models.AuditEvent{
		ActorID:   q.UserID,
		CompanyID: &companyID,
		Action:    "company.updated",
	})
	return company, nil
}

// ListCompanies returns every company for platform admins, or the caller's
// own companies otherwise.
func (s *Service) ListCompanies(ctx context.Context, q *scope.Requester) ([]models.Company, error) {
	var companies []models.Company
	query := s.db.WithContext(ctx).Order("companies.created_at")
	if q.Level < scope.LevelAdmin {
		query = query.
			Joins("JOIN company_memberships ON company_memberships.company_id = companies.id").
			Where("company_memberships.user_id = ?", q.UserID)
	}
	if err := query.Find(&companies).Error; err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	return companies, nil
}

// SetCompanyStatus suspends or reinstates a company. Platform admin only.
func (s *Service) SetCompanyStatus(ctx context.Context, q *scope.Requester, companyID uuid.UUID, status string) (*models.Company, error) {
	if q.Level < scope.LevelAdmin {
		return nil, scope.ErrOutOfScope
	}
	if status != "active" && status != "suspended" {
		return nil, fmt.Errorf("invalid status %q", status)
	}

	var company models.Company
	if err := s.db.WithContext(ctx).Where("id = ?", companyID).First(&company).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load company: %w", err)
	}

	company.Status = status
	company.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(&company).Error; err != nil {
		return nil, fmt.Errorf("failed to save company: %w", err)
	}

	s.auditor.Record(ctx, models.AuditEvent{
		ActorID:   q.UserID,
		CompanyID: &companyID,
		Action:    "company.status_changed",
		Severity:  "high",
		Metadata:  fmt.Sprintf(`{"status":%q}`, status),
	})
	return &company, nil
}

// CreateHome adds a care home to a company. Requires company level.
func (s *Service) CreateHome(ctx context.Context, q *scope.Requester, companyID uuid.UUID, name, address string, capacity int) (*models.Home, error) {
	if q.Level < scope.LevelCompany || !q.CanViewCompany(companyID) {
		return nil, scope.ErrOutOfScope
	}
	if q.Level < scope.LevelAdmin && q.Suspended {
		return nil, scope.ErrCompanySuspended
	}

	home := &models.Home{
		ID:        uuid.New(),
		CompanyID: companyID,
		Name:      name,
		Address:   address,
		Capacity:  capacity,
		Status:    "active",
	}
	if err := s.db.WithContext(ctx).Create(home).Error; err != nil {
		return nil, fmt.Errorf("failed to create home: %w", err)
	}

	s.auditor.Record(ctx, models.AuditEvent{
		ActorID:   q.UserID,
		CompanyID: &companyID,
		Action:    "home.created",
	})

	s.logger.Info("home created",
		zap.String("home_id", home.ID.String()),
		zap.String("company_id", companyID.String()))
	return home, nil
}

// GetHome returns a home visible to the caller. Any member of the owning
// company may read a home; mutations are scope checked separately.
func (s *Service) GetHome(ctx context.Context, q *scope.Requester, homeID uuid.UUID) (*models.Home, error) {
	var home models.Home
	if err := s.db.WithContext(ctx).Where("id = ?", homeID).First(&home).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load home: %w", err)
	}
	if !q.CanViewCompany(home.CompanyID) {
		return nil, scope.ErrOutOfScope
	}
	return &home, nil
}

// ListHomes returns the homes of a company the caller can see. Managers and
// staff see the whole company's active homes; archived homes require company
// level.
func (s *Service) ListHomes(ctx context.Context, q *scope.Requester, companyID uuid.UUID, includeArchived bool) ([]models.Home, error) {
	if !q.CanViewCompany(companyID) {
		return nil, scope.ErrOutOfScope
	}

	query := s.db.WithContext(ctx).Where("company_id = ?", companyID).Order("name")
	if !includeArchived || q.Level < scope.LevelCompany {
		query = query.Where("status = ?", "active")
	}

	var homes []models.Home
	if err := query.Find(&homes).Error; err != nil {
		return nil, fmt.Errorf("failed to list homes: %w", err)
	}
	return homes, nil
}

// UpdateHome edits a home's details. Managers may edit homes they manage.
func (s *Service) UpdateHome(ctx context.Context, q *scope.Requester, homeID uuid.UUID, name, address string, capacity int) (*models.Home, error) {
	home, err := s.GetHome(ctx, q, homeID)
	if err != nil {
		return nil, err
	}
	if !q.CanManageHome(*home) {
		return nil, scope.ErrOutOfScope
	}
	if q.Level < scope.LevelAdmin && q.Suspended {
		return nil, scope.ErrCompanySuspended
	}
	if home.Status != "active" {
		return nil, ErrHomeArchived
	}

	home.Name = name
	home.Address = address
	home.Capacity = capacity
	home.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(home).Error; err != nil {
		return nil, fmt.Errorf("failed to save home: %w", err)
	}

	s.auditor.Record(ctx, models.AuditEvent{
		ActorID:   q.UserID,
		CompanyID: &home.CompanyID,
		Action:    "home.updated",
	})
	return home, nil
}

// ArchiveHome retires a home and deactivates its staff assignments.
// Requires company level.
func (s *Service) ArchiveHome(ctx context.Context, q *scope.Requester, homeID uuid.UUID) error {
	home, err := s.GetHome(ctx, q, homeID)
	if err != nil {
		return err
	}
	if q.Level < scope.LevelCompany {
		return scope.ErrOutOfScope
	}
	if q.Level < scope.LevelAdmin && q.Suspended {
		return scope.ErrCompanySuspended
	}

	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(home).Updates(map[string]interface{}{"status": "archived", "updated_at": now}).Error; err != nil {
			return fmt.Errorf("failed to archive home: %w", err)
		}
		if err := tx.Model(&models.StaffAssignment{}).
			Where("home_id = ? AND active = ?", homeID, true).
			Updates(map[string]interface{}{"active": false, "ended_at": &now}).Error; err != nil {
			return fmt.Errorf("failed to end assignments: %w", err)
		}

		s.auditor.Record(ctx, models.AuditEvent{
			ActorID:   q.UserID,
			CompanyID: &home.CompanyID,
			Action:    "home.archived",
			Severity:  "medium",
		})
		return nil
	})
}
