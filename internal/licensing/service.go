package licensing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/homecarehub/homecare/internal/audit"
	"github.com/homecarehub/homecare/internal/scope"
	"github.com/homecarehub/homecare/pkg/models"
)

var (
	ErrNoSubscription = errors.New("company has no subscription")
	ErrSeatLimit      = errors.New("seat limit reached for the current plan")
	ErrReadOnly       = errors.New("subscription is inactive, company is read-only")
)

// Service manages company subscriptions and seat accounting.
type Service struct {
	logger    *zap.Logger
	db        *gorm.DB
	auditor   audit.Recorder
	trialDays int
}

// NewService creates a licensing service.
func NewService(logger *zap.Logger, db *gorm.DB, auditor audit.Recorder, trialDays int) *Service {
	if trialDays <= 0 {
		trialDays = 14
	}
	return &Service{logger: logger, db: db, auditor: auditor, trialDays: trialDays}
}

// StartTrial opens a starter-plan trial for a newly created company.
func (s *Service) StartTrial(ctx context.Context, companyID uuid.UUID) (*models.Subscription, error) {
	now := time.Now()
	sub := &models.Subscription{
		ID:               uuid.New(),
		CompanyID:        companyID,
		Plan:             "starter",
		SeatLimit:        models.SeatLimitForPlan("starter"),
		PriceMonthly:     models.PriceForPlan("starter"),
		Status:           models.SubscriptionTrialing,
		TrialEndsAt:      now.AddDate(0, 0, s.trialDays),
		CurrentPeriodEnd: now.AddDate(0, 0, s.trialDays),
	}
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	s.logger.Info("trial started",
		zap.String("company_id", companyID.String()),
		zap.Time("trial_ends_at", sub.TrialEndsAt))
	return sub, nil
}

// GetSubscription loads a company's subscription, refreshing a lapsed status
// before returning it.
func (s *Service) GetSubscription(ctx context.Context, companyID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).Where("company_id = ?", companyID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSubscription
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	if lapsed := derivedStatus(&sub, time.Now()); lapsed != sub.Status {
		sub.Status = lapsed
		if err := s.db.WithContext(ctx).Model(&sub).Update("status", lapsed).Error; err != nil {
			return nil, fmt.Errorf("failed to update subscription status: %w", err)
		}
	}
	return &sub, nil
}

// derivedStatus maps a subscription onto its effective status at a point in
// time. Trials and paid periods fall to past_due when their end passes.
func derivedStatus(sub *models.Subscription, now time.Time) string {
	switch sub.Status {
	case models.SubscriptionTrialing:
		if now.After(sub.TrialEndsAt) {
			return models.SubscriptionPastDue
		}
	case models.SubscriptionActive:
		if now.After(sub.CurrentPeriodEnd) {
			return models.SubscriptionPastDue
		}
	}
	return sub.Status
}

// IsReadOnly reports whether a company's data should reject mutations that
// grow usage. Past-due and canceled subscriptions put the company in
// read-only mode; missing subscriptions are treated the same way.
func (s *Service) IsReadOnly(ctx context.Context, companyID uuid.UUID) (bool, error) {
	sub, err := s.GetSubscription(ctx, companyID)
	if err != nil {
		if errors.Is(err, ErrNoSubscription) {
			return true, nil
		}
		return false, err
	}
	return sub.Status == models.SubscriptionPastDue || sub.Status == models.SubscriptionCanceled, nil
}

// ReserveSeat checks that the company has a seat free for one more member.
// Call before creating a membership; the membership row itself is the seat.
func (s *Service) ReserveSeat(ctx context.Context, companyID uuid.UUID) error {
	sub, err := s.GetSubscription(ctx, companyID)
	if err != nil {
		return err
	}
	if sub.Status == models.SubscriptionPastDue || sub.Status == models.SubscriptionCanceled {
		return ErrReadOnly
	}

	var used int64
	if err := s.db.WithContext(ctx).Model(&models.CompanyMembership{}).
		Where("company_id = ?", companyID).Count(&used).Error; err != nil {
		return fmt.Errorf("failed to count seats: %w", err)
	}
	if used >= int64(sub.SeatLimit) {
		return ErrSeatLimit
	}
	return nil
}

// ChangePlan moves a company to a new plan and activates the subscription.
// Requires company level. Downgrades below current seat usage are rejected.
func (s *Service) ChangePlan(ctx context.Context, q *scope.Requester, companyID uuid.UUID, plan string) (*models.Subscription, error) {
	if q.Level < scope.LevelCompany || !q.CanViewCompany(companyID) {
		return nil, scope.ErrOutOfScope
	}
	switch plan {
	case "starter", "standard", "premium":
	default:
		return nil, fmt.Errorf("invalid plan %q", plan)
	}

	sub, err := s.GetSubscription(ctx, companyID)
	if err != nil {
		return nil, err
	}

	newLimit := models.SeatLimitForPlan(plan)
	var used int64
	if err := s.db.WithContext(ctx).Model(&models.CompanyMembership{}).
		Where("company_id = ?", companyID).Count(&used).Error; err != nil {
		return nil, fmt.Errorf("failed to count seats: %w", err)
	}
	if used > int64(newLimit) {
		return nil, ErrSeatLimit
	}

	now := time.Now()
	sub.Plan = plan
	sub.SeatLimit = newLimit
	sub.PriceMonthly = models.PriceForPlan(plan)
	sub.Status = models.SubscriptionActive
	sub.CurrentPeriodEnd = now.AddDate(0, 1, 0)
	sub.CanceledAt = nil
	sub.UpdatedAt = now
	if err := s.db.WithContext(ctx).Save(sub).Error; err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	s.auditor.Record(ctx, models.AuditEvent{
		ActorID:   q.UserID,
		CompanyID: &companyID,
		Action:    "billing.plan_changed",
		Severity:  "medium",
		Metadata:  fmt.Sprintf(`{"plan":%q}`, plan),
	})
	return sub, nil
}

// Cancel stops a subscription at the caller's request. Requires company level.
func (s *Service) Cancel(ctx context.Context, q *scope.Requester, companyID uuid.UUID) (*models.Subscription, error) {
	if q.Level < scope.LevelCompany || !q.CanViewCompany(companyID) {
		return nil, scope.ErrOutOfScope
	}

	sub, err := s.GetSubscription(ctx, companyID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sub.Status = models.SubscriptionCanceled
	sub.CanceledAt = &now
	sub.UpdatedAt = now
	if err := s.db.WithContext(ctx).Save(sub).Error; err != nil {
		return nil, fmt.Errorf("failed to save subscription: %w", err)
	}

	s.auditor.Record(ctx, models.AuditEvent{
		ActorID:   q.UserID,
		CompanyID: &companyID,
		Action:    "billing.canceled",
		Severity:  "medium",
	})
	return sub, nil
}

// BillingStatus summarizes licensing for a company the caller can view.
func (s *Service) BillingStatus(ctx context.Context, q *scope.Requester, companyID uuid.UUID) (*models.BillingStatus, error) {
	if !q.CanViewCompany(companyID) {
		return nil, scope.ErrOutOfScope
	}

	sub, err := s.GetSubscription(ctx, companyID)
	if err != nil {
		return nil, err
	}

	var used int64
	if err := s.db.WithContext(ctx).Model(&models.CompanyMembership{}).
		Where("company_id = ?", companyID).Count(&used).Error; err != nil {
		return nil, fmt.Errorf("failed to count seats: %w", err)
	}

	return &models.BillingStatus{
		CompanyID:        companyID,
		Plan:             sub.Plan,
		Status:           sub.Status,
		SeatLimit:        sub.SeatLimit,
		SeatsUsed:        int(used),
		PriceMonthly:     sub.PriceMonthly,
		TrialEndsAt:      sub.TrialEndsAt,
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
		ReadOnly:         sub.Status == models.SubscriptionPastDue || sub.Status == models.SubscriptionCanceled,
	}, nil
}
