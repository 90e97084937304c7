package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/homecarehub/homecare/internal/scope"
	"github.com/homecarehub/homecare/pkg/metrics"
	"github.com/homecarehub/homecare/pkg/models"
)

var ErrNotFound = errors.New("notification not found")

// Counter tracks per-user unread totals in a fast store so list polling does
// not hit the notifications table. The production implementation is Redis.
type Counter interface {
	Incr(ctx context.Context, key string) error
	Set(ctx context.Context, key string, value int64) error
	Get(ctx context.Context, key string) (int64, bool, error)
}

// Mailer delivers email for notifications that warrant one.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Service creates and serves per-user notifications. Clients poll; there is
// no push channel.
type Service struct {
	logger  *zap.Logger
	db      *gorm.DB
	counter Counter
	mailer  Mailer
	policy  *bluemonday.Policy
}

// NewService creates a notification service. mailer may be nil when email
// delivery is not configured.
func NewService(logger *zap.Logger, db *gorm.DB, counter Counter, mailer Mailer) *Service {
	return &Service{
		logger:  logger,
		db:      db,
		counter: counter,
		mailer:  mailer,
		policy:  bluemonday.StrictPolicy(),
	}
}

func unreadKey(userID uuid.UUID) string {
	return fmt.Sprintf("notifications:unread:%s", userID.String())
}

// Notify stores a notification for a user. Title and body are sanitized
// before storage so later rendering is safe.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, companyID *uuid.UUID, typ, title, body string) (*models.Notification, error) {
	n := &models.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		CompanyID: companyID,
		Type:      typ,
		Title:     s.policy.Sanitize(title),
		Body:      s.policy.Sanitize(body),
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	if err := s.counter.Incr(ctx, unreadKey(userID)); err != nil {
		s.logger.Warn("failed to bump unread counter", zap.String("user_id", userID.String()), zap.Error(err))
	}
	metrics.NotificationsSent.WithLabelValues(typ).Inc()

	return n, nil
}

// NotifyEmail stores a notification and also delivers it by email.
func (s *Service) NotifyEmail(ctx context.Context, userID uuid.UUID, companyID *uuid.UUID, typ, title, body, email string) (*models.Notification, error) {
	n, err := s.Notify(ctx, userID, companyID, typ, title, body)
	if err != nil {
		return nil, err
	}
	if s.mailer != nil && email != "" {
		if err := s.mailer.Send(ctx, email, n.Title, n.Body); err != nil {
			s.logger.Error("failed to send notification email",
				zap.String("user_id", userID.String()),
				zap.String("type", typ),
				zap.Error(err))
		}
	}
	return n, nil
}

// List returns the caller's notifications, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).Offset(offset)
	if unreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var notifications []models.Notification
	if err := query.Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

// UnreadCount returns the caller's unread total, preferring the counter and
// falling back to the table when the counter is cold.
func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	if count, ok, err := s.counter.Get(ctx, unreadKey(userID)); err == nil && ok {
		return count, nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	if err := s.counter.Set(ctx, unreadKey(userID), count); err != nil {
		s.logger.Warn("failed to warm unread counter", zap.Error(err))
	}
	return count, nil
}

// MarkRead marks one of the caller's notifications read.
func (s *Service) MarkRead(ctx context.Context, q *scope.Requester, notificationID uuid.UUID) error {
	var n models.Notification
	if err := s.db.WithContext(ctx).Where("id = ?", notificationID).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load notification: %w", err)
	}
	if n.UserID != q.UserID {
		return scope.ErrOutOfScope
	}
	if n.ReadAt != nil {
		return nil
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&n).Update("read_at", &now).Error; err != nil {
		return fmt.Errorf("failed to mark read: %w", err)
	}
	return s.resetCounter(ctx, q.UserID)
}

// MarkAllRead marks every unread notification of the caller read.
func (s *Service) MarkAllRead(ctx context.Context, q *scope.Requester) error {
	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", q.UserID).
		Update("read_at", &now).Error; err != nil {
		return fmt.Errorf("failed to mark all read: %w", err)
	}
	return s.resetCounter(ctx, q.UserID)
}

func (s *Service) resetCounter(ctx context.Context, userID uuid.UUID) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to recount unread: %w", err)
	}
	if err := s.counter.Set(ctx, unreadKey(userID), count); err != nil {
		s.logger.Warn("failed to reset unread counter", zap.Error(err))
	}
	return nil
}
