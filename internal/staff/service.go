package staff

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
	ErrNotFound       = errors.New("record not found")
	ErrNotMember      = errors.New("user is not a member of the company")
	ErrAlreadyPlaced  = errors.New("member already holds an active assignment in this home")
	ErrReadOnly       = errors.New("subscription is inactive, company is read-only")
	ErrArchivedHome   = errors.New("home is archived")
	ErrHomeNotInScope = errors.New("home does not belong to the company")
)

// Licensing gates staff mutations on the company's subscription.
type Licensing interface {
	ReserveSeat(ctx context.Context, companyID uuid.UUID) error
	IsReadOnly(ctx context.Context, companyID uuid.UUID) (bool, error)
}

// Notifier delivers in-app and email notifications.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, companyID *uuid.UUID, typ, title, body string) (*models.Notification, error)
	NotifyEmail(ctx context.Context, userID uuid.UUID, companyID *uuid.UUID, typ, title, body, email string) (*models.Notification, error)
}

// Member is the roster view of one staff member, joining the user record to
// the membership and any active assignment.
type Member struct {
	User       models.User              `json:"user"`
	Membership models.CompanyMembership `json:"membership"`
	Assignment *models.StaffAssignment  `json:"assignment,omitempty"`
}

// Service manages staff assignments, company roles and invitations.
type Service struct {
	logger   *zap.Logger
	db       *gorm.DB
	auditor  audit.Recorder
	billing  Licensing
	notifier Notifier
}

// NewService creates a staff service.
func NewService(logger *zap.Logger, db *gorm.DB, auditor audit.Recorder, billing Licensing, notifier Notifier) *Service {
	return &Service{logger: logger, db: db, auditor: auditor, billing: billing, notifier: notifier}
}

// ListStaff returns the members the caller may see. Company level sees the
// whole roster including bank staff; managers see their homes' staff plus
// the company's bank members; everyone else sees only their own record.
func (s *Service) ListStaff(ctx context.Context, q *scope.Requester, companyID uuid.UUID) ([]Member, error) {
	if !q.CanViewCompany(companyID) {
		return nil, scope.ErrOutOfScope
	}

	var memberships []models.CompanyMembership
	if err := s.db.WithContext(ctx).Where("company_id = ?", companyID).Find(&memberships).Error; err != nil {
		return nil, fmt.Errorf("failed to load memberships: %w", err)
	}

	members := make([]Member, 0, len(memberships))
	for _, m := range memberships {
		assignment, err := s.activeAssignment(ctx, companyID, m.UserID)
		if err != nil {
			return nil, err
		}
		if !q.CanViewStaff(m, assignment) {
			continue
		}

		var user models.User
		if err := s.db.WithContext(ctx).Where("id = ?", m.UserID).First(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		members = append(members, Member{User: user, Membership: m, Assignment: assignment})
	}
	return members, nil
}

func (s *Service) activeAssignment(ctx context.Context, companyID, userID uuid.UUID) (*models.StaffAssignment, error) {
	var a models.StaffAssignment
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND user_id = ? AND active = ?", companyID, userID, true).
		Order("started_at DESC").
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}
	return &a, nil
}

// CreateAssignment places an existing company member into a home. The same
// delegation rules apply as for role changes: callers grant strictly below
// their own level and managers stay inside their homes.
func (s *Service) CreateAssignment(ctx context.Context, q *scope.Requester, companyID, userID, homeID uuid.UUID, role, position, subrole string) (*models.StaffAssignment, error) {
	membership, err := s.membershipOf(ctx, companyID, userID)
	if err != nil {
		return nil, err
	}

	var home models.Home
	if err := s.db.WithContext(ctx).Where("id = ?", homeID).First(&home).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load home: %w", err)
	}
	if home.CompanyID != companyID {
		return nil, ErrHomeNotInScope
	}
	if home.Status != "active" {
		return nil, ErrArchivedHome
	}

	if err := s.checkWritable(ctx, q, companyID); err != nil {
		return nil, err
	}

	// Creating a placement is validated as a change against an empty
	// assignment in the destination home.
	blank := models.StaffAssignment{CompanyID: companyID, HomeID: homeID, UserID: userID, Role: models.StaffRoleCarer}
	change := scope.RoleChange{Role: &role, HomeID: &homeID}
	if err := scope.ValidateRoleChange(q, blank, *membership, change); err != nil {
		return nil, err
	}

	var existing int64
	if err := s.db.WithContext(ctx).Model(&models.StaffAssignment{}).
		Where("company_id = ? AND home_id = ? AND user_id = ? AND active = ?", companyID, homeID, userID, true).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to check placements: %w", err)
	}
	if existing > 0 {
		return nil, ErrAlreadyPlaced
	}

	assignment := &models.StaffAssignment{
		ID:        uuid.New(),
		CompanyID: companyID,
		HomeID:    homeID,
		UserID:    userID,
		Role:      role,
		Position:  position,
		Subrole:   subrole,
		Active:    true,
		StartedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(assignment).Error; err != nil {
		return nil, fmt.Errorf("failed to create assignment: %w", err)
	}

	s.recordAndNotify(ctx, q, companyID, userID, "staff.assigned",
		"New placement", fmt.Sprintf("You have been placed in %s as %s", home.Name, role))
	return assignment, nil
}

// UpdateAssignment applies a role change to an assignment.
func (s *Service) UpdateAssignment(ctx context.Context, q *scope.Requester, assignmentID uuid.UUID, req *models.RoleChangeRequest) (*models.StaffAssignment, error) {
	assignment, membership, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if err := s.checkWritable(ctx, q, assignment.CompanyID); err != nil {
		return nil, err
	}

	change, err := toRoleChange(req)
	if err != nil {
		return nil, err
	}
	if err := scope.ValidateRoleChange(q, *assignment, *membership, change); err != nil {
		return nil, err
	}

	if change.HomeID != nil && *change.HomeID != assignment.HomeID {
		var home models.Home
		if err := s.db.WithContext(ctx).Where("id = ?", *change.HomeID).First(&home).Error; err != nil {
			return nil, ErrNotFound
		}
		if home.CompanyID != assignment.CompanyID {
			return nil, ErrHomeNotInScope
		}
		if home.Status != "active" {
			return nil, ErrArchivedHome
		}
		assignment.HomeID = *change.HomeID
	}
	if change.Role != nil {
		assignment.Role = *change.Role
	}
	if change.Position != nil {
		assignment.Position = *change.Position
	}
	if change.Subrole != nil {
		assignment.Subrole = *change.Subrole
	}
	if change.DSL != nil {
		assignment.DSL = *change.DSL
	}
	assignment.UpdatedAt = time.Now()

	if err := s.db.WithContext(ctx).Save(assignment).Error; err != nil {
		return nil, fmt.Errorf("failed to save assignment: %w", err)
	}

	s.recordAndNotify(ctx, q, assignment.CompanyID, assignment.UserID, "staff.role_changed",
		"Your role was updated", fmt.Sprintf("Your role is now %s", assignment.Role))
	return assignment, nil
}

// EndAssignment deactivates a placement.
func (s *Service) EndAssignment(ctx context.Context, q *scope.Requester, assignmentID uuid.UUID) error {
	assignment, membership, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}
	if err := s.checkWritable(ctx, q, assignment.CompanyID); err != nil {
		return err
	}
	if err := scope.ValidateRoleChange(q, *assignment, *membership, scope.RoleChange{}); err != nil {
		return err
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(assignment).
		Updates(map[string]interface{}{"active": false, "ended_at": &now}).Error; err != nil {
		return fmt.Errorf("failed to end assignment: %w", err)
	}

	s.recordAndNotify(ctx, q, assignment.CompanyID, assignment.UserID, "staff.assignment_ended",
		"Placement ended", "Your placement has ended")
	return nil
}

// SelfUpdate lets staff adjust the descriptive fields of their own
// assignment: position and subrole only.
func (s *Service) SelfUpdate(ctx context.Context, q *scope.Requester, assignmentID uuid.UUID, req *models.SelfUpdateRequest) (*models.StaffAssignment, error) {
	assignment, _, err := s.loadAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	change := scope.RoleChange{Position: req.Position, Subrole: req.Subrole}
	if err := scope.ValidateSelfUpdate(q, *assignment, change); err != nil {
		return nil, err
	}

	if req.Position != nil {
		assignment.Position = *req.Position
	}
	if req.Subrole != nil {
		assignment.Subrole = *req.Subrole
	}
	assignment.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(assignment).Error; err != nil {
		return nil, fmt.Errorf("failed to save assignment: %w", err)
	}
	return assignment, nil
}

// ChangeCompanyRole changes a member's company-level role, keeping at least
// one owner.
func (s *Service) ChangeCompanyRole(ctx context.Context, q *scope.Requester, membershipID uuid.UUID, newRole string) (*models.CompanyMembership, error) {
	var membership models.CompanyMembership
	if err := s.db.WithContext(ctx).Where("id = ?", membershipID).First(&membership).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}

	if err := s.checkWritable(ctx, q, membership.CompanyID); err != nil {
		return nil, err
	}

	ownerCount, err := s.ownerCount(ctx, membership.CompanyID)
	if err != nil {
		return nil, err
	}
	if err := scope.ValidateCompanyRoleChange(q, membership, newRole, ownerCount); err != nil {
		return nil, err
	}

	membership.Role = newRole
	membership.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(&membership).Error; err != nil {
		return nil, fmt.Errorf("failed to save membership: %w", err)
	}

	s.recordAndNotify(ctx, q, membership.CompanyID, membership.UserID, "staff.company_role_changed",
		"Company role updated", fmt.Sprintf("Your company role is now %s", newRole))
	return &membership, nil
}

// RemoveMember deletes a membership, ending any active assignments first.
// Removal is exempt from the read-only gate: it frees seats rather than
// growing them.
func (s *Service) RemoveMember(ctx context.Context, q *scope.Requester, membershipID uuid.UUID) error {
	var membership models.CompanyMembership
	if err := s.db.WithContext(ctx).Where("id = ?", membershipID).First(&membership).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load membership: %w", err)
	}

	ownerCount, err := s.ownerCount(ctx, membership.CompanyID)
	if err != nil {
		return err
	}
	if err := scope.ValidateMembershipRemoval(q, membership, ownerCount); err != nil {
		return err
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.StaffAssignment{}).
			Where("company_id = ? AND user_id = ? AND active = ?", membership.CompanyID, membership.UserID, true).
			Updates(map[string]interface{}{"active": false, "ended_at": &now}).Error; err != nil {
			return fmt.Errorf("failed to end assignments: %w", err)
		}
		if err := tx.Delete(&membership).Error; err != nil {
			return fmt.Errorf("failed to delete membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.auditor.Record(ctx, models.AuditEvent{
		ActorID:   q.UserID,
		CompanyID: &membership.CompanyID,
		Action:    "staff.member_removed",
		Severity:  "high",
	})
	return nil
}

func (s *Service) loadAssignment(ctx context.Context, assignmentID uuid.UUID) (*models.StaffAssignment, *models.CompanyMembership, error) {
	var assignment models.StaffAssignment
	if err := s.db.WithContext(ctx).Where("id = ?", assignmentID).First(&assignment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to load assignment: %w", err)
	}
	membership, err := s.membershipOf(ctx, assignment.CompanyID, assignment.UserID)
	if err != nil {
		return nil, nil, err
	}
	return &assignment, membership, nil
}

func (s *Service) membershipOf(ctx context.Context, companyID, userID uuid.UUID) (*models.CompanyMembership, error) {
	var membership models.CompanyMembership
	err := s.db.WithContext(ctx).
		Where("company_id = ? AND user_id = ?", companyID, userID).
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	return &membership, nil
}

func (s *Service) ownerCount(ctx context.Context, companyID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.CompanyMembership{}).
		Where("company_id = ? AND role = ?", companyID, models.CompanyRoleOwner).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return count, nil
}

// checkWritable rejects staff mutations while the subscription is inactive.
// Platform admins bypass the gate so support can repair accounts.
func (s *Service) checkWritable(ctx context.Context, q *scope.Requester, companyID uuid.UUID) error {
	if q.Level >= scope.LevelAdmin {
		return nil
	}
	readOnly, err := s.billing.IsReadOnly(ctx, companyID)
	if err != nil {
		return err
	}
	if readOnly {
		return ErrReadOnly
	}
	return nil
}

func (s *Service) recordAndNotify(ctx context.Context, q *scope.Requester, companyID, targetUserID uuid.UUID, action, title, body string) {
	s.auditor.Record(ctx, models.AuditEvent{
		ActorID:   q.UserID,
		CompanyID: &companyID,
		Action:    action,
		Severity:  "medium",
	})
	if _, err := s.notifier.Notify(ctx, targetUserID, &companyID, action, title, body); err != nil {
		s.logger.Warn("failed to notify target",
			zap.String("user_id", targetUserID.String()),
			zap.String("action", action),
			zap.Error(err))
	}
}

func toRoleChange(req *models.RoleChangeRequest) (scope.RoleChange, error) {
	change := scope.RoleChange{
		Role:     req.Role,
		Position: req.Position,
		Subrole:  req.Subrole,
		DSL:      req.DSL,
	}
	if req.HomeID != nil {
		id, err := uuid.Parse(*req.HomeID)
		if err != nil {
			return change, fmt.Errorf("invalid home_id: %w", err)
		}
		change.HomeID = &id
	}
	return change, nil
}
