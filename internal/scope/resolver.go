// Package scope derives the effective permission level of a caller and
// validates that assignment mutations stay inside the caller's delegated
// scope across the Admin > Company > Manager > Staff hierarchy.
package scope

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/homecarehub/homecare/pkg/metrics"
	"github.com/homecarehub/homecare/pkg/models"
)

// Level is an effective permission level, ordered by authority.
type Level int

const (
	LevelNone Level = iota
	LevelStaff
	LevelManager
	LevelCompany
	LevelAdmin
)

// String implements fmt.Stringer
func (l Level) String() string {
	switch l {
	case LevelStaff:
		return "staff"
	case LevelManager:
		return "manager"
	case LevelCompany:
		return "company"
	case LevelAdmin:
		return "admin"
	default:
		return "none"
	}
}

// Resolution errors
var (
	ErrNoMembership     = errors.New("user has no company membership")
	ErrAmbiguousCompany = errors.New("multiple company memberships, company must be specified")
	ErrNotMember        = errors.New("user is not a member of the requested company")
	ErrOutOfScope       = errors.New("requested change is outside the caller's delegated scope")
	ErrDSLRestricted    = errors.New("safeguarding lead flag can only be changed at company level")
	ErrLastOwner        = errors.New("a company must keep at least one owner")
	ErrCompanySuspended = errors.New("company is suspended")
	ErrSelfFieldsOnly   = errors.New("self-service updates may only change position and subrole")
)

// Requester is the resolved scope of a caller for one request.
type Requester struct {
	UserID       uuid.UUID
	CompanyID    uuid.UUID
	MembershipID uuid.UUID
	Level        Level
	// HomeIDs holds the homes delegated to a manager. Empty for company and
	// admin levels, whose scope is derived from CompanyID instead.
	HomeIDs   []uuid.UUID
	Bank      bool
	DSL       bool
	Suspended bool
}

// HasHome reports whether a home is in the requester's delegated set.
func (q *Requester) HasHome(homeID uuid.UUID) bool {
	for _, id := range q.HomeIDs {
		if id == homeID {
			return true
		}
	}
	return false
}

// CanManageHome reports whether the requester may mutate a home's contents.
func (q *Requester) CanManageHome(home models.Home) bool {
	switch q.Level {
	case LevelAdmin:
		return true
	case LevelCompany:
		return home.CompanyID == q.CompanyID
	case LevelManager:
		return home.CompanyID == q.CompanyID && q.HasHome(home.ID)
	default:
		return false
	}
}

// CanViewCompany reports whether the requester may read company-wide data.
func (q *Requester) CanViewCompany(companyID uuid.UUID) bool {
	if q.Level == LevelAdmin {
		return true
	}
	return q.CompanyID == companyID
}

// CanViewStaff reports whether a member appears on the caller's roster.
// Company level and above see everyone; managers see the staff of their
// homes plus the company's bank members, who are placeable into any home;
// staff see only themselves.
func (q *Requester) CanViewStaff(membership models.CompanyMembership, assignment *models.StaffAssignment) bool {
	if q.Level >= LevelCompany {
		return true
	}
	if membership.UserID == q.UserID {
		return true
	}
	if q.Level == LevelManager {
		if membership.Bank {
			return true
		}
		return assignment != nil && q.HasHome(assignment.HomeID)
	}
	return false
}

// Resolver resolves callers against the membership tables.
type Resolver struct {
	logger *zap.Logger
	db     *gorm.DB
}

// NewResolver creates a new scope resolver.
func NewResolver(logger *zap.Logger, db *gorm.DB) *Resolver {
	return &Resolver{logger: logger, db: db}
}

// Resolve derives the effective permission level of a user. companyHint
// selects among multiple memberships; it is mandatory for multi-company
// users and ignored for platform admins, whose scope is global.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID, companyHint *uuid.UUID) (*Requester, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoMembership
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if user.PlatformAdmin {
		req := &Requester{UserID: userID, Level: LevelAdmin}
		if companyHint != nil {
			req.CompanyID = *companyHint
		}
		metrics.ScopeDecisions.WithLabelValues(req.Level.String(), "resolved").Inc()
		return req, nil
	}

	var memberships []models.CompanyMembership
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&memberships).Error; err != nil {
		return nil, fmt.Errorf("failed to load memberships: %w", err)
	}
	if len(memberships) == 0 {
		metrics.ScopeDecisions.WithLabelValues("none", "no_membership").Inc()
		return nil, ErrNoMembership
	}

	membership, err := selectMembership(memberships, companyHint)
	if err != nil {
		metrics.ScopeDecisions.WithLabelValues("none", "ambiguous").Inc()
		return nil, err
	}

	var company models.Company
	if err := r.db.WithContext(ctx).Where("id = ?", membership.CompanyID).First(&company).Error; err != nil {
		return nil, fmt.Errorf("failed to load company: %w", err)
	}

	req := &Requester{
		UserID:       userID,
		CompanyID:    membership.CompanyID,
		MembershipID: membership.ID,
		Bank:         membership.Bank,
		Suspended:    company.Status == "suspended",
	}

	if membership.Role == models.CompanyRoleOwner || membership.Role == models.CompanyRoleOffice {
		req.Level = LevelCompany
		metrics.ScopeDecisions.WithLabelValues(req.Level.String(), "resolved").Inc()
		return req, nil
	}

	var assignments []models.StaffAssignment
	err = r.db.WithContext(ctx).
		Where("user_id = ? AND company_id = ? AND active = ?", userID, membership.CompanyID, true).
		Find(&assignments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load staff assignments: %w", err)
	}

	req.Level = LevelStaff
	for _, a := range assignments {
		if a.DSL {
			req.DSL = true
		}
		if a.Role == models.StaffRoleManager {
			req.Level = LevelManager
			req.HomeIDs = append(req.HomeIDs, a.HomeID)
		}
	}

	metrics.ScopeDecisions.WithLabelValues(req.Level.String(), "resolved").Inc()
	return req, nil
}

// selectMembership disambiguates multi-company users. A single membership
// needs no hint; with several, the hint must name one of them.
func selectMembership(memberships []models.CompanyMembership, hint *uuid.UUID) (*models.CompanyMembership, error) {
	if hint == nil {
		if len(memberships) > 1 {
			return nil, ErrAmbiguousCompany
		}
		return &memberships[0], nil
	}
	for i := range memberships {
		if memberships[i].CompanyID == *hint {
			return &memberships[i], nil
		}
	}
	return nil, ErrNotMember
}
