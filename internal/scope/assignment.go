package scope

import (
	"github.com/google/uuid"

	"github.com/homecarehub/homecare/pkg/models"
)

// RoleChange is a requested mutation of a staff assignment. Nil fields are
// left untouched.
type RoleChange struct {
	Role     *string
	Position *string
	Subrole  *string
	DSL      *bool
	HomeID   *uuid.UUID
}

// maxAssignableRank returns the highest staff-role rank a level may grant.
// Callers assign strictly below their own authority: company level grants
// any home role including manager, managers grant senior and carer.
func maxAssignableRank(level Level) int {
	switch level {
	case LevelAdmin, LevelCompany:
		return models.StaffRoleRank(models.StaffRoleManager)
	case LevelManager:
		return models.StaffRoleRank(models.StaffRoleSenior)
	default:
		return 0
	}
}

// ValidateRoleChange checks that the requester may apply change to the
// target assignment. targetMembership is the target's company membership,
// used for the bank-staff placement rule.
func ValidateRoleChange(q *Requester, target models.StaffAssignment, targetMembership models.CompanyMembership, change RoleChange) error {
	if q.Level < LevelManager {
		return ErrOutOfScope
	}
	if q.Level < LevelAdmin {
		if target.CompanyID != q.CompanyID || targetMembership.CompanyID != q.CompanyID {
			return ErrOutOfScope
		}
		if q.Suspended {
			return ErrCompanySuspended
		}
	}
	if target.UserID == q.UserID && q.Level < LevelAdmin {
		// Nobody below platform admin edits their own assignment here;
		// the self-service path owns that.
		return ErrOutOfScope
	}

	if q.Level == LevelManager {
		// Managers act only inside their own homes. Bank staff hold no home
		// until placed; placing one counts as acting in the destination
		// home, which must itself be managed. Once placed, a bank member's
		// assignment belongs to its home like any other.
		if target.HomeID == uuid.Nil {
			if !targetMembership.Bank {
				return ErrOutOfScope
			}
			if change.HomeID == nil || !q.HasHome(*change.HomeID) {
				return ErrOutOfScope
			}
		} else if !q.HasHome(target.HomeID) {
			return ErrOutOfScope
		}
		// Managers cannot touch peers or above.
		if models.StaffRoleRank(target.Role) >= models.StaffRoleRank(models.StaffRoleManager) {
			return ErrOutOfScope
		}
	}

	if change.Role != nil {
		if models.StaffRoleRank(*change.Role) > maxAssignableRank(q.Level) {
			return ErrOutOfScope
		}
	}

	if change.HomeID != nil {
		if q.Level == LevelManager && !q.HasHome(*change.HomeID) {
			return ErrOutOfScope
		}
	}

	if change.DSL != nil && *change.DSL != target.DSL {
		if q.Level < LevelCompany {
			return ErrDSLRestricted
		}
	}

	return nil
}

// ValidateCompanyRoleChange checks a change to a member's company-level role.
// ownerCount is the number of owners the company currently has.
func ValidateCompanyRoleChange(q *Requester, target models.CompanyMembership, newRole string, ownerCount int64) error {
	if q.Level < LevelCompany {
		return ErrOutOfScope
	}
	if q.Level < LevelAdmin {
		if target.CompanyID != q.CompanyID {
			return ErrOutOfScope
		}
		if q.Suspended {
			return ErrCompanySuspended
		}
	}
	if target.Role == models.CompanyRoleOwner && newRole != models.CompanyRoleOwner && ownerCount <= 1 {
		return ErrLastOwner
	}
	return nil
}

// ValidateMembershipRemoval checks that removing a member keeps the company
// owned and stays in scope.
func ValidateMembershipRemoval(q *Requester, target models.CompanyMembership, ownerCount int64) error {
	if q.Level < LevelCompany {
		return ErrOutOfScope
	}
	if q.Level < LevelAdmin {
		if target.CompanyID != q.CompanyID {
			return ErrOutOfScope
		}
		if q.Suspended {
			return ErrCompanySuspended
		}
	}
	if target.Role == models.CompanyRoleOwner && ownerCount <= 1 {
		return ErrLastOwner
	}
	return nil
}

// ValidateSelfUpdate checks a staff member's update of their own assignment:
// position and subrole only, never role, DSL or home placement.
func ValidateSelfUpdate(q *Requester, target models.StaffAssignment, change RoleChange) error {
	if target.UserID != q.UserID || target.CompanyID != q.CompanyID {
		return ErrOutOfScope
	}
	if q.Suspended {
		return ErrCompanySuspended
	}
	if change.Role != nil || change.DSL != nil || change.HomeID != nil {
		return ErrSelfFieldsOnly
	}
	return nil
}
