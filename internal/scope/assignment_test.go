package scope_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/homecarehub/homecare/internal/scope"
	"github.com/homecarehub/homecare/pkg/models"
)

func strptr(s string) *string { return &s }
func boolptr(b bool) *bool    { return &b }

func requester(level scope.Level, companyID uuid.UUID, homeIDs ...uuid.UUID) *scope.Requester {
	return &scope.Requester{
		UserID:    uuid.New(),
		CompanyID: companyID,
		Level:     level,
		HomeIDs:   homeIDs,
	}
}

func carerIn(companyID, homeID uuid.UUID) (models.StaffAssignment, models.CompanyMembership) {
	userID := uuid.New()
	target := models.StaffAssignment{
		ID:        uuid.New(),
		CompanyID: companyID,
		HomeID:    homeID,
		UserID:    userID,
		Role:      models.StaffRoleCarer,
		Active:    true,
	}
	membership := models.CompanyMembership{
		ID:        uuid.New(),
		CompanyID: companyID,
		UserID:    userID,
		Role:      models.CompanyRoleMember,
	}
	return target, membership
}

func TestStaffCannotAssign(t *testing.T) {
	companyID := uuid.New()
	homeID := uuid.New()
	target, membership := carerIn(companyID, homeID)
	q := requester(scope.LevelStaff, companyID)

	err := scope.ValidateRoleChange(q, target, membership, scope.RoleChange{Role: strptr(models.StaffRoleSenior)})
	assert.ErrorIs(t, err, scope.ErrOutOfScope)
}

func TestManagerAssignsWithinOwnHome(t *testing.T) {
	companyID := uuid.New()
	homeID := uuid.New()
	target, membership := carerIn(companyID, homeID)
	q := requester(scope.LevelManager, companyID, homeID)

	err := scope.ValidateRoleChange(q, target, membership, scope.RoleChange{Role: strptr(models.StaffRoleSenior)})
	assert.NoError(t, err)
}

func TestManagerCannotPromoteToManager(t *testing.T) {
	companyID := uuid.New()
	homeID := uuid.New()
	target, membership := carerIn(companyID, homeID)
	q := requester(scope.LevelManager, companyID, homeID)

	err := scope.ValidateRoleChange(q, target, membership, scope.RoleChange{Role: strptr(models.StaffRoleManager)})
	assert.ErrorIs(t, err, scope.ErrOutOfScope)
}

func TestManagerCannotTouchOtherHome(t *testing.T) {
	companyID := uuid.New()
	managedHome := uuid.New()
	otherHome := uuid.New()
	target, membership := carerIn(companyID, otherHome)
	q := requester(scope.LevelManager, companyID, managedHome)

	err := scope.ValidateRoleChange(q, target, membership, scope.RoleChange{Position: strptr("nurse")})
	assert.ErrorIs(t, err, scope.ErrOutOfScope)
}

func TestManagerCannotTouchPeerManager(t *testing.T) {
	companyID := uuid.New()
	homeID := uuid.New()
	target, membership := carerIn(companyID, homeID)
	target.Role = models.StaffRoleManager
	q := requester(scope.LevelManager, companyID, homeID)

	err := scope.ValidateRoleChange(q, target, membership, scope.RoleChange{Position: strptr("nurse")})
	assert.ErrorIs(t, err, scope.ErrOutOfScope)
}

func TestManagerPlacesBankStaffIntoOwnHome(t *testing.T) {
	companyID := uuid.New()
	managedHome := uuid.New()
	target, membership := carerIn(companyID, uuid.Nil)
	membership.Bank = true
	q := requester(scope.LevelManager, companyID, managedHome)

	err := scope.ValidateRoleChange(q, target, membership, scope.RoleChange{HomeID: &managedHome})
	assert.NoError(t, err)

	// But never into a home they do not manage.
	otherHome := uuid.New()
	err = scope.ValidateRoleChange(q, target, membership, scope.RoleChange{HomeID: &otherHome})
	assert.ErrorIs(t, err, scope.ErrOutOfScope)

	// And only as an actual placement.
	err = scope.ValidateRoleChange(q, target, membership, scope.RoleChange{Position: strptr("nurse")})
	assert.ErrorIs(t, err, scope.ErrOutOfScope)
}

func TestManagerCannotTouchPlacedBankStaffElsewhere(t *testing.T) {
	companyID := uuid.New()
	managedHome := uuid.New()
	otherHome := uuid.New()
	target, membership := carerIn(companyID, otherHome)
	membership.Bank = true
	q := requester(scope.LevelManager, companyID, managedHome)

	// A bank member's placed assignment belongs to its home: a manager of
	// another home may neither change its role nor end it.
	err := scope.ValidateRoleChange(q, target, membership, scope.RoleChange{Role: strptr(models.StaffRoleSenior)})
	assert.ErrorIs(t, err, scope.ErrOutOfScope)

	err = scope.ValidateRoleChange(q, target, membership, scope.RoleChange{})
	assert.ErrorIs(t, err, scope.ErrOutOfScope)

	// Inside the managed home the usual rules apply.
	placed := target
	placed.HomeID = managedHome
	err = scope.ValidateRoleChange(q, placed, membership, scope.RoleChange{Role: strptr(models.StaffRoleSenior)})
	assert.NoError(t, err)
}

func TestDSLRequiresCompanyLevel(t *testing.T) {
	companyID := uuid.New()
	homeID := uuid.New()
	target, membership := carerIn(companyID, homeID)

	manager := requester(scope.LevelManager, companyID, homeID)
	err := scope.ValidateRoleChange(manager, target, membership, scope.RoleChange{DSL: boolptr(true)})
	assert.ErrorIs(t, err, scope.ErrDSLRestricted)

	company := requester(scope.LevelCompany, companyID)
	err = scope.ValidateRoleChange(company, target, membership, scope.RoleChange{DSL: boolptr(true)})
	assert.NoError(t, err)

	// A no-op DSL value is not a change and managers may send it.
	err = scope.ValidateRoleChange(manager, target, membership, scope.RoleChange{DSL: boolptr(false)})
	assert.NoError(t, err)
}

func TestCrossCompanyRejectedBelowAdmin(t *testing.T) {
	companyID := uuid.New()
	otherCompany := uuid.New()
	homeID := uuid.New()
	target, membership := carerIn(otherCompany, homeID)

	company := requester(scope.LevelCompany, companyID)
	err := scope.ValidateRoleChange(company, target, membership, scope.RoleChange{Role: strptr(models.StaffRoleSenior)})
	assert.ErrorIs(t, err, scope.ErrOutOfScope)

	admin := requester(scope.LevelAdmin, uuid.Nil)
	err = scope.ValidateRoleChange(admin, target, membership, scope.RoleChange{Role: strptr(models.StaffRoleManager)})
	assert.NoError(t, err)
}

func TestSuspendedCompanyBlocksMutations(t *testing.T) {
	companyID := uuid.New()
	homeID := uuid.New()
	target, membership := carerIn(companyID, homeID)
	q := requester(scope.LevelCompany, companyID)
	q.Suspended = true

	err := scope.ValidateRoleChange(q, target, membership, scope.RoleChange{Role: strptr(models.StaffRoleSenior)})
	assert.ErrorIs(t, err, scope.ErrCompanySuspended)

	err = scope.ValidateMembershipRemoval(q, membership, 2)
	assert.ErrorIs(t, err, scope.ErrCompanySuspended)
}

func TestCompanyRoleChangeLastOwner(t *testing.T) {
	companyID := uuid.New()
	owner := models.CompanyMembership{
		ID:        uuid.New(),
		CompanyID: companyID,
		UserID:    uuid.New(),
		Role:      models.CompanyRoleOwner,
	}
	q := requester(scope.LevelCompany, companyID)

	err := scope.ValidateCompanyRoleChange(q, owner, models.CompanyRoleOffice, 1)
	assert.ErrorIs(t, err, scope.ErrLastOwner)

	err = scope.ValidateCompanyRoleChange(q, owner, models.CompanyRoleOffice, 2)
	assert.NoError(t, err)

	manager := requester(scope.LevelManager, companyID, uuid.New())
	err = scope.ValidateCompanyRoleChange(manager, owner, models.CompanyRoleOffice, 2)
	assert.ErrorIs(t, err, scope.ErrOutOfScope)
}

func TestMembershipRemovalKeepsOwner(t *testing.T) {
	companyID := uuid.New()
	owner := models.CompanyMembership{
		ID:        uuid.New(),
		CompanyID: companyID,
		UserID:    uuid.New(),
		Role:      models.CompanyRoleOwner,
	}
	q := requester(scope.LevelCompany, companyID)

	err := scope.ValidateMembershipRemoval(q, owner, 1)
	assert.ErrorIs(t, err, scope.ErrLastOwner)

	member := owner
	member.Role = models.CompanyRoleMember
	err = scope.ValidateMembershipRemoval(q, member, 1)
	assert.NoError(t, err)
}

func TestSelfUpdateFieldRestrictions(t *testing.T) {
	companyID := uuid.New()
	homeID := uuid.New()
	target, _ := carerIn(companyID, homeID)
	q := &scope.Requester{UserID: target.UserID, CompanyID: companyID, Level: scope.LevelStaff}

	err := scope.ValidateSelfUpdate(q, target, scope.RoleChange{Position: strptr("activities coordinator")})
	assert.NoError(t, err)

	err = scope.ValidateSelfUpdate(q, target, scope.RoleChange{Role: strptr(models.StaffRoleManager)})
	assert.ErrorIs(t, err, scope.ErrSelfFieldsOnly)

	err = scope.ValidateSelfUpdate(q, target, scope.RoleChange{DSL: boolptr(true)})
	assert.ErrorIs(t, err, scope.ErrSelfFieldsOnly)

	stranger := &scope.Requester{UserID: uuid.New(), CompanyID: companyID, Level: scope.LevelStaff}
	err = scope.ValidateSelfUpdate(stranger, target, scope.RoleChange{Position: strptr("nurse")})
	assert.ErrorIs(t, err, scope.ErrOutOfScope)
}
