package staff_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/homecarehub/homecare/internal/database"
	"github.com/homecarehub/homecare/internal/scope"
	"github.com/homecarehub/homecare/internal/staff"
	"github.com/homecarehub/homecare/pkg/models"
)

type fakeRecorder struct {
	events []models.AuditEvent
}

func (f *fakeRecorder) Record(_ context.Context, ev models.AuditEvent) {
	f.events = append(f.events, ev)
}

type fakeBilling struct {
	readOnly bool
	seatErr  error
}

func (f *fakeBilling) ReserveSeat(context.Context, uuid.UUID) error {
	return f.seatErr
}

func (f *fakeBilling) IsReadOnly(context.Context, uuid.UUID) (bool, error) {
	return f.readOnly, nil
}

type fakeNotifier struct {
	sent []models.Notification
}

func (f *fakeNotifier) Notify(_ context.Context, userID uuid.UUID, companyID *uuid.UUID, typ, title, body string) (*models.Notification, error) {
	n := models.Notification{ID: uuid.New(), UserID: userID, CompanyID: companyID, Type: typ, Title: title, Body: body}
	f.sent = append(f.sent, n)
	return &n, nil
}

func (f *fakeNotifier) NotifyEmail(ctx context.Context, userID uuid.UUID, companyID *uuid.UUID, typ, title, body, _ string) (*models.Notification, error) {
	return f.Notify(ctx, userID, companyID, typ, title, body)
}

type fixture struct {
	svc      *staff.Service
	db       *gorm.DB
	rec      *fakeRecorder
	billing  *fakeBilling
	notifier *fakeNotifier
	company  models.Company
	home     models.Home
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	f := &fixture{
		db:       db,
		rec:      &fakeRecorder{},
		billing:  &fakeBilling{},
		notifier: &fakeNotifier{},
	}
	f.svc = staff.NewService(zap.NewNop(), db, f.rec, f.billing, f.notifier)

	f.company = models.Company{ID: uuid.New(), Name: "Rosewood Care", Slug: "rosewood", Status: "active"}
	require.NoError(t, db.Create(&f.company).Error)
	f.home = models.Home{ID: uuid.New(), CompanyID: f.company.ID, Name: "Oak Lodge", Status: "active"}
	require.NoError(t, db.Create(&f.home).Error)
	return f
}

func (f *fixture) seedUser(t *testing.T, email string) models.User {
	t.Helper()
	u := models.User{ID: uuid.New(), Email: email, FirstName: "Test", LastName: "User"}
	require.NoError(t, f.db.Create(&u).Error)
	return u
}

func (f *fixture) seedMember(t *testing.T, userID uuid.UUID, role string, bank bool) models.CompanyMembership {
	t.Helper()
	m := models.CompanyMembership{ID: uuid.New(), CompanyID: f.company.ID, UserID: userID, Role: role, Bank: bank}
	require.NoError(t, f.db.Create(&m).Error)
	return m
}

func (f *fixture) seedAssignment(t *testing.T, userID, homeID uuid.UUID, role string) models.StaffAssignment {
	t.Helper()
	a := models.StaffAssignment{
		ID: uuid.New(), CompanyID: f.company.ID, HomeID: homeID, UserID: userID,
		Role: role, Active: true, StartedAt: time.Now(),
	}
	require.NoError(t, f.db.Create(&a).Error)
	return a
}

func (f *fixture) companyRequester() *scope.Requester {
	return &scope.Requester{UserID: uuid.New(), CompanyID: f.company.ID, Level: scope.LevelCompany}
}

func (f *fixture) managerRequester(homeIDs ...uuid.UUID) *scope.Requester {
	return &scope.Requester{UserID: uuid.New(), CompanyID: f.company.ID, Level: scope.LevelManager, HomeIDs: homeIDs}
}

func strptr(s string) *string { return &s }
func boolptr(b bool) *bool    { return &b }

func TestListStaffVisibility(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	otherHome := models.Home{ID: uuid.New(), CompanyID: f.company.ID, Name: "Elm Lodge", Status: "active"}
	require.NoError(t, f.db.Create(&otherHome).Error)

	carer := f.seedUser(t, "carer@example.com")
	f.seedMember(t, carer.ID, models.CompanyRoleMember, false)
	f.seedAssignment(t, carer.ID, f.home.ID, models.StaffRoleCarer)

	elsewhere := f.seedUser(t, "elsewhere@example.com")
	f.seedMember(t, elsewhere.ID, models.CompanyRoleMember, false)
	f.seedAssignment(t, elsewhere.ID, otherHome.ID, models.StaffRoleSenior)

	bank := f.seedUser(t, "bank@example.com")
	f.seedMember(t, bank.ID, models.CompanyRoleMember, true)

	all, err := f.svc.ListStaff(ctx, f.companyRequester(), f.company.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// A manager of Oak Lodge sees its roster plus company bank staff.
	visible, err := f.svc.ListStaff(ctx, f.managerRequester(f.home.ID), f.company.ID)
	require.NoError(t, err)
	require.Len(t, visible, 2)
	emails := []string{visible[0].User.Email, visible[1].User.Email}
	assert.Contains(t, emails, "carer@example.com")
	assert.Contains(t, emails, "bank@example.com")

	// Staff see only their own record.
	staffQ := &scope.Requester{UserID: carer.ID, CompanyID: f.company.ID, Level: scope.LevelStaff}
	own, err := f.svc.ListStaff(ctx, staffQ, f.company.ID)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "carer@example.com", own[0].User.Email)

	outsider := &scope.Requester{UserID: uuid.New(), CompanyID: uuid.New(), Level: scope.LevelCompany}
	_, err = f.svc.ListStaff(ctx, outsider, f.company.ID)
	assert.ErrorIs(t, err, scope.ErrOutOfScope)
}

func TestCreateAssignment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	carer := f.seedUser(t, "carer@example.com")
	f.seedMember(t, carer.ID, models.CompanyRoleMember, false)

	a, err := f.svc.CreateAssignment(ctx, f.companyRequester(), f.company.ID, carer.ID, f.home.ID, models.StaffRoleCarer, "Night shift", "")
	require.NoError(t, err)
	assert.True(t, a.Active)
	assert.Equal(t, "Night shift", a.Position)

	// Target was notified.
	require.NotEmpty(t, f.notifier.sent)
	assert.Equal(t, carer.ID, f.notifier.sent[0].UserID)

	_, err = f.svc.CreateAssignment(ctx, f.companyRequester(), f.company.ID, carer.ID, f.home.ID, models.StaffRoleCarer, "", "")
	assert.ErrorIs(t, err, staff.ErrAlreadyPlaced)

	_, err = f.svc.CreateAssignment(ctx, f.companyRequester(), f.company.ID, uuid.New(), f.home.ID, models.StaffRoleCarer, "", "")
	assert.ErrorIs(t, err, staff.ErrNotMember)
}

func TestCreateAssignmentManagerScope(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	otherHome := models.Home{ID: uuid.New(), CompanyID: f.company.ID, Name: "Elm Lodge", Status: "active"}
	require.NoError(t, f.db.Create(&otherHome).Error)

	carer := f.seedUser(t, "carer@example.com")
	f.seedMember(t, carer.ID, models.CompanyRoleMember, false)

	manager := f.managerRequester(f.home.ID)

	_, err := f.svc.CreateAssignment(ctx, manager, f.company.ID, carer.ID, otherHome.ID, models.StaffRoleCarer, "", "")
	assert.ErrorIs(t, err, scope.ErrOutOfScope)

	_, err = f.svc.CreateAssignment(ctx, manager, f.company.ID, carer.ID, f.home.ID, models.StaffRoleManager, "", "")
	assert.ErrorIs(t, err, scope.ErrOutOfScope)

	_, err = f.svc.CreateAssignment(ctx, manager, f.company.ID, carer.ID, f.home.ID, models.StaffRoleSenior, "", "")
	assert.NoError(t, err)
}

func TestCreateAssignmentReadOnly(t *testing.T) {
	f := setup(t)
	f.billing.readOnly = true

	carer := f.seedUser(t, "carer@example.com")
	f.seedMember(t, carer.ID, models.CompanyRoleMember, false)

	_, err := f.svc.CreateAssignment(context.Background(), f.companyRequester(), f.company.ID, carer.ID, f.home.ID, models.StaffRoleCarer, "", "")
	assert.ErrorIs(t, err, staff.ErrReadOnly)
}

func TestUpdateAssignment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	carer := f.seedUser(t, "carer@example.com")
	f.seedMember(t, carer.ID, models.CompanyRoleMember, false)
	a := f.seedAssignment(t, carer.ID, f.home.ID, models.StaffRoleCarer)

	got, err := f.svc.UpdateAssignment(ctx, f.companyRequester(), a.ID, &models.RoleChangeRequest{
		Role: strptr(models.StaffRoleSenior),
		DSL:  boolptr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, models.StaffRoleSenior, got.Role)
	assert.True(t, got.DSL)

	// Manager cannot flip the safeguarding lead flag.
	manager := f.managerRequester(f.home.ID)
	_, err = f.svc.UpdateAssignment(ctx, manager, a.ID, &models.RoleChangeRequest{DSL: boolptr(false)})
	assert.ErrorIs(t, err, scope.ErrDSLRestricted)

	_, err = f.svc.UpdateAssignment(ctx, f.companyRequester(), uuid.New(), &models.RoleChangeRequest{})
	assert.ErrorIs(t, err, staff.ErrNotFound)
}

func TestUpdateAssignmentMoveHome(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	otherHome := models.Home{ID: uuid.New(), CompanyID: f.company.ID, Name: "Elm Lodge", Status: "active"}
	require.NoError(t, f.db.Create(&otherHome).Error)
	archived := models.Home{ID: uuid.New(), CompanyID: f.company.ID, Name: "Closed", Status: "archived"}
	require.NoError(t, f.db.Create(&archived).Error)

	carer := f.seedUser(t, "carer@example.com")
	f.seedMember(t, carer.ID, models.CompanyRoleMember, false)
	a := f.seedAssignment(t, carer.ID, f.home.ID, models.StaffRoleCarer)

	otherID := otherHome.ID.String()
	got, err := f.svc.UpdateAssignment(ctx, f.companyRequester(), a.ID, &models.RoleChangeRequest{HomeID: &otherID})
	require.NoError(t, err)
	assert.Equal(t, otherHome.ID, got.HomeID)

	archivedID := archived.ID.String()
	_, err = f.svc.UpdateAssignment(ctx, f.companyRequester(), a.ID, &models.RoleChangeRequest{HomeID: &archivedID})
	assert.ErrorIs(t, err, staff.ErrArchivedHome)
}

func TestBankStaffAssignmentStaysHomeScoped(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	otherHome := models.Home{ID: uuid.New(), CompanyID: f.company.ID, Name: "Elm Lodge", Status: "active"}
	require.NoError(t, f.db.Create(&otherHome).Error)

	bank := f.seedUser(t, "bank@example.com")
	f.seedMember(t, bank.ID, models.CompanyRoleMember, true)
	a := f.seedAssignment(t, bank.ID, f.home.ID, models.StaffRoleCarer)

	// A manager of a different home may neither change nor end a bank
	// member's placed assignment.
	elsewhere := f.managerRequester(otherHome.ID)
	_, err := f.svc.UpdateAssignment(ctx, elsewhere, a.ID, &models.RoleChangeRequest{
		Role: strptr(models.StaffRoleSenior),
	})
	assert.ErrorIs(t, err, scope.ErrOutOfScope)

	assert.ErrorIs(t, f.svc.EndAssignment(ctx, elsewhere, a.ID), scope.ErrOutOfScope)

	// The home's own manager may.
	_, err = f.svc.UpdateAssignment(ctx, f.managerRequester(f.home.ID), a.ID, &models.RoleChangeRequest{
		Role: strptr(models.StaffRoleSenior),
	})
	assert.NoError(t, err)
}

func TestEndAssignment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	carer := f.seedUser(t, "carer@example.com")
	f.seedMember(t, carer.ID, models.CompanyRoleMember, false)
	a := f.seedAssignment(t, carer.ID, f.home.ID, models.StaffRoleCarer)

	require.NoError(t, f.svc.EndAssignment(ctx, f.companyRequester(), a.ID))

	var got models.StaffAssignment
	require.NoError(t, f.db.First(&got, "id = ?", a.ID).Error)
	assert.False(t, got.Active)
	require.NotNil(t, got.EndedAt)
}

func TestSelfUpdate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	carer := f.seedUser(t, "carer@example.com")
	f.seedMember(t, carer.ID, models.CompanyRoleMember, false)
	a := f.seedAssignment(t, carer.ID, f.home.ID, models.StaffRoleCarer)

	self := &scope.Requester{UserID: carer.ID, CompanyID: f.company.ID, Level: scope.LevelStaff}
	got, err := f.svc.SelfUpdate(ctx, self, a.ID, &models.SelfUpdateRequest{
		Position: strptr("Senior support worker"),
		Subrole:  strptr("medication"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Senior support worker", got.Position)
	assert.Equal(t, "medication", got.Subrole)

	stranger := &scope.Requester{UserID: uuid.New(), CompanyID: f.company.ID, Level: scope.LevelStaff}
	_, err = f.svc.SelfUpdate(ctx, stranger, a.ID, &models.SelfUpdateRequest{Position: strptr("x")})
	assert.ErrorIs(t, err, scope.ErrOutOfScope)
}

func TestChangeCompanyRoleLastOwner(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	owner := f.seedUser(t, "owner@example.com")
	m := f.seedMember(t, owner.ID, models.CompanyRoleOwner, false)

	_, err := f.svc.ChangeCompanyRole(ctx, f.companyRequester(), m.ID, models.CompanyRoleMember)
	assert.ErrorIs(t, err, scope.ErrLastOwner)

	second := f.seedUser(t, "second@example.com")
	m2 := f.seedMember(t, second.ID, models.CompanyRoleMember, false)
	got, err := f.svc.ChangeCompanyRole(ctx, f.companyRequester(), m2.ID, models.CompanyRoleOwner)
	require.NoError(t, err)
	assert.Equal(t, models.CompanyRoleOwner, got.Role)

	// With two owners the demotion goes through.
	_, err = f.svc.ChangeCompanyRole(ctx, f.companyRequester(), m.ID, models.CompanyRoleOffice)
	assert.NoError(t, err)
}

func TestChangeCompanyRoleReadOnly(t *testing.T) {
	f := setup(t)
	f.billing.readOnly = true
	ctx := context.Background()

	owner := f.seedUser(t, "owner@example.com")
	f.seedMember(t, owner.ID, models.CompanyRoleOwner, false)
	carer := f.seedUser(t, "carer@example.com")
	m := f.seedMember(t, carer.ID, models.CompanyRoleMember, false)

	_, err := f.svc.ChangeCompanyRole(ctx, f.companyRequester(), m.ID, models.CompanyRoleOffice)
	assert.ErrorIs(t, err, staff.ErrReadOnly)

	// Removal frees a seat, so it stays allowed.
	require.NoError(t, f.svc.RemoveMember(ctx, f.companyRequester(), m.ID))
}

func TestRemoveMember(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	owner := f.seedUser(t, "owner@example.com")
	ownerM := f.seedMember(t, owner.ID, models.CompanyRoleOwner, false)

	carer := f.seedUser(t, "carer@example.com")
	m := f.seedMember(t, carer.ID, models.CompanyRoleMember, false)
	a := f.seedAssignment(t, carer.ID, f.home.ID, models.StaffRoleCarer)

	assert.ErrorIs(t, f.svc.RemoveMember(ctx, f.companyRequester(), ownerM.ID), scope.ErrLastOwner)

	require.NoError(t, f.svc.RemoveMember(ctx, f.companyRequester(), m.ID))

	var count int64
	require.NoError(t, f.db.Model(&models.CompanyMembership{}).Where("id = ?", m.ID).Count(&count).Error)
	assert.Zero(t, count)

	var ended models.StaffAssignment
	require.NoError(t, f.db.First(&ended, "id = ?", a.ID).Error)
	assert.False(t, ended.Active)
}
