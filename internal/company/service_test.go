package company_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/homecarehub/homecare/internal/company"
	"github.com/homecarehub/homecare/internal/database"
	"github.com/homecarehub/homecare/internal/scope"
	"github.com/homecarehub/homecare/pkg/models"
)

type fakeRecorder struct {
	events []models.AuditEvent
}

func (f *fakeRecorder) Record(_ context.Context, ev models.AuditEvent) {
	f.events = append(f.events, ev)
}

type fakeBilling struct {
	started []uuid.UUID
}

func (f *fakeBilling) StartTrial(_ context.Context, companyID uuid.UUID) (*models.Subscription, error) {
	f.started = append(f.started, companyID)
	return &models.Subscription{ID: uuid.New(), CompanyID: companyID, Status: models.SubscriptionTrialing}, nil
}

func setupService(t *testing.T) (*company.Service, *gorm.DB, *fakeRecorder, *fakeBilling) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	rec := &fakeRecorder{}
	billing := &fakeBilling{}
	return company.NewService(zap.NewNop(), db, rec, billing), db, rec, billing
}

func companyRequester(companyID uuid.UUID) *scope.Requester {
	return &scope.Requester{UserID: uuid.New(), CompanyID: companyID, Level: scope.LevelCompany}
}

func TestCreateCompany(t *testing.T) {
	svc, db, rec, billing := setupService(t)
	ctx := context.Background()
	owner := uuid.New()

	created, err := svc.CreateCompany(ctx, owner, "Rosewood Care", "Rosewood-Care ")
	require.NoError(t, err)
	assert.Equal(t, "rosewood-care", created.Slug)
	assert.Equal(t, "active", created.Status)

	var membership models.CompanyMembership
	require.NoError(t, db.Where("company_id = ? AND user_id = ?", created.ID, owner).First(&membership).Error)
	assert.Equal(t, models.CompanyRoleOwner, membership.Role)

	require.Len(t, billing.started, 1)
	assert.Equal(t, created.ID, billing.started[0])
	require.NotEmpty(t, rec.events)
	assert.Equal(t, "company.created", rec.events[0].Action)

	_, err = svc.CreateCompany(ctx, uuid.New(), "Other", "rosewood-care")
	assert.ErrorIs(t, err, company.ErrSlugTaken)
}

func TestGetCompanyScope(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	created, err := svc.CreateCompany(ctx, uuid.New(), "Rosewood Care", "rosewood")
	require.NoError(t, err)

	got, err := svc.GetCompany(ctx, companyRequester(created.ID), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = svc.GetCompany(ctx, companyRequester(uuid.New()), created.ID)
	assert.ErrorIs(t, err, scope.ErrOutOfScope)

	admin := &scope.Requester{UserID: uuid.New(), Level: scope.LevelAdmin}
	_, err = svc.GetCompany(ctx, admin, created.ID)
	assert.NoError(t, err)
}

func TestUpdateCompanyRequiresCompanyLevel(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	created, err := svc.CreateCompany(ctx, uuid.New(), "Rosewood Care", "rosewood")
	require.NoError(t, err)

	manager := &scope.Requester{UserID: uuid.New(), CompanyID: created.ID, Level: scope.LevelManager}
	_, err = svc.UpdateCompany(ctx, manager, created.ID, "Renamed")
	assert.ErrorIs(t, err, scope.ErrOutOfScope)

	got, err := svc.UpdateCompany(ctx, companyRequester(created.ID), created.ID, "Rosewood Group")
	require.NoError(t, err)
	assert.Equal(t, "Rosewood Group", got.Name)
}

func TestUpdateCompanySuspendedBlocked(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	created, err := svc.CreateCompany(ctx, uuid.New(), "Rosewood Care", "rosewood")
	require.NoError(t, err)

	q := companyRequester(created.ID)
	q.Suspended = true
	_, err = svc.UpdateCompany(ctx, q, created.ID, "Renamed")
	assert.ErrorIs(t, err, scope.ErrCompanySuspended)
}

func TestListCompanies(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()
	owner := uuid.New()

	first, err := svc.CreateCompany(ctx, owner, "First Care", "first")
	require.NoError(t, err)
	_, err = svc.CreateCompany(ctx, uuid.New(), "Second Care", "second")
	require.NoError(t, err)

	member := &scope.Requester{UserID: owner, CompanyID: first.ID, Level: scope.LevelCompany}
	mine, err := svc.ListCompanies(ctx, member)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, first.ID, mine[0].ID)

	admin := &scope.Requester{UserID: uuid.New(), Level: scope.LevelAdmin}
	all, err := svc.ListCompanies(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSetCompanyStatusAdminOnly(t *testing.T) {
	svc, _, rec, _ := setupService(t)
	ctx := context.Background()

	created, err := svc.CreateCompany(ctx, uuid.New(), "Rosewood Care", "rosewood")
	require.NoError(t, err)

	_, err = svc.SetCompanyStatus(ctx, companyRequester(created.ID), created.ID, "suspended")
	assert.ErrorIs(t, err, scope.ErrOutOfScope)

	admin := &scope.Requester{UserID: uuid.New(), Level: scope.LevelAdmin}
	got, err := svc.SetCompanyStatus(ctx, admin, created.ID, "suspended")
	require.NoError(t, err)
	assert.Equal(t, "suspended", got.Status)

	_, err = svc.SetCompanyStatus(ctx, admin, created.ID, "bogus")
	assert.Error(t, err)

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, "company.status_changed", last.Action)
	assert.Equal(t, "high", last.Severity)
}

func TestCreateAndListHomes(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	created, err := svc.CreateCompany(ctx, uuid.New(), "Rosewood Care", "rosewood")
	require.NoError(t, err)
	q := companyRequester(created.ID)

	home, err := svc.CreateHome(ctx, q, created.ID, "Oak Lodge", "1 Oak Lane", 24)
	require.NoError(t, err)
	assert.Equal(t, created.ID, home.CompanyID)

	manager := &scope.Requester{UserID: uuid.New(), CompanyID: created.ID, Level: scope.LevelManager, HomeIDs: []uuid.UUID{home.ID}}
	_, err = svc.CreateHome(ctx, manager, created.ID, "Elm Lodge", "", 10)
	assert.ErrorIs(t, err, scope.ErrOutOfScope)

	homes, err := svc.ListHomes(ctx, manager, created.ID, false)
	require.NoError(t, err)
	require.Len(t, homes, 1)
	assert.Equal(t, "Oak Lodge", homes[0].Name)

	_, err = svc.ListHomes(ctx, companyRequester(uuid.New()), created.ID, false)
	assert.ErrorIs(t, err, scope.ErrOutOfScope)
}

func TestUpdateHomeScope(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	created, err := svc.CreateCompany(ctx, uuid.New(), "Rosewood Care", "rosewood")
	require.NoError(t, err)
	q := companyRequester(created.ID)

	home, err := svc.CreateHome(ctx, q, created.ID, "Oak Lodge", "1 Oak Lane", 24)
	require.NoError(t, err)

	manager := &scope.Requester{UserID: uuid.New(), CompanyID: created.ID, Level: scope.LevelManager, HomeIDs: []uuid.UUID{home.ID}}
	got, err := svc.UpdateHome(ctx, manager, home.ID, "Oak Lodge", "2 Oak Lane", 30)
	require.NoError(t, err)
	assert.Equal(t, 30, got.Capacity)

	otherManager := &scope.Requester{UserID: uuid.New(), CompanyID: created.ID, Level: scope.LevelManager}
	_, err = svc.UpdateHome(ctx, otherManager, home.ID, "Oak Lodge", "", 30)
	assert.ErrorIs(t, err, scope.ErrOutOfScope)

	staff := &scope.Requester{UserID: uuid.New(), CompanyID: created.ID, Level: scope.LevelStaff, HomeIDs: []uuid.UUID{home.ID}}
	_, err = svc.UpdateHome(ctx, staff, home.ID, "Oak Lodge", "", 30)
	assert.ErrorIs(t, err, scope.ErrOutOfScope)
}

func TestArchiveHomeEndsAssignments(t *testing.T) {
	svc, db, _, _ := setupService(t)
	ctx := context.Background()

	created, err := svc.CreateCompany(ctx, uuid.New(), "Rosewood Care", "rosewood")
	require.NoError(t, err)
	q := companyRequester(created.ID)

	home, err := svc.CreateHome(ctx, q, created.ID, "Oak Lodge", "", 24)
	require.NoError(t, err)

	assignment := models.StaffAssignment{
		ID: uuid.New(), CompanyID: created.ID, HomeID: home.ID,
		UserID: uuid.New(), Role: models.StaffRoleCarer, Active: true,
	}
	require.NoError(t, db.Create(&assignment).Error)

	manager := &scope.Requester{UserID: uuid.New(), CompanyID: created.ID, Level: scope.LevelManager, HomeIDs: []uuid.UUID{home.ID}}
	assert.ErrorIs(t, svc.ArchiveHome(ctx, manager, home.ID), scope.ErrOutOfScope)

	require.NoError(t, svc.ArchiveHome(ctx, q, home.ID))

	var got models.Home
	require.NoError(t, db.First(&got, "id = ?", home.ID).Error)
	assert.Equal(t, "archived", got.Status)

	var ended models.StaffAssignment
	require.NoError(t, db.First(&ended, "id = ?", assignment.ID).Error)
	assert.False(t, ended.Active)
	require.NotNil(t, ended.EndedAt)

	// Archived homes disappear from staff-facing listings.
	homes, err := svc.ListHomes(ctx, q, created.ID, false)
	require.NoError(t, err)
	assert.Empty(t, homes)

	all, err := svc.ListHomes(ctx, q, created.ID, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
