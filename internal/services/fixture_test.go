package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lms/internal/models"
	"lms/internal/repositories"
	"lms/internal/services"
	"lms/internal/testutil"
)

// day0 is the reference issue date used across the lending tests.
var day0 = time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC)

// fakeClock is advanced by tests to simulate days passing.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AdvanceDays(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, n)
}

type fixture struct {
	ctx   context.Context
	db    *gorm.DB
	clock *fakeClock

	inventoryRepo repositories.InventoryRepository
	loanRepo      repositories.LoanRepository

	catalog   services.CatalogService
	inventory services.InventoryService
	directory services.DirectoryService
	lending   services.LendingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithPolicy(t, services.DefaultFinePolicy())
}

func newFixtureWithPolicy(t *testing.T, policy services.FinePolicy) *fixture {
	t.Helper()

	db := testutil.NewDB(t)
	clock := &fakeClock{now: day0}

	catalogRepo := repositories.NewCatalogRepository(db)
	instituteRepo := repositories.NewInstituteRepository(db)
	studentRepo := repositories.NewStudentRepository(db)
	inventoryRepo := repositories.NewInventoryRepository(db)
	loanRepo := repositories.NewLoanRepository(db)

	catalog := services.NewCatalogService(db, catalogRepo, nil)

	return &fixture{
		ctx:           context.Background(),
		db:            db,
		clock:         clock,
		inventoryRepo: inventoryRepo,
		loanRepo:      loanRepo,
		catalog:       catalog,
		inventory:     services.NewInventoryService(db, catalogRepo, instituteRepo, inventoryRepo, loanRepo),
		directory:     services.NewDirectoryService(db, catalog, instituteRepo, studentRepo),
		lending: services.NewLendingService(db, studentRepo, inventoryRepo, loanRepo, services.LendingOptions{
			Policy: &policy,
			Now:    clock.Now,
		}),
	}
}

func (f *fixture) institute(t *testing.T, name string) uuid.UUID {
	t.Helper()
	inst, err := f.directory.RegisterInstitute(f.ctx, name)
	require.NoError(t, err)
	return inst.ID
}

func (f *fixture) student(t *testing.T, instituteID uuid.UUID, name string) uuid.UUID {
	t.Helper()
	st, err := f.directory.RegisterStudent(f.ctx, instituteID, services.StudentSpec{
		Name:       name,
		Year:       2,
		Address:    "Mangaluru",
		ContactNo:  "9999999999",
		Department: "CS",
	})
	require.NoError(t, err)
	return st.ID
}

func (f *fixture) book(t *testing.T, name string) uuid.UUID {
	t.Helper()
	id, err := f.catalog.FindOrCreateBook(f.ctx, services.BookSpec{
		Name:       name,
		Edition:    1,
		Price:      450,
		Department: "CS",
		Authors:    []string{"Brian Kernighan"},
	})
	require.NoError(t, err)
	return id
}

// stocked registers an institute holding copies of one book.
func (f *fixture) stocked(t *testing.T, copies int) (instituteID, bookID uuid.UUID) {
	t.Helper()
	instituteID = f.institute(t, "Institute "+uuid.NewString()[:8])
	bookID = f.book(t, "The Go Programming Language")
	_, err := f.inventory.AddCopies(f.ctx, instituteID, bookID, copies)
	require.NoError(t, err)
	return instituteID, bookID
}

func (f *fixture) row(t *testing.T, instituteID, bookID uuid.UUID) *models.InstituteBook {
	t.Helper()
	row, err := f.inventoryRepo.Get(f.db, instituteID, bookID)
	require.NoError(t, err)
	return row
}

func (f *fixture) available(t *testing.T, instituteID, bookID uuid.UUID) int {
	t.Helper()
	return f.row(t, instituteID, bookID).CopiesAvailable
}
