package database_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"lms/internal/config"
	"lms/internal/database"
	"lms/internal/models"
	"lms/internal/testutil"
)

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, database.IsUniqueViolation(nil))
	assert.False(t, database.IsUniqueViolation(errors.New("boom")))
	assert.True(t, database.IsUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, database.IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, database.IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
}

func TestActiveLoanIndex(t *testing.T) {
	db := testutil.NewDB(t)

	inst := models.Institute{Name: "A", NameKey: "a"}
	require.NoError(t, db.Create(&inst).Error)
	dept := models.Department{Name: "CS", NameKey: "cs"}
	require.NoError(t, db.Create(&dept).Error)
	book := models.Book{Name: "B", NameKey: "b", Edition: 1, DepartmentID: dept.ID}
	require.NoError(t, db.Omit("Department", "Authors").Create(&book).Error)
	st := models.Student{Name: "S", InstituteID: inst.ID, DepartmentID: dept.ID}
	require.NoError(t, db.Omit("Institute", "Department").Create(&st).Error)

	loan := func(status models.LoanStatus) error {
		return db.Omit("Institute", "Book", "Student").Create(&models.Loan{
			InstituteID: inst.ID, BookID: book.ID, StudentID: st.ID, Status: status,
		}).Error
	}

	require.NoError(t, loan(models.LoanStatusReturned))
	require.NoError(t, loan(models.LoanStatusReturned), "returned loans may repeat")
	require.NoError(t, loan(models.LoanStatusActive))

	err := loan(models.LoanStatusActive)
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err), "second active loan hits the partial index: %v", err)
}

func TestCheckConstraints(t *testing.T) {
	db := testutil.NewDB(t)

	inst := models.Institute{Name: "A", NameKey: "a"}
	require.NoError(t, db.Create(&inst).Error)
	dept := models.Department{Name: "CS", NameKey: "cs"}
	require.NoError(t, db.Create(&dept).Error)
	book := models.Book{Name: "B", NameKey: "b", Edition: 1, DepartmentID: dept.ID}
	require.NoError(t, db.Omit("Department", "Authors").Create(&book).Error)

	row := models.InstituteBook{InstituteID: inst.ID, BookID: book.ID, CopiesAvailable: 2, CopiesOwned: 1}
	assert.Error(t, db.Omit("Institute", "Book").Create(&row).Error, "available may not exceed owned")

	row.CopiesAvailable, row.CopiesOwned = -1, 1
	assert.Error(t, db.Omit("Institute", "Book").Create(&row).Error, "available may not go negative")
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := database.Open(config.DatabaseConfig{Driver: "mysql", DSN: "x"})
	assert.ErrorContains(t, err, "unsupported")
}

func TestPing(t *testing.T) {
	db := testutil.NewDB(t)
	assert.NoError(t, database.Ping(context.Background(), db))
}
