package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lms/internal/models"
)

type LoanRepository interface {
	Create(db *gorm.DB, loan *models.Loan) error
	FindActive(db *gorm.DB, instituteID, bookID, studentID uuid.UUID) (*models.Loan, error)
	FindActiveForUpdate(db *gorm.DB, instituteID, bookID, studentID uuid.UUID) (*models.Loan, error)
	MarkReturned(db *gorm.DB, loanID uuid.UUID, returnDate time.Time, fine int) (bool, error)
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Loan, error)
	ListActiveByStudent(db *gorm.DB, instituteID, studentID uuid.UUID) ([]models.Loan, error)
	ListReturnedByStudent(db *gorm.DB, instituteID, studentID uuid.UUID) ([]models.Loan, error)
	CountActive(db *gorm.DB, instituteID, bookID uuid.UUID) (int64, error)
	CountIssuedBefore(db *gorm.DB, cutoff time.Time) (map[uuid.UUID]int64, error)
}

type loanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(db *gorm.DB, loan *models.Loan) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(loan).Error
}

func (r *loanRepository) FindActive(db *gorm.DB, instituteID, bookID, studentID uuid.UUID) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	err := db.
		Where("institute_id = ? AND book_id = ? AND student_id = ? AND status = ?",
			instituteID, bookID, studentID, models.LoanStatusActive).
		Take(&loan).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) FindActiveForUpdate(db *gorm.DB, instituteID, bookID, studentID uuid.UUID) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("institute_id = ? AND book_id = ? AND student_id = ? AND status = ?",
			instituteID, bookID, studentID, models.LoanStatusActive).
		Take(&loan).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

// MarkReturned moves an ACTIVE loan to RETURNED. It reports false when the
// loan was no longer ACTIVE.
func (r *loanRepository) MarkReturned(db *gorm.DB, loanID uuid.UUID, returnDate time.Time, fine int) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Loan{}).
		Where("id = ? AND status = ?", loanID, models.LoanStatusActive).
		Updates(map[string]interface{}{
			"return_date": returnDate,
			"fine_due":    fine,
			"status":      models.LoanStatusReturned,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *loanRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.Loan
	if err := db.Take(&loan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) ListActiveByStudent(db *gorm.DB, instituteID, studentID uuid.UUID) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	err := db.
		Where("institute_id = ? AND student_id = ? AND status = ?", instituteID, studentID, models.LoanStatusActive).
		Order("issue_date ASC").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

// ListReturnedByStudent returns the student's history, most recent return first.
func (r *loanRepository) ListReturnedByStudent(db *gorm.DB, instituteID, studentID uuid.UUID) ([]models.Loan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.Loan
	err := db.
		Where("institute_id = ? AND student_id = ? AND status = ?", instituteID, studentID, models.LoanStatusReturned).
		Order("return_date DESC").
		Order("issue_date DESC").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) CountActive(db *gorm.DB, instituteID, bookID uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Loan{}).
		Where("institute_id = ? AND book_id = ? AND status = ?", instituteID, bookID, models.LoanStatusActive).
		Count(&n).Error
	return n, err
}

// CountIssuedBefore counts ACTIVE loans with issue_date strictly before
// cutoff, grouped by institute.
func (r *loanRepository) CountIssuedBefore(db *gorm.DB, cutoff time.Time) (map[uuid.UUID]int64, error) {
	if db == nil {
		db = r.db
	}
	var rows []struct {
		InstituteID uuid.UUID
		Total       int64
	}
	err := db.Model(&models.Loan{}).
		Select("institute_id, COUNT(*) AS total").
		Where("status = ? AND issue_date < ?", models.LoanStatusActive, cutoff).
		Group("institute_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[uuid.UUID]int64, len(rows))
	for _, row := range rows {
		counts[row.InstituteID] = row.Total
	}
	return counts, nil
}
