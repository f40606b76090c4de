package repositories

import (
	"errors"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lms/internal/models"
)

var (
	// ErrUnavailable is returned by Reserve when the institute has no copy on
	// the shelf, including when it does not stock the book at all.
	ErrUnavailable = errors.New("no copy available")

	// ErrNothingToRelease is returned by Release when the row is missing or
	// every owned copy is already on the shelf.
	ErrNothingToRelease = errors.New("no reserved copy to release")

	// ErrNotEnoughCopies is returned by Decrement when fewer copies are on the
	// shelf than requested.
	ErrNotEnoughCopies = errors.New("not enough copies on the shelf")
)

// InventoryRepository owns the per-institute copy counters. Counters are only
// changed through single conditional statements so that each change is a
// compare-and-set on the row.
type InventoryRepository interface {
	Get(db *gorm.DB, instituteID, bookID uuid.UUID) (*models.InstituteBook, error)
	GetForUpdate(db *gorm.DB, instituteID, bookID uuid.UUID) (*models.InstituteBook, error)
	Add(db *gorm.DB, instituteID, bookID uuid.UUID, count int) (*models.InstituteBook, error)
	Decrement(db *gorm.DB, instituteID, bookID uuid.UUID, count int) error
	Delete(db *gorm.DB, instituteID, bookID uuid.UUID) error
	Reserve(db *gorm.DB, instituteID, bookID uuid.UUID) error
	Release(db *gorm.DB, instituteID, bookID uuid.UUID) error
	ListByInstitute(db *gorm.DB, instituteID uuid.UUID) ([]models.InstituteBook, error)
}

type inventoryRepository struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) InventoryRepository {
	return &inventoryRepository{db: db}
}

func (r *inventoryRepository) Get(db *gorm.DB, instituteID, bookID uuid.UUID) (*models.InstituteBook, error) {
	if db == nil {
		db = r.db
	}
	var row models.InstituteBook
	err := db.
		Where("institute_id = ? AND book_id = ?", instituteID, bookID).
		Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *inventoryRepository) GetForUpdate(db *gorm.DB, instituteID, bookID uuid.UUID) (*models.InstituteBook, error) {
	if db == nil {
		db = r.db
	}
	var row models.InstituteBook
	err := db.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("institute_id = ? AND book_id = ?", instituteID, bookID).
		Take(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Add creates the row on first stock or increments both counters.
func (r *inventoryRepository) Add(db *gorm.DB, instituteID, bookID uuid.UUID, count int) (*models.InstituteBook, error) {
	if db == nil {
		db = r.db
	}
	row := &models.InstituteBook{
		InstituteID:     instituteID,
		BookID:          bookID,
		CopiesAvailable: count,
		CopiesOwned:     count,
	}
	err := db.
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "institute_id"}, {Name: "book_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"copies_available": gorm.Expr("institute_books.copies_available + ?", count),
				"copies_owned":     gorm.Expr("institute_books.copies_owned + ?", count),
			}),
		}).
		Create(row).Error
	if err != nil {
		return nil, err
	}
	return r.Get(db, instituteID, bookID)
}

func (r *inventoryRepository) Decrement(db *gorm.DB, instituteID, bookID uuid.UUID, count int) error {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.InstituteBook{}).
		Where("institute_id = ? AND book_id = ? AND copies_available >= ?", instituteID, bookID, count).
		UpdateColumns(map[string]interface{}{
			"copies_available": gorm.Expr("copies_available - ?", count),
			"copies_owned":     gorm.Expr("copies_owned - ?", count),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotEnoughCopies
	}
	return nil
}

func (r *inventoryRepository) Delete(db *gorm.DB, instituteID, bookID uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	return db.
		Where("institute_id = ? AND book_id = ?", instituteID, bookID).
		Delete(&models.InstituteBook{}).Error
}

func (r *inventoryRepository) Reserve(db *gorm.DB, instituteID, bookID uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.InstituteBook{}).
		Where("institute_id = ? AND book_id = ? AND copies_available > 0", instituteID, bookID).
		UpdateColumn("copies_available", gorm.Expr("copies_available - 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUnavailable
	}
	return nil
}

func (r *inventoryRepository) Release(db *gorm.DB, instituteID, bookID uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.InstituteBook{}).
		Where("institute_id = ? AND book_id = ? AND copies_available < copies_owned", instituteID, bookID).
		UpdateColumn("copies_available", gorm.Expr("copies_available + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNothingToRelease
	}
	return nil
}

func (r *inventoryRepository) ListByInstitute(db *gorm.DB, instituteID uuid.UUID) ([]models.InstituteBook, error) {
	if db == nil {
		db = r.db
	}
	var rows []models.InstituteBook
	err := db.
		Preload("Book").
		Preload("Book.Department").
		Preload("Book.Authors").
		Where("institute_id = ?", instituteID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Book.NameKey < rows[j].Book.NameKey
	})
	return rows, nil
}
