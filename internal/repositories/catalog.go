package repositories

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lms/internal/models"
)

// CatalogRepository stores the shared, append-only catalog. Inserts never
// fail on a natural-key collision; they report whether a row was written so
// callers can fall back to fetching the winner.
type CatalogRepository interface {
	FindDepartmentByKey(db *gorm.DB, key string) (*models.Department, error)
	InsertDepartmentIfAbsent(db *gorm.DB, dept *models.Department) (bool, error)

	FindAuthorByKey(db *gorm.DB, key string) (*models.Author, error)
	InsertAuthorIfAbsent(db *gorm.DB, author *models.Author) (bool, error)

	FindBookByNaturalKey(db *gorm.DB, key string, edition int, price float64) (*models.Book, error)
	InsertBookIfAbsent(db *gorm.DB, book *models.Book) (bool, error)
	AttachAuthors(db *gorm.DB, bookID uuid.UUID, authorIDs []uuid.UUID) error
	GetBookByID(db *gorm.DB, id uuid.UUID) (*models.Book, error)
}

type catalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) FindDepartmentByKey(db *gorm.DB, key string) (*models.Department, error) {
	if db == nil {
		db = r.db
	}
	var dept models.Department
	if err := db.Where("name_key = ?", key).Take(&dept).Error; err != nil {
		return nil, err
	}
	return &dept, nil
}

func (r *catalogRepository) InsertDepartmentIfAbsent(db *gorm.DB, dept *models.Department) (bool, error) {
	if db == nil {
		db = r.db
	}
	return insertIfAbsent(db, dept)
}

func (r *catalogRepository) FindAuthorByKey(db *gorm.DB, key string) (*models.Author, error) {
	if db == nil {
		db = r.db
	}
	var author models.Author
	if err := db.Where("name_key = ?", key).Take(&author).Error; err != nil {
		return nil, err
	}
	return &author, nil
}

func (r *catalogRepository) InsertAuthorIfAbsent(db *gorm.DB, author *models.Author) (bool, error) {
	if db == nil {
		db = r.db
	}
	return insertIfAbsent(db, author)
}

func (r *catalogRepository) FindBookByNaturalKey(db *gorm.DB, key string, edition int, price float64) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	err := db.
		Where("name_key = ? AND edition = ? AND price = ?", key, edition, price).
		Take(&book).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *catalogRepository) InsertBookIfAbsent(db *gorm.DB, book *models.Book) (bool, error) {
	if db == nil {
		db = r.db
	}
	return insertIfAbsent(db, book)
}

func (r *catalogRepository) AttachAuthors(db *gorm.DB, bookID uuid.UUID, authorIDs []uuid.UUID) error {
	if db == nil {
		db = r.db
	}
	if len(authorIDs) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(authorIDs))
	for _, id := range authorIDs {
		rows = append(rows, map[string]interface{}{"book_id": bookID, "author_id": id})
	}
	return db.Table("author_books").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

func (r *catalogRepository) GetBookByID(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	err := db.
		Preload("Department").
		Preload("Authors", func(tx *gorm.DB) *gorm.DB { return tx.Order("name_key") }).
		Take(&book, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// insertIfAbsent issues INSERT ... ON CONFLICT DO NOTHING and reports whether
// the row was written.
func insertIfAbsent(db *gorm.DB, value interface{}) (bool, error) {
	res := db.
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(value)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IsNotFound reports whether err is gorm's missing-row error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
