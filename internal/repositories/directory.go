package repositories

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"lms/internal/models"
)

type InstituteRepository interface {
	Create(db *gorm.DB, institute *models.Institute) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Institute, error)
	Delete(db *gorm.DB, id uuid.UUID) (bool, error)
	List(db *gorm.DB) ([]models.Institute, error)
}

// StudentRepository is the tenant-scoped borrower roster. Every lookup is
// filtered by institute so a student id from another tenant never resolves.
type StudentRepository interface {
	Create(db *gorm.DB, student *models.Student) error
	GetInInstitute(db *gorm.DB, instituteID, id uuid.UUID) (*models.Student, error)
	ListByInstitute(db *gorm.DB, instituteID uuid.UUID) ([]models.Student, error)
}

type instituteRepository struct {
	db *gorm.DB
}

func NewInstituteRepository(db *gorm.DB) InstituteRepository {
	return &instituteRepository{db: db}
}

func (r *instituteRepository) Create(db *gorm.DB, institute *models.Institute) error {
	if db == nil {
		db = r.db
	}
	return db.Create(institute).Error
}

func (r *instituteRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Institute, error) {
	if db == nil {
		db = r.db
	}
	var institute models.Institute
	if err := db.Take(&institute, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &institute, nil
}

// Delete removes the institute; foreign keys cascade to its inventory,
// students and loans.
func (r *instituteRepository) Delete(db *gorm.DB, id uuid.UUID) (bool, error) {
	if db == nil {
		db = r.db
	}
	res := db.Delete(&models.Institute{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *instituteRepository) List(db *gorm.DB) ([]models.Institute, error) {
	if db == nil {
		db = r.db
	}
	var institutes []models.Institute
	if err := db.Order("name_key").Find(&institutes).Error; err != nil {
		return nil, err
	}
	return institutes, nil
}

type studentRepository struct {
	db *gorm.DB
}

func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) Create(db *gorm.DB, student *models.Student) error {
	if db == nil {
		db = r.db
	}
	return db.Omit("Institute", "Department").Create(student).Error
}

func (r *studentRepository) GetInInstitute(db *gorm.DB, instituteID, id uuid.UUID) (*models.Student, error) {
	if db == nil {
		db = r.db
	}
	var student models.Student
	err := db.
		Preload("Department").
		Where("id = ? AND institute_id = ?", id, instituteID).
		Take(&student).Error
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *studentRepository) ListByInstitute(db *gorm.DB, instituteID uuid.UUID) ([]models.Student, error) {
	if db == nil {
		db = r.db
	}
	var students []models.Student
	if err := db.Where("institute_id = ?", instituteID).Order("name").Find(&students).Error; err != nil {
		return nil, err
	}
	return students, nil
}
