package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lms/internal/database"
	"lms/internal/logger"
	"lms/internal/models"
	"lms/internal/repositories"
)

// ErrInstituteExists is returned when registering a second institute with the
// same (case-insensitive) name.
var ErrInstituteExists = errors.New("institute already registered")

// StudentSpec is a roster entry as supplied by the registration layer.
type StudentSpec struct {
	Name       string
	Year       int
	Address    string
	ContactNo  string
	Department string
}

// DirectoryService manages institutes and their borrower rosters. Lending
// only reads from it through LookupBorrower.
type DirectoryService interface {
	RegisterInstitute(ctx context.Context, name string) (*models.Institute, error)
	RemoveInstitute(ctx context.Context, id uuid.UUID) error
	ListInstitutes(ctx context.Context) ([]models.Institute, error)

	RegisterStudent(ctx context.Context, instituteID uuid.UUID, spec StudentSpec) (*models.Student, error)
	LookupBorrower(ctx context.Context, instituteID, studentID uuid.UUID) (*models.Student, error)
	ListStudents(ctx context.Context, instituteID uuid.UUID) ([]models.Student, error)
}

type directoryService struct {
	db         *gorm.DB
	catalog    CatalogService
	institutes repositories.InstituteRepository
	students   repositories.StudentRepository
}

func NewDirectoryService(
	db *gorm.DB,
	catalog CatalogService,
	institutes repositories.InstituteRepository,
	students repositories.StudentRepository,
) DirectoryService {
	return &directoryService{
		db:         db,
		catalog:    catalog,
		institutes: institutes,
		students:   students,
	}
}

func (s *directoryService) RegisterInstitute(ctx context.Context, name string) (*models.Institute, error) {
	key := models.NormalizeKey(name)
	if key == "" {
		return nil, fmt.Errorf("%w: institute name is empty", ErrInvalidRequest)
	}
	institute := &models.Institute{Name: strings.TrimSpace(name), NameKey: key}
	if err := s.institutes.Create(s.db.WithContext(ctx), institute); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("institute %q: %w", name, ErrInstituteExists)
		}
		return nil, err
	}
	logger.Info(ctx, "RegisterInstitute: registered institute", "institute_id", institute.ID, "name", institute.Name)
	return institute, nil
}

// RemoveInstitute deletes the tenant together with its inventory, students
// and loans. Catalog rows are shared and stay.
func (s *directoryService) RemoveInstitute(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.institutes.Delete(s.db.WithContext(ctx), id)
	if err != nil {
		logger.Error(ctx, "RemoveInstitute: failed to delete institute", err, "institute_id", id)
		return err
	}
	if !deleted {
		return fmt.Errorf("institute %s: %w", id, ErrNotFound)
	}
	logger.Info(ctx, "RemoveInstitute: removed institute", "institute_id", id)
	return nil
}

func (s *directoryService) ListInstitutes(ctx context.Context) ([]models.Institute, error) {
	return s.institutes.List(s.db.WithContext(ctx))
}

// RegisterStudent adds a borrower to the institute's roster, creating the
// department on first reference.
func (s *directoryService) RegisterStudent(ctx context.Context, instituteID uuid.UUID, spec StudentSpec) (*models.Student, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, fmt.Errorf("%w: student name is empty", ErrInvalidRequest)
	}
	if _, err := s.institutes.GetByID(s.db.WithContext(ctx), instituteID); err != nil {
		if repositories.IsNotFound(err) {
			return nil, fmt.Errorf("institute %s: %w", instituteID, ErrNotFound)
		}
		return nil, err
	}

	deptID, err := s.catalog.FindOrCreateDepartment(ctx, spec.Department)
	if err != nil {
		return nil, err
	}

	student := &models.Student{
		Name:         strings.TrimSpace(spec.Name),
		Year:         spec.Year,
		Address:      spec.Address,
		ContactNo:    spec.ContactNo,
		InstituteID:  instituteID,
		DepartmentID: deptID,
	}
	if err := s.students.Create(s.db.WithContext(ctx), student); err != nil {
		logger.Error(ctx, "RegisterStudent: failed to create student", err, "institute_id", instituteID)
		return nil, err
	}
	logger.Info(ctx, "RegisterStudent: registered student", "institute_id", instituteID, "student_id", student.ID)
	return student, nil
}

// LookupBorrower resolves a student only within the given institute.
func (s *directoryService) LookupBorrower(ctx context.Context, instituteID, studentID uuid.UUID) (*models.Student, error) {
	return s.lookupBorrower(s.db.WithContext(ctx), instituteID, studentID)
}

func (s *directoryService) lookupBorrower(db *gorm.DB, instituteID, studentID uuid.UUID) (*models.Student, error) {
	student, err := s.students.GetInInstitute(db, instituteID, studentID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, fmt.Errorf("student %s: %w", studentID, ErrBorrowerNotFound)
		}
		return nil, err
	}
	return student, nil
}

func (s *directoryService) ListStudents(ctx context.Context, instituteID uuid.UUID) ([]models.Student, error) {
	return s.students.ListByInstitute(s.db.WithContext(ctx), instituteID)
}
