package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LoanStatus string

const (
	LoanStatusActive   LoanStatus = "ACTIVE"
	LoanStatusReturned LoanStatus = "RETURNED"
)

// NormalizeKey is the case-insensitive comparison key used for every natural key.
func NormalizeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Institute is the tenant: the unit of inventory and borrower isolation.
type Institute struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"size:120;not null" json:"name"`
	NameKey   string    `gorm:"size:120;not null;uniqueIndex" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

type Department struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name    string    `gorm:"size:64;not null" json:"name"`
	NameKey string    `gorm:"size:64;not null;uniqueIndex" json:"-"`
}

type Author struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name    string    `gorm:"size:120;not null" json:"name"`
	NameKey string    `gorm:"size:120;not null;uniqueIndex" json:"-"`
}

// Book is a catalog title shared by every institute. Two institutes holding
// the same (name, edition, price) point at the same row.
type Book struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string     `gorm:"size:255;not null" json:"name"`
	NameKey      string     `gorm:"size:255;not null;uniqueIndex:idx_books_natural_key,priority:1" json:"-"`
	Edition      int        `gorm:"not null;default:1;uniqueIndex:idx_books_natural_key,priority:2" json:"edition"`
	Price        float64    `gorm:"not null;uniqueIndex:idx_books_natural_key,priority:3" json:"price"`
	DepartmentID uuid.UUID  `gorm:"type:uuid;not null;index" json:"department_id"`
	Department   Department `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"department"`
	Authors      []Author   `gorm:"many2many:author_books;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"authors"`
}

// InstituteBook is the per-tenant copy count for a catalog book.
// CopiesOwned is the running sum of adds minus removes; CopiesAvailable is
// what is left after subtracting copies on loan.
type InstituteBook struct {
	InstituteID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"institute_id"`
	Institute       Institute `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	BookID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"book_id"`
	Book            Book      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"book"`
	CopiesAvailable int       `gorm:"not null;check:chk_institute_books_available,copies_available >= 0" json:"copies_available"`
	CopiesOwned     int       `gorm:"not null;check:chk_institute_books_owned,copies_owned >= copies_available" json:"copies_owned"`
}

// Student is a borrower. Students belong to exactly one institute.
type Student struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string     `gorm:"size:120;not null" json:"name"`
	Year         int        `gorm:"not null" json:"year"`
	Address      string     `gorm:"size:255;not null" json:"address"`
	ContactNo    string     `gorm:"size:20;not null" json:"contact_no"`
	InstituteID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"institute_id"`
	Institute    Institute  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	DepartmentID uuid.UUID  `gorm:"type:uuid;not null;index" json:"department_id"`
	Department   Department `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
}

// Loan is one issue-to-return lifecycle. At most one ACTIVE loan may exist
// per (book, student); see database.Migrate for the partial unique index.
type Loan struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	InstituteID uuid.UUID  `gorm:"type:uuid;not null;index" json:"institute_id"`
	Institute   Institute  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	BookID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"book_id"`
	Book        Book       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	StudentID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"student_id"`
	Student     Student    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	IssueDate   time.Time  `gorm:"type:date;not null" json:"issue_date"`
	ReturnDate  *time.Time `gorm:"type:date" json:"return_date"`
	FineDue     int        `gorm:"not null;default:0;check:chk_loans_fine,fine_due >= 0" json:"fine_due"`
	Status      LoanStatus `gorm:"size:16;not null;index" json:"status"`
}

func (m *Institute) BeforeCreate(*gorm.DB) error  { return assignID(&m.ID) }
func (m *Department) BeforeCreate(*gorm.DB) error { return assignID(&m.ID) }
func (m *Author) BeforeCreate(*gorm.DB) error     { return assignID(&m.ID) }
func (m *Book) BeforeCreate(*gorm.DB) error       { return assignID(&m.ID) }
func (m *Student) BeforeCreate(*gorm.DB) error    { return assignID(&m.ID) }
func (m *Loan) BeforeCreate(*gorm.DB) error       { return assignID(&m.ID) }

func assignID(id *uuid.UUID) error {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	return nil
}

// All lists every model in migration order.
func All() []interface{} {
	return []interface{}{
		&Institute{},
		&Department{},
		&Author{},
		&Book{},
		&InstituteBook{},
		&Student{},
		&Loan{},
	}
}
