package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"lms/internal/database"
	"lms/internal/logger"
	"lms/internal/metrics"
	"lms/internal/models"
	"lms/internal/repositories"
)

var tracer = otel.Tracer("lms/services")

// FinePreview is what a return would charge if performed now.
type FinePreview struct {
	LoanID        uuid.UUID `json:"loan_id"`
	IssueDate     time.Time `json:"issue_date"`
	DaysHeld      int       `json:"days_held"`
	ProjectedFine int       `json:"projected_fine"`
}

// LendingService issues and returns books. Each mutating call is one
// transaction spanning the inventory counter and the loan row.
type LendingService interface {
	Issue(ctx context.Context, instituteID, bookID, studentID uuid.UUID) (*models.Loan, error)
	Return(ctx context.Context, instituteID, bookID, studentID uuid.UUID) (*models.Loan, error)
	PreviewReturn(ctx context.Context, instituteID, bookID, studentID uuid.UUID) (FinePreview, error)
	ActiveLoansFor(ctx context.Context, instituteID, studentID uuid.UUID) ([]models.Loan, error)
	HistoryFor(ctx context.Context, instituteID, studentID uuid.UUID) ([]models.Loan, error)
}

// LendingOptions tunes the fine policy and the clock. A nil Policy means
// DefaultFinePolicy; a non-nil zero policy charges no fines. A nil Location
// means UTC and a nil Now means time.Now.
type LendingOptions struct {
	Policy   *FinePolicy
	Location *time.Location
	Now      func() time.Time
}

type lendingService struct {
	db        *gorm.DB
	students  repositories.StudentRepository
	inventory repositories.InventoryRepository
	loans     repositories.LoanRepository
	policy    FinePolicy
	loc       *time.Location
	now       func() time.Time
}

func NewLendingService(
	db *gorm.DB,
	students repositories.StudentRepository,
	inventory repositories.InventoryRepository,
	loans repositories.LoanRepository,
	opts LendingOptions,
) LendingService {
	policy := DefaultFinePolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &lendingService{
		db:        db,
		students:  students,
		inventory: inventory,
		loans:     loans,
		policy:    policy,
		loc:       opts.Location,
		now:       opts.Now,
	}
}

func (s *lendingService) today() time.Time {
	return CalendarDay(s.now(), s.loc)
}

// Issue lends one copy of the book to the student.
//
// Steps (all in one transaction):
//  1. Resolve the student within the institute.
//  2. Reject a second active loan of the same book.
//  3. Reserve a copy (conditional decrement).
//  4. Create the ACTIVE loan dated today.
//
// A failure at any step rolls back the reservation with it.
func (s *lendingService) Issue(ctx context.Context, instituteID, bookID, studentID uuid.UUID) (*models.Loan, error) {
	ctx, span := tracer.Start(ctx, "LendingService.Issue", trace.WithAttributes(
		attribute.String("institute_id", instituteID.String()),
		attribute.String("book_id", bookID.String()),
		attribute.String("student_id", studentID.String()),
	))
	defer span.End()

	var issued *models.Loan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.students.GetInInstitute(tx, instituteID, studentID); err != nil {
			if repositories.IsNotFound(err) {
				return fmt.Errorf("student %s: %w", studentID, ErrBorrowerNotFound)
			}
			return err
		}

		existing, err := s.loans.FindActive(tx, instituteID, bookID, studentID)
		if err != nil && !repositories.IsNotFound(err) {
			return err
		}
		if existing != nil {
			return fmt.Errorf("loan %s: %w", existing.ID, ErrDuplicateLoan)
		}

		if err := s.inventory.Reserve(tx, instituteID, bookID); err != nil {
			if errors.Is(err, repositories.ErrUnavailable) {
				return fmt.Errorf("book %s: %w", bookID, ErrNoCopiesAvailable)
			}
			logger.Error(ctx, "Issue: failed to reserve copy", err, "book_id", bookID)
			return err
		}

		loan := &models.Loan{
			InstituteID: instituteID,
			BookID:      bookID,
			StudentID:   studentID,
			IssueDate:   s.today(),
			FineDue:     0,
			Status:      models.LoanStatusActive,
		}
		if err := s.loans.Create(tx, loan); err != nil {
			if database.IsUniqueViolation(err) {
				// A concurrent issue for the same pair committed first.
				return fmt.Errorf("book %s: %w", bookID, ErrDuplicateLoan)
			}
			logger.Error(ctx, "Issue: failed to create loan", err, "book_id", bookID, "student_id", studentID)
			return err
		}
		issued = loan
		return nil
	})
	if err != nil {
		s.recordOutcome(ctx, span, "issue", err)
		return nil, err
	}

	s.recordOutcome(ctx, span, "issue", nil)
	logger.Info(ctx, "Issue: loan created",
		"loan_id", issued.ID, "book_id", bookID, "student_id", studentID, "issue_date", issued.IssueDate.Format(time.DateOnly))
	return issued, nil
}

// Return closes the student's active loan of the book and puts the copy back
// on the shelf.
//
// Steps (all in one transaction):
//  1. Lock the ACTIVE loan.
//  2. Date the return today and compute the fine from whole days held.
//  3. Mark the loan RETURNED (guarded against a concurrent return).
//  4. Release the copy; a copy that cannot be released means the ledgers
//     disagree and the whole return is aborted.
func (s *lendingService) Return(ctx context.Context, instituteID, bookID, studentID uuid.UUID) (*models.Loan, error) {
	ctx, span := tracer.Start(ctx, "LendingService.Return", trace.WithAttributes(
		attribute.String("institute_id", instituteID.String()),
		attribute.String("book_id", bookID.String()),
		attribute.String("student_id", studentID.String()),
	))
	defer span.End()

	var returned *models.Loan
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loan, err := s.loans.FindActiveForUpdate(tx, instituteID, bookID, studentID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return fmt.Errorf("book %s, student %s: %w", bookID, studentID, ErrNoActiveLoan)
			}
			return err
		}

		returnDate := s.today()
		daysHeld := DaysHeld(loan.IssueDate, returnDate)
		fine := s.policy.Fine(daysHeld)

		ok, err := s.loans.MarkReturned(tx, loan.ID, returnDate, fine)
		if err != nil {
			logger.Error(ctx, "Return: failed to mark loan returned", err, "loan_id", loan.ID)
			return err
		}
		if !ok {
			return fmt.Errorf("loan %s: %w", loan.ID, ErrNoActiveLoan)
		}

		if err := s.inventory.Release(tx, instituteID, bookID); err != nil {
			if errors.Is(err, repositories.ErrNothingToRelease) {
				metrics.InternalConsistencyFailures.Inc()
				logger.Error(ctx, "Return: loan has no reserved copy to release", err,
					"loan_id", loan.ID, "book_id", bookID)
				return fmt.Errorf("release copy for loan %s: %w", loan.ID, ErrInternalConsistency)
			}
			logger.Error(ctx, "Return: failed to release copy", err, "loan_id", loan.ID)
			return err
		}

		reloaded, err := s.loans.GetByID(tx, loan.ID)
		if err != nil {
			return err
		}
		returned = reloaded
		return nil
	})
	if err != nil {
		s.recordOutcome(ctx, span, "return", err)
		return nil, err
	}

	s.recordOutcome(ctx, span, "return", nil)
	metrics.FinesAssessed.Add(float64(returned.FineDue))
	logger.Info(ctx, "Return: loan returned",
		"loan_id", returned.ID, "book_id", bookID, "student_id", studentID, "fine_due", returned.FineDue)
	return returned, nil
}

// PreviewReturn computes what Return would charge today without changing
// anything.
func (s *lendingService) PreviewReturn(ctx context.Context, instituteID, bookID, studentID uuid.UUID) (FinePreview, error) {
	loan, err := s.loans.FindActive(s.db.WithContext(ctx), instituteID, bookID, studentID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return FinePreview{}, fmt.Errorf("book %s, student %s: %w", bookID, studentID, ErrNoActiveLoan)
		}
		return FinePreview{}, err
	}
	daysHeld := DaysHeld(loan.IssueDate, s.today())
	return FinePreview{
		LoanID:        loan.ID,
		IssueDate:     loan.IssueDate,
		DaysHeld:      daysHeld,
		ProjectedFine: s.policy.Fine(daysHeld),
	}, nil
}

func (s *lendingService) ActiveLoansFor(ctx context.Context, instituteID, studentID uuid.UUID) ([]models.Loan, error) {
	return s.loans.ListActiveByStudent(s.db.WithContext(ctx), instituteID, studentID)
}

// HistoryFor lists returned loans, most recent return first.
func (s *lendingService) HistoryFor(ctx context.Context, instituteID, studentID uuid.UUID) ([]models.Loan, error) {
	return s.loans.ListReturnedByStudent(s.db.WithContext(ctx), instituteID, studentID)
}

func (s *lendingService) recordOutcome(ctx context.Context, span trace.Span, op string, err error) {
	code := ErrorCode(err)
	metrics.LendingOperations.WithLabelValues(op, code).Inc()
	if err == nil {
		return
	}
	span.SetAttributes(attribute.String("lending.rejection", code))
	if code == CodeInternal || code == CodeInternalConsistency {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	logger.Warn(ctx, fmt.Sprintf("%s: rejected", op), "reason", code, "error", err.Error())
}
