package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"lms/internal/logger"
	"lms/internal/metrics"
	"lms/internal/models"
	"lms/internal/repositories"
)

// RemoveResult reports what RemoveCopies did to the inventory row.
type RemoveResult struct {
	Remaining int  `json:"copies_available"`
	Deleted   bool `json:"deleted"`
}

// InventoryService is the per-institute copy ledger.
type InventoryService interface {
	AddCopies(ctx context.Context, instituteID, bookID uuid.UUID, count int) (int, error)
	RemoveCopies(ctx context.Context, instituteID, bookID uuid.UUID, count int) (RemoveResult, error)
	ListInventory(ctx context.Context, instituteID uuid.UUID) ([]models.InstituteBook, error)
}

type inventoryService struct {
	db         *gorm.DB
	catalog    repositories.CatalogRepository
	institutes repositories.InstituteRepository
	inventory  repositories.InventoryRepository
	loans      repositories.LoanRepository
}

func NewInventoryService(
	db *gorm.DB,
	catalog repositories.CatalogRepository,
	institutes repositories.InstituteRepository,
	inventory repositories.InventoryRepository,
	loans repositories.LoanRepository,
) InventoryService {
	return &inventoryService{
		db:         db,
		catalog:    catalog,
		institutes: institutes,
		inventory:  inventory,
		loans:      loans,
	}
}

// AddCopies stocks count more copies, creating the row on first stock.
// It returns the new number of copies on the shelf.
func (s *inventoryService) AddCopies(ctx context.Context, instituteID, bookID uuid.UUID, count int) (int, error) {
	ctx, span := tracer.Start(ctx, "InventoryService.AddCopies")
	defer span.End()

	if count <= 0 {
		return 0, fmt.Errorf("add %d copies: %w", count, ErrInvalidQuantity)
	}

	var total int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.institutes.GetByID(tx, instituteID); err != nil {
			if repositories.IsNotFound(err) {
				return fmt.Errorf("institute %s: %w", instituteID, ErrNotFound)
			}
			return err
		}
		if _, err := s.catalog.GetBookByID(tx, bookID); err != nil {
			if repositories.IsNotFound(err) {
				return fmt.Errorf("book %s: %w", bookID, ErrNotFound)
			}
			return err
		}

		row, err := s.inventory.Add(tx, instituteID, bookID, count)
		if err != nil {
			logger.Error(ctx, "AddCopies: failed to add copies", err, "book_id", bookID, "count", count)
			return err
		}
		total = row.CopiesAvailable
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.InventoryCopies.WithLabelValues("added").Add(float64(count))
	logger.Info(ctx, "AddCopies: stocked copies", "book_id", bookID, "count", count, "copies_available", total)
	return total, nil
}

// RemoveCopies takes count copies off the shelf for good. Copies on loan
// cannot be removed. Removing every shelved copy deletes the row, unless
// copies are still on loan: the row then stays at zero so their return has
// somewhere to land.
func (s *inventoryService) RemoveCopies(ctx context.Context, instituteID, bookID uuid.UUID, count int) (RemoveResult, error) {
	ctx, span := tracer.Start(ctx, "InventoryService.RemoveCopies")
	defer span.End()

	if count <= 0 {
		return RemoveResult{}, fmt.Errorf("remove %d copies: %w", count, ErrInvalidQuantity)
	}

	var result RemoveResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.inventory.GetForUpdate(tx, instituteID, bookID)
		if err != nil {
			if repositories.IsNotFound(err) {
				return fmt.Errorf("inventory for book %s: %w", bookID, ErrNotFound)
			}
			return err
		}
		if count > row.CopiesAvailable {
			logger.Warn(ctx, "RemoveCopies: not enough copies on the shelf",
				"book_id", bookID, "requested", count, "copies_available", row.CopiesAvailable)
			return fmt.Errorf("remove %d of %d copies: %w", count, row.CopiesAvailable, ErrInsufficientCopies)
		}

		onLoan := row.CopiesOwned - row.CopiesAvailable
		active, err := s.loans.CountActive(tx, instituteID, bookID)
		if err != nil {
			return err
		}
		if int64(onLoan) != active {
			metrics.InternalConsistencyFailures.Inc()
			logger.Error(ctx, "RemoveCopies: copies out disagree with active loans", ErrInternalConsistency,
				"book_id", bookID, "copies_out", onLoan, "active_loans", active)
			return fmt.Errorf("book %s has %d copies out but %d active loans: %w",
				bookID, onLoan, active, ErrInternalConsistency)
		}
		if count == row.CopiesAvailable && onLoan == 0 {
			if err := s.inventory.Delete(tx, instituteID, bookID); err != nil {
				logger.Error(ctx, "RemoveCopies: failed to delete inventory row", err, "book_id", bookID)
				return err
			}
			result = RemoveResult{Remaining: 0, Deleted: true}
			return nil
		}

		if err := s.inventory.Decrement(tx, instituteID, bookID, count); err != nil {
			if errors.Is(err, repositories.ErrNotEnoughCopies) {
				return fmt.Errorf("remove %d copies: %w", count, ErrInsufficientCopies)
			}
			logger.Error(ctx, "RemoveCopies: failed to decrement inventory", err, "book_id", bookID)
			return err
		}
		result = RemoveResult{Remaining: row.CopiesAvailable - count}
		return nil
	})
	if err != nil {
		return RemoveResult{}, err
	}

	metrics.InventoryCopies.WithLabelValues("removed").Add(float64(count))
	logger.Info(ctx, "RemoveCopies: removed copies",
		"book_id", bookID, "count", count, "copies_available", result.Remaining, "deleted", result.Deleted)
	return result, nil
}

func (s *inventoryService) ListInventory(ctx context.Context, instituteID uuid.UUID) ([]models.InstituteBook, error) {
	return s.inventory.ListByInstitute(s.db.WithContext(ctx), instituteID)
}
