// Package importer bulk-loads catalog titles and stock from CSV.
//
// Each record is
//
//	name,edition,price,department,authors,copies
//
// where authors are separated by ';'. A first record whose name column is
// literally "name" is treated as a header and skipped. Empty edition and
// copies default to 1 and 0.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"lms/internal/logger"
	"lms/internal/services"
)

const columns = 6

// Row is one parsed CSV record.
type Row struct {
	Line   int
	Book   services.BookSpec
	Copies int
}

// RowError ties a failure to its CSV line.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

func (e RowError) Unwrap() error { return e.Err }

// Summary reports what an import did.
type Summary struct {
	Books    int
	Copies   int
	Failures []RowError
}

// Parse reads every record. Malformed records are reported as RowErrors
// alongside the rows that did parse.
func Parse(r io.Reader) ([]Row, []RowError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		rows     []Row
		failures []RowError
	)
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				failures = append(failures, RowError{Line: line, Err: err})
				continue
			}
			return nil, nil, err
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "name") {
			continue
		}
		row, err := parseRecord(rec)
		if err != nil {
			failures = append(failures, RowError{Line: line, Err: err})
			continue
		}
		row.Line = line
		rows = append(rows, row)
	}
	return rows, failures, nil
}

func parseRecord(rec []string) (Row, error) {
	if len(rec) != columns {
		return Row{}, fmt.Errorf("expected %d columns, got %d", columns, len(rec))
	}
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}

	edition := 1
	if rec[1] != "" {
		n, err := strconv.Atoi(rec[1])
		if err != nil {
			return Row{}, fmt.Errorf("edition %q: %w", rec[1], err)
		}
		edition = n
	}
	price, err := strconv.ParseFloat(rec[2], 64)
	if err != nil {
		return Row{}, fmt.Errorf("price %q: %w", rec[2], err)
	}
	copies := 0
	if rec[5] != "" {
		if copies, err = strconv.Atoi(rec[5]); err != nil {
			return Row{}, fmt.Errorf("copies %q: %w", rec[5], err)
		}
		if copies < 0 {
			return Row{}, fmt.Errorf("copies %d: %w", copies, services.ErrInvalidQuantity)
		}
	}

	var authors []string
	for _, a := range strings.Split(rec[4], ";") {
		if a = strings.TrimSpace(a); a != "" {
			authors = append(authors, a)
		}
	}

	return Row{
		Book: services.BookSpec{
			Name:       rec[0],
			Edition:    edition,
			Price:      price,
			Department: rec[3],
			Authors:    authors,
		},
		Copies: copies,
	}, nil
}

// Importer loads parsed rows into the catalog and one institute's stock.
type Importer struct {
	catalog   services.CatalogService
	inventory services.InventoryService
}

func New(catalog services.CatalogService, inventory services.InventoryService) *Importer {
	return &Importer{catalog: catalog, inventory: inventory}
}

// Import resolves each row's book and stocks its copies. Row-level failures
// are collected and do not stop the import; context cancellation does.
func (im *Importer) Import(ctx context.Context, instituteID uuid.UUID, rows []Row) (Summary, error) {
	var sum Summary
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		bookID, err := im.catalog.FindOrCreateBook(ctx, row.Book)
		if err != nil {
			sum.Failures = append(sum.Failures, RowError{Line: row.Line, Err: err})
			continue
		}
		sum.Books++
		if row.Copies == 0 {
			continue
		}
		if _, err := im.inventory.AddCopies(ctx, instituteID, bookID, row.Copies); err != nil {
			sum.Failures = append(sum.Failures, RowError{Line: row.Line, Err: err})
			continue
		}
		sum.Copies += row.Copies
	}
	logger.Info(ctx, "Import: finished",
		"institute_id", instituteID, "books", sum.Books, "copies", sum.Copies, "failures", len(sum.Failures))
	return sum, nil
}
