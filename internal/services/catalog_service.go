package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"lms/internal/cache"
	"lms/internal/database"
	"lms/internal/logger"
	"lms/internal/models"
	"lms/internal/repositories"
)

// maxCatalogAttempts bounds the insert-or-fetch loop. A lost insert race is
// resolved by the next fetch, so more than two rounds means something else
// is wrong.
const maxCatalogAttempts = 3

// BookSpec describes a title by its natural key plus the references resolved
// alongside it.
type BookSpec struct {
	Name       string
	Edition    int
	Price      float64
	Department string
	Authors    []string
}

// CatalogService resolves catalog entities by natural key, creating them on
// first reference. Lookups are case-insensitive and idempotent.
type CatalogService interface {
	FindOrCreateDepartment(ctx context.Context, name string) (uuid.UUID, error)
	FindOrCreateAuthor(ctx context.Context, name string) (uuid.UUID, error)
	FindOrCreateBook(ctx context.Context, spec BookSpec) (uuid.UUID, error)
	GetBook(ctx context.Context, id uuid.UUID) (*models.Book, error)
}

type catalogService struct {
	db      *gorm.DB
	catalog repositories.CatalogRepository
	keys    cache.KeyCache
	group   singleflight.Group
}

// NewCatalogService wires the catalog. keys may be nil.
func NewCatalogService(db *gorm.DB, catalog repositories.CatalogRepository, keys cache.KeyCache) CatalogService {
	if keys == nil {
		keys = cache.Noop{}
	}
	return &catalogService{db: db, catalog: catalog, keys: keys}
}

func (s *catalogService) FindOrCreateDepartment(ctx context.Context, name string) (uuid.UUID, error) {
	key := models.NormalizeKey(name)
	if key == "" {
		return uuid.Nil, fmt.Errorf("%w: department name is empty", ErrInvalidCatalogEntry)
	}
	return s.resolveCached(ctx, "dept|"+key, func(tx *gorm.DB) (uuid.UUID, error) {
		return s.departmentTx(tx, name)
	})
}

func (s *catalogService) FindOrCreateAuthor(ctx context.Context, name string) (uuid.UUID, error) {
	key := models.NormalizeKey(name)
	if key == "" {
		return uuid.Nil, fmt.Errorf("%w: author name is empty", ErrInvalidCatalogEntry)
	}
	return s.resolveCached(ctx, "author|"+key, func(tx *gorm.DB) (uuid.UUID, error) {
		return s.authorTx(tx, name)
	})
}

// FindOrCreateBook resolves the department and every author, then the book
// itself, in one transaction. Calling it again with the same (name, edition,
// price) returns the same id whatever the casing of the other fields.
func (s *catalogService) FindOrCreateBook(ctx context.Context, spec BookSpec) (uuid.UUID, error) {
	ctx, span := tracer.Start(ctx, "CatalogService.FindOrCreateBook")
	defer span.End()

	spec, err := normalizeBookSpec(spec)
	if err != nil {
		return uuid.Nil, err
	}
	cacheKey := bookCacheKey(spec)

	return s.resolveCached(ctx, cacheKey, func(tx *gorm.DB) (uuid.UUID, error) {
		deptID, err := s.departmentTx(tx, spec.Department)
		if err != nil {
			return uuid.Nil, err
		}
		authorIDs := make([]uuid.UUID, 0, len(spec.Authors))
		for _, name := range spec.Authors {
			id, err := s.authorTx(tx, name)
			if err != nil {
				return uuid.Nil, err
			}
			authorIDs = append(authorIDs, id)
		}

		key := models.NormalizeKey(spec.Name)
		created := false
		id, err := insertOrFetch(
			"book "+spec.Name,
			func() (uuid.UUID, error) {
				book, err := s.catalog.FindBookByNaturalKey(tx, key, spec.Edition, spec.Price)
				if err != nil {
					return uuid.Nil, err
				}
				return book.ID, nil
			},
			func() (uuid.UUID, bool, error) {
				book := &models.Book{
					Name:         strings.TrimSpace(spec.Name),
					NameKey:      key,
					Edition:      spec.Edition,
					Price:        spec.Price,
					DepartmentID: deptID,
				}
				ok, err := s.catalog.InsertBookIfAbsent(tx, book)
				created = ok
				return book.ID, ok, err
			},
		)
		if err != nil {
			return uuid.Nil, err
		}
		if created {
			if err := s.catalog.AttachAuthors(tx, id, authorIDs); err != nil {
				logger.Error(ctx, "FindOrCreateBook: failed to attach authors", err, "book_id", id)
				return uuid.Nil, err
			}
			logger.Info(ctx, "FindOrCreateBook: created book",
				"book_id", id, "name", spec.Name, "edition", spec.Edition, "price", spec.Price, "authors", len(authorIDs))
		}
		return id, nil
	})
}

func (s *catalogService) GetBook(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	book, err := s.catalog.GetBookByID(s.db.WithContext(ctx), id)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, fmt.Errorf("book %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return book, nil
}

// resolveCached collapses concurrent identical lookups, consults the key
// cache and otherwise runs resolve in a transaction. The id is cached only
// after the transaction commits. The shared work is detached from any single
// caller's cancellation; each caller still returns as soon as its own ctx is
// done.
func (s *catalogService) resolveCached(ctx context.Context, cacheKey string, resolve func(tx *gorm.DB) (uuid.UUID, error)) (uuid.UUID, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(cacheKey, func() (interface{}, error) {
		if id, ok, err := s.keys.Get(shared, cacheKey); err != nil {
			logger.Warn(shared, "catalog cache read failed", "key", cacheKey, "error", err.Error())
		} else if ok {
			return id, nil
		}

		var id uuid.UUID
		err := s.db.WithContext(shared).Transaction(func(tx *gorm.DB) error {
			var err error
			id, err = resolve(tx)
			return err
		})
		if err != nil {
			return uuid.Nil, err
		}

		if err := s.keys.Set(shared, cacheKey, id); err != nil {
			logger.Warn(shared, "catalog cache write failed", "key", cacheKey, "error", err.Error())
		}
		return id, nil
	})

	select {
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return uuid.Nil, res.Err
		}
		return res.Val.(uuid.UUID), nil
	}
}

func (s *catalogService) departmentTx(tx *gorm.DB, name string) (uuid.UUID, error) {
	key := models.NormalizeKey(name)
	return insertOrFetch(
		"department "+name,
		func() (uuid.UUID, error) {
			dept, err := s.catalog.FindDepartmentByKey(tx, key)
			if err != nil {
				return uuid.Nil, err
			}
			return dept.ID, nil
		},
		func() (uuid.UUID, bool, error) {
			dept := &models.Department{Name: strings.TrimSpace(name), NameKey: key}
			ok, err := s.catalog.InsertDepartmentIfAbsent(tx, dept)
			return dept.ID, ok, err
		},
	)
}

func (s *catalogService) authorTx(tx *gorm.DB, name string) (uuid.UUID, error) {
	key := models.NormalizeKey(name)
	return insertOrFetch(
		"author "+name,
		func() (uuid.UUID, error) {
			author, err := s.catalog.FindAuthorByKey(tx, key)
			if err != nil {
				return uuid.Nil, err
			}
			return author.ID, nil
		},
		func() (uuid.UUID, bool, error) {
			author := &models.Author{Name: strings.TrimSpace(name), NameKey: key}
			ok, err := s.catalog.InsertAuthorIfAbsent(tx, author)
			return author.ID, ok, err
		},
	)
}

// insertOrFetch returns the existing row's id, or inserts one. Inserts use
// ON CONFLICT DO NOTHING, so losing a race to a concurrent creator shows up
// as "not inserted" and the next fetch returns the winner.
func insertOrFetch(what string, fetch func() (uuid.UUID, error), insert func() (uuid.UUID, bool, error)) (uuid.UUID, error) {
	for attempt := 1; attempt <= maxCatalogAttempts; attempt++ {
		id, err := fetch()
		if err == nil {
			return id, nil
		}
		if !repositories.IsNotFound(err) {
			return uuid.Nil, err
		}

		id, inserted, err := insert()
		if err != nil && !database.IsUniqueViolation(err) {
			return uuid.Nil, err
		}
		if inserted {
			return id, nil
		}
	}
	return uuid.Nil, fmt.Errorf("resolve %s: gave up after %d attempts: %w", what, maxCatalogAttempts, errCatalogContention)
}

var errCatalogContention = errors.New("catalog insert kept conflicting")

func normalizeBookSpec(spec BookSpec) (BookSpec, error) {
	if models.NormalizeKey(spec.Name) == "" {
		return spec, fmt.Errorf("%w: book name is empty", ErrInvalidCatalogEntry)
	}
	if models.NormalizeKey(spec.Department) == "" {
		return spec, fmt.Errorf("%w: department name is empty", ErrInvalidCatalogEntry)
	}
	if spec.Edition == 0 {
		spec.Edition = 1
	}
	if spec.Edition < 0 {
		return spec, fmt.Errorf("%w: edition %d", ErrInvalidCatalogEntry, spec.Edition)
	}
	if spec.Price < 0 {
		return spec, fmt.Errorf("%w: price %v", ErrInvalidCatalogEntry, spec.Price)
	}

	seen := make(map[string]bool, len(spec.Authors))
	authors := make([]string, 0, len(spec.Authors))
	for _, name := range spec.Authors {
		key := models.NormalizeKey(name)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		authors = append(authors, strings.TrimSpace(name))
	}
	spec.Authors = authors
	return spec, nil
}

func bookCacheKey(spec BookSpec) string {
	return "book|" + models.NormalizeKey(spec.Name) +
		"|" + strconv.Itoa(spec.Edition) +
		"|" + strconv.FormatFloat(spec.Price, 'f', -1, 64)
}
