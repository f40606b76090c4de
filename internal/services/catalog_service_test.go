package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"lms/internal/cache"
	"lms/internal/models"
	"lms/internal/repositories"
	"lms/internal/services"
)

func goBook() services.BookSpec {
	return services.BookSpec{
		Name:       "The Go Programming Language",
		Edition:    1,
		Price:      450,
		Department: "Computer Science",
		Authors:    []string{"Alan Donovan", "Brian Kernighan"},
	}
}

func Test_FindOrCreateBook_Idempotent(t *testing.T) {
	f := newFixture(t)

	first, err := f.catalog.FindOrCreateBook(f.ctx, goBook())
	require.NoError(t, err)

	again := goBook()
	again.Name = "  THE GO programming language "
	again.Department = "computer science"
	again.Authors = []string{"brian kernighan", "ALAN DONOVAN"}
	second, err := f.catalog.FindOrCreateBook(f.ctx, again)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	var books, authors, depts int64
	require.NoError(t, f.db.Model(&models.Book{}).Count(&books).Error)
	require.NoError(t, f.db.Model(&models.Author{}).Count(&authors).Error)
	require.NoError(t, f.db.Model(&models.Department{}).Count(&depts).Error)
	assert.Equal(t, int64(1), books)
	assert.Equal(t, int64(2), authors)
	assert.Equal(t, int64(1), depts)

	book, err := f.catalog.GetBook(f.ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "The Go Programming Language", book.Name)
	assert.Equal(t, "Computer Science", book.Department.Name)
	require.Len(t, book.Authors, 2)
	assert.Equal(t, "Alan Donovan", book.Authors[0].Name)
}

func Test_FindOrCreateBook_NaturalKeyDistinguishesEditionAndPrice(t *testing.T) {
	f := newFixture(t)

	base, err := f.catalog.FindOrCreateBook(f.ctx, goBook())
	require.NoError(t, err)

	second := goBook()
	second.Edition = 2
	secondID, err := f.catalog.FindOrCreateBook(f.ctx, second)
	require.NoError(t, err)
	assert.NotEqual(t, base, secondID)

	pricier := goBook()
	pricier.Price = 499.5
	pricierID, err := f.catalog.FindOrCreateBook(f.ctx, pricier)
	require.NoError(t, err)
	assert.NotEqual(t, base, pricierID)

	zeroEdition := goBook()
	zeroEdition.Edition = 0
	zeroID, err := f.catalog.FindOrCreateBook(f.ctx, zeroEdition)
	require.NoError(t, err)
	assert.Equal(t, base, zeroID, "edition 0 is read as the first edition")
}

func Test_FindOrCreateBook_InvalidEntries(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(*services.BookSpec)
	}{
		{name: "empty name", mutate: func(s *services.BookSpec) { s.Name = "  " }},
		{name: "empty department", mutate: func(s *services.BookSpec) { s.Department = "" }},
		{name: "negative edition", mutate: func(s *services.BookSpec) { s.Edition = -1 }},
		{name: "negative price", mutate: func(s *services.BookSpec) { s.Price = -10 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := goBook()
			tt.mutate(&spec)
			_, err := f.catalog.FindOrCreateBook(f.ctx, spec)
			assert.ErrorIs(t, err, services.ErrInvalidCatalogEntry)
		})
	}
}

func Test_FindOrCreateDepartment_CaseInsensitive(t *testing.T) {
	f := newFixture(t)

	a, err := f.catalog.FindOrCreateDepartment(f.ctx, "Physics")
	require.NoError(t, err)
	b, err := f.catalog.FindOrCreateDepartment(f.ctx, " PHYSICS ")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = f.catalog.FindOrCreateAuthor(f.ctx, "")
	assert.ErrorIs(t, err, services.ErrInvalidCatalogEntry)
}

func Test_GetBook_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.catalog.GetBook(f.ctx, uuid.New())
	assert.ErrorIs(t, err, services.ErrNotFound)
}

// Separate service instances do not share a singleflight group, so the
// racing inserts reach the database.
func Test_FindOrCreateBook_ConcurrentCallersConverge(t *testing.T) {
	f := newFixture(t)

	const callers = 6
	ids := make([]uuid.UUID, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		i := i
		svc := services.NewCatalogService(f.db, repositories.NewCatalogRepository(f.db), nil)
		g.Go(func() error {
			id, err := svc.FindOrCreateBook(context.Background(), goBook())
			ids[i] = id
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
	var books int64
	require.NoError(t, f.db.Model(&models.Book{}).Count(&books).Error)
	assert.Equal(t, int64(1), books)
}

func Test_FindOrCreateBook_UsesKeyCache(t *testing.T) {
	f := newFixture(t)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	keys := cache.NewRedisKeyCache(rdb, "lms:test:", 0)
	svc := services.NewCatalogService(f.db, repositories.NewCatalogRepository(f.db), keys)

	id, err := svc.FindOrCreateBook(f.ctx, goBook())
	require.NoError(t, err)
	assert.NotEmpty(t, mr.Keys(), "resolved id is cached after commit")

	again, err := svc.FindOrCreateBook(f.ctx, goBook())
	require.NoError(t, err)
	assert.Equal(t, id, again)

	// Cache outage falls back to the database.
	mr.Close()
	third, err := svc.FindOrCreateBook(f.ctx, goBook())
	require.NoError(t, err)
	assert.Equal(t, id, third)
}

// gatedKeys is a KeyCache whose reads block until the gate opens. It reports
// every read as a miss so the lookup falls through to the database.
type gatedKeys struct {
	entered chan struct{}
	once    sync.Once
	gate    chan struct{}
}

func newGatedKeys() *gatedKeys {
	return &gatedKeys{entered: make(chan struct{}), gate: make(chan struct{})}
}

func (g *gatedKeys) Get(ctx context.Context, _ string) (uuid.UUID, bool, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.gate:
		return uuid.Nil, false, nil
	case <-ctx.Done():
		return uuid.Nil, false, ctx.Err()
	}
}

func (g *gatedKeys) Set(context.Context, string, uuid.UUID) error { return nil }

func Test_FindOrCreateBook_CancelledCallerDoesNotFailOthers(t *testing.T) {
	f := newFixture(t)
	keys := newGatedKeys()
	svc := services.NewCatalogService(f.db, repositories.NewCatalogRepository(f.db), keys)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	errA := make(chan error, 1)
	go func() {
		_, err := svc.FindOrCreateBook(ctxA, goBook())
		errA <- err
	}()
	<-keys.entered

	type result struct {
		id  uuid.UUID
		err error
	}
	resB := make(chan result, 1)
	go func() {
		id, err := svc.FindOrCreateBook(context.Background(), goBook())
		resB <- result{id, err}
	}()
	// Let B join the in-flight lookup before A goes away.
	time.Sleep(50 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled, "cancelled caller returns promptly")
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled caller did not return")
	}
	close(keys.gate)

	var b result
	select {
	case b = <-resB:
	case <-time.After(10 * time.Second):
		t.Fatal("live caller did not return")
	}
	require.NoError(t, b.err)
	assert.NotEqual(t, uuid.Nil, b.id)

	again, err := f.catalog.FindOrCreateBook(f.ctx, goBook())
	require.NoError(t, err)
	assert.Equal(t, b.id, again)
}
