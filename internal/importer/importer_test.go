package importer_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lms/internal/importer"
	"lms/internal/repositories"
	"lms/internal/services"
	"lms/internal/testutil"
)

const sample = `name,edition,price,department,authors,copies
The Go Programming Language,1,450,CS,Alan Donovan; Brian Kernighan,3
Signals and Systems,,300,ECE,Oppenheim,
the go programming language,1,450,cs,brian kernighan,2
Broken Row,one,100,CS,Someone,1
Short Row,1,100
`

func TestParse(t *testing.T) {
	rows, failures, err := importer.Parse(strings.NewReader(sample))
	require.NoError(t, err)

	require.Len(t, rows, 3)
	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, []string{"Alan Donovan", "Brian Kernighan"}, rows[0].Book.Authors)
	assert.Equal(t, 3, rows[0].Copies)
	assert.Equal(t, 1, rows[1].Book.Edition, "empty edition defaults to 1")
	assert.Equal(t, 0, rows[1].Copies)

	require.Len(t, failures, 2)
	assert.Equal(t, 5, failures[0].Line)
	assert.Equal(t, 6, failures[1].Line)
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	catalogRepo := repositories.NewCatalogRepository(db)
	instituteRepo := repositories.NewInstituteRepository(db)
	catalog := services.NewCatalogService(db, catalogRepo, nil)
	inventory := services.NewInventoryService(db, catalogRepo, instituteRepo, repositories.NewInventoryRepository(db), repositories.NewLoanRepository(db))
	directory := services.NewDirectoryService(db, catalog, instituteRepo, repositories.NewStudentRepository(db))

	inst, err := directory.RegisterInstitute(ctx, "Import College")
	require.NoError(t, err)

	rows, _, err := importer.Parse(strings.NewReader(sample))
	require.NoError(t, err)

	sum, err := importer.New(catalog, inventory).Import(ctx, inst.ID, rows)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Books)
	assert.Equal(t, 5, sum.Copies)
	assert.Empty(t, sum.Failures)

	stock, err := inventory.ListInventory(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, stock, 1, "the case-variant row resolves to the same title")
	assert.Equal(t, 5, stock[0].CopiesAvailable)
}

func TestImport_UnknownInstitute(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	catalogRepo := repositories.NewCatalogRepository(db)
	catalog := services.NewCatalogService(db, catalogRepo, nil)
	inventory := services.NewInventoryService(db, catalogRepo, repositories.NewInstituteRepository(db),
		repositories.NewInventoryRepository(db), repositories.NewLoanRepository(db))

	rows, _, err := importer.Parse(strings.NewReader(sample))
	require.NoError(t, err)

	sum, err := importer.New(catalog, inventory).Import(ctx, uuid.New(), rows)
	require.NoError(t, err)
	require.Len(t, sum.Failures, 2)
	assert.ErrorIs(t, sum.Failures[0], services.ErrNotFound)
}
