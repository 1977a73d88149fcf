package services

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"backend_inventory/models"
)

func newExportService(f *engineFixture) *ExportService {
	listing := NewListingService(f.db, f.cache, 0, nil)
	return NewExportService(listing, f.devices, nil)
}

func TestExportService_ExportListing(t *testing.T) {
	f := setupEngineTest(t, DefaultEngineOptions())
	ctx := context.Background()
	export := newExportService(f)

	laptop := f.createLaptop(t, "E-1")
	f.createLaptop(t, "E-2")
	_, err := f.engine.Assign(ctx, models.KindLaptop, laptop.ID, f.alice.ExternalID, "", testActor)
	require.NoError(t, err)

	data, err := export.ExportListing(ctx, models.KindLaptop, ListQuery{})
	require.NoError(t, err)

	file, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer file.Close()

	rows, err := file.GetRows(models.KindLaptop.Plural())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, listingHeaders[0], rows[0][0])
	assert.Equal(t, "E-1", rows[1][1])
	assert.Equal(t, string(models.StatusPendingDocumentation), rows[1][7])
	assert.Equal(t, "Alice Smith", rows[1][8])

	// Выгрузка учитывает фильтры
	data, err = export.ExportListing(ctx, models.KindLaptop, ListQuery{Status: "Standby"})
	require.NoError(t, err)
	file, err = excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	rows, err = file.GetRows(models.KindLaptop.Plural())
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestExportService_HandoverAct(t *testing.T) {
	f := setupEngineTest(t, DefaultEngineOptions())
	ctx := context.Background()
	export := newExportService(f)
	laptop := f.createLaptop(t, "H-1")

	_, err := export.HandoverAct(ctx, models.KindLaptop, laptop.ID)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)

	_, err = f.engine.Assign(ctx, models.KindLaptop, laptop.ID, f.bob.ExternalID, "replacement", testActor)
	require.NoError(t, err)

	pdf, err := export.HandoverAct(ctx, models.KindLaptop, laptop.ID)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	_, err = export.HandoverAct(ctx, models.KindLaptop, 9999)
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}
