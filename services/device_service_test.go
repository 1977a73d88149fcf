package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backend_inventory/models"
)

func strptr(s string) *string { return &s }

func TestDeviceService_CreateWithHolder(t *testing.T) {
	f := setupEngineTest(t, DefaultEngineOptions())
	ctx := context.Background()

	year := 2022
	price := decimal.RequireFromString("1299.90")
	view, err := f.devices.Create(ctx, models.KindMonitor, CreateDeviceRequest{
		DeviceAttributes: DeviceAttributes{
			Name:          strptr("Dell U2720Q"),
			Serial:        strptr(" MON-100 "),
			Manufacturer:  strptr("Dell"),
			ReleaseYear:   &year,
			PurchasePrice: &price,
		},
		AssignedTo: f.carol.Email,
		Reason:     "new hire",
	}, testActor)
	require.NoError(t, err)

	assert.Equal(t, "MON-100", view.Serial)
	assert.Equal(t, models.StatusPendingDocumentation, view.Status)
	require.Len(t, view.History, 1)
	assert.True(t, view.History[0].BelongsTo(f.carol.ID))
	assert.Equal(t, "new hire", view.History[0].Notes)
	assert.True(t, price.Equal(view.PurchasePrice))
	f.assertConsistent(t, models.KindMonitor, view.ID)
}

func TestDeviceService_CreateValidation(t *testing.T) {
	f := setupEngineTest(t, DefaultEngineOptions())
	ctx := context.Background()
	var validation *ValidationError

	_, err := f.devices.Create(ctx, models.KindLaptop, CreateDeviceRequest{
		DeviceAttributes: DeviceAttributes{Serial: strptr("X-1")},
	}, testActor)
	assert.ErrorAs(t, err, &validation)

	_, err = f.devices.Create(ctx, models.KindLaptop, CreateDeviceRequest{
		DeviceAttributes: DeviceAttributes{Name: strptr("No serial")},
	}, testActor)
	assert.ErrorAs(t, err, &validation)

	badYear := 1800
	_, err = f.devices.Create(ctx, models.KindLaptop, CreateDeviceRequest{
		DeviceAttributes: DeviceAttributes{Name: strptr("Old"), Serial: strptr("X-2"), ReleaseYear: &badYear},
	}, testActor)
	assert.ErrorAs(t, err, &validation)

	_, err = f.devices.Create(ctx, models.KindLaptop, CreateDeviceRequest{
		DeviceAttributes: DeviceAttributes{Name: strptr("Ghost"), Serial: strptr("X-3")},
		AssignedTo:       "ghost@example.com",
	}, testActor)
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestDeviceService_DuplicateSerialPerKind(t *testing.T) {
	f := setupEngineTest(t, DefaultEngineOptions())
	ctx := context.Background()

	f.createLaptop(t, "DUP-1")

	_, err := f.devices.Create(ctx, models.KindLaptop, CreateDeviceRequest{
		DeviceAttributes: DeviceAttributes{Name: strptr("Copy"), Serial: strptr("DUP-1")},
	}, testActor)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.True(t, conflict.Duplicate)

	// Тот же серийный номер у другого типа допустим
	_, err = f.devices.Create(ctx, models.KindPhone, CreateDeviceRequest{
		DeviceAttributes: DeviceAttributes{Name: strptr("Phone"), Serial: strptr("DUP-1")},
	}, testActor)
	assert.NoError(t, err)
}

func TestDeviceService_CreatePhoneWithNameAndSerialOnly(t *testing.T) {
	f := setupEngineTest(t, DefaultEngineOptions())

	view, err := f.devices.Create(context.Background(), models.KindPhone, CreateDeviceRequest{
		DeviceAttributes: DeviceAttributes{Name: strptr("Pixel"), Serial: strptr("PH-1")},
	}, testActor)
	require.NoError(t, err)
	assert.Equal(t, models.KindPhone, view.Kind)
	assert.Equal(t, models.StatusStandby, view.Status)
}

func TestDeviceService_UpdateUnknownHolderWritesNothing(t *testing.T) {
	f := setupEngineTest(t, DefaultEngineOptions())
	ctx := context.Background()
	laptop := f.createLaptop(t, "U-404")
	invalidations := f.cache.count(models.KindLaptop)

	_, err := f.devices.Update(ctx, models.KindLaptop, laptop.ID, UpdateDeviceRequest{
		DeviceAttributes: DeviceAttributes{Name: strptr("Renamed")},
		Assigned:         json.RawMessage(`["nobody@example.com"]`),
	}, testActor)
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)

	view, err := f.devices.Get(ctx, models.KindLaptop, laptop.ID)
	require.NoError(t, err)
	assert.Equal(t, laptop.Name, view.Name)
	assert.Equal(t, laptop.Version, view.Version)
	assert.Empty(t, view.History)
	assert.Equal(t, invalidations, f.cache.count(models.KindLaptop))
}

func TestDeviceService_UpdateAssignedAndStatus(t *testing.T) {
	f := setupEngineTest(t, DefaultEngineOptions())
	ctx := context.Background()
	laptop := f.createLaptop(t, "U-1")

	view, err := f.devices.Update(ctx, models.KindLaptop, laptop.ID, UpdateDeviceRequest{
		DeviceAttributes: DeviceAttributes{Model: strptr("X1 Carbon")},
		Assigned:         json.RawMessage(`["u-bob", {"externalId": "u-alice"}]`),
	}, testActor)
	require.NoError(t, err)
	assert.Equal(t, "X1 Carbon", view.Model)
	require.Len(t, view.History, 1)
	assert.True(t, view.History[0].BelongsTo(f.alice.ID))

	// Тот же держатель ничего не меняет
	view, err = f.devices.Update(ctx, models.KindLaptop, laptop.ID, UpdateDeviceRequest{
		Assigned: json.RawMessage(`["u-alice"]`),
	}, testActor)
	require.NoError(t, err)
	assert.Len(t, view.History, 1)

	// Active вычисляется и не может быть установлен
	_, err = f.devices.Update(ctx, models.KindLaptop, laptop.ID, UpdateDeviceRequest{Status: strptr("Active")}, testActor)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)

	_, err = f.devices.Update(ctx, models.KindLaptop, laptop.ID, UpdateDeviceRequest{Status: strptr("Broken")}, testActor)
	require.ErrorAs(t, err, &validation)

	view, err = f.devices.Update(ctx, models.KindLaptop, laptop.ID, UpdateDeviceRequest{
		Status:       strptr("Broken"),
		BrokenReason: strptr("water damage"),
	}, testActor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBroken, view.Status)
	assert.True(t, view.Holder.IsSet())

	view, err = f.devices.Update(ctx, models.KindLaptop, laptop.ID, UpdateDeviceRequest{Status: strptr("Standby")}, testActor)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingDocumentation, view.Status)

	// Пустой массив отзывает устройство
	view, err = f.devices.Update(ctx, models.KindLaptop, laptop.ID, UpdateDeviceRequest{
		Assigned: json.RawMessage(`[]`),
		Reason:   "offboarding",
	}, testActor)
	require.NoError(t, err)
	assert.False(t, view.Holder.IsSet())
	assert.Equal(t, models.StatusStandby, view.Status)
	assert.Equal(t, []string{"offboarding"}, []string(view.History[0].RevokedReason))

	_, err = f.devices.Update(ctx, models.KindLaptop, laptop.ID, UpdateDeviceRequest{
		Assigned: json.RawMessage(`"u-alice"`),
	}, testActor)
	require.ErrorAs(t, err, &validation)

	f.assertConsistent(t, models.KindLaptop, laptop.ID)
}

func TestDeviceService_SpecsValidatedBySchema(t *testing.T) {
	f := setupEngineTest(t, DefaultEngineOptions())
	f.devices.schemas = models.DefaultKindSchemas()
	ctx := context.Background()

	_, err := f.devices.Create(ctx, models.KindLaptop, CreateDeviceRequest{
		DeviceAttributes: DeviceAttributes{
			Name:   strptr("Spec"),
			Serial: strptr("S-1"),
			Specs:  map[string]interface{}{"unknown_field": "x"},
		},
	}, testActor)
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestDeviceService_Delete(t *testing.T) {
	f := setupEngineTest(t, DefaultEngineOptions())
	ctx := context.Background()
	laptop := f.createLaptop(t, "D-1")
	_, err := f.engine.Assign(ctx, models.KindLaptop, laptop.ID, f.alice.ExternalID, "", testActor)
	require.NoError(t, err)

	require.NoError(t, f.devices.Delete(ctx, models.KindLaptop, laptop.ID, testActor))

	_, err = f.devices.Get(ctx, models.KindLaptop, laptop.ID)
	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)

	var records int64
	f.db.Model(&models.AssignmentRecord{}).Where("device_id = ?", laptop.ID).Count(&records)
	assert.Equal(t, int64(0), records)

	err = f.devices.Delete(ctx, models.KindLaptop, laptop.ID, testActor)
	assert.ErrorAs(t, err, &notFound)
}

func TestParseUserRef(t *testing.T) {
	cases := []struct {
		in   interface{}
		want string
		ok   bool
	}{
		{"  u-1 ", "u-1", true},
		{float64(42), "42", true},
		{float64(1.5), "", false},
		{float64(-1), "", false},
		{map[string]interface{}{"email": "a@example.com"}, "a@example.com", true},
		{map[string]interface{}{"id": float64(7)}, "7", true},
		{map[string]interface{}{"name": "x"}, "", false},
		{true, "", false},
	}
	for _, tc := range cases {
		got, ok := ParseUserRef(tc.in)
		assert.Equal(t, tc.ok, ok, "%v", tc.in)
		assert.Equal(t, tc.want, got, "%v", tc.in)
	}
}
