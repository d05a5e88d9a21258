package aggregate

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaintrack/tracking-service/internal/model"
)

func testRecord() *model.DeliveryRow {
	created := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return &model.DeliveryRow{
		ID:                "d-1",
		TrackingNumber:    "TRK1001234567",
		SenderAddress:     "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb",
		RecipientName:     "John Doe",
		Origin:            "New York, NY, USA",
		Destination:       "Los Angeles, CA, USA",
		Status:            model.StatusPending,
		TransactionHash:   "0xrecordhash",
		BlockNumber:       sql.NullInt64{Int64: 100, Valid: true},
		EstimatedDelivery: created.Add(72 * time.Hour),
		CreatedAt:         created,
		UpdatedAt:         created,
	}
}

func TestAggregateEmptyInputs(t *testing.T) {
	rec := testRecord()

	view := Aggregate(rec, nil, nil)
	require.NotNil(t, view)

	assert.Equal(t, rec.Origin, view.CurrentLocation.Address)
	assert.Equal(t, rec.CreatedAt.UnixMilli(), view.CurrentLocation.Timestamp)
	assert.Empty(t, view.LocationHistory)
	assert.Equal(t, rec.TransactionHash, view.TransactionHash)
	require.NotNil(t, view.BlockNumber)
	assert.Equal(t, int64(100), *view.BlockNumber)
}

func TestAggregateCurrentLocationIsLast(t *testing.T) {
	rec := testRecord()
	locs := []model.LocationRow{
		{Address: "New York, NY, USA", Latitude: sql.NullString{String: "40.7128", Valid: true}, Longitude: sql.NullString{String: "-74.0060", Valid: true}, CreatedAt: rec.CreatedAt},
		{Address: "Denver, CO, USA", Latitude: sql.NullString{String: "39.7392", Valid: true}, Longitude: sql.NullString{String: "-104.9903", Valid: true}, CreatedAt: rec.CreatedAt.Add(time.Hour)},
	}

	view := Aggregate(rec, locs, nil)

	require.Len(t, view.LocationHistory, 2)
	assert.Equal(t, "Denver, CO, USA", view.CurrentLocation.Address)
	assert.InDelta(t, 39.7392, view.CurrentLocation.Latitude, 1e-9)
	assert.Equal(t, view.LocationHistory[1], view.CurrentLocation)
}

func TestAggregateCoercesBadCoordinates(t *testing.T) {
	rec := testRecord()
	locs := []model.LocationRow{
		{Address: "somewhere", Latitude: sql.NullString{String: "not-a-number", Valid: true}, CreatedAt: rec.CreatedAt},
		{Address: "elsewhere", CreatedAt: rec.CreatedAt.Add(time.Minute)},
	}

	view := Aggregate(rec, locs, nil)

	assert.Zero(t, view.LocationHistory[0].Latitude)
	assert.Zero(t, view.LocationHistory[0].Longitude)
	assert.Zero(t, view.LocationHistory[1].Latitude)
}

func TestAggregateCreationTransactionSourcing(t *testing.T) {
	rec := testRecord()
	block := int64(18234567)
	txs := []model.TransactionRecord{
		{Type: model.TxTypeStatusUpdate, TransactionHash: "0xlater", CreatedAt: rec.CreatedAt.Add(time.Hour)},
		{Type: model.TxTypeCreate, TransactionHash: "0xcreatehash", BlockNumber: &block, CreatedAt: rec.CreatedAt},
	}

	view := Aggregate(rec, nil, txs)

	// Creation transaction wins over both the record columns and any
	// later ledger entries.
	assert.Equal(t, "0xcreatehash", view.TransactionHash)
	require.NotNil(t, view.BlockNumber)
	assert.Equal(t, block, *view.BlockNumber)
}

func TestAggregateCreationTransactionPartialFallback(t *testing.T) {
	rec := testRecord()
	txs := []model.TransactionRecord{
		{Type: model.TxTypeCreate, TransactionHash: "", BlockNumber: nil},
	}

	view := Aggregate(rec, nil, txs)

	assert.Equal(t, rec.TransactionHash, view.TransactionHash)
	require.NotNil(t, view.BlockNumber)
	assert.Equal(t, rec.BlockNumber.Int64, *view.BlockNumber)
}

func TestAggregateDoesNotMutateInputs(t *testing.T) {
	rec := testRecord()
	locs := []model.LocationRow{
		{Address: "New York, NY, USA", CreatedAt: rec.CreatedAt},
	}
	txs := []model.TransactionRecord{
		{Type: model.TxTypeCreate, TransactionHash: "0xcreatehash", CreatedAt: rec.CreatedAt},
	}
	recCopy := *rec
	locsCopy := append([]model.LocationRow(nil), locs...)
	txsCopy := append([]model.TransactionRecord(nil), txs...)

	first := Aggregate(rec, locs, txs)
	second := Aggregate(rec, locs, txs)

	assert.Equal(t, recCopy, *rec)
	assert.Equal(t, locsCopy, locs)
	assert.Equal(t, txsCopy, txs)
	assert.Equal(t, first, second)
}

func TestAggregatePreservesEstimatedDelivery(t *testing.T) {
	rec := testRecord()
	// Stored value wins even when it precedes creation.
	rec.EstimatedDelivery = rec.CreatedAt.Add(-time.Hour)

	view := Aggregate(rec, nil, nil)
	assert.Equal(t, rec.EstimatedDelivery.UnixMilli(), view.EstimatedDelivery)
}
