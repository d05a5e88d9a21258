// Package aggregate assembles the denormalized delivery view consumed by
// every read path.
package aggregate

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/chaintrack/tracking-service/internal/model"
)

// Aggregate merges a delivery record, its location history and its ledger
// entries into a single view. It is a pure transform: inputs are never
// mutated, malformed values degrade instead of failing, and a partially
// written row still renders.
//
// The location slice is assumed insertion-ordered, which matches
// chronological order because the store is append-only. The view's
// transaction hash and block number come from the creation ledger entry,
// falling back to the columns stored on the record itself.
func Aggregate(record *model.DeliveryRow, locations []model.LocationRow, transactions []model.TransactionRecord) *model.Delivery {
	history := make([]model.Location, 0, len(locations))
	for _, row := range locations {
		history = append(history, model.Location{
			Latitude:  coerceCoord(row.Latitude),
			Longitude: coerceCoord(row.Longitude),
			Address:   row.Address,
			Timestamp: row.CreatedAt.UnixMilli(),
		})
	}

	var current model.Location
	if len(history) > 0 {
		current = history[len(history)-1]
	} else {
		// A record inserted without its seed location still renders at
		// the origin.
		current = model.Location{
			Address:   record.Origin,
			Timestamp: record.CreatedAt.UnixMilli(),
		}
	}

	hash := record.TransactionHash
	var block *int64
	if record.BlockNumber.Valid {
		n := record.BlockNumber.Int64
		block = &n
	}
	for _, tx := range transactions {
		if tx.Type != model.TxTypeCreate {
			continue
		}
		if tx.TransactionHash != "" {
			hash = tx.TransactionHash
		}
		if tx.BlockNumber != nil {
			n := *tx.BlockNumber
			block = &n
		}
		break
	}

	return &model.Delivery{
		ID:              record.ID,
		TrackingNumber:  record.TrackingNumber,
		Sender:          record.SenderAddress,
		Recipient:       record.RecipientName,
		Origin:          record.Origin,
		Destination:     record.Destination,
		Status:          record.Status,
		CurrentLocation: current,
		LocationHistory: history,
		TransactionHash: hash,
		BlockNumber:     block,
		CreatedAt:       record.CreatedAt.UnixMilli(),
		// Preserved as stored, even when it precedes creation.
		EstimatedDelivery: record.EstimatedDelivery.UnixMilli(),
		PackageDetails: model.PackageDetails{
			Weight:      record.PackageWeight.String,
			Dimensions:  record.PackageDimensions.String,
			Description: record.PackageDescription.String,
		},
	}
}

// coerceCoord parses a stored coordinate, degrading missing or non-numeric
// values to zero.
func coerceCoord(v sql.NullString) float64 {
	if !v.Valid {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v.String), 64)
	if err != nil {
		return 0
	}
	return f
}
