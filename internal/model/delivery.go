package model

import (
	"database/sql"
	"time"
)

// DeliveryRow is the stored delivery record. It is the only mutable row in
// the data model; locations and ledger entries are append-only.
type DeliveryRow struct {
	ID                 string
	TrackingNumber     string
	SenderAddress      string
	RecipientName      string
	Origin             string
	Destination        string
	Status             DeliveryStatus
	TransactionHash    string
	BlockNumber        sql.NullInt64
	PackageWeight      sql.NullString
	PackageDimensions  sql.NullString
	PackageDescription sql.NullString
	EstimatedDelivery  time.Time
	CreatedBy          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// LocationRow is one stored location update. Coordinates stay as text until
// aggregation so a malformed value degrades to zero instead of failing the
// scan.
type LocationRow struct {
	ID              string
	DeliveryID      string
	Latitude        sql.NullString
	Longitude       sql.NullString
	Address         string
	TransactionHash string
	CreatedAt       time.Time
}

// Ledger entry types.
const (
	TxTypeCreate         = "create"
	TxTypeStatusUpdate   = "status_update"
	TxTypeLocationUpdate = "location_update"
)

// Ledger confirmation statuses.
const (
	TxStatusPending   = "pending"
	TxStatusConfirmed = "confirmed"
	TxStatusFailed    = "failed"
)

// TransactionRecord is one immutable ledger entry documenting a mutation
// and its provenance hash. TrackingNumber is joined in for display and
// search and is empty on rows read outside the list endpoint.
type TransactionRecord struct {
	ID              string    `json:"id"`
	DeliveryID      string    `json:"delivery_id"`
	TrackingNumber  string    `json:"tracking_number,omitempty"`
	TransactionHash string    `json:"transaction_hash"`
	Type            string    `json:"transaction_type"`
	BlockNumber     *int64    `json:"block_number,omitempty"`
	FromAddress     string    `json:"from_address"`
	GasUsed         string    `json:"gas_used,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// Location is one point of the delivery's journey as the UI consumes it.
// Timestamps are unix milliseconds.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
	Timestamp int64   `json:"timestamp"`
}

// PackageDetails describes the parcel itself.
type PackageDetails struct {
	Weight      string `json:"weight"`
	Dimensions  string `json:"dimensions"`
	Description string `json:"description"`
}

// Delivery is the aggregate view assembled from a record, its location
// history and its transaction log. It is what every read path returns.
type Delivery struct {
	ID                string         `json:"id"`
	TrackingNumber    string         `json:"tracking_number"`
	Sender            string         `json:"sender"`
	Recipient         string         `json:"recipient"`
	Origin            string         `json:"origin"`
	Destination       string         `json:"destination"`
	Status            DeliveryStatus `json:"status"`
	CurrentLocation   Location       `json:"current_location"`
	LocationHistory   []Location     `json:"location_history"`
	TransactionHash   string         `json:"transaction_hash"`
	BlockNumber       *int64         `json:"block_number,omitempty"`
	CreatedAt         int64          `json:"created_at"`
	EstimatedDelivery int64          `json:"estimated_delivery"`
	PackageDetails    PackageDetails `json:"package_details"`
}

// Request models

type CreateDeliveryRequest struct {
	Recipient   string `json:"recipient"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Weight      string `json:"weight"`
	Dimensions  string `json:"dimensions"`
	Description string `json:"description"`
}

// AddLocationRequest carries coordinates as strings; absent or unparseable
// values default to zero and never block the write.
type AddLocationRequest struct {
	Address   string `json:"address"`
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// TransactionFilter narrows the ledger listing. Empty fields match all.
// Search matches hash, delivery id and tracking number, case-insensitive.
type TransactionFilter struct {
	Type   string
	Status string
	Search string
}
