package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // side-effect import: registers "postgres" driver for database/sql

	"github.com/chaintrack/tracking-service/internal/apperr"
	"github.com/chaintrack/tracking-service/internal/config"
	"github.com/chaintrack/tracking-service/internal/model"
)

// Store covers the three per-delivery tables: the mutable record, the
// append-only location history and the append-only transaction ledger.
// Lookups that find nothing return nil without an error; callers decide
// whether that is exceptional.
type Store interface {
	CreateDelivery(ctx context.Context, row *model.DeliveryRow, seed model.LocationRow, ledger model.TransactionRecord) error
	UpdateDeliveryStatus(ctx context.Context, id string, status model.DeliveryStatus, ledger model.TransactionRecord) error
	AppendLocation(ctx context.Context, loc model.LocationRow, ledger model.TransactionRecord) error

	GetDeliveryByID(ctx context.Context, id string) (*model.DeliveryRow, error)
	GetDeliveryByTracking(ctx context.Context, trackingNumber string) (*model.DeliveryRow, error)
	ListRecentDeliveries(ctx context.Context, limit int) ([]*model.DeliveryRow, error)
	ListLocations(ctx context.Context, deliveryID string) ([]model.LocationRow, error)
	ListTransactionsByDelivery(ctx context.Context, deliveryID string) ([]model.TransactionRecord, error)
	ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.TransactionRecord, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing handle; used by tests.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const deliveryColumns = `
	id, tracking_number, sender_address, recipient_name, origin, destination,
	status, transaction_hash, block_number, package_weight, package_dimensions,
	package_description, estimated_delivery, created_by, created_at, updated_at`

// CreateDelivery writes the record, its seed location and the creation
// ledger entry as one transaction so a failed sub-write leaves nothing
// behind.
func (s *PostgresStore) CreateDelivery(ctx context.Context, row *model.DeliveryRow, seed model.LocationRow, ledger model.TransactionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.CodeStore, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO deliveries (` + deliveryColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err = tx.ExecContext(ctx, query,
		row.ID, row.TrackingNumber, row.SenderAddress, row.RecipientName,
		row.Origin, row.Destination, row.Status, row.TransactionHash,
		row.BlockNumber, row.PackageWeight, row.PackageDimensions,
		row.PackageDescription, row.EstimatedDelivery, row.CreatedBy,
		row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return apperr.Wrap(apperr.CodeStore, "failed to create delivery", err)
	}

	if err := insertLocation(ctx, tx, seed); err != nil {
		return err
	}
	if err := insertTransaction(ctx, tx, ledger); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.CodeStore, "failed to commit delivery creation", err)
	}
	return nil
}

// UpdateDeliveryStatus overwrites the status and appends the ledger entry
// in one transaction. Prior statuses survive only in the ledger.
func (s *PostgresStore) UpdateDeliveryStatus(ctx context.Context, id string, status model.DeliveryStatus, ledger model.TransactionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.CodeStore, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE deliveries SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, time.Now().UTC(),
	)
	if err != nil {
		return apperr.Wrap(apperr.CodeStore, "failed to update delivery status", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.New(apperr.CodeNotFound, "delivery not found")
	}

	if err := insertTransaction(ctx, tx, ledger); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.CodeStore, "failed to commit status update", err)
	}
	return nil
}

// AppendLocation appends a location and its ledger entry in one
// transaction. Existing locations are never touched.
func (s *PostgresStore) AppendLocation(ctx context.Context, loc model.LocationRow, ledger model.TransactionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.CodeStore, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := insertLocation(ctx, tx, loc); err != nil {
		return err
	}
	if err := insertTransaction(ctx, tx, ledger); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.CodeStore, "failed to commit location update", err)
	}
	return nil
}

func insertLocation(ctx context.Context, tx *sql.Tx, loc model.LocationRow) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO delivery_locations (
			id, delivery_id, latitude, longitude, address, transaction_hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		loc.ID, loc.DeliveryID, loc.Latitude, loc.Longitude,
		loc.Address, loc.TransactionHash, loc.CreatedAt,
	)
	if err != nil {
		return apperr.Wrap(apperr.CodeStore, "failed to insert location", err)
	}
	return nil
}

func insertTransaction(ctx context.Context, tx *sql.Tx, rec model.TransactionRecord) error {
	var block sql.NullInt64
	if rec.BlockNumber != nil {
		block = sql.NullInt64{Int64: *rec.BlockNumber, Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO delivery_transactions (
			id, delivery_id, transaction_hash, transaction_type, block_number,
			from_address, gas_used, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.DeliveryID, rec.TransactionHash, rec.Type, block,
		rec.FromAddress, nullString(rec.GasUsed), rec.Status, rec.CreatedAt,
	)
	if err != nil {
		return apperr.Wrap(apperr.CodeStore, "failed to insert transaction record", err)
	}
	return nil
}

func (s *PostgresStore) GetDeliveryByID(ctx context.Context, id string) (*model.DeliveryRow, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE id = $1`
	return s.scanDelivery(s.db.QueryRowContext(ctx, query, id))
}

// GetDeliveryByTracking matches the tracking number case-insensitively.
func (s *PostgresStore) GetDeliveryByTracking(ctx context.Context, trackingNumber string) (*model.DeliveryRow, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries WHERE lower(tracking_number) = lower($1)`
	return s.scanDelivery(s.db.QueryRowContext(ctx, query, trackingNumber))
}

func (s *PostgresStore) scanDelivery(row *sql.Row) (*model.DeliveryRow, error) {
	var d model.DeliveryRow
	err := row.Scan(
		&d.ID, &d.TrackingNumber, &d.SenderAddress, &d.RecipientName,
		&d.Origin, &d.Destination, &d.Status, &d.TransactionHash,
		&d.BlockNumber, &d.PackageWeight, &d.PackageDimensions,
		&d.PackageDescription, &d.EstimatedDelivery, &d.CreatedBy,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, "failed to read delivery", err)
	}
	return &d, nil
}

func (s *PostgresStore) ListRecentDeliveries(ctx context.Context, limit int) ([]*model.DeliveryRow, error) {
	query := `SELECT ` + deliveryColumns + ` FROM deliveries ORDER BY created_at DESC LIMIT $1`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, "failed to list deliveries", err)
	}
	defer rows.Close()

	var out []*model.DeliveryRow
	for rows.Next() {
		var d model.DeliveryRow
		err := rows.Scan(
			&d.ID, &d.TrackingNumber, &d.SenderAddress, &d.RecipientName,
			&d.Origin, &d.Destination, &d.Status, &d.TransactionHash,
			&d.BlockNumber, &d.PackageWeight, &d.PackageDimensions,
			&d.PackageDescription, &d.EstimatedDelivery, &d.CreatedBy,
			&d.CreatedAt, &d.UpdatedAt,
		)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeStore, "failed to scan delivery", err)
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, "failed to list deliveries", err)
	}
	return out, nil
}

// ListLocations returns the history in insertion order, which is
// chronological because the table is append-only.
func (s *PostgresStore) ListLocations(ctx context.Context, deliveryID string) ([]model.LocationRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, delivery_id, latitude, longitude, address, transaction_hash, created_at
		FROM delivery_locations
		WHERE delivery_id = $1
		ORDER BY created_at ASC`,
		deliveryID,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, "failed to list locations", err)
	}
	defer rows.Close()

	var out []model.LocationRow
	for rows.Next() {
		var l model.LocationRow
		if err := rows.Scan(&l.ID, &l.DeliveryID, &l.Latitude, &l.Longitude, &l.Address, &l.TransactionHash, &l.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.CodeStore, "failed to scan location", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, "failed to list locations", err)
	}
	return out, nil
}

func (s *PostgresStore) ListTransactionsByDelivery(ctx context.Context, deliveryID string) ([]model.TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, delivery_id, transaction_hash, transaction_type, block_number,
		       from_address, gas_used, status, created_at
		FROM delivery_transactions
		WHERE delivery_id = $1
		ORDER BY created_at ASC`,
		deliveryID,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, "failed to list transactions", err)
	}
	defer rows.Close()
	return scanTransactions(rows, false)
}

// ListTransactions returns the ledger newest-first, joined with the owning
// delivery's tracking number. Filters are conjunctive; the search term
// matches hash, delivery id and tracking number, case-insensitive.
func (s *PostgresStore) ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.TransactionRecord, error) {
	query := `
		SELECT t.id, t.delivery_id, t.transaction_hash, t.transaction_type, t.block_number,
		       t.from_address, t.gas_used, t.status, t.created_at, d.tracking_number
		FROM delivery_transactions t
		JOIN deliveries d ON d.id = t.delivery_id`

	var conds []string
	var args []any
	if filter.Type != "" {
		args = append(args, filter.Type)
		conds = append(conds, fmt.Sprintf("t.transaction_type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("t.status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(t.transaction_hash ILIKE $%d OR t.delivery_id::text ILIKE $%d OR d.tracking_number ILIKE $%d)", n, n, n))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY t.created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, "failed to list transactions", err)
	}
	defer rows.Close()
	return scanTransactions(rows, true)
}

func scanTransactions(rows *sql.Rows, withTracking bool) ([]model.TransactionRecord, error) {
	var out []model.TransactionRecord
	for rows.Next() {
		var t model.TransactionRecord
		var block sql.NullInt64
		var gas sql.NullString
		dest := []any{&t.ID, &t.DeliveryID, &t.TransactionHash, &t.Type, &block, &t.FromAddress, &gas, &t.Status, &t.CreatedAt}
		if withTracking {
			dest = append(dest, &t.TrackingNumber)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, apperr.Wrap(apperr.CodeStore, "failed to scan transaction record", err)
		}
		if block.Valid {
			n := block.Int64
			t.BlockNumber = &n
		}
		t.GasUsed = gas.String
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, "failed to list transactions", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
