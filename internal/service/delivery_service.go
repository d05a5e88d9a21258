package service

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chaintrack/tracking-service/internal/aggregate"
	"github.com/chaintrack/tracking-service/internal/apperr"
	"github.com/chaintrack/tracking-service/internal/chain"
	"github.com/chaintrack/tracking-service/internal/metrics"
	"github.com/chaintrack/tracking-service/internal/model"
	"github.com/chaintrack/tracking-service/internal/repository"
	"github.com/chaintrack/tracking-service/internal/session"
)

// estimatedTransit is the default delivery window promised at creation.
const estimatedTransit = 72 * time.Hour

// demoSender stands in for the sender address when no chain identity is
// connected.
const demoSender = "demo-address"

// DeliveryService implements the delivery mutation protocol and the
// lookup surface. Every mutation sources a transaction identifier before
// writing: a real one from the provider when an identity is connected,
// otherwise a locally generated hash. A provider failure is compensated,
// never surfaced.
type DeliveryService struct {
	store    repository.Store
	cache    repository.Cache
	provider chain.Provider
	sessions session.Provider
	logger   *zap.Logger
}

func NewDeliveryService(store repository.Store, cache repository.Cache, provider chain.Provider, sessions session.Provider, logger *zap.Logger) *DeliveryService {
	return &DeliveryService{
		store:    store,
		cache:    cache,
		provider: provider,
		sessions: sessions,
		logger:   logger,
	}
}

func (s *DeliveryService) CreateDelivery(ctx context.Context, req *model.CreateDeliveryRequest) (*model.Delivery, error) {
	if strings.TrimSpace(req.Recipient) == "" {
		return nil, apperr.New(apperr.CodeValidation, "recipient is required")
	}
	if strings.TrimSpace(req.Origin) == "" {
		return nil, apperr.New(apperr.CodeValidation, "origin is required")
	}
	if strings.TrimSpace(req.Destination) == "" {
		return nil, apperr.New(apperr.CodeValidation, "destination is required")
	}
	if strings.TrimSpace(req.Weight) == "" {
		return nil, apperr.New(apperr.CodeValidation, "weight is required")
	}

	ident, err := s.sessions.Current(ctx)
	if err != nil {
		return nil, err
	}

	trackingNumber := chain.NewTrackingNumber()
	sender := s.provider.CurrentIdentity()
	if sender == "" {
		sender = demoSender
	}

	outcome := s.sourceCreation(ctx, trackingNumber, req)

	now := time.Now().UTC()
	row := &model.DeliveryRow{
		ID:                 uuid.New().String(),
		TrackingNumber:     trackingNumber,
		SenderAddress:      sender,
		RecipientName:      req.Recipient,
		Origin:             req.Origin,
		Destination:        req.Destination,
		Status:             model.StatusPending,
		TransactionHash:    outcome.Hash,
		BlockNumber:        toNullInt64(outcome.BlockNumber),
		PackageWeight:      toNullString(req.Weight),
		PackageDimensions:  toNullString(req.Dimensions),
		PackageDescription: toNullString(req.Description),
		EstimatedDelivery:  now.Add(estimatedTransit),
		CreatedBy:          ident.UserID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	seed := model.LocationRow{
		ID:              uuid.New().String(),
		DeliveryID:      row.ID,
		Address:         req.Origin,
		TransactionHash: outcome.Hash,
		CreatedAt:       now,
	}
	ledger := model.TransactionRecord{
		ID:              uuid.New().String(),
		DeliveryID:      row.ID,
		TransactionHash: outcome.Hash,
		Type:            model.TxTypeCreate,
		BlockNumber:     outcome.BlockNumber,
		FromAddress:     sender,
		Status:          model.TxStatusConfirmed,
		CreatedAt:       now,
	}

	if err := s.store.CreateDelivery(ctx, row, seed, ledger); err != nil {
		return nil, err
	}

	view := aggregate.Aggregate(row, []model.LocationRow{seed}, []model.TransactionRecord{ledger})
	if err := s.cache.SetDelivery(ctx, view); err != nil {
		s.logger.Warn("failed to cache delivery", zap.String("deliveryId", row.ID), zap.Error(err))
	}

	metrics.DeliveriesCreatedTotal.Inc()
	s.logger.Info("delivery created",
		zap.String("deliveryId", row.ID),
		zap.String("trackingNumber", trackingNumber),
		zap.Bool("chainFallback", outcome.Fallback))

	return view, nil
}

func (s *DeliveryService) SetStatus(ctx context.Context, id string, status model.DeliveryStatus) error {
	if strings.TrimSpace(id) == "" {
		return apperr.New(apperr.CodeValidation, "delivery id is required")
	}
	if !status.Valid() {
		return apperr.Newf(apperr.CodeValidation, "invalid status %q", string(status))
	}

	ident, err := s.sessions.Current(ctx)
	if err != nil {
		return err
	}

	rec, err := s.store.GetDeliveryByID(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return apperr.New(apperr.CodeNotFound, "delivery not found")
	}
	if !model.CanTransition(rec.Status, status) {
		return apperr.Newf(apperr.CodeValidation, "cannot transition from %q to %q", string(rec.Status), string(status))
	}

	outcome := s.sourceStatusUpdate(ctx, id, status)
	ledger := model.TransactionRecord{
		ID:              uuid.New().String(),
		DeliveryID:      id,
		TransactionHash: outcome.Hash,
		Type:            model.TxTypeStatusUpdate,
		BlockNumber:     outcome.BlockNumber,
		FromAddress:     s.senderAddress(ident),
		Status:          model.TxStatusConfirmed,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.store.UpdateDeliveryStatus(ctx, id, status, ledger); err != nil {
		return err
	}
	s.invalidate(ctx, id, rec.TrackingNumber)

	metrics.StatusUpdatesTotal.Inc()
	s.logger.Info("delivery status updated",
		zap.String("deliveryId", id),
		zap.String("status", string(status)),
		zap.Bool("chainFallback", outcome.Fallback))
	return nil
}

func (s *DeliveryService) AddLocation(ctx context.Context, id string, req *model.AddLocationRequest) error {
	if strings.TrimSpace(id) == "" {
		return apperr.New(apperr.CodeValidation, "delivery id is required")
	}
	if strings.TrimSpace(req.Address) == "" {
		return apperr.New(apperr.CodeValidation, "address is required")
	}

	ident, err := s.sessions.Current(ctx)
	if err != nil {
		return err
	}

	rec, err := s.store.GetDeliveryByID(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return apperr.New(apperr.CodeNotFound, "delivery not found")
	}

	now := time.Now().UTC()
	loc := model.Location{
		Latitude:  parseCoord(req.Latitude),
		Longitude: parseCoord(req.Longitude),
		Address:   req.Address,
		Timestamp: now.UnixMilli(),
	}
	outcome := s.sourceLocationUpdate(ctx, id, loc)

	row := model.LocationRow{
		ID:              uuid.New().String(),
		DeliveryID:      id,
		Latitude:        toNullString(req.Latitude),
		Longitude:       toNullString(req.Longitude),
		Address:         req.Address,
		TransactionHash: outcome.Hash,
		CreatedAt:       now,
	}
	ledger := model.TransactionRecord{
		ID:              uuid.New().String(),
		DeliveryID:      id,
		TransactionHash: outcome.Hash,
		Type:            model.TxTypeLocationUpdate,
		BlockNumber:     outcome.BlockNumber,
		FromAddress:     s.senderAddress(ident),
		Status:          model.TxStatusConfirmed,
		CreatedAt:       now,
	}

	if err := s.store.AppendLocation(ctx, row, ledger); err != nil {
		return err
	}
	s.invalidate(ctx, id, rec.TrackingNumber)

	metrics.LocationUpdatesTotal.Inc()
	s.logger.Info("delivery location added",
		zap.String("deliveryId", id),
		zap.String("address", req.Address),
		zap.Bool("chainFallback", outcome.Fallback))
	return nil
}

// TrackByNumber resolves a delivery by its caller-visible tracking number,
// case-insensitive. A missing delivery is a normal not-found outcome.
func (s *DeliveryService) TrackByNumber(ctx context.Context, trackingNumber string) (*model.Delivery, error) {
	metrics.TrackingLookupsTotal.Inc()

	if cached, err := s.cache.GetDeliveryByTracking(ctx, trackingNumber); err == nil && cached != nil {
		return cached, nil
	}

	rec, err := s.store.GetDeliveryByTracking(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperr.New(apperr.CodeNotFound, "delivery not found")
	}
	return s.assemble(ctx, rec)
}

func (s *DeliveryService) GetByID(ctx context.Context, id string) (*model.Delivery, error) {
	if cached, err := s.cache.GetDelivery(ctx, id); err == nil && cached != nil {
		return cached, nil
	}

	rec, err := s.store.GetDeliveryByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperr.New(apperr.CodeNotFound, "delivery not found")
	}
	return s.assemble(ctx, rec)
}

func (s *DeliveryService) GetRecent(ctx context.Context, limit int) ([]*model.Delivery, error) {
	if limit < 1 || limit > 100 {
		limit = 10
	}
	recs, err := s.store.ListRecentDeliveries(ctx, limit)
	if err != nil {
		return nil, err
	}

	out := make([]*model.Delivery, 0, len(recs))
	for _, rec := range recs {
		view, err := s.assemble(ctx, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

func (s *DeliveryService) ListTransactions(ctx context.Context, filter model.TransactionFilter) ([]model.TransactionRecord, error) {
	return s.store.ListTransactions(ctx, filter)
}

// assemble rebuilds the aggregate view from the three stores and caches
// the result.
func (s *DeliveryService) assemble(ctx context.Context, rec *model.DeliveryRow) (*model.Delivery, error) {
	locations, err := s.store.ListLocations(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	transactions, err := s.store.ListTransactionsByDelivery(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	view := aggregate.Aggregate(rec, locations, transactions)
	if err := s.cache.SetDelivery(ctx, view); err != nil {
		s.logger.Warn("failed to cache delivery", zap.String("deliveryId", rec.ID), zap.Error(err))
	}
	return view, nil
}

// sourceCreation asks the provider for a creation transaction and falls
// back to a local hash on any failure. The mutation is never blocked by
// the absence of a chain connection.
func (s *DeliveryService) sourceCreation(ctx context.Context, trackingNumber string, req *model.CreateDeliveryRequest) chain.Outcome {
	if s.provider.CurrentIdentity() == "" {
		return s.fallback(nil)
	}
	res, err := s.provider.CreateDelivery(ctx, trackingNumber, req.Recipient, req.Origin, req.Destination)
	if err != nil {
		return s.fallback(err)
	}
	return chain.Confirmed(res.TransactionHash, nil)
}

func (s *DeliveryService) sourceStatusUpdate(ctx context.Context, id string, status model.DeliveryStatus) chain.Outcome {
	if s.provider.CurrentIdentity() == "" {
		return s.fallback(nil)
	}
	hash, err := s.provider.UpdateStatus(ctx, id, status)
	if err != nil {
		return s.fallback(err)
	}
	return chain.Confirmed(hash, nil)
}

func (s *DeliveryService) sourceLocationUpdate(ctx context.Context, id string, loc model.Location) chain.Outcome {
	if s.provider.CurrentIdentity() == "" {
		return s.fallback(nil)
	}
	hash, err := s.provider.UpdateLocation(ctx, id, loc)
	if err != nil {
		return s.fallback(err)
	}
	return chain.Confirmed(hash, nil)
}

func (s *DeliveryService) fallback(cause error) chain.Outcome {
	if cause != nil {
		s.logger.Warn("chain transaction failed, using local hash", zap.Error(cause))
	}
	metrics.ChainFallbackTotal.Inc()
	return chain.LocalFallback(chain.MockTransactionHash())
}

func (s *DeliveryService) senderAddress(ident *session.Identity) string {
	if addr := s.provider.CurrentIdentity(); addr != "" {
		return addr
	}
	if ident != nil && ident.Address != "" {
		return ident.Address
	}
	return demoSender
}

func (s *DeliveryService) invalidate(ctx context.Context, id, trackingNumber string) {
	if err := s.cache.Invalidate(ctx, id, trackingNumber); err != nil {
		s.logger.Warn("failed to invalidate delivery cache", zap.String("deliveryId", id), zap.Error(err))
	}
}

// parseCoord degrades absent or unparseable coordinates to zero; a bad
// coordinate never blocks the write.
func parseCoord(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: strings.TrimSpace(s) != ""}
}

func toNullInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}
