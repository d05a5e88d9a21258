package service

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chaintrack/tracking-service/internal/apperr"
	"github.com/chaintrack/tracking-service/internal/chain"
	"github.com/chaintrack/tracking-service/internal/model"
	"github.com/chaintrack/tracking-service/internal/session"
)

var hashPattern = regexp.MustCompile(`^0x[0-9a-f]{64}$`)

// fakeStore is an in-memory Store honoring the append-only semantics of
// locations and ledger entries.
type fakeStore struct {
	deliveries map[string]*model.DeliveryRow
	locations  map[string][]model.LocationRow
	ledger     map[string][]model.TransactionRecord
	lastLimit  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		deliveries: make(map[string]*model.DeliveryRow),
		locations:  make(map[string][]model.LocationRow),
		ledger:     make(map[string][]model.TransactionRecord),
	}
}

func (f *fakeStore) CreateDelivery(_ context.Context, row *model.DeliveryRow, seed model.LocationRow, ledger model.TransactionRecord) error {
	cp := *row
	f.deliveries[row.ID] = &cp
	f.locations[row.ID] = append(f.locations[row.ID], seed)
	f.ledger[row.ID] = append(f.ledger[row.ID], ledger)
	return nil
}

func (f *fakeStore) UpdateDeliveryStatus(_ context.Context, id string, status model.DeliveryStatus, ledger model.TransactionRecord) error {
	row, ok := f.deliveries[id]
	if !ok {
		return apperr.New(apperr.CodeNotFound, "delivery not found")
	}
	row.Status = status
	row.UpdatedAt = time.Now().UTC()
	f.ledger[id] = append(f.ledger[id], ledger)
	return nil
}

func (f *fakeStore) AppendLocation(_ context.Context, loc model.LocationRow, ledger model.TransactionRecord) error {
	f.locations[loc.DeliveryID] = append(f.locations[loc.DeliveryID], loc)
	f.ledger[loc.DeliveryID] = append(f.ledger[loc.DeliveryID], ledger)
	return nil
}

func (f *fakeStore) GetDeliveryByID(_ context.Context, id string) (*model.DeliveryRow, error) {
	row, ok := f.deliveries[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (f *fakeStore) GetDeliveryByTracking(_ context.Context, trackingNumber string) (*model.DeliveryRow, error) {
	for _, row := range f.deliveries {
		if strings.EqualFold(row.TrackingNumber, trackingNumber) {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListRecentDeliveries(_ context.Context, limit int) ([]*model.DeliveryRow, error) {
	f.lastLimit = limit
	var out []*model.DeliveryRow
	for _, row := range f.deliveries {
		cp := *row
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ListLocations(_ context.Context, deliveryID string) ([]model.LocationRow, error) {
	return append([]model.LocationRow(nil), f.locations[deliveryID]...), nil
}

func (f *fakeStore) ListTransactionsByDelivery(_ context.Context, deliveryID string) ([]model.TransactionRecord, error) {
	return append([]model.TransactionRecord(nil), f.ledger[deliveryID]...), nil
}

func (f *fakeStore) ListTransactions(_ context.Context, filter model.TransactionFilter) ([]model.TransactionRecord, error) {
	var out []model.TransactionRecord
	for _, txs := range f.ledger {
		for _, tx := range txs {
			if filter.Type != "" && tx.Type != filter.Type {
				continue
			}
			if filter.Status != "" && tx.Status != filter.Status {
				continue
			}
			out = append(out, tx)
		}
	}
	return out, nil
}

type nopCache struct{}

func (nopCache) GetDelivery(context.Context, string) (*model.Delivery, error) { return nil, nil }
func (nopCache) GetDeliveryByTracking(context.Context, string) (*model.Delivery, error) {
	return nil, nil
}
func (nopCache) SetDelivery(context.Context, *model.Delivery) error { return nil }
func (nopCache) Invalidate(context.Context, string, string) error   { return nil }

type fakeSessions struct {
	ident *session.Identity
	err   error
}

func (f *fakeSessions) Current(context.Context) (*session.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ident, nil
}

func (f *fakeSessions) Subscribe(func(*session.Identity)) func() { return func() {} }

// failingProvider reports a connected identity whose calls all fail.
type failingProvider struct{}

func (failingProvider) Connect(context.Context) (string, error) { return "0xfeed", nil }
func (failingProvider) Disconnect()                             {}
func (failingProvider) CurrentIdentity() string                 { return "0xfeed" }
func (failingProvider) CreateDelivery(context.Context, string, string, string, string) (chain.CreateResult, error) {
	return chain.CreateResult{}, chain.ErrNotConnected
}
func (failingProvider) UpdateStatus(context.Context, string, model.DeliveryStatus) (string, error) {
	return "", chain.ErrNotConnected
}
func (failingProvider) UpdateLocation(context.Context, string, model.Location) (string, error) {
	return "", chain.ErrNotConnected
}

func newTestService(store *fakeStore, provider chain.Provider, sessions session.Provider) *DeliveryService {
	return NewDeliveryService(store, nopCache{}, provider, sessions, zap.NewNop())
}

func loggedIn() *fakeSessions {
	return &fakeSessions{ident: &session.Identity{UserID: "user-1", Email: "john@example.com"}}
}

func createRequest() *model.CreateDeliveryRequest {
	return &model.CreateDeliveryRequest{
		Recipient:   "John Doe",
		Origin:      "New York, NY, USA",
		Destination: "Los Angeles, CA, USA",
		Weight:      "2.5 kg",
	}
}

func TestCreateDeliveryWithoutChainIdentity(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, chain.Disconnected{}, loggedIn())

	delivery, err := svc.CreateDelivery(context.Background(), createRequest())
	require.NoError(t, err)

	assert.Equal(t, model.StatusPending, delivery.Status)
	require.Len(t, delivery.LocationHistory, 1)
	assert.Equal(t, "New York, NY, USA", delivery.LocationHistory[0].Address)
	assert.Equal(t, delivery.LocationHistory[0], delivery.CurrentLocation)
	assert.Regexp(t, hashPattern, delivery.TransactionHash)
	assert.Regexp(t, `^TRK\d{10}$`, delivery.TrackingNumber)
	assert.Equal(t, "demo-address", delivery.Sender)
	assert.GreaterOrEqual(t, delivery.EstimatedDelivery, delivery.CreatedAt)

	txs := store.ledger[delivery.ID]
	require.Len(t, txs, 1)
	assert.Equal(t, model.TxTypeCreate, txs[0].Type)
	assert.Equal(t, model.TxStatusConfirmed, txs[0].Status)
}

func TestCreateDeliveryValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*model.CreateDeliveryRequest)
		field  string
	}{
		{"missing recipient", func(r *model.CreateDeliveryRequest) { r.Recipient = "" }, "recipient"},
		{"missing origin", func(r *model.CreateDeliveryRequest) { r.Origin = "  " }, "origin"},
		{"missing destination", func(r *model.CreateDeliveryRequest) { r.Destination = "" }, "destination"},
		{"missing weight", func(r *model.CreateDeliveryRequest) { r.Weight = "" }, "weight"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			svc := newTestService(store, chain.Disconnected{}, loggedIn())

			req := createRequest()
			tc.mutate(req)
			_, err := svc.CreateDelivery(context.Background(), req)

			assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
			assert.Contains(t, apperr.Message(err), tc.field)
			assert.Empty(t, store.deliveries, "validation must fail before any store write")
		})
	}
}

func TestCreateDeliveryRequiresSession(t *testing.T) {
	store := newFakeStore()
	sessions := &fakeSessions{err: apperr.New(apperr.CodeUnauthorized, "missing bearer token")}
	svc := newTestService(store, chain.Disconnected{}, sessions)

	_, err := svc.CreateDelivery(context.Background(), createRequest())
	assert.True(t, apperr.IsCode(err, apperr.CodeUnauthorized))
	assert.Empty(t, store.deliveries)
}

func TestCreateDeliveryProviderFailureFallsBack(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, failingProvider{}, loggedIn())

	delivery, err := svc.CreateDelivery(context.Background(), createRequest())
	require.NoError(t, err, "a provider failure is compensated, never surfaced")
	assert.Regexp(t, hashPattern, delivery.TransactionHash)
	assert.Equal(t, "0xfeed", delivery.Sender, "sender still reflects the connected identity")
}

func TestSetStatusAppendsLedgerEntry(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, chain.Disconnected{}, loggedIn())

	created, err := svc.CreateDelivery(context.Background(), createRequest())
	require.NoError(t, err)

	require.NoError(t, svc.SetStatus(context.Background(), created.ID, model.StatusInTransit))

	after, err := svc.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusInTransit, after.Status)

	txs := store.ledger[created.ID]
	require.Len(t, txs, 2)
	assert.Equal(t, model.TxTypeStatusUpdate, txs[1].Type)
	assert.Len(t, after.LocationHistory, 1, "status updates must not touch locations")
}

func TestSetStatusPermissiveTransitions(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, chain.Disconnected{}, loggedIn())

	created, err := svc.CreateDelivery(context.Background(), createRequest())
	require.NoError(t, err)

	require.NoError(t, svc.SetStatus(context.Background(), created.ID, model.StatusDelivered))
	// Going backwards is allowed.
	require.NoError(t, svc.SetStatus(context.Background(), created.ID, model.StatusPending))

	after, err := svc.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, after.Status)
}

func TestSetStatusErrors(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, chain.Disconnected{}, loggedIn())

	err := svc.SetStatus(context.Background(), "missing-id", model.StatusInTransit)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))

	err = svc.SetStatus(context.Background(), "whatever", model.DeliveryStatus("Lost"))
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestAddLocationAppends(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, chain.Disconnected{}, loggedIn())

	created, err := svc.CreateDelivery(context.Background(), createRequest())
	require.NoError(t, err)

	before, err := svc.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	priorEntries := append([]model.Location(nil), before.LocationHistory...)

	require.NoError(t, svc.AddLocation(context.Background(), created.ID, &model.AddLocationRequest{
		Address:  "Denver, CO, USA",
		Latitude: "39.7392",
	}))

	after, err := svc.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.Len(t, after.LocationHistory, 2)
	assert.Equal(t, priorEntries, after.LocationHistory[:1], "prior entries are immutable")
	assert.Equal(t, "Denver, CO, USA", after.CurrentLocation.Address)
	assert.InDelta(t, 39.7392, after.CurrentLocation.Latitude, 1e-9)
	assert.Equal(t, model.StatusPending, after.Status, "location updates must not touch status")

	txs := store.ledger[created.ID]
	require.Len(t, txs, 2)
	assert.Equal(t, model.TxTypeLocationUpdate, txs[1].Type)
}

func TestAddLocationCoercesCoordinates(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, chain.Disconnected{}, loggedIn())

	created, err := svc.CreateDelivery(context.Background(), createRequest())
	require.NoError(t, err)

	require.NoError(t, svc.AddLocation(context.Background(), created.ID, &model.AddLocationRequest{
		Address:   "Denver, CO, USA",
		Latitude:  "not-a-number",
		Longitude: "",
	}))

	after, err := svc.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Zero(t, after.CurrentLocation.Latitude)
	assert.Zero(t, after.CurrentLocation.Longitude)
}

func TestTrackByNumberCaseInsensitive(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, chain.Disconnected{}, loggedIn())

	created, err := svc.CreateDelivery(context.Background(), createRequest())
	require.NoError(t, err)

	found, err := svc.TrackByNumber(context.Background(), strings.ToLower(created.TrackingNumber))
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = svc.TrackByNumber(context.Background(), "TRK9999999999")
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound), "a missing code is a normal not-found outcome")
}

func TestGetRecentClampsLimit(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, chain.Disconnected{}, loggedIn())

	_, err := svc.GetRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 10, store.lastLimit)

	_, err = svc.GetRecent(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, 10, store.lastLimit)

	_, err = svc.GetRecent(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, 25, store.lastLimit)
}

func TestListTransactionsFilters(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, chain.Disconnected{}, loggedIn())

	created, err := svc.CreateDelivery(context.Background(), createRequest())
	require.NoError(t, err)
	require.NoError(t, svc.SetStatus(context.Background(), created.ID, model.StatusInTransit))

	txs, err := svc.ListTransactions(context.Background(), model.TransactionFilter{Type: model.TxTypeStatusUpdate})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, model.TxTypeStatusUpdate, txs[0].Type)
}
