package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/chaintrack/tracking-service/internal/model"
)

// Gateway talks to a remote signer service that holds the wallet and the
// deployed tracking contract. The gateway speaks plain JSON; transaction
// hashes come back once the call is submitted, block numbers only when the
// gateway waited for the receipt.
type Gateway struct {
	baseURL string
	client  *http.Client

	mu       sync.Mutex
	identity string
}

func NewGateway(baseURL string) *Gateway {
	return &Gateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (g *Gateway) Connect(ctx context.Context) (string, error) {
	var out struct {
		Address string `json:"address"`
	}
	if err := g.post(ctx, "/connect", nil, &out); err != nil {
		return "", err
	}
	if out.Address == "" {
		return "", ErrNotConnected
	}
	g.mu.Lock()
	g.identity = out.Address
	g.mu.Unlock()
	return out.Address, nil
}

func (g *Gateway) Disconnect() {
	g.mu.Lock()
	g.identity = ""
	g.mu.Unlock()
}

func (g *Gateway) CurrentIdentity() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.identity
}

func (g *Gateway) CreateDelivery(ctx context.Context, trackingNumber, recipient, origin, destination string) (CreateResult, error) {
	if g.CurrentIdentity() == "" {
		return CreateResult{}, ErrNotConnected
	}
	body := map[string]string{
		"tracking_number": trackingNumber,
		"recipient":       recipient,
		"origin":          origin,
		"destination":     destination,
	}
	var out struct {
		TransactionHash string `json:"transaction_hash"`
		DeliveryID      string `json:"delivery_id"`
	}
	if err := g.post(ctx, "/deliveries", body, &out); err != nil {
		return CreateResult{}, err
	}
	return CreateResult{TransactionHash: out.TransactionHash, ExternalID: out.DeliveryID}, nil
}

func (g *Gateway) UpdateStatus(ctx context.Context, deliveryID string, status model.DeliveryStatus) (string, error) {
	if g.CurrentIdentity() == "" {
		return "", ErrNotConnected
	}
	body := map[string]any{
		"status":       string(status),
		"status_index": status.Rank(),
	}
	var out struct {
		TransactionHash string `json:"transaction_hash"`
	}
	if err := g.post(ctx, "/deliveries/"+deliveryID+"/status", body, &out); err != nil {
		return "", err
	}
	return out.TransactionHash, nil
}

func (g *Gateway) UpdateLocation(ctx context.Context, deliveryID string, loc model.Location) (string, error) {
	if g.CurrentIdentity() == "" {
		return "", ErrNotConnected
	}
	body := map[string]any{
		"latitude":  loc.Latitude,
		"longitude": loc.Longitude,
		"address":   loc.Address,
	}
	var out struct {
		TransactionHash string `json:"transaction_hash"`
	}
	if err := g.post(ctx, "/deliveries/"+deliveryID+"/location", body, &out); err != nil {
		return "", err
	}
	return out.TransactionHash, nil
}

func (g *Gateway) post(ctx context.Context, path string, body, out any) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("chain: encoding request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("chain: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("chain: gateway call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chain: gateway returned %d for %s", resp.StatusCode, path)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("chain: decoding response: %w", err)
	}
	return nil
}
