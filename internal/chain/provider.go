// Package chain sources the provenance identifiers attached to every
// delivery mutation, either from a remote signer gateway or a locally
// generated stand-in when no identity is connected.
package chain

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/chaintrack/tracking-service/internal/model"
)

// CreateResult is what a provider returns for a creation transaction.
type CreateResult struct {
	TransactionHash string
	ExternalID      string
}

// Provider is the chain-facing collaborator. Any call may fail with a
// provider error; callers compensate with a local fallback hash and never
// block the mutation on it.
type Provider interface {
	Connect(ctx context.Context) (string, error)
	Disconnect()
	// CurrentIdentity returns the connected sender address, or empty when
	// no identity is connected.
	CurrentIdentity() string

	CreateDelivery(ctx context.Context, trackingNumber, recipient, origin, destination string) (CreateResult, error)
	UpdateStatus(ctx context.Context, deliveryID string, status model.DeliveryStatus) (string, error)
	UpdateLocation(ctx context.Context, deliveryID string, loc model.Location) (string, error)
}

// Outcome is the result of sourcing a transaction identifier. Values are
// built through Confirmed or LocalFallback only.
type Outcome struct {
	Hash        string
	BlockNumber *int64
	// Fallback is true when the hash was generated locally instead of
	// coming from a signed call.
	Fallback bool
}

// Confirmed wraps an identifier returned by a real provider call.
func Confirmed(hash string, block *int64) Outcome {
	return Outcome{Hash: hash, BlockNumber: block}
}

// LocalFallback wraps a locally generated identifier.
func LocalFallback(hash string) Outcome {
	return Outcome{Hash: hash, Fallback: true}
}

// ErrNotConnected is returned by provider calls made without an identity.
var ErrNotConnected = errors.New("chain: no identity connected")

// Disconnected is the Provider used when no gateway is configured. Every
// call reports ErrNotConnected so mutations take the local fallback path.
type Disconnected struct{}

func (Disconnected) Connect(context.Context) (string, error) { return "", ErrNotConnected }
func (Disconnected) Disconnect()                             {}
func (Disconnected) CurrentIdentity() string                 { return "" }

func (Disconnected) CreateDelivery(context.Context, string, string, string, string) (CreateResult, error) {
	return CreateResult{}, ErrNotConnected
}

func (Disconnected) UpdateStatus(context.Context, string, model.DeliveryStatus) (string, error) {
	return "", ErrNotConnected
}

func (Disconnected) UpdateLocation(context.Context, string, model.Location) (string, error) {
	return "", ErrNotConnected
}

// MockTransactionHash returns a 0x-prefixed, 64 hex digit identifier used
// as a provenance tag when no chain identity is available.
func MockTransactionHash() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return "0x" + hex.EncodeToString(buf)
}

var trackingMax = big.NewInt(10_000_000_000)

// NewTrackingNumber returns a caller-visible "TRK" identifier with ten
// zero-padded digits.
func NewTrackingNumber() string {
	n, err := rand.Int(rand.Reader, trackingMax)
	if err != nil {
		return "TRK0000000000"
	}
	return fmt.Sprintf("TRK%010d", n)
}
