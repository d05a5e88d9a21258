// Package session resolves the authenticated caller behind a request.
// Mutating operations require a session; reads do not.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chaintrack/tracking-service/internal/apperr"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID  string
	Email   string
	Address string // optional wallet address claim
}

// Provider yields the identity attached to the current request context.
// Subscribe registers an observer of successful resolutions and returns a
// cancel handle; the core itself only calls Current synchronously.
type Provider interface {
	Current(ctx context.Context) (*Identity, error)
	Subscribe(fn func(*Identity)) (cancel func())
}

type tokenKey struct{}

// ContextWithToken stashes the raw bearer token for Current to pick up.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// JWTProvider validates HS256 bearer tokens.
type JWTProvider struct {
	secret []byte

	mu   sync.Mutex
	subs map[int]func(*Identity)
	next int
}

func NewJWTProvider(secret string) *JWTProvider {
	return &JWTProvider{
		secret: []byte(secret),
		subs:   make(map[int]func(*Identity)),
	}
}

func (p *JWTProvider) Current(ctx context.Context) (*Identity, error) {
	raw := strings.TrimSpace(strings.TrimPrefix(tokenFromContext(ctx), "Bearer "))
	if raw == "" {
		return nil, apperr.New(apperr.CodeUnauthorized, "missing bearer token")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, apperr.Wrap(apperr.CodeUnauthorized, "invalid bearer token", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperr.New(apperr.CodeUnauthorized, "invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, apperr.New(apperr.CodeUnauthorized, "token has no subject")
	}
	email, _ := claims["email"].(string)
	address, _ := claims["address"].(string)

	id := &Identity{UserID: sub, Email: email, Address: address}
	p.notify(id)
	return id, nil
}

func (p *JWTProvider) Subscribe(fn func(*Identity)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := p.next
	p.next++
	p.subs[key] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, key)
	}
}

func (p *JWTProvider) notify(id *Identity) {
	p.mu.Lock()
	fns := make([]func(*Identity), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(id)
	}
}
