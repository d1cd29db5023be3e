package client

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// RefreshFunc obtains a fresh access token.
type RefreshFunc func(ctx context.Context) (string, error)

// TokenProvider hands out the current access token and coordinates refresh.
// When several concurrent requests hit an auth failure, exactly one refresh
// call is issued and every caller waits on its result.
type TokenProvider struct {
	mu      sync.RWMutex
	token   string
	refresh RefreshFunc
	group   singleflight.Group
}

// NewTokenProvider creates a provider seeded with an initial token. refresh
// may be nil for static tokens; Refresh then fails once the token is
// rejected.
func NewTokenProvider(token string, refresh RefreshFunc) *TokenProvider {
	return &TokenProvider{token: token, refresh: refresh}
}

// Token returns the current token, fetching one first if none is set yet.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.RLock()
	token := p.token
	p.mu.RUnlock()
	if token != "" {
		return token, nil
	}
	return p.Refresh(ctx, "")
}

// Refresh replaces a token the server rejected. Concurrent callers share a
// single refresh call; callers that lost the race get the token the winner
// obtained.
func (p *TokenProvider) Refresh(ctx context.Context, stale string) (string, error) {
	v, err, _ := p.group.Do("token", func() (interface{}, error) {
		p.mu.RLock()
		current := p.token
		p.mu.RUnlock()
		if current != "" && current != stale {
			// Another caller already refreshed.
			return current, nil
		}
		if p.refresh == nil {
			return nil, errors.New("token rejected and no refresh configured")
		}
		token, err := p.refresh(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "refresh token")
		}
		p.mu.Lock()
		p.token = token
		p.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
