package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/ignite/adinsight/internal/domain"
)

type integrationKey struct {
	businessID string
	platform   domain.Platform
}

// IntegrationRepo stores platform integrations and their tokens.
type IntegrationRepo struct {
	mu           sync.RWMutex
	integrations map[integrationKey]domain.Integration
	tokens       map[integrationKey]*oauth2.Token
}

// NewIntegrationRepo creates an empty store.
func NewIntegrationRepo() *IntegrationRepo {
	return &IntegrationRepo{
		integrations: make(map[integrationKey]domain.Integration),
		tokens:       make(map[integrationKey]*oauth2.Token),
	}
}

// Put adds or replaces an integration and its token.
func (r *IntegrationRepo) Put(integ domain.Integration, tok *oauth2.Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := integrationKey{integ.BusinessID, integ.Platform}
	r.integrations[k] = integ
	if tok != nil {
		r.tokens[k] = tok
	}
}

// Get returns a copy of an integration.
func (r *IntegrationRepo) Get(businessID string, p domain.Platform) (domain.Integration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	integ, ok := r.integrations[integrationKey{businessID, p}]
	return integ, ok
}

func (r *IntegrationRepo) ListBusinessIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]bool{}
	var out []string
	for k := range r.integrations {
		if !seen[k.businessID] {
			seen[k.businessID] = true
			out = append(out, k.businessID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *IntegrationRepo) ListForBusiness(_ context.Context, businessID string) ([]domain.Integration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Integration
	for k, integ := range r.integrations {
		if k.businessID == businessID {
			out = append(out, integ)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}

func (r *IntegrationRepo) MarkSynced(_ context.Context, businessID string, p domain.Platform, at time.Time) error {
	return r.update(businessID, p, func(integ *domain.Integration) {
		integ.LastSynced = &at
		integ.ErrorMessage = ""
		if integ.Status == domain.IntegrationError {
			integ.Status = domain.IntegrationConnected
		}
	})
}

func (r *IntegrationRepo) MarkError(_ context.Context, businessID string, p domain.Platform, message string) error {
	return r.update(businessID, p, func(integ *domain.Integration) {
		integ.Status = domain.IntegrationError
		integ.ErrorMessage = message
	})
}

func (r *IntegrationRepo) MarkNeedsReauth(_ context.Context, businessID string, p domain.Platform, message string) error {
	return r.update(businessID, p, func(integ *domain.Integration) {
		integ.Status = domain.IntegrationNeedsReauth
		integ.ErrorMessage = message
	})
}

func (r *IntegrationRepo) update(businessID string, p domain.Platform, fn func(*domain.Integration)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := integrationKey{businessID, p}
	integ, ok := r.integrations[k]
	if !ok {
		return fmt.Errorf("integration %s/%s not found", businessID, p)
	}
	fn(&integ)
	r.integrations[k] = integ
	return nil
}

// Token implements platform.TokenStore.
func (r *IntegrationRepo) Token(_ context.Context, businessID string, p domain.Platform) (*oauth2.Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tokens[integrationKey{businessID, p}], nil
}

// SaveToken implements platform.TokenSaver.
func (r *IntegrationRepo) SaveToken(_ context.Context, businessID string, p domain.Platform, tok *oauth2.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[integrationKey{businessID, p}] = tok
	return nil
}
