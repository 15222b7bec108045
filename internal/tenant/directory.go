package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/iliyamo/clinic-manager/internal/model"
	"github.com/iliyamo/clinic-manager/internal/repository"
)

// ErrUnknownOrganization means no active organization owns the key.
var ErrUnknownOrganization = errors.New("unknown organization")

// OrganizationStore is the read side of the organization directory.
type OrganizationStore interface {
	GetByKey(ctx context.Context, key string) (model.Organization, error)
}

// Directory answers "which organization is this key" with a short-lived
// in-process cache in front of the system database.
type Directory struct {
	store OrganizationStore
	cache *ristretto.Cache[string, model.Organization]
	ttl   time.Duration
}

// NewDirectory caches up to capacity organizations for ttl each.
func NewDirectory(store OrganizationStore, capacity int64, ttl time.Duration) (*Directory, error) {
	if capacity <= 0 {
		capacity = 10000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, model.Organization]{
		NumCounters: capacity * 10,
		MaxCost:     capacity,
		BufferItems: 64,
		// cost is counted in entries, not bytes
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Directory{store: store, cache: c, ttl: ttl}, nil
}

// Lookup returns the active organization for key.
func (d *Directory) Lookup(ctx context.Context, key string) (model.Organization, error) {
	if o, ok := d.cache.Get(key); ok {
		return o, nil
	}
	o, err := d.store.GetByKey(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return o, fmt.Errorf("%q: %w", key, ErrUnknownOrganization)
	}
	if err != nil {
		return o, err
	}
	if o.Status != model.OrgActive {
		return o, fmt.Errorf("%q is %s: %w", key, o.Status, ErrUnknownOrganization)
	}
	d.cache.SetWithTTL(key, o, 1, d.ttl)
	d.cache.Wait()
	return o, nil
}

// Invalidate drops key from the cache.
func (d *Directory) Invalidate(key string) { d.cache.Del(key) }

// Close releases the cache.
func (d *Directory) Close() { d.cache.Close() }
