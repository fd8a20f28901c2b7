// Package registry resolves submitter ids to submitters and their trust tier.
package registry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/duck57/poke-db/internal/domain"
)

// SubmitterSource loads submitters from storage.
type SubmitterSource interface {
	SubmitterByID(ctx context.Context, id uint) (domain.Submitter, error)
}

// Registry looks submitters up, caching hits for ttl. A tier change made by an
// administrator is picked up once the cached entry expires.
type Registry struct {
	src   SubmitterSource
	cache *cache.Cache
}

// New returns a Registry over src. ttl <= 0 disables caching.
func New(src SubmitterSource, ttl time.Duration) *Registry {
	r := &Registry{src: src}
	if ttl > 0 {
		r.cache = cache.New(ttl, ttl*2)
	}
	return r
}

// Lookup returns the submitter or an error wrapping domain.ErrUnknownSubmitter.
func (r *Registry) Lookup(ctx context.Context, id uint) (domain.Submitter, error) {
	key := strconv.FormatUint(uint64(id), 10)
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			return v.(domain.Submitter), nil
		}
	}
	sub, err := r.src.SubmitterByID(ctx, id)
	if err != nil {
		return domain.Submitter{}, fmt.Errorf("submitter %d: %w", id, err)
	}
	if r.cache != nil {
		r.cache.Set(key, sub, cache.DefaultExpiration)
	}
	return sub, nil
}

// IsRestricted reports whether s goes through the conflict state machine.
func IsRestricted(s domain.Submitter) bool {
	return s.Tier.Restricted()
}
