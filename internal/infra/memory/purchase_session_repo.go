// File: internal/infra/memory/purchase_session_repo.go
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"telegram-vpn-provisioning/internal/domain"
	"telegram-vpn-provisioning/internal/domain/model"
	"telegram-vpn-provisioning/internal/domain/ports/repository"
)

// PurchaseSessionRepo keeps pending purchases in process memory. Sessions idle
// for longer than ttl are evicted lazily on access.
type PurchaseSessionRepo struct {
	mu       sync.Mutex
	sessions map[int64]model.PendingPurchase
	ttl      time.Duration
	now      func() time.Time
}

var _ repository.PurchaseSessionRepository = (*PurchaseSessionRepo)(nil)

func NewPurchaseSessionRepo(ttl time.Duration) *PurchaseSessionRepo {
	return &PurchaseSessionRepo{
		sessions: make(map[int64]model.PendingPurchase),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (r *PurchaseSessionRepo) expired(p model.PendingPurchase) bool {
	return r.ttl > 0 && r.now().Sub(p.UpdatedAt) > r.ttl
}

func (r *PurchaseSessionRepo) Get(ctx context.Context, requesterID int64) (*model.PendingPurchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.sessions[requesterID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if r.expired(p) {
		delete(r.sessions, requesterID)
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

func (r *PurchaseSessionRepo) Save(ctx context.Context, p *model.PendingPurchase) error {
	if p == nil || p.RequesterID == 0 {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[p.RequesterID] = *p
	return nil
}

func (r *PurchaseSessionRepo) Delete(ctx context.Context, requesterID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, requesterID)
	return nil
}

// List returns live sessions, oldest first.
func (r *PurchaseSessionRepo) List(ctx context.Context) ([]*model.PendingPurchase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.PendingPurchase, 0, len(r.sessions))
	for id, p := range r.sessions {
		if r.expired(p) {
			delete(r.sessions, id)
			continue
		}
		cp := p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
