package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"telegram-vpn-provisioning/internal/domain"
	"telegram-vpn-provisioning/internal/domain/model"
	"telegram-vpn-provisioning/internal/domain/ports/repository"
)

const purchaseIndexKey = "purchase:index"

var _ repository.PurchaseSessionRepository = (*PurchaseSessionRepo)(nil)

// PurchaseSessionRepo stores pending purchases as JSON with a sliding TTL.
// A set indexes the requesters so the approver can list open purchases.
type PurchaseSessionRepo struct {
	client RedisClient
	ttl    time.Duration
}

func NewPurchaseSessionRepo(client RedisClient, ttl time.Duration) *PurchaseSessionRepo {
	return &PurchaseSessionRepo{client: client, ttl: ttl}
}

func purchaseKey(requesterID int64) string {
	return fmt.Sprintf("purchase:%d", requesterID)
}

func (r *PurchaseSessionRepo) Get(ctx context.Context, requesterID int64) (*model.PendingPurchase, error) {
	data, err := r.client.Get(ctx, purchaseKey(requesterID))
	if IsNil(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var p model.PendingPurchase
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PurchaseSessionRepo) Save(ctx context.Context, p *model.PendingPurchase) error {
	if p == nil || p.RequesterID == 0 {
		return domain.ErrInvalidArgument
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, purchaseKey(p.RequesterID), data, r.ttl); err != nil {
		return err
	}
	return r.client.SAdd(ctx, purchaseIndexKey, strconv.FormatInt(p.RequesterID, 10))
}

func (r *PurchaseSessionRepo) Delete(ctx context.Context, requesterID int64) error {
	if err := r.client.Del(ctx, purchaseKey(requesterID)); err != nil {
		return err
	}
	return r.client.SRem(ctx, purchaseIndexKey, strconv.FormatInt(requesterID, 10))
}

// List returns live purchases, oldest first, pruning index entries whose key expired.
func (r *PurchaseSessionRepo) List(ctx context.Context) ([]*model.PendingPurchase, error) {
	members, err := r.client.SMembers(ctx, purchaseIndexKey)
	if err != nil {
		return nil, err
	}
	out := make([]*model.PendingPurchase, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			_ = r.client.SRem(ctx, purchaseIndexKey, m)
			continue
		}
		p, err := r.Get(ctx, id)
		if err == domain.ErrNotFound {
			_ = r.client.SRem(ctx, purchaseIndexKey, m)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
