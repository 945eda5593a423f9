//go:build !integration

package web

import (
	"context"
	"sort"
	"sync"
	"time"

	"telegram-vpn-provisioning/internal/domain"
	"telegram-vpn-provisioning/internal/domain/model"
	"telegram-vpn-provisioning/internal/usecase"
)

type mockLifecycle struct {
	mu        sync.Mutex
	records   map[string]*model.ClientRecord
	createErr error
	renewedAs []string
}

var _ usecase.LifecycleUseCase = (*mockLifecycle)(nil)

func newMockLifecycle(recs ...*model.ClientRecord) *mockLifecycle {
	m := &mockLifecycle{records: map[string]*model.ClientRecord{}}
	for _, r := range recs {
		m.records[r.ID] = r
	}
	return m
}

func (m *mockLifecycle) Create(ctx context.Context, name, plan string, owner int64) (*model.ClientRecord, *model.Artifacts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, nil, m.createErr
	}
	if _, ok := m.records[name]; ok {
		return nil, nil, domain.ErrClientExists
	}
	rec := &model.ClientRecord{ID: name, Plan: plan, ExpiresAt: time.Now().Add(24 * time.Hour).UTC(), Owner: owner}
	m.records[name] = rec
	return rec, &model.Artifacts{ConfPath: "/clients/" + name + ".conf", QRPath: "/clients/" + name + ".png"}, nil
}

func (m *mockLifecycle) Renew(ctx context.Context, id, plan string) (*model.ClientRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	m.renewedAs = append(m.renewedAs, plan)
	return rec, nil
}

func (m *mockLifecycle) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[id]
	delete(m.records, id)
	return ok, nil
}

func (m *mockLifecycle) Stats(ctx context.Context) (usecase.ClientStats, error) {
	now := time.Now()
	var st usecase.ClientStats
	for _, r := range m.records {
		if r.IsActive(now) {
			st.Active++
		} else {
			st.Expired++
		}
	}
	return st, nil
}

func (m *mockLifecycle) Get(ctx context.Context, id string) (*model.ClientRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

func (m *mockLifecycle) List(ctx context.Context) ([]*model.ClientRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.ClientRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockLifecycle) Expiring(ctx context.Context, window time.Duration) ([]*model.ClientRecord, error) {
	all, _ := m.List(ctx)
	now := time.Now()
	var out []*model.ClientRecord
	for _, r := range all {
		if r.IsActive(now) && r.ExpiresAt.Sub(now) <= window {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockLifecycle) OwnedBy(ctx context.Context, owner int64) ([]*model.ClientRecord, error) {
	return nil, nil
}

func (m *mockLifecycle) Artifacts(ctx context.Context, id string) (*model.Artifacts, error) {
	return nil, domain.ErrNotFound
}

func (m *mockLifecycle) Plans() []model.PlanDefinition {
	return []model.PlanDefinition{
		{Key: "free", Name: "Free (5 horas)", Hours: 5},
		{Key: "d30", Name: "30 días", Days: 30},
	}
}

type mockPurchase struct {
	usecase.PurchaseUseCase
	pending  []*model.PendingPurchase
	err      error
	actors   []int64
	approved []int64
}

func (m *mockPurchase) Pending(ctx context.Context) ([]*model.PendingPurchase, error) {
	return m.pending, nil
}

func (m *mockPurchase) Approve(ctx context.Context, actor, requester int64) (*model.ClientRecord, error) {
	m.actors = append(m.actors, actor)
	if m.err != nil {
		return nil, m.err
	}
	m.approved = append(m.approved, requester)
	return &model.ClientRecord{ID: "ana_42", Plan: "30 días", ExpiresAt: time.Now().Add(30 * 24 * time.Hour), Owner: requester}, nil
}

func (m *mockPurchase) Reject(ctx context.Context, actor, requester int64) error {
	m.actors = append(m.actors, actor)
	return m.err
}
