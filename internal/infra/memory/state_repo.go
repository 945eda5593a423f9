package memory

import (
	"context"
	"sync"
	"time"

	"telegram-vpn-provisioning/internal/domain"
	"telegram-vpn-provisioning/internal/domain/ports/repository"
)

type stateEntry struct {
	state   repository.ConversationState
	expires time.Time
}

// StateRepo is the in-process conversation state store used when Redis is not configured.
type StateRepo struct {
	mu     sync.Mutex
	states map[int64]stateEntry
	ttl    time.Duration
	now    func() time.Time
}

var _ repository.StateRepository = (*StateRepo)(nil)

func NewStateRepo(ttl time.Duration) *StateRepo {
	return &StateRepo{states: make(map[int64]stateEntry), ttl: ttl, now: time.Now}
}

func (r *StateRepo) SetState(ctx context.Context, tgID int64, state *repository.ConversationState) error {
	if state == nil {
		return domain.ErrInvalidArgument
	}
	cp := repository.ConversationState{Step: state.Step, Data: make(map[string]string, len(state.Data))}
	for k, v := range state.Data {
		cp.Data[k] = v
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[tgID] = stateEntry{state: cp, expires: r.now().Add(r.ttl)}
	return nil
}

func (r *StateRepo) GetState(ctx context.Context, tgID int64) (*repository.ConversationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.states[tgID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if r.ttl > 0 && r.now().After(e.expires) {
		delete(r.states, tgID)
		return nil, domain.ErrNotFound
	}
	st := e.state
	return &st, nil
}

func (r *StateRepo) ClearState(ctx context.Context, tgID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, tgID)
	return nil
}
