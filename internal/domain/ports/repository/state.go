package repository

import (
	"context"

	"telegram-vpn-provisioning/internal/domain/model"
)

// ConversationState holds an admin's progress in a multi-step conversation.
type ConversationState struct {
	Step string            `json:"step"` // e.g. "awaiting_client_name", "awaiting_plan"
	Data map[string]string `json:"data"` // collected values such as the client name
}

// StateRepository stores conversational state per chat user.
// GetState returns domain.ErrNotFound when nothing is stored.
type StateRepository interface {
	SetState(ctx context.Context, tgID int64, state *ConversationState) error
	GetState(ctx context.Context, tgID int64) (*ConversationState, error)
	ClearState(ctx context.Context, tgID int64) error
}

// PurchaseSessionRepository is the table of pending purchases keyed by requester.
// Get returns domain.ErrNotFound when the requester has no pending purchase.
type PurchaseSessionRepository interface {
	Get(ctx context.Context, requesterID int64) (*model.PendingPurchase, error)
	Save(ctx context.Context, p *model.PendingPurchase) error
	Delete(ctx context.Context, requesterID int64) error
	List(ctx context.Context) ([]*model.PendingPurchase, error)
}
