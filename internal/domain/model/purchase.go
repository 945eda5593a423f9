package model

import (
	"fmt"
	"strings"
	"time"

	"telegram-vpn-provisioning/internal/domain"
)

type PurchaseState string

const (
	PurchaseAwaitingPlan             PurchaseState = "awaiting_plan"
	PurchaseAwaitingMethod           PurchaseState = "awaiting_method"
	PurchaseAwaitingReceipt          PurchaseState = "awaiting_receipt"
	PurchaseAwaitingConfirmationCode PurchaseState = "awaiting_confirmation_code"
	PurchaseAwaitingApproval         PurchaseState = "awaiting_approval"
	PurchaseApproved                 PurchaseState = "approved"
	PurchaseRejected                 PurchaseState = "rejected"
	PurchaseCancelled                PurchaseState = "cancelled"
)

func (s PurchaseState) Terminal() bool {
	return s == PurchaseApproved || s == PurchaseRejected || s == PurchaseCancelled
}

// PaymentMethod is a closed-set entry describing how a requester pays.
type PaymentMethod struct {
	ID           string
	Label        string
	Destination  string // account/card shown to the requester
	RequiresCode bool   // a confirmation code must follow the receipt
}

// PendingPurchase is the in-progress, not-yet-approved self-service buy of one requester.
type PendingPurchase struct {
	ID               string        `json:"id"`
	RequesterID      int64         `json:"requester_id"`
	RequesterName    string        `json:"requester_name"`
	State            PurchaseState `json:"state"`
	Plan             string        `json:"plan,omitempty"`
	PaymentMethod    string        `json:"payment_method,omitempty"`
	RequiresCode     bool          `json:"requires_code,omitempty"`
	ReceiptReference string        `json:"receipt_reference,omitempty"`
	ConfirmationCode string        `json:"confirmation_code,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// NewPendingPurchase starts a purchase in AwaitingPlan.
func NewPendingPurchase(id string, requesterID int64, requesterName string, now time.Time) (*PendingPurchase, error) {
	if id == "" || requesterID == 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &PendingPurchase{
		ID:            id,
		RequesterID:   requesterID,
		RequesterName: requesterName,
		State:         PurchaseAwaitingPlan,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (p *PendingPurchase) transitionErr(action string) error {
	return fmt.Errorf("%w: %s in state %s", domain.ErrInvalidTransition, action, p.State)
}

// SelectPlan restarts the flow at AwaitingMethod from any non-terminal state,
// discarding method, receipt and code.
func (p *PendingPurchase) SelectPlan(plan string, now time.Time) error {
	if p.State.Terminal() {
		return p.transitionErr("select plan")
	}
	p.Plan = plan
	p.PaymentMethod = ""
	p.RequiresCode = false
	p.ReceiptReference = ""
	p.ConfirmationCode = ""
	p.State = PurchaseAwaitingMethod
	p.UpdatedAt = now
	return nil
}

func (p *PendingPurchase) SelectMethod(m PaymentMethod, now time.Time) error {
	if p.State != PurchaseAwaitingMethod {
		return p.transitionErr("select method")
	}
	p.PaymentMethod = m.ID
	p.RequiresCode = m.RequiresCode
	p.State = PurchaseAwaitingReceipt
	p.UpdatedAt = now
	return nil
}

// SubmitEvidence stores the receipt and moves to the code step or straight to approval.
func (p *PendingPurchase) SubmitEvidence(ref string, now time.Time) error {
	if p.State != PurchaseAwaitingReceipt || ref == "" {
		return p.transitionErr("submit evidence")
	}
	p.ReceiptReference = ref
	if p.RequiresCode {
		p.State = PurchaseAwaitingConfirmationCode
	} else {
		p.State = PurchaseAwaitingApproval
	}
	p.UpdatedAt = now
	return nil
}

func (p *PendingPurchase) SubmitCode(code string, now time.Time) error {
	code = strings.TrimSpace(code)
	if p.State != PurchaseAwaitingConfirmationCode || code == "" {
		return p.transitionErr("submit code")
	}
	p.ConfirmationCode = code
	p.State = PurchaseAwaitingApproval
	p.UpdatedAt = now
	return nil
}

// Decide moves an AwaitingApproval purchase to Approved or Rejected.
func (p *PendingPurchase) Decide(approve bool, now time.Time) error {
	if p.State != PurchaseAwaitingApproval {
		if !approve && !p.State.Terminal() {
			p.State = PurchaseRejected
			p.UpdatedAt = now
			return nil
		}
		return p.transitionErr("decide")
	}
	if approve {
		p.State = PurchaseApproved
	} else {
		p.State = PurchaseRejected
	}
	p.UpdatedAt = now
	return nil
}

func (p *PendingPurchase) Cancel(now time.Time) error {
	if p.State.Terminal() {
		return p.transitionErr("cancel")
	}
	p.State = PurchaseCancelled
	p.UpdatedAt = now
	return nil
}
