// File: internal/usecase/purchase_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"telegram-vpn-provisioning/internal/domain"
	"telegram-vpn-provisioning/internal/domain/model"
	"telegram-vpn-provisioning/internal/domain/ports/adapter"
	"telegram-vpn-provisioning/internal/domain/ports/repository"
	"telegram-vpn-provisioning/internal/infra/logging"
	"telegram-vpn-provisioning/internal/infra/metrics"
)

// Compile-time check
var _ PurchaseUseCase = (*purchaseUC)(nil)

// Callback payload prefixes understood by the transport layer.
const (
	CallbackPlanPrefix    = "buy:plan:"
	CallbackMethodPrefix  = "buy:method:"
	CallbackCancel        = "buy:cancel"
	CallbackApprovePrefix = "pay:approve:"
	CallbackRejectPrefix  = "pay:reject:"
)

// DisplayLayout is how expiries are shown to people.
const DisplayLayout = "2006-01-02 15:04 MST"

type PurchaseInputKind string

const (
	InputPlan     PurchaseInputKind = "plan"     // Value: plan key
	InputMethod   PurchaseInputKind = "method"   // Value: payment method id
	InputEvidence PurchaseInputKind = "evidence" // Value: transport file handle
	InputText     PurchaseInputKind = "text"     // Value: free text, e.g. a confirmation code
	InputCancel   PurchaseInputKind = "cancel"
)

type PurchaseInput struct {
	Kind  PurchaseInputKind
	Value string
}

// Translator renders user-facing text.
type Translator interface {
	T(key string, args ...interface{}) string
}

// PurchaseUseCase drives the self-service purchase state machine.
type PurchaseUseCase interface {
	Start(ctx context.Context, requesterID int64, requesterName string) (*model.PendingPurchase, error)
	// Advance feeds one requester input to the current state. Inputs the state does
	// not expect leave the purchase unchanged and repeat the current prompt.
	Advance(ctx context.Context, requesterID int64, in PurchaseInput) (*model.PendingPurchase, error)
	Approve(ctx context.Context, actorID, requesterID int64) (*model.ClientRecord, error)
	Reject(ctx context.Context, actorID, requesterID int64) error
	Cancel(ctx context.Context, requesterID int64) error
	Pending(ctx context.Context) ([]*model.PendingPurchase, error)
	HasSession(ctx context.Context, requesterID int64) bool
}

type purchaseUC struct {
	sessions   repository.PurchaseSessionRepository
	lifecycle  LifecycleUseCase
	catalog    *model.PlanCatalog
	methods    []model.PaymentMethod
	notifier   adapter.Notifier
	tr         Translator
	approverID int64
	locks      *keyedMutex
	now        func() time.Time
	loc        *time.Location
	log        *zerolog.Logger
}

func NewPurchaseUseCase(
	sessions repository.PurchaseSessionRepository,
	lifecycle LifecycleUseCase,
	catalog *model.PlanCatalog,
	methods []model.PaymentMethod,
	notifier adapter.Notifier,
	tr Translator,
	approverID int64,
	logger *zerolog.Logger,
) *purchaseUC {
	l := logger.With().Str("component", "PurchaseUC").Logger()
	return &purchaseUC{
		sessions:   sessions,
		lifecycle:  lifecycle,
		catalog:    catalog,
		methods:    methods,
		notifier:   notifier,
		tr:         tr,
		approverID: approverID,
		locks:      newKeyedMutex(),
		now:        time.Now,
		loc:        time.UTC,
		log:        &l,
	}
}

func requesterKey(id int64) string { return strconv.FormatInt(id, 10) }

// Start opens a purchase, replacing any previous one of the same requester.
func (uc *purchaseUC) Start(ctx context.Context, requesterID int64, requesterName string) (*model.PendingPurchase, error) {
	unlock := uc.locks.Lock(requesterKey(requesterID))
	defer unlock()

	p, err := model.NewPendingPurchase(ulid.Make().String(), requesterID, requesterName, uc.now())
	if err != nil {
		return nil, err
	}
	if err := uc.sessions.Save(ctx, p); err != nil {
		return nil, err
	}
	metrics.IncPurchase("started")
	logging.With(logging.WithTgID(ctx, requesterID), uc.log).Info().Str("purchase_id", p.ID).Msg("purchase started")
	return p, uc.prompt(ctx, p)
}

func (uc *purchaseUC) HasSession(ctx context.Context, requesterID int64) bool {
	_, err := uc.sessions.Get(ctx, requesterID)
	return err == nil
}

func (uc *purchaseUC) load(ctx context.Context, requesterID int64) (*model.PendingPurchase, error) {
	p, err := uc.sessions.Get(ctx, requesterID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNoPendingPurchase
	}
	return p, err
}

func (uc *purchaseUC) Advance(ctx context.Context, requesterID int64, in PurchaseInput) (*model.PendingPurchase, error) {
	if in.Kind == InputCancel {
		return nil, uc.Cancel(ctx, requesterID)
	}

	unlock := uc.locks.Lock(requesterKey(requesterID))
	defer unlock()

	p, err := uc.load(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	log := logging.With(logging.WithTgID(ctx, requesterID), uc.log)
	now := uc.now()

	switch {
	case in.Kind == InputPlan:
		plan, err := uc.catalog.ByKey(in.Value)
		if err != nil {
			return p, uc.prompt(ctx, p)
		}
		if err := p.SelectPlan(plan.Name, now); err != nil {
			return p, err
		}

	case in.Kind == InputMethod && p.State == model.PurchaseAwaitingMethod:
		m, ok := uc.method(in.Value)
		if !ok {
			return p, uc.prompt(ctx, p)
		}
		if err := p.SelectMethod(m, now); err != nil {
			return p, err
		}

	case in.Kind == InputEvidence && p.State == model.PurchaseAwaitingReceipt && in.Value != "":
		if err := p.SubmitEvidence(in.Value, now); err != nil {
			return p, err
		}

	case in.Kind == InputText && p.State == model.PurchaseAwaitingConfirmationCode && in.Value != "":
		if err := p.SubmitCode(in.Value, now); err != nil {
			return p, uc.prompt(ctx, p)
		}

	default:
		log.Debug().Str("state", string(p.State)).Str("input", string(in.Kind)).Msg("unexpected input; repeating prompt")
		return p, uc.prompt(ctx, p)
	}

	if err := uc.sessions.Save(ctx, p); err != nil {
		return nil, err
	}
	log.Info().Str("purchase_id", p.ID).Str("state", string(p.State)).Msg("purchase advanced")

	if p.State == model.PurchaseAwaitingApproval {
		metrics.IncPurchase("submitted")
		if err := uc.notifyApprover(ctx, p); err != nil {
			log.Error().Err(err).Msg("approver notification failed")
			return p, err
		}
	}
	return p, uc.prompt(ctx, p)
}

func (uc *purchaseUC) method(id string) (model.PaymentMethod, bool) {
	for _, m := range uc.methods {
		if m.ID == id {
			return m, true
		}
	}
	return model.PaymentMethod{}, false
}

// prompt tells the requester what the current state expects next.
func (uc *purchaseUC) prompt(ctx context.Context, p *model.PendingPurchase) error {
	cancel := adapter.Choice{Label: uc.tr.T("btn_cancel"), Data: CallbackCancel}
	switch p.State {
	case model.PurchaseAwaitingPlan:
		plans := uc.catalog.List()
		opts := make([]adapter.Choice, 0, len(plans)+1)
		for _, plan := range plans {
			opts = append(opts, adapter.Choice{Label: plan.Name, Data: CallbackPlanPrefix + plan.Key})
		}
		return uc.notifier.PresentChoice(ctx, p.RequesterID, uc.tr.T("buy_choose_plan"), append(opts, cancel))
	case model.PurchaseAwaitingMethod:
		opts := make([]adapter.Choice, 0, len(uc.methods)+1)
		for _, m := range uc.methods {
			opts = append(opts, adapter.Choice{Label: m.Label, Data: CallbackMethodPrefix + m.ID})
		}
		return uc.notifier.PresentChoice(ctx, p.RequesterID, uc.tr.T("buy_choose_method", p.Plan), append(opts, cancel))
	case model.PurchaseAwaitingReceipt:
		m, _ := uc.method(p.PaymentMethod)
		return uc.notifier.Send(ctx, p.RequesterID, uc.tr.T("buy_send_receipt", m.Label, m.Destination))
	case model.PurchaseAwaitingConfirmationCode:
		return uc.notifier.Send(ctx, p.RequesterID, uc.tr.T("buy_send_code"))
	case model.PurchaseAwaitingApproval:
		return uc.notifier.Send(ctx, p.RequesterID, uc.tr.T("buy_wait_approval"))
	}
	return nil
}

func (uc *purchaseUC) notifyApprover(ctx context.Context, p *model.PendingPurchase) error {
	m, _ := uc.method(p.PaymentMethod)
	code := p.ConfirmationCode
	if code == "" {
		code = "-"
	}
	caption := uc.tr.T("admin_purchase_request", p.RequesterName, p.RequesterID, p.Plan, m.Label, code)
	if err := uc.notifier.SendPhoto(ctx, uc.approverID, adapter.FileRef{Handle: p.ReceiptReference}, caption); err != nil {
		return err
	}
	uid := strconv.FormatInt(p.RequesterID, 10)
	return uc.notifier.PresentChoice(ctx, uc.approverID, uc.tr.T("admin_purchase_decide", p.RequesterName), []adapter.Choice{
		{Label: uc.tr.T("btn_approve"), Data: CallbackApprovePrefix + uid},
		{Label: uc.tr.T("btn_reject"), Data: CallbackRejectPrefix + uid},
	})
}

// Approve creates the purchased client. The pending purchase is removed before
// provisioning so a second decision for the same requester finds nothing.
func (uc *purchaseUC) Approve(ctx context.Context, actorID, requesterID int64) (*model.ClientRecord, error) {
	if actorID != uc.approverID {
		return nil, domain.ErrForbidden
	}
	defer logging.TraceDuration(uc.log, "PurchaseUC.Approve")()

	p, err := uc.take(ctx, requesterID, true)
	if err != nil {
		return nil, err
	}
	log := logging.With(logging.WithTgID(ctx, requesterID), uc.log)

	clientID := model.DeriveClientID(p.RequesterName, p.RequesterID, uc.now(), p.ID)
	rec, art, err := uc.lifecycle.Create(ctx, clientID, p.Plan, p.RequesterID)
	if err != nil {
		metrics.IncPurchase("failed")
		log.Error().Err(err).Str("client_id", clientID).Msg("purchase provisioning failed; purchase discarded")
		uc.send(ctx, requesterID, uc.tr.T("buy_failed"))
		uc.send(ctx, uc.approverID, uc.tr.T("admin_purchase_failed", p.RequesterName, requesterID, err.Error()))
		return nil, err
	}

	metrics.IncPurchase("approved")
	log.Info().Str("client_id", rec.ID).Msg("purchase approved")

	expiry := rec.ExpiresAt.In(uc.loc).Format(DisplayLayout)
	if err := uc.notifier.SendDocument(ctx, requesterID, adapter.FileRef{Path: art.ConfPath}, uc.tr.T("buy_approved", rec.ID, rec.Plan, expiry)); err != nil {
		log.Error().Err(err).Msg("credential delivery failed")
	}
	if art.QRErr == nil && art.QRPath != "" {
		if err := uc.notifier.SendPhoto(ctx, requesterID, adapter.FileRef{Path: art.QRPath}, uc.tr.T("qr_caption", rec.ID)); err != nil {
			log.Error().Err(err).Msg("qr delivery failed")
		}
	} else {
		uc.send(ctx, requesterID, uc.tr.T("qr_unavailable"))
	}
	uc.send(ctx, uc.approverID, uc.tr.T("admin_purchase_done", rec.ID, p.RequesterName, expiry))
	return rec, nil
}

// Reject discards the purchase from any non-terminal state.
func (uc *purchaseUC) Reject(ctx context.Context, actorID, requesterID int64) error {
	if actorID != uc.approverID {
		return domain.ErrForbidden
	}
	p, err := uc.take(ctx, requesterID, false)
	if err != nil {
		return err
	}
	metrics.IncPurchase("rejected")
	uc.log.Info().Int64("tg_id", requesterID).Str("purchase_id", p.ID).Msg("purchase rejected")
	uc.send(ctx, requesterID, uc.tr.T("buy_rejected"))
	return nil
}

func (uc *purchaseUC) Cancel(ctx context.Context, requesterID int64) error {
	unlock := uc.locks.Lock(requesterKey(requesterID))
	p, err := uc.load(ctx, requesterID)
	if err == nil {
		if err = p.Cancel(uc.now()); err == nil {
			err = uc.sessions.Delete(ctx, requesterID)
		}
	}
	unlock()
	if err != nil {
		return err
	}
	metrics.IncPurchase("cancelled")
	uc.send(ctx, requesterID, uc.tr.T("buy_cancelled"))
	return nil
}

// take applies the approver decision and removes the session.
func (uc *purchaseUC) take(ctx context.Context, requesterID int64, approve bool) (*model.PendingPurchase, error) {
	unlock := uc.locks.Lock(requesterKey(requesterID))
	defer unlock()

	p, err := uc.load(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if err := p.Decide(approve, uc.now()); err != nil {
		return nil, err
	}
	if err := uc.sessions.Delete(ctx, requesterID); err != nil {
		return nil, fmt.Errorf("discard purchase: %w", err)
	}
	return p, nil
}

func (uc *purchaseUC) Pending(ctx context.Context) ([]*model.PendingPurchase, error) {
	return uc.sessions.List(ctx)
}

func (uc *purchaseUC) send(ctx context.Context, to int64, text string) {
	if err := uc.notifier.Send(ctx, to, text); err != nil {
		uc.log.Error().Err(err).Int64("recipient", to).Msg("notification failed")
	}
}
