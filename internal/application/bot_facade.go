package application

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"telegram-vpn-provisioning/internal/domain"
	"telegram-vpn-provisioning/internal/domain/ports/adapter"
	"telegram-vpn-provisioning/internal/domain/ports/repository"
	"telegram-vpn-provisioning/internal/usecase"
)

// Callback payloads owned by the facade. Purchase payloads live in usecase.
const (
	CbMenu     = "menu"
	CbCreate   = "adm:create"
	CbRenew    = "adm:renew"
	CbDelete   = "adm:delete"
	CbQR       = "adm:qr"
	CbConf     = "adm:conf"
	CbList     = "adm:list"
	CbExpiring = "adm:expiring"
	CbStats    = "adm:stats"
	CbPending  = "adm:pending"

	CbPlanPrefix = "adm:plan:"
	CbKeepPlan   = "adm:plan:" + keepPlanKey

	CbBuy          = "buy:start"
	CbMine         = "mine:list"
	CbMineConfPref = "mine:conf:"
	CbMineQRPref   = "mine:qr:"
)

const keepPlanKey = "_keep"

// Admin conversation steps.
const (
	StepAwaitingClientName = "awaiting_client_name"
	StepAwaitingPlan       = "awaiting_plan"
	StepAwaitingRenewName  = "awaiting_renew_name"
	StepAwaitingDeleteName = "awaiting_delete_name"
	StepAwaitingQRName     = "awaiting_qr_name"
	StepAwaitingConfName   = "awaiting_conf_name"
)

// BotFacade turns chat events into use case calls and answers through the Notifier.
// The transport only parses updates and renders what the Notifier is given.
type BotFacade struct {
	Lifecycle usecase.LifecycleUseCase
	Purchase  usecase.PurchaseUseCase

	states         repository.StateRepository
	notifier       adapter.Notifier
	tr             usecase.Translator
	adminID        int64
	expiringWindow time.Duration
	loc            *time.Location
	now            func() time.Time
	log            *zerolog.Logger
}

func NewBotFacade(
	lifecycle usecase.LifecycleUseCase,
	purchase usecase.PurchaseUseCase,
	states repository.StateRepository,
	notifier adapter.Notifier,
	tr usecase.Translator,
	adminID int64,
	expiringWindow time.Duration,
	logger *zerolog.Logger,
) *BotFacade {
	l := logger.With().Str("component", "BotFacade").Logger()
	return &BotFacade{
		Lifecycle:      lifecycle,
		Purchase:       purchase,
		states:         states,
		notifier:       notifier,
		tr:             tr,
		adminID:        adminID,
		expiringWindow: expiringWindow,
		loc:            time.UTC,
		now:            time.Now,
		log:            &l,
	}
}

func (b *BotFacade) IsAdmin(tgID int64) bool { return tgID == b.adminID }

// HandleStart greets the user with the menu matching their role.
func (b *BotFacade) HandleStart(ctx context.Context, tgID int64) error {
	if b.IsAdmin(tgID) {
		_ = b.states.ClearState(ctx, tgID)
		return b.sendAdminMenu(ctx, tgID, b.tr.T("admin_welcome"))
	}
	return b.sendClientMenu(ctx, tgID, b.tr.T("client_welcome"))
}

// HandleCancel aborts whatever conversation the user is in.
func (b *BotFacade) HandleCancel(ctx context.Context, tgID int64) error {
	if b.IsAdmin(tgID) {
		if _, err := b.states.GetState(ctx, tgID); err == nil {
			_ = b.states.ClearState(ctx, tgID)
			return b.sendAdminMenu(ctx, tgID, b.tr.T("cancelled"))
		}
	}
	err := b.Purchase.Cancel(ctx, tgID)
	if errors.Is(err, domain.ErrNoPendingPurchase) {
		return b.notifier.Send(ctx, tgID, b.tr.T("nothing_to_cancel"))
	}
	return err
}

// HandleText routes free text: admin conversations first, then purchase input.
func (b *BotFacade) HandleText(ctx context.Context, tgID int64, name, text string) error {
	if b.IsAdmin(tgID) {
		handled, err := b.handleAdminText(ctx, tgID, text)
		if handled || err != nil {
			return err
		}
	}
	_, err := b.Purchase.Advance(ctx, tgID, usecase.PurchaseInput{Kind: usecase.InputText, Value: text})
	if errors.Is(err, domain.ErrNoPendingPurchase) {
		if b.IsAdmin(tgID) {
			return b.sendAdminMenu(ctx, tgID, b.tr.T("admin_menu"))
		}
		return b.sendClientMenu(ctx, tgID, b.tr.T("client_menu"))
	}
	return b.reportErr(ctx, tgID, err)
}

// HandlePhoto feeds a photo as payment evidence.
func (b *BotFacade) HandlePhoto(ctx context.Context, tgID int64, fileHandle string) error {
	_, err := b.Purchase.Advance(ctx, tgID, usecase.PurchaseInput{Kind: usecase.InputEvidence, Value: fileHandle})
	if errors.Is(err, domain.ErrNoPendingPurchase) {
		return b.notifier.Send(ctx, tgID, b.tr.T("photo_without_purchase"))
	}
	return b.reportErr(ctx, tgID, err)
}

func (b *BotFacade) reportErr(ctx context.Context, tgID int64, err error) error {
	if err == nil {
		return nil
	}
	b.log.Warn().Err(err).Int64("tg_id", tgID).Msg("request failed")
	return b.notifier.Send(ctx, tgID, b.ErrorText(err))
}

// ErrorText maps domain failures to a human message.
func (b *BotFacade) ErrorText(err error) string {
	var perr *domain.ProvisioningError
	var aerr *domain.ArtifactError
	switch {
	case errors.As(err, &perr):
		return b.tr.T("err_provisioning", perr.Output)
	case errors.As(err, &aerr):
		return b.tr.T("err_artifact_missing", aerr.Path)
	case errors.Is(err, domain.ErrClientExists):
		return b.tr.T("err_client_exists")
	case errors.Is(err, domain.ErrInvalidPlan):
		return b.tr.T("err_invalid_plan")
	case errors.Is(err, domain.ErrNotFound):
		return b.tr.T("err_not_found")
	case errors.Is(err, domain.ErrStoreUnavailable):
		return b.tr.T("err_store_unavailable")
	case errors.Is(err, domain.ErrForbidden):
		return b.tr.T("error_unauthorized")
	case errors.Is(err, domain.ErrNoPendingPurchase):
		return b.tr.T("err_no_pending_purchase")
	case errors.Is(err, domain.ErrInvalidTransition):
		return b.tr.T("err_invalid_transition")
	case errors.Is(err, domain.ErrQrGenerationFailed):
		return b.tr.T("qr_unavailable")
	default:
		return b.tr.T("error_generic")
	}
}

func (b *BotFacade) sendAdminMenu(ctx context.Context, tgID int64, intro string) error {
	return b.notifier.PresentChoice(ctx, tgID, intro, []adapter.Choice{
		{Label: b.tr.T("btn_create"), Data: CbCreate},
		{Label: b.tr.T("btn_renew"), Data: CbRenew},
		{Label: b.tr.T("btn_delete"), Data: CbDelete},
		{Label: b.tr.T("btn_list"), Data: CbList},
		{Label: b.tr.T("btn_expiring"), Data: CbExpiring},
		{Label: b.tr.T("btn_qr"), Data: CbQR},
		{Label: b.tr.T("btn_conf"), Data: CbConf},
		{Label: b.tr.T("btn_stats"), Data: CbStats},
		{Label: b.tr.T("btn_pending"), Data: CbPending},
	})
}

func (b *BotFacade) sendClientMenu(ctx context.Context, tgID int64, intro string) error {
	return b.notifier.PresentChoice(ctx, tgID, intro, []adapter.Choice{
		{Label: b.tr.T("btn_buy"), Data: CbBuy},
		{Label: b.tr.T("btn_mine"), Data: CbMine},
	})
}

func (b *BotFacade) formatTime(t time.Time) string {
	return t.In(b.loc).Format(usecase.DisplayLayout)
}
