package application

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"telegram-vpn-provisioning/internal/domain"
	"telegram-vpn-provisioning/internal/domain/model"
	"telegram-vpn-provisioning/internal/domain/ports/adapter"
	"telegram-vpn-provisioning/internal/usecase"
)

// StartPurchase opens a self-service purchase for the requester.
func (b *BotFacade) StartPurchase(ctx context.Context, tgID int64, name string) error {
	_, err := b.Purchase.Start(ctx, tgID, name)
	return b.reportErr(ctx, tgID, err)
}

// PurchaseCallback feeds a buy:* keyboard answer to the purchase in progress.
func (b *BotFacade) PurchaseCallback(ctx context.Context, tgID int64, data string) error {
	var in usecase.PurchaseInput
	switch {
	case data == usecase.CallbackCancel:
		in = usecase.PurchaseInput{Kind: usecase.InputCancel}
	case strings.HasPrefix(data, usecase.CallbackPlanPrefix):
		in = usecase.PurchaseInput{Kind: usecase.InputPlan, Value: strings.TrimPrefix(data, usecase.CallbackPlanPrefix)}
	case strings.HasPrefix(data, usecase.CallbackMethodPrefix):
		in = usecase.PurchaseInput{Kind: usecase.InputMethod, Value: strings.TrimPrefix(data, usecase.CallbackMethodPrefix)}
	default:
		return b.notifier.Send(ctx, tgID, b.tr.T("error_unknown_action"))
	}
	_, err := b.Purchase.Advance(ctx, tgID, in)
	if errors.Is(err, domain.ErrNoPendingPurchase) {
		return b.sendClientMenu(ctx, tgID, b.tr.T("session_expired"))
	}
	return b.reportErr(ctx, tgID, err)
}

// DecisionCallback applies an approve or reject button pressed by the approver.
func (b *BotFacade) DecisionCallback(ctx context.Context, actorID int64, data string) error {
	approve := strings.HasPrefix(data, usecase.CallbackApprovePrefix)
	raw := strings.TrimPrefix(strings.TrimPrefix(data, usecase.CallbackApprovePrefix), usecase.CallbackRejectPrefix)
	requesterID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return b.notifier.Send(ctx, actorID, b.tr.T("error_unknown_action"))
	}

	if approve {
		_, err = b.Purchase.Approve(ctx, actorID, requesterID)
	} else {
		err = b.Purchase.Reject(ctx, actorID, requesterID)
	}
	switch {
	case err == nil:
		if !approve {
			return b.notifier.Send(ctx, actorID, b.tr.T("admin_purchase_rejected", requesterID))
		}
		return nil
	case errors.Is(err, domain.ErrNoPendingPurchase), errors.Is(err, domain.ErrInvalidTransition):
		return b.notifier.Send(ctx, actorID, b.tr.T("admin_purchase_already_decided", requesterID))
	case errors.Is(err, domain.ErrForbidden):
		return b.notifier.Send(ctx, actorID, b.tr.T("error_unauthorized"))
	}
	// provisioning failures were already reported to both parties
	b.log.Warn().Err(err).Int64("requester", requesterID).Msg("purchase decision failed")
	return nil
}

// MyClients lists the clients owned by the requester, with download buttons.
func (b *BotFacade) MyClients(ctx context.Context, tgID int64) error {
	recs, err := b.Lifecycle.OwnedBy(ctx, tgID)
	if err != nil {
		return b.reportErr(ctx, tgID, err)
	}
	if len(recs) == 0 {
		return b.sendClientMenu(ctx, tgID, b.tr.T("mine_empty"))
	}
	now := b.now()
	var sb strings.Builder
	sb.WriteString(b.tr.T("mine_header", len(recs)))
	opts := make([]adapter.Choice, 0, 2*len(recs))
	for _, r := range recs {
		sb.WriteString("\n")
		if r.IsActive(now) {
			sb.WriteString(b.tr.T("list_line_active", r.ID, r.Plan, b.formatTime(r.ExpiresAt), model.DaysRemaining(r.ExpiresAt, now)))
			opts = append(opts,
				adapter.Choice{Label: b.tr.T("btn_mine_conf", r.ID), Data: CbMineConfPref + r.ID},
				adapter.Choice{Label: b.tr.T("btn_mine_qr", r.ID), Data: CbMineQRPref + r.ID},
			)
		} else {
			sb.WriteString(b.tr.T("list_line_expired", r.ID, r.Plan, b.formatTime(r.ExpiresAt)))
		}
	}
	opts = append(opts, adapter.Choice{Label: b.tr.T("btn_buy"), Data: CbBuy})
	return b.notifier.PresentChoice(ctx, tgID, sb.String(), opts)
}

// MyArtifact sends the conf or QR of a client the requester owns. Admins may
// fetch any client.
func (b *BotFacade) MyArtifact(ctx context.Context, tgID int64, data string) error {
	qr := strings.HasPrefix(data, CbMineQRPref)
	clientID := strings.TrimPrefix(strings.TrimPrefix(data, CbMineQRPref), CbMineConfPref)

	rec, err := b.Lifecycle.Get(ctx, clientID)
	if err != nil {
		return b.reportErr(ctx, tgID, err)
	}
	if rec.Owner != tgID && !b.IsAdmin(tgID) {
		return b.notifier.Send(ctx, tgID, b.tr.T("error_unauthorized"))
	}
	art, err := b.Lifecycle.Artifacts(ctx, clientID)
	if err != nil {
		return b.reportErr(ctx, tgID, err)
	}
	if !qr {
		return b.notifier.SendDocument(ctx, tgID, adapter.FileRef{Path: art.ConfPath}, b.tr.T("conf_caption", clientID))
	}
	if art.QRErr != nil || art.QRPath == "" {
		return b.notifier.Send(ctx, tgID, b.tr.T("qr_unavailable"))
	}
	return b.notifier.SendPhoto(ctx, tgID, adapter.FileRef{Path: art.QRPath}, b.tr.T("qr_caption", clientID))
}
