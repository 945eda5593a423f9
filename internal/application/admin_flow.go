package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"telegram-vpn-provisioning/internal/domain"
	"telegram-vpn-provisioning/internal/domain/model"
	"telegram-vpn-provisioning/internal/domain/ports/adapter"
	"telegram-vpn-provisioning/internal/domain/ports/repository"
	"telegram-vpn-provisioning/internal/infra/metrics"
)

const (
	dataClient = "client"
	dataOp     = "op"
	opCreate   = "create"
	opRenew    = "renew"
)

// AdminAction handles a menu button of the admin panel.
func (b *BotFacade) AdminAction(ctx context.Context, tgID int64, action string) error {
	if !b.IsAdmin(tgID) {
		metrics.IncAdminCommand(action, "unauthorized")
		return b.notifier.Send(ctx, tgID, b.tr.T("error_unauthorized"))
	}
	metrics.IncAdminCommand(action, "authorized")

	ask := func(step, prompt string) error {
		if err := b.states.SetState(ctx, tgID, &repository.ConversationState{Step: step, Data: map[string]string{}}); err != nil {
			return err
		}
		return b.notifier.Send(ctx, tgID, b.tr.T(prompt))
	}

	switch action {
	case CbMenu:
		_ = b.states.ClearState(ctx, tgID)
		return b.sendAdminMenu(ctx, tgID, b.tr.T("admin_menu"))
	case CbCreate:
		return ask(StepAwaitingClientName, "ask_client_name")
	case CbRenew:
		return ask(StepAwaitingRenewName, "ask_renew_name")
	case CbDelete:
		return ask(StepAwaitingDeleteName, "ask_delete_name")
	case CbQR:
		return ask(StepAwaitingQRName, "ask_qr_name")
	case CbConf:
		return ask(StepAwaitingConfName, "ask_conf_name")
	case CbList:
		return b.sendList(ctx, tgID)
	case CbExpiring:
		return b.sendExpiring(ctx, tgID)
	case CbStats:
		return b.sendStats(ctx, tgID)
	case CbPending:
		return b.sendPending(ctx, tgID)
	}
	return b.notifier.Send(ctx, tgID, b.tr.T("error_unknown_action"))
}

// handleAdminText continues an admin conversation. It reports false when no
// conversation is in progress.
func (b *BotFacade) handleAdminText(ctx context.Context, tgID int64, text string) (bool, error) {
	st, err := b.states.GetState(ctx, tgID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	name := strings.TrimSpace(text)
	if name == "" {
		return true, b.notifier.Send(ctx, tgID, b.tr.T("ask_again"))
	}

	switch st.Step {
	case StepAwaitingClientName:
		id := model.SanitizeClientID(name)
		next := &repository.ConversationState{Step: StepAwaitingPlan, Data: map[string]string{dataClient: id, dataOp: opCreate}}
		if err := b.states.SetState(ctx, tgID, next); err != nil {
			return true, err
		}
		return true, b.presentPlans(ctx, tgID, b.tr.T("choose_plan_for", id), false)

	case StepAwaitingRenewName:
		rec, err := b.Lifecycle.Get(ctx, name)
		if err != nil {
			_ = b.states.ClearState(ctx, tgID)
			return true, b.sendAdminMenu(ctx, tgID, b.ErrorText(err))
		}
		next := &repository.ConversationState{Step: StepAwaitingPlan, Data: map[string]string{dataClient: rec.ID, dataOp: opRenew}}
		if err := b.states.SetState(ctx, tgID, next); err != nil {
			return true, err
		}
		return true, b.presentPlans(ctx, tgID, b.tr.T("choose_renew_plan", rec.ID, rec.Plan, b.formatTime(rec.ExpiresAt)), true)

	case StepAwaitingDeleteName:
		_ = b.states.ClearState(ctx, tgID)
		removed, err := b.Lifecycle.Delete(ctx, name)
		if err != nil {
			return true, b.sendAdminMenu(ctx, tgID, b.ErrorText(err))
		}
		if !removed {
			return true, b.sendAdminMenu(ctx, tgID, b.tr.T("delete_nothing", name))
		}
		return true, b.sendAdminMenu(ctx, tgID, b.tr.T("delete_done", name))

	case StepAwaitingQRName:
		_ = b.states.ClearState(ctx, tgID)
		return true, b.sendArtifacts(ctx, tgID, name, false, true)

	case StepAwaitingConfName:
		_ = b.states.ClearState(ctx, tgID)
		return true, b.sendArtifacts(ctx, tgID, name, true, false)

	case StepAwaitingPlan:
		// plans are picked from the keyboard
		return true, b.presentPlans(ctx, tgID, b.tr.T("choose_plan_for", st.Data[dataClient]), st.Data[dataOp] == opRenew)
	}

	_ = b.states.ClearState(ctx, tgID)
	return false, nil
}

// AdminPlan completes a create or renew conversation with the chosen plan key.
func (b *BotFacade) AdminPlan(ctx context.Context, tgID int64, key string) error {
	if !b.IsAdmin(tgID) {
		return b.notifier.Send(ctx, tgID, b.tr.T("error_unauthorized"))
	}
	st, err := b.states.GetState(ctx, tgID)
	if err != nil || st.Step != StepAwaitingPlan {
		return b.sendAdminMenu(ctx, tgID, b.tr.T("session_expired"))
	}

	planName := ""
	if key != keepPlanKey {
		plan, err := b.lookupPlan(key)
		if err != nil {
			return b.presentPlans(ctx, tgID, b.ErrorText(err), st.Data[dataOp] == opRenew)
		}
		planName = plan.Name
	}
	_ = b.states.ClearState(ctx, tgID)
	clientID := st.Data[dataClient]

	switch st.Data[dataOp] {
	case opCreate:
		if planName == "" {
			return b.sendAdminMenu(ctx, tgID, b.tr.T("err_invalid_plan"))
		}
		_ = b.notifier.Send(ctx, tgID, b.tr.T("creating_client", clientID))
		rec, art, err := b.Lifecycle.Create(ctx, clientID, planName, 0)
		if err != nil {
			return b.sendAdminMenu(ctx, tgID, b.ErrorText(err))
		}
		return b.deliver(ctx, tgID, rec, art, b.tr.T("client_created", rec.ID, rec.Plan, b.formatTime(rec.ExpiresAt)))

	case opRenew:
		rec, err := b.Lifecycle.Renew(ctx, clientID, planName)
		if err != nil {
			return b.sendAdminMenu(ctx, tgID, b.ErrorText(err))
		}
		return b.sendAdminMenu(ctx, tgID, b.tr.T("client_renewed", rec.ID, rec.Plan, b.formatTime(rec.ExpiresAt)))
	}
	return b.sendAdminMenu(ctx, tgID, b.tr.T("session_expired"))
}

func (b *BotFacade) lookupPlan(key string) (model.PlanDefinition, error) {
	for _, p := range b.Lifecycle.Plans() {
		if p.Key == key {
			return p, nil
		}
	}
	return model.PlanDefinition{}, fmt.Errorf("%w: key %q", domain.ErrInvalidPlan, key)
}

func (b *BotFacade) presentPlans(ctx context.Context, tgID int64, text string, allowKeep bool) error {
	plans := b.Lifecycle.Plans()
	opts := make([]adapter.Choice, 0, len(plans)+2)
	if allowKeep {
		opts = append(opts, adapter.Choice{Label: b.tr.T("btn_keep_plan"), Data: CbKeepPlan})
	}
	for _, p := range plans {
		opts = append(opts, adapter.Choice{Label: p.Name, Data: CbPlanPrefix + p.Key})
	}
	opts = append(opts, adapter.Choice{Label: b.tr.T("btn_back"), Data: CbMenu})
	return b.notifier.PresentChoice(ctx, tgID, text, opts)
}

// deliver sends the conf file, then the QR or a note that it is unavailable.
func (b *BotFacade) deliver(ctx context.Context, tgID int64, rec *model.ClientRecord, art *model.Artifacts, caption string) error {
	if err := b.notifier.SendDocument(ctx, tgID, adapter.FileRef{Path: art.ConfPath}, caption); err != nil {
		return err
	}
	if art.QRErr != nil || art.QRPath == "" {
		return b.notifier.Send(ctx, tgID, b.tr.T("qr_unavailable"))
	}
	return b.notifier.SendPhoto(ctx, tgID, adapter.FileRef{Path: art.QRPath}, b.tr.T("qr_caption", rec.ID))
}

func (b *BotFacade) sendArtifacts(ctx context.Context, tgID int64, clientID string, conf, qr bool) error {
	art, err := b.Lifecycle.Artifacts(ctx, clientID)
	if err != nil {
		return b.sendAdminMenu(ctx, tgID, b.ErrorText(err))
	}
	if conf {
		if err := b.notifier.SendDocument(ctx, tgID, adapter.FileRef{Path: art.ConfPath}, b.tr.T("conf_caption", clientID)); err != nil {
			return err
		}
	}
	if qr {
		if art.QRErr != nil || art.QRPath == "" {
			return b.notifier.Send(ctx, tgID, b.tr.T("qr_unavailable"))
		}
		return b.notifier.SendPhoto(ctx, tgID, adapter.FileRef{Path: art.QRPath}, b.tr.T("qr_caption", clientID))
	}
	return nil
}

func (b *BotFacade) sendList(ctx context.Context, tgID int64) error {
	recs, err := b.Lifecycle.List(ctx)
	if err != nil {
		return b.sendAdminMenu(ctx, tgID, b.ErrorText(err))
	}
	if len(recs) == 0 {
		return b.sendAdminMenu(ctx, tgID, b.tr.T("list_empty"))
	}
	now := b.now()
	var sb strings.Builder
	sb.WriteString(b.tr.T("list_header", len(recs)))
	for _, r := range recs {
		sb.WriteString("\n")
		if r.IsActive(now) {
			sb.WriteString(b.tr.T("list_line_active", r.ID, r.Plan, b.formatTime(r.ExpiresAt), model.DaysRemaining(r.ExpiresAt, now)))
		} else {
			sb.WriteString(b.tr.T("list_line_expired", r.ID, r.Plan, b.formatTime(r.ExpiresAt)))
		}
	}
	return b.sendAdminMenu(ctx, tgID, sb.String())
}

func (b *BotFacade) sendExpiring(ctx context.Context, tgID int64) error {
	recs, err := b.Lifecycle.Expiring(ctx, b.expiringWindow)
	if err != nil {
		return b.sendAdminMenu(ctx, tgID, b.ErrorText(err))
	}
	if len(recs) == 0 {
		return b.sendAdminMenu(ctx, tgID, b.tr.T("expiring_empty"))
	}
	now := b.now()
	var sb strings.Builder
	sb.WriteString(b.tr.T("expiring_header", len(recs)))
	for _, r := range recs {
		sb.WriteString("\n")
		sb.WriteString(b.tr.T("list_line_active", r.ID, r.Plan, b.formatTime(r.ExpiresAt), model.DaysRemaining(r.ExpiresAt, now)))
	}
	return b.sendAdminMenu(ctx, tgID, sb.String())
}

func (b *BotFacade) sendStats(ctx context.Context, tgID int64) error {
	st, err := b.Lifecycle.Stats(ctx)
	if err != nil {
		return b.sendAdminMenu(ctx, tgID, b.ErrorText(err))
	}
	pending, err := b.Purchase.Pending(ctx)
	if err != nil {
		b.log.Warn().Err(err).Msg("pending purchases unavailable")
	}
	return b.sendAdminMenu(ctx, tgID, b.tr.T("stats", st.Active+st.Expired, st.Active, st.Expired, st.Invalid, len(pending)))
}

func (b *BotFacade) sendPending(ctx context.Context, tgID int64) error {
	list, err := b.Purchase.Pending(ctx)
	if err != nil {
		return b.sendAdminMenu(ctx, tgID, b.ErrorText(err))
	}
	if len(list) == 0 {
		return b.sendAdminMenu(ctx, tgID, b.tr.T("pending_empty"))
	}
	var sb strings.Builder
	sb.WriteString(b.tr.T("pending_header", len(list)))
	for _, p := range list {
		plan := p.Plan
		if plan == "" {
			plan = "-"
		}
		sb.WriteString("\n")
		sb.WriteString(b.tr.T("pending_line", p.RequesterName, p.RequesterID, plan, string(p.State)))
	}
	return b.sendAdminMenu(ctx, tgID, sb.String())
}
