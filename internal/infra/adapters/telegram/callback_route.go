package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-vpn-provisioning/internal/application"
	"telegram-vpn-provisioning/internal/usecase"
)

type cbHandler func(ctx context.Context, query *tgbotapi.CallbackQuery, data string) error

type prefixCB struct {
	Prefix string
	Fn     cbHandler
}

// Exact-match callbacks
func (r *RealTelegramBotAdapter) cbRoutes() map[string]cbHandler {
	admin := func(ctx context.Context, query *tgbotapi.CallbackQuery, data string) error {
		return r.facade.AdminAction(ctx, query.From.ID, data)
	}
	return map[string]cbHandler{
		application.CbMenu:     r.menuCBRoute,
		application.CbCreate:   admin,
		application.CbRenew:    admin,
		application.CbDelete:   admin,
		application.CbQR:       admin,
		application.CbConf:     admin,
		application.CbList:     admin,
		application.CbExpiring: admin,
		application.CbStats:    admin,
		application.CbPending:  admin,

		application.CbBuy:       r.buyCBRoute,
		application.CbMine:      r.mineCBRoute,
		usecase.CallbackCancel: r.purchaseCBRoute,
	}
}

// Prefix-match callbacks
func (r *RealTelegramBotAdapter) cbPrefixRoutes() []prefixCB {
	return []prefixCB{
		{Prefix: application.CbPlanPrefix, Fn: r.adminPlanCBRoute},
		{Prefix: usecase.CallbackPlanPrefix, Fn: r.purchaseCBRoute},
		{Prefix: usecase.CallbackMethodPrefix, Fn: r.purchaseCBRoute},
		{Prefix: usecase.CallbackApprovePrefix, Fn: r.decisionCBRoute},
		{Prefix: usecase.CallbackRejectPrefix, Fn: r.decisionCBRoute},
		{Prefix: application.CbMineConfPref, Fn: r.artifactCBRoute},
		{Prefix: application.CbMineQRPref, Fn: r.artifactCBRoute},
	}
}

func (r *RealTelegramBotAdapter) menuCBRoute(ctx context.Context, query *tgbotapi.CallbackQuery, data string) error {
	if r.facade.IsAdmin(query.From.ID) {
		return r.facade.AdminAction(ctx, query.From.ID, data)
	}
	return r.facade.HandleStart(ctx, query.From.ID)
}

func (r *RealTelegramBotAdapter) adminPlanCBRoute(ctx context.Context, query *tgbotapi.CallbackQuery, data string) error {
	return r.facade.AdminPlan(ctx, query.From.ID, strings.TrimPrefix(data, application.CbPlanPrefix))
}

func (r *RealTelegramBotAdapter) buyCBRoute(ctx context.Context, query *tgbotapi.CallbackQuery, _ string) error {
	return r.facade.StartPurchase(ctx, query.From.ID, displayName(query.From))
}

func (r *RealTelegramBotAdapter) mineCBRoute(ctx context.Context, query *tgbotapi.CallbackQuery, _ string) error {
	return r.facade.MyClients(ctx, query.From.ID)
}

func (r *RealTelegramBotAdapter) purchaseCBRoute(ctx context.Context, query *tgbotapi.CallbackQuery, data string) error {
	return r.facade.PurchaseCallback(ctx, query.From.ID, data)
}

// decisionCBRoute applies the approver's decision, then strips the buttons from
// the request message so it cannot be decided twice from the chat. Best effort.
func (r *RealTelegramBotAdapter) decisionCBRoute(ctx context.Context, query *tgbotapi.CallbackQuery, data string) error {
	err := r.facade.DecisionCallback(ctx, query.From.ID, data)
	if query.Message != nil && query.Message.Chat != nil {
		edit := tgbotapi.NewEditMessageReplyMarkup(query.Message.Chat.ID, query.Message.MessageID,
			tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}})
		if _, rerr := r.bot.Request(edit); rerr != nil {
			r.log.Warn().Err(rerr).Int("message_id", query.Message.MessageID).Msg("clear decision buttons failed")
		}
	}
	return err
}

func (r *RealTelegramBotAdapter) artifactCBRoute(ctx context.Context, query *tgbotapi.CallbackQuery, data string) error {
	return r.facade.MyArtifact(ctx, query.From.ID, data)
}
