package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-vpn-provisioning/internal/application"
	"telegram-vpn-provisioning/internal/infra/metrics"
)

type commandHandler func(ctx context.Context, message *tgbotapi.Message) error

// commandRoutes defines all available bot commands and their handlers.
func (r *RealTelegramBotAdapter) commandRoutes() map[string]commandHandler {
	return map[string]commandHandler{
		"start":    r.handleStartCommand,
		"cancel":   r.handleCancelCommand,
		"planes":   r.handleBuyCommand,
		"plans":    r.handleBuyCommand,
		"comprar":  r.handleBuyCommand,
		"mine":     r.handleMineCommand,
		"clientes": r.handleMineCommand,

		"stats":   r.adminOnly(r.adminActionCommand(application.CbStats)),
		"list":    r.adminOnly(r.adminActionCommand(application.CbList)),
		"pending": r.adminOnly(r.adminActionCommand(application.CbPending)),
	}
}

func (r *RealTelegramBotAdapter) adminOnly(next commandHandler) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		if !r.facade.IsAdmin(message.From.ID) {
			metrics.IncAdminCommand("/"+message.Command(), "unauthorized")
			return r.Send(ctx, message.Chat.ID, r.translator.T("error_unauthorized"))
		}
		return next(ctx, message)
	}
}

func (r *RealTelegramBotAdapter) handleStartCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.facade.HandleStart(ctx, message.From.ID)
}

func (r *RealTelegramBotAdapter) handleCancelCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.facade.HandleCancel(ctx, message.From.ID)
}

func (r *RealTelegramBotAdapter) handleBuyCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.facade.StartPurchase(ctx, message.From.ID, displayName(message.From))
}

func (r *RealTelegramBotAdapter) handleMineCommand(ctx context.Context, message *tgbotapi.Message) error {
	return r.facade.MyClients(ctx, message.From.ID)
}

func (r *RealTelegramBotAdapter) adminActionCommand(action string) commandHandler {
	return func(ctx context.Context, message *tgbotapi.Message) error {
		return r.facade.AdminAction(ctx, message.From.ID, action)
	}
}
