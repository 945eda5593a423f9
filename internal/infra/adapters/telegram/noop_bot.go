package telegram

import (
	"context"

	"github.com/rs/zerolog"

	"telegram-vpn-provisioning/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*NoopBotAdapter)(nil)

// NoopBotAdapter logs outbound messages instead of sending them. Used in
// bot.mode=noop, for local runs driven through the admin API.
type NoopBotAdapter struct {
	log *zerolog.Logger
}

func NewNoopBotAdapter(logger *zerolog.Logger) *NoopBotAdapter {
	l := logger.With().Str("component", "NoopTelegram").Logger()
	return &NoopBotAdapter{log: &l}
}

func (b *NoopBotAdapter) Send(ctx context.Context, recipient int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.log.Info().Int64("recipient", recipient).Str("text", text).Msg("message")
	return nil
}

func (b *NoopBotAdapter) SendDocument(ctx context.Context, recipient int64, file adapter.FileRef, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.log.Info().Int64("recipient", recipient).Str("path", file.Path).Str("handle", file.Handle).Str("caption", caption).Msg("document")
	return nil
}

func (b *NoopBotAdapter) SendPhoto(ctx context.Context, recipient int64, file adapter.FileRef, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.log.Info().Int64("recipient", recipient).Str("path", file.Path).Str("handle", file.Handle).Str("caption", caption).Msg("photo")
	return nil
}

func (b *NoopBotAdapter) PresentChoice(ctx context.Context, recipient int64, text string, options []adapter.Choice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	labels := make([]string, 0, len(options))
	for _, o := range options {
		labels = append(labels, o.Label)
	}
	b.log.Info().Int64("recipient", recipient).Str("text", text).Strs("options", labels).Msg("choice")
	return nil
}
