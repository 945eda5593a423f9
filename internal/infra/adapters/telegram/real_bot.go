package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"telegram-vpn-provisioning/internal/config"
	"telegram-vpn-provisioning/internal/domain/ports/adapter"
	"telegram-vpn-provisioning/internal/infra/logging"
	"telegram-vpn-provisioning/internal/infra/metrics"
	red "telegram-vpn-provisioning/internal/infra/redis"
	"telegram-vpn-provisioning/internal/usecase"
)

var _ adapter.Notifier = (*RealTelegramBotAdapter)(nil)

// botClient is the part of *tgbotapi.BotAPI the adapter uses.
type botClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Facade is the application entry point the transport delegates to.
type Facade interface {
	IsAdmin(tgID int64) bool
	HandleStart(ctx context.Context, tgID int64) error
	HandleCancel(ctx context.Context, tgID int64) error
	HandleText(ctx context.Context, tgID int64, name, text string) error
	HandlePhoto(ctx context.Context, tgID int64, fileHandle string) error
	AdminAction(ctx context.Context, tgID int64, action string) error
	AdminPlan(ctx context.Context, tgID int64, key string) error
	StartPurchase(ctx context.Context, tgID int64, name string) error
	PurchaseCallback(ctx context.Context, tgID int64, data string) error
	DecisionCallback(ctx context.Context, actorID int64, data string) error
	MyClients(ctx context.Context, tgID int64) error
	MyArtifact(ctx context.Context, tgID int64, data string) error
}

const (
	commandRateLimit  = 20
	callbackRateLimit = 30
)

// RealTelegramBotAdapter delivers notifications through the Bot API and polls
// updates concurrently, delegating every event to the Facade.
type RealTelegramBotAdapter struct {
	bot         botClient
	cfg         *config.BotConfig
	facade      Facade
	rateLimiter *red.RateLimiter
	translator  usecase.Translator
	log         *zerolog.Logger

	updateWorkers int
	cancelPolling context.CancelFunc
}

func NewRealTelegramBotAdapter(cfg *config.BotConfig, rateLimiter *red.RateLimiter, translator usecase.Translator, logger *zerolog.Logger) (*RealTelegramBotAdapter, error) {
	if cfg == nil {
		return nil, errors.New("bot config is nil")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, err
	}
	return newAdapter(bot, cfg, rateLimiter, translator, logger), nil
}

func newAdapter(bot botClient, cfg *config.BotConfig, rateLimiter *red.RateLimiter, translator usecase.Translator, logger *zerolog.Logger) *RealTelegramBotAdapter {
	l := logger.With().Str("component", "TelegramAdapter").Logger()
	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	return &RealTelegramBotAdapter{
		bot:           bot,
		cfg:           cfg,
		rateLimiter:   rateLimiter,
		translator:    translator,
		log:           &l,
		updateWorkers: workers,
	}
}

// Attach sets the facade. The facade needs the adapter as its Notifier, so the
// two are wired after construction.
func (r *RealTelegramBotAdapter) Attach(f Facade) { r.facade = f }

// StartPolling begins polling Telegram for updates concurrently.
// It runs until ctx is canceled.
func (r *RealTelegramBotAdapter) StartPolling(ctx context.Context) error {
	if r.facade == nil {
		return errors.New("bot facade is not attached")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := r.bot.GetUpdatesChan(u)

	ctx, cancel := context.WithCancel(ctx)
	r.cancelPolling = cancel

	var wg sync.WaitGroup
	updateChan := make(chan tgbotapi.Update, 100)

	for i := 0; i < r.updateWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				select {
				case update, ok := <-updateChan:
					if !ok {
						return
					}
					r.dispatch(ctx, workerID, update)
				case <-ctx.Done():
					return
				}
			}
		}(i + 1)
	}

	go func() {
		defer close(updateChan)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case updateChan <- update:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	r.log.Info().Int("workers", r.updateWorkers).Msg("telegram polling started")
	<-ctx.Done()
	r.bot.StopReceivingUpdates()
	wg.Wait()
	r.log.Info().Msg("telegram polling stopped")
	return nil
}

func (r *RealTelegramBotAdapter) StopPolling() {
	if r.cancelPolling != nil {
		r.cancelPolling()
	}
}

// dispatch handles one update with its own trace id and never lets a panic
// take the worker down.
func (r *RealTelegramBotAdapter) dispatch(ctx context.Context, workerID int, update tgbotapi.Update) {
	ctx = logging.WithTraceID(ctx, uuid.NewString())
	if from := senderOf(update); from != nil {
		ctx = logging.WithTgID(ctx, from.ID)
	}
	log := logging.With(ctx, r.log)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Int("worker", workerID).Msg("update handler panicked")
		}
	}()
	if err := r.handleUpdate(ctx, update); err != nil {
		log.Error().Err(err).Int("worker", workerID).Msg("error handling update")
	}
}

func senderOf(update tgbotapi.Update) *tgbotapi.User {
	switch {
	case update.CallbackQuery != nil:
		return update.CallbackQuery.From
	case update.Message != nil:
		return update.Message.From
	}
	return nil
}

// displayName prefers the public username, then the first name.
func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (r *RealTelegramBotAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		return r.handleQuery(ctx, update.CallbackQuery)
	}
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return nil
	}
	// private chats only; the chat id equals the user id there
	if !msg.Chat.IsPrivate() {
		return nil
	}

	command := "message"
	switch {
	case msg.IsCommand():
		command = "/" + msg.Command()
	case len(msg.Photo) > 0:
		command = "photo"
	}
	if !r.allow(ctx, msg.From.ID, command, commandRateLimit) {
		return r.Send(ctx, msg.Chat.ID, r.translator.T("rate_limited"))
	}

	if msg.IsCommand() {
		metrics.IncTelegramCommand(command)
		if fn, ok := r.commandRoutes()[msg.Command()]; ok {
			return fn(ctx, msg)
		}
		return r.Send(ctx, msg.Chat.ID, r.translator.T("unknown_command"))
	}
	if len(msg.Photo) > 0 {
		// the last size is the largest
		return r.facade.HandlePhoto(ctx, msg.From.ID, msg.Photo[len(msg.Photo)-1].FileID)
	}
	if strings.TrimSpace(msg.Text) == "" {
		return nil
	}
	return r.facade.HandleText(ctx, msg.From.ID, displayName(msg.From), msg.Text)
}

func (r *RealTelegramBotAdapter) handleQuery(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if query == nil || query.From == nil {
		return errors.New("invalid callback query")
	}
	// stop the client spinner when we return
	defer func() { _, _ = r.bot.Request(tgbotapi.NewCallback(query.ID, "")) }()

	data := strings.TrimSpace(query.Data)
	if !r.allow(ctx, query.From.ID, "cb:"+data, callbackRateLimit) {
		return r.Send(ctx, query.From.ID, r.translator.T("rate_limited"))
	}

	if fn, ok := r.cbRoutes()[data]; ok {
		return fn(ctx, query, data)
	}
	for _, pr := range r.cbPrefixRoutes() {
		if strings.HasPrefix(data, pr.Prefix) {
			return pr.Fn(ctx, query, data)
		}
	}
	return errors.New("unknown callback data")
}

func (r *RealTelegramBotAdapter) allow(ctx context.Context, tgID int64, command string, limit int) bool {
	if r.rateLimiter == nil {
		return true
	}
	allowed, err := r.rateLimiter.Allow(ctx, red.UserCommandKey(tgID, command), limit, time.Minute)
	if err != nil {
		r.log.Warn().Err(err).Msg("rate limit check failed")
		return true
	}
	if !allowed {
		metrics.IncRateLimitTriggered()
	}
	return allowed
}

// Send implements adapter.Notifier.
func (r *RealTelegramBotAdapter) Send(ctx context.Context, recipient int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := r.bot.Send(tgbotapi.NewMessage(recipient, text))
	return err
}

func (r *RealTelegramBotAdapter) SendDocument(ctx context.Context, recipient int64, file adapter.FileRef, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(recipient, requestFile(file))
	doc.Caption = caption
	_, err := r.bot.Send(doc)
	return err
}

func (r *RealTelegramBotAdapter) SendPhoto(ctx context.Context, recipient int64, file adapter.FileRef, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	photo := tgbotapi.NewPhoto(recipient, requestFile(file))
	photo.Caption = caption
	_, err := r.bot.Send(photo)
	return err
}

// PresentChoice renders options as an inline keyboard, one button per row.
func (r *RealTelegramBotAdapter) PresentChoice(ctx context.Context, recipient int64, text string, options []adapter.Choice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(recipient, text)
	if kb, ok := keyboard(options); ok {
		msg.ReplyMarkup = kb
	}
	_, err := r.bot.Send(msg)
	return err
}

func requestFile(f adapter.FileRef) tgbotapi.RequestFileData {
	if f.Handle != "" {
		return tgbotapi.FileID(f.Handle)
	}
	return tgbotapi.FilePath(f.Path)
}

func keyboard(options []adapter.Choice) (tgbotapi.InlineKeyboardMarkup, bool) {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(options))
	for _, o := range options {
		if o.Data == "" {
			continue
		}
		label := strings.TrimSpace(o.Label)
		if label == "" {
			label = "•"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(label, o.Data)))
	}
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

// SetMenuCommands publishes the command menu; the admin chat gets a scoped menu.
func (r *RealTelegramBotAdapter) SetMenuCommands(ctx context.Context) error {
	common := []tgbotapi.BotCommand{
		{Command: "start", Description: "Menu"},
		{Command: "planes", Description: "Comprar / Buy"},
		{Command: "mine", Description: "Mis clientes / My clients"},
		{Command: "cancel", Description: "Cancelar / Cancel"},
	}
	if _, err := r.bot.Request(tgbotapi.NewSetMyCommands(common...)); err != nil {
		return err
	}
	admin := append(append([]tgbotapi.BotCommand{}, common...),
		tgbotapi.BotCommand{Command: "stats", Description: "Estadísticas / Stats"},
		tgbotapi.BotCommand{Command: "list", Description: "Clientes / Clients"},
		tgbotapi.BotCommand{Command: "pending", Description: "Compras pendientes / Pending"},
	)
	_, err := r.bot.Request(tgbotapi.NewSetMyCommandsWithScope(tgbotapi.NewBotCommandScopeChat(r.cfg.AdminID), admin...))
	return err
}
