package bot

import (
	"context"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"boxd-notifier/internal/adapters/telegram"
	"boxd-notifier/internal/domain"
	"boxd-notifier/internal/infra/metrics"
	"boxd-notifier/internal/usecase/accounts"
	"boxd-notifier/internal/usecase/render"
)

const (
	platform       = "telegram"
	eventsCallback = "events:"
)

// Sender — часть tgbotapi.BotAPI, которой пользуется обработчик.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Handler обслуживает вебхук бота.
type Handler struct {
	bot      Sender
	log      zerolog.Logger
	accounts *accounts.Service
	renderer *render.Renderer
	sink     *telegram.Sink
}

// NewHandler создаёт обработчик.
func NewHandler(bot Sender, log zerolog.Logger, accountsUC *accounts.Service, renderer *render.Renderer) *Handler {
	return &Handler{
		bot:      bot,
		log:      log,
		accounts: accountsUC,
		renderer: renderer,
		sink:     telegram.NewSink(bot),
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

// ParseCommand выделяет команду и аргументы. Суффикс @botname отбрасывается.
func ParseCommand(text string) (string, string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	command, args, _ := strings.Cut(text, " ")
	if i := strings.Index(command, "@"); i >= 0 {
		command = command[:i]
	}
	return strings.ToLower(strings.TrimPrefix(command, "/")), strings.TrimSpace(args), true
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	command, args, ok := ParseCommand(msg.Text)
	if !ok {
		return
	}
	chatID := msg.Chat.ID
	identity := strconv.FormatInt(msg.From.ID, 10)

	var err error
	switch command {
	case "start", "help":
		h.reply(chatID, helpMessage(identity), nil)
	case "link":
		err = h.handleLink(ctx, chatID, identity, args)
	case "toggle":
		err = h.handleToggle(ctx, chatID, identity, args)
	case "events":
		err = h.handleEvents(ctx, chatID, identity)
	case "info":
		err = h.handleInfo(ctx, chatID, identity)
	case "pick":
		err = h.handlePick(ctx, chatID, identity)
	default:
		h.reply(chatID, "Unknown command. Try /help", nil)
		return
	}
	metrics.IncCommand(platform, command, err)
	if err != nil {
		h.fail(chatID, identity, command, err)
	}
}

func (h *Handler) handleLink(ctx context.Context, chatID int64, identity, username string) error {
	if username == "" {
		h.reply(chatID, "Send /link <letterboxd username>", nil)
		return nil
	}
	sub, err := h.accounts.Link(ctx, identity, username)
	if err != nil {
		return err
	}
	h.log.Info().Str("chat_identity", identity).Str("upstream_identity", sub.UpstreamID).Msg("bot: аккаунт привязан")
	h.reply(chatID, "Linked to "+strings.TrimSpace(username)+". Use /toggle on in the chat where updates should go.", nil)
	return nil
}

func (h *Handler) handleToggle(ctx context.Context, chatID int64, identity, state string) error {
	enabled, err := h.accounts.Toggle(ctx, identity, strconv.FormatInt(chatID, 10), state)
	if err != nil {
		return err
	}
	if enabled {
		h.reply(chatID, "Posting enabled in this chat.", nil)
	} else {
		h.reply(chatID, "Posting disabled.", nil)
	}
	return nil
}

func (h *Handler) handleEvents(ctx context.Context, chatID int64, identity string) error {
	sub, err := h.accounts.Info(ctx, identity)
	if err != nil {
		return err
	}
	h.reply(chatID, "Choose which events to post:", eventsKeyboard(sub.Kinds))
	return nil
}

func (h *Handler) handleInfo(ctx context.Context, chatID int64, identity string) error {
	text, err := h.accounts.Describe(ctx, identity)
	if err != nil {
		return err
	}
	h.reply(chatID, text, nil)
	return nil
}

func (h *Handler) handlePick(ctx context.Context, chatID int64, identity string) error {
	film, err := h.accounts.PickFromWatchlist(ctx, identity)
	if err != nil {
		return err
	}
	if err := h.sink.Deliver(ctx, strconv.FormatInt(chatID, 10), h.renderer.Pick(film)); err != nil {
		h.log.Error().Err(err).Msg("bot: не удалось отправить фильм")
	}
	return nil
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	if !strings.HasPrefix(cb.Data, eventsCallback) {
		h.answer(cb.ID, "")
		return
	}
	identity := strconv.FormatInt(cb.From.ID, 10)
	kind := domain.ActivityKind(strings.TrimPrefix(cb.Data, eventsCallback))

	kinds, err := h.toggleKind(ctx, identity, kind)
	metrics.IncCommand(platform, "events", err)
	if err != nil {
		h.answer(cb.ID, accounts.UserMessage(err))
		h.log.Warn().Err(err).Str("chat_identity", identity).Msg("bot: не удалось изменить виды событий")
		return
	}
	edit := tgbotapi.NewEditMessageReplyMarkup(cb.Message.Chat.ID, cb.Message.MessageID, *eventsKeyboard(kinds))
	start := time.Now()
	_, err = h.bot.Request(edit)
	metrics.ObserveNetworkRequest("telegram_bot", "edit_markup", strconv.FormatInt(cb.Message.Chat.ID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("bot: не удалось обновить клавиатуру")
	}
	h.answer(cb.ID, "Saved")
}

func (h *Handler) toggleKind(ctx context.Context, identity string, kind domain.ActivityKind) ([]domain.ActivityKind, error) {
	if !kind.Valid() {
		return nil, accounts.ErrUnknownKind
	}
	sub, err := h.accounts.Info(ctx, identity)
	if err != nil {
		return nil, err
	}
	next := make([]string, 0, len(sub.Kinds)+1)
	for _, k := range sub.Kinds {
		if k != kind {
			next = append(next, string(k))
		}
	}
	if !sub.Subscribed(kind) {
		next = append(next, string(kind))
	}
	return h.accounts.SetKinds(ctx, identity, next)
}

func (h *Handler) fail(chatID int64, identity, command string, err error) {
	msg := accounts.UserMessage(err)
	event := h.log.Warn()
	if msg == accounts.FallbackMessage {
		event = h.log.Error()
	}
	event.Err(err).Str("chat_identity", identity).Str("command", command).Msg("bot: команда завершилась ошибкой")
	h.reply(chatID, msg, nil)
}

func (h *Handler) answer(callbackID, text string) {
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(callbackID, text))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", "callback", start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("bot: не удалось ответить на callback")
	}
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := telegram.Split(text, telegram.MessageLimit)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = *keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("bot: не удалось отправить сообщение")
			return
		}
	}
}

func eventsKeyboard(selected []domain.ActivityKind) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(domain.AllKinds))
	for _, kind := range domain.AllKinds {
		mark := "☐ "
		for _, s := range selected {
			if s == kind {
				mark = "✅ "
				break
			}
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(mark+accounts.KindLabel(kind), eventsCallback+string(kind)),
		))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func helpMessage(identity string) string {
	lines := []string{
		"Boxd posts your Letterboxd activity to a chat.",
		"",
		"Your chat ID is " + identity + ". Put it in your Letterboxd bio, then:",
		"/link <username> — link your Letterboxd account",
		"/toggle on|off — post updates to this chat or stop posting",
		"/events — choose which events to post",
		"/info — show your settings",
		"/pick — pick a random film from your watchlist",
	}
	return strings.Join(lines, "\n")
}
