package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"boxd-notifier/internal/domain"
	"boxd-notifier/internal/infra/metrics"
)

// Sender — часть tgbotapi.BotAPI, нужная для отправки сообщений.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sink публикует уведомления в чат Telegram. Target — числовой идентификатор чата.
type Sink struct {
	bot Sender
}

var _ domain.Sink = (*Sink)(nil)

// NewSink создаёт публикатор.
func NewSink(bot Sender) *Sink {
	return &Sink{bot: bot}
}

// Deliver отправляет текст сообщения частями. Кнопки прикрепляются к последней части.
func (s *Sink) Deliver(ctx context.Context, target string, msg domain.RenderedMessage) error {
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: некорректный чат %q: %w", target, err)
	}
	parts := Split(msg.Text, MessageLimit)
	if len(parts) == 0 {
		return nil
	}
	markup := keyboard(msg.Blocks)
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return err
		}
		out := tgbotapi.NewMessage(chatID, part)
		if i == len(parts)-1 && markup != nil {
			out.ReplyMarkup = *markup
		}
		start := time.Now()
		err := send(ctx, s.bot, out)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", "chat", start, err)
		if err != nil {
			return fmt.Errorf("telegram: отправка: %w", err)
		}
	}
	return nil
}

// send ограничивает вызов Send контекстом: tgbotapi не принимает context.
// После отмены запрос дорабатывает в фоне до таймаута http.Client бота.
func send(ctx context.Context, bot Sender, c tgbotapi.Chattable) error {
	done := make(chan error, 1)
	go func() {
		_, err := bot.Send(c)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func keyboard(blocks []domain.Block) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, block := range blocks {
		if block.Type != domain.BlockActions {
			continue
		}
		for _, button := range block.Buttons {
			if button.URL == "" {
				continue
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL(button.Text, button.URL)))
		}
	}
	if len(rows) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}
