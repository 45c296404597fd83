package slack

import (
	"context"
	"fmt"
	"time"

	"github.com/slack-go/slack"

	"boxd-notifier/internal/domain"
	"boxd-notifier/internal/infra/metrics"
)

// API — часть slack.Client, которой пользуется адаптер.
type API interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	OpenViewContext(ctx context.Context, triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error)
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error)
}

// Sink публикует уведомления в канал Slack. Target — идентификатор канала.
type Sink struct {
	api API
}

var _ domain.Sink = (*Sink)(nil)

// NewSink создаёт публикатор.
func NewSink(api API) *Sink {
	return &Sink{api: api}
}

// Deliver отправляет сообщение с блоками и текстом для уведомлений.
func (s *Sink) Deliver(ctx context.Context, target string, msg domain.RenderedMessage) error {
	start := time.Now()
	_, _, err := s.api.PostMessageContext(ctx, target,
		slack.MsgOptionText(msg.Text, false),
		slack.MsgOptionBlocks(Blocks(msg.Blocks)...),
	)
	metrics.ObserveNetworkRequest("slack", "post_message", "channel", start, err)
	if err != nil {
		return fmt.Errorf("slack: отправка в %s: %w", target, err)
	}
	return nil
}

// Blocks переводит нейтральные блоки в Block Kit.
func Blocks(blocks []domain.Block) []slack.Block {
	out := make([]slack.Block, 0, len(blocks))
	for _, block := range blocks {
		switch block.Type {
		case domain.BlockSection:
			var accessory *slack.Accessory
			if block.ImageURL != "" {
				accessory = slack.NewAccessory(slack.NewImageBlockElement(block.ImageURL, block.ImageAlt))
			}
			text := slack.NewTextBlockObject(slack.MarkdownType, block.Text, false, false)
			out = append(out, slack.NewSectionBlock(text, nil, accessory))
		case domain.BlockActions:
			elements := make([]slack.BlockElement, 0, len(block.Buttons))
			for _, button := range block.Buttons {
				label := slack.NewTextBlockObject(slack.PlainTextType, button.Text, true, false)
				element := slack.NewButtonBlockElement(button.ActionID, "", label)
				element.URL = button.URL
				elements = append(elements, element)
			}
			if len(elements) > 0 {
				out = append(out, slack.NewActionBlock("", elements...))
			}
		}
	}
	return out
}
