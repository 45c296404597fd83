package slack

import (
	"context"
	"errors"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"golang.org/x/sync/errgroup"

	"boxd-notifier/internal/infra/metrics"
)

// maxInflight ограничивает число одновременно выполняемых команд.
const maxInflight = 16

// acker подтверждает получение конверта socket mode.
type acker func(req socketmode.Request, payload ...any)

// NewClients создаёт веб-клиент и клиент socket mode.
func NewClients(botToken, appToken string) (*slack.Client, *socketmode.Client) {
	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	return api, socketmode.New(api)
}

// Listen обрабатывает события socket mode до отмены контекста.
func (c *Commands) Listen(ctx context.Context, client *socketmode.Client) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := client.RunContext(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		return c.serve(gctx, client.Events, client.Ack)
	})
	return g.Wait()
}

// serve подтверждает каждый конверт сразу и выполняет обработчики в фоне.
// Возвращается после отмены контекста или закрытия канала, дождавшись запущенных обработчиков.
func (c *Commands) serve(ctx context.Context, events <-chan socketmode.Event, ack acker) error {
	var handlers errgroup.Group
	handlers.SetLimit(maxInflight)
	for {
		select {
		case <-ctx.Done():
			return handlers.Wait()
		case evt, ok := <-events:
			if !ok {
				return handlers.Wait()
			}
			c.handleEvent(ctx, &handlers, evt, ack)
		}
	}
}

func (c *Commands) handleEvent(ctx context.Context, handlers *errgroup.Group, evt socketmode.Event, ack acker) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		c.log.Debug().Msg("slack: подключение к socket mode")
	case socketmode.EventTypeConnected:
		c.log.Info().Msg("slack: socket mode подключён")
	case socketmode.EventTypeConnectionError:
		c.log.Warn().Msg("slack: ошибка соединения socket mode")
	case socketmode.EventTypeSlashCommand:
		cmd, ok := evt.Data.(slack.SlashCommand)
		if !ok || evt.Request == nil {
			return
		}
		ack(*evt.Request)
		handlers.Go(func() error {
			c.respond(ctx, cmd, c.HandleSlash(ctx, cmd))
			return nil
		})
	case socketmode.EventTypeInteractive:
		cb, ok := evt.Data.(slack.InteractionCallback)
		if !ok || evt.Request == nil {
			return
		}
		ack(*evt.Request)
		handlers.Go(func() error {
			c.HandleInteraction(ctx, cb)
			return nil
		})
	}
}

// respond показывает ответ на команду только её автору.
func (c *Commands) respond(ctx context.Context, cmd slack.SlashCommand, text string) {
	if text == "" {
		return
	}
	start := time.Now()
	_, err := c.api.PostEphemeralContext(ctx, cmd.ChannelID, cmd.UserID, slack.MsgOptionText(text, false))
	metrics.ObserveNetworkRequest("slack", "post_ephemeral", "channel", start, err)
	if err != nil {
		c.log.Warn().Err(err).Str("chat_identity", cmd.UserID).Msg("slack: не удалось отправить ответ на команду")
	}
}
