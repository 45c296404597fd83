package slack

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"boxd-notifier/internal/domain"
	"boxd-notifier/internal/infra/metrics"
	"boxd-notifier/internal/usecase/accounts"
	"boxd-notifier/internal/usecase/render"
)

const (
	platform = "slack"

	// EventsActionID — действие чекбоксов в окне выбора событий.
	EventsActionID = "events-change"
	eventsBlockID  = "events"
)

// Commands обслуживает slash-команды и действия в окнах Slack.
type Commands struct {
	api      API
	sink     *Sink
	accounts *accounts.Service
	renderer *render.Renderer
	log      zerolog.Logger
}

// NewCommands создаёт обработчик команд.
func NewCommands(api API, accountsUC *accounts.Service, renderer *render.Renderer, log zerolog.Logger) *Commands {
	return &Commands{
		api:      api,
		sink:     NewSink(api),
		accounts: accountsUC,
		renderer: renderer,
		log:      log,
	}
}

// HandleSlash выполняет команду и возвращает эфемерный ответ. Пустая строка — ответ не нужен.
func (c *Commands) HandleSlash(ctx context.Context, cmd slack.SlashCommand) string {
	name := strings.TrimPrefix(cmd.Command, "/")
	var (
		reply string
		err   error
	)
	switch name {
	case "boxd-link":
		reply, err = c.link(ctx, cmd)
	case "boxd-toggle":
		reply, err = c.toggle(ctx, cmd)
	case "boxd-events":
		err = c.events(ctx, cmd)
	case "boxd-info":
		err = c.info(ctx, cmd)
	case "boxd-pick":
		err = c.pick(ctx, cmd)
	default:
		return "Unknown command."
	}
	metrics.IncCommand(platform, name, err)
	if err != nil {
		msg := accounts.UserMessage(err)
		event := c.log.Warn()
		if msg == accounts.FallbackMessage {
			event = c.log.Error()
		}
		event.Err(err).Str("chat_identity", cmd.UserID).Str("command", name).Msg("slack: команда завершилась ошибкой")
		return msg
	}
	return reply
}

// HandleInteraction сохраняет выбор событий из окна /boxd-events.
func (c *Commands) HandleInteraction(ctx context.Context, cb slack.InteractionCallback) {
	if cb.Type != slack.InteractionTypeBlockActions {
		return
	}
	for _, action := range cb.ActionCallback.BlockActions {
		if action == nil || action.ActionID != EventsActionID {
			continue
		}
		kinds := make([]string, 0, len(action.SelectedOptions))
		for _, opt := range action.SelectedOptions {
			kinds = append(kinds, opt.Value)
		}
		saved, err := c.accounts.SetKinds(ctx, cb.User.ID, kinds)
		metrics.IncCommand(platform, "events-change", err)
		if err != nil {
			c.log.Warn().Err(err).Str("chat_identity", cb.User.ID).Msg("slack: не удалось сохранить виды событий")
			continue
		}
		c.log.Debug().Str("chat_identity", cb.User.ID).Int("kinds", len(saved)).Msg("slack: виды событий сохранены")
	}
}

func (c *Commands) link(ctx context.Context, cmd slack.SlashCommand) (string, error) {
	username := strings.TrimSpace(cmd.Text)
	if username == "" {
		return "Usage: /boxd-link <letterboxd username>. Put your Slack member ID (" + cmd.UserID + ") in your Letterboxd bio first.", nil
	}
	sub, err := c.accounts.Link(ctx, cmd.UserID, username)
	if err != nil {
		return "", err
	}
	c.log.Info().Str("chat_identity", cmd.UserID).Str("upstream_identity", sub.UpstreamID).Msg("slack: аккаунт привязан")
	return "Linked to " + username + ". Run /boxd-toggle on in the channel where updates should go.", nil
}

func (c *Commands) toggle(ctx context.Context, cmd slack.SlashCommand) (string, error) {
	enabled, err := c.accounts.Toggle(ctx, cmd.UserID, cmd.ChannelID, cmd.Text)
	if err != nil {
		return "", err
	}
	if enabled {
		return "Posting enabled in <#" + cmd.ChannelID + ">.", nil
	}
	return "Posting disabled.", nil
}

func (c *Commands) events(ctx context.Context, cmd slack.SlashCommand) error {
	sub, err := c.accounts.Info(ctx, cmd.UserID)
	if err != nil {
		return err
	}
	return c.openView(ctx, cmd.TriggerID, EventsView(sub.Kinds))
}

func (c *Commands) info(ctx context.Context, cmd slack.SlashCommand) error {
	text, err := c.accounts.Describe(ctx, cmd.UserID)
	if err != nil {
		return err
	}
	return c.openView(ctx, cmd.TriggerID, InfoView(text))
}

func (c *Commands) pick(ctx context.Context, cmd slack.SlashCommand) error {
	film, err := c.accounts.PickFromWatchlist(ctx, cmd.UserID)
	if err != nil {
		return err
	}
	return c.sink.Deliver(ctx, cmd.ChannelID, c.renderer.Pick(film))
}

func (c *Commands) openView(ctx context.Context, triggerID string, view slack.ModalViewRequest) error {
	start := time.Now()
	_, err := c.api.OpenViewContext(ctx, triggerID, view)
	metrics.ObserveNetworkRequest("slack", "open_view", "modal", start, err)
	return err
}

// EventsView строит окно с чекбоксами видов активности.
func EventsView(selected []domain.ActivityKind) slack.ModalViewRequest {
	options := make([]*slack.OptionBlockObject, 0, len(domain.AllKinds))
	var initial []*slack.OptionBlockObject
	for _, kind := range domain.AllKinds {
		opt := slack.NewOptionBlockObject(string(kind), plain(accounts.KindLabel(kind)), nil)
		options = append(options, opt)
		for _, s := range selected {
			if s == kind {
				initial = append(initial, opt)
				break
			}
		}
	}
	group := slack.NewCheckboxGroupsBlockElement(EventsActionID, options...)
	group.InitialOptions = initial

	return slack.ModalViewRequest{
		Type:  slack.VTModal,
		Title: plain("Boxd events"),
		Close: plain("Done"),
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, "Choose which events to post:", false, false), nil, nil),
			slack.NewActionBlock(eventsBlockID, group),
		}},
	}
}

// InfoView строит окно с настройками подписки.
func InfoView(text string) slack.ModalViewRequest {
	return slack.ModalViewRequest{
		Type:  slack.VTModal,
		Title: plain("Boxd"),
		Close: plain("Close"),
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
		}},
	}
}

func plain(text string) *slack.TextBlockObject {
	return slack.NewTextBlockObject(slack.PlainTextType, text, false, false)
}
