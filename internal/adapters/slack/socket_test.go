package slack

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxd-notifier/internal/adapters/repo"
	"boxd-notifier/internal/domain"
	"boxd-notifier/internal/usecase/accounts"
	"boxd-notifier/internal/usecase/render"
)

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(time.Second):
		t.Fatalf("не дождались значения")
	}
	var zero T
	return zero
}

func slashEvent(envelopeID string, cmd slack.SlashCommand) socketmode.Event {
	return socketmode.Event{
		Type:    socketmode.EventTypeSlashCommand,
		Data:    cmd,
		Request: &socketmode.Request{EnvelopeID: envelopeID},
	}
}

func TestServeAcksAtOnceAndRunsCommandsConcurrently(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeAPI{ephemeral: make(chan string, 4)}
	uc := accounts.NewService(repo.NewMemory(), fakeDirectory{gate: gate})
	c := NewCommands(api, uc, render.New("", render.SlackGlyphs), zerolog.Nop())

	events := make(chan socketmode.Event)
	acks := make(chan string, 4)
	ack := func(req socketmode.Request, _ ...any) { acks <- req.EnvelopeID }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.serve(ctx, events, ack) }()

	// /boxd-link ждёт ответа каталога, следующая команда не должна стоять за ней.
	events <- slashEvent("env-1", slash("/boxd-link", "alice"))
	assert.Equal(t, "env-1", receive(t, acks))
	events <- slashEvent("env-2", slash("/boxd-digest", ""))
	assert.Equal(t, "env-2", receive(t, acks))
	assert.Equal(t, "Unknown command.", receive(t, api.ephemeral))

	close(gate)
	assert.Contains(t, receive(t, api.ephemeral), "Linked to alice")

	cancel()
	require.NoError(t, receive(t, done))
}

func TestServeWaitsForHandlersOnShutdown(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeAPI{ephemeral: make(chan string, 1)}
	uc := accounts.NewService(repo.NewMemory(), fakeDirectory{gate: gate})
	c := NewCommands(api, uc, render.New("", render.SlackGlyphs), zerolog.Nop())

	events := make(chan socketmode.Event, 1)
	events <- slashEvent("env-1", slash("/boxd-link", "alice"))
	close(events)

	done := make(chan error, 1)
	go func() { done <- c.serve(context.Background(), events, func(socketmode.Request, ...any) {}) }()

	select {
	case <-done:
		t.Fatalf("serve вернулся, не дождавшись обработчика")
	case <-time.After(50 * time.Millisecond):
	}
	close(gate)
	assert.Contains(t, receive(t, api.ephemeral), "Linked to alice")
	require.NoError(t, receive(t, done))
}

func TestServeAcksInteractionBeforeSaving(t *testing.T) {
	api := &fakeAPI{}
	store := repo.NewMemory()
	c := NewCommands(api, accounts.NewService(store, fakeDirectory{}), render.New("", render.SlackGlyphs), zerolog.Nop())
	ctx := context.Background()
	c.HandleSlash(ctx, slash("/boxd-link", "alice"))

	events := make(chan socketmode.Event, 1)
	events <- socketmode.Event{
		Type: socketmode.EventTypeInteractive,
		Data: slack.InteractionCallback{
			Type: slack.InteractionTypeBlockActions,
			User: slack.User{ID: "U42"},
			ActionCallback: slack.ActionCallbacks{BlockActions: []*slack.BlockAction{{
				ActionID:        EventsActionID,
				SelectedOptions: []slack.OptionBlockObject{{Value: string(domain.KindWatchlist)}},
			}}},
		},
		Request: &socketmode.Request{EnvelopeID: "env-9"},
	}
	close(events)

	var acked []string
	require.NoError(t, c.serve(ctx, events, func(req socketmode.Request, _ ...any) {
		acked = append(acked, req.EnvelopeID)
	}))
	assert.Equal(t, []string{"env-9"}, acked)

	sub, err := store.Get(ctx, "U42")
	require.NoError(t, err)
	assert.Equal(t, []domain.ActivityKind{domain.KindWatchlist}, sub.Kinds)
}
