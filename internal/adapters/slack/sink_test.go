package slack

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxd-notifier/internal/domain"
)

type fakeAPI struct {
	mu      sync.Mutex
	posted  []string
	views   []slack.ModalViewRequest
	postErr error
	// ephemeral получает тексты эфемерных ответов, если задан.
	ephemeral chan string
}

func (f *fakeAPI) PostMessageContext(_ context.Context, channelID string, _ ...slack.MsgOption) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return "", "", f.postErr
	}
	f.posted = append(f.posted, channelID)
	return channelID, "1715000000.000100", nil
}

func (f *fakeAPI) OpenViewContext(_ context.Context, _ string, view slack.ModalViewRequest) (*slack.ViewResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views = append(f.views, view)
	return &slack.ViewResponse{}, nil
}

func (f *fakeAPI) PostEphemeralContext(_ context.Context, channelID, _ string, options ...slack.MsgOption) (string, error) {
	_, values, err := slack.UnsafeApplyMsgOptions("", channelID, "", options...)
	if err != nil {
		return "", err
	}
	if f.ephemeral != nil {
		f.ephemeral <- values.Get("text")
	}
	return "1715000000.000200", nil
}

func TestBlocksConversion(t *testing.T) {
	blocks := Blocks([]domain.Block{
		{Type: domain.BlockSection, Text: "*Alice watched Heat*", ImageURL: "poster.jpg", ImageAlt: "Heat's poster"},
		{Type: domain.BlockActions, Buttons: []domain.Button{{ActionID: "open_letterboxd", Text: "See on Letterboxd", URL: "https://letterboxd.com/alice/film/heat/"}}},
		{Type: domain.BlockActions},
	})
	require.Len(t, blocks, 2)

	section, ok := blocks[0].(*slack.SectionBlock)
	require.True(t, ok)
	assert.Equal(t, slack.MarkdownType, section.Text.Type)
	assert.Equal(t, "*Alice watched Heat*", section.Text.Text)
	require.NotNil(t, section.Accessory)
	require.NotNil(t, section.Accessory.ImageElement)
	assert.Equal(t, "poster.jpg", section.Accessory.ImageElement.ImageURL)

	actions, ok := blocks[1].(*slack.ActionBlock)
	require.True(t, ok)
	require.Len(t, actions.Elements.ElementSet, 1)
	button, ok := actions.Elements.ElementSet[0].(*slack.ButtonBlockElement)
	require.True(t, ok)
	assert.Equal(t, "https://letterboxd.com/alice/film/heat/", button.URL)
	assert.Equal(t, "open_letterboxd", button.ActionID)
}

func TestBlocksSectionWithoutImage(t *testing.T) {
	blocks := Blocks([]domain.Block{{Type: domain.BlockSection, Text: "*Alice followed Dave*"}})
	require.Len(t, blocks, 1)
	assert.Nil(t, blocks[0].(*slack.SectionBlock).Accessory)
}

func TestSinkDeliver(t *testing.T) {
	api := &fakeAPI{}
	err := NewSink(api).Deliver(context.Background(), "C123", domain.RenderedMessage{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, []string{"C123"}, api.posted)

	boom := errors.New("channel_not_found")
	err = NewSink(&fakeAPI{postErr: boom}).Deliver(context.Background(), "C404", domain.RenderedMessage{Text: "hi"})
	assert.ErrorIs(t, err, boom)
}
