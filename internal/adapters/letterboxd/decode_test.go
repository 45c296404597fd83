package letterboxd

import (
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxd-notifier/internal/domain"
)

func TestDecodeFeedFixture(t *testing.T) {
	body, err := os.ReadFile("testdata/feed.json")
	require.NoError(t, err)

	acts, err := DecodeFeed(body)
	require.NoError(t, err)
	// ListActivity с битым временем пропускается до разбора времени.
	require.Len(t, acts, 3)

	diary, ok := acts[0].(domain.DiaryEntry)
	require.True(t, ok, "первой должна идти запись дневника")
	assert.Equal(t, time.Date(2024, 5, 4, 21, 13, 45, 0, time.UTC), diary.OccurredAt())
	assert.Equal(t, 3.5, diary.Rating)
	assert.True(t, diary.Liked)
	assert.Equal(t, "The Dark Knight (2008)", diary.Film.DisplayName())
	assert.Equal(t, "https://letterboxd.com/film/the-dark-knight/", diary.Film.Links[domain.LinkLetterboxd].URL)
	assert.Equal(t, "his", diary.Actor().Pronoun.PossessiveAdjective)
	require.NotNil(t, diary.Review)
	assert.False(t, diary.Review.ContainsSpoilers)
	assert.Equal(t, 120*time.Millisecond, time.Duration(diary.Review.WhenReviewed.Nanosecond()))

	watch, ok := acts[1].(domain.WatchlistAdd)
	require.True(t, ok)
	assert.Equal(t, "Paprika", watch.Film.DisplayName())
	assert.Nil(t, watch.Film.Poster)

	follow, ok := acts[2].(domain.Follow)
	require.True(t, ok)
	assert.Equal(t, "dave", follow.Followed.Username)
}

func TestDecodeActivityUnknownType(t *testing.T) {
	act, ok, err := DecodeActivity(json.RawMessage(`{"type":"ReviewCommentActivity","whenCreated":"2024-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, act)
}

func TestDecodeActivityBadTimestamp(t *testing.T) {
	raw := json.RawMessage(`{"type":"FollowActivity","whenCreated":"2024-01-01 00:00:00","member":{},"followed":{}}`)
	_, _, err := DecodeActivity(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestDecodeActivityMissingVariantPayload(t *testing.T) {
	raw := json.RawMessage(`{"type":"WatchlistActivity","whenCreated":"2024-01-01T00:00:00Z","member":{}}`)
	_, _, err := DecodeActivity(raw)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeDiaryEntryWithoutReview(t *testing.T) {
	raw := json.RawMessage(`{
		"type":"DiaryEntryActivity",
		"whenCreated":"2024-01-01T00:00:00Z",
		"member":{"id":"a","username":"a"},
		"diaryEntry":{"id":"e","name":"n","film":{"id":"f","name":"Film","adult":true,"links":[]}}
	}`)
	act, ok, err := DecodeActivity(raw)
	require.NoError(t, err)
	require.True(t, ok)
	entry := act.(domain.DiaryEntry)
	assert.Nil(t, entry.Review)
	assert.Zero(t, entry.Rating)
	assert.True(t, entry.Film.Adult)
}

func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2023-11-20T07:05:09Z")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, ts.Location())
	assert.Equal(t, 2023, ts.Year())

	_, err = ParseTimestamp("2023-11-20T07:05:09+01:00")
	assert.ErrorIs(t, err, ErrMalformed)
}
