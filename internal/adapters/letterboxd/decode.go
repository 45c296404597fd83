package letterboxd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"boxd-notifier/internal/domain"
)

// ErrMalformed возвращается, если запись активности не удаётся разобрать.
var ErrMalformed = errors.New("letterboxd: некорректные данные")

// timestampLayout — ISO-8601 с буквальным Z в конце, дробная часть секунд необязательна.
const timestampLayout = "2006-01-02T15:04:05Z"

// ParseTimestamp разбирает время из API в UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	if !strings.HasSuffix(raw, "Z") {
		return time.Time{}, fmt.Errorf("%w: время без суффикса Z: %q", ErrMalformed, raw)
	}
	ts, err := time.Parse(timestampLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: время %q: %v", ErrMalformed, raw, err)
	}
	return ts.UTC(), nil
}

// DecodeActivity разбирает одну запись ленты. Для неизвестного type возвращает ok=false без ошибки.
func DecodeActivity(raw json.RawMessage) (domain.Activity, bool, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	kind := domain.ActivityKind(head.Type)
	if !kind.Valid() {
		return nil, false, nil
	}

	var dto activityDTO
	if err := json.Unmarshal(raw, &dto); err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrMalformed, head.Type, err)
	}
	when, err := ParseTimestamp(dto.WhenCreated)
	if err != nil {
		return nil, false, err
	}
	base := domain.ActivityBase{When: when, Member: dto.Member.toDomain()}

	switch kind {
	case domain.KindWatchlist:
		if dto.Film == nil {
			return nil, false, fmt.Errorf("%w: %s без film", ErrMalformed, head.Type)
		}
		return domain.WatchlistAdd{ActivityBase: base, Film: dto.Film.toDomain()}, true, nil
	case domain.KindDiaryEntry:
		entry := dto.DiaryEntry
		if entry == nil {
			return nil, false, fmt.Errorf("%w: %s без diaryEntry", ErrMalformed, head.Type)
		}
		act := domain.DiaryEntry{
			ActivityBase: base,
			EntryID:      entry.ID,
			EntryName:    entry.Name,
			Rating:       entry.Rating,
			Liked:        entry.Like,
			Film:         entry.Film.toDomain(),
		}
		if entry.Review != nil {
			review, err := entry.Review.toDomain()
			if err != nil {
				return nil, false, err
			}
			act.Review = &review
		}
		return act, true, nil
	case domain.KindFollow:
		if dto.Followed == nil {
			return nil, false, fmt.Errorf("%w: %s без followed", ErrMalformed, head.Type)
		}
		return domain.Follow{ActivityBase: base, Followed: dto.Followed.toDomain()}, true, nil
	}
	return nil, false, nil
}

// DecodeFeed разбирает ответ /member/{id}/activity, сохраняя порядок ленты.
func DecodeFeed(body []byte) ([]domain.Activity, error) {
	var page struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("%w: лента: %v", ErrMalformed, err)
	}
	out := make([]domain.Activity, 0, len(page.Items))
	for _, item := range page.Items {
		act, ok, err := DecodeActivity(item)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, act)
	}
	return out, nil
}
