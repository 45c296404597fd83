package dispatch

import (
	"time"

	"boxd-notifier/internal/domain"
)

// Причины, по которым активность не доставляется.
const (
	ReasonSeen      = "seen"
	ReasonKind      = "kind"
	ReasonAdult     = "adult"
	ReasonUnhandled = "unhandled"
)

// Filter оставляет активности новее водяной метки, выбранных видов и без фильмов для взрослых.
// Порядок ленты сохраняется.
func Filter(activities []domain.Activity, sub domain.Subscription) []domain.Activity {
	kept, _ := partition(activities, sub)
	return kept
}

func partition(activities []domain.Activity, sub domain.Subscription) ([]domain.Activity, map[string]int) {
	kept := make([]domain.Activity, 0, len(activities))
	dropped := make(map[string]int)
	for _, a := range activities {
		if reason := dropReason(a, sub); reason != "" {
			dropped[reason]++
			continue
		}
		kept = append(kept, a)
	}
	return kept, dropped
}

func dropReason(a domain.Activity, sub domain.Subscription) string {
	switch {
	case !a.OccurredAt().After(sub.Watermark):
		return ReasonSeen
	case !sub.Subscribed(a.Kind()):
		return ReasonKind
	}
	switch v := a.(type) {
	case domain.WatchlistAdd:
		if v.Film.Adult {
			return ReasonAdult
		}
	case domain.DiaryEntry:
		if v.Film.Adult {
			return ReasonAdult
		}
	case domain.Follow:
	default:
		return ReasonUnhandled
	}
	return ""
}

// HighWatermark возвращает максимальное время активности во всей выборке, до фильтрации.
func HighWatermark(activities []domain.Activity) (time.Time, bool) {
	var high time.Time
	for _, a := range activities {
		if a.OccurredAt().After(high) {
			high = a.OccurredAt()
		}
	}
	return high, !high.IsZero()
}
