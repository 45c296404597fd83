package accounts

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"boxd-notifier/internal/domain"
)

var (
	ErrUsernameInvalid = errors.New("некорректное имя пользователя letterboxd")
	ErrMemberNotFound  = errors.New("участник letterboxd не найден")
	ErrProofMissing    = errors.New("идентификатор чата не найден в био")
	ErrNotLinked       = errors.New("аккаунт letterboxd не привязан")
	ErrToggleInvalid   = errors.New("ожидается on или off")
	ErrUnknownKind     = errors.New("неизвестный вид активности")
	ErrWatchlistEmpty  = errors.New("вотчлист пуст")
)

var usernameRegex = regexp.MustCompile(`^[A-Za-z0-9_]{2,15}$`)

// Service обслуживает команды пользователя: привязку, включение публикации и выбор видов активности.
type Service struct {
	store   domain.SubscriptionStore
	members domain.MemberDirectory
	intn    func(n int) int
}

// NewService создаёт сервис аккаунтов.
func NewService(store domain.SubscriptionStore, members domain.MemberDirectory) *Service {
	return &Service{store: store, members: members, intn: rand.Intn}
}

// ParseUsername проверяет имя пользователя letterboxd.
func ParseUsername(input string) (string, error) {
	trim := strings.TrimSpace(input)
	if !usernameRegex.MatchString(trim) {
		return "", ErrUsernameInvalid
	}
	return trim, nil
}

// Link привязывает аккаунт letterboxd к пользователю чата.
// Идентификатор чата должен присутствовать в био профиля.
func (s *Service) Link(ctx context.Context, chatID, username string) (domain.Subscription, error) {
	parsed, err := ParseUsername(username)
	if err != nil {
		return domain.Subscription{}, err
	}
	memberID, err := s.members.MemberIDByUsername(ctx, parsed)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Subscription{}, ErrMemberNotFound
		}
		return domain.Subscription{}, fmt.Errorf("поиск участника: %w", err)
	}
	profile, err := s.members.Member(ctx, memberID)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("профиль участника: %w", err)
	}
	if !strings.Contains(profile.Bio, chatID) {
		return domain.Subscription{}, ErrProofMissing
	}
	sub, err := s.store.UpsertLink(ctx, chatID, memberID)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("сохранение привязки: %w", err)
	}
	return sub, nil
}

// Toggle включает публикацию в канал target или выключает её.
// Возвращает итоговое состояние.
func (s *Service) Toggle(ctx context.Context, chatID, target, state string) (bool, error) {
	var enable bool
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "on":
		enable = true
	case "off":
	default:
		return false, ErrToggleInvalid
	}
	if _, err := s.linked(ctx, chatID); err != nil {
		return false, err
	}
	var value *string
	if enable {
		target = strings.TrimSpace(target)
		if target == "" {
			return false, ErrToggleInvalid
		}
		value = &target
	}
	if err := s.store.SetDeliveryTarget(ctx, chatID, value); err != nil {
		if errors.Is(err, domain.ErrTargetInUse) {
			return false, domain.ErrTargetInUse
		}
		return false, fmt.Errorf("сохранение канала: %w", err)
	}
	return enable, nil
}

// SetKinds сохраняет выбранные виды активности. Порядок нормализуется, повторы убираются.
func (s *Service) SetKinds(ctx context.Context, chatID string, kinds []string) ([]domain.ActivityKind, error) {
	selected := make(map[domain.ActivityKind]struct{}, len(kinds))
	for _, raw := range kinds {
		kind := domain.ActivityKind(strings.TrimSpace(raw))
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKind, raw)
		}
		selected[kind] = struct{}{}
	}
	normalized := make([]domain.ActivityKind, 0, len(selected))
	for _, kind := range domain.AllKinds {
		if _, ok := selected[kind]; ok {
			normalized = append(normalized, kind)
		}
	}
	if _, err := s.linked(ctx, chatID); err != nil {
		return nil, err
	}
	if err := s.store.SetSubscribedKinds(ctx, chatID, normalized); err != nil {
		return nil, fmt.Errorf("сохранение видов активности: %w", err)
	}
	return normalized, nil
}

// Info возвращает текущее состояние подписки.
func (s *Service) Info(ctx context.Context, chatID string) (domain.Subscription, error) {
	return s.linked(ctx, chatID)
}

// Describe формирует текст для команды info. Имя участника подтягивается из letterboxd, если API доступно.
func (s *Service) Describe(ctx context.Context, chatID string) (string, error) {
	sub, err := s.linked(ctx, chatID)
	if err != nil {
		return "", err
	}
	var username string
	if profile, err := s.members.Member(ctx, sub.UpstreamID); err == nil {
		username = profile.Summary.Username
	}
	return FormatInfo(sub, username), nil
}

// PickFromWatchlist выбирает случайный фильм из вотчлиста привязанного участника.
func (s *Service) PickFromWatchlist(ctx context.Context, chatID string) (domain.Film, error) {
	sub, err := s.linked(ctx, chatID)
	if err != nil {
		return domain.Film{}, err
	}
	ids, err := s.members.Watchlist(ctx, sub.UpstreamID)
	if err != nil {
		return domain.Film{}, fmt.Errorf("вотчлист: %w", err)
	}
	if len(ids) == 0 {
		return domain.Film{}, ErrWatchlistEmpty
	}
	film, err := s.members.Film(ctx, ids[s.intn(len(ids))])
	if err != nil {
		return domain.Film{}, fmt.Errorf("фильм: %w", err)
	}
	return film, nil
}

func (s *Service) linked(ctx context.Context, chatID string) (domain.Subscription, error) {
	sub, err := s.store.Get(ctx, chatID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Subscription{}, ErrNotLinked
		}
		return domain.Subscription{}, fmt.Errorf("получение подписки: %w", err)
	}
	return sub, nil
}

// FallbackMessage — ответ на ошибки, не относящиеся к действиям пользователя.
const FallbackMessage = "Something went wrong, please try again later."

// UserMessage переводит ошибку в короткий ответ для чата. Подробности остаются в логах.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUsernameInvalid):
		return "Usernames are 2-15 characters: letters, digits and underscores."
	case errors.Is(err, ErrMemberNotFound):
		return "No Letterboxd member with that username."
	case errors.Is(err, ErrProofMissing):
		return "Add your chat ID to your Letterboxd bio, then try again."
	case errors.Is(err, ErrNotLinked):
		return "Link your Letterboxd account first."
	case errors.Is(err, ErrToggleInvalid):
		return "Use on or off."
	case errors.Is(err, ErrUnknownKind):
		return "Unknown event kind."
	case errors.Is(err, ErrWatchlistEmpty):
		return "Your watchlist is empty."
	case errors.Is(err, domain.ErrTargetInUse):
		return "This channel is already in use by another account."
	case errors.Is(err, domain.ErrUpstreamInUse):
		return "This Letterboxd account is already linked to someone else."
	default:
		return FallbackMessage
	}
}

// KindLabel возвращает человекочитаемое название вида активности.
func KindLabel(kind domain.ActivityKind) string {
	switch kind {
	case domain.KindWatchlist:
		return "Watchlist"
	case domain.KindDiaryEntry:
		return "Diary entry"
	case domain.KindFollow:
		return "Follow"
	default:
		return string(kind)
	}
}

// FormatInfo описывает состояние подписки для ответа в чате.
func FormatInfo(sub domain.Subscription, username string) string {
	var b strings.Builder
	account := sub.UpstreamID
	if username != "" {
		account = username
	}
	b.WriteString("Letterboxd account: " + account + "\n")
	if sub.Enabled() {
		b.WriteString("Posting to: " + *sub.Target + "\n")
	} else {
		b.WriteString("Posting: off\n")
	}
	labels := make([]string, 0, len(sub.Kinds))
	for _, kind := range sub.Kinds {
		labels = append(labels, KindLabel(kind))
	}
	if len(labels) == 0 {
		labels = append(labels, "none")
	}
	b.WriteString("Events: " + strings.Join(labels, ", "))
	return b.String()
}
