package domain

import (
	"errors"
	"time"
)

var (
	// ErrNotFound возвращается, если запись подписки отсутствует.
	ErrNotFound = errors.New("запись не найдена")
	// ErrTargetInUse возвращается, если канал доставки уже занят другой записью.
	ErrTargetInUse = errors.New("канал доставки уже используется")
	// ErrUpstreamInUse возвращается, если аккаунт Letterboxd привязан к другому пользователю.
	ErrUpstreamInUse = errors.New("аккаунт letterboxd уже привязан")
)

// Subscription — состояние привязки одного пользователя чата.
type Subscription struct {
	// ChatID — идентификатор пользователя в чате, первичный ключ.
	ChatID string
	// UpstreamID — идентификатор участника Letterboxd, уникален.
	UpstreamID string
	// Target — канал доставки. nil означает, что публикация выключена.
	Target *string
	// Watermark — время последней доставленной активности, не убывает.
	Watermark time.Time
	Kinds     []ActivityKind
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Enabled сообщает, включена ли доставка.
func (s Subscription) Enabled() bool {
	return s.Target != nil && *s.Target != ""
}

// Subscribed сообщает, выбран ли вид активности.
func (s Subscription) Subscribed(kind ActivityKind) bool {
	for _, k := range s.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// BlockType — тип платформенно-нейтрального блока сообщения.
type BlockType string

const (
	BlockSection BlockType = "section"
	BlockActions BlockType = "actions"
)

// Button — кнопка-ссылка в блоке действий.
type Button struct {
	ActionID string
	Text     string
	URL      string
}

// Block — элемент структурированной разметки сообщения.
type Block struct {
	Type BlockType
	// Text в разметке mrkdwn для BlockSection.
	Text     string
	ImageURL string
	ImageAlt string
	Buttons  []Button
}

// RenderedMessage — результат рендеринга активности, не привязанный к платформе.
type RenderedMessage struct {
	Text   string
	Blocks []Block
}
