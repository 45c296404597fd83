package domain

import "time"

// ActivityKind — тег варианта активности, совпадает с дискриминатором type в API Letterboxd.
type ActivityKind string

const (
	KindWatchlist  ActivityKind = "WatchlistActivity"
	KindDiaryEntry ActivityKind = "DiaryEntryActivity"
	KindFollow     ActivityKind = "FollowActivity"
)

// AllKinds перечисляет поддерживаемые виды активности в порядке отображения.
var AllKinds = []ActivityKind{KindWatchlist, KindDiaryEntry, KindFollow}

// DefaultKinds — набор видов, на которые пользователь подписан после привязки.
var DefaultKinds = []ActivityKind{KindWatchlist, KindDiaryEntry}

// Valid сообщает, поддерживается ли вид активности.
func (k ActivityKind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Activity — закрытое объединение вариантов активности. Реализации есть только в этом пакете.
type Activity interface {
	Kind() ActivityKind
	OccurredAt() time.Time
	Actor() MemberSummary
	isActivity()
}

// ActivityBase содержит общие поля всех активностей.
type ActivityBase struct {
	When   time.Time
	Member MemberSummary
}

func (b ActivityBase) OccurredAt() time.Time { return b.When }
func (b ActivityBase) Actor() MemberSummary  { return b.Member }
func (ActivityBase) isActivity()             {}

// WatchlistAdd — фильм добавлен в вотчлист.
type WatchlistAdd struct {
	ActivityBase
	Film Film
}

func (WatchlistAdd) Kind() ActivityKind { return KindWatchlist }

// DiaryEntry — запись в дневнике: просмотр с оценкой и, возможно, рецензией.
type DiaryEntry struct {
	ActivityBase
	EntryID   string
	EntryName string
	// Rating от 0 до 5 с шагом 0.5, 0 — без оценки.
	Rating float64
	Liked  bool
	Film   Film
	Review *Review
}

func (DiaryEntry) Kind() ActivityKind { return KindDiaryEntry }

// Follow — пользователь подписался на другого участника.
type Follow struct {
	ActivityBase
	Followed MemberSummary
}

func (Follow) Kind() ActivityKind { return KindFollow }

// FilmOf возвращает фильм активности, если вариант его содержит.
func FilmOf(a Activity) (Film, bool) {
	switch v := a.(type) {
	case WatchlistAdd:
		return v.Film, true
	case DiaryEntry:
		return v.Film, true
	case Follow:
		return Film{}, false
	default:
		return Film{}, false
	}
}

// Pronoun — грамматические формы местоимения участника.
type Pronoun struct {
	ID                  string
	Label               string
	Subject             string
	Object              string
	PossessiveAdjective string
	PossessivePronoun   string
	Reflexive           string
}

// ImageSize — один из доступных размеров изображения.
type ImageSize struct {
	Width  int
	Height int
	URL    string
}

// Image хранит упорядоченный список размеров.
type Image struct {
	Sizes []ImageSize
}

// Medium возвращает средний по порядку размер. Это сознательный выбор «среднего качества».
func (i *Image) Medium() (ImageSize, bool) {
	if i == nil || len(i.Sizes) == 0 {
		return ImageSize{}, false
	}
	return i.Sizes[len(i.Sizes)/2], true
}

// MemberSummary — снимок профиля участника на момент выборки.
type MemberSummary struct {
	ID            string
	Username      string
	GivenName     string
	FamilyName    string
	DisplayName   string
	ShortName     string
	Pronoun       Pronoun
	Avatar        *Image
	MemberStatus  string
	AccountStatus string
}

// MemberProfile — полный профиль, нужен для проверки владения аккаунтом.
type MemberProfile struct {
	Summary MemberSummary
	Bio     string
}

// LinkType — сайт, к которому относится ссылка.
type LinkType string

const (
	LinkLetterboxd LinkType = "letterboxd"
	LinkBoxd       LinkType = "boxd"
	LinkTMDB       LinkType = "tmdb"
	LinkIMDB       LinkType = "imdb"
	LinkJustWatch  LinkType = "justwatch"
)

// Link — ссылка сущности на внешний сайт.
type Link struct {
	Type     LinkType
	ID       string
	URL      string
	Label    string
	CheckURL string
}

// Genre — жанр фильма.
type Genre struct {
	ID   string
	Name string
}

// Film — данные фильма.
type Film struct {
	ID              string
	Name            string
	SortingName     string
	FullDisplayName string
	ReleaseYear     int
	RunTime         int
	Rating          float64
	Poster          *Image
	Adult           bool
	Links           map[LinkType]Link
	Genres          []Genre
	Description     string
	Tagline         string
}

// DisplayName возвращает полное имя, если оно есть, иначе name.
func (f Film) DisplayName() string {
	if f.FullDisplayName != "" {
		return f.FullDisplayName
	}
	return f.Name
}

// Review — рецензия к записи дневника. Text может содержать HTML.
type Review struct {
	LBML             string
	Text             string
	WhenReviewed     time.Time
	ContainsSpoilers bool
}
