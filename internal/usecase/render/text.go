package render

import (
	"math"
	"path"
	"strings"

	"boxd-notifier/internal/domain"
)

const shortenLimit = 200

// Glyphs задаёт символы оценки и лайка для конкретной платформы.
type Glyphs struct {
	Full  string
	Half  string
	Empty string
	Heart string
	// Site — иконка Letterboxd для кнопок, может быть пустой.
	Site string
}

var (
	// SlackGlyphs — кастомные эмодзи воркспейса.
	SlackGlyphs = Glyphs{Full: ":ms-star:", Half: ":ms-half-star:", Empty: ":ms-empty-star:", Heart: ":ms-red-heart:", Site: ":boxd:"}
	// UnicodeGlyphs — для платформ без кастомных эмодзи.
	UnicodeGlyphs = Glyphs{Full: "★", Half: "½", Empty: "☆", Heart: "❤️"}
)

// Stars переводит оценку 0..5 с шагом 0.5 в ровно пять символов.
func Stars(rating float64, g Glyphs) string {
	rating = math.Max(0, math.Min(5, rating))
	var b strings.Builder
	b.WriteString(strings.Repeat(g.Full, int(math.Floor(rating))))
	if math.Mod(rating, 1) == 0.5 {
		b.WriteString(g.Half)
	}
	b.WriteString(strings.Repeat(g.Empty, int(math.Floor(5-rating))))
	return b.String()
}

// Shorten обрезает текст длиннее 200 символов, отбрасывает последнее неполное слово и добавляет "...".
func Shorten(text string) string {
	runes := []rune(text)
	if len(runes) <= shortenLimit {
		return text
	}
	words := strings.Split(string(runes[:shortenLimit]), " ")
	return strings.Join(words[:len(words)-1], " ") + "..."
}

// FilmSlug достаёт слаг фильма из последнего сегмента ссылки letterboxd.
// Идентификатор ссылки не всегда совпадает со слагом в URL, поэтому берётся именно путь.
func FilmSlug(film domain.Film) string {
	link, ok := film.Links[domain.LinkLetterboxd]
	if !ok {
		return ""
	}
	trimmed := strings.Trim(link.URL, "/")
	if trimmed == "" {
		return ""
	}
	return path.Base(trimmed)
}
