package render

import (
	"strings"
	"testing"

	"boxd-notifier/internal/domain"
)

func TestStarsAlwaysFiveGlyphs(t *testing.T) {
	g := Glyphs{Full: "F", Half: "H", Empty: "E"}
	for step := 0; step <= 10; step++ {
		r := float64(step) / 2
		stars := Stars(r, g)
		if len(stars) != 5 {
			t.Fatalf("оценка %.1f: ожидали 5 символов, получили %q", r, stars)
		}
		hasHalf := strings.Contains(stars, "H")
		if hasHalf != (step%2 == 1) {
			t.Fatalf("оценка %.1f: половинка звезды %v, строка %q", r, hasHalf, stars)
		}
		if full := strings.Count(stars, "F"); full != step/2 {
			t.Fatalf("оценка %.1f: ожидали %d полных звёзд, получили %d", r, step/2, full)
		}
	}
}

func TestStarsSlackGlyphs(t *testing.T) {
	got := Stars(3.5, SlackGlyphs)
	want := ":ms-star::ms-star::ms-star::ms-half-star::ms-empty-star:"
	if got != want {
		t.Fatalf("ожидали %q, получили %q", want, got)
	}
}

func TestShortenBoundaries(t *testing.T) {
	cases := []struct {
		name   string
		length int
		cut    bool
	}{
		{name: "199", length: 199},
		{name: "200", length: 200},
		{name: "201", length: 201, cut: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			text := words(tc.length)
			got := Shorten(text)
			if !tc.cut {
				if got != text {
					t.Fatalf("текст длиной %d не должен обрезаться", tc.length)
				}
				return
			}
			if !strings.HasSuffix(got, "...") {
				t.Fatalf("ожидали многоточие в конце: %q", got)
			}
			trimmed := strings.TrimSuffix(got, "...")
			if !strings.HasPrefix(text, trimmed) {
				t.Fatalf("обрезанный текст должен быть префиксом исходного")
			}
			if strings.HasSuffix(trimmed, " ") || !strings.HasSuffix(trimmed, "word") {
				t.Fatalf("последнее неполное слово должно быть отброшено: %q", trimmed)
			}
		})
	}
}

func TestShortenCountsRunes(t *testing.T) {
	text := strings.Repeat("ж", 200)
	if got := Shorten(text); got != text {
		t.Fatalf("200 символов кириллицы не должны обрезаться")
	}
}

// words строит строку ровно из n символов вида "word word wo".
func words(n int) string {
	var b strings.Builder
	for b.Len() < n {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString("word")
	}
	return b.String()[:n]
}

func TestFilmSlugFromRecordedURL(t *testing.T) {
	// Идентификатор ссылки "2bg8" не совпадает со слагом в URL.
	film := domain.Film{
		ID: "2bg8",
		Links: map[domain.LinkType]domain.Link{
			domain.LinkLetterboxd: {Type: domain.LinkLetterboxd, ID: "2bg8", URL: "https://letterboxd.com/film/the-dark-knight/"},
		},
	}
	if got := FilmSlug(film); got != "the-dark-knight" {
		t.Fatalf("ожидали слаг the-dark-knight, получили %q", got)
	}
}

func TestFilmSlugMissingLink(t *testing.T) {
	if got := FilmSlug(domain.Film{}); got != "" {
		t.Fatalf("без ссылки слаг должен быть пустым, получили %q", got)
	}
}
