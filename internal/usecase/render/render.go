package render

import (
	"fmt"
	"strings"

	"boxd-notifier/internal/domain"
)

const (
	// DefaultSiteURL — адрес сайта для ссылок в кнопках.
	DefaultSiteURL = "https://letterboxd.com"

	spoilerNotice = "This review contains spoilers"
	openActionID  = "open_letterboxd"
)

// Renderer превращает активность в платформенно-нейтральное сообщение. Не выполняет ввода-вывода.
type Renderer struct {
	siteURL string
	glyphs  Glyphs
}

// New создаёт рендерер. Пустой siteURL заменяется на DefaultSiteURL.
func New(siteURL string, glyphs Glyphs) *Renderer {
	siteURL = strings.TrimRight(strings.TrimSpace(siteURL), "/")
	if siteURL == "" {
		siteURL = DefaultSiteURL
	}
	return &Renderer{siteURL: siteURL, glyphs: glyphs}
}

// Render строит сообщение для одного варианта активности.
func (r *Renderer) Render(a domain.Activity) (domain.RenderedMessage, error) {
	switch v := a.(type) {
	case domain.DiaryEntry:
		return r.diaryEntry(v), nil
	case domain.WatchlistAdd:
		return r.watchlistAdd(v), nil
	case domain.Follow:
		return r.follow(v), nil
	default:
		return domain.RenderedMessage{}, fmt.Errorf("render: неизвестный вид активности %T", a)
	}
}

func (r *Renderer) diaryEntry(v domain.DiaryEntry) domain.RenderedMessage {
	headline := fmt.Sprintf("%s watched %s", memberName(v.Actor()), v.Film.DisplayName())

	rating := Stars(v.Rating, r.glyphs)
	if v.Liked {
		rating = r.glyphs.Heart + " " + rating
	}
	review, reviewPlain := reviewPart(v.Review)
	body := text{mrkdwn: rating + review, plain: rating + reviewPlain}

	link := r.filmURL(v.Actor(), v.Film)
	return r.message(headline, body, posterOf(v.Film), link, r.buttonText("See on Letterboxd"))
}

func (r *Renderer) watchlistAdd(v domain.WatchlistAdd) domain.RenderedMessage {
	possessive := strings.TrimSpace(v.Actor().Pronoun.PossessiveAdjective)
	if possessive == "" {
		possessive = "their"
	}
	headline := fmt.Sprintf("%s added %s to %s watchlist", memberName(v.Actor()), v.Film.DisplayName(), possessive)

	link := r.filmURL(v.Actor(), v.Film)
	return r.message(headline, text{}, posterOf(v.Film), link, r.buttonText("See on Letterboxd"))
}

func (r *Renderer) follow(v domain.Follow) domain.RenderedMessage {
	headline := fmt.Sprintf("%s followed %s", memberName(v.Actor()), memberName(v.Followed))

	var link string
	if v.Followed.Username != "" {
		link = fmt.Sprintf("%s/%s/", r.siteURL, v.Followed.Username)
	}
	var img image
	if size, ok := v.Followed.Avatar.Medium(); ok {
		img = image{url: size.URL, alt: memberName(v.Followed) + "'s avatar"}
	}
	return r.message(headline, text{}, img, link, r.buttonText("See profile"))
}

// Pick строит сообщение со случайным фильмом из вотчлиста.
func (r *Renderer) Pick(film domain.Film) domain.RenderedMessage {
	headline := "Your next watch: " + film.DisplayName()
	var link string
	if slug := FilmSlug(film); slug != "" {
		link = fmt.Sprintf("%s/film/%s/", r.siteURL, slug)
	}
	var body text
	if tagline := strings.TrimSpace(film.Tagline); tagline != "" {
		body = text{mrkdwn: "_" + tagline + "_", plain: tagline}
	}
	return r.message(headline, body, posterOf(film), link, r.buttonText("See on Letterboxd"))
}

// text хранит один фрагмент в двух видах: mrkdwn для блоков и простой текст для Text.
type text struct {
	mrkdwn string
	plain  string
}

type image struct {
	url string
	alt string
}

func (r *Renderer) message(headline string, body text, img image, link, buttonText string) domain.RenderedMessage {
	sectionText := "*" + headline + "*"
	plain := headline
	if body.mrkdwn != "" {
		sectionText += "\n" + body.mrkdwn
	}
	if body.plain != "" {
		plain += "\n" + body.plain
	}
	if link != "" {
		plain += "\n" + link
	}

	blocks := []domain.Block{{
		Type:     domain.BlockSection,
		Text:     sectionText,
		ImageURL: img.url,
		ImageAlt: img.alt,
	}}
	if link != "" {
		blocks = append(blocks, domain.Block{
			Type:    domain.BlockActions,
			Buttons: []domain.Button{{ActionID: openActionID, Text: buttonText, URL: link}},
		})
	}
	return domain.RenderedMessage{Text: plain, Blocks: blocks}
}

func (r *Renderer) filmURL(actor domain.MemberSummary, film domain.Film) string {
	slug := FilmSlug(film)
	if slug == "" || actor.Username == "" {
		return ""
	}
	return fmt.Sprintf("%s/%s/film/%s/", r.siteURL, actor.Username, slug)
}

func (r *Renderer) buttonText(label string) string {
	if r.glyphs.Site == "" {
		return label
	}
	return r.glyphs.Site + " " + label
}

// reviewPart возвращает рецензию в mrkdwn и простым текстом.
func reviewPart(review *domain.Review) (string, string) {
	if review == nil {
		return "", ""
	}
	if review.ContainsSpoilers {
		return "\n\n_" + spoilerNotice + "_", "\n\n" + spoilerNotice
	}
	var mrkdwn, plain string
	if quoted := QuoteLines(HTMLToMrkdwn(review.Text)); quoted != "" {
		mrkdwn = "\n\n" + Shorten(quoted)
	}
	if compact := CompactLines(HTMLToText(review.Text)); compact != "" {
		plain = "\n\n" + Shorten(compact)
	}
	return mrkdwn, plain
}

func posterOf(film domain.Film) image {
	size, ok := film.Poster.Medium()
	if !ok {
		return image{}
	}
	return image{url: size.URL, alt: film.Name + "'s poster"}
}

func memberName(m domain.MemberSummary) string {
	if name := strings.TrimSpace(m.DisplayName); name != "" {
		return name
	}
	return m.Username
}
