package letterboxd

import "boxd-notifier/internal/domain"

type activityDTO struct {
	Type        string         `json:"type"`
	WhenCreated string         `json:"whenCreated"`
	Member      memberDTO      `json:"member"`
	Film        *filmDTO       `json:"film"`
	DiaryEntry  *diaryEntryDTO `json:"diaryEntry"`
	Followed    *memberDTO     `json:"followed"`
}

type diaryEntryDTO struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Rating float64    `json:"rating"`
	Like   bool       `json:"like"`
	Film   filmDTO    `json:"film"`
	Review *reviewDTO `json:"review"`
}

type reviewDTO struct {
	LBML             string `json:"lbml"`
	Text             string `json:"text"`
	WhenReviewed     string `json:"whenReviewed"`
	ContainsSpoilers bool   `json:"containsSpoilers"`
}

func (r reviewDTO) toDomain() (domain.Review, error) {
	review := domain.Review{LBML: r.LBML, Text: r.Text, ContainsSpoilers: r.ContainsSpoilers}
	if r.WhenReviewed != "" {
		ts, err := ParseTimestamp(r.WhenReviewed)
		if err != nil {
			return domain.Review{}, err
		}
		review.WhenReviewed = ts
	}
	return review, nil
}

type pronounDTO struct {
	ID                  string `json:"id"`
	Label               string `json:"label"`
	SubjectPronoun      string `json:"subjectPronoun"`
	ObjectPronoun       string `json:"objectPronoun"`
	PossessiveAdjective string `json:"possessiveAdjective"`
	PossessivePronoun   string `json:"possessivePronoun"`
	Reflexive           string `json:"reflexive"`
}

type imageSizeDTO struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	URL    string `json:"url"`
}

type imageDTO struct {
	Sizes []imageSizeDTO `json:"sizes"`
}

func (i *imageDTO) toDomain() *domain.Image {
	if i == nil {
		return nil
	}
	img := &domain.Image{Sizes: make([]domain.ImageSize, 0, len(i.Sizes))}
	for _, s := range i.Sizes {
		img.Sizes = append(img.Sizes, domain.ImageSize{Width: s.Width, Height: s.Height, URL: s.URL})
	}
	return img
}

type memberDTO struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	GivenName     string     `json:"givenName"`
	FamilyName    string     `json:"familyName"`
	DisplayName   string     `json:"displayName"`
	ShortName     string     `json:"shortName"`
	Pronoun       pronounDTO `json:"pronoun"`
	Avatar        *imageDTO  `json:"avatar"`
	MemberStatus  string     `json:"memberStatus"`
	AccountStatus string     `json:"accountStatus"`
}

func (m memberDTO) toDomain() domain.MemberSummary {
	return domain.MemberSummary{
		ID:          m.ID,
		Username:    m.Username,
		GivenName:   m.GivenName,
		FamilyName:  m.FamilyName,
		DisplayName: m.DisplayName,
		ShortName:   m.ShortName,
		Pronoun: domain.Pronoun{
			ID:                  m.Pronoun.ID,
			Label:               m.Pronoun.Label,
			Subject:             m.Pronoun.SubjectPronoun,
			Object:              m.Pronoun.ObjectPronoun,
			PossessiveAdjective: m.Pronoun.PossessiveAdjective,
			PossessivePronoun:   m.Pronoun.PossessivePronoun,
			Reflexive:           m.Pronoun.Reflexive,
		},
		Avatar:        m.Avatar.toDomain(),
		MemberStatus:  m.MemberStatus,
		AccountStatus: m.AccountStatus,
	}
}

// memberProfileDTO — ответ /member/{id}.
type memberProfileDTO struct {
	memberDTO
	Bio     string `json:"bio"`
	BioLBML string `json:"bioLbml"`
}

func (m memberProfileDTO) toDomain() domain.MemberProfile {
	bio := m.BioLBML
	if bio == "" {
		bio = m.Bio
	}
	return domain.MemberProfile{Summary: m.memberDTO.toDomain(), Bio: bio}
}

type linkDTO struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	URL      string `json:"url"`
	Label    string `json:"label"`
	CheckURL string `json:"checkUrl"`
}

type genreDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type filmDTO struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	SortingName     string     `json:"sortingName"`
	FullDisplayName string     `json:"fullDisplayName"`
	ReleaseYear     int        `json:"releaseYear"`
	RunTime         int        `json:"runTime"`
	Rating          float64    `json:"rating"`
	Poster          *imageDTO  `json:"poster"`
	Adult           bool       `json:"adult"`
	Links           []linkDTO  `json:"links"`
	Genres          []genreDTO `json:"genres"`
	Description     string     `json:"description"`
	Tagline         string     `json:"tagline"`
}

func (f filmDTO) toDomain() domain.Film {
	film := domain.Film{
		ID:              f.ID,
		Name:            f.Name,
		SortingName:     f.SortingName,
		FullDisplayName: f.FullDisplayName,
		ReleaseYear:     f.ReleaseYear,
		RunTime:         f.RunTime,
		Rating:          f.Rating,
		Poster:          f.Poster.toDomain(),
		Adult:           f.Adult,
		Links:           make(map[domain.LinkType]domain.Link, len(f.Links)),
		Description:     f.Description,
		Tagline:         f.Tagline,
	}
	for _, l := range f.Links {
		film.Links[domain.LinkType(l.Type)] = domain.Link{
			Type:     domain.LinkType(l.Type),
			ID:       l.ID,
			URL:      l.URL,
			Label:    l.Label,
			CheckURL: l.CheckURL,
		}
	}
	for _, g := range f.Genres {
		film.Genres = append(film.Genres, domain.Genre{ID: g.ID, Name: g.Name})
	}
	return film
}
