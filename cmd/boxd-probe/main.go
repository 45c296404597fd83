package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"boxd-notifier/internal/adapters/letterboxd"
	"boxd-notifier/internal/infra/config"
	"boxd-notifier/internal/usecase/render"
)

func main() {
	var (
		username string
		limit    int
		timeout  time.Duration
	)
	flag.StringVar(&username, "user", "", "Letterboxd username to probe")
	flag.IntVar(&limit, "limit", 10, "Maximum number of activities to print")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	if username == "" {
		log.Fatal().Msg("boxd-probe: username is required (-user)")
	}

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := letterboxd.NewClient(ctx, letterboxd.Config{
		BaseURL:      cfg.Letterboxd.BaseURL,
		ClientID:     cfg.Letterboxd.ClientID,
		ClientSecret: cfg.Letterboxd.ClientSecret,
		Username:     cfg.Letterboxd.Username,
		Password:     cfg.Letterboxd.Password,
		RPS:          cfg.Letterboxd.RPS,
		Timeout:      cfg.Letterboxd.Timeout,
	}, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("boxd-probe: failed to authenticate")
	}

	memberID, err := client.MemberIDByUsername(ctx, username)
	if err != nil {
		log.Fatal().Err(err).Str("user", username).Msg("boxd-probe: member lookup failed")
	}
	activities, err := client.Activity(ctx, memberID)
	if err != nil {
		log.Fatal().Err(err).Msg("boxd-probe: failed to fetch activity")
	}

	renderer := render.New(cfg.Letterboxd.SiteURL, render.UnicodeGlyphs)
	fmt.Printf("Member %s (%s): %d activities\n\n", username, memberID, len(activities))
	for i, a := range activities {
		if i == limit {
			break
		}
		msg, err := renderer.Render(a)
		if err != nil {
			fmt.Printf("[%s] %s: %v\n\n", a.OccurredAt().Format(time.RFC3339), a.Kind(), err)
			continue
		}
		fmt.Printf("[%s] %s\n%s\n\n", a.OccurredAt().Format(time.RFC3339), a.Kind(), msg.Text)
	}
}
