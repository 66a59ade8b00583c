package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tracklink/tracklink/internal/model"
	"github.com/tracklink/tracklink/internal/repository"
)

type output struct {
	ReleaseID  string `json:"release_id"`
	ArtistSlug string `json:"artist_slug"`
	SongSlug   string `json:"song_slug"`
	Path       string `json:"path"`
	WebURL     string `json:"web_url"`
	DeepLink   string `json:"deep_link_uri,omitempty"`
	PixelID    string `json:"pixel_id,omitempty"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		artistSlug  = flag.String("artist", "", "Artist slug (required)")
		songSlug    = flag.String("song", "", "Song slug (required)")
		webURL      = flag.String("web-url", "", "Web fallback URL (required)")
		deepLink    = flag.String("deep-link", "", "Deep link URI (optional; empty means web-only routing)")
		pixelID     = flag.String("pixel-id", "", "Per-release Meta pixel id (optional)")
		accessToken = flag.String("access-token", "", "Per-release Meta access token (optional)")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	artist := strings.Trim(strings.TrimSpace(*artistSlug), "/")
	song := strings.Trim(strings.TrimSpace(*songSlug), "/")
	if artist == "" || song == "" || *webURL == "" {
		fmt.Fprintln(os.Stderr, "artist, song and web-url are required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	releases := repository.NewReleaseRepository(repo)

	cfg := &model.ReleaseConfig{
		ArtistSlug:  artist,
		SongSlug:    song,
		DeepLinkURI: strings.TrimSpace(*deepLink),
		WebURL:      strings.TrimSpace(*webURL),
		PixelID:     strings.TrimSpace(*pixelID),
		AccessToken: strings.TrimSpace(*accessToken),
	}

	id := ulid.Make().String()
	if err := releases.UpsertRelease(ctx, id, cfg); err != nil {
		fmt.Fprintln(os.Stderr, "upsert release:", err)
		os.Exit(1)
	}

	out := output{
		ReleaseID:  id,
		ArtistSlug: artist,
		SongSlug:   song,
		Path:       "/" + artist + "/" + song,
		WebURL:     cfg.WebURL,
		DeepLink:   cfg.DeepLinkURI,
		PixelID:    cfg.PixelID,
	}

	if *format == "json" {
		encoded, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(encoded))
		return
	}

	fmt.Println("Release bootstrapped:")
	fmt.Println("  id:       ", out.ReleaseID)
	fmt.Println("  path:     ", out.Path)
	fmt.Println("  web url:  ", out.WebURL)
	if out.DeepLink != "" {
		fmt.Println("  deep link:", out.DeepLink)
	}
	if out.PixelID != "" {
		fmt.Println("  pixel id: ", out.PixelID)
	}
}
