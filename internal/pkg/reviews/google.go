package reviews

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/internal/pkg/env"
)

const defaultPlacesEndpoint = "https://maps.googleapis.com/maps/api/place/details/json"

// GooglePlaces reads reviews from the Places Details API. ExternalRef of the
// source is the place id.
type GooglePlaces struct {
	Endpoint string
	APIKey   string
	Language string
	Timeout  time.Duration
}

func NewGooglePlacesFromEnv() *GooglePlaces {
	return &GooglePlaces{
		Endpoint: env.GetEnv("GOOGLE_PLACES_ENDPOINT", defaultPlacesEndpoint),
		APIKey:   env.GetEnv("GOOGLE_PLACES_API_KEY", ""),
		Language: "fr",
		Timeout:  15 * time.Second,
	}
}

func (g *GooglePlaces) Platform() string { return models.PLATFORM_GOOGLE }

type placesResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Result       struct {
		Reviews []struct {
			AuthorName string `json:"author_name"`
			AuthorURL  string `json:"author_url"`
			Rating     int    `json:"rating"`
			Text       string `json:"text"`
			Time       int64  `json:"time"`
		} `json:"reviews"`
	} `json:"result"`
}

func (g *GooglePlaces) Fetch(ctx context.Context, source models.ReviewSource) ([]FetchedReview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.APIKey == "" {
		return nil, errors.New("GOOGLE_PLACES_API_KEY is not set")
	}
	q := url.Values{}
	q.Set("place_id", source.ExternalRef)
	q.Set("fields", "reviews")
	q.Set("reviews_sort", "newest")
	q.Set("language", g.Language)
	q.Set("key", g.APIKey)

	a := fiber.Get(g.Endpoint + "?" + q.Encode())
	if g.Timeout > 0 {
		a.Timeout(g.Timeout)
	}
	code, body, errs := a.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("google places request: %w", errors.Join(errs...))
	}
	if code != fiber.StatusOK {
		return nil, fmt.Errorf("google places returned %d", code)
	}

	var resp placesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode google places response: %w", err)
	}
	if resp.Status != "OK" {
		return nil, fmt.Errorf("google places status %s: %s", resp.Status, resp.ErrorMessage)
	}

	out := make([]FetchedReview, 0, len(resp.Result.Reviews))
	for _, r := range resp.Result.Reviews {
		published := time.Unix(r.Time, 0).UTC()
		out = append(out, FetchedReview{
			ExternalID:  googleReviewID(r.AuthorURL, r.AuthorName, r.Time),
			AuthorName:  r.AuthorName,
			Rating:      r.Rating,
			Content:     r.Text,
			PublishedAt: &published,
		})
	}
	return out, nil
}

// googleReviewID derives a stable id; the Places API exposes none.
func googleReviewID(authorURL, authorName string, ts int64) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{authorURL, authorName, strconv.FormatInt(ts, 10)}, "|")))
	return "g_" + hex.EncodeToString(sum[:16])
}
