package reviews

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/speedai/speedai/app/models"
)

var ErrConnectorUnsupported = errors.New("review platform connector is not supported")

// FetchedReview is a review as returned by a platform.
type FetchedReview struct {
	ExternalID  string
	AuthorName  string
	Rating      int
	Content     string
	PublishedAt *time.Time
}

// Connector fetches the reviews of one platform listing.
type Connector interface {
	Platform() string
	Fetch(ctx context.Context, source models.ReviewSource) ([]FetchedReview, error)
}

type unsupported string

func (u unsupported) Platform() string { return string(u) }

func (u unsupported) Fetch(context.Context, models.ReviewSource) ([]FetchedReview, error) {
	return nil, fmt.Errorf("%w: %s", ErrConnectorUnsupported, string(u))
}

// DefaultConnectors returns the connector set for every known platform.
func DefaultConnectors(google Connector) map[string]Connector {
	return map[string]Connector{
		models.PLATFORM_GOOGLE:      google,
		models.PLATFORM_FACEBOOK:    unsupported(models.PLATFORM_FACEBOOK),
		models.PLATFORM_TRIPADVISOR: unsupported(models.PLATFORM_TRIPADVISOR),
	}
}
