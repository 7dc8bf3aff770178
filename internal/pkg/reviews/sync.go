package reviews

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/speedai/speedai/app/models"
	"github.com/speedai/speedai/app/repository"
	"github.com/speedai/speedai/internal/pkg/metrics"
)

// Syncer pulls platform reviews into the review inbox.
type Syncer struct {
	repo          repository.ReviewRepository
	notifications repository.NotificationRepository
	connectors    map[string]Connector
	now           func() time.Time
}

func NewSyncer(repo repository.ReviewRepository, notifications repository.NotificationRepository, connectors map[string]Connector) *Syncer {
	return &Syncer{repo: repo, notifications: notifications, connectors: connectors, now: time.Now}
}

// SyncAll syncs every active source. One failing source does not stop the
// others; the number of failed sources is returned.
func (s *Syncer) SyncAll(ctx context.Context) (int, error) {
	sources, err := s.repo.ListActiveSources()
	if err != nil {
		return 0, err
	}
	failed := 0
	for _, src := range sources {
		if ctx.Err() != nil {
			return failed, ctx.Err()
		}
		if _, err := s.SyncSource(ctx, src); err != nil {
			failed++
			zap.L().Warn("review sync failed",
				zap.Uint("source_id", src.ID),
				zap.String("platform", src.Platform),
				zap.Error(err))
		}
	}
	return failed, nil
}

// SyncSource fetches one source and writes a sync log for the run.
func (s *Syncer) SyncSource(ctx context.Context, src models.ReviewSource) (*models.ReviewSyncLog, error) {
	log := &models.ReviewSyncLog{
		UserID:    src.UserID,
		SourceID:  src.ID,
		Platform:  src.Platform,
		Status:    models.SYNC_FAILED,
		StartedAt: s.now(),
	}
	if err := s.repo.CreateSyncLog(log); err != nil {
		return nil, err
	}

	runErr := s.run(ctx, src, log)
	finished := s.now()
	log.FinishedAt = &finished
	if runErr != nil {
		log.Error = runErr.Error()
	} else {
		log.Status = models.SYNC_SUCCESS
		src.LastSyncAt = &finished
		if err := s.repo.UpdateSource(&src); err != nil {
			zap.L().Warn("source last sync update failed", zap.Uint("source_id", src.ID), zap.Error(err))
		}
	}
	metrics.RecordReviewSync(src.Platform, log.Status)
	if err := s.repo.UpdateSyncLog(log); err != nil {
		return log, err
	}
	return log, runErr
}

func (s *Syncer) run(ctx context.Context, src models.ReviewSource, log *models.ReviewSyncLog) error {
	conn, ok := s.connectors[src.Platform]
	if !ok || conn == nil {
		return fmt.Errorf("%w: %s", ErrConnectorUnsupported, src.Platform)
	}
	fetched, err := conn.Fetch(ctx, src)
	if err != nil {
		return err
	}
	log.Fetched = len(fetched)

	cfg, err := s.repo.GetConfig(src.UserID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	threshold := cfg.Threshold()

	sourceID := src.ID
	for _, f := range fetched {
		if f.ExternalID == "" || f.Rating < 1 || f.Rating > 5 {
			continue
		}
		review := &models.Review{
			UserID:      src.UserID,
			SourceID:    &sourceID,
			Platform:    src.Platform,
			ExternalID:  f.ExternalID,
			AuthorName:  f.AuthorName,
			Rating:      f.Rating,
			Content:     f.Content,
			PublishedAt: f.PublishedAt,
		}
		created, err := s.repo.UpsertReview(review)
		if err != nil {
			return err
		}
		if !created {
			log.Updated++
			continue
		}
		log.Inserted++
		if review.Rating <= threshold {
			s.alert(review)
		}
	}
	return nil
}

func (s *Syncer) alert(review *models.Review) {
	msg := fmt.Sprintf("Nouvel avis %d/5 de %s sur %s", review.Rating, review.AuthorName, review.Platform)
	if err := s.repo.CreateAlert(&models.ReviewAlert{
		UserID:   review.UserID,
		ReviewID: review.ID,
		Type:     models.REVIEW_ALERT_NEGATIVE,
		Message:  msg,
	}); err != nil {
		zap.L().Warn("review alert failed", zap.Uint("review_id", review.ID), zap.Error(err))
	}
	if s.notifications == nil {
		return
	}
	if err := s.notifications.Create(&models.Notification{
		UserID:      review.UserID,
		Type:        models.NOTIFICATION_NEGATIVE_REVIEW,
		Title:       "Avis négatif reçu",
		Message:     msg,
		ReferenceID: review.ID,
	}); err != nil {
		zap.L().Warn("review notification failed", zap.Uint("review_id", review.ID), zap.Error(err))
	}
}
