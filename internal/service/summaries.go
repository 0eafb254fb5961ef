package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"azureorm/internal/domain"
	"azureorm/internal/storage"
)

// SummaryService stores news summaries keyed by URL and announces every
// change on the publisher.
type SummaryService struct {
	store     SummaryStore
	txManager TransactionManager
	publisher Publisher
	logger    *slog.Logger
}

func NewSummaryService(
	store SummaryStore,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
) *SummaryService {
	return &SummaryService{
		store:     store,
		txManager: txManager,
		publisher: publisher,
		logger:    logger.With("component", "summaries"),
	}
}

// Save upserts summary by the hash of its URL. A summary whose window ends
// before the stored one's is skipped and Save returns an empty action.
func (s *SummaryService) Save(ctx context.Context, summary *domain.NewsSummary) (domain.SummaryAction, error) {
	action, stored, err := s.save(ctx, summary)
	if err != nil || action == "" {
		return action, err
	}
	if err := s.publish(ctx, action, stored.ID, stored); err != nil {
		return action, err
	}
	return action, nil
}

// SaveAll saves every summary and keeps going past failures, which are
// counted in the returned stats.
func (s *SummaryService) SaveAll(ctx context.Context, summaries []*domain.NewsSummary) *domain.SummaryStats {
	start := time.Now()
	stats := &domain.SummaryStats{Received: len(summaries)}

	for _, summary := range summaries {
		action, stored, err := s.save(ctx, summary)
		if err != nil {
			s.logger.Warn("save summary failed", "news_url", summary.NewsURL, "error", err)
			stats.Errors++
			continue
		}

		switch action {
		case domain.SummaryCreated:
			stats.New++
		case domain.SummaryUpdated:
			stats.Updated++
		default:
			stats.Skipped++
			continue
		}

		if s.publisher == nil {
			continue
		}
		if err := s.publish(ctx, action, stored.ID, stored); err != nil {
			stats.Errors++
		} else {
			stats.Published++
		}
	}

	stats.Duration = time.Since(start)
	s.logger.Info("summaries saved",
		"received", stats.Received,
		"new", stats.New,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
		"published", stats.Published,
		"duration", stats.Duration,
	)
	return stats
}

// DeleteByURL removes the summary stored for url, if any.
func (s *SummaryService) DeleteByURL(ctx context.Context, url string) (bool, error) {
	id := domain.HashURL(url)
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete summary: %w", err)
	}
	if !deleted {
		return false, nil
	}
	if err := s.publish(ctx, domain.SummaryDeleted, id, nil); err != nil {
		return true, err
	}
	return true, nil
}

func (s *SummaryService) save(ctx context.Context, summary *domain.NewsSummary) (domain.SummaryAction, *domain.NewsSummary, error) {
	summary.Derive()

	var (
		action domain.SummaryAction
		stored *domain.NewsSummary
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.store.Get(txCtx, summary.ID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return fmt.Errorf("get summary: %w", err)
		case existing.WindowEndDate.After(summary.WindowEndDate):
			s.logger.Debug("skipping stale summary", "id", summary.ID)
			return nil
		}

		saved, created, err := s.store.Upsert(txCtx, summary)
		if err != nil {
			return fmt.Errorf("upsert summary: %w", err)
		}
		stored = saved
		action = domain.SummaryUpdated
		if created {
			action = domain.SummaryCreated
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}
	return action, stored, nil
}

func (s *SummaryService) publish(ctx context.Context, action domain.SummaryAction, id string, summary *domain.NewsSummary) error {
	if s.publisher == nil {
		return nil
	}
	event := domain.SummaryEvent{
		Action:    action,
		ID:        id,
		Summary:   summary,
		Timestamp: time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		return fmt.Errorf("publish %s event: %w", action, err)
	}
	return nil
}
