package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"azureorm/internal/domain"
)

type SummaryStore interface {
	Get(ctx context.Context, id string) (*domain.NewsSummary, error)
	Upsert(ctx context.Context, summary *domain.NewsSummary) (*domain.NewsSummary, bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, event domain.SummaryEvent) error
	Close() error
}
