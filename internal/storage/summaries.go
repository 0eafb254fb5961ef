package storage

import (
	"context"

	"azureorm/internal/domain"
	"azureorm/internal/schema"
)

// SummaryStore keeps news summaries keyed by the hash of their URL.
type SummaryStore struct {
	w *Wrapper
}

func NewSummaryStore(w *Wrapper) *SummaryStore {
	return &SummaryStore{w: w}
}

func (s *SummaryStore) Get(ctx context.Context, id string) (*domain.NewsSummary, error) {
	return Get[domain.NewsSummary](ctx, s.w, id)
}

// Upsert writes every column of n, inserting or replacing the row with the
// same URL hash.
func (s *SummaryStore) Upsert(ctx context.Context, n *domain.NewsSummary) (*domain.NewsSummary, bool, error) {
	n.Derive()
	schema.Normalize(n)
	return Upsert[domain.NewsSummary](ctx, s.w, "id", n.ID, AsMap(n).Map())
}

func (s *SummaryStore) Delete(ctx context.Context, id string) (bool, error) {
	return Delete[domain.NewsSummary](ctx, s.w, "id", id)
}
