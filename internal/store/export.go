package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/dethi/internal/model"
)

// History builds the audit log export. A limit of zero or less exports
// every event.
func (s *Store) History(ctx context.Context, limit int) (model.HistoryExport, error) {
	gens, err := s.ListGenerationEvents(ctx, limit)
	if err != nil {
		return model.HistoryExport{}, fmt.Errorf("list generations: %w", err)
	}
	exps, err := s.ListExportEvents(ctx, limit)
	if err != nil {
		return model.HistoryExport{}, fmt.Errorf("list exports: %w", err)
	}
	if gens == nil {
		gens = []model.GenerationEvent{}
	}
	if exps == nil {
		exps = []model.ExportEvent{}
	}
	return model.HistoryExport{
		GeneratedAt: time.Now().UTC(),
		Generations: gens,
		Exports:     exps,
	}, nil
}
