package search

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Search runs expression against the index of T and loads the matching
// records in rank order. Preloads are applied to the record query.
func Search[T Document](ctx context.Context, index *Index, db *gorm.DB, expression string, page, perPage int, preloads ...string) ([]T, int64, error) {
	var zero T
	ids, total, err := index.Query(ctx, zero.IndexName(), expression, page, perPage)
	if err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return []T{}, total, nil
	}

	query := db.WithContext(ctx)
	for _, p := range preloads {
		query = query.Preload(p)
	}
	var records []T
	if err := query.Find(&records, ids).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to load search results: %w", err)
	}

	byID := make(map[uint]T, len(records))
	for _, r := range records {
		byID[r.DocumentID()] = r
	}
	ordered := make([]T, 0, len(records))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			ordered = append(ordered, r)
		}
	}
	return ordered, total, nil
}
