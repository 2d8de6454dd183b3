package library

import (
	"gorm.io/gorm"
)

// Page is one page of an ordered listing.
type Page[T any] struct {
	Items       []T
	Page        int
	PerPage     int
	Total       int64
	Last        int
	HasPrevious bool
	HasNext     bool
}

// paginate loads a page of T ordered by order. Pages below one, a page size
// below one and empty pages after the first one are ErrPageNotFound.
func paginate[T any](db *gorm.DB, page, perPage int, order string, preloads ...string) (*Page[T], error) {
	if page < 1 || perPage < 1 {
		return nil, ErrPageNotFound
	}

	var total int64
	if err := db.Model(new(T)).Count(&total).Error; err != nil {
		return nil, err
	}

	query := db.Order(order)
	for _, p := range preloads {
		query = query.Preload(p)
	}
	items := []T{}
	if err := query.Limit(perPage).Offset((page - 1) * perPage).Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 && page != 1 {
		return nil, ErrPageNotFound
	}

	last := 0
	if total > 0 {
		last = int((total + int64(perPage) - 1) / int64(perPage))
	}

	return &Page[T]{
		Items:       items,
		Page:        page,
		PerPage:     perPage,
		Total:       total,
		Last:        last,
		HasPrevious: page > 1,
		HasNext:     page < last,
	}, nil
}
