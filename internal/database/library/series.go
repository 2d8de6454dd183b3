package library

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jollyrodger/pika/internal/entities"
)

func (r *Repository) ListSeries(ctx context.Context, page, perPage int) (*Page[entities.Series], error) {
	return paginate[entities.Series](r.db.WithContext(ctx), page, perPage, "title, series_id", "Books", "Books.Authors")
}

func (r *Repository) AllSeries(ctx context.Context) ([]entities.Series, error) {
	var series []entities.Series
	err := r.db.WithContext(ctx).Preload("Books").Preload("Books.Authors").Order("title, series_id").Find(&series).Error
	return series, err
}

// GetSeries loads a series with its books ordered by volume and their authors.
func (r *Repository) GetSeries(ctx context.Context, id uint) (*entities.Series, error) {
	var series entities.Series
	err := r.db.WithContext(ctx).Preload("Books", func(db *gorm.DB) *gorm.DB {
		return db.Order("volume_nr IS NULL, volume_nr, title")
	}).Preload("Books.Authors").First(&series, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSeriesNotFound
	}
	if err != nil {
		return nil, err
	}
	return &series, nil
}

// CreateSeries creates a series and moves the given books into it.
func (r *Repository) CreateSeries(ctx context.Context, title string, bookIDs []uint) (*entities.Series, error) {
	series := &entities.Series{Title: title}
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(series).Error; err != nil {
			return fmt.Errorf("failed to create series: %w", err)
		}
		return assignBooksToSeries(tx, series.ID, bookIDs)
	})
	if err != nil {
		return nil, err
	}
	return r.GetSeries(ctx, series.ID)
}

// UpdateSeries renames a series. A non-empty book list moves those books into it.
func (r *Repository) UpdateSeries(ctx context.Context, id uint, title string, bookIDs []uint) (*entities.Series, error) {
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		var series entities.Series
		if err := tx.First(&series, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSeriesNotFound
			}
			return err
		}
		series.Title = title
		if err := tx.Omit(clause.Associations).Save(&series).Error; err != nil {
			return fmt.Errorf("failed to update series: %w", err)
		}
		return assignBooksToSeries(tx, series.ID, bookIDs)
	})
	if err != nil {
		return nil, err
	}
	return r.GetSeries(ctx, id)
}

// DeleteSeries removes a series without books and returns the removed record.
func (r *Repository) DeleteSeries(ctx context.Context, id uint) (*entities.Series, error) {
	var series entities.Series
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&series, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSeriesNotFound
			}
			return err
		}

		var books int64
		if err := tx.Model(&entities.Book{}).Where("series_id = ?", id).Count(&books).Error; err != nil {
			return err
		}
		if books > 0 {
			return ErrDeleteRestricted
		}
		return tx.Delete(&series).Error
	})
	if err != nil {
		return nil, err
	}
	return &series, nil
}

func assignBooksToSeries(tx *gorm.DB, seriesID uint, bookIDs []uint) error {
	for _, bookID := range bookIDs {
		var book entities.Book
		if err := tx.First(&book, bookID).Error; err != nil {
			return notFound(err, "Book", bookID)
		}
		if err := tx.Model(&book).Update("series_id", seriesID).Error; err != nil {
			return fmt.Errorf("failed to assign book %d: %w", bookID, err)
		}
	}
	return nil
}
