package library

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jollyrodger/pika/internal/entities"
)

// BookInput holds the writable fields of a book.
type BookInput struct {
	Title       string
	SeriesID    *uint
	AuthorIDs   []uint
	VolumeNr    *float64
	ReadStatus  bool
	ReleaseDate entities.Date
	Synopsis    *string
	Cover       *string
}

// Matches reports whether applying the input to book would change nothing.
func (in BookInput) Matches(book *entities.Book) bool {
	current := make([]uint, 0, len(book.Authors))
	for _, a := range book.Authors {
		current = append(current, a.ID)
	}
	wanted := slices.Clone(in.AuthorIDs)
	slices.Sort(current)
	slices.Sort(wanted)

	return in.Title == book.Title &&
		equalPtr(in.SeriesID, book.SeriesID) &&
		slices.Equal(slices.Compact(wanted), slices.Compact(current)) &&
		equalPtr(in.VolumeNr, book.VolumeNr) &&
		in.ReadStatus == book.ReadStatus &&
		in.ReleaseDate.Equal(book.ReleaseDate.Time) &&
		equalPtr(in.Synopsis, book.Synopsis) &&
		equalPtr(in.Cover, book.Cover)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (r *Repository) ListBooks(ctx context.Context, page, perPage int) (*Page[entities.Book], error) {
	return paginate[entities.Book](r.db.WithContext(ctx), page, perPage, "title, book_id", "Authors", "Series")
}

func (r *Repository) AllBooks(ctx context.Context) ([]entities.Book, error) {
	var books []entities.Book
	err := r.db.WithContext(ctx).Preload("Authors").Preload("Series").Order("title, book_id").Find(&books).Error
	return books, err
}

// GetBook loads a book with its authors and series.
func (r *Repository) GetBook(ctx context.Context, id uint) (*entities.Book, error) {
	var book entities.Book
	err := r.db.WithContext(ctx).Preload("Authors", func(db *gorm.DB) *gorm.DB {
		return db.Order("last_name, author_id")
	}).Preload("Series").First(&book, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBookNotFound
	}
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// RecentReleases returns the n books with the latest release dates.
func (r *Repository) RecentReleases(ctx context.Context, n int) ([]entities.Book, error) {
	var books []entities.Book
	err := r.db.WithContext(ctx).Preload("Authors").Preload("Series").
		Order("release_date DESC, book_id DESC").Limit(n).Find(&books).Error
	return books, err
}

func (r *Repository) CreateBook(ctx context.Context, in BookInput) (*entities.Book, error) {
	book := &entities.Book{}
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		authors, err := r.applyBookInput(tx, book, in)
		if err != nil {
			return err
		}
		book.Authors = authors
		if err := tx.Omit("Series", "Authors.*").Create(book).Error; err != nil {
			return fmt.Errorf("failed to create book: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetBook(ctx, book.ID)
}

func (r *Repository) UpdateBook(ctx context.Context, id uint, in BookInput) (*entities.Book, error) {
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		var book entities.Book
		if err := tx.First(&book, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		authors, err := r.applyBookInput(tx, &book, in)
		if err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Save(&book).Error; err != nil {
			return fmt.Errorf("failed to update book: %w", err)
		}
		if err := tx.Model(&book).Omit("Authors.*").Association("Authors").Replace(authors); err != nil {
			return fmt.Errorf("failed to update book authors: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetBook(ctx, id)
}

// DeleteBook removes a book and its author links and returns the removed record.
func (r *Repository) DeleteBook(ctx context.Context, id uint) (*entities.Book, error) {
	var book entities.Book
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&book, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}
		if err := tx.Where("book_id = ?", book.ID).Delete(&entities.BookAuthor{}).Error; err != nil {
			return fmt.Errorf("failed to unlink authors: %w", err)
		}
		if err := tx.Delete(&book).Error; err != nil {
			return fmt.Errorf("failed to delete book: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// SetCover stores the relative cover path of a book, nil clears it.
func (r *Repository) SetCover(ctx context.Context, id uint, cover *string) error {
	result := r.db.WithContext(ctx).Model(&entities.Book{}).Where("book_id = ?", id).Update("cover", cover)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBookNotFound
	}
	return nil
}

// applyBookInput copies the input onto book after checking that the
// referenced series and authors exist.
func (r *Repository) applyBookInput(tx *gorm.DB, book *entities.Book, in BookInput) ([]entities.Author, error) {
	if in.SeriesID != nil {
		var series entities.Series
		if err := tx.First(&series, *in.SeriesID).Error; err != nil {
			return nil, notFound(err, "Series", *in.SeriesID)
		}
	}

	authors := make([]entities.Author, 0, len(in.AuthorIDs))
	seen := make(map[uint]bool)
	for _, authorID := range in.AuthorIDs {
		if seen[authorID] {
			continue
		}
		seen[authorID] = true
		var author entities.Author
		if err := tx.First(&author, authorID).Error; err != nil {
			return nil, notFound(err, "Author", authorID)
		}
		authors = append(authors, author)
	}

	book.Title = in.Title
	book.SeriesID = in.SeriesID
	book.VolumeNr = in.VolumeNr
	book.ReadStatus = in.ReadStatus
	book.ReleaseDate = in.ReleaseDate
	book.Synopsis = in.Synopsis
	book.Cover = in.Cover
	if book.ReleaseDate.IsZero() {
		book.ReleaseDate = entities.Today()
	}
	return authors, nil
}
