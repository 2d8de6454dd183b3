package library

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jollyrodger/pika/internal/entities"
)

func (r *Repository) ListAuthors(ctx context.Context, page, perPage int) (*Page[entities.Author], error) {
	return paginate[entities.Author](r.db.WithContext(ctx), page, perPage, "last_name, first_name, author_id", "Books", "Books.Series")
}

func (r *Repository) AllAuthors(ctx context.Context) ([]entities.Author, error) {
	var authors []entities.Author
	err := r.db.WithContext(ctx).Preload("Books").Preload("Books.Series").Order("last_name, first_name, author_id").Find(&authors).Error
	return authors, err
}

// GetAuthor loads an author with their books and the books' series.
func (r *Repository) GetAuthor(ctx context.Context, id uint) (*entities.Author, error) {
	var author entities.Author
	err := r.db.WithContext(ctx).Preload("Books", func(db *gorm.DB) *gorm.DB {
		return db.Order("release_date, title")
	}).Preload("Books.Series").First(&author, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAuthorNotFound
	}
	if err != nil {
		return nil, err
	}
	return &author, nil
}

func (r *Repository) CreateAuthor(ctx context.Context, firstName *string, lastName string, bookIDs []uint) (*entities.Author, error) {
	author := &entities.Author{FirstName: firstName, LastName: lastName}
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(author).Error; err != nil {
			return fmt.Errorf("failed to create author: %w", err)
		}
		return linkBooks(tx, author, bookIDs)
	})
	if err != nil {
		return nil, err
	}
	return r.GetAuthor(ctx, author.ID)
}

// UpdateAuthor renames an author. A non-empty book list replaces the author's books.
func (r *Repository) UpdateAuthor(ctx context.Context, id uint, firstName *string, lastName string, bookIDs []uint) (*entities.Author, error) {
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		var author entities.Author
		if err := tx.First(&author, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAuthorNotFound
			}
			return err
		}
		author.FirstName = firstName
		author.LastName = lastName
		if err := tx.Omit(clause.Associations).Save(&author).Error; err != nil {
			return fmt.Errorf("failed to update author: %w", err)
		}
		return linkBooks(tx, &author, bookIDs)
	})
	if err != nil {
		return nil, err
	}
	return r.GetAuthor(ctx, id)
}

// DeleteAuthor removes an author without books and returns the removed record.
func (r *Repository) DeleteAuthor(ctx context.Context, id uint) (*entities.Author, error) {
	var author entities.Author
	err := r.transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&author, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAuthorNotFound
			}
			return err
		}

		var links int64
		if err := tx.Model(&entities.BookAuthor{}).Where("author_id = ?", id).Count(&links).Error; err != nil {
			return err
		}
		if links > 0 {
			return ErrDeleteRestricted
		}
		return tx.Delete(&author).Error
	})
	if err != nil {
		return nil, err
	}
	return &author, nil
}

func linkBooks(tx *gorm.DB, author *entities.Author, bookIDs []uint) error {
	if len(bookIDs) == 0 {
		return nil
	}
	books := make([]entities.Book, 0, len(bookIDs))
	for _, bookID := range bookIDs {
		var book entities.Book
		if err := tx.First(&book, bookID).Error; err != nil {
			return notFound(err, "Book", bookID)
		}
		books = append(books, book)
	}
	if err := tx.Model(author).Omit("Books.*").Association("Books").Replace(books); err != nil {
		return fmt.Errorf("failed to link books: %w", err)
	}
	return nil
}
