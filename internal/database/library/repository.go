// Package library provides database operations for books, series and authors.
//
// # Usage
//
//	repo := library.NewRepository(db)
//	page, err := repo.ListBooks(ctx, 1, 20)
//	book, err := repo.CreateBook(ctx, library.BookInput{Title: "Dune", AuthorIDs: []uint{1}})
//
// Multi-statement writes run inside a transaction whose search index updates
// are applied only after it commits.
package library

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jollyrodger/pika/internal/search"
)

var (
	ErrBookNotFound     = errors.New("book not found")
	ErrSeriesNotFound   = errors.New("series not found")
	ErrAuthorNotFound   = errors.New("author not found")
	ErrPageNotFound     = errors.New("page not found")
	ErrDeleteRestricted = errors.New("record still has books assigned")
)

// NotFoundError names a referenced record that does not exist.
type NotFoundError struct {
	Kind string // "Book", "Series" or "Author"
	ID   uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %d does not exist", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	switch e.Kind {
	case "Book":
		return ErrBookNotFound
	case "Series":
		return ErrSeriesNotFound
	default:
		return ErrAuthorNotFound
	}
}

// Repository handles all library database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new library repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// transaction runs fn in a database transaction and applies the collected
// search index changes once it has committed.
func (r *Repository) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	ctx, changes := search.Collect(ctx)
	if err := r.db.WithContext(ctx).Transaction(fn); err != nil {
		changes.Discard()
		return err
	}
	changes.Commit(ctx)
	return nil
}

func notFound(err error, kind string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Kind: kind, ID: id}
	}
	return err
}
