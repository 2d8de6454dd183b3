package library

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jollyrodger/pika/internal/database"
	"github.com/jollyrodger/pika/internal/entities"
	"github.com/jollyrodger/pika/internal/search"
)

func setupTestRepo(t *testing.T) (*Repository, *search.Index) {
	t.Helper()

	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "library.db"), "silent")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	index, err := search.NewIndex(db.DB, 32)
	require.NoError(t, err)
	require.NoError(t, db.DB.Use(search.NewSyncPlugin(index)))

	return NewRepository(db.DB), index
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func TestRepository_CreateBook(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	author, err := repo.CreateAuthor(ctx, strPtr("Frank"), "Herbert", nil)
	require.NoError(t, err)
	series, err := repo.CreateSeries(ctx, "Dune", nil)
	require.NoError(t, err)

	book, err := repo.CreateBook(ctx, BookInput{
		Title:       "Dune Messiah",
		SeriesID:    &series.ID,
		AuthorIDs:   []uint{author.ID},
		VolumeNr:    floatPtr(2),
		ReleaseDate: entities.NewDate(1969, 10, 15),
	})
	require.NoError(t, err)

	assert.NotZero(t, book.ID)
	assert.Equal(t, "Dune Messiah", book.Title)
	require.NotNil(t, book.Series)
	assert.Equal(t, "Dune", book.Series.Title)
	require.Len(t, book.Authors, 1)
	assert.Equal(t, "Frank Herbert", book.Authors[0].FullName())
	assert.Equal(t, "1969-10-15", book.ReleaseDate.String())
}

func TestRepository_CreateBook_DefaultsReleaseDate(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	author, err := repo.CreateAuthor(ctx, nil, "Anonymous", nil)
	require.NoError(t, err)

	book, err := repo.CreateBook(ctx, BookInput{Title: "Untitled", AuthorIDs: []uint{author.ID}})
	require.NoError(t, err)
	assert.Equal(t, entities.Today().String(), book.ReleaseDate.String())
}

func TestRepository_CreateBook_MissingReferences(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	missingSeries := uint(42)
	_, err := repo.CreateBook(ctx, BookInput{Title: "Orphan", SeriesID: &missingSeries})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Series with ID 42 does not exist", nf.Error())
	assert.ErrorIs(t, err, ErrSeriesNotFound)

	_, err = repo.CreateBook(ctx, BookInput{Title: "Orphan", AuthorIDs: []uint{7}})
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Author with ID 7 does not exist", nf.Error())

	all, err := repo.AllBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRepository_UpdateBook(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	first, _ := repo.CreateAuthor(ctx, nil, "First", nil)
	second, _ := repo.CreateAuthor(ctx, nil, "Second", nil)
	book, err := repo.CreateBook(ctx, BookInput{Title: "Draft", AuthorIDs: []uint{first.ID}})
	require.NoError(t, err)

	in := BookInput{
		Title:       "Final",
		AuthorIDs:   []uint{second.ID},
		ReadStatus:  true,
		ReleaseDate: book.ReleaseDate,
		Synopsis:    strPtr("Now with a synopsis"),
	}
	updated, err := repo.UpdateBook(ctx, book.ID, in)
	require.NoError(t, err)

	assert.Equal(t, "Final", updated.Title)
	assert.True(t, updated.ReadStatus)
	require.Len(t, updated.Authors, 1)
	assert.Equal(t, second.ID, updated.Authors[0].ID)
	assert.True(t, in.Matches(updated))

	_, err = repo.UpdateBook(ctx, 999, in)
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestRepository_UpdateBookConcurrently(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	author, _ := repo.CreateAuthor(ctx, nil, "Author", nil)
	book, err := repo.CreateBook(ctx, BookInput{Title: "Shared", AuthorIDs: []uint{author.ID}})
	require.NoError(t, err)

	const workers, rounds = 8, 5
	var wg sync.WaitGroup
	errs := make(chan error, workers*rounds)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				_, err := repo.UpdateBook(ctx, book.ID, BookInput{
					Title:       fmt.Sprintf("Edit %d-%d", w, r),
					AuthorIDs:   []uint{author.ID},
					ReleaseDate: book.ReleaseDate,
				})
				errs <- err
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestBookInput_Matches(t *testing.T) {
	book := &entities.Book{
		Title:       "Dune",
		ReleaseDate: entities.NewDate(1965, 8, 1),
		VolumeNr:    floatPtr(1),
		Authors:     []entities.Author{{ID: 2}, {ID: 1}},
	}
	in := BookInput{
		Title:       "Dune",
		ReleaseDate: entities.NewDate(1965, 8, 1),
		VolumeNr:    floatPtr(1),
		AuthorIDs:   []uint{1, 2},
	}
	assert.True(t, in.Matches(book))

	in.VolumeNr = floatPtr(1.5)
	assert.False(t, in.Matches(book))
}

func TestRepository_DeleteBook(t *testing.T) {
	repo, index := setupTestRepo(t)
	ctx := context.Background()

	author, _ := repo.CreateAuthor(ctx, nil, "Le Guin", nil)
	book, err := repo.CreateBook(ctx, BookInput{Title: "The Dispossessed", AuthorIDs: []uint{author.ID}})
	require.NoError(t, err)

	deleted, err := repo.DeleteBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "The Dispossessed", deleted.Title)

	_, err = repo.GetBook(ctx, book.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)

	ids, _, err := index.Query(ctx, entities.IndexBooks, "dispossessed", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// author links are gone, so the author can be removed now
	_, err = repo.DeleteAuthor(ctx, author.ID)
	assert.NoError(t, err)
}

func TestRepository_DeleteRestricted(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	author, _ := repo.CreateAuthor(ctx, nil, "Pratchett", nil)
	series, _ := repo.CreateSeries(ctx, "Discworld", nil)
	_, err := repo.CreateBook(ctx, BookInput{Title: "Mort", SeriesID: &series.ID, AuthorIDs: []uint{author.ID}})
	require.NoError(t, err)

	_, err = repo.DeleteSeries(ctx, series.ID)
	assert.ErrorIs(t, err, ErrDeleteRestricted)

	_, err = repo.DeleteAuthor(ctx, author.ID)
	assert.ErrorIs(t, err, ErrDeleteRestricted)

	_, err = repo.DeleteSeries(ctx, 999)
	assert.ErrorIs(t, err, ErrSeriesNotFound)
}

func TestRepository_SeriesAssignsBooks(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	author, _ := repo.CreateAuthor(ctx, nil, "Banks", nil)
	later, _ := repo.CreateBook(ctx, BookInput{Title: "Player of Games", AuthorIDs: []uint{author.ID}, VolumeNr: floatPtr(2)})
	earlier, _ := repo.CreateBook(ctx, BookInput{Title: "Consider Phlebas", AuthorIDs: []uint{author.ID}, VolumeNr: floatPtr(1)})

	series, err := repo.CreateSeries(ctx, "Culture", []uint{later.ID, earlier.ID})
	require.NoError(t, err)
	require.Equal(t, 2, series.BookCount())
	assert.Equal(t, earlier.ID, series.Books[0].ID, "books are ordered by volume")

	_, err = repo.UpdateSeries(ctx, series.ID, "Culture", []uint{999})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "Book", nf.Kind)

	renamed, err := repo.UpdateSeries(ctx, series.ID, "The Culture", nil)
	require.NoError(t, err)
	assert.Equal(t, "The Culture", renamed.Title)
	assert.Equal(t, 2, renamed.BookCount())
}

func TestRepository_AuthorSeries(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	series, _ := repo.CreateSeries(ctx, "Earthsea", nil)
	author, _ := repo.CreateAuthor(ctx, strPtr("Ursula"), "Le Guin", nil)
	for _, title := range []string{"A Wizard of Earthsea", "The Tombs of Atuan"} {
		_, err := repo.CreateBook(ctx, BookInput{Title: title, SeriesID: &series.ID, AuthorIDs: []uint{author.ID}})
		require.NoError(t, err)
	}
	_, err := repo.CreateBook(ctx, BookInput{Title: "The Lathe of Heaven", AuthorIDs: []uint{author.ID}})
	require.NoError(t, err)

	loaded, err := repo.GetAuthor(ctx, author.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Books, 3)
	require.Len(t, loaded.Series(), 1)
	assert.Equal(t, "Earthsea", loaded.Series()[0].Title)
}

func TestRepository_ListBooksPagination(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	author, _ := repo.CreateAuthor(ctx, nil, "Writer", nil)
	for _, title := range []string{"E", "D", "C", "B", "A"} {
		_, err := repo.CreateBook(ctx, BookInput{Title: title, AuthorIDs: []uint{author.ID}})
		require.NoError(t, err)
	}

	page, err := repo.ListBooks(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Last)
	assert.Equal(t, int64(5), page.Total)
	assert.False(t, page.HasPrevious)
	assert.True(t, page.HasNext)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "A", page.Items[0].Title)

	page, err = repo.ListBooks(ctx, 3, 2)
	require.NoError(t, err)
	assert.True(t, page.HasPrevious)
	assert.False(t, page.HasNext)
	assert.Len(t, page.Items, 1)

	_, err = repo.ListBooks(ctx, 4, 2)
	assert.ErrorIs(t, err, ErrPageNotFound)
	_, err = repo.ListBooks(ctx, 0, 2)
	assert.ErrorIs(t, err, ErrPageNotFound)
	_, err = repo.ListBooks(ctx, 1, 0)
	assert.ErrorIs(t, err, ErrPageNotFound)
}

func TestRepository_ListEmptyFirstPage(t *testing.T) {
	repo, _ := setupTestRepo(t)

	page, err := repo.ListSeries(context.Background(), 1, 20)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, 0, page.Last)
	assert.False(t, page.HasNext)
}

func TestRepository_RecentReleases(t *testing.T) {
	repo, _ := setupTestRepo(t)
	ctx := context.Background()

	author, _ := repo.CreateAuthor(ctx, nil, "Writer", nil)
	for year := 2001; year <= 2012; year++ {
		_, err := repo.CreateBook(ctx, BookInput{
			Title:       "Book",
			AuthorIDs:   []uint{author.ID},
			ReleaseDate: entities.NewDate(year, 1, 1),
		})
		require.NoError(t, err)
	}

	books, err := repo.RecentReleases(ctx, 10)
	require.NoError(t, err)
	require.Len(t, books, 10)
	assert.Equal(t, 2012, books[0].ReleaseDate.Year())
	assert.Equal(t, 2003, books[9].ReleaseDate.Year())
}

func TestRepository_TransactionIndexesAfterCommit(t *testing.T) {
	repo, index := setupTestRepo(t)
	ctx := context.Background()

	author, err := repo.CreateAuthor(ctx, strPtr("Iain"), "Banks", nil)
	require.NoError(t, err)

	ids, _, err := index.Query(ctx, entities.IndexAuthors, "iain banks", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{author.ID}, ids)

	_, err = repo.UpdateAuthor(ctx, author.ID, strPtr("Iain M."), "Banks", []uint{404})
	require.Error(t, err)

	// the failed update was rolled back and left the index untouched
	ids, _, err = index.Query(ctx, entities.IndexAuthors, "iain", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{author.ID}, ids)
	ids, _, err = index.Query(ctx, entities.IndexAuthors, "m", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
