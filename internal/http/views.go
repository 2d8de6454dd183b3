package http

import (
	"github.com/jollyrodger/pika/internal/database/library"
	"github.com/jollyrodger/pika/internal/entities"
)

// BookBase holds the columns of a book.
type BookBase struct {
	BookID           uint          `json:"book_id"`
	Title            string        `json:"title"`
	ReleaseDate      entities.Date `json:"release_date"`
	ReadStatus       bool          `json:"read_status"`
	VolumeNr         *float64      `json:"volume_nr"`
	Synopsis         *string       `json:"synopsis"`
	Cover            *string       `json:"cover"`
	VolumeNrAsString *string       `json:"volume_nr_as_string"`
}

type SeriesBase struct {
	SeriesID uint   `json:"series_id"`
	Title    string `json:"title"`
}

type AuthorBase struct {
	AuthorID  uint    `json:"author_id"`
	FirstName *string `json:"first_name"`
	LastName  string  `json:"last_name"`
	FullName  string  `json:"full_name"`
}

// BookData is a book with its series and authors.
type BookData struct {
	BookBase
	Series  *SeriesBase  `json:"series"`
	Authors []AuthorBase `json:"authors"`
}

// SeriesBook is a book nested in a series.
type SeriesBook struct {
	BookBase
	Authors []AuthorBase `json:"authors"`
}

type SeriesData struct {
	SeriesBase
	Books     []SeriesBook `json:"books"`
	BookCount int          `json:"book_count"`
}

// AuthorBook is a book nested in an author.
type AuthorBook struct {
	BookBase
	Series *SeriesBase `json:"series"`
}

type AuthorData struct {
	AuthorBase
	Books  []AuthorBook `json:"books"`
	Series []SeriesBase `json:"series"`
}

// LibraryPage holds the paging fields shared by all listings.
type LibraryPage struct {
	First       int  `json:"first"`
	Last        int  `json:"last"`
	HasPrevious bool `json:"has_previous"`
	HasNext     bool `json:"has_next"`
}

type BookPage struct {
	LibraryPage
	Books []BookData `json:"books"`
}

type SeriesPage struct {
	LibraryPage
	Series []SeriesData `json:"series"`
}

type AuthorsPage struct {
	LibraryPage
	Authors []AuthorData `json:"authors"`
}

func newLibraryPage[T any](p *library.Page[T]) LibraryPage {
	return LibraryPage{
		First:       1,
		Last:        p.Last,
		HasPrevious: p.HasPrevious,
		HasNext:     p.HasNext,
	}
}

func mapSlice[T, V any](items []T, fn func(T) V) []V {
	out := make([]V, 0, len(items))
	for _, item := range items {
		out = append(out, fn(item))
	}
	return out
}

func newBookBase(b entities.Book) BookBase {
	return BookBase{
		BookID:           b.ID,
		Title:            b.Title,
		ReleaseDate:      b.ReleaseDate,
		ReadStatus:       b.ReadStatus,
		VolumeNr:         b.VolumeNr,
		Synopsis:         b.Synopsis,
		Cover:            b.Cover,
		VolumeNrAsString: b.VolumeNrString(),
	}
}

func newSeriesBase(s entities.Series) SeriesBase {
	return SeriesBase{SeriesID: s.ID, Title: s.Title}
}

func newAuthorBase(a entities.Author) AuthorBase {
	return AuthorBase{
		AuthorID:  a.ID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		FullName:  a.FullName(),
	}
}

func optionalSeries(s *entities.Series) *SeriesBase {
	if s == nil {
		return nil
	}
	base := newSeriesBase(*s)
	return &base
}

func newBookData(b entities.Book) BookData {
	return BookData{
		BookBase: newBookBase(b),
		Series:   optionalSeries(b.Series),
		Authors:  mapSlice(b.Authors, newAuthorBase),
	}
}

func newSeriesData(s entities.Series) SeriesData {
	books := mapSlice(s.Books, func(b entities.Book) SeriesBook {
		return SeriesBook{BookBase: newBookBase(b), Authors: mapSlice(b.Authors, newAuthorBase)}
	})
	return SeriesData{
		SeriesBase: newSeriesBase(s),
		Books:      books,
		BookCount:  s.BookCount(),
	}
}

func newAuthorData(a entities.Author) AuthorData {
	books := mapSlice(a.Books, func(b entities.Book) AuthorBook {
		return AuthorBook{BookBase: newBookBase(b), Series: optionalSeries(b.Series)}
	})
	return AuthorData{
		AuthorBase: newAuthorBase(a),
		Books:      books,
		Series:     mapSlice(a.Series(), newSeriesBase),
	}
}
