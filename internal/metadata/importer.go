package metadata

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/jollyrodger/pika/internal/database/library"
	"github.com/jollyrodger/pika/internal/entities"
	"github.com/jollyrodger/pika/internal/search"
)

// BookProvider fetches the metadata of a book page.
type BookProvider interface {
	FetchBook(ctx context.Context, pageURL string) (*BookMetadata, error)
}

// Matcher resolves scraped names to existing library records.
type Matcher interface {
	MatchAuthor(ctx context.Context, name string) (*uint, error)
	MatchSeries(ctx context.Context, title string) (*uint, error)
}

// ImportPreview is the prefilled book form of an import.
type ImportPreview struct {
	SourceURL   string        `json:"import_url"`
	Title       string        `json:"title"`
	ReleaseDate entities.Date `json:"release_date"`
	Synopsis    string        `json:"synopsis"`
	VolumeNr    *float64      `json:"volume_nr"`
	SeriesID    *uint         `json:"series"`
	AuthorIDs   []uint        `json:"authors"`
	CoverURL    string        `json:"cover_url,omitempty"`

	// Scraped names, kept so the user can see what did not match.
	AuthorName  string `json:"author_name,omitempty"`
	SeriesTitle string `json:"series_title,omitempty"`
}

// BookInput converts the preview into repository input. The cover is set after download.
func (p ImportPreview) BookInput() library.BookInput {
	in := library.BookInput{
		Title:       p.Title,
		SeriesID:    p.SeriesID,
		AuthorIDs:   p.AuthorIDs,
		VolumeNr:    p.VolumeNr,
		ReleaseDate: p.ReleaseDate,
	}
	if p.Synopsis != "" {
		synopsis := p.Synopsis
		in.Synopsis = &synopsis
	}
	return in
}

// Importer turns a third-party book page into a book form.
type Importer struct {
	provider BookProvider
	matcher  Matcher
}

func NewImporter(provider BookProvider, matcher Matcher) *Importer {
	return &Importer{provider: provider, matcher: matcher}
}

// Preview fetches pageURL and matches its author and series against the library.
func (i *Importer) Preview(ctx context.Context, pageURL string) (*ImportPreview, error) {
	meta, err := i.provider.FetchBook(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	preview := &ImportPreview{
		SourceURL:   pageURL,
		Title:       meta.Title,
		ReleaseDate: meta.ReleaseDate,
		Synopsis:    meta.Synopsis,
		VolumeNr:    meta.VolumeNr,
		CoverURL:    meta.CoverURL,
		AuthorName:  meta.AuthorName,
		SeriesTitle: meta.SeriesTitle,
		AuthorIDs:   []uint{},
	}

	if meta.AuthorName != "" {
		id, err := i.matcher.MatchAuthor(ctx, meta.AuthorName)
		if err != nil {
			return nil, fmt.Errorf("match author: %w", err)
		}
		if id != nil {
			preview.AuthorIDs = append(preview.AuthorIDs, *id)
		}
	}

	if meta.SeriesTitle != "" {
		id, err := i.matcher.MatchSeries(ctx, meta.SeriesTitle)
		if err != nil {
			return nil, fmt.Errorf("match series: %w", err)
		}
		preview.SeriesID = id
	}

	return preview, nil
}

// IndexMatcher takes the first search hit as the match.
type IndexMatcher struct {
	index *search.Index
	db    *gorm.DB
}

func NewIndexMatcher(index *search.Index, db *gorm.DB) *IndexMatcher {
	return &IndexMatcher{index: index, db: db}
}

func (m *IndexMatcher) MatchAuthor(ctx context.Context, name string) (*uint, error) {
	return firstHit[entities.Author](ctx, m.index, m.db, name)
}

func (m *IndexMatcher) MatchSeries(ctx context.Context, title string) (*uint, error) {
	return firstHit[entities.Series](ctx, m.index, m.db, title)
}

func firstHit[T search.Document](ctx context.Context, index *search.Index, db *gorm.DB, expression string) (*uint, error) {
	hits, _, err := search.Search[T](ctx, index, db, expression, 1, 1)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}
	id := hits[0].DocumentID()
	return &id, nil
}
