package metadata

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jollyrodger/pika/internal/entities"
	"github.com/jollyrodger/pika/internal/search"
)

type stubProvider struct {
	meta *BookMetadata
	err  error
}

func (s *stubProvider) FetchBook(ctx context.Context, pageURL string) (*BookMetadata, error) {
	return s.meta, s.err
}

type stubMatcher struct {
	authors map[string]uint
	series  map[string]uint
	err     error
}

func (s *stubMatcher) MatchAuthor(ctx context.Context, name string) (*uint, error) {
	return lookup(s.authors, name), s.err
}

func (s *stubMatcher) MatchSeries(ctx context.Context, title string) (*uint, error) {
	return lookup(s.series, title), s.err
}

func lookup(m map[string]uint, key string) *uint {
	if id, ok := m[key]; ok {
		return &id
	}
	return nil
}

func sampleMetadata() *BookMetadata {
	return &BookMetadata{
		Title:       "Leviathan Wakes",
		SeriesTitle: "The Expanse",
		VolumeNr:    ptr(1.0),
		AuthorName:  "James S.A. Corey",
		ReleaseDate: entities.NewDate(2011, time.June, 15),
		Synopsis:    "Humanity has colonized the solar system.",
		CoverURL:    "https://images.example.com/lw.jpg",
	}
}

func TestImporter_Preview(t *testing.T) {
	importer := NewImporter(
		&stubProvider{meta: sampleMetadata()},
		&stubMatcher{
			authors: map[string]uint{"James S.A. Corey": 7},
			series:  map[string]uint{"The Expanse": 3},
		},
	)

	preview, err := importer.Preview(context.Background(), "https://www.goodreads.com/book/show/8855321")
	require.NoError(t, err)

	assert.Equal(t, "https://www.goodreads.com/book/show/8855321", preview.SourceURL)
	assert.Equal(t, "Leviathan Wakes", preview.Title)
	assert.Equal(t, []uint{7}, preview.AuthorIDs)
	require.NotNil(t, preview.SeriesID)
	assert.Equal(t, uint(3), *preview.SeriesID)
	assert.Equal(t, "https://images.example.com/lw.jpg", preview.CoverURL)

	in := preview.BookInput()
	assert.Equal(t, "Leviathan Wakes", in.Title)
	assert.Equal(t, []uint{7}, in.AuthorIDs)
	require.NotNil(t, in.Synopsis)
	assert.Equal(t, "Humanity has colonized the solar system.", *in.Synopsis)
	assert.Nil(t, in.Cover)
	assert.False(t, in.ReadStatus)
}

func TestImporter_PreviewWithoutMatches(t *testing.T) {
	importer := NewImporter(&stubProvider{meta: sampleMetadata()}, &stubMatcher{})

	preview, err := importer.Preview(context.Background(), "https://www.goodreads.com/book/show/1")
	require.NoError(t, err)

	assert.Empty(t, preview.AuthorIDs)
	assert.Nil(t, preview.SeriesID)
	assert.Equal(t, "James S.A. Corey", preview.AuthorName)
	assert.Equal(t, "The Expanse", preview.SeriesTitle)
}

func TestImporter_Errors(t *testing.T) {
	_, err := NewImporter(&stubProvider{err: ErrUnexpectedStatus}, &stubMatcher{}).
		Preview(context.Background(), "https://www.goodreads.com/book/show/1")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)

	boom := errors.New("index unavailable")
	_, err = NewImporter(&stubProvider{meta: sampleMetadata()}, &stubMatcher{err: boom}).
		Preview(context.Background(), "https://www.goodreads.com/book/show/1")
	assert.ErrorIs(t, err, boom)
}

func TestIndexMatcher(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "match.db")+"?_foreign_keys=on"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	require.NoError(t, db.AutoMigrate(&entities.Author{}, &entities.Series{}, &entities.Book{}))

	index, err := search.NewIndex(db, 16)
	require.NoError(t, err)
	require.NoError(t, db.Use(search.NewSyncPlugin(index)))

	first := "James"
	author := entities.Author{FirstName: &first, LastName: "Corey"}
	require.NoError(t, db.Create(&author).Error)
	series := entities.Series{Title: "The Expanse"}
	require.NoError(t, db.Create(&series).Error)

	matcher := NewIndexMatcher(index, db)
	ctx := context.Background()

	id, err := matcher.MatchAuthor(ctx, "James Corey")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, author.ID, *id)

	id, err = matcher.MatchSeries(ctx, "expanse")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, series.ID, *id)

	id, err = matcher.MatchSeries(ctx, "Discworld")
	require.NoError(t, err)
	assert.Nil(t, id)
}
