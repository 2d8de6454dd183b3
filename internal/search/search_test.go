package search

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jollyrodger/pika/internal/entities"
)

func setupTestIndex(t *testing.T) (*gorm.DB, *Index) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "search.db")
	db, err := gorm.Open(sqlite.Open(dbPath+"?_foreign_keys=on&_busy_timeout=5000"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&entities.Author{}, &entities.Series{}, &entities.Book{}))

	index, err := NewIndex(db, 16)
	require.NoError(t, err)
	require.NoError(t, db.Use(NewSyncPlugin(index)))

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	return db, index
}

func strPtr(s string) *string { return &s }

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"the", "lord", "of", "the", "rings", "2"}, Tokenize("The Lord of the Rings, #2"))
	assert.Equal(t, []string{"müller", "straße"}, Tokenize("Müller-Straße"))
	assert.Empty(t, Tokenize(" -- "))
}

func TestMatchScore(t *testing.T) {
	tests := []struct {
		query string
		term  string
		want  int
	}{
		{"dune", "dune", scoreExact},
		{"du", "dune", scorePrefix},
		{"dnue", "dune", 0},          // first two runes differ
		{"duno", "dune", scoreFuzzy}, // one edit allowed for four runes
		{"dunnes", "dune", scoreFuzzy},
		{"foundatoin", "foundation", scoreFuzzy},
		{"fundaxxon", "foundation", 0},
		{"ab", "ac", 0}, // short terms must match exactly
		{"tolkien", "tolkein", scoreFuzzy},
		{"tolxxxn", "tolkien", 0},
	}

	for _, tt := range tests {
		t.Run(tt.query+"_"+tt.term, func(t *testing.T) {
			assert.Equal(t, tt.want, matchScore(tt.query, tt.term))
		})
	}
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein([]rune("abc"), []rune("abc"), 2))
	assert.Equal(t, 1, levenshtein([]rune("abc"), []rune("abd"), 2))
	assert.Equal(t, 2, levenshtein([]rune("kitten"), []rune("sittin"), 2))
	assert.Equal(t, 3, levenshtein([]rune("a"), []rune("abcdef"), 2))
}

func TestIndex_QueryRanksExactBeforePrefix(t *testing.T) {
	db, index := setupTestIndex(t)
	ctx := context.Background()

	series := []entities.Series{
		{Title: "Dune Messiah"},
		{Title: "Dune"},
		{Title: "Dunes of Arrakis"},
		{Title: "Foundation"},
	}
	require.NoError(t, db.Create(&series).Error)

	ids, total, err := index.Query(ctx, entities.IndexSeries, "dune", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	// exact matches first (ties by id), then the prefix match
	assert.Equal(t, []uint{series[0].ID, series[1].ID, series[2].ID}, ids)

	ids, total, err = index.Query(ctx, entities.IndexSeries, "dune messiah", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, series[0].ID, ids[0])
}

func TestIndex_QueryPaging(t *testing.T) {
	db, index := setupTestIndex(t)
	ctx := context.Background()

	for _, title := range []string{"Alpha One", "Alpha Two", "Alpha Three"} {
		require.NoError(t, db.Create(&entities.Series{Title: title}).Error)
	}

	ids, total, err := index.Query(ctx, entities.IndexSeries, "alpha", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, ids, 1)

	ids, _, err = index.Query(ctx, entities.IndexSeries, "alpha", 5, 2)
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, _, err = index.Query(ctx, entities.IndexSeries, "alpha", 0, 2)
	assert.ErrorIs(t, err, ErrInvalidPage)
}

func TestSyncPlugin_UpdateAndDelete(t *testing.T) {
	db, index := setupTestIndex(t)
	ctx := context.Background()

	author := entities.Author{FirstName: strPtr("Frank"), LastName: "Herbert"}
	require.NoError(t, db.Create(&author).Error)

	ids, _, err := index.Query(ctx, entities.IndexAuthors, "herbert", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{author.ID}, ids)

	author.LastName = "Asimov"
	require.NoError(t, db.Save(&author).Error)

	ids, _, err = index.Query(ctx, entities.IndexAuthors, "herbert", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, ids, "cached result must be purged after an update")

	ids, _, err = index.Query(ctx, entities.IndexAuthors, "frank asimov", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{author.ID}, ids)

	require.NoError(t, db.Delete(&author).Error)
	ids, _, err = index.Query(ctx, entities.IndexAuthors, "asimov", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSyncPlugin_TransactionAppliesAfterCommit(t *testing.T) {
	db, index := setupTestIndex(t)

	ctx, changes := Collect(context.Background())
	require.NotNil(t, changes)

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entities.Series{Title: "Discworld"}).Error; err != nil {
			return err
		}
		assert.Equal(t, 1, changes.Len())
		return nil
	})
	require.NoError(t, err)

	ids, _, err := index.Query(context.Background(), entities.IndexSeries, "discworld", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, ids, "nothing is indexed before the changes are committed")

	changes.Commit(ctx)
	ids, _, err = index.Query(context.Background(), entities.IndexSeries, "discworld", 1, 10)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}

func TestSyncPlugin_RollbackDiscardsChanges(t *testing.T) {
	db, index := setupTestIndex(t)

	ctx, changes := Collect(context.Background())
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entities.Series{Title: "Earthsea"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)
	changes.Discard()
	changes.Commit(ctx)

	ids, _, err := index.Query(context.Background(), entities.IndexSeries, "earthsea", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestCollect_Nested(t *testing.T) {
	ctx, outer := Collect(context.Background())
	require.NotNil(t, outer)

	inner, changes := Collect(ctx)
	assert.Nil(t, changes)
	assert.Equal(t, ctx, inner)
}

func TestIndex_Reindex(t *testing.T) {
	db, index := setupTestIndex(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&entities.Book{Title: "Hyperion", ReleaseDate: entities.NewDate(1989, 5, 26)}).Error)
	require.NoError(t, db.Where("1 = 1").Delete(&entities.SearchTerm{}).Error)

	ids, _, err := index.Query(ctx, entities.IndexBooks, "hyperion", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, index.Reindex(ctx))

	books, total, err := Search[entities.Book](ctx, index, db, "hyperion", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, books, 1)
	assert.Equal(t, "Hyperion", books[0].Title)
}

func TestIndex_ReindexReportsCountFailure(t *testing.T) {
	db, index := setupTestIndex(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&entities.Book{Title: "Hyperion", ReleaseDate: entities.NewDate(1989, 5, 26)}).Error)

	countErr := errors.New("disk I/O error")
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("test:fail_term_reads", func(tx *gorm.DB) {
		if tx.Statement.Table == "search_terms" {
			_ = tx.AddError(countErr)
		}
	}))

	err := index.Reindex(ctx)
	assert.ErrorIs(t, err, countErr)
}

func TestSearch_PreservesRankOrder(t *testing.T) {
	db, index := setupTestIndex(t)
	ctx := context.Background()

	first := entities.Author{LastName: "Sanderson"}
	second := entities.Author{FirstName: strPtr("Brandon"), LastName: "Sanderson"}
	require.NoError(t, db.Create(&first).Error)
	require.NoError(t, db.Create(&second).Error)

	authors, total, err := Search[entities.Author](ctx, index, db, "brandon sanderson", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, authors, 2)
	assert.Equal(t, second.ID, authors[0].ID)
	assert.Equal(t, first.ID, authors[1].ID)
}
