package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/gorm"

	"github.com/jollyrodger/pika/internal/entities"
)

// ErrInvalidPage is returned by Query for a page or page size below one.
var ErrInvalidPage = errors.New("page and per_page must be positive")

// Document is a record that can be stored in the index.
type Document interface {
	IndexName() string
	DocumentID() uint
	SearchFields() map[string]string
}

type cacheKey struct {
	index      string
	expression string
	page       int
	perPage    int
}

type queryResult struct {
	ids   []uint
	total int64
}

// Index ranks library documents against fuzzy queries. Results are cached
// until the next write.
type Index struct {
	db    *gorm.DB
	cache *lru.Cache[cacheKey, queryResult]
}

// NewIndex migrates the term table and keeps an LRU of cacheSize query results.
func NewIndex(db *gorm.DB, cacheSize int) (*Index, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[cacheKey, queryResult](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create search cache: %w", err)
	}
	if err := db.AutoMigrate(&entities.SearchTerm{}); err != nil {
		return nil, fmt.Errorf("failed to migrate search index: %w", err)
	}
	return &Index{db: db, cache: cache}, nil
}

// Add (re)indexes a document, replacing any terms stored for it before.
func (i *Index) Add(ctx context.Context, doc Document) error {
	if doc.DocumentID() == 0 {
		return nil
	}
	defer i.cache.Purge()

	return i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteDocument(tx, doc.IndexName(), doc.DocumentID()); err != nil {
			return err
		}
		rows := termRows(doc)
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(rows, 200).Error; err != nil {
			return fmt.Errorf("failed to index %s/%d: %w", doc.IndexName(), doc.DocumentID(), err)
		}
		return nil
	})
}

// Remove deletes every term of a document.
func (i *Index) Remove(ctx context.Context, doc Document) error {
	if doc.DocumentID() == 0 {
		return nil
	}
	defer i.cache.Purge()
	return deleteDocument(i.db.WithContext(ctx), doc.IndexName(), doc.DocumentID())
}

// Query returns the IDs of the documents in index matching expression, best
// match first, together with the total number of matching documents.
func (i *Index) Query(ctx context.Context, index, expression string, page, perPage int) ([]uint, int64, error) {
	if page < 1 || perPage < 1 {
		return nil, 0, ErrInvalidPage
	}

	key := cacheKey{index: index, expression: expression, page: page, perPage: perPage}
	if cached, ok := i.cache.Get(key); ok {
		return cached.ids, cached.total, nil
	}

	ranked, err := i.rank(ctx, index, expression)
	if err != nil {
		return nil, 0, err
	}

	total := int64(len(ranked))
	from := (page - 1) * perPage
	ids := []uint{}
	if from < len(ranked) {
		to := min(from+perPage, len(ranked))
		ids = ranked[from:to]
	}

	i.cache.Add(key, queryResult{ids: ids, total: total})
	return ids, total, nil
}

// Reindex drops every index and rebuilds it from the library tables.
func (i *Index) Reindex(ctx context.Context) error {
	defer i.cache.Purge()

	err := i.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&entities.SearchTerm{}).Error; err != nil {
			return fmt.Errorf("failed to clear search index: %w", err)
		}
		if err := reindexModel[entities.Author](tx); err != nil {
			return err
		}
		if err := reindexModel[entities.Book](tx); err != nil {
			return err
		}
		return reindexModel[entities.Series](tx)
	})
	if err != nil {
		return err
	}

	var count int64
	if err := i.db.WithContext(ctx).Model(&entities.SearchTerm{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count search terms: %w", err)
	}
	log.Printf("[SEARCH] Reindex complete, %d terms", count)
	return nil
}

func (i *Index) rank(ctx context.Context, index, expression string) ([]uint, error) {
	queryTerms := uniqueTerms(expression)
	if len(queryTerms) == 0 {
		return nil, nil
	}

	scores := make(map[uint]int)
	for _, q := range queryTerms {
		candidates, err := i.candidates(ctx, index, q)
		if err != nil {
			return nil, err
		}

		best := make(map[uint]int)
		for _, c := range candidates {
			if s := matchScore(q, c.Term); s > best[c.DocID] {
				best[c.DocID] = s
			}
		}
		for id, s := range best {
			if s > 0 {
				scores[id] += s
			}
		}
	}

	ids := make([]uint, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool {
		if scores[ids[a]] != scores[ids[b]] {
			return scores[ids[a]] > scores[ids[b]]
		}
		return ids[a] < ids[b]
	})
	return ids, nil
}

// candidates loads the indexed terms sharing the query term's leading runes.
func (i *Index) candidates(ctx context.Context, index, query string) ([]entities.SearchTerm, error) {
	prefix := query
	if r := []rune(query); len(r) > prefixLength {
		prefix = string(r[:prefixLength])
	}

	var rows []entities.SearchTerm
	err := i.db.WithContext(ctx).
		Select("doc_id", "term").
		Where("index_name = ? AND term LIKE ?", index, prefix+"%").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query search index: %w", err)
	}
	return rows, nil
}

func deleteDocument(db *gorm.DB, index string, id uint) error {
	err := db.Where("index_name = ? AND doc_id = ?", index, id).Delete(&entities.SearchTerm{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove %s/%d from index: %w", index, id, err)
	}
	return nil
}

func termRows(doc Document) []entities.SearchTerm {
	fields := doc.SearchFields()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var rows []entities.SearchTerm
	for _, field := range names {
		for _, term := range uniqueTerms(fields[field]) {
			rows = append(rows, entities.SearchTerm{
				IndexName: doc.IndexName(),
				DocID:     doc.DocumentID(),
				Field:     field,
				Term:      term,
			})
		}
	}
	return rows
}

func reindexModel[T Document](tx *gorm.DB) error {
	var records []T
	if err := tx.Find(&records).Error; err != nil {
		return fmt.Errorf("failed to load records for reindex: %w", err)
	}

	var rows []entities.SearchTerm
	for _, r := range records {
		rows = append(rows, termRows(r)...)
	}
	if len(rows) == 0 {
		return nil
	}
	if err := tx.CreateInBatches(rows, 200).Error; err != nil {
		return fmt.Errorf("failed to write search index: %w", err)
	}
	return nil
}
