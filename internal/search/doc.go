// Package search maintains the full-text index of library records.
//
// The index is an inverted term table (search_terms) stored in the main
// database. Documents are kept in sync through a GORM plugin that re-indexes
// every written Document once its transaction has committed.
//
// # Usage
//
//	index, err := search.NewIndex(db.DB, cfg.Search.CacheSize)
//	if err := db.DB.Use(search.NewSyncPlugin(index)); err != nil { ... }
//
//	books, total, err := search.Search[entities.Book](ctx, index, db.DB, "dune", 1, 10)
//
// # Matching
//
// Query terms match indexed terms exactly, by prefix, or fuzzily. The allowed
// edit distance grows with the term length (0 up to two runes, 1 up to five,
// 2 beyond) and the first two runes must always agree.
package search
