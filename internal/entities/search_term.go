package entities

// SearchTerm is one row of the inverted search index.
type SearchTerm struct {
	ID        uint   `gorm:"primaryKey"`
	IndexName string `gorm:"size:50;not null;index:idx_search_terms_doc,priority:1;index:idx_search_terms_term,priority:1"`
	DocID     uint   `gorm:"not null;index:idx_search_terms_doc,priority:2"`
	Field     string `gorm:"size:50;not null"`
	Term      string `gorm:"size:255;not null;index:idx_search_terms_term,priority:2"`
}

func (SearchTerm) TableName() string {
	return "search_terms"
}
