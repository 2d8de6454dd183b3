package entities

import (
	"strconv"
)

// Search index names of the library documents.
const (
	IndexAuthors = "library_authors"
	IndexBooks   = "library_books"
	IndexSeries  = "library_series"
)

type Author struct {
	ID        uint    `gorm:"primaryKey;column:author_id" json:"author_id"`
	FirstName *string `gorm:"size:255" json:"first_name"`
	LastName  string  `gorm:"size:255;not null;index" json:"last_name"`

	Books []Book `gorm:"many2many:library_books_authors;joinForeignKey:AuthorID;joinReferences:BookID" json:"books,omitempty"`
}

func (Author) TableName() string {
	return "library_authors"
}

// FullName is "first last", or only the last name when no first name is set.
func (a Author) FullName() string {
	if a.FirstName != nil && *a.FirstName != "" {
		return *a.FirstName + " " + a.LastName
	}
	return a.LastName
}

// Series returns the distinct series of the author's loaded books in book order.
func (a Author) Series() []Series {
	seen := make(map[uint]bool)
	var result []Series
	for _, b := range a.Books {
		if b.Series == nil || seen[b.Series.ID] {
			continue
		}
		seen[b.Series.ID] = true
		result = append(result, *b.Series)
	}
	return result
}

func (a Author) IndexName() string { return IndexAuthors }
func (a Author) DocumentID() uint  { return a.ID }

func (a Author) SearchFields() map[string]string {
	first := ""
	if a.FirstName != nil {
		first = *a.FirstName
	}
	return map[string]string{"first_name": first, "last_name": a.LastName}
}

type Series struct {
	ID    uint   `gorm:"primaryKey;column:series_id" json:"series_id"`
	Title string `gorm:"size:255;not null;index" json:"title"`

	Books []Book `gorm:"foreignKey:SeriesID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"books,omitempty"`
}

func (Series) TableName() string {
	return "library_series"
}

// BookCount counts the loaded books.
func (s Series) BookCount() int {
	return len(s.Books)
}

func (s Series) IndexName() string { return IndexSeries }
func (s Series) DocumentID() uint  { return s.ID }

func (s Series) SearchFields() map[string]string {
	return map[string]string{"title": s.Title}
}

type Book struct {
	ID          uint     `gorm:"primaryKey;column:book_id" json:"book_id"`
	Title       string   `gorm:"size:255;not null;index" json:"title"`
	ReleaseDate Date     `gorm:"not null;index" json:"release_date"`
	ReadStatus  bool     `gorm:"not null;default:false" json:"read_status"`
	SeriesID    *uint    `gorm:"index" json:"-"`
	VolumeNr    *float64 `json:"volume_nr"`
	Synopsis    *string  `gorm:"type:text" json:"synopsis"`
	Cover       *string  `gorm:"size:255" json:"cover"`

	Series  *Series  `gorm:"foreignKey:SeriesID" json:"series"`
	Authors []Author `gorm:"many2many:library_books_authors;joinForeignKey:BookID;joinReferences:AuthorID" json:"authors"`
}

func (Book) TableName() string {
	return "library_books"
}

// VolumeNrString renders the volume number without a trailing ".0".
// It returns nil when no volume number is set.
func (b Book) VolumeNrString() *string {
	if b.VolumeNr == nil {
		return nil
	}
	s := FormatVolume(*b.VolumeNr)
	return &s
}

// FormatVolume formats whole numbers as integers and everything else in the shortest decimal form.
func FormatVolume(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (b Book) IndexName() string { return IndexBooks }
func (b Book) DocumentID() uint  { return b.ID }

func (b Book) SearchFields() map[string]string {
	return map[string]string{"title": b.Title}
}

// BookAuthor links books and authors.
type BookAuthor struct {
	BookID   uint `gorm:"primaryKey"`
	AuthorID uint `gorm:"primaryKey;index"`
}

func (BookAuthor) TableName() string {
	return "library_books_authors"
}
