package entities

import "time"

type Thread struct {
	ID          uint      `gorm:"primaryKey;column:thread_id" json:"thread_id"`
	Title       string    `gorm:"size:255;not null" json:"title"`
	Created     time.Time `gorm:"not null;index" json:"created"`
	LastUpdated time.Time `gorm:"not null;index" json:"last_updated"`
	Views       int       `gorm:"not null;default:0" json:"views"`
	AuthorID    *uint     `gorm:"index" json:"author_id"`

	Author *User  `gorm:"foreignKey:AuthorID;references:ID;constraint:OnDelete:SET NULL" json:"author,omitempty"`
	Posts  []Post `gorm:"foreignKey:ThreadID;constraint:OnDelete:CASCADE" json:"posts,omitempty"`
}

func (Thread) TableName() string {
	return "threads"
}

func (t Thread) PostCount() int {
	return len(t.Posts)
}

type Post struct {
	ID       uint      `gorm:"primaryKey;column:post_id" json:"post_id"`
	Content  string    `gorm:"type:text;not null" json:"content"`
	ThreadID uint      `gorm:"not null;index" json:"thread_id"`
	Created  time.Time `gorm:"not null;index" json:"created"`
	AuthorID *uint     `gorm:"index" json:"author_id"`

	Author *User `gorm:"foreignKey:AuthorID;references:ID;constraint:OnDelete:SET NULL" json:"author,omitempty"`
}

func (Post) TableName() string {
	return "posts"
}
