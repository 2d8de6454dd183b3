// Package community provides database operations for forum threads and posts.
package community

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/jollyrodger/pika/internal/entities"
)

var (
	ErrThreadNotFound = errors.New("thread not found")
	ErrPostNotFound   = errors.New("post not found")
	ErrNotPostAuthor  = errors.New("post belongs to another user")
)

const (
	// ActiveWindow is how recently a thread must have been updated to count as active.
	ActiveWindow = 24 * time.Hour
	// PopularViews is the view count from which an active thread is popular.
	PopularViews = 100
)

type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// NewThreads returns the n most recently created threads.
func (r *Repository) NewThreads(ctx context.Context, n int) ([]entities.Thread, error) {
	return r.threads(ctx, n, "created DESC", "")
}

// ActiveThreads returns the n most recently updated threads of the last day.
func (r *Repository) ActiveThreads(ctx context.Context, n int) ([]entities.Thread, error) {
	return r.threads(ctx, n, "last_updated DESC", "last_updated >= ?", r.now().Add(-ActiveWindow))
}

// PopularThreads returns the n most recently updated active threads with many views.
func (r *Repository) PopularThreads(ctx context.Context, n int) ([]entities.Thread, error) {
	return r.threads(ctx, n, "last_updated DESC", "last_updated >= ? AND views >= ?", r.now().Add(-ActiveWindow), PopularViews)
}

func (r *Repository) threads(ctx context.Context, n int, order, where string, args ...any) ([]entities.Thread, error) {
	query := r.db.WithContext(ctx).Preload("Author").Preload("Posts").Order(order).Limit(n)
	if where != "" {
		query = query.Where(where, args...)
	}
	var threads []entities.Thread
	err := query.Find(&threads).Error
	return threads, err
}

// GetThread loads a thread with its author and posts in creation order.
func (r *Repository) GetThread(ctx context.Context, id uint) (*entities.Thread, error) {
	var thread entities.Thread
	err := r.db.WithContext(ctx).Preload("Author").Preload("Posts", func(db *gorm.DB) *gorm.DB {
		return db.Order("created, post_id")
	}).Preload("Posts.Author").First(&thread, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

// CreateThread opens a thread with its first post.
func (r *Repository) CreateThread(ctx context.Context, authorID uint, title, content string) (*entities.Thread, error) {
	now := r.now()
	thread := &entities.Thread{
		Title:       title,
		Created:     now,
		LastUpdated: now,
		AuthorID:    &authorID,
		Posts: []entities.Post{{
			Content:  content,
			Created:  now,
			AuthorID: &authorID,
		}},
	}
	if err := r.db.WithContext(ctx).Omit("Author").Create(thread).Error; err != nil {
		return nil, fmt.Errorf("failed to create thread: %w", err)
	}
	return thread, nil
}

// IncrementViews adds one view to a thread.
func (r *Repository) IncrementViews(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Model(&entities.Thread{}).Where("thread_id = ?", id).
		UpdateColumn("views", gorm.Expr("views + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrThreadNotFound
	}
	return nil
}

// AddPost appends a post to a thread and marks the thread as updated.
func (r *Repository) AddPost(ctx context.Context, threadID, authorID uint, content string) (*entities.Post, error) {
	post := &entities.Post{
		Content:  content,
		ThreadID: threadID,
		Created:  r.now(),
		AuthorID: &authorID,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&entities.Thread{}).Where("thread_id = ?", threadID).Update("last_updated", post.Created)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrThreadNotFound
		}
		return tx.Omit("Author").Create(post).Error
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

// EditPost replaces the content of a post written by authorID.
func (r *Repository) EditPost(ctx context.Context, postID, authorID uint, content string) error {
	var post entities.Post
	if err := r.db.WithContext(ctx).First(&post, postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPostNotFound
		}
		return err
	}
	if post.AuthorID == nil || *post.AuthorID != authorID {
		return ErrNotPostAuthor
	}
	return r.db.WithContext(ctx).Model(&post).Update("content", content).Error
}

// UserPosts returns the posts of a user, newest first.
func (r *Repository) UserPosts(ctx context.Context, authorID uint) ([]entities.Post, error) {
	var posts []entities.Post
	err := r.db.WithContext(ctx).Where("author_id = ?", authorID).Order("created DESC").Find(&posts).Error
	return posts, err
}

// UserThreads returns the threads opened by a user, newest first.
func (r *Repository) UserThreads(ctx context.Context, authorID uint) ([]entities.Thread, error) {
	var threads []entities.Thread
	err := r.db.WithContext(ctx).Preload("Posts").Where("author_id = ?", authorID).Order("created DESC").Find(&threads).Error
	return threads, err
}

func (r *Repository) CountUserPosts(ctx context.Context, authorID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entities.Post{}).Where("author_id = ?", authorID).Count(&count).Error
	return count, err
}
