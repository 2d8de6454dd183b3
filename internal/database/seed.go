package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/jollyrodger/pika/internal/entities"
)

// DefaultThreads are the forum threads created together with the first administrator.
var DefaultThreads = []struct {
	Title   string
	Content string
}{
	{"Book Discussion", "This is a place to discuss books."},
	{"Series Discussion", "This is a place to discuss book series."},
	{"Author Discussion", "This is a place to discuss authors."},
	{"Bug Reports", "Any discovered bugs can be reported here."},
	{"Improvement Requests", "Any improvement requests or suggestions can be posted here. They may be implemented in the future."},
}

type SeedOptions struct {
	AdminUsername     string
	AdminEmail        string
	AdminPasswordHash string
}

// Seed creates the default administrator and forum threads. It does nothing
// unless the users, threads and posts tables are all empty, and reports
// whether records were created.
func (d *Database) Seed(opts SeedOptions) (bool, error) {
	for _, model := range []any{&entities.User{}, &entities.Thread{}, &entities.Post{}} {
		var count int64
		if err := d.DB.Model(model).Count(&count).Error; err != nil {
			return false, err
		}
		if count > 0 {
			return false, nil
		}
	}

	err := d.DB.Transaction(func(tx *gorm.DB) error {
		var adminRole entities.Role
		if err := tx.Where("name = ?", entities.RoleAdmin).First(&adminRole).Error; err != nil {
			return fmt.Errorf("failed to load admin role: %w", err)
		}

		now := time.Now().UTC()
		admin := entities.User{
			Username:     opts.AdminUsername,
			Email:        opts.AdminEmail,
			PasswordHash: opts.AdminPasswordHash,
			Active:       true,
			CreatedAt:    now,
			LastLogin:    now,
			Roles:        []entities.Role{adminRole},
		}
		if err := tx.Omit("Roles.*").Create(&admin).Error; err != nil {
			return fmt.Errorf("failed to create admin: %w", err)
		}

		for _, def := range DefaultThreads {
			thread := entities.Thread{
				Title:       def.Title,
				Created:     now,
				LastUpdated: now,
				AuthorID:    &admin.ID,
				Posts: []entities.Post{{
					Content:  def.Content,
					Created:  now,
					AuthorID: &admin.ID,
				}},
			}
			if err := tx.Create(&thread).Error; err != nil {
				return fmt.Errorf("failed to create thread %q: %w", def.Title, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	log.Printf("Created default administrator %q and %d threads", opts.AdminUsername, len(DefaultThreads))
	return true, nil
}
