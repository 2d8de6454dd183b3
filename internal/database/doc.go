// Package database provides the data access layer for the application.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup, migrations, role seeding
//	├── seed.go          # Default administrator and forum threads
//	├── library/         # Books, series and authors
//	├── users/           # Accounts, roles and API tokens
//	├── community/       # Forum threads and posts
//	├── audit/           # Audit events and retention
//	└── outbox/          # Outgoing mails
//
// # Using Sub-packages
//
// Each sub-package provides a Repository type with domain-specific operations:
//
//	db, err := database.NewDatabase("./pika.db", "info")
//
//	libraryRepo := library.NewRepository(db.DB)
//	usersRepo := users.NewRepository(db.DB)
//
//	page, err := libraryRepo.ListBooks(ctx, 1, 20)
//	user, err := usersRepo.GetByUsername("Admin")
//
// Writes to library records are mirrored into the search index by the
// search.SyncPlugin registered on the same *gorm.DB.
//
// # Adding a New Domain
//
//  1. Create a new sub-package: internal/database/<domain>/
//  2. Define a Repository struct with a *gorm.DB field
//  3. Add NewRepository(db *gorm.DB) constructor
//  4. Add compile-time interface checks to internal/interfaces
package database
