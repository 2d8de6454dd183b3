package database

import (
	"fmt"
	"log"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jollyrodger/pika/internal/entities"
)

type Database struct {
	DB *gorm.DB
}

func NewDatabase(dbPath string, logLevel string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dsn(dbPath)), &gorm.Config{
		Logger: logger.Default.LogMode(LogLevel(logLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Join tables carry their own models so both sides share one table
	if err := db.SetupJoinTable(&entities.User{}, "Roles", &entities.UserRole{}); err != nil {
		return nil, fmt.Errorf("failed to set up user roles: %w", err)
	}
	if err := db.SetupJoinTable(&entities.Book{}, "Authors", &entities.BookAuthor{}); err != nil {
		return nil, fmt.Errorf("failed to set up book authors: %w", err)
	}
	if err := db.SetupJoinTable(&entities.Author{}, "Books", &entities.BookAuthor{}); err != nil {
		return nil, fmt.Errorf("failed to set up author books: %w", err)
	}

	err = db.AutoMigrate(
		&entities.Role{},
		&entities.User{},
		&entities.Author{},
		&entities.Series{},
		&entities.Book{},
		&entities.Thread{},
		&entities.Post{},
		&entities.AuditEvent{},
		&entities.OutboundMail{},
		&entities.SearchTerm{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	database := &Database{DB: db}

	if err := database.seedRoles(); err != nil {
		return nil, fmt.Errorf("failed to seed roles: %w", err)
	}

	log.Printf("Database initialized successfully at %s", dbPath)

	return database, nil
}

// LogLevel maps the configured application log level onto the GORM logger.
// Only debug shows every statement.
func LogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.Info
	case "warn", "error":
		return logger.Error
	case "silent":
		return logger.Silent
	default:
		return logger.Warn
	}
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
}

func (d *Database) seedRoles() error {
	for _, name := range entities.DefaultRoles {
		var existing entities.Role
		result := d.DB.Where("name = ?", name).First(&existing)
		if result.Error == gorm.ErrRecordNotFound {
			role := entities.Role{Name: name}
			if err := d.DB.Create(&role).Error; err != nil {
				return fmt.Errorf("failed to create role %s: %w", name, err)
			}
			log.Printf("Created role: %s", name)
		} else if result.Error != nil {
			return result.Error
		}
	}
	return nil
}
