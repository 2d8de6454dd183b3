package config

const (
	// DefaultDatabasePath is the default path for the main application database
	DefaultDatabasePath = "./pika.db"

	// DefaultCoversDir is where uploaded and imported cover images are stored
	DefaultCoversDir = "./covers"

	// DefaultContactEmail receives contact form messages and owns the default admin account
	DefaultContactEmail = "pika@jollyrodger.ch"
)
