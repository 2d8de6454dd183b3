package cli

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jollyrodger/pika/internal/config"
	"github.com/jollyrodger/pika/internal/entrypoint"
)

// SetupCommand migrates the database, creates the default records and
// rebuilds the search index.
type SetupCommand struct {
	DatabasePath  string
	AdminUsername string
	AdminEmail    string
	SkipReindex   bool

	cfg *config.Config
}

func NewSetupCommand(cfg *config.Config) *SetupCommand {
	return &SetupCommand{cfg: cfg}
}

func (cmd *SetupCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("setup", flag.ExitOnError)

	fs.StringVar(&cmd.DatabasePath, "db", cmd.cfg.Database.Path, "Path to the database file")
	fs.StringVar(&cmd.AdminUsername, "admin", cmd.cfg.Setup.AdminUsername, "Username of the first administrator")
	fs.StringVar(&cmd.AdminEmail, "email", cmd.cfg.Setup.AdminEmail, "Email of the first administrator")
	fs.BoolVar(&cmd.SkipReindex, "skip-reindex", false, "Do not rebuild the search index")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s setup [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Create the database schema, the first administrator and the default forum threads.\n")
		fmt.Fprintf(os.Stderr, "The administrator password is read from SETUP_ADMIN_PASSWORD or generated and printed.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s setup\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s setup -db ./library.db -admin paul -email paul@example.com\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.AdminUsername == "" || cmd.AdminEmail == "" {
		fs.Usage()
		return fmt.Errorf("administrator username and email are required")
	}

	return nil
}

func (cmd *SetupCommand) Run() error {
	cfg := *cmd.cfg
	cfg.Database.Path = cmd.DatabasePath
	cfg.Setup.AdminUsername = cmd.AdminUsername
	cfg.Setup.AdminEmail = cmd.AdminEmail

	db, index, err := entrypoint.Open(&cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := entrypoint.SeedDefaultRecords(db, &cfg); err != nil {
		return err
	}

	if cmd.SkipReindex {
		log.Printf("Setup complete, search index left untouched")
		return nil
	}
	if err := index.Reindex(context.Background()); err != nil {
		return fmt.Errorf("failed to rebuild search index: %w", err)
	}

	log.Printf("Setup complete: %s", cmd.DatabasePath)
	return nil
}
