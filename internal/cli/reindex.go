package cli

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jollyrodger/pika/internal/config"
	"github.com/jollyrodger/pika/internal/entrypoint"
)

// ReindexCommand rebuilds the books, series and authors search indexes.
type ReindexCommand struct {
	DatabasePath string
	Timeout      time.Duration

	cfg *config.Config
}

func NewReindexCommand(cfg *config.Config) *ReindexCommand {
	return &ReindexCommand{cfg: cfg}
}

func (cmd *ReindexCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)

	fs.StringVar(&cmd.DatabasePath, "db", cmd.cfg.Database.Path, "Path to the database file")
	fs.DurationVar(&cmd.Timeout, "timeout", 10*time.Minute, "Abort the rebuild after this duration")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s reindex [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Drop and rebuild the search index from the library tables.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	return fs.Parse(args)
}

func (cmd *ReindexCommand) Run() error {
	cfg := *cmd.cfg
	cfg.Database.Path = cmd.DatabasePath

	db, index, err := entrypoint.Open(&cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cmd.Timeout)
	defer cancel()

	start := time.Now()
	if err := index.Reindex(ctx); err != nil {
		return fmt.Errorf("failed to rebuild search index: %w", err)
	}
	log.Printf("Search index rebuilt in %s", time.Since(start).Round(time.Millisecond))
	return nil
}
