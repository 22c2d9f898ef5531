// Package cli implements the command-line subcommands.
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/shelfmark/shelfmark/internal/canonical"
	"github.com/shelfmark/shelfmark/internal/clippings"
	"github.com/shelfmark/shelfmark/internal/config"
	"github.com/shelfmark/shelfmark/internal/database"
	"github.com/shelfmark/shelfmark/internal/database/books"
	canonicalRepo "github.com/shelfmark/shelfmark/internal/database/canonical"
	"github.com/shelfmark/shelfmark/internal/database/sessions"
	"github.com/shelfmark/shelfmark/internal/importer"
)

// ClippingsImportCommand imports an e-reader clippings export into the local
// database.
type ClippingsImportCommand struct {
	ClippingsPath string
	DatabasePath  string
	ErrorBudget   int
	NoLookup      bool
	DryRun        bool
}

func NewClippingsImportCommand() *ClippingsImportCommand {
	return &ClippingsImportCommand{}
}

func (cmd *ClippingsImportCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)

	fs.StringVar(&cmd.ClippingsPath, "file", "", "Path to the 'My Clippings.txt' export (required)")
	fs.StringVar(&cmd.DatabasePath, "db", config.DefaultDatabasePath, "Path to the local database file")
	fs.IntVar(&cmd.ErrorBudget, "error-budget", config.DefaultErrorBudget, "Malformed blocks tolerated before the file is rejected")
	fs.BoolVar(&cmd.NoLookup, "no-lookup", false, "Skip the external catalog; every book gets a provisional identity")
	fs.BoolVar(&cmd.DryRun, "dry-run", false, "Parse and report without touching the database")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s import -file <path> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Import highlights and notes from an e-reader 'My Clippings.txt' export.\n\n")
		fmt.Fprintf(os.Stderr, "The clippings file is typically found at:\n")
		fmt.Fprintf(os.Stderr, "  /Volumes/Kindle/documents/My Clippings.txt\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Import from a connected device:\n")
		fmt.Fprintf(os.Stderr, "  %s import -file \"/Volumes/Kindle/documents/My Clippings.txt\"\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Preview what would be imported:\n")
		fmt.Fprintf(os.Stderr, "  %s import -file \"My Clippings.txt\" -dry-run\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.ClippingsPath == "" {
		return fmt.Errorf("required flag -file not provided")
	}

	return nil
}

func (cmd *ClippingsImportCommand) Run() error {
	info, err := os.Stat(cmd.ClippingsPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("clippings file not found: %s", cmd.ClippingsPath)
	}
	if err != nil {
		return err
	}

	file, err := os.Open(cmd.ClippingsPath)
	if err != nil {
		return fmt.Errorf("failed to open clippings file: %w", err)
	}
	defer file.Close()

	if cmd.DryRun {
		return cmd.preview(file)
	}

	db, err := database.NewDatabase(cmd.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	var provider canonical.Provider = canonical.EmptyProvider{}
	if !cmd.NoLookup {
		provider = canonical.NewOpenLibraryClient(10 * time.Second)
	}
	resolver := canonical.NewResolver(provider, canonicalRepo.NewRepository(db.DB),
		gocache.New(30*time.Minute, time.Hour),
		canonical.DefaultWeights, canonical.DefaultThresholds, 10*time.Second)

	coordinator := importer.NewCoordinator(db,
		books.NewRepository(db.DB), sessions.NewRepository(db.DB),
		resolver, nil, nil, cmd.ErrorBudget)

	session, err := coordinator.Run(context.Background(), cmd.ClippingsPath, info.Size(), file)
	if err != nil {
		return err
	}

	fmt.Printf("Import %s\n", session.Status)
	fmt.Printf("  Entries parsed:     %d\n", session.EntriesParsed)
	fmt.Printf("  Entries skipped:    %d\n", session.EntriesSkipped)
	fmt.Printf("  Books added:        %d\n", session.BooksAdded)
	fmt.Printf("  Notes added:        %d\n", session.NotesAdded)
	fmt.Printf("  Notes updated:      %d\n", session.NotesUpdated)
	fmt.Printf("  Duplicates skipped: %d\n", session.DuplicatesSkipped)
	fmt.Printf("  Manual review:      %d\n", session.ManualReview)
	fmt.Printf("  Notes associated:   %d\n", session.NotesAssociated)
	if session.Error != "" {
		fmt.Printf("  First error:        %s\n", session.Error)
	}
	return nil
}

// preview tokenizes without persisting anything.
func (cmd *ClippingsImportCommand) preview(file *os.File) error {
	tokenizer := clippings.NewTokenizer(cmd.ErrorBudget)
	result, err := tokenizer.Tokenize(file)
	if err != nil {
		return err
	}

	byBook := make(map[string]int)
	for _, entry := range result.Entries {
		byBook[entry.BookKey()]++
	}

	fmt.Printf("Would import %d entries across %d books (%d blocks skipped)\n",
		len(result.Entries), len(byBook), len(result.Skipped))
	for _, w := range result.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	return nil
}
