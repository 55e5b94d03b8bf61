// Command junrei is a terminal client for the pilgrimage dialogues. It talks
// to the AI provider directly and shares the server's SQLite database.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashureev/junrei/internal/catalog"
	"github.com/ashureev/junrei/internal/config"
	"github.com/ashureev/junrei/internal/identity"
	"github.com/ashureev/junrei/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
	dbPath  string
	userID  string

	// Shared state set up by the root command.
	cfg  *config.Config
	repo *store.SQLiteStore
	cat  *catalog.Catalog
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "junrei",
	Short: "Junrei - literary pilgrimage dialogues in the terminal",
	Long: `Junrei lets you talk with a narrator about books and thinkers.

Each exchange is scored for thought depth and earns experience. Quotes the
narrator offers are collected on your profile.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}

		cat, err = catalog.Load()
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}

		repo, err = store.NewSQLite(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		return identity.EnsureProfile(cmd.Context(), repo, userID)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if repo != nil {
			if err := repo.Close(); err != nil {
				slog.Error("Failed to close repository", "error", err)
			}
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (default from DB_PATH)")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "local-pilgrim", "User id to play as")

	chatCmd.Flags().StringVarP(&encounterID, "encounter", "e", "", "Encounter id (see 'junrei encounters')")
	chatCmd.Flags().StringVar(&resumeID, "resume", "", "Conversation id to resume")
	_ = chatCmd.MarkFlagRequired("encounter")

	rootCmd.AddCommand(chatCmd, onboardCmd, profileCmd, quotesCmd, encountersCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
