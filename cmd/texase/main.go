// Command texase browses and edits an ASE database in the terminal.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/steenlysgaard/texase/internal/asedb"
	"github.com/steenlysgaard/texase/internal/logging"
	"github.com/steenlysgaard/texase/internal/prefs"
	"github.com/steenlysgaard/texase/internal/ui"
)

var errEmptyDB = errors.New("database is empty")

var rootCmd = &cobra.Command{
	Use:   "texase <database-path>",
	Short: "Browse and edit an ASE database in the terminal",
	Long: `texase shows the rows of an ASE SQLite database as a table. Rows can be
filtered, searched, marked, edited, imported from and exported to structure
files, and opened in an external viewer.

Configuration is read from $TEXASE_CONFIG or the user config directory
(texase/config.yaml). Logs go to texase.log in $TEXASE_CACHE_DIR or the
user cache directory.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), args[0])
	},
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, ui.PanelStyle.Render("texase: "+err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, path string) error {
	if err := checkDatabase(path); err != nil {
		return err
	}

	cacheDir, err := prefs.CacheDir()
	if err != nil {
		return err
	}
	closer, err := logging.Setup(cacheDir)
	if err != nil {
		return err
	}
	defer closer.Close()

	cfg, err := prefs.Load()
	if err != nil {
		// a broken config file should not keep the database from opening
		slog.Warn("config", "err", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	db, err := asedb.Open(ctx, abs)
	if err != nil {
		return err
	}
	defer db.Close()
	if n, err := db.Count(ctx); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("%s: %w", path, errEmptyDB)
	}

	rows, err := db.Select(ctx, asedb.Query{Limit: cfg.InitialRows})
	if err != nil {
		return fmt.Errorf("read rows: %w", err)
	}
	slog.Info("start", "db", abs, "rows", len(rows))

	m := ui.New(ui.Options{
		DB:      db,
		Rows:    rows,
		Config:  cfg,
		Columns: prefs.NewColumns(cacheDir),
	})
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		slog.Error("program", "err", err)
		return err
	}
	return nil
}

// checkDatabase refuses paths that would make Open create a new database.
func checkDatabase(path string) error {
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if fi.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("%s: %w", path, errEmptyDB)
	}
	return nil
}
