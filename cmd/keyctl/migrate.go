package main

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"crypto-service/config"
	"crypto-service/internal/infra"
	"crypto-service/internal/repository"
	"crypto-service/internal/usecase"
	"crypto-service/migrations"
)

// migrationSource はMIGRATIONS_DIRが設定されていればそのディレクトリを、なければ埋め込みのSQLを返す。
func migrationSource() fs.FS {
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

// openMigrations はDATABASE_URLに接続したMigrationServiceと、接続を閉じる関数を返す。
func openMigrations() (*usecase.MigrationService, func(), error) {
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("migrate needs DATABASE_URL")
	}
	db, err := infra.NewDB(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening key metadata database: %w", err)
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	return usecase.NewMigrationService(repository.NewMigrationRepository(db), db, migrationSource()), closeDB, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect key_metadata schema migrations",
		Long:  "Runs the SQL files embedded in the binary (or $MIGRATIONS_DIR) against $DATABASE_URL.",
	}
	cmd.AddCommand(migrateUpCmd(), migrateStatusCmd())
	return cmd
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration in version order",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := openMigrations()
			if err != nil {
				return err
			}
			defer done()

			n, err := svc.ApplyMigrations(cmd.Context())
			if err != nil {
				return fmt.Errorf("migrate up stopped after %d migration(s): %w", n, err)
			}
			switch n {
			case 0:
				fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date.")
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", n)
			}
			return nil
		},
	}
}

// migrationRow は migrate status --output json の1行。
type migrationRow struct {
	Version   string     `json:"version"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	AppliedAt *time.Time `json:"appliedAt,omitempty"`
}

func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List migrations with their applied/pending state",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done, err := openMigrations()
			if err != nil {
				return err
			}
			defer done()

			list, err := svc.GetMigrationStatus(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading migration status: %w", err)
			}

			rows := make([]migrationRow, len(list))
			for i, m := range list {
				rows[i] = migrationRow{Version: m.Version, Name: m.Name, Status: string(m.Status), AppliedAt: m.AppliedAt}
			}
			if opts.output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tNAME\tSTATUS\tAPPLIED AT")
			for _, r := range rows {
				at := "-"
				if r.AppliedAt != nil {
					at = r.AppliedAt.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Version, r.Name, r.Status, at)
			}
			return tw.Flush()
		},
	}
}
